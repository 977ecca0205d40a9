// Package docstore is a small document database abstraction: collections of
// JSON-shaped documents addressed by id, with simple filtered queries and a
// change feed. Postgres (jsonb), SQLite and in-memory backends are provided.
package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Document is a JSON object. Values are normalized the way encoding/json
// decodes them: numbers are float64, timestamps are RFC 3339 strings.
type Document = map[string]any

var ErrNotFound = errors.New("docstore: document not found")

type Op string

const (
	OpEq  Op = "=="
	OpNe  Op = "!="
	OpLt  Op = "<"
	OpLte Op = "<="
	OpGt  Op = ">"
	OpGte Op = ">="
)

type Filter struct {
	Field string
	Op    Op
	Value any
}

func Where(field string, op Op, value any) Filter {
	return Filter{Field: field, Op: op, Value: value}
}

// Query selects documents of one collection. A document lacking a filtered
// field never matches, and sorts after documents that have it.
type Query struct {
	Filters []Filter
	OrderBy string
	Desc    bool
	Limit   int
}

// Snapshot is one emission of an Observe stream.
type Snapshot struct {
	Documents []Document
	Err       error
}

type Store interface {
	Get(ctx context.Context, collection, id string) (Document, error)
	Query(ctx context.Context, collection string, q Query) ([]Document, error)
	// Set creates or replaces the document.
	Set(ctx context.Context, collection, id string, fields Document) error
	// Update merges top-level fields into an existing document.
	Update(ctx context.Context, collection, id string, fields Document) error
	Delete(ctx context.Context, collection, id string) error
	// Observe emits the current result first, then a fresh result after every
	// write to the collection. The channel closes when ctx is done.
	Observe(ctx context.Context, collection string, q Query) (<-chan Snapshot, error)
	Ping(ctx context.Context) error
	Close() error
}

// Encode converts a struct into its Document form via its JSON encoding.
func Encode(v any) (Document, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	return doc, nil
}

// Decode fills v from a Document.
func Decode(doc Document, v any) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("decode document: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode document: %w", err)
	}
	return nil
}

func validOp(op Op) bool {
	switch op {
	case OpEq, OpNe, OpLt, OpLte, OpGt, OpGte:
		return true
	}
	return false
}

func checkQuery(q Query) error {
	for _, f := range q.Filters {
		if f.Field == "" {
			return fmt.Errorf("docstore: filter with empty field")
		}
		if !validOp(f.Op) {
			return fmt.Errorf("docstore: unsupported operator %q", f.Op)
		}
	}
	if q.Limit < 0 {
		return fmt.Errorf("docstore: negative limit")
	}
	return nil
}
