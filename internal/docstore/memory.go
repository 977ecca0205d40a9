package docstore

import (
	"context"
	"fmt"
	"sync"
)

// Memory keeps documents in process. It backs tests and STORE_DRIVER=memory.
type Memory struct {
	mu          sync.RWMutex
	collections map[string]map[string]Document
	watch       *watchers
}

func NewMemory() *Memory {
	return &Memory{
		collections: make(map[string]map[string]Document),
		watch:       newWatchers(),
	}
}

func (m *Memory) Get(ctx context.Context, collection, id string) (Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	doc, ok := m.collections[collection][id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyDoc(doc), nil
}

func (m *Memory) Query(ctx context.Context, collection string, q Query) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := checkQuery(q); err != nil {
		return nil, err
	}

	m.mu.RLock()
	docs := make([]Document, 0, len(m.collections[collection]))
	for _, d := range m.collections[collection] {
		docs = append(docs, d)
	}
	m.mu.RUnlock()

	result := apply(docs, q)
	for i, d := range result {
		result[i] = copyDoc(d)
	}
	return result, nil
}

func (m *Memory) Set(ctx context.Context, collection, id string, fields Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	doc, err := normalizeDoc(fields)
	if err != nil {
		return fmt.Errorf("docstore: set %s/%s: %w", collection, id, err)
	}

	m.mu.Lock()
	if m.collections[collection] == nil {
		m.collections[collection] = make(map[string]Document)
	}
	m.collections[collection][id] = doc
	m.mu.Unlock()

	m.watch.notify(collection)
	return nil
}

func (m *Memory) Update(ctx context.Context, collection, id string, fields Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	patch, err := normalizeDoc(fields)
	if err != nil {
		return fmt.Errorf("docstore: update %s/%s: %w", collection, id, err)
	}

	m.mu.Lock()
	doc, ok := m.collections[collection][id]
	if !ok {
		m.mu.Unlock()
		return ErrNotFound
	}
	merged := copyDoc(doc)
	for k, v := range patch {
		merged[k] = v
	}
	m.collections[collection][id] = merged
	m.mu.Unlock()

	m.watch.notify(collection)
	return nil
}

func (m *Memory) Delete(ctx context.Context, collection, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.collections[collection], id)
	m.mu.Unlock()

	m.watch.notify(collection)
	return nil
}

func (m *Memory) Observe(ctx context.Context, collection string, q Query) (<-chan Snapshot, error) {
	if err := checkQuery(q); err != nil {
		return nil, err
	}
	changed, done := m.watch.subscribe(collection)
	return stream(ctx, changed, done, func(ctx context.Context) ([]Document, error) {
		return m.Query(ctx, collection, q)
	}), nil
}

func (m *Memory) Ping(ctx context.Context) error { return ctx.Err() }

func (m *Memory) Close() error { return nil }
