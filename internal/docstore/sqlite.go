package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

// SQLite is a single-file store for offline or single-node deployments.
// Filtering and ordering run in process after loading the collection.
type SQLite struct {
	db    *sql.DB
	watch *watchers
}

func NewSQLite(path string) (*SQLite, error) {
	if strings.TrimSpace(path) == "" {
		path = "learnizone.db"
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA busy_timeout = 5000;`); err != nil {
		_ = db.Close()
		return nil, err
	}

	store := &SQLite{db: db, watch: newWatchers()}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

func (s *SQLite) initSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS documents (
			collection TEXT NOT NULL,
			id TEXT NOT NULL,
			data TEXT NOT NULL,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (collection, id)
		);`)
	return err
}

func (s *SQLite) Get(ctx context.Context, collection, id string) (Document, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM documents WHERE collection = ? AND id = ?`,
		collection, id,
	).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("docstore: get %s/%s: %w", collection, id, err)
	}

	var doc Document
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, fmt.Errorf("docstore: get %s/%s: %w", collection, id, err)
	}
	return doc, nil
}

func (s *SQLite) Query(ctx context.Context, collection string, q Query) ([]Document, error) {
	if err := checkQuery(q); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT data FROM documents WHERE collection = ?`, collection)
	if err != nil {
		return nil, fmt.Errorf("docstore: query %s: %w", collection, err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("docstore: query %s: %w", collection, err)
		}
		var doc Document
		if err := json.Unmarshal([]byte(raw), &doc); err != nil {
			return nil, fmt.Errorf("docstore: query %s: %w", collection, err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("docstore: query %s: %w", collection, err)
	}

	return apply(docs, q), nil
}

func (s *SQLite) Set(ctx context.Context, collection, id string, fields Document) error {
	data, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("docstore: set %s/%s: %w", collection, id, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO documents (collection, id, data) VALUES (?, ?, ?)
		ON CONFLICT (collection, id) DO UPDATE SET data = excluded.data, updated_at = CURRENT_TIMESTAMP`,
		collection, id, string(data),
	)
	if err != nil {
		return fmt.Errorf("docstore: set %s/%s: %w", collection, id, err)
	}

	s.watch.notify(collection)
	return nil
}

// Update reads, merges and writes back inside one transaction.
func (s *SQLite) Update(ctx context.Context, collection, id string, fields Document) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("docstore: update %s/%s: %w", collection, id, err)
	}
	defer tx.Rollback()

	var raw string
	err = tx.QueryRowContext(ctx,
		`SELECT data FROM documents WHERE collection = ? AND id = ?`,
		collection, id,
	).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("docstore: update %s/%s: %w", collection, id, err)
	}

	var doc Document
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return fmt.Errorf("docstore: update %s/%s: %w", collection, id, err)
	}
	for k, v := range fields {
		doc[k] = v
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("docstore: update %s/%s: %w", collection, id, err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE documents SET data = ?, updated_at = CURRENT_TIMESTAMP WHERE collection = ? AND id = ?`,
		string(data), collection, id,
	); err != nil {
		return fmt.Errorf("docstore: update %s/%s: %w", collection, id, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("docstore: update %s/%s: %w", collection, id, err)
	}

	s.watch.notify(collection)
	return nil
}

func (s *SQLite) Delete(ctx context.Context, collection, id string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM documents WHERE collection = ? AND id = ?`,
		collection, id,
	); err != nil {
		return fmt.Errorf("docstore: delete %s/%s: %w", collection, id, err)
	}

	s.watch.notify(collection)
	return nil
}

func (s *SQLite) Observe(ctx context.Context, collection string, q Query) (<-chan Snapshot, error) {
	if err := checkQuery(q); err != nil {
		return nil, err
	}
	changed, done := s.watch.subscribe(collection)
	return stream(ctx, changed, done, func(ctx context.Context) ([]Document, error) {
		return s.Query(ctx, collection, q)
	}), nil
}

func (s *SQLite) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLite) Close() error {
	return s.db.Close()
}
