package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// Postgres stores documents in a single jsonb table (see migrations) and
// uses Redis pub/sub as its change feed.
type Postgres struct {
	pool  *pgxpool.Pool
	redis *redis.Client
}

func NewPostgres(pool *pgxpool.Pool, redisClient *redis.Client) *Postgres {
	return &Postgres{pool: pool, redis: redisClient}
}

func changeChannel(collection string) string {
	return "docs:" + collection
}

var sqlOps = map[Op]string{
	OpEq:  "=",
	OpNe:  "<>",
	OpLt:  "<",
	OpLte: "<=",
	OpGt:  ">",
	OpGte: ">=",
}

func (s *Postgres) Get(ctx context.Context, collection, id string) (Document, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx,
		`SELECT data FROM documents WHERE collection = $1 AND id = $2`,
		collection, id,
	).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("docstore: get %s/%s: %w", collection, id, err)
	}

	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("docstore: get %s/%s: %w", collection, id, err)
	}
	return doc, nil
}

// buildQuery translates q into SQL. jsonb comparison orders numbers
// numerically and strings lexically, matching the in-process backends.
func buildQuery(collection string, q Query) (string, []any, error) {
	if err := checkQuery(q); err != nil {
		return "", nil, err
	}

	var b strings.Builder
	args := []any{collection}
	b.WriteString(`SELECT data FROM documents WHERE collection = $1`)

	for _, f := range q.Filters {
		value, err := json.Marshal(f.Value)
		if err != nil {
			return "", nil, fmt.Errorf("docstore: filter %s: %w", f.Field, err)
		}
		args = append(args, f.Field, string(value))
		fmt.Fprintf(&b, ` AND data -> ($%d::text) %s $%d::jsonb`, len(args)-1, sqlOps[f.Op], len(args))
	}

	if q.OrderBy != "" {
		args = append(args, q.OrderBy)
		dir := "ASC"
		if q.Desc {
			dir = "DESC"
		}
		fmt.Fprintf(&b, ` ORDER BY data -> ($%d::text) %s NULLS LAST`, len(args), dir)
	}

	if q.Limit > 0 {
		args = append(args, q.Limit)
		fmt.Fprintf(&b, ` LIMIT $%d`, len(args))
	}

	return b.String(), args, nil
}

func (s *Postgres) Query(ctx context.Context, collection string, q Query) ([]Document, error) {
	sql, args, err := buildQuery(collection, q)
	if err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("docstore: query %s: %w", collection, err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("docstore: query %s: %w", collection, err)
		}
		var doc Document
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("docstore: query %s: %w", collection, err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("docstore: query %s: %w", collection, err)
	}
	return docs, nil
}

func (s *Postgres) Set(ctx context.Context, collection, id string, fields Document) error {
	data, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("docstore: set %s/%s: %w", collection, id, err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO documents (collection, id, data)
		VALUES ($1, $2, $3::jsonb)
		ON CONFLICT (collection, id) DO UPDATE
		SET data = EXCLUDED.data, updated_at = NOW()`,
		collection, id, string(data),
	)
	if err != nil {
		return fmt.Errorf("docstore: set %s/%s: %w", collection, id, err)
	}

	s.publish(ctx, collection, id)
	return nil
}

func (s *Postgres) Update(ctx context.Context, collection, id string, fields Document) error {
	data, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("docstore: update %s/%s: %w", collection, id, err)
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE documents SET data = data || $3::jsonb, updated_at = NOW()
		WHERE collection = $1 AND id = $2`,
		collection, id, string(data),
	)
	if err != nil {
		return fmt.Errorf("docstore: update %s/%s: %w", collection, id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	s.publish(ctx, collection, id)
	return nil
}

func (s *Postgres) Delete(ctx context.Context, collection, id string) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM documents WHERE collection = $1 AND id = $2`,
		collection, id,
	)
	if err != nil {
		return fmt.Errorf("docstore: delete %s/%s: %w", collection, id, err)
	}

	s.publish(ctx, collection, id)
	return nil
}

func (s *Postgres) publish(ctx context.Context, collection, id string) {
	if s.redis == nil {
		return
	}
	if err := s.redis.Publish(ctx, changeChannel(collection), id).Err(); err != nil {
		log.Printf("docstore: change notification for %s/%s failed: %v", collection, id, err)
	}
}

func (s *Postgres) Observe(ctx context.Context, collection string, q Query) (<-chan Snapshot, error) {
	if err := checkQuery(q); err != nil {
		return nil, err
	}
	if s.redis == nil {
		return nil, fmt.Errorf("docstore: change feed requires redis")
	}

	pubsub := s.redis.Subscribe(ctx, changeChannel(collection))
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("docstore: subscribe %s: %w", collection, err)
	}

	changed := make(chan struct{}, 1)
	go func() {
		defer close(changed)
		msgs := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-msgs:
				if !ok {
					return
				}
				select {
				case changed <- struct{}{}:
				default:
				}
			}
		}
	}()

	return stream(ctx, changed, func() { pubsub.Close() }, func(ctx context.Context) ([]Document, error) {
		return s.Query(ctx, collection, q)
	}), nil
}

func (s *Postgres) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close is a no-op; the pool is owned by the caller.
func (s *Postgres) Close() error { return nil }
