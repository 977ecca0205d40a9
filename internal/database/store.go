package database

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"learnizone-backend/internal/docstore"
)

type StoreOptions struct {
	Driver        string
	DatabaseURL   string
	SQLitePath    string
	MigrationsDir string
}

// OpenStore opens the document store selected by opts.Driver. The returned
// close function releases everything OpenStore created.
func OpenStore(opts StoreOptions, redisClient *redis.Client) (docstore.Store, func(), error) {
	switch opts.Driver {
	case "postgres":
		if redisClient == nil {
			return nil, nil, fmt.Errorf("postgres store needs Redis for change notifications")
		}
		pool, err := NewPostgresPool(opts.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		if err := RunMigrations(context.Background(), pool, opts.MigrationsDir); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return docstore.NewPostgres(pool, redisClient), pool.Close, nil

	case "sqlite":
		store, err := docstore.NewSQLite(opts.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open sqlite store: %w", err)
		}
		return store, func() { store.Close() }, nil

	case "memory":
		return docstore.NewMemory(), func() {}, nil

	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", opts.Driver)
	}
}
