package database

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// NewPostgresPool sizes the pool for the document store, where most
// requests issue a handful of short keyed reads.
func NewPostgresPool(databaseURL string) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	config.MaxConns = 20
	config.MinConns = 2
	config.MaxConnLifetime = 30 * time.Minute
	config.MaxConnIdleTime = 5 * time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return pool, nil
}

// migrationLockKey serializes migrations across server instances that
// start at the same time.
const migrationLockKey = 7_401_215

type migration struct {
	version int
	name    string
}

// RunMigrations applies every NNN_*.sql file in migrationsDir that is not yet
// recorded in schema_migrations, each in its own transaction.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool, migrationsDir string) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if _, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL DEFAULT '',
			applied_at TIMESTAMPTZ DEFAULT NOW()
		)
	`); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	pending, err := pendingMigrations(migrationsDir)
	if err != nil {
		return err
	}

	for _, m := range pending {
		applied, err := applyMigration(ctx, pool, migrationsDir, m)
		if err != nil {
			return err
		}
		if applied {
			log.Printf("Applied migration %03d: %s", m.version, m.name)
		}
	}
	return nil
}

func pendingMigrations(dir string) ([]migration, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations directory: %w", err)
	}

	var found []migration
	seen := make(map[int]string)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		version := migrationVersion(entry.Name())
		if version == 0 {
			continue
		}
		if other, dup := seen[version]; dup {
			return nil, fmt.Errorf("migrations %s and %s share version %d", other, entry.Name(), version)
		}
		seen[version] = entry.Name()
		found = append(found, migration{version: version, name: entry.Name()})
	}
	sort.Slice(found, func(i, j int) bool { return found[i].version < found[j].version })
	return found, nil
}

// applyMigration reports false when another instance got there first.
func applyMigration(ctx context.Context, pool *pgxpool.Pool, dir string, m migration) (bool, error) {
	content, err := os.ReadFile(filepath.Join(dir, m.name))
	if err != nil {
		return false, fmt.Errorf("failed to read migration %s: %w", m.name, err)
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction for migration %d: %w", m.version, err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", migrationLockKey); err != nil {
		return false, fmt.Errorf("failed to lock migrations: %w", err)
	}

	var exists bool
	if err := tx.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = $1)", m.version).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check migration %d: %w", m.version, err)
	}
	if exists {
		return false, nil
	}

	if _, err := tx.Exec(ctx, string(content)); err != nil {
		return false, fmt.Errorf("failed to execute migration %d: %w", m.version, err)
	}
	if _, err := tx.Exec(ctx, "INSERT INTO schema_migrations (version, name) VALUES ($1, $2)", m.version, m.name); err != nil {
		return false, fmt.Errorf("failed to record migration %d: %w", m.version, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("failed to commit migration %d: %w", m.version, err)
	}
	return true, nil
}

// migrationVersion reads the numeric prefix of a file such as
// "001_documents.sql". Anything else is not a migration and yields 0.
func migrationVersion(name string) int {
	if filepath.Ext(name) != ".sql" || len(name) < 4 || name[3] != '_' {
		return 0
	}
	version := 0
	if _, err := fmt.Sscanf(name[:3], "%d", &version); err != nil {
		return 0
	}
	return version
}
