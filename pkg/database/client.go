// Copyright 2025 Worldtree Labs
//
// Database client for the identity coordinator's persisted state. Provides
// connection pooling, health checks, and migration support.

package database

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/worldtree/identity-coordinator/pkg/logging"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Options configures the connection pool.
type Options struct {
	DatabaseURL string
	MaxConns    int
	MinConns    int
	MaxIdleTime time.Duration
	MaxLifetime time.Duration
}

// Client represents a database client with connection pooling.
type Client struct {
	db *sql.DB
}

// NewClient opens the connection pool and verifies connectivity.
func NewClient(options Options) (*Client, error) {
	if options.DatabaseURL == "" {
		return nil, fmt.Errorf("database URL cannot be empty")
	}

	db, err := sql.Open("postgres", options.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(options.MaxConns)
	db.SetMaxIdleConns(options.MinConns)
	db.SetConnMaxIdleTime(options.MaxIdleTime)
	db.SetConnMaxLifetime(options.MaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logging.Logger().Info().
		Int("maxConns", options.MaxConns).
		Int("minConns", options.MinConns).
		Msg("connected to database")

	return &Client{db: db}, nil
}

// DB returns the underlying *sql.DB for direct access.
func (c *Client) DB() *sql.DB {
	return c.db
}

// Close closes the database connection.
func (c *Client) Close() error {
	if c.db != nil {
		logging.Logger().Info().Msg("closing database connection")
		return c.db.Close()
	}
	return nil
}

// Ping verifies the database connection is alive.
func (c *Client) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// MigrateUp runs all pending database migrations.
func (c *Client) MigrateUp(ctx context.Context) error {
	logging.Logger().Info().Msg("running database migrations")

	migrations, err := c.getMigrations()
	if err != nil {
		return fmt.Errorf("failed to get migrations: %w", err)
	}

	applied, err := c.getAppliedMigrations(ctx)
	if err != nil {
		// If the table doesn't exist yet, the first migration will create it.
		if !strings.Contains(err.Error(), "does not exist") {
			return fmt.Errorf("failed to get applied migrations: %w", err)
		}
		applied = make(map[string]bool)
	}

	for _, migration := range migrations {
		if applied[migration.Version] {
			continue
		}
		logging.Logger().Info().Str("version", migration.Version).Msg("applying migration")
		if err := c.applyMigration(ctx, migration); err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", migration.Version, err)
		}
	}

	logging.Logger().Info().Msg("migrations complete")
	return nil
}

// Migration represents a database migration.
type Migration struct {
	Version  string
	Filename string
	SQL      string
}

func (c *Client) getMigrations() ([]Migration, error) {
	var migrations []Migration

	err := fs.WalkDir(migrationsFS, "migrations", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".sql") {
			return nil
		}

		content, err := migrationsFS.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}

		filename := d.Name()
		migrations = append(migrations, Migration{
			Version:  strings.TrimSuffix(filename, ".sql"),
			Filename: filename,
			SQL:      string(content),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})

	return migrations, nil
}

func (c *Client) getAppliedMigrations(ctx context.Context) (map[string]bool, error) {
	rows, err := c.db.QueryContext(ctx, "SELECT version FROM schema_migrations")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			return nil, err
		}
		applied[version] = true
	}

	return applied, rows.Err()
}

func (c *Client) applyMigration(ctx context.Context, migration Migration) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, migration.SQL); err != nil {
		return fmt.Errorf("failed to execute migration SQL: %w", err)
	}

	// Each migration records itself in schema_migrations via
	// INSERT ... ON CONFLICT DO NOTHING.
	return tx.Commit()
}

// ExecContext executes a query that doesn't return rows.
func (c *Client) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return c.db.ExecContext(ctx, query, args...)
}

// QueryRowContext executes a query that returns at most one row.
func (c *Client) QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row {
	return c.db.QueryRowContext(ctx, query, args...)
}
