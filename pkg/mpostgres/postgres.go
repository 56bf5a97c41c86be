// Package mpostgres wraps a lazily-connected, migration-applying Postgres
// pool shared by every component that owns rows (auth, sample, storage,
// saga). Adapted from the teacher's common/mpostgres/postgres.go: same
// lazy-singleton-connection shape, generalized to accept an injected
// logger instead of calling log.Fatal directly, and to run migrations
// from a caller-supplied path instead of a hardcoded component directory.
package mpostgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/tracseq/lims-core/pkg/mlog"
)

// Connection is a hub that deals with Postgres connections and
// migrations for a single logical database (one per owning component:
// auth, sample, storage, saga).
type Connection struct {
	DSN            string
	DatabaseName   string
	MigrationsPath string // file:// source directory; empty skips migration
	Logger         mlog.Logger
	// MaxOpenConns bounds the shared pool (spec.md §5: "A bounded DB
	// connection pool (default 20) is shared by all components"). Zero
	// uses the default.
	MaxOpenConns int

	db        *sql.DB
	connected bool
}

// DefaultMaxOpenConns is spec.md §5's shared-pool default.
const DefaultMaxOpenConns = 20

// Connect opens the pool and applies pending migrations.
func (c *Connection) Connect(ctx context.Context) error {
	if c.Logger == nil {
		c.Logger = &mlog.NoneLogger{}
	}

	c.Logger.Info("connecting to postgres: " + c.DatabaseName)

	db, err := sql.Open("pgx", c.DSN)
	if err != nil {
		return fmt.Errorf("open postgres %s: %w", c.DatabaseName, err)
	}

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping postgres %s: %w", c.DatabaseName, err)
	}

	maxOpen := c.MaxOpenConns
	if maxOpen == 0 {
		maxOpen = DefaultMaxOpenConns
	}

	db.SetMaxOpenConns(maxOpen)

	if c.MigrationsPath != "" {
		if err := c.migrate(db); err != nil {
			return err
		}
	}

	c.db = db
	c.connected = true

	c.Logger.Info("connected to postgres: " + c.DatabaseName)

	return nil
}

func (c *Connection) migrate(db *sql.DB) error {
	driver, err := postgres.WithInstance(db, &postgres.Config{
		MultiStatementEnabled: true,
		DatabaseName:          c.DatabaseName,
		SchemaName:            "public",
	})
	if err != nil {
		return fmt.Errorf("migration driver %s: %w", c.DatabaseName, err)
	}

	m, err := migrate.NewWithDatabaseInstance("file://"+c.MigrationsPath, c.DatabaseName, driver)
	if err != nil {
		return fmt.Errorf("migration source %s: %w", c.DatabaseName, err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("apply migrations %s: %w", c.DatabaseName, err)
	}

	return nil
}

// DB returns the pool, connecting lazily on first use.
func (c *Connection) DB(ctx context.Context) (*sql.DB, error) {
	if !c.connected {
		if err := c.Connect(ctx); err != nil {
			return nil, err
		}
	}

	return c.db, nil
}
