package storage

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"strings"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/corner-places/venue-engine/internal/config"
)

// Dialect identifies the SQL backend.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Database is an open connection pool and the dialect it speaks.
type Database struct {
	*sql.DB
	Dialect Dialect
}

// Open opens the configured database and verifies the connection.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*Database, error) {
	var (
		db      *sql.DB
		err     error
		dialect Dialect
	)

	switch cfg.Driver {
	case "sqlite":
		dialect = DialectSQLite
		db, err = sql.Open("sqlite3", sqliteDSN(cfg.SQLite.Path))
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		maxOpen := cfg.SQLite.MaxOpenConns
		if maxOpen <= 0 {
			maxOpen = 1
		}
		db.SetMaxOpenConns(maxOpen)
	case "postgres":
		dialect = DialectPostgres
		db, err = sql.Open("postgres", cfg.Postgres.DSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		if cfg.Postgres.MaxOpenConns > 0 {
			db.SetMaxOpenConns(cfg.Postgres.MaxOpenConns)
		}
		if cfg.Postgres.MaxIdleConns > 0 {
			db.SetMaxIdleConns(cfg.Postgres.MaxIdleConns)
		}
		if cfg.Postgres.ConnMaxLifetime > 0 {
			db.SetConnMaxLifetime(cfg.Postgres.ConnMaxLifetime)
		}
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", dialect, err)
	}

	return &Database{DB: db, Dialect: dialect}, nil
}

// sqliteDSN enables foreign keys so review rows cascade with their place.
func sqliteDSN(path string) string {
	if strings.Contains(path, "?") {
		return path + "&_foreign_keys=on"
	}
	return path + "?_foreign_keys=on"
}

// MigrationFile returns the embedded schema file for a dialect.
func MigrationFile(dialect Dialect) string {
	if dialect == DialectSQLite {
		return "migrations/0001_init_sqlite.sql"
	}
	return "migrations/0001_init.sql"
}

// Migrate applies the embedded schema. The statements are idempotent.
func Migrate(ctx context.Context, db *Database) error {
	file := MigrationFile(db.Dialect)
	schema, err := migrations.ReadFile(file)
	if err != nil {
		return fmt.Errorf("read migration %s: %w", file, err)
	}

	for _, stmt := range splitStatements(string(schema)) {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply migration %s: %w", file, err)
		}
	}
	return nil
}

// splitStatements splits a schema file on semicolons, dropping comment lines.
func splitStatements(schema string) []string {
	var lines []string
	for _, line := range strings.Split(schema, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "--") {
			continue
		}
		lines = append(lines, line)
	}

	var stmts []string
	for _, stmt := range strings.Split(strings.Join(lines, "\n"), ";") {
		if stmt = strings.TrimSpace(stmt); stmt != "" {
			stmts = append(stmts, stmt)
		}
	}
	return stmts
}
