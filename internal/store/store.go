package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
	"golang.org/x/time/rate"

	"github.com/roach88/seedkit/internal/metricquery"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking (SQLite user_version):
// 0 - Empty database
// 1 - campaigns and metrics tables with tenant/provenance indexes
const currentSchemaVersion = 1

// Dialect selects the database/sql driver and its SQL flavour.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite3"
	DialectPostgres Dialect = "pgx"
)

// Placeholder returns the bind-parameter style of the dialect.
func (d Dialect) Placeholder() metricquery.Placeholder {
	if d == DialectPostgres {
		return metricquery.Dollar
	}
	return metricquery.Question
}

// Valid reports whether d is a supported driver.
func (d Dialect) Valid() bool {
	return d == DialectSQLite || d == DialectPostgres
}

// Write throttling defaults.
const (
	DefaultBatchSize = 200
	DefaultWriteRate = 50.0
)

// Config configures Open.
type Config struct {
	Driver      Dialect
	URL         string
	PingTimeout time.Duration

	// BatchSize is the number of rows per INSERT statement.
	BatchSize int
	// WriteRate caps INSERT batches per second. Zero or negative disables
	// throttling.
	WriteRate float64
}

// Validate checks the configuration without touching the database.
func (c Config) Validate() error {
	if !c.Driver.Valid() {
		return fmt.Errorf("db driver %q must be one of %s, %s", c.Driver, DialectSQLite, DialectPostgres)
	}
	if c.URL == "" {
		return errors.New("db url is required")
	}
	if c.PingTimeout <= 0 {
		return errors.New("db ping timeout must be positive")
	}
	if c.BatchSize < 0 {
		return errors.New("write batch size must be >= 0")
	}
	return nil
}

// Store reads and writes campaigns and metric rows.
type Store struct {
	db        *sql.DB
	dialect   Dialect
	batchSize int
	limiter   *rate.Limiter
}

// Open connects to the configured database, applies pragmas (SQLite) and
// the schema, and returns a ready Store.
//
// This function is idempotent - safe to call multiple times against the
// same database.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	db, err := sql.Open(string(cfg.Driver), cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if cfg.Driver == DialectSQLite {
		// SQLite only supports one writer at a time
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.PingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if cfg.Driver == DialectSQLite {
		if err := applyPragmas(ctx, db); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply pragmas: %w", err)
		}
	}

	if err := applySchema(ctx, db, cfg.Driver); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	s := New(db, cfg.Driver)
	s.SetWriteLimits(cfg.BatchSize, cfg.WriteRate)
	return s, nil
}

// New wraps an existing connection pool. The schema is assumed to exist.
// Write limits start at DefaultBatchSize and DefaultWriteRate.
func New(db *sql.DB, dialect Dialect) *Store {
	s := &Store{db: db, dialect: dialect}
	s.SetWriteLimits(DefaultBatchSize, DefaultWriteRate)
	return s
}

// SetWriteLimits changes the insert batch size and batches-per-second cap.
// A batchSize <= 0 keeps DefaultBatchSize; perSecond <= 0 disables throttling.
func (s *Store) SetWriteLimits(batchSize int, perSecond float64) {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	s.batchSize = batchSize
	if perSecond > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
	} else {
		s.limiter = rate.NewLimiter(rate.Inf, 1)
	}
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying sql.DB.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Dialect returns the store's SQL dialect.
func (s *Store) Dialect() Dialect {
	return s.dialect
}

// rebind rewrites "?" placeholders for the store's dialect.
func (s *Store) rebind(query string) string {
	if s.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// applySchema creates tables if they don't exist and records the schema
// version. This function is idempotent.
func applySchema(ctx context.Context, db *sql.DB, dialect Dialect) error {
	for _, stmt := range schemaStatements() {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute schema: %w", err)
		}
	}

	if dialect != DialectSQLite {
		return nil
	}

	var version int
	if err := db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}
	if version < currentSchemaVersion {
		if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
			return fmt.Errorf("set user_version: %w", err)
		}
	}
	return nil
}

// schemaStatements splits the embedded schema into single statements.
// PostgreSQL's extended protocol rejects multi-statement strings.
func schemaStatements() []string {
	var stmts []string
	for _, part := range strings.Split(schemaSQL, ";") {
		var lines []string
		for _, line := range strings.Split(part, "\n") {
			if strings.HasPrefix(strings.TrimSpace(line), "--") {
				continue
			}
			lines = append(lines, line)
		}
		stmt := strings.TrimSpace(strings.Join(lines, "\n"))
		if stmt != "" {
			stmts = append(stmts, stmt)
		}
	}
	return stmts
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	query := fmt.Sprintf("PRAGMA %s", name)
	if err := s.db.QueryRow(query).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
