package sqlkit

import (
	"context"
	"database/sql"

	"github.com/gertd/go-pluralize"
	"github.com/iancoleman/strcase"

	// Backend drivers for Open.
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
)

// DB is the thin per-connection facade: it owns the pool handle, the shared
// compiled-query cache and the logger, and hands out fresh builders so
// concurrent callers never share mutable clause state.
type DB struct {
	conn    *sql.DB
	driver  string
	dialect *Dialect
	cfg     *Config
	cache   *QueryCache
	logger  Logger
	plural  *pluralize.Client
}

// Open opens a database handle for the given driver and wraps it.
func Open(driver, dsn string, cfg *Config) (*DB, error) {
	dialect, err := getDialect(driver)
	if err != nil {
		return nil, err
	}
	conn, err := sql.Open(dialect.SQLDriverName, dsn)
	if err != nil {
		return nil, err
	}
	return newDB(conn, driver, dialect, cfg), nil
}

// OpenDB wraps an existing *sql.DB. Useful when the caller manages pooling
// itself or injects a mock.
func OpenDB(driver string, conn *sql.DB, cfg *Config) (*DB, error) {
	dialect, err := getDialect(driver)
	if err != nil {
		return nil, err
	}
	return newDB(conn, driver, dialect, cfg), nil
}

func newDB(conn *sql.DB, driver string, dialect *Dialect, cfg *Config) *DB {
	cfg = cfg.withDefaults()
	return &DB{
		conn:    conn,
		driver:  driver,
		dialect: dialect,
		cfg:     cfg,
		cache:   NewQueryCache(cfg.MaxQueryCache),
		logger:  nopLogger{},
	}
}

// SetLogger installs a logger shared by all builders created afterwards.
func (d *DB) SetLogger(l Logger) {
	d.logger = l
}

// Builder returns a fresh builder over this connection. Each caller gets
// independent clause state; only the compiled-query cache is shared.
func (d *DB) Builder() *Builder {
	b := &Builder{
		conn:    d.conn,
		dialect: d.dialect,
		cfg:     d.cfg,
		cache:   d.cache,
		logger:  d.logger,
	}
	b.resetState()
	return b
}

// Table returns a fresh builder with the FROM table already set.
func (d *DB) Table(name string) *Builder {
	return d.Builder().From(name)
}

// TableOf infers a table name from an entity-style name: CamelCase becomes
// snake_case and is pluralized, so "UserProfile" maps to "user_profiles".
func (d *DB) TableOf(entity string) *Builder {
	if d.plural == nil {
		d.plural = pluralize.NewClient()
	}
	return d.Table(d.plural.Plural(strcase.ToSnake(entity)))
}

// Query runs a raw statement against the pool, outside the builder.
func (d *DB) Query(ctx context.Context, query string, args ...any) ([]Row, error) {
	rows, err := d.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, d.dialect.ClassifyError(err)
	}
	defer rows.Close()
	out, err := scanRows(rows)
	if err != nil {
		return nil, d.dialect.ClassifyError(err)
	}
	return out, nil
}

// Exec runs a raw statement that returns no rows.
func (d *DB) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	res, err := d.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, d.dialect.ClassifyError(err)
	}
	return res, nil
}

// Dialect exposes the connection's dialect.
func (d *DB) Dialect() *Dialect {
	return d.dialect
}

// Close closes the underlying pool.
func (d *DB) Close() error {
	return d.conn.Close()
}
