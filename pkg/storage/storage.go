// Package storage is the database boundary of the run store. It owns the
// connection, the details schema and the dialect-specific SQL fragments, and
// executes statements with ":name" placeholders.
package storage

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/ethpandaops/profiledb/pkg/config"
	"github.com/glebarez/sqlite"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const pingTimeout = 5 * time.Second

// Adapter executes named-parameter statements against the run store.
type Adapter interface {
	// Exec runs a write and returns the number of affected rows.
	Exec(ctx context.Context, query string, params map[string]any) (int64, error)
	// Select scans all result rows into dest, a pointer to a slice.
	Select(ctx context.Context, dest any, query string, params map[string]any) error
	// Get scans a single row into dest. sql.ErrNoRows is returned wrapped
	// when there is none.
	Get(ctx context.Context, dest any, query string, params map[string]any) error
	// Escape makes raw safe to embed inside a quoted literal of a statement.
	Escape(raw string) string
	// Quote returns raw as an escaped string literal.
	Quote(raw string) string
	// Dialect exposes the backend-specific SQL fragments.
	Dialect() Dialect
}

// Compile-time interface check.
var _ Adapter = (*DB)(nil)

// DB is the Adapter implementation backed by gorm (connection and schema)
// and sqlx (named statement execution).
type DB struct {
	log     logrus.FieldLogger
	cfg     *config.DatabaseConfig
	gorm    *gorm.DB
	db      *sqlx.DB
	dialect Dialect
}

// NewDB creates a DB for the configured driver. Call Start before use.
func NewDB(log logrus.FieldLogger, cfg *config.DatabaseConfig) *DB {
	// An unsupported driver leaves the dialect nil; Start reports it.
	dialect, _ := DialectFor(cfg.Driver)

	return &DB{
		log:     log.WithField("component", "storage"),
		cfg:     cfg,
		dialect: dialect,
	}
}

// Start opens the database connection and creates the details table.
func (d *DB) Start(ctx context.Context) error {
	dialect, err := DialectFor(d.cfg.Driver)
	if err != nil {
		return err
	}

	var dialector gorm.Dialector

	switch dialect.Name() {
	case DriverSQLite:
		dialector = sqlite.Open(d.cfg.SQLite.Path)
	case DriverPostgres:
		dialector = postgres.Open(d.cfg.Postgres.DSN())
	}

	gdb, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Discard,
	})
	if err != nil {
		return fmt.Errorf("%w: opening %s database: %w", ErrConnection, dialect.Name(), err)
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return fmt.Errorf("getting underlying db: %w", err)
	}

	// SQLite serializes writers anyway; a single connection also keeps
	// in-memory databases consistent across statements.
	if dialect.Name() == DriverSQLite {
		sqlDB.SetMaxOpenConns(1)
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := sqlDB.PingContext(pingCtx); err != nil {
		_ = sqlDB.Close()

		return fmt.Errorf("%w: ping: %w", ErrConnection, err)
	}

	if err := gdb.WithContext(ctx).AutoMigrate(&Detail{}); err != nil {
		_ = sqlDB.Close()

		return fmt.Errorf("running migrations: %w", err)
	}

	d.gorm = gdb
	d.dialect = dialect
	d.db = sqlx.NewDb(sqlDB, dialect.DriverName()).Unsafe()

	d.log.WithField("driver", dialect.Name()).Info("Run store connected")

	return nil
}

// Stop closes the underlying database connection.
func (d *DB) Stop() error {
	if d.gorm == nil {
		return nil
	}

	sqlDB, err := d.gorm.DB()
	if err != nil {
		return fmt.Errorf("getting underlying db: %w", err)
	}

	return sqlDB.Close()
}

// Dialect returns the configured dialect. It is nil only when the driver
// is unsupported.
func (d *DB) Dialect() Dialect {
	return d.dialect
}

// Exec runs a write statement.
func (d *DB) Exec(
	ctx context.Context, query string, params map[string]any,
) (int64, error) {
	bound, args, err := d.bind(query, params)
	if err != nil {
		return 0, err
	}

	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	res, err := d.db.ExecContext(ctx, bound, args...)
	err = d.translate(err)
	observe(d.dialect.Name(), "exec", start, err)

	if err != nil {
		return 0, err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reading affected rows: %w", err)
	}

	return affected, nil
}

// Select runs a query and scans every row into dest.
func (d *DB) Select(
	ctx context.Context, dest any, query string, params map[string]any,
) error {
	bound, args, err := d.bind(query, params)
	if err != nil {
		return err
	}

	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	err = d.translate(d.db.SelectContext(ctx, dest, bound, args...))
	observe(d.dialect.Name(), "select", start, err)

	return err
}

// Get runs a query and scans the first row into dest.
func (d *DB) Get(
	ctx context.Context, dest any, query string, params map[string]any,
) error {
	bound, args, err := d.bind(query, params)
	if err != nil {
		return err
	}

	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	err = d.db.GetContext(ctx, dest, bound, args...)

	if errors.Is(err, sql.ErrNoRows) {
		observe(d.dialect.Name(), "get", start, nil)

		return fmt.Errorf("get: %w", err)
	}

	err = d.translate(err)
	observe(d.dialect.Name(), "get", start, err)

	return err
}

// Escape doubles single quotes, and doubles colons so that the named
// parameter compiler does not mistake literal text for a placeholder.
func (d *DB) Escape(raw string) string {
	escaped := strings.ReplaceAll(raw, "'", "''")

	return strings.ReplaceAll(escaped, ":", "::")
}

// Quote returns raw as an escaped string literal.
func (d *DB) Quote(raw string) string {
	return "'" + d.Escape(raw) + "'"
}

func (d *DB) bind(query string, params map[string]any) (string, []any, error) {
	if d.db == nil {
		return "", nil, fmt.Errorf("%w: store not started", ErrConnection)
	}

	if params == nil {
		params = map[string]any{}
	}

	bound, args, err := d.db.BindNamed(query, params)
	if err != nil {
		return "", nil, fmt.Errorf("binding named parameters: %w", err)
	}

	return bound, args, nil
}

func (d *DB) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if d.cfg.QueryTimeout <= 0 {
		return ctx, func() {}
	}

	return context.WithTimeout(ctx, d.cfg.QueryTimeout)
}

// translate maps driver errors onto the package's sentinel errors while
// keeping the original error in the chain.
func (d *DB) translate(err error) error {
	if err == nil {
		return nil
	}

	var netErr net.Error

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	case d.dialect.IsUniqueViolation(err):
		return fmt.Errorf("%w: %w", ErrIntegrityViolation, err)
	case errors.Is(err, driver.ErrBadConn),
		errors.Is(err, sql.ErrConnDone),
		errors.As(err, &netErr),
		d.dialect.IsConnectionError(err):
		return fmt.Errorf("%w: %w", ErrConnection, err)
	default:
		return err
	}
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrIntegrityViolation):
		return "integrity"
	case errors.Is(err, ErrConnection):
		return "connection"
	default:
		return "other"
	}
}
