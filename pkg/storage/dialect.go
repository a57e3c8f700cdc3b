package storage

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

const (
	// DriverSQLite selects the embedded SQLite backend.
	DriverSQLite = "sqlite"
	// DriverPostgres selects the PostgreSQL backend.
	DriverPostgres = "postgres"

	secondsPerDay = 86400
)

// Dialect hides the SQL differences between the supported backends.
type Dialect interface {
	// Name is the configuration value selecting this dialect.
	Name() string
	// DriverName is the sqlx driver name, which decides the placeholder style.
	DriverName() string
	// UnixTimestamp renders column as integer epoch seconds.
	UnixTimestamp(column string) string
	// DateSub renders the epoch-seconds instant days before now.
	DateSub(days int) string
	// BindBinary prepares a payload for a binary-safe bind.
	BindBinary(data []byte) any
	// IsUniqueViolation reports whether err is a unique-key violation.
	IsUniqueViolation(err error) bool
	// IsConnectionError reports whether err means the backend is unreachable.
	IsConnectionError(err error) bool
}

// DialectFor returns the dialect registered under driver.
func DialectFor(driver string) (Dialect, error) {
	switch driver {
	case DriverSQLite:
		return sqliteDialect{}, nil
	case DriverPostgres:
		return postgresDialect{}, nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", driver)
	}
}

type sqliteDialect struct{}

func (sqliteDialect) Name() string { return DriverSQLite }

// DriverName uses the sqlite3 name so sqlx emits "?" placeholders.
func (sqliteDialect) DriverName() string { return "sqlite3" }

func (sqliteDialect) UnixTimestamp(column string) string {
	return fmt.Sprintf("CAST(%s AS INTEGER)", column)
}

func (sqliteDialect) DateSub(days int) string {
	return fmt.Sprintf(
		"(CAST(strftime('%%s', 'now') AS INTEGER) - %d)", days*secondsPerDay,
	)
}

// BindBinary binds the payload as a BLOB. A nil slice would be stored as
// NULL, so it is replaced by an empty one.
func (sqliteDialect) BindBinary(data []byte) any {
	if data == nil {
		return []byte{}
	}

	return data
}

func (sqliteDialect) IsUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func (sqliteDialect) IsConnectionError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "unable to open database file")
}

type postgresDialect struct{}

func (postgresDialect) Name() string { return DriverPostgres }

// DriverName uses the pgx name so sqlx emits "$n" placeholders.
func (postgresDialect) DriverName() string { return "pgx" }

func (postgresDialect) UnixTimestamp(column string) string {
	return fmt.Sprintf("CAST(%s AS BIGINT)", column)
}

func (postgresDialect) DateSub(days int) string {
	return fmt.Sprintf(
		"CAST(EXTRACT(EPOCH FROM NOW() - INTERVAL '%d days') AS BIGINT)", days,
	)
}

// BindBinary binds the payload as bytea; pgx encodes []byte in binary format.
func (postgresDialect) BindBinary(data []byte) any {
	if data == nil {
		return []byte{}
	}

	return data
}

func (postgresDialect) IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError

	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func (postgresDialect) IsConnectionError(err error) bool {
	var connErr *pgconn.ConnectError

	return errors.As(err, &connErr)
}
