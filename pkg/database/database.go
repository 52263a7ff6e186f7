// Package database opens the relational store used by the platform. PostgreSQL,
// MySQL and TiDB are supported; TiDB speaks the MySQL wire protocol.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
)

// Dialect names a supported SQL backend.
type Dialect string

// Supported dialects.
const (
	Postgres Dialect = "postgres"
	MySQL    Dialect = "mysql"
	TiDB     Dialect = "tidb"
)

const defaultPingTimeout = 5 * time.Second

// ParseDialect validates a configured dialect name. Empty means postgres.
func ParseDialect(name string) (Dialect, error) {
	switch Dialect(name) {
	case "", Postgres:
		return Postgres, nil
	case MySQL:
		return MySQL, nil
	case TiDB:
		return TiDB, nil
	default:
		return "", fmt.Errorf("unsupported database dialect %q", name)
	}
}

// DriverName returns the database/sql driver registered for the dialect.
func (d Dialect) DriverName() string {
	if d.MySQLCompatible() {
		return "mysql"
	}
	return "postgres"
}

// MySQLCompatible reports whether the dialect uses the MySQL protocol and SQL flavor.
func (d Dialect) MySQLCompatible() bool {
	return d == MySQL || d == TiDB
}

// Builder returns a squirrel statement builder with the dialect's placeholders.
func (d Dialect) Builder() sq.StatementBuilderType {
	if d.MySQLCompatible() {
		return sq.StatementBuilder.PlaceholderFormat(sq.Question)
	}
	return sq.StatementBuilder.PlaceholderFormat(sq.Dollar)
}

// Config configures the connection pool.
type Config struct {
	Dialect      Dialect
	DSN          string
	MaxOpenConns int
}

// Open opens and pings a database connection pool.
func Open(ctx context.Context, cfg Config) (*sql.DB, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database dsn is required")
	}
	dsn := cfg.DSN
	if cfg.Dialect.MySQLCompatible() {
		var err error
		if dsn, err = normalizeMySQLDSN(dsn); err != nil {
			return nil, err
		}
	}
	db, err := sql.Open(cfg.Dialect.DriverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("opening %s database: %w", cfg.Dialect, err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
		db.SetMaxIdleConns(cfg.MaxOpenConns / 2)
	}
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pinging %s database: %w", cfg.Dialect, err)
	}
	return db, nil
}

// normalizeMySQLDSN enables the driver options the stores rely on: DATETIME
// columns scan into time.Time, and UPDATE reports matched rather than changed
// rows so an unchanged row is not mistaken for a missing one.
func normalizeMySQLDSN(dsn string) (string, error) {
	mc, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("parsing mysql dsn: %w", err)
	}
	mc.ParseTime = true
	mc.ClientFoundRows = true
	if mc.Loc == nil {
		mc.Loc = time.UTC
	}
	return mc.FormatDSN(), nil
}

// postgres unique_violation
const pqUniqueViolation = "23505"

// mysql ER_DUP_ENTRY
const mysqlDuplicateEntry = 1062

// IsUniqueViolation reports whether err is a unique constraint violation from
// either supported driver.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == pqUniqueViolation
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == mysqlDuplicateEntry
	}
	return false
}
