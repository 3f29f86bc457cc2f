package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver
	_ "modernc.org/sqlite"             // registers the "sqlite" driver
)

type Dialect string

const (
	DialectMySQL    Dialect = "mysql"
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

func ParseDialect(s string) (Dialect, error) {
	switch d := Dialect(strings.ToLower(strings.TrimSpace(s))); d {
	case DialectMySQL, DialectPostgres, DialectSQLite:
		return d, nil
	case "sqlite3":
		return DialectSQLite, nil
	case "pgx", "postgresql":
		return DialectPostgres, nil
	}
	return "", fmt.Errorf("unsupported database driver %q", s)
}

func (d Dialect) gooseDialect() string {
	if d == DialectSQLite {
		return "sqlite3"
	}
	return string(d)
}

type DBConfig struct {
	Dialect         Dialect
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Open connects and pings the database. MySQL connections always parse
// DATETIME columns into UTC time.Time values.
func Open(ctx context.Context, cfg DBConfig) (*sql.DB, error) {
	var (
		db  *sql.DB
		err error
	)

	switch cfg.Dialect {
	case DialectMySQL:
		mcfg, perr := mysql.ParseDSN(cfg.DSN)
		if perr != nil {
			return nil, fmt.Errorf("parse mysql dsn: %w", perr)
		}
		mcfg.ParseTime = true
		mcfg.Loc = time.UTC
		connector, cerr := mysql.NewConnector(mcfg)
		if cerr != nil {
			return nil, fmt.Errorf("mysql connector: %w", cerr)
		}
		db = sql.OpenDB(connector)
	case DialectPostgres:
		db, err = sql.Open("pgx", cfg.DSN)
	case DialectSQLite:
		db, err = sql.Open("sqlite", cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Dialect)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Dialect, err)
	}

	if cfg.Dialect == DialectSQLite {
		// one connection: sqlite has a single writer, and :memory: databases are per connection
		db.SetMaxOpenConns(1)
	} else {
		if cfg.MaxOpenConns > 0 {
			db.SetMaxOpenConns(cfg.MaxOpenConns)
		}
		if cfg.MaxIdleConns > 0 {
			db.SetMaxIdleConns(cfg.MaxIdleConns)
		}
		if cfg.ConnMaxLifetime > 0 {
			db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
		}
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", cfg.Dialect, err)
	}
	return db, nil
}
