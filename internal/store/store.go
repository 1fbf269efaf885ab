package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jmoiron/sqlx"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// Store persists textgate's entities: users, API keys, usage logs, and
// settings. It supports an embedded SQLite database (the default) as well
// as PostgreSQL and MySQL backends.
type Store struct {
	db     *sqlx.DB
	driver string
}

// New opens a store for the given driver and DSN and runs migrations.
//
// Drivers:
//   - "sqlite": dsn is a data directory; the database file is created
//     inside it. Pass an empty string for an in-memory database.
//   - "postgres": dsn is a pgx connection string.
//   - "mysql": dsn is a go-sql-driver DSN; parseTime is enforced.
func New(driver, dsn string) (*Store, error) {
	var (
		db  *sqlx.DB
		err error
	)

	switch driver {
	case "", "sqlite":
		driver = "sqlite"
		var sqliteDSN string
		if dsn == "" {
			sqliteDSN = ":memory:?_journal_mode=WAL"
		} else {
			if err := os.MkdirAll(dsn, 0755); err != nil {
				return nil, fmt.Errorf("create data dir: %w", err)
			}
			sqliteDSN = filepath.Join(dsn, "textgate.db") + "?_journal_mode=WAL&_busy_timeout=5000"
		}
		db, err = sqlx.Connect("sqlite", sqliteDSN)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		db.SetMaxOpenConns(1) // SQLite doesn't support concurrent writes
		if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
			return nil, fmt.Errorf("enable foreign keys: %w", err)
		}

	case "postgres":
		db, err = sqlx.Connect("pgx", dsn)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}

	case "mysql":
		if !strings.Contains(dsn, "parseTime") {
			if strings.Contains(dsn, "?") {
				dsn += "&parseTime=true"
			} else {
				dsn += "?parseTime=true"
			}
		}
		db, err = sqlx.Connect("mysql", dsn)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}

	default:
		return nil, fmt.Errorf("unsupported store driver %q (use sqlite, postgres, or mysql)", driver)
	}

	s := &Store{db: db, driver: driver}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies database connectivity, used by the readiness probe.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Driver returns the active driver name.
func (s *Store) Driver() string {
	return s.driver
}

// rebind translates ?-style placeholders into the driver's bindvar format.
func (s *Store) rebind(query string) string {
	return s.db.Rebind(query)
}

// namedInsert runs a named INSERT and returns the generated row id. Postgres
// has no LastInsertId, so the query gains a RETURNING clause there.
func (s *Store) namedInsert(ctx context.Context, query string, arg interface{}) (int64, error) {
	if s.driver == "postgres" {
		rows, err := s.db.NamedQueryContext(ctx, query+" RETURNING id", arg)
		if err != nil {
			return 0, err
		}
		defer rows.Close()
		var id int64
		if !rows.Next() {
			return 0, fmt.Errorf("insert returned no id")
		}
		if err := rows.Scan(&id); err != nil {
			return 0, err
		}
		return id, rows.Err()
	}

	result, err := s.db.NamedExecContext(ctx, query, arg)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}
