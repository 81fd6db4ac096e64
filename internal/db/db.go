package db

import (
	"fmt"
	"net/url"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// Supported drivers.
const (
	DriverSQLite = "sqlite"
	DriverPgx    = "pgx"
)

func init() {
	sqlx.BindDriver(DriverSQLite, sqlx.QUESTION)
}

// SQLiteDSN builds a DSN for path with the pragmas the store relies on.
// Transactions start with BEGIN IMMEDIATE so ledger writes serialize.
func SQLiteDSN(path string) string {
	q := url.Values{}
	q.Add("_pragma", "busy_timeout(5000)")
	q.Add("_pragma", "foreign_keys(1)")
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", "synchronous(NORMAL)")
	q.Set("_txlock", "immediate")
	q.Set("_time_format", "sqlite")
	return "file:" + path + "?" + q.Encode()
}

// Open opens a database connection. For sqlite, dsn may be a plain file path.
func Open(driver, dsn string) (*sqlx.DB, error) {
	switch driver {
	case DriverSQLite:
		if len(dsn) < 5 || dsn[:5] != "file:" {
			dsn = SQLiteDSN(dsn)
		}
	case DriverPgx:
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	return db, nil
}
