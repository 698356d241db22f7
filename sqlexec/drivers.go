package sqlexec

import (
	"database/sql"
	"fmt"
	"strings"

	// Drivers registered for the supported dialects
	_ "github.com/denisenkom/go-mssqldb"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// DriverName maps a configured driver alias to its registered database/sql name.
func DriverName(alias string) (string, error) {
	switch strings.ToLower(alias) {
	case "postgres", "postgresql":
		return "postgres", nil
	case "pgx":
		return "pgx", nil
	case "mysql", "mariadb":
		return "mysql", nil
	case "sqlserver", "mssql":
		return "sqlserver", nil
	case "sqlite", "sqlite3":
		return "sqlite", nil
	default:
		return "", fmt.Errorf("unsupported database driver %q", alias)
	}
}

// Open opens and pings a database using a driver alias.
// The pool is sized for read-mostly access by concurrent synthesis tasks.
func Open(alias, dsn string) (*sql.DB, error) {
	name, err := DriverName(alias)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(name, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open connection: %w", err)
	}

	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(4)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, &Error{Kind: KindConnection, Message: fmt.Sprintf("failed to ping database: %v", err), Driver: name, Err: err}
	}
	return db, nil
}
