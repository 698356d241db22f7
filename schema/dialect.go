package schema

import (
	"fmt"
	"strings"
)

// Dialect selects the catalog queries used by SQLInspector.
type Dialect string

const (
	DialectPostgres  Dialect = "postgres"
	DialectMySQL     Dialect = "mysql"
	DialectSQLServer Dialect = "sqlserver"
	DialectSQLite    Dialect = "sqlite"
)

// DialectForDriver maps a database/sql driver name to its catalog dialect.
func DialectForDriver(driver string) (Dialect, error) {
	switch strings.ToLower(driver) {
	case "postgres", "postgresql", "pgx":
		return DialectPostgres, nil
	case "mysql", "mariadb":
		return DialectMySQL, nil
	case "sqlserver", "mssql":
		return DialectSQLServer, nil
	case "sqlite", "sqlite3":
		return DialectSQLite, nil
	default:
		return "", fmt.Errorf("unsupported database driver %q", driver)
	}
}

// tablesQuery returns the query listing user tables. The single bind
// parameter is the schema filter; an empty string matches every schema.
func (d Dialect) tablesQuery() string {
	switch d {
	case DialectPostgres:
		return `
			SELECT table_name
			FROM information_schema.tables
			WHERE table_type = 'BASE TABLE'
			  AND table_schema NOT IN ('pg_catalog', 'information_schema')
			  AND ($1::text = '' OR table_schema = $1::text)
			ORDER BY table_name`
	case DialectMySQL:
		return `
			SELECT table_name
			FROM information_schema.tables
			WHERE table_type = 'BASE TABLE'
			  AND table_schema NOT IN ('mysql', 'information_schema', 'performance_schema', 'sys')
			  AND (? = '' OR table_schema = ?)
			ORDER BY table_name`
	case DialectSQLServer:
		return `
			SELECT name AS table_name
			FROM sys.tables
			WHERE is_ms_shipped = 0
			  AND (@p1 = '' OR SCHEMA_NAME(schema_id) = @p1)
			ORDER BY name`
	case DialectSQLite:
		return `
			SELECT name
			FROM sqlite_master
			WHERE type = 'table'
			  AND name NOT LIKE 'sqlite_%'
			  AND (? = '' OR ? = 'main')
			ORDER BY name`
	default:
		return ""
	}
}

// tablesArgs expands the schema filter to the dialect's placeholder count.
func (d Dialect) tablesArgs(schemaName string) []interface{} {
	switch d {
	case DialectMySQL, DialectSQLite:
		return []interface{}{schemaName, schemaName}
	default:
		return []interface{}{schemaName}
	}
}

// columnsQuery returns the query listing the columns of one table in ordinal
// order. Each row is (name, type, nullable, primary_key).
func (d Dialect) columnsQuery() string {
	switch d {
	case DialectPostgres:
		return `
			SELECT
				c.column_name,
				c.data_type,
				c.is_nullable = 'YES' AS is_nullable,
				COALESCE(bool_or(tc.constraint_type = 'PRIMARY KEY'), false) AS is_primary
			FROM information_schema.columns c
			LEFT JOIN information_schema.key_column_usage kcu
				ON c.table_name = kcu.table_name
				AND c.table_schema = kcu.table_schema
				AND c.column_name = kcu.column_name
			LEFT JOIN information_schema.table_constraints tc
				ON kcu.constraint_name = tc.constraint_name
				AND tc.constraint_type = 'PRIMARY KEY'
			WHERE c.table_name = $1
			GROUP BY c.column_name, c.data_type, c.is_nullable, c.ordinal_position
			ORDER BY c.ordinal_position`
	case DialectMySQL:
		return `
			SELECT
				column_name,
				data_type,
				is_nullable = 'YES' AS is_nullable,
				column_key = 'PRI' AS is_primary
			FROM information_schema.columns
			WHERE table_name = ?
			  AND table_schema = DATABASE()
			ORDER BY ordinal_position`
	case DialectSQLServer:
		return `
			SELECT
				c.name AS column_name,
				t.name AS data_type,
				c.is_nullable,
				CAST(ISNULL(pk.is_primary_key, 0) AS bit) AS is_primary
			FROM sys.columns c
			JOIN sys.types t ON c.user_type_id = t.user_type_id
			JOIN sys.tables tbl ON c.object_id = tbl.object_id
			LEFT JOIN (
				SELECT ic.object_id, ic.column_id, 1 AS is_primary_key
				FROM sys.index_columns ic
				JOIN sys.indexes i ON ic.object_id = i.object_id AND ic.index_id = i.index_id
				WHERE i.is_primary_key = 1
			) pk ON c.object_id = pk.object_id AND c.column_id = pk.column_id
			WHERE tbl.name = @p1
			ORDER BY c.column_id`
	case DialectSQLite:
		return `
			SELECT name, type, "notnull" = 0 AS is_nullable, pk > 0 AS is_primary
			FROM pragma_table_info(?)
			ORDER BY cid`
	default:
		return ""
	}
}
