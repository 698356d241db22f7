package core

import "time"

// Environment Variables
const (
	EnvConfigFile = "QUERYSYNTH_CONFIG" // Optional JSON or YAML configuration file
	EnvRedisURL   = "REDIS_URL"         // Redis connection URL for the schema cache
	EnvNATSURL    = "NATS_URL"          // NATS server for progress events
	EnvDevMode    = "DEV_MODE"          // Development mode flag (text logs, debug level)
)

// Redis Cache Defaults
const (
	// DefaultRedisPrefix is the default key prefix for schema cache entries in Redis
	// Format: <prefix><data-source>:<kind>[:<table>]
	// Example: querysynth:schema:reports:tables
	DefaultRedisPrefix = "querysynth:schema:"

	// DefaultSchemaCacheTTL is the default TTL for cached schema metadata in Redis.
	// Table layouts change more often than tool schemas, so keep this short.
	DefaultSchemaCacheTTL = time.Hour
)

// Resource pool keys. These are the only keys the synthesis loop writes.
const (
	KeyAvailableTables = "schema_available_tables"
	KeyColumnDetails   = "column_details"
	KeyCurrentQuery    = "current_sql"
	KeySelectedTables  = "selected_tables"
	KeyLastExecution   = "last_execution"
)
