package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	querysynth "github.com/itsneelabh/querysynth"
	"github.com/itsneelabh/querysynth/ai"
	"github.com/itsneelabh/querysynth/core"
	"github.com/itsneelabh/querysynth/orchestration"
	"github.com/itsneelabh/querysynth/progress"
	"github.com/itsneelabh/querysynth/reasoning"
	"github.com/itsneelabh/querysynth/resilience"
	"github.com/itsneelabh/querysynth/schema"
	"github.com/itsneelabh/querysynth/sqlexec"
	"github.com/itsneelabh/querysynth/telemetry"

	// Register the LLM providers
	_ "github.com/itsneelabh/querysynth/ai/providers/anthropic"
	_ "github.com/itsneelabh/querysynth/ai/providers/bedrock"
	_ "github.com/itsneelabh/querysynth/ai/providers/openai"
)

// globalFlags are shared by every subcommand. Empty values leave the
// file and environment configuration untouched.
type globalFlags struct {
	configFile     string
	dataSource     string
	driver         string
	dsn            string
	dbSchema       string
	provider       string
	model          string
	contextMode    string
	selection      string
	maxFixAttempts int
	maxIterations  int
	redisURL       string
	natsURL        string
	telemetry      bool
	otlpEndpoint   string
	logLevel       string
	logFormat      string
}

var flags globalFlags

func bindGlobalFlags(cmd *cobra.Command) {
	pf := cmd.PersistentFlags()
	pf.StringVarP(&flags.configFile, "config", "c", "", "configuration file (JSON or YAML)")
	pf.StringVar(&flags.dataSource, "data-source", "main", "logical name of the data source")
	pf.StringVar(&flags.driver, "driver", "", "database driver: postgres, pgx, mysql, sqlserver, sqlite")
	pf.StringVar(&flags.dsn, "dsn", "", "database connection string")
	pf.StringVar(&flags.dbSchema, "db-schema", "", "restrict table listing to one database schema")
	pf.StringVar(&flags.provider, "provider", "", "LLM provider: openai, anthropic, bedrock, auto")
	pf.StringVar(&flags.model, "model", "", "LLM model name")
	pf.StringVar(&flags.contextMode, "mode", "", "context mode: curated or full")
	pf.StringVar(&flags.selection, "selection", "", "table selection: keyword, reasoning or hybrid")
	pf.IntVar(&flags.maxFixAttempts, "max-fix-attempts", 0, "repair budget per task")
	pf.IntVar(&flags.maxIterations, "max-iterations", 0, "iteration ceiling per task")
	pf.StringVar(&flags.redisURL, "redis", "", "Redis URL for the schema cache")
	pf.StringVar(&flags.natsURL, "nats", "", "NATS URL for progress events")
	pf.BoolVar(&flags.telemetry, "trace", false, "enable tracing")
	pf.StringVar(&flags.otlpEndpoint, "otlp-endpoint", "", "OTLP gRPC endpoint; stdout when empty")
	pf.StringVar(&flags.logLevel, "log-level", "", "log level: debug, info, warn, error")
	pf.StringVar(&flags.logFormat, "log-format", "", "log format: json or text")
}

// loadConfig layers defaults, environment, the config file and flags.
func loadConfig() (*core.Config, error) {
	var opts []core.Option
	if flags.configFile != "" {
		opts = append(opts, core.WithConfigFile(flags.configFile))
	}
	if flags.driver != "" || flags.dsn != "" {
		opts = append(opts, func(c *core.Config) error {
			if flags.driver != "" {
				c.Database.Driver = flags.driver
			}
			if flags.dsn != "" {
				c.Database.DSN = flags.dsn
			}
			return nil
		})
	}
	if flags.dbSchema != "" {
		opts = append(opts, func(c *core.Config) error {
			c.Database.Schema = flags.dbSchema
			return nil
		})
	}
	opts = append(opts, core.WithAI(flags.provider, flags.model, ""))
	if flags.contextMode != "" {
		opts = append(opts, core.WithContextMode(flags.contextMode))
	}
	if flags.selection != "" {
		opts = append(opts, core.WithSelectionStrategy(flags.selection))
	}
	if flags.maxFixAttempts > 0 {
		opts = append(opts, core.WithMaxFixAttempts(flags.maxFixAttempts))
	}
	if flags.maxIterations > 0 {
		opts = append(opts, core.WithMaxIterations(flags.maxIterations))
	}
	if flags.redisURL != "" {
		opts = append(opts, core.WithSchemaCache(flags.redisURL, 0))
	}
	if flags.natsURL != "" {
		opts = append(opts, core.WithNATSProgress(flags.natsURL, ""))
	}
	if flags.telemetry {
		opts = append(opts, core.WithTelemetry(true, flags.otlpEndpoint))
	}
	if flags.logLevel != "" {
		opts = append(opts, core.WithLogLevel(flags.logLevel))
	}
	if flags.logFormat != "" {
		opts = append(opts, core.WithLogFormat(flags.logFormat))
	}
	return core.NewConfig(opts...)
}

// runtime is everything a command needs, opened from one configuration.
type runtime struct {
	cfg       *core.Config
	logger    *core.ProductionLogger
	db        *sql.DB
	inspector schema.Inspector
	sandbox   *sqlexec.SQLSandbox
	cache     *schema.RedisCache
	tracing   *telemetry.Provider
}

// openRuntime opens the database side. Commands that synthesize also call withReasoning.
func openRuntime(ctx context.Context) (*runtime, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger := core.NewProductionLogger(cfg.Logging, cfg.Name)
	rt := &runtime{cfg: cfg, logger: logger}

	if cfg.Telemetry.Enabled {
		tp, err := telemetry.Setup(ctx, cfg.Telemetry, telemetry.WithServiceVersion(querysynth.Version))
		if err != nil {
			return nil, err
		}
		rt.tracing = tp
		logger.Info("Tracing enabled", map[string]interface{}{
			"operation": "startup",
			"exporter":  tp.Exporter(),
		})
	}

	if cfg.Database.DSN == "" {
		rt.close()
		return nil, &core.FrameworkError{Op: "openRuntime", Kind: "config", Message: "database DSN is required (--dsn or QUERYSYNTH_DB_DSN)", Err: core.ErrMissingConfiguration}
	}
	driver, err := sqlexec.DriverName(cfg.Database.Driver)
	if err != nil {
		rt.close()
		return nil, err
	}
	dialect, err := schema.DialectForDriver(driver)
	if err != nil {
		rt.close()
		return nil, err
	}
	db, err := sqlexec.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		rt.close()
		return nil, err
	}
	rt.db = db

	sqlInspector := schema.NewSQLInspector(db, dialect,
		schema.WithDataSourceName(flags.dataSource),
		schema.WithSchemaName(cfg.Database.Schema),
	)
	sqlInspector.SetLogger(logger)
	rt.inspector = sqlInspector

	if cfg.Cache.Enabled && cfg.Cache.RedisURL != "" {
		cache, err := schema.NewRedisCacheFromURL(cfg.Cache.RedisURL,
			schema.WithTTL(cfg.Cache.TTL),
			schema.WithPrefix(cfg.Cache.Prefix),
		)
		if err != nil {
			logger.Warn("Schema cache disabled", map[string]interface{}{
				"operation": "startup",
				"error":     err.Error(),
			})
		} else {
			rt.cache = cache
			cached := schema.NewCachedInspector(sqlInspector, cache)
			cached.SetLogger(logger)
			rt.inspector = cached
		}
	}

	rt.sandbox = sqlexec.NewSQLSandbox(db, driver,
		sqlexec.WithSandboxDataSource(flags.dataSource),
		sqlexec.WithMaxRows(cfg.Database.MaxRows),
	)
	rt.sandbox.SetLogger(logger)

	logger.Info("Data source ready", map[string]interface{}{
		"operation":   "startup",
		"data_source": flags.dataSource,
		"driver":      driver,
		"cached":      rt.cache != nil,
	})
	return rt, nil
}

// reasoner builds the LLM-backed reasoning service behind a circuit breaker.
func (rt *runtime) reasoner() (reasoning.Service, error) {
	client, err := ai.NewClientFromConfig(rt.cfg.AI, rt.cfg.Timeouts.Reasoning, rt.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create AI client: %w", err)
	}

	cbConfig := resilience.DefaultCircuitBreakerConfig("reasoning")
	cbConfig.Logger = rt.logger
	cb, err := resilience.NewCircuitBreaker(cbConfig)
	if err != nil {
		return nil, err
	}

	svc := reasoning.NewLLMService(client,
		reasoning.WithCircuitBreaker(cb),
		reasoning.WithModel(rt.cfg.AI.Model),
		reasoning.WithTemperature(rt.cfg.AI.Temperature),
		reasoning.WithMaxTokens(rt.cfg.AI.MaxTokens),
	)
	svc.SetLogger(rt.logger)
	return svc, nil
}

// orchestrator wires the synthesis loop and, when configured, progress publishing.
func (rt *runtime) orchestrator() (*orchestration.Orchestrator, *progress.Reporter, error) {
	svc, err := rt.reasoner()
	if err != nil {
		return nil, nil, err
	}

	o, err := orchestration.CreateOrchestrator(orchestration.ConfigFromCore(rt.cfg), orchestration.Dependencies{
		Inspector: rt.inspector,
		Sandbox:   rt.sandbox,
		Reasoner:  svc,
		Logger:    rt.logger,
	})
	if err != nil {
		return nil, nil, err
	}

	var reporter *progress.Reporter
	if rt.cfg.Progress.NATSURL != "" {
		reporter = progress.NewNATSReporter(rt.cfg.Progress.NATSURL, rt.cfg.Progress.Subject, rt.logger)
		reporter.Attach(o)
	}
	return o, reporter, nil
}

func (rt *runtime) close() {
	if rt.cache != nil {
		_ = rt.cache.Close()
	}
	if rt.db != nil {
		_ = rt.db.Close()
	}
	if rt.tracing != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := rt.tracing.Shutdown(ctx); err != nil {
			rt.logger.Warn("Tracer shutdown failed", map[string]interface{}{
				"operation": "shutdown",
				"error":     err.Error(),
			})
		}
	}
}
