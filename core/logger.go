package core

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// ProductionLogger is the default Logger implementation, backed by zerolog.
//
// Output format follows LoggingConfig.Format:
//   - "json": one structured JSON object per line (for log aggregation)
//   - "text": human-readable console output (for local development)
//
// The logger is safe for concurrent use; zerolog loggers are immutable values.
type ProductionLogger struct {
	logger    zerolog.Logger
	service   string
	component string
}

// NewProductionLogger creates a logger from the logging configuration.
// Unknown levels fall back to "info".
func NewProductionLogger(cfg LoggingConfig, serviceName string) *ProductionLogger {
	return newProductionLogger(cfg, serviceName, resolveOutput(cfg.Output))
}

// NewProductionLoggerWithWriter creates a logger that writes to w. Mostly useful in tests.
func NewProductionLoggerWithWriter(cfg LoggingConfig, serviceName string, w io.Writer) *ProductionLogger {
	return newProductionLogger(cfg, serviceName, w)
}

func newProductionLogger(cfg LoggingConfig, serviceName string, w io.Writer) *ProductionLogger {
	if w == nil {
		w = os.Stdout
	}
	if strings.EqualFold(cfg.Format, "text") {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339, NoColor: true}
	}

	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(cfg.Level)))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	zl := zerolog.New(w).Level(level).With().Timestamp().Str("service", serviceName).Logger()
	return &ProductionLogger{logger: zl, service: serviceName}
}

func resolveOutput(output string) io.Writer {
	switch strings.ToLower(output) {
	case "stderr":
		return os.Stderr
	default:
		return os.Stdout
	}
}

// WithComponent returns a child logger tagging every entry with the component name.
func (p *ProductionLogger) WithComponent(component string) Logger {
	return &ProductionLogger{
		logger:    p.logger.With().Str("component", component).Logger(),
		service:   p.service,
		component: component,
	}
}

func (p *ProductionLogger) Info(msg string, fields map[string]interface{}) {
	p.logger.Info().Fields(fields).Msg(msg)
}

func (p *ProductionLogger) Warn(msg string, fields map[string]interface{}) {
	p.logger.Warn().Fields(fields).Msg(msg)
}

func (p *ProductionLogger) Error(msg string, fields map[string]interface{}) {
	p.logger.Error().Fields(fields).Msg(msg)
}

func (p *ProductionLogger) Debug(msg string, fields map[string]interface{}) {
	p.logger.Debug().Fields(fields).Msg(msg)
}

// ComponentLogger returns a component-scoped logger when the given logger supports it,
// and the logger itself otherwise.
func ComponentLogger(logger Logger, component string) Logger {
	if logger == nil {
		return &NoOpLogger{}
	}
	if scoped, ok := logger.(interface{ WithComponent(string) Logger }); ok {
		return scoped.WithComponent(component)
	}
	return logger
}
