package logging

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"time"

	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// ServiceName identifies clustermap in log sinks
const ServiceName = "clustermap"

// Outputs selects where log records go besides the console.
type Outputs struct {
	// File receives text records. When set, the console stays quiet.
	File io.Writer
	// Graylog receives JSON records, typically a GELF writer.
	Graylog io.Writer
	// Provider bridges records to OpenTelemetry when non-nil.
	Provider *sdklog.LoggerProvider
	// Context adds attributes to every record, such as the active map.
	Context ContextProvider
}

// SlogManager manages slog-based logging with optional OTel integration.
type SlogManager struct {
	logger *slog.Logger

	// OTel provider for flushing
	logProvider *sdklog.LoggerProvider
}

// NewSlogManager creates a new slog-based logging manager.
func NewSlogManager() *SlogManager {
	return &SlogManager{}
}

// parseLevel converts a string log level to slog.Level.
func parseLevel(level string) slog.Level {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Setup initializes the logging system. Calling it again replaces the logger.
func (m *SlogManager) Setup(level string, out Outputs) {
	lvl := parseLevel(level)
	m.logProvider = out.Provider

	// Common handler options with RFC3339 time formatting
	handlerOpts := &slog.HandlerOptions{
		Level: lvl,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				if t, ok := a.Value.Any().(time.Time); ok {
					a.Value = slog.StringValue(t.UTC().Format(time.RFC3339))
				}
			}
			return a
		},
	}

	fanout := NewFanout(out, handlerOpts)
	var handler slog.Handler = fanout
	if out.Context != nil {
		handler = NewContextHandler(handler, out.Context)
	}

	m.logger = slog.New(handler)
	m.logger.Info("Logging initialized", "level", level, "sinks", fanout.Sinks())
}

// Logger returns the configured slog.Logger.
func (m *SlogManager) Logger() *slog.Logger {
	if m.logger == nil {
		// Return a default logger if Setup hasn't been called
		return slog.Default()
	}
	return m.logger
}

// Flush forces a flush of OTel logs if available.
func (m *SlogManager) Flush(ctx context.Context) error {
	if m.logProvider != nil {
		return m.logProvider.ForceFlush(ctx)
	}
	return nil
}
