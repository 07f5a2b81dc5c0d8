package logging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"go.opentelemetry.io/contrib/bridges/otelslog"
)

// Names of the sinks a Fanout can write to
const (
	SinkConsole = "console"
	SinkFile    = "file"
	SinkGraylog = "graylog"
	SinkOTel    = "otel"
)

type sink struct {
	name string
	h    slog.Handler
}

// Fanout writes every record to the sinks selected by Outputs. A failing
// sink does not keep the record from the others.
type Fanout struct {
	sinks []sink
}

// NewFanout builds the sinks for out. Text goes to the file, or to stdout
// when there is none. Graylog gets JSON tagged with the service name so its
// stream can be told apart from other senders on the same input.
func NewFanout(out Outputs, opts *slog.HandlerOptions) *Fanout {
	var sinks []sink
	if out.File != nil {
		sinks = append(sinks, sink{SinkFile, slog.NewTextHandler(out.File, opts)})
	} else {
		sinks = append(sinks, sink{SinkConsole, slog.NewTextHandler(os.Stdout, opts)})
	}
	if out.Graylog != nil {
		h := slog.NewJSONHandler(out.Graylog, opts).WithAttrs([]slog.Attr{slog.String("service", ServiceName)})
		sinks = append(sinks, sink{SinkGraylog, h})
	}
	if out.Provider != nil {
		sinks = append(sinks, sink{SinkOTel, otelslog.NewHandler(ServiceName, otelslog.WithLoggerProvider(out.Provider))})
	}
	return &Fanout{sinks: sinks}
}

// Sinks returns the names of the sinks records go to, in write order
func (f *Fanout) Sinks() []string {
	names := make([]string, len(f.sinks))
	for i, s := range f.sinks {
		names[i] = s.name
	}
	return names
}

func (f *Fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, s := range f.sinks {
		if s.h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

// Handle writes r to every enabled sink and joins their errors.
func (f *Fanout) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, s := range f.sinks {
		if !s.h.Enabled(ctx, r.Level) {
			continue
		}
		if err := s.h.Handle(ctx, r.Clone()); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.name, err))
		}
	}
	return errors.Join(errs...)
}

func (f *Fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	return f.with(func(h slog.Handler) slog.Handler { return h.WithAttrs(attrs) })
}

func (f *Fanout) WithGroup(name string) slog.Handler {
	if name == "" {
		return f
	}
	return f.with(func(h slog.Handler) slog.Handler { return h.WithGroup(name) })
}

func (f *Fanout) with(wrap func(slog.Handler) slog.Handler) *Fanout {
	sinks := make([]sink, len(f.sinks))
	for i, s := range f.sinks {
		sinks[i] = sink{s.name, wrap(s.h)}
	}
	return &Fanout{sinks: sinks}
}
