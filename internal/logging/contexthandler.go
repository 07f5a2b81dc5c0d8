package logging

import (
	"context"
	"log/slog"
	"maps"
)

// ContextProvider returns attributes evaluated at log time, e.g. the name of
// the served map and its current marker count.
type ContextProvider func() []slog.Attr

// ContextHandler appends the provider's attributes to every record. A key the
// caller already set wins, so a line about loading map "b" keeps map=b while
// map "a" is still being served.
type ContextHandler struct {
	inner    slog.Handler
	provider ContextProvider
	// keys added through WithAttrs
	bound map[string]bool
}

func NewContextHandler(inner slog.Handler, provider ContextProvider) *ContextHandler {
	return &ContextHandler{inner: inner, provider: provider}
}

func (h *ContextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.provider == nil {
		return h.inner.Handle(ctx, r)
	}
	attrs := h.provider()
	if len(attrs) == 0 {
		return h.inner.Handle(ctx, r)
	}

	taken := maps.Clone(h.bound)
	if taken == nil {
		taken = make(map[string]bool)
	}
	r.Attrs(func(a slog.Attr) bool {
		taken[a.Key] = true
		return true
	})
	for _, a := range attrs {
		if !taken[a.Key] {
			r.AddAttrs(a)
		}
	}
	return h.inner.Handle(ctx, r)
}

func (h *ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	bound := maps.Clone(h.bound)
	if bound == nil {
		bound = make(map[string]bool, len(attrs))
	}
	for _, a := range attrs {
		bound[a.Key] = true
	}
	return &ContextHandler{inner: h.inner.WithAttrs(attrs), provider: h.provider, bound: bound}
}

func (h *ContextHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &ContextHandler{inner: h.inner.WithGroup(name), provider: h.provider, bound: h.bound}
}
