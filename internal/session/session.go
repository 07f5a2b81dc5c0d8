// Package session tracks the map currently served: its stored name and the
// controller rendering it.
package session

import (
	"log/slog"
	"sync"

	"github.com/OCAP2/clustermap/pkg/clustermap"
)

// Context holds the active map
type Context struct {
	mu         sync.RWMutex
	name       string
	controller *clustermap.Controller
}

// NewContext creates an empty Context
func NewContext() *Context {
	return &Context{}
}

// Name returns the name of the active map, "" when none is loaded
func (sc *Context) Name() string {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.name
}

// Controller returns the active controller, or nil
func (sc *Context) Controller() *clustermap.Controller {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.controller
}

// Set replaces the active map and returns the previous controller, which the
// caller is expected to destroy.
func (sc *Context) Set(name string, c *clustermap.Controller) *clustermap.Controller {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	prev := sc.controller
	sc.name = name
	sc.controller = c
	return prev
}

// LogAttrs describes the active map for log records. It reads the marker
// count without synchronizing with the controller, so the value may lag.
func (sc *Context) LogAttrs() []slog.Attr {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	if sc.controller == nil {
		return nil
	}
	return []slog.Attr{
		slog.String("map", sc.name),
		slog.Int("markers", sc.controller.Len()),
	}
}
