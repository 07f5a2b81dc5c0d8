// Package headless is an in-memory map engine. It keeps the state a browser
// engine would render (view, layers, popups, DOM elements) so maps can be
// built, exported and exercised without a display.
package headless

import (
	"errors"
	"fmt"

	"github.com/OCAP2/clustermap/pkg/core"
	"github.com/OCAP2/clustermap/pkg/engine"
	"github.com/google/uuid"
)

var (
	// ErrContainerNotFound is returned when a map is created for an unknown container
	ErrContainerNotFound = errors.New("map container not found")
	// ErrContainerInUse is returned when a container already holds a map
	ErrContainerInUse = errors.New("map container is already initialized")
)

// Defaults used when no option overrides them
const (
	DefaultMaxZoom       = 18
	DefaultClusterRadius = 80
)

// DefaultViewport is the pixel size of a container
var DefaultViewport = core.Size{Width: 800, Height: 600}

// Option configures an Engine.
type Option func(*Engine)

// WithViewport sets the pixel size used for fitting bounds and clustering
func WithViewport(size core.Size) Option {
	return func(e *Engine) {
		e.viewport = size
	}
}

// WithClusterRadius sets the pixel distance within which markers merge into a cluster
func WithClusterRadius(px float64) Option {
	return func(e *Engine) {
		e.clusterRadius = px
	}
}

// Engine implements engine.Engine in memory. It is not safe for concurrent use.
type Engine struct {
	containers    map[string]*Container
	viewport      core.Size
	clusterRadius float64
}

var _ engine.Engine = (*Engine)(nil)

// New creates an engine with no containers
func New(opts ...Option) *Engine {
	e := &Engine{
		containers:    make(map[string]*Container),
		viewport:      DefaultViewport,
		clusterRadius: DefaultClusterRadius,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// AddContainer registers a placement target. Adding an existing id returns
// the existing container.
func (e *Engine) AddContainer(id string) *Container {
	if c, ok := e.containers[id]; ok {
		return c
	}
	c := newContainer(id)
	e.containers[id] = c
	return c
}

// Container looks up a registered container
func (e *Engine) Container(id string) (*Container, bool) {
	c, ok := e.containers[id]
	return c, ok
}

// CreateMap binds a new surface to the container with the given id.
func (e *Engine) CreateMap(container string, opts engine.MapOptions) (engine.Surface, error) {
	c, ok := e.containers[container]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrContainerNotFound, container)
	}
	if c.surface != nil {
		return nil, fmt.Errorf("%w: %q", ErrContainerInUse, container)
	}

	s := &Surface{
		id:        newID(),
		engine:    e,
		container: c,
		opts:      opts,
		center:    opts.Center,
		zoom:      max(opts.Zoom, 0),
		layers:    make(map[string]engine.Layer),
	}
	c.surface = s
	return s, nil
}

func (e *Engine) CreateTileLayer(urlTemplate string, opts engine.TileOptions) engine.TileLayer {
	return &TileLayer{id: newID(), template: urlTemplate, opts: opts}
}

func (e *Engine) CreateClusterGroup(opts engine.ClusterOptions) engine.ClusterGroup {
	return &ClusterGroup{id: newID(), opts: opts, radius: e.clusterRadius}
}

func (e *Engine) CreateIcon(opts engine.IconOptions) engine.Icon {
	return &Icon{opts: opts}
}

func (e *Engine) CreateMarker(pos core.LatLng, opts engine.MarkerOptions) engine.Marker {
	return &Marker{id: newID(), pos: pos, opts: opts}
}

func newID() string {
	return uuid.NewString()
}
