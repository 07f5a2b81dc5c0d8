// Package clustermap embeds a map with clustered markers into a container.
//
// A Controller is built in one pass: it composes a tile layer and an empty
// cluster layer, loads the initial markers into the cluster layer, and then
// renders a surface for the container. Once rendered, markers can be added,
// given popups and removed by index.
package clustermap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/OCAP2/clustermap/internal/config"
	"github.com/OCAP2/clustermap/internal/marker"
	"github.com/OCAP2/clustermap/internal/tiles"
	"github.com/OCAP2/clustermap/pkg/core"
	"github.com/OCAP2/clustermap/pkg/engine"
)

var (
	// ErrNotRendered is returned by operations that need a rendered map
	ErrNotRendered = errors.New("map is not rendered")
	// ErrIndexOutOfRange is returned when a marker index is outside the sequence
	ErrIndexOutOfRange = errors.New("marker index out of range")
)

// Construction inputs, re-exported so callers outside this module can build them.
type (
	Options     = config.Options
	MapOptions  = config.MapOptions
	Environment = config.Environment
)

// State is a controller lifecycle stage
type State int

const (
	Uninitialized State = iota
	LayersComposed
	MarkersLoaded
	Rendered
	Destroyed
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case LayersComposed:
		return "layers-composed"
	case MarkersLoaded:
		return "markers-loaded"
	case Rendered:
		return "rendered"
	case Destroyed:
		return "destroyed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the logger for the controller and its marker factory
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) {
		c.logger = l
	}
}

// WithEnvironment sets the device environment map defaults depend on.
// It has no effect when WithMapDefaults is also given.
func WithEnvironment(env config.Environment) Option {
	return func(c *Controller) {
		c.env = env
	}
}

// WithMapDefaults replaces the built-in map defaults
func WithMapDefaults(d core.MapConfig) Option {
	return func(c *Controller) {
		c.mapDefaults = &d
	}
}

// WithMarkerDefaults replaces the built-in marker defaults
func WithMarkerDefaults(d core.MarkerConfig) Option {
	return func(c *Controller) {
		c.markerDefaults = d
	}
}

// WithDefaults sets options the caller's options are merged onto, such as a
// stored map the caller only partially overrides.
func WithDefaults(d config.Options) Option {
	return func(c *Controller) {
		c.defaults = d
	}
}

// Controller owns one map: its surface, tile layer, cluster layer and the
// ordered marker sequence. It is not safe for concurrent use.
type Controller struct {
	engine    engine.Engine
	container string

	env            config.Environment
	defaults       config.Options
	mapDefaults    *core.MapConfig
	markerDefaults core.MarkerConfig
	logger         *slog.Logger

	options config.Options
	cfg     core.MapConfig
	factory *marker.Factory
	metrics *metrics

	state        State
	surface      engine.Surface
	tileLayer    engine.TileLayer
	clusterLayer engine.ClusterGroup
	markers      []engine.Marker
	specs        []core.MarkerSpec
}

// New builds and renders a map in container. Creation fails if the engine
// cannot bind to the container or an initial marker has no position.
func New(eng engine.Engine, container string, opts config.Options, options ...Option) (*Controller, error) {
	c := &Controller{
		engine:         eng,
		container:      container,
		markerDefaults: config.DefaultMarkerConfig(),
		logger:         slog.Default(),
	}
	for _, opt := range options {
		opt(c)
	}

	m, err := newMetrics()
	if err != nil {
		return nil, err
	}
	c.metrics = m

	c.options = config.Merge(opts, c.defaults)
	mapDefaults := config.DefaultMapConfig(c.env)
	if c.mapDefaults != nil {
		mapDefaults = *c.mapDefaults
	}
	c.cfg = config.ResolveMap(c.options.MapOptions, mapDefaults)
	c.factory = marker.NewFactory(eng, c.currentSurface,
		marker.WithDefaults(c.markerDefaults),
		marker.WithLogger(c.logger),
	)

	c.composeLayers()
	if err := c.loadMarkers(c.options.Markers); err != nil {
		return nil, err
	}
	if err := c.render(); err != nil {
		return nil, err
	}

	c.logger.Info("map rendered",
		"container", container,
		"markers", len(c.markers),
		"zoom", c.surface.Zoom(),
		"center", c.surface.Center().String(),
	)
	return c, nil
}

func (c *Controller) composeLayers() {
	c.tileLayer = c.setupTileLayer()
	c.clusterLayer = c.setupClusterLayer()
	c.state = LayersComposed
}

func (c *Controller) setupTileLayer() engine.TileLayer {
	return tiles.New(c.engine)
}

func (c *Controller) setupClusterLayer() engine.ClusterGroup {
	return c.engine.CreateClusterGroup(engine.ClusterOptions{
		ShowCoverageOnHover: c.cfg.ShowCoverageOnHover,
	})
}

func (c *Controller) loadMarkers(specs []core.MarkerSpec) error {
	for i, spec := range specs {
		if _, err := c.appendMarker(spec); err != nil {
			return fmt.Errorf("loading marker %d: %w", i, err)
		}
	}
	c.state = MarkersLoaded
	return nil
}

// render binds the surface, attaches both layers, fits the view to the loaded
// markers and then forces the configured zoom. With no markers the fit is
// skipped and the configured center stays.
func (c *Controller) render() error {
	s, err := c.engine.CreateMap(c.container, engine.MapOptions{
		Center:          c.cfg.Center,
		Zoom:            c.cfg.Zoom,
		ZIndex:          c.cfg.ZIndex,
		ScrollWheelZoom: c.cfg.ScrollWheelZoom,
		Dragging:        c.cfg.Dragging,
	})
	if err != nil {
		return fmt.Errorf("creating map in %q: %w", c.container, err)
	}
	c.surface = s

	s.SetView(c.cfg.Center, c.cfg.Zoom)
	s.AddLayer(c.tileLayer)
	s.AddLayer(c.clusterLayer)

	if b, ok := c.clusterLayer.Bounds(); ok {
		s.FitBounds(b)
	}
	s.SetZoom(c.cfg.Zoom)

	c.state = Rendered
	return nil
}

func (c *Controller) appendMarker(spec core.MarkerSpec) (int, error) {
	m, err := c.factory.Build(spec)
	if err != nil {
		return -1, err
	}
	c.clusterLayer.AddLayer(m)
	c.markers = append(c.markers, m)
	c.specs = append(c.specs, spec)
	c.metrics.added.Add(context.Background(), 1)
	return len(c.markers) - 1, nil
}

func (c *Controller) currentSurface() engine.Surface {
	if c.state != Rendered {
		return nil
	}
	return c.surface
}

// AddMarker builds a marker for spec, adds it to the cluster layer and
// returns its index. The view is not refitted.
func (c *Controller) AddMarker(spec core.MarkerSpec) (int, error) {
	if c.state != Rendered {
		return -1, ErrNotRendered
	}
	i, err := c.appendMarker(spec)
	if err != nil {
		return -1, fmt.Errorf("adding marker: %w", err)
	}
	c.logger.Debug("marker added", "index", i, "markers", len(c.markers))
	return i, nil
}

// AddPopup binds popup content for spec to m.
func (c *Controller) AddPopup(spec core.MarkerSpec, m engine.Marker) error {
	if c.state != Rendered {
		return ErrNotRendered
	}
	if m == nil {
		return errors.New("adding popup: nil marker")
	}
	c.factory.BindPopup(m, spec)
	if i := c.indexOf(m); i >= 0 {
		c.specs[i] = withPopup(c.specs[i], spec)
	}
	return nil
}

// RemoveMarker detaches the marker at index from the cluster layer and drops
// it from the sequence. Later markers shift down by one.
func (c *Controller) RemoveMarker(index int) error {
	if c.state != Rendered {
		return ErrNotRendered
	}
	if index < 0 || index >= len(c.markers) {
		return fmt.Errorf("%w: %d (have %d)", ErrIndexOutOfRange, index, len(c.markers))
	}

	c.clusterLayer.RemoveLayer(c.markers[index])
	c.markers = slices.Delete(c.markers, index, index+1)
	c.specs = slices.Delete(c.specs, index, index+1)
	c.metrics.removed.Add(context.Background(), 1)

	c.logger.Debug("marker removed", "index", index, "markers", len(c.markers))
	return nil
}

// Destroy removes the surface from its container. The controller is unusable
// afterwards; a new one may be created for the same container.
func (c *Controller) Destroy() {
	if c.state == Destroyed {
		return
	}
	if c.surface != nil {
		c.surface.Remove()
	}
	c.markers = nil
	c.specs = nil
	c.state = Destroyed
	c.logger.Debug("map destroyed", "container", c.container)
}

func (c *Controller) indexOf(m engine.Marker) int {
	return slices.IndexFunc(c.markers, func(x engine.Marker) bool {
		return x.LayerID() == m.LayerID()
	})
}

// withPopup records the popup fields of p on spec
func withPopup(spec, p core.MarkerSpec) core.MarkerSpec {
	spec.ShowPopup = core.Bool(true)
	spec.Title = p.Title
	spec.Address = p.Address
	spec.CustomPopupContent = p.CustomPopupContent
	return spec
}

// State returns the lifecycle stage
func (c *Controller) State() State { return c.state }

// Container returns the id of the container the map is bound to
func (c *Controller) Container() string { return c.container }

// Len returns the number of markers
func (c *Controller) Len() int { return len(c.markers) }

// Markers returns the markers in index order
func (c *Controller) Markers() []engine.Marker { return slices.Clone(c.markers) }

// Marker returns the marker at index
func (c *Controller) Marker(index int) (engine.Marker, error) {
	if index < 0 || index >= len(c.markers) {
		return nil, fmt.Errorf("%w: %d (have %d)", ErrIndexOutOfRange, index, len(c.markers))
	}
	return c.markers[index], nil
}

// Specs returns the specs the current markers were built from, in index order.
func (c *Controller) Specs() []core.MarkerSpec { return slices.Clone(c.specs) }

// Surface returns the map surface
func (c *Controller) Surface() engine.Surface { return c.surface }

// TileLayer returns the base tile layer
func (c *Controller) TileLayer() engine.TileLayer { return c.tileLayer }

// ClusterLayer returns the cluster group holding every marker
func (c *Controller) ClusterLayer() engine.ClusterGroup { return c.clusterLayer }

// Config returns the resolved map configuration
func (c *Controller) Config() core.MapConfig { return c.cfg }

// Options returns the merged construction options with the current markers.
func (c *Controller) Options() config.Options {
	out := config.Merge(config.Options{}, c.options)
	out.Markers = c.Specs()
	return out
}
