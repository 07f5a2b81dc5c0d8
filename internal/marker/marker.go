// Package marker turns marker specs into engine markers with their icon,
// popup and click behaviour wired.
package marker

import (
	"errors"
	"log/slog"

	"github.com/OCAP2/clustermap/internal/config"
	"github.com/OCAP2/clustermap/internal/popup"
	"github.com/OCAP2/clustermap/pkg/core"
	"github.com/OCAP2/clustermap/pkg/engine"
)

// ErrMissingPosition is returned when a spec has no position
var ErrMissingPosition = errors.New("marker position is required")

// SurfaceFunc returns the surface markers are shown on, or nil while the map
// is not rendered yet.
type SurfaceFunc func() engine.Surface

// Option configures a Factory.
type Option func(*Factory)

// WithLogger sets the logger used for debug output
func WithLogger(l *slog.Logger) Option {
	return func(f *Factory) {
		f.logger = l
	}
}

// WithDefaults replaces the built-in marker defaults
func WithDefaults(d core.MarkerConfig) Option {
	return func(f *Factory) {
		f.defaults = d
	}
}

// Factory builds markers
type Factory struct {
	engine   engine.Engine
	surface  SurfaceFunc
	defaults core.MarkerConfig
	logger   *slog.Logger
}

// NewFactory creates a Factory. surface is consulted on every click.
func NewFactory(eng engine.Engine, surface SurfaceFunc, opts ...Option) *Factory {
	f := &Factory{
		engine:   eng,
		surface:  surface,
		defaults: config.DefaultMarkerConfig(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Defaults returns the marker defaults specs are resolved against
func (f *Factory) Defaults() core.MarkerConfig { return f.defaults }

// Build creates a marker for spec. The marker is not added to any layer.
func (f *Factory) Build(spec core.MarkerSpec) (engine.Marker, error) {
	cfg := config.ResolveMarker(spec, f.defaults)
	if !cfg.HasPosition {
		return nil, ErrMissingPosition
	}

	icon := f.engine.CreateIcon(engine.IconOptions{
		IconURL:    cfg.IconURL,
		IconSize:   cfg.Size,
		IconAnchor: cfg.Anchor,
	})
	m := f.engine.CreateMarker(cfg.Position, engine.MarkerOptions{
		Icon:        icon,
		Title:       cfg.Title,
		RiseOnHover: true,
	})

	if cfg.ShowPopup {
		m.BindPopup(popup.Resolve(cfg.CustomPopupContent, cfg.Title, cfg.Address))
	}
	m.On(engine.EventClick, f.onClick(m, cfg.CenterOnClick))
	m.On(engine.EventPopupOpen, f.onPopupOpen)

	f.logger.Debug("marker built", "id", m.LayerID(), "position", cfg.Position.String(), "popup", cfg.ShowPopup)
	return m, nil
}

// BindPopup binds popup content for spec to an existing marker.
func (f *Factory) BindPopup(m engine.Marker, spec core.MarkerSpec) {
	BindPopup(m, spec, f.defaults)
}

// BindPopup binds the popup content spec resolves to. Custom content is used
// verbatim, otherwise it is built from the title and address.
func BindPopup(m engine.Marker, spec core.MarkerSpec, defaults core.MarkerConfig) {
	cfg := config.ResolveMarker(spec, defaults)
	m.BindPopup(popup.Resolve(cfg.CustomPopupContent, cfg.Title, cfg.Address))
}

// onClick pans to the marker when centering is on. Close buttons of open
// popups must not pass their clicks on to the page, so every one present
// gets a handler that suppresses them.
func (f *Factory) onClick(m engine.Marker, center bool) engine.Handler {
	return func(*engine.Event) {
		s := f.surface()
		if s == nil {
			return
		}
		if center {
			s.PanTo(m.LatLng())
		}
		suppressClose(s)
	}
}

// onPopupOpen covers close buttons created after the click handler ran, as
// happens for popups bound after the marker was built.
func (f *Factory) onPopupOpen(*engine.Event) {
	if s := f.surface(); s != nil {
		suppressClose(s)
	}
}

func suppressClose(s engine.Surface) {
	for _, el := range s.Container().QuerySelectorAll(engine.PopupCloseSelector) {
		el.On(engine.EventClick, suppress)
	}
}

func suppress(e *engine.Event) {
	e.PreventDefault()
	e.StopPropagation()
}
