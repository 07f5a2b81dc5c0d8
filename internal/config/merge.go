package config

import (
	"encoding/json"
	"maps"

	"github.com/OCAP2/clustermap/pkg/core"
)

// Environment describes the device a map is rendered for
type Environment struct {
	TouchPrimary bool
}

// MapOptions is the caller-supplied map configuration. Nil fields fall back to
// the defaults; keys the decoder does not know end up in Extra.
type MapOptions struct {
	Center              *core.LatLng   `json:"center,omitempty"`
	Zoom                *int           `json:"zoom,omitempty"`
	ZIndex              *int           `json:"zIndex,omitempty"`
	ScrollWheelZoom     *bool          `json:"scrollWheelZoom,omitempty"`
	Dragging            *bool          `json:"dragging,omitempty"`
	ShowCoverageOnHover *bool          `json:"showCoverageOnHover,omitempty"`
	Extra               map[string]any `json:"-"`
}

// Options is everything a map controller is constructed from
type Options struct {
	MapOptions MapOptions        `json:"mapOptions"`
	Markers    []core.MarkerSpec `json:"markers"`
	Extra      map[string]any    `json:"-"`
}

// DefaultMapConfig returns a fresh copy of the built-in map defaults.
func DefaultMapConfig(env Environment) core.MapConfig {
	return core.MapConfig{
		Center:              core.LatLng{Lat: 0, Lng: 0},
		Zoom:                13,
		ZIndex:              1,
		ScrollWheelZoom:     false,
		Dragging:            !env.TouchPrimary,
		ShowCoverageOnHover: false,
	}
}

// DefaultMarkerConfig returns a fresh copy of the built-in marker defaults.
func DefaultMarkerConfig() core.MarkerConfig {
	return core.MarkerConfig{
		Title:         "",
		Address:       "",
		CenterOnClick: true,
		Size:          core.Size{Width: 33, Height: 44},
		Anchor:        core.Point{X: 16, Y: 44},
		ShowPopup:     true,
	}
}

// Merge overlays opts onto defaults. Top-level fields of opts replace their
// defaults; MapOptions is merged field by field. Neither argument is modified.
func Merge(opts, defaults Options) Options {
	out := Options{
		MapOptions: mergeMapOptions(opts.MapOptions, defaults.MapOptions),
		Extra:      mergeExtra(opts.Extra, defaults.Extra),
	}

	src := defaults.Markers
	if opts.Markers != nil {
		src = opts.Markers
	}
	if src != nil {
		out.Markers = make([]core.MarkerSpec, len(src))
		copy(out.Markers, src)
	}
	return out
}

func mergeMapOptions(opts, defaults MapOptions) MapOptions {
	return MapOptions{
		Center:              pick(opts.Center, defaults.Center),
		Zoom:                pick(opts.Zoom, defaults.Zoom),
		ZIndex:              pick(opts.ZIndex, defaults.ZIndex),
		ScrollWheelZoom:     pick(opts.ScrollWheelZoom, defaults.ScrollWheelZoom),
		Dragging:            pick(opts.Dragging, defaults.Dragging),
		ShowCoverageOnHover: pick(opts.ShowCoverageOnHover, defaults.ShowCoverageOnHover),
		Extra:               mergeExtra(opts.Extra, defaults.Extra),
	}
}

// ResolveMap applies opts on top of defaults and returns the effective map
// configuration. Negative zoom levels clamp to 0.
func ResolveMap(opts MapOptions, defaults core.MapConfig) core.MapConfig {
	cfg := core.MapConfig{
		Center:              value(opts.Center, defaults.Center),
		Zoom:                value(opts.Zoom, defaults.Zoom),
		ZIndex:              value(opts.ZIndex, defaults.ZIndex),
		ScrollWheelZoom:     value(opts.ScrollWheelZoom, defaults.ScrollWheelZoom),
		Dragging:            value(opts.Dragging, defaults.Dragging),
		ShowCoverageOnHover: value(opts.ShowCoverageOnHover, defaults.ShowCoverageOnHover),
		Extra:               mergeExtra(opts.Extra, defaults.Extra),
	}
	if cfg.Zoom < 0 {
		cfg.Zoom = 0
	}
	return cfg
}

// ResolveMarker applies spec on top of defaults.
func ResolveMarker(spec core.MarkerSpec, defaults core.MarkerConfig) core.MarkerConfig {
	cfg := core.MarkerConfig{
		Title:         value(spec.Title, defaults.Title),
		IconURL:       value(spec.IconURL, defaults.IconURL),
		Address:       value(spec.Address, defaults.Address),
		Position:      value(spec.Position, defaults.Position),
		HasPosition:   spec.Position != nil || defaults.HasPosition,
		Size:          value(spec.Size, defaults.Size),
		Anchor:        value(spec.Anchor, defaults.Anchor),
		ShowPopup:     value(spec.ShowPopup, defaults.ShowPopup),
		CenterOnClick: value(spec.CenterOnClick, defaults.CenterOnClick),
		Extra:         mergeExtra(spec.Extra, defaults.Extra),
	}
	switch {
	case spec.CustomPopupContent != nil:
		cfg.CustomPopupContent = core.String(*spec.CustomPopupContent)
	case defaults.CustomPopupContent != nil:
		cfg.CustomPopupContent = core.String(*defaults.CustomPopupContent)
	}
	return cfg
}

// pick returns a copy of whichever pointer is set, preferring v.
func pick[T any](v, def *T) *T {
	switch {
	case v != nil:
		c := *v
		return &c
	case def != nil:
		c := *def
		return &c
	}
	return nil
}

func value[T any](v *T, def T) T {
	if v != nil {
		return *v
	}
	return def
}

func mergeExtra(over, base map[string]any) map[string]any {
	if len(over) == 0 && len(base) == 0 {
		return nil
	}
	out := make(map[string]any, len(over)+len(base))
	maps.Copy(out, base)
	maps.Copy(out, over)
	return out
}

var mapOptionKeys = []string{"center", "zoom", "zIndex", "scrollWheelZoom", "dragging", "showCoverageOnHover"}

// UnmarshalJSON decodes the known fields and keeps every other key in Extra.
func (o *MapOptions) UnmarshalJSON(data []byte) error {
	type plain MapOptions
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	extra, err := core.UnknownKeys(data, mapOptionKeys...)
	if err != nil {
		return err
	}
	p.Extra = extra
	*o = MapOptions(p)
	return nil
}

// UnmarshalJSON decodes the known fields and keeps every other key in Extra.
func (o *Options) UnmarshalJSON(data []byte) error {
	type plain Options
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	extra, err := core.UnknownKeys(data, "mapOptions", "markers")
	if err != nil {
		return err
	}
	p.Extra = extra
	*o = Options(p)
	return nil
}

// MarshalJSON writes the known fields followed by the preserved Extra keys.
func (o MapOptions) MarshalJSON() ([]byte, error) {
	type plain MapOptions
	return core.MarshalWithExtra(plain(o), o.Extra)
}

// MarshalJSON writes the known fields followed by the preserved Extra keys.
func (o Options) MarshalJSON() ([]byte, error) {
	type plain Options
	return core.MarshalWithExtra(plain(o), o.Extra)
}
