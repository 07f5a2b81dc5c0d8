// Package engine defines the boundary between clustermap and the map-rendering
// engine it drives. Rendering, projection and clustering live behind these
// interfaces; clustermap only sequences calls against them.
package engine

import "github.com/OCAP2/clustermap/pkg/core"

// Event types understood by the engine
const (
	EventClick     = "click"
	EventPopupOpen = "popupopen"
)

// PopupCloseSelector matches the close affordance rendered inside an open popup
const PopupCloseSelector = ".leaflet-popup-close-button"

// Engine creates the primitives a map is built from.
type Engine interface {
	// CreateMap binds a new rendering surface to the container with the given id.
	CreateMap(container string, opts MapOptions) (Surface, error)
	CreateTileLayer(urlTemplate string, opts TileOptions) TileLayer
	CreateClusterGroup(opts ClusterOptions) ClusterGroup
	CreateIcon(opts IconOptions) Icon
	CreateMarker(pos core.LatLng, opts MarkerOptions) Marker
}

// MapOptions configures a rendering surface at creation
type MapOptions struct {
	Center          core.LatLng
	Zoom            int
	ZIndex          int
	ScrollWheelZoom bool
	Dragging        bool
}

// TileOptions configures a raster tile source
type TileOptions struct {
	MaxZoom     int
	Attribution string
	Subdomains  string
}

// ClusterOptions configures a cluster group
type ClusterOptions struct {
	ShowCoverageOnHover bool
}

// IconOptions describes a marker icon
type IconOptions struct {
	IconURL    string
	IconSize   core.Size
	IconAnchor core.Point
}

// MarkerOptions configures a marker
type MarkerOptions struct {
	Icon        Icon
	Title       string
	RiseOnHover bool
}

// Layer is anything that can be attached to a surface.
type Layer interface {
	LayerID() string
}

// Surface is the rendering surface bound to a container.
type Surface interface {
	SetView(center core.LatLng, zoom int)
	PanTo(center core.LatLng)
	FitBounds(b core.Bounds)
	SetZoom(zoom int)
	Zoom() int
	Center() core.LatLng
	AddLayer(l Layer)
	RemoveLayer(l Layer)
	Container() Container
	// Remove detaches the surface from its container and releases it.
	Remove()
}

// TileLayer is a raster base layer
type TileLayer interface {
	Layer
	URLTemplate() string
	Options() TileOptions
}

// ClusterGroup owns markers and groups nearby ones for display.
type ClusterGroup interface {
	Layer
	AddLayer(m Marker)
	RemoveLayer(m Marker)
	HasLayer(m Marker) bool
	// Bounds encloses every contained marker; ok is false when the group is empty.
	Bounds() (b core.Bounds, ok bool)
	Options() ClusterOptions
}

// Icon is an opaque rendered icon
type Icon interface {
	Options() IconOptions
}

// Marker is a point annotation.
type Marker interface {
	Layer
	LatLng() core.LatLng
	Icon() Icon
	Options() MarkerOptions
	BindPopup(content string)
	// PopupContent returns the bound content; ok is false when no popup is bound.
	PopupContent() (content string, ok bool)
	On(eventType string, h Handler)
}

// Container is the placement target a surface is bound to.
type Container interface {
	ID() string
	QuerySelectorAll(selector string) []Element
	On(eventType string, h Handler)
}

// Element is a node inside a container.
type Element interface {
	On(eventType string, h Handler)
}

// Handler receives dispatched events
type Handler func(e *Event)

// Event is passed to every handler registered for its type.
type Event struct {
	Type   string
	LatLng core.LatLng

	defaultPrevented   bool
	propagationStopped bool
}

// PreventDefault suppresses the engine's default action for the event
func (e *Event) PreventDefault() { e.defaultPrevented = true }

// StopPropagation stops the event from bubbling to outer handlers
func (e *Event) StopPropagation() { e.propagationStopped = true }

func (e *Event) DefaultPrevented() bool { return e.defaultPrevented }

func (e *Event) PropagationStopped() bool { return e.propagationStopped }
