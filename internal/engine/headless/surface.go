package headless

import (
	"slices"

	"github.com/OCAP2/clustermap/internal/geo"
	"github.com/OCAP2/clustermap/pkg/core"
	"github.com/OCAP2/clustermap/pkg/engine"
)

// PopupCloseClass is the class of the close button inside an open popup
const PopupCloseClass = "leaflet-popup-close-button"

// Popup is the popup currently open on a surface
type Popup struct {
	Marker  *Marker
	Content string
	close   *Element
}

// CloseButton returns the popup's close affordance
func (p *Popup) CloseButton() *Element { return p.close }

// Surface is a map bound to a container.
type Surface struct {
	id        string
	engine    *Engine
	container *Container
	opts      engine.MapOptions

	center core.LatLng
	zoom   int

	order  []string
	layers map[string]engine.Layer
	popup  *Popup

	removed bool
}

var _ engine.Surface = (*Surface)(nil)

// ID returns the surface's unique id
func (s *Surface) ID() string { return s.id }

// Options returns the options the surface was created with
func (s *Surface) Options() engine.MapOptions { return s.opts }

func (s *Surface) SetView(center core.LatLng, zoom int) {
	s.center = center
	s.zoom = s.clamp(zoom)
}

// PanTo moves the center without changing the zoom.
func (s *Surface) PanTo(center core.LatLng) {
	s.center = center
}

// FitBounds centers b and picks the largest zoom at which it fits the viewport.
func (s *Surface) FitBounds(b core.Bounds) {
	x1, y1 := geo.Project(b.SouthWest)
	x2, y2 := geo.Project(b.NorthEast)
	s.center = geo.Unproject((x1+x2)/2, (y1+y2)/2)
	s.zoom = geo.ZoomForBounds(b, s.engine.viewport, s.MaxZoom())
}

func (s *Surface) SetZoom(zoom int) {
	s.zoom = s.clamp(zoom)
}

func (s *Surface) Zoom() int { return s.zoom }

func (s *Surface) Center() core.LatLng { return s.center }

// MaxZoom is the highest max zoom among attached tile layers, or
// DefaultMaxZoom when none is attached.
func (s *Surface) MaxZoom() int {
	maxZoom := -1
	for _, l := range s.layers {
		if t, ok := l.(engine.TileLayer); ok {
			maxZoom = max(maxZoom, t.Options().MaxZoom)
		}
	}
	if maxZoom < 0 {
		return DefaultMaxZoom
	}
	return maxZoom
}

// AddLayer attaches l. Attaching an attached layer is a no-op.
func (s *Surface) AddLayer(l engine.Layer) {
	if _, ok := s.layers[l.LayerID()]; ok {
		return
	}
	s.layers[l.LayerID()] = l
	s.order = append(s.order, l.LayerID())
	if g, ok := l.(*ClusterGroup); ok {
		g.surface = s
	}
}

func (s *Surface) RemoveLayer(l engine.Layer) {
	if _, ok := s.layers[l.LayerID()]; !ok {
		return
	}
	delete(s.layers, l.LayerID())
	s.order = slices.DeleteFunc(s.order, func(id string) bool { return id == l.LayerID() })
	if g, ok := l.(*ClusterGroup); ok {
		if s.popup != nil && g.HasLayer(s.popup.Marker) {
			s.ClosePopup()
		}
		g.surface = nil
	}
}

// HasLayer reports whether l is attached
func (s *Surface) HasLayer(l engine.Layer) bool {
	_, ok := s.layers[l.LayerID()]
	return ok
}

// Layers returns the attached layers in attach order
func (s *Surface) Layers() []engine.Layer {
	out := make([]engine.Layer, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.layers[id])
	}
	return out
}

func (s *Surface) Container() engine.Container { return s.container }

// Remove detaches the surface from its container so a new map can be created
// there. Layers are released.
func (s *Surface) Remove() {
	if s.removed {
		return
	}
	s.ClosePopup()
	for _, l := range s.Layers() {
		s.RemoveLayer(l)
	}
	s.container.clearElements()
	s.container.surface = nil
	s.removed = true
}

// Removed reports whether Remove was called
func (s *Surface) Removed() bool { return s.removed }

// Popup returns the open popup, or nil
func (s *Surface) Popup() *Popup { return s.popup }

// OpenPopup shows m's popup, replacing any open one. The popup's close button
// is added to the container and closes the popup when clicked.
func (s *Surface) OpenPopup(m *Marker) {
	content, ok := m.PopupContent()
	if !ok || s.removed {
		return
	}
	s.ClosePopup()

	p := &Popup{Marker: m, Content: content}
	p.close = s.container.addElement(PopupCloseClass, "#close")
	p.close.On(engine.EventClick, func(*engine.Event) {
		if s.popup == p {
			s.ClosePopup()
		}
	})
	s.popup = p
	m.fire(&engine.Event{Type: engine.EventPopupOpen, LatLng: m.pos})
}

// ClosePopup closes the open popup, if any
func (s *Surface) ClosePopup() {
	if s.popup == nil {
		return
	}
	s.container.removeElement(s.popup.close)
	s.popup = nil
}

func (s *Surface) clamp(zoom int) int {
	return max(0, min(zoom, s.MaxZoom()))
}
