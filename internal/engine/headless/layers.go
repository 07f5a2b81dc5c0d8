package headless

import (
	"github.com/OCAP2/clustermap/internal/tiles"
	"github.com/OCAP2/clustermap/pkg/core"
	"github.com/OCAP2/clustermap/pkg/engine"
)

// TileLayer is a raster base layer
type TileLayer struct {
	id       string
	template string
	opts     engine.TileOptions
}

var _ engine.TileLayer = (*TileLayer)(nil)

func (t *TileLayer) LayerID() string { return t.id }

func (t *TileLayer) URLTemplate() string { return t.template }

func (t *TileLayer) Options() engine.TileOptions { return t.opts }

// TileURL returns the URL of the tile covering ll at zoom
func (t *TileLayer) TileURL(ll core.LatLng, zoom int) string {
	if t.opts.MaxZoom > 0 {
		zoom = min(zoom, t.opts.MaxZoom)
	}
	return tiles.URLFor(t.template, t.opts.Subdomains, ll, zoom)
}

// Icon is a marker icon
type Icon struct {
	opts engine.IconOptions
}

func (i *Icon) Options() engine.IconOptions { return i.opts }

// Marker is a point annotation.
type Marker struct {
	id   string
	pos  core.LatLng
	opts engine.MarkerOptions

	popup    string
	hasPopup bool

	handlers map[string][]engine.Handler
	group    *ClusterGroup
}

var _ engine.Marker = (*Marker)(nil)

func (m *Marker) LayerID() string { return m.id }

func (m *Marker) LatLng() core.LatLng { return m.pos }

func (m *Marker) Icon() engine.Icon { return m.opts.Icon }

func (m *Marker) Options() engine.MarkerOptions { return m.opts }

// BindPopup sets the popup content. The first bind also makes clicks on the
// marker open the popup; later binds only replace the content.
func (m *Marker) BindPopup(content string) {
	m.popup = content
	if m.hasPopup {
		return
	}
	m.hasPopup = true
	m.On(engine.EventClick, func(*engine.Event) {
		if s := m.Surface(); s != nil {
			s.OpenPopup(m)
		}
	})
}

func (m *Marker) PopupContent() (string, bool) {
	return m.popup, m.hasPopup
}

func (m *Marker) On(eventType string, h engine.Handler) {
	if m.handlers == nil {
		m.handlers = make(map[string][]engine.Handler)
	}
	m.handlers[eventType] = append(m.handlers[eventType], h)
}

// Surface returns the map the marker is displayed on, or nil when its cluster
// group is not attached.
func (m *Marker) Surface() *Surface {
	if m.group == nil {
		return nil
	}
	return m.group.surface
}

// Click fires a click on the marker
func (m *Marker) Click() *engine.Event {
	e := &engine.Event{Type: engine.EventClick, LatLng: m.pos}
	m.fire(e)
	return e
}

func (m *Marker) fire(e *engine.Event) {
	for _, h := range m.handlers[e.Type] {
		h(e)
	}
}
