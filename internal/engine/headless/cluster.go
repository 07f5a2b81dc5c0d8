package headless

import (
	"math"
	"slices"

	"github.com/OCAP2/clustermap/internal/geo"
	"github.com/OCAP2/clustermap/pkg/core"
	"github.com/OCAP2/clustermap/pkg/engine"
)

// ClusterGroup owns markers and groups the ones that are close on screen.
type ClusterGroup struct {
	id      string
	opts    engine.ClusterOptions
	radius  float64
	markers []engine.Marker
	surface *Surface
}

var _ engine.ClusterGroup = (*ClusterGroup)(nil)

func (g *ClusterGroup) LayerID() string { return g.id }

func (g *ClusterGroup) Options() engine.ClusterOptions { return g.opts }

// AddLayer adds m. Adding a contained marker is a no-op.
func (g *ClusterGroup) AddLayer(m engine.Marker) {
	if g.HasLayer(m) {
		return
	}
	g.markers = append(g.markers, m)
	if hm, ok := m.(*Marker); ok {
		hm.group = g
	}
}

// RemoveLayer removes m, closing its popup if open.
func (g *ClusterGroup) RemoveLayer(m engine.Marker) {
	if !g.HasLayer(m) {
		return
	}
	if g.surface != nil && g.surface.popup != nil && g.surface.popup.Marker.LayerID() == m.LayerID() {
		g.surface.ClosePopup()
	}
	g.markers = slices.DeleteFunc(g.markers, func(x engine.Marker) bool {
		return x.LayerID() == m.LayerID()
	})
	if hm, ok := m.(*Marker); ok {
		hm.group = nil
	}
}

func (g *ClusterGroup) HasLayer(m engine.Marker) bool {
	return slices.ContainsFunc(g.markers, func(x engine.Marker) bool {
		return x.LayerID() == m.LayerID()
	})
}

// Len returns the number of contained markers
func (g *ClusterGroup) Len() int { return len(g.markers) }

// Markers returns the contained markers in insertion order
func (g *ClusterGroup) Markers() []engine.Marker {
	return slices.Clone(g.markers)
}

// Bounds encloses every contained marker.
func (g *ClusterGroup) Bounds() (core.Bounds, bool) {
	positions := make([]core.LatLng, len(g.markers))
	for i, m := range g.markers {
		positions[i] = m.LatLng()
	}
	return geo.BoundsOf(positions)
}

// Cluster is a group of markers drawn as one symbol
type Cluster struct {
	Center  core.LatLng
	Bounds  core.Bounds
	Markers []engine.Marker
}

// Count returns the number of markers in the cluster
func (c Cluster) Count() int { return len(c.Markers) }

// Clusters groups the markers at the zoom of the surface the group is
// attached to. It returns nil when the group is not attached.
func (g *ClusterGroup) Clusters() []Cluster {
	if g.surface == nil {
		return nil
	}
	return g.ClustersAt(g.surface.Zoom())
}

// ClustersAt groups markers whose screen distance at zoom is within the
// cluster radius. Markers are visited in insertion order; each unvisited
// marker seeds a cluster that absorbs every unvisited neighbour. A marker
// that absorbs nothing becomes a cluster of one.
func (g *ClusterGroup) ClustersAt(zoom int) []Cluster {
	type pixel struct{ x, y float64 }

	px := make([]pixel, len(g.markers))
	for i, m := range g.markers {
		x, y := geo.PixelAt(m.LatLng(), zoom)
		px[i] = pixel{x, y}
	}

	visited := make([]bool, len(g.markers))
	var clusters []Cluster
	for i := range g.markers {
		if visited[i] {
			continue
		}
		visited[i] = true
		members := []int{i}
		for j := i + 1; j < len(g.markers); j++ {
			if visited[j] {
				continue
			}
			if math.Hypot(px[j].x-px[i].x, px[j].y-px[i].y) <= g.radius {
				visited[j] = true
				members = append(members, j)
			}
		}

		var sx, sy float64
		markers := make([]engine.Marker, len(members))
		positions := make([]core.LatLng, len(members))
		for k, idx := range members {
			sx += px[idx].x
			sy += px[idx].y
			markers[k] = g.markers[idx]
			positions[k] = g.markers[idx].LatLng()
		}
		n := float64(len(members))
		bounds, _ := geo.BoundsOf(positions)

		c := Cluster{Center: geo.LatLngAtPixel(sx/n, sy/n, zoom), Bounds: bounds, Markers: markers}
		if len(members) == 1 {
			c.Center = markers[0].LatLng()
		}
		clusters = append(clusters, c)
	}
	return clusters
}
