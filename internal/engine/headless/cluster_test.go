package headless

import (
	"testing"

	"github.com/OCAP2/clustermap/pkg/core"
	"github.com/OCAP2/clustermap/pkg/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func markerAt(e *Engine, lat, lng float64) engine.Marker {
	return e.CreateMarker(core.LatLng{Lat: lat, Lng: lng}, engine.MarkerOptions{})
}

func TestClusterGroup_AddRemove(t *testing.T) {
	e := New()
	g := e.CreateClusterGroup(engine.ClusterOptions{ShowCoverageOnHover: true}).(*ClusterGroup)
	a, b := markerAt(e, 1, 1), markerAt(e, 2, 2)

	g.AddLayer(a)
	g.AddLayer(b)
	g.AddLayer(a)

	assert.Equal(t, 2, g.Len())
	assert.True(t, g.HasLayer(a))
	assert.True(t, g.Options().ShowCoverageOnHover)

	g.RemoveLayer(a)
	assert.False(t, g.HasLayer(a))
	assert.Equal(t, []engine.Marker{b}, g.Markers())

	g.RemoveLayer(a)
	assert.Equal(t, 1, g.Len())
}

func TestClusterGroup_Bounds(t *testing.T) {
	e := New()
	g := e.CreateClusterGroup(engine.ClusterOptions{})

	_, ok := g.Bounds()
	assert.False(t, ok)

	a := markerAt(e, 1, 1)
	g.AddLayer(a)
	g.AddLayer(markerAt(e, 3, -2))

	b, ok := g.Bounds()
	require.True(t, ok)
	assert.Equal(t, core.LatLng{Lat: 1, Lng: -2}, b.SouthWest)
	assert.Equal(t, core.LatLng{Lat: 3, Lng: 1}, b.NorthEast)

	g.RemoveLayer(a)
	b, _ = g.Bounds()
	assert.Equal(t, b.SouthWest, b.NorthEast)
}

func TestClusterGroup_RemoveClosesPopup(t *testing.T) {
	e := New()
	s := newSurface(t, e)
	g := e.CreateClusterGroup(engine.ClusterOptions{})
	m := markerAt(e, 0, 0).(*Marker)
	m.BindPopup("x")
	g.AddLayer(m)
	s.AddLayer(g)
	m.Click()
	require.NotNil(t, s.Popup())

	g.RemoveLayer(m)

	assert.Nil(t, s.Popup())
	assert.Nil(t, m.Surface())
}

func TestClustersAt_MergesNearbyMarkers(t *testing.T) {
	e := New()
	g := e.CreateClusterGroup(engine.ClusterOptions{}).(*ClusterGroup)
	g.AddLayer(markerAt(e, 1, 1))
	g.AddLayer(markerAt(e, 1.001, 1.001))
	g.AddLayer(markerAt(e, -40, 120))

	clusters := g.ClustersAt(2)

	require.Len(t, clusters, 2)
	assert.Equal(t, 2, clusters[0].Count())
	assert.Equal(t, 1, clusters[1].Count())
	assert.Equal(t, core.LatLng{Lat: -40, Lng: 120}, clusters[1].Center)
	assert.True(t, clusters[0].Bounds.Contains(core.LatLng{Lat: 1, Lng: 1}))
}

func TestClustersAt_HighZoomSplits(t *testing.T) {
	e := New()
	g := e.CreateClusterGroup(engine.ClusterOptions{}).(*ClusterGroup)
	g.AddLayer(markerAt(e, 1, 1))
	g.AddLayer(markerAt(e, 1.01, 1.01))

	assert.Len(t, g.ClustersAt(2), 1)
	assert.Len(t, g.ClustersAt(18), 2)
}

func TestClusters_UsesSurfaceZoom(t *testing.T) {
	e := New()
	s := newSurface(t, e)
	g := e.CreateClusterGroup(engine.ClusterOptions{}).(*ClusterGroup)
	g.AddLayer(markerAt(e, 1, 1))
	g.AddLayer(markerAt(e, 1.01, 1.01))

	assert.Nil(t, g.Clusters())

	s.AddLayer(g)
	s.SetZoom(18)
	assert.Len(t, g.Clusters(), 2)
}

func TestWithClusterRadius(t *testing.T) {
	e := New(WithClusterRadius(0))
	g := e.CreateClusterGroup(engine.ClusterOptions{}).(*ClusterGroup)
	g.AddLayer(markerAt(e, 1, 1))
	g.AddLayer(markerAt(e, 1.001, 1.001))

	assert.Len(t, g.ClustersAt(2), 2)
}
