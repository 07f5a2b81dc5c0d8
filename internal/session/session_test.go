package session

import (
	"testing"

	"github.com/OCAP2/clustermap/internal/engine/headless"
	"github.com/OCAP2/clustermap/pkg/clustermap"
	"github.com/OCAP2/clustermap/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContext_Empty(t *testing.T) {
	sc := NewContext()
	assert.Equal(t, "", sc.Name())
	assert.Nil(t, sc.Controller())
	assert.Nil(t, sc.LogAttrs())
}

func TestContext_SetReturnsPrevious(t *testing.T) {
	e := headless.New()
	e.AddContainer("a")
	e.AddContainer("b")

	first, err := clustermap.New(e, "a", clustermap.Options{})
	require.NoError(t, err)
	second, err := clustermap.New(e, "b", clustermap.Options{
		Markers: []core.MarkerSpec{{Position: &core.LatLng{Lat: 1, Lng: 1}}},
	})
	require.NoError(t, err)

	sc := NewContext()
	assert.Nil(t, sc.Set("first", first))
	assert.Same(t, first, sc.Set("second", second))

	assert.Equal(t, "second", sc.Name())
	assert.Same(t, second, sc.Controller())

	attrs := sc.LogAttrs()
	require.Len(t, attrs, 2)
	assert.Equal(t, "map", attrs[0].Key)
	assert.Equal(t, "second", attrs[0].Value.String())
	assert.Equal(t, int64(1), attrs[1].Value.Int64())
}
