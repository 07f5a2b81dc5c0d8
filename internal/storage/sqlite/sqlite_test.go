package sqlitestorage

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/OCAP2/clustermap/internal/config"
	"github.com/OCAP2/clustermap/internal/storage"
	"github.com/OCAP2/clustermap/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ storage.Backend = (*Backend)(nil)

func sample(name string) *storage.StoredMap {
	return &storage.StoredMap{
		Name: name,
		Options: config.Options{
			Markers: []core.MarkerSpec{{Position: &core.LatLng{Lat: 1, Lng: 2}}},
		},
	}
}

func TestBackend_FileDatabasePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "maps.db")

	b, err := New(Config{Path: path}, nil)
	require.NoError(t, err)
	require.NoError(t, b.Init())
	require.NoError(t, b.SaveMap(sample("rome")))
	require.NoError(t, b.Close())

	again, err := New(Config{Path: path}, nil)
	require.NoError(t, err)
	require.NoError(t, again.Init())
	t.Cleanup(func() { _ = again.Close() })

	got, err := again.LoadMap("rome")
	require.NoError(t, err)
	require.Len(t, got.Options.Markers, 1)
	assert.Equal(t, 2.0, got.Options.Markers[0].Position.Lng)

	revs, err := again.Revisions("rome")
	require.NoError(t, err)
	assert.Len(t, revs, 1)
}

func TestBackend_InMemoryDumpsOnClose(t *testing.T) {
	dump := filepath.Join(t.TempDir(), "dump.db")

	b, err := New(Config{DumpPath: dump, DumpInterval: time.Hour}, nil)
	require.NoError(t, err)
	require.NoError(t, b.Init())
	require.NoError(t, b.SaveMap(sample("oslo")))
	require.NoError(t, b.Close())

	_, err = os.Stat(dump)
	require.NoError(t, err)

	restored, err := New(Config{Path: dump}, nil)
	require.NoError(t, err)
	require.NoError(t, restored.Init())
	t.Cleanup(func() { _ = restored.Close() })

	names, err := restored.ListMaps()
	require.NoError(t, err)
	assert.Equal(t, []string{"oslo"}, names)
}

func TestBackend_InMemoryWithoutDump(t *testing.T) {
	b, err := New(Config{}, nil)
	require.NoError(t, err)
	require.NoError(t, b.Init())
	require.NoError(t, b.SaveMap(sample("x")))
	assert.NoError(t, b.Close())
}
