package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/OCAP2/clustermap/internal/config"
	"github.com/OCAP2/clustermap/internal/dispatcher"
	"github.com/OCAP2/clustermap/internal/engine/headless"
	"github.com/OCAP2/clustermap/internal/marker"
	"github.com/OCAP2/clustermap/internal/monitor"
	"github.com/OCAP2/clustermap/internal/storage"
	"github.com/OCAP2/clustermap/internal/storage/memory"
	"github.com/OCAP2/clustermap/internal/worker"
	"github.com/OCAP2/clustermap/pkg/clustermap"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

type testServer struct {
	*Server
	worker  *worker.Manager
	backend *memory.Backend
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)

	e := headless.New()
	e.AddContainer("map")
	backend := memory.New(config.MemoryConfig{})
	require.NoError(t, backend.Init())

	w := worker.NewManager(worker.Dependencies{
		Engine:    e,
		Container: "map",
		Backend:   backend,
		Logger:    logger,
	})
	d, err := dispatcher.New(logger)
	require.NoError(t, err)
	w.RegisterHandlers(d)
	t.Cleanup(d.Close)

	s := New(Dependencies{
		Dispatcher: d,
		Monitor:    monitor.NewService(monitor.Dependencies{Dispatcher: d, Worker: w, Logger: logger}),
		Backend:    backend,
		Logger:     logger,
	})
	return &testServer{Server: s, worker: w, backend: backend}
}

func (s *testServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestNoMapLoaded(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/map", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "no map loaded")
}

func TestLoadAddAndGet(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/maps/berlin/load", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "berlin", decode[worker.MapView](t, rec).Name)

	rec = s.do(t, http.MethodPost, "/api/markers", `{"title":"Gate","position":{"lat":52.5,"lng":13.4}}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	added := decode[worker.MarkerView](t, rec)
	assert.Equal(t, 0, added.Index)
	assert.Equal(t, "Gate", added.Title)

	rec = s.do(t, http.MethodGet, "/api/map", "")
	require.Equal(t, http.StatusOK, rec.Code)
	view := decode[worker.MapView](t, rec)
	assert.Equal(t, "rendered", view.State)
	require.Len(t, view.Markers, 1)
	assert.Equal(t, 52.5, view.Markers[0].Position.Lat)

	rec = s.do(t, http.MethodGet, "/api/maps", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string][]string{"maps": {"berlin"}}, decode[map[string][]string](t, rec))
}

func TestMarkerErrors(t *testing.T) {
	s := newTestServer(t)
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/maps/m/load", "").Code)

	rec := s.do(t, http.MethodPost, "/api/markers", `{"title":"nowhere"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/markers", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodDelete, "/api/markers/3", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodDelete, "/api/markers/abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRemoveMarker(t *testing.T) {
	s := newTestServer(t)
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/maps/m/load", "").Code)
	for i := range 3 {
		body := fmt.Sprintf(`{"position":{"lat":%d,"lng":%d}}`, i, i)
		require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/markers", body).Code)
	}

	rec := s.do(t, http.MethodDelete, "/api/markers/0", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, map[string]int{"removed": 0, "markers": 2}, decode[map[string]int](t, rec))

	stored, err := s.backend.LoadMap("m")
	require.NoError(t, err)
	assert.Len(t, stored.Options.Markers, 2)
}

func TestClickAndPopup(t *testing.T) {
	s := newTestServer(t)
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/maps/m/load", "").Code)
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/markers", `{"position":{"lat":10,"lng":20}}`).Code)

	rec := s.do(t, http.MethodPost, "/api/markers/0/popup", `{"customPopupContent":"<p>hello</p>"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "<p>hello</p>", decode[worker.MarkerView](t, rec).Popup)

	rec = s.do(t, http.MethodPost, "/api/markers/0/click", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	click := decode[worker.ClickResult](t, rec)
	assert.Equal(t, 10.0, click.Center.Lat)
	assert.Equal(t, 20.0, click.Center.Lng)
	assert.True(t, click.PopupOpen)
}

func TestSnapshot(t *testing.T) {
	s := newTestServer(t)
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/maps/m/load", "").Code)
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/markers", `{"position":{"lat":1,"lng":2}}`).Code)

	rec := s.do(t, http.MethodGet, "/api/map/snapshot", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/geo+json", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), `"FeatureCollection"`)
}

func TestSave(t *testing.T) {
	s := newTestServer(t)
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/maps/m/load", "").Code)
	require.NoError(t, s.backend.DeleteMap("m"))

	rec := s.do(t, http.MethodPost, "/api/map/save", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	_, err := s.backend.LoadMap("m")
	assert.NoError(t, err)
}

func TestTileURL(t *testing.T) {
	s := newTestServer(t)
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/maps/m/load", "").Code)

	rec := s.do(t, http.MethodGet, "/api/tiles/url?at=10,10&zoom=1", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "https://b.tile.openstreetmap.org/1/1/0.png", decode[map[string]any](t, rec)["url"])

	rec = s.do(t, http.MethodGet, "/api/tiles/url?at=nowhere", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatus(t *testing.T) {
	s := newTestServer(t)
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/maps/m/load", "").Code)
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/markers", `{"position":{"lat":1,"lng":2}}`).Code)

	rec := s.do(t, http.MethodGet, "/api/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	st := decode[monitor.Status](t, rec)
	assert.True(t, st.Loaded)
	assert.Equal(t, "m", st.Map)
	assert.Equal(t, 1, st.Markers)
}

func TestInvalidMapName(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodPost, "/api/maps/../load", "")
	assert.NotEqual(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/maps/a:b/load", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodOptions, "/api/markers", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestStatusCode(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("wrap: %w", worker.ErrInvalidCommand), http.StatusBadRequest},
		{marker.ErrMissingPosition, http.StatusBadRequest},
		{storage.ErrInvalidName, http.StatusBadRequest},
		{clustermap.ErrIndexOutOfRange, http.StatusNotFound},
		{worker.ErrNoMap, http.StatusNotFound},
		{dispatcher.ErrUnknownCommand, http.StatusNotFound},
		{clustermap.ErrNotRendered, http.StatusConflict},
		{dispatcher.ErrQueueFull, http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, statusCode(tc.err), tc.err.Error())
	}
}
