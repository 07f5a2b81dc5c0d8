package worker

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/OCAP2/clustermap/internal/dispatcher"
	"github.com/OCAP2/clustermap/internal/engine/headless"
	"github.com/OCAP2/clustermap/internal/geo"
	"github.com/OCAP2/clustermap/internal/snapshot"
	"github.com/OCAP2/clustermap/internal/tiles"
	"github.com/OCAP2/clustermap/pkg/core"
	"github.com/OCAP2/clustermap/pkg/engine"
)

// Command names
const (
	CmdMapGet       = "map.get"
	CmdMapLoad      = "map.load"
	CmdMapSave      = "map.save"
	CmdMapSnapshot  = "map.snapshot"
	CmdMarkerAdd    = "marker.add"
	CmdMarkerRemove = "marker.remove"
	CmdMarkerPopup  = "marker.popup"
	CmdMarkerClick  = "marker.click"
	CmdTileURL      = "tiles.url"
	CmdStatsRender  = "stats.render"
)

// RegisterHandlers registers the map commands with the dispatcher. All of
// them run serialized since they touch the controller.
func (m *Manager) RegisterHandlers(d *dispatcher.Dispatcher) {
	m.dispatcher = d

	// read-only
	d.Register(CmdMapGet, m.handleMapGet)
	d.Register(CmdMapSnapshot, m.handleMapSnapshot)
	d.Register(CmdTileURL, m.handleTileURL)

	// map lifecycle
	d.Register(CmdMapLoad, m.handleMapLoad, dispatcher.Logged())
	d.Register(CmdMapSave, m.handleMapSave, dispatcher.Logged())

	// markers
	d.Register(CmdMarkerAdd, m.handleMarkerAdd, dispatcher.Logged())
	d.Register(CmdMarkerRemove, m.handleMarkerRemove, dispatcher.Logged())
	d.Register(CmdMarkerPopup, m.handleMarkerPopup, dispatcher.Logged())
	d.Register(CmdMarkerClick, m.handleMarkerClick, dispatcher.Logged())
}

// RegisterStats registers h to receive render statistics after every change
// to the map. Stats are queued, so h never runs inside a map command.
func RegisterStats(d *dispatcher.Dispatcher, h dispatcher.HandlerFunc, queueSize int) {
	d.Register(CmdStatsRender, h, dispatcher.Buffered(queueSize), dispatcher.Logged())
}

func (m *Manager) emitStats(start time.Time) {
	if m.dispatcher == nil || !m.dispatcher.HasHandler(CmdStatsRender) {
		return
	}
	stats, ok := m.Stats()
	if !ok {
		return
	}
	stats.Duration = time.Since(start)

	body, err := json.Marshal(stats)
	if err != nil {
		m.deps.Logger.Error("Failed to encode render stats", "error", err)
		return
	}
	if _, err := m.dispatcher.Dispatch(dispatcher.Command{Name: CmdStatsRender, Body: body}); err != nil {
		m.deps.Logger.Warn("Dropped render stats", "error", err)
	}
}

func (m *Manager) handleMapGet(c dispatcher.Command) (any, error) {
	ctrl, err := m.controller()
	if err != nil {
		return nil, err
	}
	return m.view(ctrl), nil
}

func (m *Manager) handleMapLoad(c dispatcher.Command) (any, error) {
	ctrl, err := m.Load(c.Param("name"))
	if err != nil {
		return nil, err
	}
	return m.view(ctrl), nil
}

func (m *Manager) handleMapSave(c dispatcher.Command) (any, error) {
	if _, err := m.controller(); err != nil {
		return nil, err
	}
	return nil, m.persist()
}

func (m *Manager) handleMapSnapshot(c dispatcher.Command) (any, error) {
	ctrl, err := m.controller()
	if err != nil {
		return nil, err
	}
	return snapshot.Build(ctrl)
}

func (m *Manager) handleMarkerAdd(c dispatcher.Command) (any, error) {
	start := time.Now()
	ctrl, err := m.controller()
	if err != nil {
		return nil, err
	}

	spec, err := decodeSpec(c.Body)
	if err != nil {
		return nil, err
	}

	i, err := ctrl.AddMarker(spec)
	if err != nil {
		return nil, err
	}
	if err := m.persist(); err != nil {
		return nil, err
	}
	m.emitStats(start)

	mk, err := ctrl.Marker(i)
	if err != nil {
		return nil, err
	}
	return markerView(i, mk), nil
}

func (m *Manager) handleMarkerRemove(c dispatcher.Command) (any, error) {
	start := time.Now()
	ctrl, err := m.controller()
	if err != nil {
		return nil, err
	}

	i, err := indexParam(c)
	if err != nil {
		return nil, err
	}
	if err := ctrl.RemoveMarker(i); err != nil {
		return nil, err
	}
	if err := m.persist(); err != nil {
		return nil, err
	}
	m.emitStats(start)

	return map[string]int{"removed": i, "markers": ctrl.Len()}, nil
}

func (m *Manager) handleMarkerPopup(c dispatcher.Command) (any, error) {
	ctrl, err := m.controller()
	if err != nil {
		return nil, err
	}

	i, err := indexParam(c)
	if err != nil {
		return nil, err
	}
	mk, err := ctrl.Marker(i)
	if err != nil {
		return nil, err
	}
	spec, err := decodeSpec(c.Body)
	if err != nil {
		return nil, err
	}

	if err := ctrl.AddPopup(spec, mk); err != nil {
		return nil, err
	}
	if err := m.persist(); err != nil {
		return nil, err
	}
	return markerView(i, mk), nil
}

type clickable interface {
	Click() *engine.Event
}

func (m *Manager) handleMarkerClick(c dispatcher.Command) (any, error) {
	ctrl, err := m.controller()
	if err != nil {
		return nil, err
	}

	i, err := indexParam(c)
	if err != nil {
		return nil, err
	}
	mk, err := ctrl.Marker(i)
	if err != nil {
		return nil, err
	}
	target, ok := mk.(clickable)
	if !ok {
		return nil, fmt.Errorf("%w: engine markers cannot be clicked", ErrInvalidCommand)
	}
	target.Click()

	s := ctrl.Surface()
	res := ClickResult{Index: i, Center: s.Center(), Zoom: s.Zoom()}
	if hs, ok := s.(*headless.Surface); ok {
		res.PopupOpen = hs.Popup() != nil
	}
	return res, nil
}

func (m *Manager) handleTileURL(c dispatcher.Command) (any, error) {
	ctrl, err := m.controller()
	if err != nil {
		return nil, err
	}

	ll, err := geo.ParseLatLng(c.Param("at"))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCommand, err)
	}

	zoom := ctrl.Surface().Zoom()
	if z := c.Param("zoom"); z != "" {
		if zoom, err = strconv.Atoi(z); err != nil {
			return nil, fmt.Errorf("%w: zoom %q", ErrInvalidCommand, z)
		}
	}

	layer := ctrl.TileLayer()
	tile := tiles.At(ll, zoom)
	return map[string]any{
		"url": tiles.Expand(layer.URLTemplate(), layer.Options().Subdomains, tile),
		"x":   tile.X,
		"y":   tile.Y,
		"z":   uint32(tile.Z),
	}, nil
}

func decodeSpec(body []byte) (core.MarkerSpec, error) {
	var spec core.MarkerSpec
	if err := json.Unmarshal(body, &spec); err != nil {
		return spec, fmt.Errorf("%w: %w", ErrInvalidCommand, err)
	}
	return spec, nil
}

func indexParam(c dispatcher.Command) (int, error) {
	i, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		return 0, fmt.Errorf("%w: index %q", ErrInvalidCommand, c.Param("index"))
	}
	return i, nil
}
