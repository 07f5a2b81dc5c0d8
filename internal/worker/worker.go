// Package worker executes map commands against the active controller and
// keeps the stored copy of the map in step.
package worker

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/OCAP2/clustermap/internal/dispatcher"
	"github.com/OCAP2/clustermap/internal/engine/headless"
	"github.com/OCAP2/clustermap/internal/influx"
	"github.com/OCAP2/clustermap/internal/session"
	"github.com/OCAP2/clustermap/internal/storage"
	"github.com/OCAP2/clustermap/pkg/clustermap"
	"github.com/OCAP2/clustermap/pkg/core"
	"github.com/OCAP2/clustermap/pkg/engine"
)

// ErrInvalidCommand is returned when a command's parameters or body cannot
// be decoded
var ErrInvalidCommand = errors.New("invalid command")

// ErrNoMap is returned when no map is loaded
var ErrNoMap = errors.New("no map loaded")

// Dependencies holds all dependencies for the worker manager
type Dependencies struct {
	Engine    engine.Engine
	Container string
	Session   *session.Context
	// Backend persists the map after every change. Optional.
	Backend storage.Backend
	Logger  *slog.Logger
	// Options are passed to every controller the manager creates
	Options []clustermap.Option
}

// Manager runs map commands
type Manager struct {
	deps       Dependencies
	dispatcher *dispatcher.Dispatcher
}

// NewManager creates a new worker manager
func NewManager(deps Dependencies) *Manager {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Session == nil {
		deps.Session = session.NewContext()
	}
	return &Manager{deps: deps}
}

// Session returns the session the manager works on
func (m *Manager) Session() *session.Context {
	return m.deps.Session
}

// Load renders the named map in the container, replacing the active one.
// A name missing from the backend starts an empty map, which is stored right
// away so it shows up in the map list. If the new map fails
// to render, the previous one is rendered again.
func (m *Manager) Load(name string) (*clustermap.Controller, error) {
	if err := storage.ValidateName(name); err != nil {
		return nil, err
	}

	opts := clustermap.Options{}
	isNew := false
	if m.deps.Backend != nil {
		stored, err := m.deps.Backend.LoadMap(name)
		switch {
		case errors.Is(err, storage.ErrMapNotFound):
			m.deps.Logger.Info("Starting new map", "map", name)
			isNew = true
		case err != nil:
			return nil, err
		default:
			opts = stored.Options
		}
	}
	c, err := m.render(name, opts)
	if err != nil || !isNew {
		return c, err
	}
	return c, m.persist()
}

// Replace renders opts as the named map and stores it.
func (m *Manager) Replace(name string, opts clustermap.Options) (*clustermap.Controller, error) {
	if err := storage.ValidateName(name); err != nil {
		return nil, err
	}
	c, err := m.render(name, opts)
	if err != nil {
		return nil, err
	}
	return c, m.persist()
}

func (m *Manager) render(name string, opts clustermap.Options) (*clustermap.Controller, error) {
	start := time.Now()
	prevName := m.deps.Session.Name()
	prev := m.deps.Session.Controller()
	var prevOpts clustermap.Options
	if prev != nil {
		prevOpts = prev.Options()
		prev.Destroy()
	}

	c, err := clustermap.New(m.deps.Engine, m.deps.Container, opts, m.deps.Options...)
	if err != nil {
		if prev != nil {
			if restored, rerr := clustermap.New(m.deps.Engine, m.deps.Container, prevOpts, m.deps.Options...); rerr == nil {
				m.deps.Session.Set(prevName, restored)
			} else {
				m.deps.Session.Set("", nil)
				m.deps.Logger.Error("Failed to restore previous map", "map", prevName, "error", rerr)
			}
		}
		return nil, fmt.Errorf("rendering map %s: %w", name, err)
	}

	m.deps.Session.Set(name, c)
	m.emitStats(start)
	return c, nil
}

// controller returns the active controller or ErrNoMap
func (m *Manager) controller() (*clustermap.Controller, error) {
	c := m.deps.Session.Controller()
	if c == nil {
		return nil, ErrNoMap
	}
	return c, nil
}

// persist stores the active map, if a backend is configured
func (m *Manager) persist() error {
	if m.deps.Backend == nil {
		return nil
	}
	c, err := m.controller()
	if err != nil {
		return err
	}
	name := m.deps.Session.Name()
	if err := m.deps.Backend.SaveMap(&storage.StoredMap{Name: name, Options: c.Options()}); err != nil {
		return fmt.Errorf("storing map %s: %w", name, err)
	}
	return nil
}

// Stats describes the active map. It returns false when no map is loaded.
func (m *Manager) Stats() (influx.RenderStats, bool) {
	c := m.deps.Session.Controller()
	if c == nil || c.State() != clustermap.Rendered {
		return influx.RenderStats{}, false
	}
	return influx.RenderStats{
		Map:       m.deps.Session.Name(),
		Container: c.Container(),
		Markers:   c.Len(),
		Clusters:  clusterCount(c),
		Zoom:      c.Surface().Zoom(),
		Center:    c.Surface().Center(),
		Time:      time.Now(),
	}, true
}

// MarkerView describes one marker of the active map
type MarkerView struct {
	Index    int         `json:"index"`
	ID       string      `json:"id"`
	Position core.LatLng `json:"position"`
	Title    string      `json:"title"`
	Popup    string      `json:"popup,omitempty"`
}

// MapView describes the active map
type MapView struct {
	Name      string         `json:"name"`
	Container string         `json:"container"`
	State     string         `json:"state"`
	Center    core.LatLng    `json:"center"`
	Zoom      int            `json:"zoom"`
	Clusters  int            `json:"clusters"`
	Config    core.MapConfig `json:"config"`
	Markers   []MarkerView   `json:"markers"`
}

// ClickResult is the view after a marker click
type ClickResult struct {
	Index     int         `json:"index"`
	Center    core.LatLng `json:"center"`
	Zoom      int         `json:"zoom"`
	PopupOpen bool        `json:"popupOpen"`
}

func markerView(i int, mk engine.Marker) MarkerView {
	v := MarkerView{
		Index:    i,
		ID:       mk.LayerID(),
		Position: mk.LatLng(),
		Title:    mk.Options().Title,
	}
	if content, ok := mk.PopupContent(); ok {
		v.Popup = content
	}
	return v
}

func (m *Manager) view(c *clustermap.Controller) MapView {
	v := MapView{
		Name:      m.deps.Session.Name(),
		Container: c.Container(),
		State:     c.State().String(),
		Config:    c.Config(),
		Clusters:  clusterCount(c),
		Markers:   make([]MarkerView, 0, c.Len()),
	}
	if s := c.Surface(); s != nil {
		v.Center = s.Center()
		v.Zoom = s.Zoom()
	}
	for i, mk := range c.Markers() {
		v.Markers = append(v.Markers, markerView(i, mk))
	}
	return v
}

func clusterCount(c *clustermap.Controller) int {
	if src, ok := c.ClusterLayer().(interface{ Clusters() []headless.Cluster }); ok {
		return len(src.Clusters())
	}
	return 0
}
