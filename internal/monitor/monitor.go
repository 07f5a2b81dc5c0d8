// Package monitor periodically reports the state of the served map.
package monitor

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/OCAP2/clustermap/internal/dispatcher"
	"github.com/OCAP2/clustermap/internal/influx"
	"github.com/OCAP2/clustermap/internal/worker"
)

// DefaultInterval is used when Dependencies.Interval is zero
const DefaultInterval = 10 * time.Second

// Status is a point-in-time description of the served map
type Status struct {
	Time             time.Time `json:"time"`
	Loaded           bool      `json:"loaded"`
	Map              string    `json:"map,omitempty"`
	Markers          int       `json:"markers"`
	Clusters         int       `json:"clusters"`
	Zoom             int       `json:"zoom"`
	PendingRevisions int       `json:"pendingRevisions"`
}

// Dependencies holds all dependencies for the monitor service
type Dependencies struct {
	Dispatcher *dispatcher.Dispatcher
	Worker     *worker.Manager
	Logger     *slog.Logger
	Interval   time.Duration
	// StatusFile is rewritten with the latest status on every tick. Optional.
	StatusFile string
	// PendingRevisions reports revisions not yet written by the backend. Optional.
	PendingRevisions func() int
	// Sink receives the map stats on every tick while a map is loaded. Optional.
	Sink func(influx.RenderStats) error
}

// Service manages status monitoring
type Service struct {
	deps      Dependencies
	isRunning bool
	mu        sync.RWMutex
	stopChan  chan struct{}
	done      chan struct{}
}

// NewService creates a new monitor service
func NewService(deps Dependencies) *Service {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Interval <= 0 {
		deps.Interval = DefaultInterval
	}
	return &Service{deps: deps}
}

// IsRunning returns whether the status monitor is running
func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Status reads the current state of the map. The controller is read between
// commands, never while one runs.
func (s *Service) Status() Status {
	st, _ := s.status()
	return st
}

func (s *Service) status() (Status, influx.RenderStats) {
	var (
		stats influx.RenderStats
		ok    bool
	)
	read := func() { stats, ok = s.deps.Worker.Stats() }
	if s.deps.Dispatcher != nil {
		s.deps.Dispatcher.Serialized(read)
	} else {
		read()
	}

	st := Status{Time: time.Now(), Loaded: ok}
	if ok {
		st.Map = stats.Map
		st.Markers = stats.Markers
		st.Clusters = stats.Clusters
		st.Zoom = stats.Zoom
	}
	if s.deps.PendingRevisions != nil {
		st.PendingRevisions = s.deps.PendingRevisions()
	}
	return st, stats
}

// Tick takes one status reading, writes the status file and feeds the sink.
func (s *Service) Tick() (Status, error) {
	st, stats := s.status()

	if s.deps.StatusFile != "" {
		data, err := json.MarshalIndent(st, "", "  ")
		if err != nil {
			return st, fmt.Errorf("encoding status: %w", err)
		}
		if err := os.WriteFile(s.deps.StatusFile, append(data, '\n'), 0644); err != nil {
			return st, fmt.Errorf("writing status file: %w", err)
		}
	}

	if st.Loaded && s.deps.Sink != nil {
		if err := s.deps.Sink(stats); err != nil {
			return st, fmt.Errorf("writing stats: %w", err)
		}
	}
	return st, nil
}

// Start starts the status monitor goroutine
func (s *Service) Start() error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = true
	s.stopChan = make(chan struct{})
	s.done = make(chan struct{})
	stop, done := s.stopChan, s.done
	s.mu.Unlock()

	go func() {
		defer close(done)

		logger := s.deps.Logger
		logger.Debug("Starting status monitor", "interval", s.deps.Interval)

		ticker := time.NewTicker(s.deps.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				st, err := s.Tick()
				if err != nil {
					logger.Error("Status update failed", "error", err)
					continue
				}
				if st.Loaded {
					logger.Debug("Map status", "map", st.Map, "markers", st.Markers,
						"clusters", st.Clusters, "pendingRevisions", st.PendingRevisions)
				}
			}
		}
	}()

	return nil
}

// Stop stops the status monitor and waits for it to exit
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = false
	close(s.stopChan)
	done := s.done
	s.mu.Unlock()
	<-done
}
