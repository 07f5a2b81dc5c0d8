// Package gormstorage implements storage.Backend on any GORM dialect. Map
// saves are written immediately; the revision history is queued and written
// in batches by a background goroutine.
package gormstorage

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/OCAP2/clustermap/internal/queue"
	"github.com/OCAP2/clustermap/internal/storage"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DefaultFlushInterval is how often queued revisions are written
const DefaultFlushInterval = time.Second

const revisionBatchSize = 500

// MapRecord is the stored form of a named map.
type MapRecord struct {
	ID          uint           `gorm:"primarykey"`
	Name        string         `gorm:"size:255;not null;uniqueIndex"`
	Options     datatypes.JSON `gorm:"not null"`
	MarkerCount int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// MapRevision records one save of a map.
type MapRevision struct {
	ID          uint   `gorm:"primarykey"`
	MapName     string `gorm:"size:255;not null;index"`
	MarkerCount int
	Options     datatypes.JSON
	SavedAt     time.Time `gorm:"index"`
}

// Models lists every table the backend needs.
var Models = []any{&MapRecord{}, &MapRevision{}}

// Dependencies holds all dependencies for the GORM storage backend.
type Dependencies struct {
	DB     *gorm.DB
	Logger *slog.Logger
	// FlushInterval defaults to DefaultFlushInterval
	FlushInterval time.Duration
}

// Backend implements storage.Backend using GORM.
type Backend struct {
	deps      Dependencies
	revisions *queue.Queue[MapRevision]
	stopChan  chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// New creates a new GORM storage backend.
func New(deps Dependencies) *Backend {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.FlushInterval <= 0 {
		deps.FlushInterval = DefaultFlushInterval
	}
	return &Backend{
		deps:      deps,
		revisions: queue.New[MapRevision](),
	}
}

// Init migrates the schema and starts the revision writer.
func (b *Backend) Init() error {
	if b.deps.DB == nil {
		return fmt.Errorf("no database configured")
	}
	if err := b.deps.DB.AutoMigrate(Models...); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}

	b.stopChan = make(chan struct{})
	b.done = make(chan struct{})
	go b.writeLoop()

	b.deps.Logger.Debug("GORM storage ready", "dialect", b.deps.DB.Name())
	return nil
}

// Close stops the revision writer after writing what is still queued.
func (b *Backend) Close() error {
	if b.stopChan == nil {
		return nil
	}
	b.closeOnce.Do(func() {
		close(b.stopChan)
		<-b.done
	})
	return b.flushRevisions()
}

// DB returns the underlying connection.
func (b *Backend) DB() *gorm.DB {
	return b.deps.DB
}

// SaveMap upserts the map by name and queues a revision.
func (b *Backend) SaveMap(m *storage.StoredMap) error {
	if err := storage.ValidateName(m.Name); err != nil {
		return err
	}
	data, err := json.Marshal(m.Options)
	if err != nil {
		return fmt.Errorf("failed to encode map %s: %w", m.Name, err)
	}

	now := time.Now()
	rec := MapRecord{
		Name:        m.Name,
		Options:     datatypes.JSON(data),
		MarkerCount: len(m.Options.Markers),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err = b.deps.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"options", "marker_count", "updated_at"}),
	}).Create(&rec).Error
	if err != nil {
		return fmt.Errorf("failed to save map %s: %w", m.Name, err)
	}

	m.UpdatedAt = now
	b.revisions.Push(MapRevision{
		MapName:     m.Name,
		MarkerCount: rec.MarkerCount,
		Options:     rec.Options,
		SavedAt:     now,
	})
	return nil
}

// LoadMap returns the named map.
func (b *Backend) LoadMap(name string) (*storage.StoredMap, error) {
	var rec MapRecord
	err := b.deps.DB.Where("name = ?", name).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", storage.ErrMapNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load map %s: %w", name, err)
	}

	m := &storage.StoredMap{Name: rec.Name, UpdatedAt: rec.UpdatedAt}
	if err := json.Unmarshal(rec.Options, &m.Options); err != nil {
		return nil, fmt.Errorf("failed to decode map %s: %w", name, err)
	}
	return m, nil
}

// ListMaps returns the stored names in ascending order.
func (b *Backend) ListMaps() ([]string, error) {
	var names []string
	if err := b.deps.DB.Model(&MapRecord{}).Order("name").Pluck("name", &names).Error; err != nil {
		return nil, fmt.Errorf("failed to list maps: %w", err)
	}
	return names, nil
}

// DeleteMap removes the named map. Its revisions are kept.
func (b *Backend) DeleteMap(name string) error {
	res := b.deps.DB.Where("name = ?", name).Delete(&MapRecord{})
	if res.Error != nil {
		return fmt.Errorf("failed to delete map %s: %w", name, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", storage.ErrMapNotFound, name)
	}
	return nil
}

// Revisions returns the written revisions of a map, oldest first. Revisions
// still queued are not included.
func (b *Backend) Revisions(name string) ([]MapRevision, error) {
	var revs []MapRevision
	err := b.deps.DB.Where("map_name = ?", name).Order("saved_at, id").Find(&revs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load revisions of %s: %w", name, err)
	}
	return revs, nil
}

// PendingRevisions returns how many revisions wait for the writer.
func (b *Backend) PendingRevisions() int {
	return b.revisions.Len()
}

func (b *Backend) writeLoop() {
	defer close(b.done)

	ticker := time.NewTicker(b.deps.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopChan:
			return
		case <-ticker.C:
			if err := b.flushRevisions(); err != nil {
				b.deps.Logger.Error("Failed to write revisions", "error", err)
			}
		}
	}
}

// flushRevisions writes every queued revision. A failed batch goes back to
// the front of the queue.
func (b *Backend) flushRevisions() error {
	for {
		batch := b.revisions.Drain(revisionBatchSize)
		if len(batch) == 0 {
			return nil
		}
		start := time.Now()
		if err := b.deps.DB.Create(&batch).Error; err != nil {
			b.revisions.Requeue(batch...)
			return fmt.Errorf("failed to insert %d revisions: %w", len(batch), err)
		}
		b.deps.Logger.Debug("Wrote revisions", "count", len(batch), "duration", time.Since(start))
	}
}
