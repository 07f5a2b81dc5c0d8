// Package memory keeps maps in memory and snapshots them to a directory on
// close, so the next run can pick them up again.
package memory

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/OCAP2/clustermap/internal/config"
	"github.com/OCAP2/clustermap/internal/storage"
	"github.com/klauspost/compress/zstd"
)

const (
	extJSON = ".json"
	extZstd = ".json.zst"
)

type record struct {
	options   []byte
	updatedAt time.Time
}

// Backend stores maps in memory
type Backend struct {
	cfg  config.MemoryConfig
	maps map[string]record
	// removed holds names whose snapshot files must go on Close
	removed map[string]struct{}
	mu      sync.RWMutex
}

// New creates a new memory backend
func New(cfg config.MemoryConfig) *Backend {
	return &Backend{
		cfg:     cfg,
		maps:    make(map[string]record),
		removed: make(map[string]struct{}),
	}
}

// Init loads the snapshots left in the snapshot directory, if any.
func (b *Backend) Init() error {
	if b.cfg.SnapshotDir == "" {
		return nil
	}

	entries, err := os.ReadDir(b.cfg.SnapshotDir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read snapshot directory: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name, ok := snapshotName(e.Name())
		if !ok {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return fmt.Errorf("failed to stat snapshot %s: %w", e.Name(), err)
		}
		data, err := readSnapshot(filepath.Join(b.cfg.SnapshotDir, e.Name()))
		if err != nil {
			return err
		}
		b.maps[name] = record{options: data, updatedAt: info.ModTime()}
	}
	return nil
}

// Close writes every map to the snapshot directory.
func (b *Backend) Close() error {
	if b.cfg.SnapshotDir == "" {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if err := os.MkdirAll(b.cfg.SnapshotDir, 0755); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	for name := range b.removed {
		for _, ext := range []string{extJSON, extZstd} {
			err := os.Remove(filepath.Join(b.cfg.SnapshotDir, name+ext))
			if err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("failed to remove snapshot of %s: %w", name, err)
			}
		}
	}
	b.removed = make(map[string]struct{})

	for name, rec := range b.maps {
		if err := b.writeSnapshot(name, rec.options); err != nil {
			return err
		}
	}
	return nil
}

// SaveMap stores a copy of m's options.
func (b *Backend) SaveMap(m *storage.StoredMap) error {
	if err := storage.ValidateName(m.Name); err != nil {
		return err
	}
	data, err := json.Marshal(m.Options)
	if err != nil {
		return fmt.Errorf("failed to encode map %s: %w", m.Name, err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	m.UpdatedAt = time.Now()
	b.maps[m.Name] = record{options: data, updatedAt: m.UpdatedAt}
	delete(b.removed, m.Name)
	return nil
}

// LoadMap returns a copy of the named map.
func (b *Backend) LoadMap(name string) (*storage.StoredMap, error) {
	b.mu.RLock()
	rec, ok := b.maps[name]
	b.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", storage.ErrMapNotFound, name)
	}

	m := &storage.StoredMap{Name: name, UpdatedAt: rec.updatedAt}
	if err := json.Unmarshal(rec.options, &m.Options); err != nil {
		return nil, fmt.Errorf("failed to decode map %s: %w", name, err)
	}
	return m, nil
}

// ListMaps returns the stored names in ascending order.
func (b *Backend) ListMaps() ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	names := make([]string, 0, len(b.maps))
	for name := range b.maps {
		names = append(names, name)
	}
	slices.Sort(names)
	return names, nil
}

// DeleteMap removes the named map. Its snapshot is removed on Close.
func (b *Backend) DeleteMap(name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.maps[name]; !ok {
		return fmt.Errorf("%w: %s", storage.ErrMapNotFound, name)
	}
	delete(b.maps, name)
	b.removed[name] = struct{}{}
	return nil
}

// SnapshotPath returns where Close writes the named map.
func (b *Backend) SnapshotPath(name string) string {
	ext := extJSON
	if b.cfg.CompressSnapshot {
		ext = extZstd
	}
	return filepath.Join(b.cfg.SnapshotDir, name+ext)
}

func (b *Backend) writeSnapshot(name string, data []byte) error {
	path := b.SnapshotPath(name)

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create snapshot %s: %w", path, err)
	}
	defer f.Close()

	var w io.Writer = f
	var enc *zstd.Encoder
	if b.cfg.CompressSnapshot {
		enc, err = zstd.NewWriter(f)
		if err != nil {
			return fmt.Errorf("failed to create zstd writer: %w", err)
		}
		w = enc
	}

	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write snapshot %s: %w", path, err)
	}
	if enc != nil {
		if err := enc.Close(); err != nil {
			return fmt.Errorf("failed to flush snapshot %s: %w", path, err)
		}
	}

	// the other format would shadow this one on the next Init
	other := filepath.Join(b.cfg.SnapshotDir, name+extJSON)
	if !b.cfg.CompressSnapshot {
		other = filepath.Join(b.cfg.SnapshotDir, name+extZstd)
	}
	if err := os.Remove(other); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove stale snapshot %s: %w", other, err)
	}
	return nil
}

func readSnapshot(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot %s: %w", path, err)
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, extZstd) {
		dec, err := zstd.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd reader: %w", err)
		}
		defer dec.Close()
		r = dec
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot %s: %w", path, err)
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("snapshot %s is not valid JSON", path)
	}
	return data, nil
}

// snapshotName strips a snapshot extension from a file name.
func snapshotName(file string) (string, bool) {
	for _, ext := range []string{extZstd, extJSON} {
		if name, ok := strings.CutSuffix(file, ext); ok && name != "" {
			return name, true
		}
	}
	return "", false
}
