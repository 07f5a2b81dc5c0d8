// Package storage persists named maps: the options a controller is built
// from, including its ordered marker specs.
package storage

import (
	"errors"
	"strings"
	"time"

	"github.com/OCAP2/clustermap/internal/config"
)

// ErrMapNotFound is returned when no map is stored under a name
var ErrMapNotFound = errors.New("map not found")

// ErrInvalidName is returned for names that cannot be stored
var ErrInvalidName = errors.New("invalid map name")

// StoredMap is a named set of controller options
type StoredMap struct {
	Name      string
	Options   config.Options
	UpdatedAt time.Time
}

// Backend is the interface all storage implementations must satisfy
type Backend interface {
	// Lifecycle
	Init() error
	Close() error

	// SaveMap creates or replaces the map stored under m.Name and sets
	// m.UpdatedAt.
	SaveMap(m *StoredMap) error
	LoadMap(name string) (*StoredMap, error)
	// ListMaps returns the stored names in ascending order.
	ListMaps() ([]string, error)
	DeleteMap(name string) error
}

// ValidateName rejects names that would not survive as a file name.
func ValidateName(name string) error {
	if name == "" || strings.ContainsAny(name, `/\:`) || name == "." || name == ".." {
		return ErrInvalidName
	}
	return nil
}
