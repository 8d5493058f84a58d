package reservation

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// snapshotPermissions restricts the reservation document to the owner.
const snapshotPermissions = 0600

// snapshot is the persisted reservation collection. It is replaced
// wholesale on every mutation.
type snapshot struct {
	Reservations []Reservation `json:"reservations"`

	// PendingDisinfection maps kennel ID to store ID for kennels whose
	// active reservation ended but whose cleaning has not been confirmed.
	PendingDisinfection map[int]string `json:"pendingDisinfection"`
}

// SnapshotStore persists the reservation collection as a single JSON
// document, atomically replaced on each save.
type SnapshotStore struct {
	path string
}

// NewSnapshotStore creates a store writing to the given path. The parent
// directory is created on first save if missing.
func NewSnapshotStore(path string) *SnapshotStore {
	return &SnapshotStore{path: path}
}

// Load reads the persisted snapshot. A missing file yields an empty
// snapshot, not an error, so first boot needs no special casing.
func (s *SnapshotStore) Load() (*snapshot, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return &snapshot{PendingDisinfection: map[int]string{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading reservation snapshot: %w", err)
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decoding reservation snapshot: %w", err)
	}
	if snap.PendingDisinfection == nil {
		snap.PendingDisinfection = map[int]string{}
	}
	return &snap, nil
}

// Save atomically replaces the snapshot document. The document is written
// to a temp file in the same directory and renamed over the target, so a
// crash mid-write leaves the previous snapshot intact.
func (s *SnapshotStore) Save(snap *snapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding reservation snapshot: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("creating snapshot directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating snapshot temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing snapshot temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("syncing snapshot temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing snapshot temp file: %w", err)
	}

	if err := os.Chmod(tmpName, snapshotPermissions); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("restricting snapshot permissions: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replacing snapshot: %w", err)
	}
	return nil
}
