package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// ExportAll serializes every thread's full snapshot to a single JSON array
// at destination and returns the written path. The array is ordered by
// creation time then thread id and the file is replaced atomically, so
// repeated exports over unchanged data produce identical artifacts.
func (s *Store) ExportAll(destination string) (string, error) {
	ids, err := s.ListThreadIDs()
	if err != nil {
		return "", fmt.Errorf("listing threads: %w", err)
	}

	snapshots := make([]ThreadSnapshot, 0, len(ids))
	for _, id := range ids {
		snap, err := s.GetThread(id)
		if err != nil {
			return "", fmt.Errorf("snapshotting thread %s: %w", id, err)
		}
		snapshots = append(snapshots, snap)
	}

	buf, err := json.MarshalIndent(snapshots, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding export: %w", err)
	}

	dir := filepath.Dir(destination)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating export directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".export-*.json")
	if err != nil {
		return "", fmt.Errorf("creating temp export file: %w", err)
	}
	if _, err := tmp.Write(buf); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("writing export: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("closing export file: %w", err)
	}
	if err := os.Rename(tmp.Name(), destination); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("replacing export file: %w", err)
	}
	return destination, nil
}
