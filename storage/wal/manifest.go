package wal

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// BatchMeta describes one flushed columnar batch file (spec.md §6 "Manifest
// fields (per relation)").
type BatchMeta struct {
	File     string `json:"file"`
	RowCount int    `json:"row_count"`
	MinTime  int64  `json:"min_time"`
	MaxTime  int64  `json:"max_time"`
}

// Manifest is the durable record of a relation's live batches and WAL
// coverage (spec.md §4.8, §6).
type Manifest struct {
	Generation int         `json:"generation"`
	Batches    []BatchMeta `json:"batches"`
	WALOffset  int64       `json:"wal_offset"`
}

// LoadManifest reads a manifest from path, returning a fresh empty manifest
// if the file does not yet exist (a brand-new relation).
func LoadManifest(path string) (Manifest, error) {
	buf, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Manifest{}, nil
	}
	if err != nil {
		return Manifest{}, errors.Wrapf(err, "manifest: read %s", path)
	}
	var m Manifest
	if err := json.Unmarshal(buf, &m); err != nil {
		return Manifest{}, errors.Wrapf(err, "manifest: decode %s", path)
	}
	return m, nil
}

// SaveManifest writes m durably: temp file, fsync, atomic rename — the same
// two-fsync-then-rename sequence the flush path uses for the batch file
// itself (spec.md §4.8 "write a new manifest to a temporary path, fsync it,
// atomically rename the manifest into place").
func SaveManifest(path string, m Manifest) error {
	buf, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return errors.Wrap(err, "manifest: encode")
	}
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "manifest-*.tmp")
	if err != nil {
		return errors.Wrap(err, "manifest: create temp file")
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(buf); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return errors.Wrap(err, "manifest: write temp file")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return errors.Wrap(err, "manifest: fsync temp file")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return errors.Wrap(err, "manifest: close temp file")
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return errors.Wrap(err, "manifest: rename into place")
	}
	return nil
}
