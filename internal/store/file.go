package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// FilePersister stores the state as a single JSON document on disk.
// Saves write to a temp file in the same directory and rename into
// place so a crash mid-write never corrupts the previous snapshot.
type FilePersister struct {
	path string
}

// NewFilePersister creates a persister writing to the given path,
// creating parent directories as needed.
func NewFilePersister(path string) (*FilePersister, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}
	return &FilePersister{path: path}, nil
}

// Load reads the snapshot. A missing file returns (nil, nil); a
// corrupt file returns an error so the store can fall back to empty
// state.
func (f *FilePersister) Load(_ context.Context) (*State, error) {
	data, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read state file: %w", err)
	}
	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("parse state file: %w", err)
	}
	return &st, nil
}

// Save writes the snapshot atomically.
func (f *FilePersister) Save(_ context.Context, st State) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write state file: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("replace state file: %w", err)
	}
	return nil
}

// Close is a no-op for file persistence.
func (f *FilePersister) Close() error { return nil }
