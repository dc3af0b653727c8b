package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrCorrupt marks a status file that exists but cannot be parsed. Loading
// fails loudly instead of silently discarding completion history; removing
// the file is an explicit user action to force a full redo.
var ErrCorrupt = errors.New("checkpoint: status file is corrupt")

// FileStore persists records as a JSON mapping, human-inspectable and
// rewritten atomically (temp file + rename) on each flush.
type FileStore struct {
	path string
	mem  *MemoryStore
}

func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, fmt.Errorf("status file path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create status directory: %w", err)
	}
	return &FileStore{
		path: path,
		mem:  NewMemoryStore(),
	}, nil
}

func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) Load(_ context.Context) error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read status file: %w", err)
	}

	records := make(map[string]Record)
	if err := json.Unmarshal(data, &records); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrCorrupt, s.path, err)
	}
	for id, rec := range records {
		if rec.UnitID == "" {
			rec.UnitID = id
			records[id] = rec
		}
	}

	s.mem.replace(records)
	return nil
}

func (s *FileStore) Record(ctx context.Context, unitID string, status Status, detail string) error {
	return s.mem.Record(ctx, unitID, status, detail)
}

func (s *FileStore) IsDone(unitID string) bool {
	return s.mem.IsDone(unitID)
}

func (s *FileStore) Failed() []Record {
	return s.mem.Failed()
}

func (s *FileStore) Summary() Summary {
	return s.mem.Summary()
}

// Flush writes the full mapping to a temp file in the same directory and
// renames it over the status file, so an interruption mid-write never leaves
// a truncated file behind.
func (s *FileStore) Flush(_ context.Context) error {
	records := s.mem.snapshot()

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("encode status file: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp status file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp status file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("sync temp status file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp status file: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("replace status file: %w", err)
	}
	return nil
}

func (s *FileStore) Close() error {
	return nil
}
