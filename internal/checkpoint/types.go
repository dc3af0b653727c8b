package checkpoint

import (
	"context"
	"time"
)

type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Record is the persisted outcome of one work unit. At most one record
// exists per unit id; a later attempt overwrites an earlier one.
type Record struct {
	UnitID    string    `json:"unit_id"`
	Status    Status    `json:"status"`
	Detail    string    `json:"detail,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Summary struct {
	Succeeded int
	Failed    int
}

func (s Summary) Total() int {
	return s.Succeeded + s.Failed
}

// Store is the single source of truth for unit completion. Implementations
// must be safe for concurrent Record calls from multiple workers. A Store is
// always injected, never a package-level singleton, so tests can swap in an
// in-memory backend.
type Store interface {
	// Load reads previously persisted records. A missing backing file is
	// not an error (empty store); a structurally corrupt one is.
	Load(ctx context.Context) error

	// Record upserts the outcome for one unit.
	Record(ctx context.Context, unitID string, status Status, detail string) error

	// IsDone reports whether a record exists with status succeeded.
	IsDone(unitID string) bool

	// Failed returns the records currently marked failed, for diagnosis.
	Failed() []Record

	Summary() Summary

	// Flush durably persists in-memory state. Called after each batch and
	// before process exit; a crash loses at most the in-flight batch.
	Flush(ctx context.Context) error

	Close() error
}
