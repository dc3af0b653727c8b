// Package stages holds the pipeline's processing stages. Each stage
// enumerates its canonical unit set deterministically from configuration
// and input trees, never from completion state, and processes one unit at
// a time under the worker pool.
package stages

import (
	"context"

	"github.com/chenyuyou/shifting-work-hours/internal/batch"
)

// Stage is one checkpointed pipeline step. Name scopes the stage's status
// ledger; Enumerate yields the full unit set; Process handles one unit.
type Stage interface {
	Name() string
	Enumerate(ctx context.Context) ([]batch.Unit, error)
	Process(ctx context.Context, unit batch.Unit) error
}
