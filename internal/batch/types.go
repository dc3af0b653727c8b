package batch

import "context"

// Unit is one indivisible piece of work: read one source, write one target.
// The ID is derived deterministically from the source reference, so
// re-enumerating an unchanged tree yields the same ids.
type Unit struct {
	ID     string
	Source string
	Target string
	Meta   map[string]string
}

// ProcessFunc transforms one unit. A nil return records the unit as
// succeeded, a non-nil return as failed with the error text as detail.
// The pool never retries within a run; failed units stay residual and are
// picked up by the next run's plan.
type ProcessFunc func(ctx context.Context, unit Unit) error

// Enumerator produces the canonical unit set for a stage. Enumeration never
// consults the status store; completion tracking is a separate concern.
type Enumerator interface {
	Enumerate(ctx context.Context) ([]Unit, error)
}
