package batch

import (
	"context"
	"fmt"
	"sync"

	"github.com/chenyuyou/shifting-work-hours/internal/checkpoint"
	"github.com/chenyuyou/shifting-work-hours/pkg/log"
)

// Result totals one pool run. Failed units are inspectable individually
// through the status store; these are just the counts.
type Result struct {
	Processed int
	Succeeded int
	Failed    int
}

// Pool executes a process function over a residual unit list with a bounded
// number of workers. Each worker repeatedly claims the next batch of up to
// BatchSize units until the list is exhausted. Unit failures are recorded
// and swallowed; a status-store write failure aborts the whole run, since
// untracked completions would cause duplicate reprocessing or false
// completeness.
type Pool struct {
	Concurrency int
	BatchSize   int
}

func (p Pool) Run(ctx context.Context, units []Unit, fn ProcessFunc, store checkpoint.Store, progress *Progress) (Result, error) {
	concurrency := p.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	batchSize := p.BatchSize
	if batchSize <= 0 {
		batchSize = 1
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		mu        sync.Mutex
		next      int
		result    Result
		fatalOnce sync.Once
		fatalErr  error
	)

	fatal := func(err error) {
		fatalOnce.Do(func() {
			fatalErr = err
			cancel()
		})
	}

	claimBatch := func() []Unit {
		mu.Lock()
		defer mu.Unlock()
		if next >= len(units) {
			return nil
		}
		end := next + batchSize
		if end > len(units) {
			end = len(units)
		}
		batch := units[next:end]
		next = end
		return batch
	}

	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				if runCtx.Err() != nil {
					return
				}
				batch := claimBatch()
				if batch == nil {
					return
				}

				for _, unit := range batch {
					if runCtx.Err() != nil {
						return
					}

					err := runUnit(runCtx, fn, unit)

					// An interrupt mid-unit leaves the unit unrecorded; it
					// stays residual and is retried on the next run.
					if runCtx.Err() != nil && err != nil {
						return
					}

					status := checkpoint.StatusSucceeded
					detail := ""
					if err != nil {
						status = checkpoint.StatusFailed
						detail = err.Error()
						log.Warn("unit %s failed: %v", unit.ID, err)
					}
					// Recording outlives cancellation: a unit that fully
					// completed must be reflected in the store even when the
					// run is being interrupted.
					if recErr := store.Record(context.WithoutCancel(runCtx), unit.ID, status, detail); recErr != nil {
						fatal(fmt.Errorf("record unit %s: %w", unit.ID, recErr))
						return
					}

					mu.Lock()
					result.Processed++
					if err != nil {
						result.Failed++
					} else {
						result.Succeeded++
					}
					mu.Unlock()

					if progress != nil {
						progress.UnitDone(err == nil)
					}
				}

				// Flush after each batch so a crash loses at most the
				// in-flight batch.
				if err := store.Flush(runCtx); err != nil {
					fatal(fmt.Errorf("flush status store: %w", err))
					return
				}
			}
		}()
	}
	wg.Wait()

	if fatalErr != nil {
		return result, fatalErr
	}
	if err := ctx.Err(); err != nil {
		return result, err
	}
	if err := store.Flush(ctx); err != nil {
		return result, fmt.Errorf("flush status store: %w", err)
	}
	return result, nil
}

// runUnit invokes fn and converts a panic into a per-unit failure so one
// misbehaving input never takes down the pool.
func runUnit(ctx context.Context, fn ProcessFunc, unit Unit) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic processing unit: %v", r)
		}
	}()
	return fn(ctx, unit)
}
