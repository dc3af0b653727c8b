package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chenyuyou/shifting-work-hours/internal/checkpoint"
)

func TestPool_ProcessesAllUnits(t *testing.T) {
	store := checkpoint.NewMemoryStore()
	units := makeUnits(25)

	var processed atomic.Int64
	pool := Pool{Concurrency: 4, BatchSize: 3}
	result, err := pool.Run(context.Background(), units, func(_ context.Context, _ Unit) error {
		processed.Add(1)
		return nil
	}, store, nil)

	require.NoError(t, err)
	assert.Equal(t, int64(25), processed.Load())
	assert.Equal(t, Result{Processed: 25, Succeeded: 25}, result)
	assert.Equal(t, checkpoint.Summary{Succeeded: 25}, store.Summary())
}

func TestPool_FailureIsolation(t *testing.T) {
	store := checkpoint.NewMemoryStore()
	units := makeUnits(10)

	pool := Pool{Concurrency: 3, BatchSize: 2}
	result, err := pool.Run(context.Background(), units, func(_ context.Context, unit Unit) error {
		if unit.ID == "unit-02" {
			return errors.New("corrupt input")
		}
		return nil
	}, store, nil)

	require.NoError(t, err)
	assert.Equal(t, Result{Processed: 10, Succeeded: 9, Failed: 1}, result)
	assert.False(t, store.IsDone("unit-02"))
	assert.True(t, store.IsDone("unit-03"))

	failed := store.Failed()
	require.Len(t, failed, 1)
	assert.Equal(t, "unit-02", failed[0].UnitID)
	assert.Equal(t, "corrupt input", failed[0].Detail)
}

func TestPool_PanicBecomesUnitFailure(t *testing.T) {
	store := checkpoint.NewMemoryStore()
	units := makeUnits(6)

	pool := Pool{Concurrency: 2, BatchSize: 2}
	result, err := pool.Run(context.Background(), units, func(_ context.Context, unit Unit) error {
		if unit.ID == "unit-04" {
			panic("index out of range")
		}
		return nil
	}, store, nil)

	require.NoError(t, err)
	assert.Equal(t, 5, result.Succeeded)
	assert.Equal(t, 1, result.Failed)

	failed := store.Failed()
	require.Len(t, failed, 1)
	assert.Contains(t, failed[0].Detail, "index out of range")
}

type recordFailingStore struct {
	*checkpoint.MemoryStore
	failAfter int64
	count     atomic.Int64
}

func (s *recordFailingStore) Record(ctx context.Context, unitID string, status checkpoint.Status, detail string) error {
	if s.count.Add(1) > s.failAfter {
		return errors.New("disk full")
	}
	return s.MemoryStore.Record(ctx, unitID, status, detail)
}

func TestPool_StoreWriteFailureIsFatal(t *testing.T) {
	store := &recordFailingStore{MemoryStore: checkpoint.NewMemoryStore(), failAfter: 3}
	units := makeUnits(20)

	pool := Pool{Concurrency: 2, BatchSize: 2}
	result, err := pool.Run(context.Background(), units, func(_ context.Context, _ Unit) error {
		return nil
	}, store, nil)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Less(t, result.Processed, 20)
}

func TestPool_ResumeProcessesExactlyResidual(t *testing.T) {
	ctx := context.Background()
	store := checkpoint.NewMemoryStore()
	units := makeUnits(10)

	// First run interrupted after 6 units were recorded succeeded.
	for i := 0; i < 6; i++ {
		require.NoError(t, store.Record(ctx, units[i].ID, checkpoint.StatusSucceeded, ""))
	}

	residual := Plan(units, store)
	require.Len(t, residual, 4)

	var mu sync.Mutex
	seen := make(map[string]bool)
	pool := Pool{Concurrency: 2, BatchSize: 2}
	_, err := pool.Run(ctx, residual, func(_ context.Context, unit Unit) error {
		mu.Lock()
		seen[unit.ID] = true
		mu.Unlock()
		return nil
	}, store, nil)
	require.NoError(t, err)

	assert.Len(t, seen, 4)
	for i := 0; i < 6; i++ {
		assert.False(t, seen[units[i].ID], "already-succeeded unit reprocessed: %s", units[i].ID)
	}
	assert.Equal(t, checkpoint.Summary{Succeeded: 10}, store.Summary())

	// Second pass over the same tree plans zero work.
	assert.Empty(t, Plan(units, store))
}

func TestPool_RetryMovesFailedUnitToSucceeded(t *testing.T) {
	ctx := context.Background()
	store := checkpoint.NewMemoryStore()
	units := makeUnits(10)

	broken := true
	process := func(_ context.Context, unit Unit) error {
		if broken && unit.ID == "unit-03" {
			return fmt.Errorf("corrupt input")
		}
		return nil
	}

	pool := Pool{Concurrency: 2, BatchSize: 4}
	result, err := pool.Run(ctx, Plan(units, store), process, store, nil)
	require.NoError(t, err)
	assert.Equal(t, Result{Processed: 10, Succeeded: 9, Failed: 1}, result)

	// Re-run retries only the failed unit.
	residual := Plan(units, store)
	require.Len(t, residual, 1)
	assert.Equal(t, "unit-03", residual[0].ID)

	// Replacing the faulty source file moves it to succeeded.
	broken = false
	result, err = pool.Run(ctx, residual, process, store, nil)
	require.NoError(t, err)
	assert.Equal(t, Result{Processed: 1, Succeeded: 1}, result)
	assert.Equal(t, checkpoint.Summary{Succeeded: 10}, store.Summary())
}

func TestPool_CancelledContextStopsRun(t *testing.T) {
	store := checkpoint.NewMemoryStore()
	units := makeUnits(100)

	ctx, cancel := context.WithCancel(context.Background())
	var processed atomic.Int64

	pool := Pool{Concurrency: 2, BatchSize: 1}
	_, err := pool.Run(ctx, units, func(_ context.Context, _ Unit) error {
		if processed.Add(1) == 10 {
			cancel()
		}
		return nil
	}, store, nil)

	require.ErrorIs(t, err, context.Canceled)
	assert.Less(t, store.Summary().Total(), 100)
}
