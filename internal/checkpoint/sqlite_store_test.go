package checkpoint

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteStore_MigrationsAreIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "status.db")

	first, err := NewSQLiteStore(path, "clip")
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := NewSQLiteStore(path, "clip")
	require.NoError(t, err)
	defer second.Close()

	require.NoError(t, second.Load(context.Background()))
}

func TestSQLiteStore_RecordSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "status.db")

	store, err := NewSQLiteStore(path, "index")
	require.NoError(t, err)
	require.NoError(t, store.Record(ctx, "CanESM5_SSP245_2047", StatusSucceeded, ""))
	require.NoError(t, store.Record(ctx, "CanESM5_SSP245_2048", StatusFailed, "missing hurs file"))
	require.NoError(t, store.Close())

	reopened, err := NewSQLiteStore(path, "index")
	require.NoError(t, err)
	defer reopened.Close()
	require.NoError(t, reopened.Load(ctx))

	assert.True(t, reopened.IsDone("CanESM5_SSP245_2047"))
	assert.False(t, reopened.IsDone("CanESM5_SSP245_2048"))
	assert.Equal(t, Summary{Succeeded: 1, Failed: 1}, reopened.Summary())
}

func TestSQLiteStore_StagesAreIsolated(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "status.db")

	clip, err := NewSQLiteStore(path, "clip")
	require.NoError(t, err)
	defer clip.Close()
	require.NoError(t, clip.Record(ctx, "unit-a", StatusSucceeded, ""))

	index, err := NewSQLiteStore(path, "index")
	require.NoError(t, err)
	defer index.Close()
	require.NoError(t, index.Load(ctx))

	assert.False(t, index.IsDone("unit-a"))
}

func TestSQLiteStore_UpsertOverwrites(t *testing.T) {
	ctx := context.Background()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "status.db"), "clip")
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Record(ctx, "unit-a", StatusFailed, "disk error"))
	require.NoError(t, store.Record(ctx, "unit-a", StatusSucceeded, ""))

	require.NoError(t, store.Load(ctx))
	assert.True(t, store.IsDone("unit-a"))
	assert.Empty(t, store.Failed())
}
