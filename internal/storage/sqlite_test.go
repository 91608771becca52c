//go:build sqlite

package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"podds/internal/model"
)

func TestSQLiteStoreContract(t *testing.T) {
	store := NewSQLiteStore(filepath.Join(t.TempDir(), "podds.db"))
	require.NoError(t, store.Init(context.Background()))
	t.Cleanup(func() { _ = store.Close() })
	exerciseStore(t, store)
}

func TestSQLiteStorePersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "podds.db")

	first := NewSQLiteStore(dbPath)
	require.NoError(t, first.Init(ctx))
	require.NoError(t, first.SaveRun(ctx, model.RunRecord{ID: "run-1", Seed: 11, CreatedAtUTC: "2026-03-01T00:00:00Z"}))
	require.NoError(t, first.AppendDeaths(ctx, "run-1", []model.DeathRecord{{Tick: 1, PoddID: 1, Cause: "age"}}))
	require.NoError(t, first.Close())

	second := NewSQLiteStore(dbPath)
	require.NoError(t, second.Init(ctx))
	t.Cleanup(func() { _ = second.Close() })

	run, ok, err := second.GetRun(ctx, "run-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(11), run.Seed)

	deaths, err := second.GetDeaths(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, deaths, 1)
	assert.Equal(t, "age", deaths[0].Cause)
}

func TestSQLiteStoreRejectsVersionMismatch(t *testing.T) {
	ctx := context.Background()
	store := NewSQLiteStore(filepath.Join(t.TempDir(), "podds.db"))
	require.NoError(t, store.Init(ctx))
	t.Cleanup(func() { _ = store.Close() })

	future := model.RunRecord{
		VersionedRecord: model.VersionedRecord{SchemaVersion: CurrentSchemaVersion + 1, CodecVersion: CurrentCodecVersion},
		ID:              "run-future",
		CreatedAtUTC:    "2026-03-01T00:00:00Z",
	}
	require.NoError(t, store.SaveRun(ctx, future))
	_, _, err := store.GetRun(ctx, "run-future")
	assert.ErrorIs(t, err, ErrVersionMismatch)
}

func TestSQLiteStoreRequiresInit(t *testing.T) {
	store := NewSQLiteStore(filepath.Join(t.TempDir(), "podds.db"))
	_, err := store.GetBirths(context.Background(), "run")
	assert.ErrorIs(t, err, errNotInitialized)

	assert.Error(t, NewSQLiteStore("").Init(context.Background()))
}
