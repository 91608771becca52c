package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"podds/internal/model"
)

func TestMemoryStoreContract(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.Init(context.Background()))
	exerciseStore(t, store)
}

func TestMemoryStoreRequiresInit(t *testing.T) {
	store := NewMemoryStore()
	err := store.SaveRun(context.Background(), model.RunRecord{ID: "r"})
	assert.ErrorIs(t, err, errNotInitialized)
}

func TestMemoryStoreCopiesGenomes(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Init(ctx))

	genome := testGenome()
	require.NoError(t, store.SaveGenome(ctx, model.GenomeRecord{RunID: "r", PoddID: 1, Genome: genome}))
	genome.Brain["i0000-o0000"] = 99

	record, ok, err := store.GetGenome(ctx, "r", 1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 0.5, record.Genome.Brain["i0000-o0000"])

	record.Genome.Attributes["size"] = 3
	again, _, err := store.GetGenome(ctx, "r", 1)
	require.NoError(t, err)
	assert.Equal(t, 1.25, again.Genome.Attributes["size"])
}

func TestMemoryStoreRejectsEmptyRunID(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.Init(context.Background()))
	assert.Error(t, store.SaveRun(context.Background(), model.RunRecord{}))
}
