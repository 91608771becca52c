package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"podds/internal/model"
)

func testGenome() model.Genome {
	return model.Genome{
		Attributes: map[string]float64{"size": 1.25, "strength": 12, "birth_energy": 31},
		Brain:      map[string]float64{"i0000-o0000": 0.5, "i0002-42": -1.5, "42-o0001": 2},
	}
}

// exerciseStore runs the behaviour every Store backend must share.
func exerciseStore(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, store.SaveRun(ctx, model.RunRecord{ID: "run-a", Seed: 1, Hz: 30, CreatedAtUTC: "2026-01-01T00:00:00Z"}))
	require.NoError(t, store.SaveRun(ctx, model.RunRecord{ID: "run-b", Seed: 2, Hz: 30, CreatedAtUTC: "2026-01-02T00:00:00Z"}))
	require.NoError(t, store.SaveRun(ctx, model.RunRecord{ID: "run-a", Seed: 1, Hz: 30, FinalPodds: 7, CreatedAtUTC: "2026-01-01T00:00:00Z"}))

	run, ok, err := store.GetRun(ctx, "run-a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 7, run.FinalPodds)
	assert.Equal(t, CurrentVersion(), run.VersionedRecord)

	_, ok, err = store.GetRun(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	runs, err := store.ListRuns(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-b", runs[0].ID)
	assert.Equal(t, "run-a", runs[1].ID)

	genome := testGenome()
	require.NoError(t, store.SaveGenome(ctx, model.GenomeRecord{RunID: "run-a", PoddID: 3, Genome: genome}))
	record, ok, err := store.GetGenome(ctx, "run-a", 3)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, genome, record.Genome)
	_, ok, err = store.GetGenome(ctx, "run-b", 3)
	require.NoError(t, err)
	assert.False(t, ok)

	births := []model.BirthRecord{
		{Tick: 4, ParentID: 1, ChildID: 5, Energy: 2.5, Genome: genome},
		{Tick: 4, ParentID: 2, ChildID: 6, Energy: 3, Genome: genome},
	}
	require.NoError(t, store.AppendBirths(ctx, "run-a", births[:1]))
	require.NoError(t, store.AppendBirths(ctx, "run-a", births[1:]))
	gotBirths, err := store.GetBirths(ctx, "run-a")
	require.NoError(t, err)
	require.Len(t, gotBirths, 2)
	assert.Equal(t, "run-a", gotBirths[0].RunID)
	assert.Equal(t, 5, gotBirths[0].ChildID)
	assert.Equal(t, 6, gotBirths[1].ChildID)
	assert.Equal(t, genome, gotBirths[1].Genome)

	deaths := []model.DeathRecord{
		{Tick: 9, PoddID: 2, Cause: "no_energy", Age: 0.3, Energy: -0.01, Children: 1},
		{Tick: 9, PoddID: 5, Cause: "brain_malfunction", Age: 0.1},
	}
	require.NoError(t, store.AppendDeaths(ctx, "run-a", deaths))
	gotDeaths, err := store.GetDeaths(ctx, "run-a")
	require.NoError(t, err)
	require.Len(t, gotDeaths, 2)
	assert.Equal(t, "no_energy", gotDeaths[0].Cause)
	assert.Equal(t, 1, gotDeaths[0].Children)
	assert.Equal(t, "run-a", gotDeaths[1].RunID)

	ticks := []model.TickStats{
		{Tick: 1, Time: 1.0 / 30, Population: 2, MeanEnergy: 29.9},
		{Tick: 2, Time: 2.0 / 30, Population: 1, Deaths: 1, DeathsByCause: map[string]int{"age": 1}},
	}
	require.NoError(t, store.AppendTickStats(ctx, "run-a", ticks))
	gotTicks, err := store.GetTickStats(ctx, "run-a")
	require.NoError(t, err)
	require.Len(t, gotTicks, 2)
	assert.Equal(t, ticks[1].DeathsByCause, gotTicks[1].DeathsByCause)
	assert.Equal(t, ticks[0].Time, gotTicks[0].Time)

	empty, err := store.GetTickStats(ctx, "run-b")
	require.NoError(t, err)
	assert.Empty(t, empty)
	emptyBirths, err := store.GetBirths(ctx, "run-b")
	require.NoError(t, err)
	assert.Empty(t, emptyBirths)
}
