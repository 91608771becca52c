package stats

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"podds/internal/model"
)

func sampleArtifacts(runID string) RunArtifacts {
	ticks := []model.TickStats{
		{Tick: 1, Time: 0.5, Population: 2, Food: 10, MeanEnergy: 29.5, MeanAge: 0.5, MaxAge: 0.5, MeanSize: 1, MeanStrength: 10},
		{Tick: 2, Time: 1, Population: 2, Food: 9, Births: 1, Deaths: 1, DeathsByCause: map[string]int{"age": 1}, MeanEnergy: 20, MeanAge: 0.5, MaxAge: 1, MeanSize: 1.25, MeanStrength: 10, MeanComplexity: 0.1},
	}
	return RunArtifacts{
		Config:  RunConfig{RunID: runID, Seed: 7, Hz: 2, Ticks: 2, InitPodds: 2, Store: "memory", Settings: json.RawMessage(`{"run":{"ticks":2}}`)},
		Summary: SummarizeRun(ticks),
		Ticks:   ticks,
		Births: []model.BirthRecord{{
			Tick:     2,
			ParentID: 1,
			ChildID:  3,
			Energy:   4.5,
			Genome: model.Genome{
				Attributes: map[string]float64{"size": 1.5, "strength": 10, "birth_energy": 30},
				Brain:      map[string]float64{"i0000-o0000": 0.25, "i0001-17": -1},
			},
		}},
		Deaths: []model.DeathRecord{{Tick: 2, PoddID: 2, Cause: "age", Age: 1, Energy: 3.25}},
		Survivors: []Survivor{{
			ID:     1,
			Energy: 4.5,
			Age:    1,
			Genome: model.Genome{
				Attributes: map[string]float64{"size": 1, "strength": 10, "birth_energy": 30},
				Brain:      map[string]float64{},
			},
		}},
	}
}

func TestWriteAndExportRunArtifacts(t *testing.T) {
	baseDir := t.TempDir()
	outDir := filepath.Join(t.TempDir(), "exports")

	runDir, err := WriteRunArtifacts(baseDir, sampleArtifacts("run-123"))
	require.NoError(t, err)

	files := []string{"config.json", "summary.json", "survivors.json", "tick_stats.csv", "births.csv", "deaths.csv"}
	for _, file := range files {
		_, err := os.Stat(filepath.Join(runDir, file))
		require.NoError(t, err, file)
	}

	exportedDir, err := ExportRunArtifacts(baseDir, "run-123", outDir)
	require.NoError(t, err)
	for _, file := range files {
		_, err := os.Stat(filepath.Join(exportedDir, file))
		require.NoError(t, err, file)
	}
}

func TestRunArtifactsRoundTrip(t *testing.T) {
	baseDir := t.TempDir()
	want := sampleArtifacts("run-rt")
	_, err := WriteRunArtifacts(baseDir, want)
	require.NoError(t, err)

	cfg, ok, err := ReadRunConfig(baseDir, "run-rt")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, want.Config.Seed, cfg.Seed)
	assert.JSONEq(t, string(want.Config.Settings), string(cfg.Settings))

	summary, ok, err := ReadRunSummary(baseDir, "run-rt")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, want.Summary, summary)

	ticks, ok, err := ReadTickStats(baseDir, "run-rt")
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, ticks, 2)
	assert.Equal(t, 9, ticks[1].Food)
	assert.Equal(t, 0.1, ticks[1].MeanComplexity)
	assert.Nil(t, ticks[1].DeathsByCause)

	births, ok, err := ReadBirths(baseDir, "run-rt")
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, births, 1)
	assert.Equal(t, want.Births[0].Genome, births[0].Genome)
	assert.Equal(t, "run-rt", births[0].RunID)

	deaths, ok, err := ReadDeaths(baseDir, "run-rt")
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, deaths, 1)
	assert.Equal(t, "age", deaths[0].Cause)
	assert.Equal(t, 3.25, deaths[0].Energy)

	survivors, ok, err := ReadSurvivors(baseDir, "run-rt")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, want.Survivors, survivors)
}

func TestReadMissingArtifacts(t *testing.T) {
	baseDir := t.TempDir()

	_, ok, err := ReadRunConfig(baseDir, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = ReadTickStats(baseDir, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestReadDeathsRejectsMalformedRow(t *testing.T) {
	baseDir := t.TempDir()
	runDir := filepath.Join(baseDir, "bad")
	require.NoError(t, os.MkdirAll(runDir, 0o755))
	content := "tick,podd_id,parent_id,cause,age,energy,children\n1,x,0,age,1,2,0\n"
	require.NoError(t, os.WriteFile(filepath.Join(runDir, "deaths.csv"), []byte(content), 0o644))

	_, _, err := ReadDeaths(baseDir, "bad")
	assert.ErrorContains(t, err, "deaths.csv row 2")
}

func TestWriteRunArtifactsRequiresRunID(t *testing.T) {
	_, err := WriteRunArtifacts(t.TempDir(), RunArtifacts{})
	assert.Error(t, err)
}

func TestRunIndexOrderingAndUpsert(t *testing.T) {
	baseDir := t.TempDir()

	require.NoError(t, AppendRunIndex(baseDir, RunIndexEntry{RunID: "a", CreatedAtUTC: "2026-01-01T00:00:00Z"}))
	require.NoError(t, AppendRunIndex(baseDir, RunIndexEntry{RunID: "b", CreatedAtUTC: "2026-01-02T00:00:00Z"}))
	require.NoError(t, AppendRunIndex(baseDir, RunIndexEntry{RunID: "c", CreatedAtUTC: "2026-01-02T00:00:00Z"}))
	require.NoError(t, AppendRunIndex(baseDir, RunIndexEntry{RunID: "a", FinalPopulation: 9, CreatedAtUTC: "2026-01-01T00:00:00Z"}))

	entries, err := ListRunIndex(baseDir)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, []string{"c", "b", "a"}, []string{entries[0].RunID, entries[1].RunID, entries[2].RunID})
	assert.Equal(t, 9, entries[2].FinalPopulation)

	assert.Error(t, AppendRunIndex(baseDir, RunIndexEntry{}))
}

func TestListRunIndexEmpty(t *testing.T) {
	entries, err := ListRunIndex(t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, entries)
}
