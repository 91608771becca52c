package platform

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"podds/internal/genome"
	"podds/internal/model"
	"podds/internal/podd"
	"podds/internal/storage"
	"podds/internal/world"
)

func newTestPolis(t *testing.T) (*Polis, *storage.MemoryStore) {
	t.Helper()
	store := storage.NewMemoryStore()
	p := NewPolis(Config{Store: store})
	require.NoError(t, p.Init(context.Background()))
	return p, store
}

// breedingWorld doubles its population every tick and starves at tick 10.
func breedingWorld() world.Config {
	cfg := world.DefaultConfig()
	cfg.Podd = podd.Config{
		TickDuration:     1,
		InitEnergy:       50,
		MaxEnergy:        1000,
		LivingCost:       1,
		BirthCost:        1,
		MortalityHorizon: 10,
	}
	cfg.InitPodds = 2
	cfg.InitFood = 0
	cfg.FoodInterval = 0
	cfg.Mutation.ChanceNew = 0
	cfg.Seed = genome.Seed(map[string]float64{genome.AttrBirthEnergy: 1e9}, nil)
	return cfg
}

func TestRunSimulationPersistsRun(t *testing.T) {
	p, store := newTestPolis(t)
	cfg := breedingWorld()
	cfg.Seed = genome.Seed(map[string]float64{genome.AttrBirthEnergy: 47}, nil)

	result, err := p.RunSimulation(context.Background(), SimulationConfig{
		RunID:      "run-1",
		Seed:       7,
		Hz:         1,
		Ticks:      3,
		World:      cfg,
		FlushEvery: 2,
	})
	require.NoError(t, err)
	assert.Equal(t, StopReasonTicks, result.StopReason)
	assert.Equal(t, len(result.Survivors), result.Run.FinalPodds)

	ctx := context.Background()
	run, ok, err := store.GetRun(ctx, "run-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 3, run.Ticks)
	assert.Equal(t, int64(7), run.Seed)
	assert.Equal(t, result.Run.FinalPodds, run.FinalPodds)
	assert.NotEmpty(t, run.CreatedAtUTC)

	ticks, err := store.GetTickStats(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, ticks, 3)
	assert.Equal(t, "run-1", ticks[2].RunID)
	// Both seeds breed at tick 1: 49 energy left against a birth energy of 47.
	assert.Equal(t, 2, ticks[0].Births)

	births, err := store.GetBirths(ctx, "run-1")
	require.NoError(t, err)
	assert.Len(t, births, result.Run.TotalBirths)
	assert.Equal(t, run.TotalBirths, result.Run.TotalBirths)

	for _, id := range []int{1, 2, births[0].ChildID} {
		_, ok, err := store.GetGenome(ctx, "run-1", id)
		require.NoError(t, err)
		assert.True(t, ok, "genome of podd %d", id)
	}
}

func TestRunSimulationStopsOnExtinction(t *testing.T) {
	p, store := newTestPolis(t)
	cfg := breedingWorld()
	cfg.Podd.InitEnergy = 5
	cfg.Podd.LivingCost = 0.5

	result, err := p.RunSimulation(context.Background(), SimulationConfig{RunID: "extinct", Hz: 1, World: cfg})
	require.NoError(t, err)
	assert.Equal(t, StopReasonExtinct, result.StopReason)
	assert.Equal(t, 10, result.Run.Ticks)
	assert.Zero(t, result.Run.FinalPodds)
	assert.Empty(t, result.Survivors)
	assert.Equal(t, 2, result.Run.TotalDeaths)

	deaths, err := store.GetDeaths(context.Background(), "extinct")
	require.NoError(t, err)
	require.Len(t, deaths, 2)
	assert.Equal(t, string(podd.CauseNoEnergy), deaths[0].Cause)
}

func TestRunSimulationHonoursCancellation(t *testing.T) {
	p, store := newTestPolis(t)
	cfg := breedingWorld()
	cfg.Podd.LivingCost = 0

	ctx, cancel := context.WithCancel(context.Background())
	result, err := p.RunSimulation(ctx, SimulationConfig{
		RunID: "cancelled",
		Hz:    1,
		World: cfg,
		OnTick: func(r world.TickReport) {
			if r.Tick == 4 {
				cancel()
			}
		},
	})
	require.NoError(t, err)
	assert.Equal(t, StopReasonCanceled, result.StopReason)
	assert.Equal(t, 4, result.Run.Ticks)

	ticks, err := store.GetTickStats(context.Background(), "cancelled")
	require.NoError(t, err)
	assert.Len(t, ticks, 4)
	assert.Empty(t, p.ActiveRuns())
}

func TestRunControlPauseContinueStop(t *testing.T) {
	p, _ := newTestPolis(t)
	cfg := breedingWorld()
	cfg.Podd.LivingCost = 0

	ticked := make(chan int, 64)
	done := make(chan SimulationResult, 1)
	go func() {
		result, err := p.RunSimulation(context.Background(), SimulationConfig{
			RunID:  "controlled",
			Hz:     1,
			World:  cfg,
			OnTick: func(r world.TickReport) {
				select {
				case ticked <- r.Tick:
				default:
				}
			},
		})
		assert.NoError(t, err)
		done <- result
	}()

	<-ticked
	require.Eventually(t, func() bool { return len(p.ActiveRuns()) == 1 }, time.Second, time.Millisecond)
	require.NoError(t, p.PauseRun("controlled"))
	require.NoError(t, p.ContinueRun("controlled"))
	require.NoError(t, p.StopRun("controlled"))

	select {
	case result := <-done:
		assert.Equal(t, StopReasonCommand, result.StopReason)
		assert.Positive(t, result.Run.Ticks)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not stop")
	}
	assert.ErrorIs(t, p.StopRun("controlled"), ErrRunNotActive)
}

func TestRunStartsPausedUntilContinued(t *testing.T) {
	p, store := newTestPolis(t)
	cfg := breedingWorld()
	cfg.Podd.LivingCost = 0

	begin := time.Now()
	result, err := p.RunSimulation(context.Background(), SimulationConfig{
		RunID:             "held",
		Hz:                1,
		Ticks:             3,
		World:             cfg,
		StartPaused:       true,
		AutoContinueAfter: 20 * time.Millisecond,
	})
	require.NoError(t, err)
	assert.Equal(t, StopReasonTicks, result.StopReason)
	assert.GreaterOrEqual(t, time.Since(begin), 20*time.Millisecond)

	ticks, err := store.GetTickStats(context.Background(), "held")
	require.NoError(t, err)
	assert.Len(t, ticks, 3)
}

func TestStopHaltsActiveRuns(t *testing.T) {
	p, _ := newTestPolis(t)
	cfg := breedingWorld()
	cfg.Podd.LivingCost = 0

	done := make(chan SimulationResult, 1)
	go func() {
		result, err := p.RunSimulation(context.Background(), SimulationConfig{
			RunID:       "forever",
			Hz:          1,
			World:       cfg,
			StartPaused: true,
		})
		assert.NoError(t, err)
		done <- result
	}()

	require.Eventually(t, func() bool { return len(p.ActiveRuns()) == 1 }, time.Second, time.Millisecond)
	p.Stop()
	assert.False(t, p.Started())

	select {
	case result := <-done:
		assert.Equal(t, StopReasonCommand, result.StopReason)
		assert.Zero(t, result.Run.Ticks)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not stop")
	}
}

func TestRunSimulationValidation(t *testing.T) {
	p, _ := newTestPolis(t)
	ctx := context.Background()

	_, err := p.RunSimulation(ctx, SimulationConfig{Hz: 1, World: breedingWorld()})
	assert.ErrorContains(t, err, "run id")

	_, err = p.RunSimulation(ctx, SimulationConfig{RunID: "r", World: breedingWorld()})
	assert.ErrorContains(t, err, "hz")

	bad := breedingWorld()
	bad.Podd.Sensors = 1
	_, err = p.RunSimulation(ctx, SimulationConfig{RunID: "r", Hz: 1, World: bad})
	assert.ErrorContains(t, err, "sensors")

	idle := NewPolis(Config{Store: storage.NewMemoryStore()})
	_, err = idle.RunSimulation(ctx, SimulationConfig{RunID: "r", Hz: 1, World: breedingWorld()})
	assert.ErrorContains(t, err, "not initialized")

	assert.Error(t, NewPolis(Config{}).Init(ctx))
}

func TestSeededRunsAreReproducible(t *testing.T) {
	run := func() ([]model.DeathRecord, SimulationResult) {
		p, store := newTestPolis(t)
		cfg := world.DefaultConfig()
		cfg.InitPodds = 4
		cfg.Podd.MinBirthAge = 0
		cfg.Seed = genome.Seed(map[string]float64{genome.AttrBirthEnergy: 35}, map[string]float64{"i0004-o0000": 1})
		result, err := p.RunSimulation(context.Background(), SimulationConfig{RunID: "r", Seed: 11, Hz: 30, Ticks: 90, World: cfg})
		require.NoError(t, err)
		deaths, err := store.GetDeaths(context.Background(), "r")
		require.NoError(t, err)
		return deaths, result
	}
	deathsA, a := run()
	deathsB, b := run()
	assert.Equal(t, a.Run.Ticks, b.Run.Ticks)
	assert.Equal(t, deathsA, deathsB)
	assert.Equal(t, a.Run.FinalPodds, b.Run.FinalPodds)
	assert.Equal(t, a.Run.TotalBirths, b.Run.TotalBirths)
}
