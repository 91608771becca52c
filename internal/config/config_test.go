package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"podds/internal/genome"
	"podds/internal/world"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaultIsValidAndMatchesWorldDefaults(t *testing.T) {
	s := Default()
	require.NoError(t, s.Validate())

	cfg := s.WorldConfig()
	want := world.DefaultConfig()
	assert.Equal(t, want.Podd, cfg.Podd)
	assert.Equal(t, want.Mutation, cfg.Mutation)
	assert.Equal(t, want.Seed, cfg.Seed)
	assert.Equal(t, want.MaxFood, cfg.MaxFood)
	assert.Equal(t, want.FoodInterval, cfg.FoodInterval)
}

func TestLoadYAMLOverridesOnlyGivenFields(t *testing.T) {
	path := writeFile(t, "podds.yaml", `
run:
  ticks: 120
  seed: 42
podd:
  birth_cost: 20
world:
  init_podds: 8
genome:
  attributes:
    size: 1.5
  brain:
    i0000-o0000: 0.5
`)
	s, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 120, s.Run.Ticks)
	assert.Equal(t, int64(42), s.Run.Seed)
	assert.Equal(t, 30.0, s.Run.Hz)
	assert.Equal(t, 20.0, s.Podd.BirthCost)
	assert.Equal(t, 60.0, s.Podd.MaxEnergy)
	assert.Equal(t, 8, s.World.InitPodds)
	assert.Equal(t, 200, s.World.InitFood)

	seed := s.SeedGenome()
	assert.Equal(t, 1.5, seed.Attributes[genome.AttrSize])
	assert.Equal(t, 10.0, seed.Attributes[genome.AttrStrength])
	assert.Equal(t, map[string]float64{"i0000-o0000": 0.5}, seed.Brain)
}

func TestLoadScalesDefaultsByHz(t *testing.T) {
	path := writeFile(t, "podds.yaml", "run:\n  hz: 60\n")
	s, err := Load(path)
	require.NoError(t, err)

	assert.InDelta(t, 1.0/60, s.Podd.TickDuration, 1e-12)
	assert.InDelta(t, 0.5/60, s.Podd.LivingCost, 1e-12)
	assert.Equal(t, 30, s.World.FoodInterval)
}

func TestLoadJSON(t *testing.T) {
	path := writeFile(t, "podds.json", `{"run": {"ticks": 5, "store": "memory"}, "log": {"level": "debug", "format": "json"}}`)
	s, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 5, s.Run.Ticks)
	assert.Equal(t, "debug", s.Log.Level)
	assert.Equal(t, "json", s.Log.Format)
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	_, err := Load(writeFile(t, "bad.yaml", "run:\n  tiks: 5\n"))
	assert.Error(t, err)

	_, err = Load(writeFile(t, "bad.json", `{"wrld": {}}`))
	assert.Error(t, err)
}

func TestLoadEmptyFileGivesDefaults(t *testing.T) {
	s, err := Load(writeFile(t, "empty.yaml", "\n"))
	require.NoError(t, err)
	assert.Equal(t, DefaultTicks, s.Run.Ticks)
}

func TestValidateReportsBadSettings(t *testing.T) {
	cases := map[string]func(*Settings){
		"run.hz":       func(s *Settings) { s.Run.Hz = 0 },
		"run.ticks":    func(s *Settings) { s.Run.Ticks = -1 },
		"run.store":    func(s *Settings) { s.Run.Store = "postgres" },
		"db_path":      func(s *Settings) { s.Run.Store = "sqlite"; s.Run.DBPath = "" },
		"log":          func(s *Settings) { s.Log.Level = "loud" },
		"sensors":      func(s *Settings) { s.Podd.Sensors = 1 },
		"mutation":     func(s *Settings) { s.Mutation.ChanceNew = 2 },
		"birth_energy": func(s *Settings) { s.Genome.Attributes = map[string]float64{genome.AttrBirthEnergy: s.Podd.BirthCost - 1} },
	}
	for want, mutate := range cases {
		t.Run(want, func(t *testing.T) {
			s := Default()
			mutate(&s)
			assert.ErrorContains(t, s.Validate(), want)
		})
	}
}

func TestWriteThenLoad(t *testing.T) {
	for _, name := range []string{"podds.yaml", "podds.json"} {
		t.Run(name, func(t *testing.T) {
			s := Default()
			s.Run.Ticks = 77
			s.Genome.Brain = map[string]float64{"i0005-o0000": 1}
			path := filepath.Join(t.TempDir(), "nested", name)
			require.NoError(t, Write(path, s))

			loaded, err := Load(path)
			require.NoError(t, err)
			assert.Equal(t, 77, loaded.Run.Ticks)
			assert.Equal(t, s.Podd, loaded.Podd)
			assert.Equal(t, s.Genome.Brain, loaded.Genome.Brain)
		})
	}
}
