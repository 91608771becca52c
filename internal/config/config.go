// Package config loads podds settings files. YAML and JSON are both accepted;
// values missing from a file keep their defaults.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"podds/internal/genome"
	"podds/internal/logging"
	"podds/internal/model"
	"podds/internal/podd"
	"podds/internal/storage"
	"podds/internal/world"
)

const (
	DefaultTicks  = 9000
	DefaultDBPath = "podds.db"
	DefaultOutDir = "runs"
)

type Settings struct {
	Run      RunSettings    `yaml:"run" json:"run"`
	Brain    BrainSettings  `yaml:"brain" json:"brain"`
	Mutation genome.Params  `yaml:"mutation" json:"mutation"`
	Podd     podd.Config    `yaml:"podd" json:"podd"`
	World    WorldSettings  `yaml:"world" json:"world"`
	Genome   GenomeSettings `yaml:"genome" json:"genome"`
	Log      logging.Config `yaml:"log" json:"log"`
}

type RunSettings struct {
	Hz    float64 `yaml:"hz" json:"hz"`
	Ticks int     `yaml:"ticks" json:"ticks"`
	// Seed drives every random draw of a run; 0 picks one from the clock.
	Seed   int64  `yaml:"seed" json:"seed"`
	Store  string `yaml:"store" json:"store"`
	DBPath string `yaml:"db_path" json:"db_path"`
	OutDir string `yaml:"out_dir" json:"out_dir"`
}

type BrainSettings struct {
	Activation string `yaml:"activation" json:"activation"`
	MaxNodes   int    `yaml:"max_nodes" json:"max_nodes"`
}

type WorldSettings struct {
	InitPodds    int     `yaml:"init_podds" json:"init_podds"`
	InitFood     int     `yaml:"init_food" json:"init_food"`
	MaxFood      int     `yaml:"max_food" json:"max_food"`
	FoodInterval int     `yaml:"food_interval" json:"food_interval"`
	FoodEnergy   float64 `yaml:"food_energy" json:"food_energy"`
	Bounds       float64 `yaml:"bounds" json:"bounds"`
	Speed        float64 `yaml:"speed" json:"speed"`
	TurnRate     float64 `yaml:"turn_rate" json:"turn_rate"`
}

// GenomeSettings is the seed genome of the initial population. Attributes
// left out take the seed defaults.
type GenomeSettings struct {
	Attributes map[string]float64 `yaml:"attributes" json:"attributes"`
	Brain      map[string]float64 `yaml:"brain" json:"brain"`
}

func Default() Settings {
	return DefaultForHz(podd.DefaultHz)
}

// DefaultForHz returns the default settings with per-tick rates scaled for a
// simulation running at hz ticks per second.
func DefaultForHz(hz float64) Settings {
	w := world.ConfigForHz(hz)
	seed := genome.Seed(nil, nil)
	return Settings{
		Run: RunSettings{
			Hz:     hz,
			Ticks:  DefaultTicks,
			Store:  storage.DefaultStoreKind(),
			DBPath: DefaultDBPath,
			OutDir: DefaultOutDir,
		},
		Brain: BrainSettings{
			Activation: w.Activation,
			MaxNodes:   w.MaxNodes,
		},
		Mutation: w.Mutation,
		Podd:     w.Podd,
		World: WorldSettings{
			InitPodds:    w.InitPodds,
			InitFood:     w.InitFood,
			MaxFood:      w.MaxFood,
			FoodInterval: w.FoodInterval,
			FoodEnergy:   w.FoodEnergy,
			Bounds:       w.Bounds,
			Speed:        w.Speed,
			TurnRate:     w.TurnRate,
		},
		Genome: GenomeSettings{
			Attributes: seed.Attributes,
			Brain:      seed.Brain,
		},
		Log: logging.DefaultConfig(),
	}
}

// Load reads a settings file. The run.hz value, when present, selects the
// defaults the rest of the file is applied over.
func Load(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, err
	}
	settings, err := Parse(data, isJSON(path))
	if err != nil {
		return Settings{}, fmt.Errorf("load %s: %w", path, err)
	}
	return settings, nil
}

func Parse(data []byte, asJSON bool) (Settings, error) {
	var hzOnly struct {
		Run struct {
			Hz float64 `yaml:"hz" json:"hz"`
		} `yaml:"run" json:"run"`
	}
	if err := decode(data, asJSON, &hzOnly, false); err != nil {
		return Settings{}, err
	}
	hz := hzOnly.Run.Hz
	if hz == 0 {
		hz = podd.DefaultHz
	}

	settings := DefaultForHz(hz)
	if err := decode(data, asJSON, &settings, true); err != nil {
		return Settings{}, err
	}
	if err := settings.Validate(); err != nil {
		return Settings{}, err
	}
	return settings, nil
}

func decode(data []byte, asJSON bool, out any, strict bool) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if asJSON {
		dec := json.NewDecoder(bytes.NewReader(data))
		if strict {
			dec.DisallowUnknownFields()
		}
		return dec.Decode(out)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(strict)
	if err := dec.Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Marshal renders settings as YAML, or JSON when asJSON is set.
func Marshal(s Settings, asJSON bool) ([]byte, error) {
	if asJSON {
		data, err := json.MarshalIndent(s, "", "  ")
		if err != nil {
			return nil, err
		}
		return append(data, '\n'), nil
	}
	return yaml.Marshal(s)
}

// Write stores settings at path, in JSON when the extension is .json.
func Write(path string, s Settings) error {
	data, err := Marshal(s, isJSON(path))
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0o644)
}

func isJSON(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".json")
}

func (s Settings) Validate() error {
	if s.Run.Hz <= 0 {
		return errors.New("run.hz must be > 0")
	}
	if s.Run.Ticks < 0 {
		return errors.New("run.ticks must be >= 0")
	}
	switch s.Run.Store {
	case "", "memory":
	case "sqlite":
		if s.Run.DBPath == "" {
			return errors.New("run.db_path is required for the sqlite store")
		}
	default:
		return fmt.Errorf("run.store: unsupported backend %q", s.Run.Store)
	}
	if err := s.Log.Validate(); err != nil {
		return fmt.Errorf("log: %w", err)
	}
	return s.WorldConfig().Validate()
}

// SeedGenome is the genome the initial population is built from.
func (s Settings) SeedGenome() model.Genome {
	return genome.Seed(s.Genome.Attributes, s.Genome.Brain)
}

// WorldConfig assembles the world configuration described by s.
func (s Settings) WorldConfig() world.Config {
	return world.Config{
		Podd:         s.Podd,
		Mutation:     s.Mutation,
		Activation:   s.Brain.Activation,
		MaxNodes:     s.Brain.MaxNodes,
		Seed:         s.SeedGenome(),
		InitPodds:    s.World.InitPodds,
		InitFood:     s.World.InitFood,
		MaxFood:      s.World.MaxFood,
		FoodInterval: s.World.FoodInterval,
		FoodEnergy:   s.World.FoodEnergy,
		Bounds:       s.World.Bounds,
		Speed:        s.World.Speed,
		TurnRate:     s.World.TurnRate,
	}
}
