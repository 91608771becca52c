package world

import (
	"errors"
	"fmt"

	"podds/internal/genome"
	"podds/internal/model"
	"podds/internal/nn"
	"podds/internal/podd"
)

// FoodSensors is the sensor count the world feeds when sensing is enabled:
// distance to the nearest food and its bearing relative to the heading.
const FoodSensors = 2

// Actuator order of the brain outputs.
const (
	ActForward = iota
	ActTurnLeft
	ActTurnRight
	actuatorCount
)

type Config struct {
	Podd     podd.Config   `yaml:"podd" json:"podd"`
	Mutation genome.Params `yaml:"mutation" json:"mutation"`

	Activation string `yaml:"activation" json:"activation"`
	MaxNodes   int    `yaml:"max_nodes" json:"max_nodes"`

	// Seed is the genome every initial podd starts from.
	Seed      model.Genome `yaml:"-" json:"seed"`
	InitPodds int          `yaml:"init_podds" json:"init_podds"`

	InitFood int `yaml:"init_food" json:"init_food"`
	MaxFood  int `yaml:"max_food" json:"max_food"`

	// FoodInterval is the number of ticks between two food spawns; 0 disables
	// spawning.
	FoodInterval int     `yaml:"food_interval" json:"food_interval"`
	FoodEnergy   float64 `yaml:"food_energy" json:"food_energy"`

	// Bounds is the half extent of the square world centred on the origin.
	Bounds float64 `yaml:"bounds" json:"bounds"`

	// Speed is the forward distance per second of a podd with strength 10 and
	// size 1. Stronger podds go faster, larger ones slower.
	Speed    float64 `yaml:"speed" json:"speed"`
	TurnRate float64 `yaml:"turn_rate" json:"turn_rate"`
}

func DefaultConfig() Config {
	return ConfigForHz(podd.DefaultHz)
}

func ConfigForHz(hz float64) Config {
	interval := int(0.5 * hz)
	if interval < 1 {
		interval = 1
	}
	return Config{
		Podd:         podd.ConfigForHz(hz),
		Mutation:     genome.DefaultParams(),
		Activation:   nn.DefaultActivation,
		MaxNodes:     nn.DefaultLayout().MaxNodes,
		Seed:         genome.Seed(nil, nil),
		InitPodds:    1,
		InitFood:     200,
		MaxFood:      4000,
		FoodInterval: interval,
		FoodEnergy:   10,
		Bounds:       60,
		Speed:        4,
		TurnRate:     2,
	}
}

// Layout is the brain layout every podd of this world is built with.
func (c Config) Layout() nn.Layout {
	layout := c.Podd.Layout()
	if c.Activation != "" {
		layout.Activation = c.Activation
	}
	if c.MaxNodes > 0 {
		layout.MaxNodes = c.MaxNodes
	}
	return layout
}

func (c Config) Validate() error {
	if err := c.Podd.Validate(); err != nil {
		return fmt.Errorf("podd: %w", err)
	}
	if err := c.Mutation.Validate(); err != nil {
		return fmt.Errorf("mutation: %w", err)
	}
	if err := genome.Validate(c.Seed); err != nil {
		return fmt.Errorf("seed genome: %w", err)
	}
	if be := c.Seed.Attributes[genome.AttrBirthEnergy]; be < c.Podd.BirthCost {
		return fmt.Errorf("seed genome: birth_energy %g below birth_cost %g", be, c.Podd.BirthCost)
	}
	if c.Podd.Sensors != 0 && c.Podd.Sensors != FoodSensors {
		return fmt.Errorf("podd sensors must be 0 or %d, got %d", FoodSensors, c.Podd.Sensors)
	}
	if c.InitPodds < 0 || c.InitFood < 0 || c.MaxFood < 0 || c.FoodInterval < 0 {
		return errors.New("population and food counts must be >= 0")
	}
	if c.InitFood > c.MaxFood {
		return fmt.Errorf("init_food %d exceeds max_food %d", c.InitFood, c.MaxFood)
	}
	if c.Bounds <= 0 {
		return errors.New("bounds must be > 0")
	}
	if c.Speed < 0 || c.TurnRate < 0 {
		return errors.New("speed and turn_rate must be >= 0")
	}
	return nil
}
