package podd

import (
	"errors"
	"fmt"

	"podds/internal/nn"
)

const DefaultHz = 30.0

// Config holds the metabolic constants of the podd lifecycle. Energy rates are
// charged per tick; durations are in simulated seconds.
//
// A podd gives birth on the tick its energy reaches birth_energy plus its
// minimum energy only once it is MinBirthAge seconds old. Set MinBirthAge to
// 0 for the threshold alone to decide.
type Config struct {
	TickDuration float64 `yaml:"tick_duration" json:"tick_duration"`

	InitEnergy float64 `yaml:"init_energy" json:"init_energy"`
	MaxEnergy  float64 `yaml:"max_energy" json:"max_energy"`
	MinEnergy  float64 `yaml:"min_energy" json:"min_energy"`
	// MinEnergyAgeFactor raises the minimum energy floor per second of age.
	// It is off by default, which keeps the floor at MinEnergy for life.
	MinEnergyAgeFactor float64 `yaml:"min_energy_age_factor" json:"min_energy_age_factor"`

	AmbientEnergy  float64 `yaml:"ambient_energy" json:"ambient_energy"`
	MoveCost       float64 `yaml:"move_cost" json:"move_cost"`
	LivingCost     float64 `yaml:"living_cost" json:"living_cost"`
	ComplexityCost float64 `yaml:"complexity_cost" json:"complexity_cost"`
	SizeCost       float64 `yaml:"size_cost" json:"size_cost"`
	StrengthCost   float64 `yaml:"strength_cost" json:"strength_cost"`

	BirthCost   float64 `yaml:"birth_cost" json:"birth_cost"`
	MinBirthAge float64 `yaml:"min_birth_age" json:"min_birth_age"`

	NoiseScale float64 `yaml:"noise_scale" json:"noise_scale"`
	Bias       float64 `yaml:"bias" json:"bias"`

	FixedDeathRate       float64 `yaml:"fixed_death_rate" json:"fixed_death_rate"`
	AgeDeteriorationRate float64 `yaml:"age_deterioration_rate" json:"age_deterioration_rate"`
	MortalityHorizon     int     `yaml:"mortality_horizon" json:"mortality_horizon"`

	// Sensors is the length of the external sensor vector fed to Step.
	Sensors int `yaml:"sensors" json:"sensors"`
}

// DefaultConfig returns the reference metabolism at DefaultHz.
func DefaultConfig() Config {
	return ConfigForHz(DefaultHz)
}

func ConfigForHz(hz float64) Config {
	tick := 1 / hz
	return Config{
		TickDuration:         tick,
		InitEnergy:           30,
		MaxEnergy:            60,
		MinEnergy:            0,
		AmbientEnergy:        10 * tick,
		MoveCost:             1 * tick,
		LivingCost:           0.5 * tick,
		ComplexityCost:       0.01 * tick,
		SizeCost:             0.1 * tick,
		StrengthCost:         0.005 * tick,
		BirthCost:            35,
		MinBirthAge:          8,
		NoiseScale:           1,
		Bias:                 1,
		FixedDeathRate:       1e-5,
		AgeDeteriorationRate: 1e-6,
		MortalityHorizon:     3600,
	}
}

// Inputs is the input node count a brain needs under this config: the
// external sensors followed by energy, the previous actions, noise and bias.
func (c Config) Inputs(outputs int) int {
	return c.Sensors + 1 + outputs + 2
}

func (c Config) Layout() nn.Layout {
	layout := nn.DefaultLayout()
	layout.Inputs = c.Inputs(layout.Outputs)
	return layout
}

func (c Config) Validate() error {
	if c.TickDuration <= 0 {
		return errors.New("tick_duration must be > 0")
	}
	if c.MaxEnergy < c.MinEnergy {
		return fmt.Errorf("max_energy %f below min_energy %f", c.MaxEnergy, c.MinEnergy)
	}
	if c.BirthCost < 0 {
		return errors.New("birth_cost must be >= 0")
	}
	if c.MortalityHorizon <= 0 {
		return errors.New("mortality_horizon must be > 0")
	}
	if c.Sensors < 0 {
		return errors.New("sensors must be >= 0")
	}
	for name, v := range map[string]float64{
		"move_cost":       c.MoveCost,
		"living_cost":     c.LivingCost,
		"complexity_cost": c.ComplexityCost,
		"size_cost":       c.SizeCost,
		"strength_cost":   c.StrengthCost,
	} {
		if v < 0 {
			return fmt.Errorf("%s must be >= 0", name)
		}
	}
	return nil
}
