// Package genome builds, validates and mutates podd genomes.
package genome

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"podds/internal/model"
)

const (
	AttrSize        = "size"
	AttrStrength    = "strength"
	AttrBirthEnergy = "birth_energy"

	// DefaultBirthEnergy sits above the default birth cost so a parent keeps
	// energy after paying for a child.
	DefaultBirthEnergy = 40.0
)

// ErrMissingKey reports a genome lacking a key the podd lifecycle requires.
var ErrMissingKey = errors.New("genome key missing")

// RequiredAttributes lists the scalar keys every podd genome carries.
var RequiredAttributes = []string{AttrSize, AttrStrength, AttrBirthEnergy}

type Range struct {
	Min float64 `yaml:"min" json:"min"`
	Max float64 `yaml:"max" json:"max"`
}

func (r Range) Contains(v float64) bool {
	return v >= r.Min && v <= r.Max
}

// DefaultRanges bounds the physical traits so mutation cannot drive a body
// to a degenerate size or force. The birth energy floor is raised to the
// birth cost by the world that owns the mutator.
func DefaultRanges() map[string]Range {
	return map[string]Range{
		AttrSize:        {Min: 0.25, Max: 3},
		AttrStrength:    {Min: 1, Max: 50},
		AttrBirthEnergy: {Min: 0, Max: math.MaxFloat64},
	}
}

func Validate(g model.Genome) error {
	for _, key := range RequiredAttributes {
		v, ok := g.Attributes[key]
		if !ok {
			return fmt.Errorf("%w: %s", ErrMissingKey, key)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("genome attribute %s is not finite", key)
		}
	}
	if g.Brain == nil {
		return fmt.Errorf("%w: %s", ErrMissingKey, model.BrainKey)
	}
	return nil
}

// Seed returns an initial genome. Attributes missing from attrs take the
// default seed values; brain is copied as given (nil means no connections).
func Seed(attrs map[string]float64, brain map[string]float64) model.Genome {
	g := model.Genome{
		Attributes: map[string]float64{
			AttrSize:        1,
			AttrStrength:    10,
			AttrBirthEnergy: DefaultBirthEnergy,
		},
		Brain: make(map[string]float64, len(brain)),
	}
	for k, v := range attrs {
		g.Attributes[k] = v
	}
	for k, v := range brain {
		g.Brain[k] = v
	}
	return g
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
