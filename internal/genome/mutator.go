package genome

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"podds/internal/model"
	"podds/internal/nn"
)

const maxAddAttempts = 16

// Params controls mutation strength and frequency.
type Params struct {
	// MutRate is the probability of perturbing each scalar attribute.
	MutRate float64 `yaml:"mut_rate" json:"mut_rate"`
	// AttrSD is the standard deviation of the multiplicative attribute factor.
	AttrSD float64 `yaml:"attr_sd" json:"attr_sd"`
	// ChanceNew is the probability of adding one connection per reproduction.
	ChanceNew float64 `yaml:"chance_new" json:"chance_new"`
	// ChanceDel is the probability of dropping each existing connection.
	ChanceDel    float64          `yaml:"chance_del" json:"chance_del"`
	BrainSD      float64          `yaml:"brain_sd" json:"brain_sd"`
	MinMutWeight float64          `yaml:"min_mut_weight" json:"min_mut_weight"`
	Ranges       map[string]Range `yaml:"ranges" json:"ranges,omitempty"`
}

func DefaultParams() Params {
	return Params{
		MutRate:      0.5,
		AttrSD:       0.05,
		ChanceNew:    0.25,
		ChanceDel:    0.05,
		BrainSD:      0.05,
		MinMutWeight: 0.001,
		Ranges:       DefaultRanges(),
	}
}

func (p Params) Validate() error {
	for name, v := range map[string]float64{
		"mut_rate":   p.MutRate,
		"chance_new": p.ChanceNew,
		"chance_del": p.ChanceDel,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("%s must be in [0,1], got %f", name, v)
		}
	}
	if p.AttrSD < 0 || p.BrainSD < 0 {
		return errors.New("mutation standard deviations must be >= 0")
	}
	if p.MinMutWeight < 0 {
		return errors.New("min_mut_weight must be >= 0")
	}
	for name, r := range p.Ranges {
		if r.Min > r.Max {
			return fmt.Errorf("range %s: min %f > max %f", name, r.Min, r.Max)
		}
	}
	return nil
}

// WithFloor returns a copy of p whose range for attr starts no lower than
// floor. The receiver's Ranges map is not modified.
func (p Params) WithFloor(attr string, floor float64) Params {
	ranges := make(map[string]Range, len(p.Ranges)+1)
	for k, v := range p.Ranges {
		ranges[k] = v
	}
	r, ok := ranges[attr]
	if !ok {
		r = Range{Min: floor, Max: math.MaxFloat64}
	}
	r.Min = math.Max(r.Min, floor)
	r.Max = math.Max(r.Max, r.Min)
	ranges[attr] = r
	p.Ranges = ranges
	return p
}

// Mutator produces child genomes. It holds no per-genome state; Rand is the
// only mutable field and may be seeded for reproducible runs.
type Mutator struct {
	Params Params
	Layout nn.Layout
	Rand   *rand.Rand
}

func NewMutator(params Params, layout nn.Layout, rng *rand.Rand) *Mutator {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Mutator{Params: params, Layout: layout, Rand: rng}
}

// Mutate returns a mutated copy of parent. The parent is never modified.
func (m *Mutator) Mutate(parent model.Genome) (model.Genome, error) {
	if m == nil || m.Rand == nil {
		return model.Genome{}, errors.New("random source is required")
	}
	if err := Validate(parent); err != nil {
		return model.Genome{}, err
	}

	child := model.Genome{
		Attributes: m.mutateAttributes(parent.Attributes),
	}
	brain, err := m.mutateBrain(parent.Brain)
	if err != nil {
		return model.Genome{}, err
	}
	child.Brain = brain
	return child, nil
}

func (m *Mutator) mutateAttributes(parent map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(parent))
	for _, key := range sortedKeys(parent) {
		value := parent[key]
		out[key] = value
		if m.Rand.Float64() >= m.Params.MutRate {
			continue
		}
		mutated := value * (1 + m.Rand.NormFloat64()*m.Params.AttrSD)
		if r, ok := m.Params.Ranges[key]; ok && !r.Contains(mutated) {
			continue
		}
		out[key] = mutated
	}
	return out
}

func (m *Mutator) mutateBrain(parent map[string]float64) (map[string]float64, error) {
	out := make(map[string]float64, len(parent)+1)
	for _, key := range sortedKeys(parent) {
		if m.Rand.Float64() < m.Params.ChanceDel {
			continue
		}
		out[key] = m.perturb(parent[key])
	}

	if m.Rand.Float64() < m.Params.ChanceNew {
		if err := m.addConnection(out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// perturb scales a weight by Normal(1, sd). Weights too small to move under
// a multiplicative factor are replaced by a fresh draw around zero.
func (m *Mutator) perturb(w float64) float64 {
	if math.Abs(w) > m.Params.MinMutWeight {
		return w * (1 + m.Rand.NormFloat64()*m.Params.BrainSD)
	}
	return m.Params.MinMutWeight * m.Rand.NormFloat64() * m.Params.BrainSD
}

func (m *Mutator) addConnection(brain map[string]float64) error {
	ids, err := m.candidateNodes(brain)
	if err != nil {
		return err
	}

	targets := make([]nn.NodeID, 0, len(ids))
	for _, id := range ids {
		if id.Kind != nn.KindInput {
			targets = append(targets, id)
		}
	}

	for attempt := 0; attempt < maxAddAttempts; attempt++ {
		from := ids[m.Rand.Intn(len(ids))]
		to := targets[m.Rand.Intn(len(targets))]
		if from == to {
			continue
		}
		key := nn.ConnectionKey(from, to)
		if _, exists := brain[key]; exists {
			continue
		}
		brain[key] = m.Rand.NormFloat64()
		return nil
	}
	return nil
}

// candidateNodes lists every io node, the hidden nodes referenced by the
// brain and one hidden id not yet in use, in a stable order.
func (m *Mutator) candidateNodes(brain map[string]float64) ([]nn.NodeID, error) {
	ids := append(m.Layout.InputIDs(), m.Layout.OutputIDs()...)
	used := make(map[int]struct{})
	for _, key := range sortedKeys(brain) {
		from, to, err := m.Layout.ParseConnectionKey(key)
		if err != nil {
			return nil, err
		}
		for _, id := range []nn.NodeID{from, to} {
			if id.Kind != nn.KindHidden {
				continue
			}
			if _, ok := used[id.N]; ok {
				continue
			}
			used[id.N] = struct{}{}
			ids = append(ids, id)
		}
	}

	fresh, err := m.freshHidden(used, len(ids))
	if err != nil {
		return nil, err
	}
	return append(ids, fresh), nil
}

func (m *Mutator) freshHidden(used map[int]struct{}, nodes int) (nn.NodeID, error) {
	space := m.Layout.MaxNodes + 1
	if nodes >= m.Layout.MaxNodes || len(used) >= space {
		return nn.NodeID{}, fmt.Errorf("%w: %d/%d nodes", nn.ErrCapacity, nodes, m.Layout.MaxNodes)
	}
	for attempt := 0; attempt < maxAddAttempts; attempt++ {
		n := m.Rand.Intn(space)
		if _, ok := used[n]; !ok {
			return nn.HiddenID(n), nil
		}
	}
	for n := 0; n < space; n++ {
		if _, ok := used[n]; !ok {
			return nn.HiddenID(n), nil
		}
	}
	return nn.NodeID{}, fmt.Errorf("%w: hidden id space full", nn.ErrCapacity)
}
