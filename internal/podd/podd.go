// Package podd implements the per-tick lifecycle of a single podd: energy
// accounting, brain evaluation, mortality and reproduction.
package podd

import (
	"errors"
	"fmt"
	"math/rand"
	"time"

	"podds/internal/genome"
	"podds/internal/model"
	"podds/internal/nn"
)

type State uint8

const (
	StateAlive State = iota
	StateReproducing
	StateDying
	StateDead
)

func (s State) String() string {
	switch s {
	case StateAlive:
		return "alive"
	case StateReproducing:
		return "reproducing"
	case StateDying:
		return "dying"
	case StateDead:
		return "dead"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

type Cause string

const (
	CauseNone             Cause = ""
	CauseNoEnergy         Cause = "no_energy"
	CauseBrainMalfunction Cause = "brain_malfunction"
	CauseAge              Cause = "age"
)

var ErrNotAlive = errors.New("podd is not alive")

// Env bundles what every podd of one population shares read-only: the
// metabolic config, the brain layout, the mortality table, the arena pool
// and the random source.
type Env struct {
	Config    Config
	Layout    nn.Layout
	Mortality MortalityTable
	Pool      *nn.Pool
	Rand      *rand.Rand
}

func NewEnv(cfg Config, layout nn.Layout, rng *rand.Rand) (*Env, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if layout.Activation == "" {
		layout.Activation = nn.DefaultActivation
	}
	if err := layout.Validate(); err != nil {
		return nil, err
	}
	if want := cfg.Inputs(layout.Outputs); layout.Inputs != want {
		return nil, fmt.Errorf("brain layout has %d inputs, lifecycle feeds %d", layout.Inputs, want)
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Env{
		Config:    cfg,
		Layout:    layout,
		Mortality: NewMortalityTable(cfg.FixedDeathRate, cfg.AgeDeteriorationRate, cfg.MortalityHorizon),
		Pool:      nn.NewPool(0),
		Rand:      rng,
	}, nil
}

type Podd struct {
	env *Env

	id       int
	parentID int
	children []int

	genome model.Genome
	brain  *nn.Graph

	energy     float64
	minEnergy  float64
	age        float64
	prevAction []float64

	dead      bool
	giveBirth bool
	cause     Cause
	state     State
	brainErr  error
}

// New builds a podd from a genome. parentID is 0 for seeded podds.
func New(env *Env, id, parentID int, g model.Genome) (*Podd, error) {
	if env == nil {
		return nil, errors.New("podd env is required")
	}
	if err := genome.Validate(g); err != nil {
		return nil, err
	}
	brain, err := env.Pool.Build(env.Layout, g.Brain)
	if err != nil {
		return nil, fmt.Errorf("podd %d brain: %w", id, err)
	}
	return &Podd{
		env:        env,
		id:         id,
		parentID:   parentID,
		genome:     g.Clone(),
		brain:      brain,
		energy:     env.Config.InitEnergy,
		minEnergy:  env.Config.MinEnergy,
		prevAction: make([]float64, env.Layout.Outputs),
		state:      StateAlive,
	}, nil
}

// Step advances the podd by one tick and returns which actuators fire. The
// result is empty when the brain failed to evaluate.
func (p *Podd) Step(sensors []float64, populationSize int) []bool {
	if p.state == StateDying || p.state == StateDead {
		return nil
	}
	cfg := p.env.Config

	p.age += cfg.TickDuration
	p.minEnergy += cfg.MinEnergyAgeFactor * cfg.TickDuration
	if p.energy > cfg.MaxEnergy {
		p.energy = cfg.MaxEnergy
	}
	p.dead = false
	p.giveBirth = false
	p.brainErr = nil

	action, err := p.brain.Compute(p.observe(sensors))
	if err != nil {
		p.brainErr = err
		action = nil
	}
	p.prevAction = action

	active := 0
	for _, v := range action {
		if v > 0 {
			active++
		}
	}
	p.energy += p.balance(active, populationSize)

	switch {
	case p.energy <= p.minEnergy:
		p.die(CauseNoEnergy)
	case len(action) == 0:
		p.die(CauseBrainMalfunction)
	case p.env.Rand.Float64() < p.env.Mortality.Rate(p.age):
		p.die(CauseAge)
	}

	if p.energy >= p.genome.Attributes[genome.AttrBirthEnergy]+p.minEnergy && p.age >= cfg.MinBirthAge {
		p.giveBirth = true
		p.energy -= cfg.BirthCost
	}

	switch {
	case p.dead:
		p.state = StateDying
	case p.giveBirth:
		p.state = StateReproducing
	default:
		p.state = StateAlive
	}

	actuators := make([]bool, len(action))
	for i, v := range action {
		actuators[i] = v > 0
	}
	return actuators
}

func (p *Podd) observe(sensors []float64) []float64 {
	cfg := p.env.Config
	obs := make([]float64, 0, len(sensors)+len(p.prevAction)+3)
	obs = append(obs, sensors...)
	obs = append(obs, p.energy)
	if len(p.prevAction) == p.env.Layout.Outputs {
		obs = append(obs, p.prevAction...)
	} else {
		obs = append(obs, make([]float64, p.env.Layout.Outputs)...)
	}
	obs = append(obs, (p.env.Rand.Float64()-0.5)*cfg.NoiseScale)
	obs = append(obs, cfg.Bias)
	return obs
}

// balance is the net energy change of one tick before birth costs.
func (p *Podd) balance(active, populationSize int) float64 {
	cfg := p.env.Config
	if populationSize < 1 {
		populationSize = 1
	}
	return cfg.AmbientEnergy/float64(populationSize) -
		cfg.MoveCost*float64(active) -
		cfg.LivingCost -
		cfg.ComplexityCost*p.brain.Complexity() -
		cfg.SizeCost*p.Attr(genome.AttrSize) -
		cfg.StrengthCost*p.Attr(genome.AttrStrength)
}

func (p *Podd) die(cause Cause) {
	p.dead = true
	p.cause = cause
}

// Feed credits food energy collected by the world.
func (p *Podd) Feed(amount float64) {
	if p.state == StateDead {
		return
	}
	p.energy += amount
}

// Reproduce builds a child from a mutated copy of the genome. The podd
// itself is left untouched apart from recording the child id.
func (p *Podd) Reproduce(childID int, mutator *genome.Mutator) (*Podd, error) {
	if p.state == StateDead {
		return nil, ErrNotAlive
	}
	childGenome, err := mutator.Mutate(p.genome)
	if err != nil {
		return nil, fmt.Errorf("mutate podd %d: %w", p.id, err)
	}
	child, err := New(p.env, childID, p.id, childGenome)
	if err != nil {
		return nil, err
	}
	p.children = append(p.children, childID)
	return child, nil
}

// Release ends the podd and returns its brain arena to the pool. Calling it
// more than once has no effect.
func (p *Podd) Release() {
	if p.state == StateDead {
		return
	}
	p.state = StateDead
	p.brain.Release()
}

func (p *Podd) ID() int                  { return p.id }
func (p *Podd) ParentID() int            { return p.parentID }
func (p *Podd) Energy() float64          { return p.energy }
func (p *Podd) MinEnergy() float64       { return p.minEnergy }
func (p *Podd) Age() float64             { return p.age }
func (p *Podd) Dead() bool               { return p.dead }
func (p *Podd) GiveBirth() bool          { return p.giveBirth }
func (p *Podd) Cause() Cause             { return p.cause }
func (p *Podd) State() State             { return p.state }
func (p *Podd) BrainError() error        { return p.brainErr }
func (p *Podd) Complexity() float64      { return p.brain.Complexity() }
func (p *Podd) Genome() model.Genome     { return p.genome.Clone() }
func (p *Podd) Attr(name string) float64 { return p.genome.Attributes[name] }

func (p *Podd) Children() []int {
	return append([]int(nil), p.children...)
}

func (p *Podd) PreviousAction() []float64 {
	return append([]float64(nil), p.prevAction...)
}
