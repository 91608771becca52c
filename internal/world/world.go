// Package world is a reference population manager for podds: a bounded
// square with food points, point kinematics and deferred birth and death
// application.
package world

import (
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"time"

	"podds/internal/genome"
	"podds/internal/logging"
	"podds/internal/model"
	"podds/internal/podd"
	"podds/internal/stats"
)

type body struct {
	x, y    float64
	heading float64
}

type member struct {
	podd *podd.Podd
	body body
}

// Snapshot is a read-only view of one live podd.
type Snapshot struct {
	ID       int
	ParentID int
	Energy   float64
	Age      float64
	X, Y     float64
	Heading  float64
	Genome   model.Genome
}

// TickReport lists what one tick changed. Record RunID fields are left empty
// for the caller to fill.
type TickReport struct {
	Tick         int
	Births       []model.BirthRecord
	Deaths       []model.DeathRecord
	FailedBirths int
	Stats        model.TickStats
}

type World struct {
	cfg     Config
	env     *podd.Env
	mutator *genome.Mutator
	rng     *rand.Rand
	logger  *slog.Logger

	// members is kept in ascending id order: ids only grow and removals keep
	// the relative order.
	members []*member
	food    []point
	nextID  int
	tick    int
}

func New(cfg Config, rng *rand.Rand, logger *slog.Logger) (*World, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if logger == nil {
		logger = logging.Discard()
	}
	layout := cfg.Layout()
	env, err := podd.NewEnv(cfg.Podd, layout, rng)
	if err != nil {
		return nil, err
	}

	w := &World{
		cfg:     cfg,
		env:     env,
		mutator: genome.NewMutator(cfg.Mutation.WithFloor(genome.AttrBirthEnergy, cfg.Podd.BirthCost), layout, rng),
		rng:     rng,
		logger:  logger,
		nextID:  1,
	}
	for i := 0; i < cfg.InitFood; i++ {
		w.spawnFood()
	}
	for i := 0; i < cfg.InitPodds; i++ {
		p, err := podd.New(env, w.nextID, 0, cfg.Seed)
		if err != nil {
			w.Close()
			return nil, fmt.Errorf("seed podd: %w", err)
		}
		w.nextID++
		w.members = append(w.members, &member{podd: p})
	}
	return w, nil
}

// Tick advances every live podd by one step, then applies births and
// deaths.
func (w *World) Tick() TickReport {
	w.tick++
	if w.cfg.FoodInterval > 0 && w.tick%w.cfg.FoodInterval == 0 {
		w.spawnFood()
	}

	report := TickReport{Tick: w.tick}
	population := len(w.members)
	var parents, dead []*member

	for _, m := range w.members {
		actions := m.podd.Step(w.sense(m), population)
		if !m.podd.Dead() {
			w.move(m, actions)
			w.eat(m)
		}
		if m.podd.Dead() {
			dead = append(dead, m)
		}
		if m.podd.GiveBirth() {
			parents = append(parents, m)
		}
	}

	for _, parent := range parents {
		child, err := parent.podd.Reproduce(w.nextID, w.mutator)
		if err != nil {
			report.FailedBirths++
			w.logger.Warn("birth failed", "tick", w.tick, "parent", parent.podd.ID(), "error", err)
			continue
		}
		w.nextID++
		w.members = append(w.members, &member{podd: child, body: parent.body})
		report.Births = append(report.Births, model.BirthRecord{
			Tick:     w.tick,
			ParentID: parent.podd.ID(),
			ChildID:  child.ID(),
			Energy:   parent.podd.Energy(),
			Genome:   child.Genome(),
		})
		w.logger.Debug("podd born", "tick", w.tick, "id", child.ID(), "parent", parent.podd.ID())
	}

	if len(dead) > 0 {
		gone := make(map[*member]struct{}, len(dead))
		for _, m := range dead {
			gone[m] = struct{}{}
			report.Deaths = append(report.Deaths, model.DeathRecord{
				Tick:     w.tick,
				PoddID:   m.podd.ID(),
				ParentID: m.podd.ParentID(),
				Cause:    string(m.podd.Cause()),
				Age:      m.podd.Age(),
				Energy:   m.podd.Energy(),
				Children: len(m.podd.Children()),
			})
			w.logger.Debug("podd died", "tick", w.tick, "id", m.podd.ID(), "cause", string(m.podd.Cause()), "age", m.podd.Age())
			if err := m.podd.BrainError(); err != nil {
				w.logger.Debug("brain malfunction", "id", m.podd.ID(), "error", err)
			}
			m.podd.Release()
		}
		kept := w.members[:0]
		for _, m := range w.members {
			if _, ok := gone[m]; !ok {
				kept = append(kept, m)
			}
		}
		for i := len(kept); i < len(w.members); i++ {
			w.members[i] = nil
		}
		w.members = kept
	}

	report.Stats = w.summarize(report)
	return report
}

func (w *World) summarize(report TickReport) model.TickStats {
	samples := make([]stats.Sample, len(w.members))
	for i, m := range w.members {
		samples[i] = stats.Sample{
			Energy:     m.podd.Energy(),
			Age:        m.podd.Age(),
			Size:       m.podd.Attr(genome.AttrSize),
			Strength:   m.podd.Attr(genome.AttrStrength),
			Complexity: m.podd.Complexity(),
		}
	}
	out := stats.Summarize(samples)
	out.Tick = report.Tick
	out.Time = float64(report.Tick) * w.cfg.Podd.TickDuration
	out.Food = len(w.food)
	out.Births = len(report.Births)
	out.FailedBirths = report.FailedBirths
	out.Deaths = len(report.Deaths)
	for _, d := range report.Deaths {
		if out.DeathsByCause == nil {
			out.DeathsByCause = make(map[string]int)
		}
		out.DeathsByCause[d.Cause]++
	}
	return out
}

// sense returns the external sensor vector for m, or nil when the podds are
// built without sensors.
func (w *World) sense(m *member) []float64 {
	if w.cfg.Podd.Sensors == 0 {
		return nil
	}
	f, dist, ok := w.nearestFood(m.body.x, m.body.y)
	if !ok {
		return []float64{1, 0}
	}
	bearing := math.Atan2(f.y-m.body.y, f.x-m.body.x) - m.body.heading
	bearing = math.Remainder(bearing, 2*math.Pi)
	return []float64{math.Min(dist/(2*w.cfg.Bounds), 1), bearing / math.Pi}
}

func (w *World) move(m *member, actions []bool) {
	if len(actions) < actuatorCount {
		return
	}
	dt := w.cfg.Podd.TickDuration
	size := m.podd.Attr(genome.AttrSize)
	if size <= 0 {
		size = 1
	}
	force := m.podd.Attr(genome.AttrStrength) / 10 / size

	if actions[ActTurnLeft] {
		m.body.heading += w.cfg.TurnRate * force * dt
	}
	if actions[ActTurnRight] {
		m.body.heading -= w.cfg.TurnRate * force * dt
	}
	m.body.heading = math.Remainder(m.body.heading, 2*math.Pi)
	if actions[ActForward] {
		step := w.cfg.Speed * force * dt
		m.body.x = clamp(m.body.x+step*math.Cos(m.body.heading), -w.cfg.Bounds, w.cfg.Bounds)
		m.body.y = clamp(m.body.y+step*math.Sin(m.body.heading), -w.cfg.Bounds, w.cfg.Bounds)
	}
}

func (w *World) eat(m *member) {
	radius := m.podd.Attr(genome.AttrSize)
	for i := 0; i < len(w.food); {
		if w.food[i].within(m.body.x, m.body.y, radius) {
			m.podd.Feed(w.cfg.FoodEnergy)
			w.removeFood(i)
			continue
		}
		i++
	}
}

// Podds returns snapshots of the live population in ascending id order.
func (w *World) Podds() []Snapshot {
	out := make([]Snapshot, len(w.members))
	for i, m := range w.members {
		out[i] = Snapshot{
			ID:       m.podd.ID(),
			ParentID: m.podd.ParentID(),
			Energy:   m.podd.Energy(),
			Age:      m.podd.Age(),
			X:        m.body.x,
			Y:        m.body.y,
			Heading:  m.body.heading,
			Genome:   m.podd.Genome(),
		}
	}
	return out
}

func (w *World) Population() int  { return len(w.members) }
func (w *World) Food() int        { return len(w.food) }
func (w *World) CurrentTick() int { return w.tick }

// Close releases every live podd. The world is empty afterwards.
func (w *World) Close() {
	for _, m := range w.members {
		m.podd.Release()
	}
	w.members = nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
