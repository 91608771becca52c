// Package platform drives simulation runs: it steps a world tick by tick,
// persists what happens to a store and answers pause, continue and stop
// commands for active runs.
package platform

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"podds/internal/logging"
	"podds/internal/model"
	"podds/internal/storage"
	"podds/internal/world"
)

const defaultFlushEvery = 100

var ErrRunNotActive = errors.New("run not active")

type Config struct {
	Store  storage.Store
	Logger *slog.Logger
}

type Command string

const (
	CommandPause    Command = "pause"
	CommandContinue Command = "continue"
	CommandStop     Command = "stop"
)

type StopReason string

const (
	StopReasonTicks    StopReason = "ticks"
	StopReasonExtinct  StopReason = "extinct"
	StopReasonCommand  StopReason = "command"
	StopReasonCanceled StopReason = "canceled"
)

type SimulationConfig struct {
	RunID string
	Seed  int64
	Hz    float64
	// Ticks bounds the run; 0 runs until extinction or a stop.
	Ticks int
	World world.Config
	// FlushEvery is the number of ticks buffered before records are written
	// to the store.
	FlushEvery int
	Control    chan Command
	// StartPaused holds the run before its first tick until it is continued.
	StartPaused bool
	// AutoContinueAfter sends a continue command this long after the run
	// starts; 0 disables it.
	AutoContinueAfter time.Duration
	// OnTick, when set, is called after every tick.
	OnTick func(world.TickReport)
}

// SimulationResult describes how a run ended. Per-tick records are not kept
// here; they are flushed to the store as the run goes.
type SimulationResult struct {
	Run          model.RunRecord
	StopReason   StopReason
	FailedBirths int
	Survivors    []world.Snapshot
	Elapsed      time.Duration
}

type Polis struct {
	store  storage.Store
	logger *slog.Logger

	mu      sync.RWMutex
	started bool
	runs    map[string]chan Command
}

func NewPolis(cfg Config) *Polis {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &Polis{
		store:  cfg.Store,
		logger: logger,
		runs:   make(map[string]chan Command),
	}
}

func (p *Polis) Init(ctx context.Context) error {
	if p.store == nil {
		return fmt.Errorf("store is required")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return nil
	}
	if err := p.store.Init(ctx); err != nil {
		return err
	}
	p.started = true
	return nil
}

func (p *Polis) Started() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.started
}

func (p *Polis) Store() storage.Store {
	return p.store
}

// Stop halts every active run and marks the polis as stopped.
func (p *Polis) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, control := range p.runs {
		select {
		case control <- CommandStop:
		default:
		}
	}
	p.started = false
	p.runs = make(map[string]chan Command)
}

func (p *Polis) PauseRun(runID string) error {
	return p.sendRunCommand(runID, CommandPause)
}

func (p *Polis) ContinueRun(runID string) error {
	return p.sendRunCommand(runID, CommandContinue)
}

func (p *Polis) StopRun(runID string) error {
	return p.sendRunCommand(runID, CommandStop)
}

// ActiveRuns lists the ids of runs currently in progress.
func (p *Polis) ActiveRuns() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]string, 0, len(p.runs))
	for id := range p.runs {
		out = append(out, id)
	}
	return out
}

// RunSimulation steps a freshly seeded world until the tick budget is spent,
// the population dies out, a stop command arrives or ctx is done. Records are
// flushed to the store as the run progresses; a halted run is still saved.
func (p *Polis) RunSimulation(ctx context.Context, cfg SimulationConfig) (SimulationResult, error) {
	if cfg.RunID == "" {
		return SimulationResult{}, fmt.Errorf("run id is required")
	}
	if cfg.Hz <= 0 {
		return SimulationResult{}, fmt.Errorf("hz must be > 0")
	}
	if cfg.Ticks < 0 {
		return SimulationResult{}, fmt.Errorf("ticks must be >= 0")
	}
	if cfg.FlushEvery <= 0 {
		cfg.FlushEvery = defaultFlushEvery
	}
	if !p.Started() {
		return SimulationResult{}, fmt.Errorf("polis is not initialized")
	}

	control := cfg.Control
	if control == nil {
		control = make(chan Command, 16)
	}
	if err := p.registerRunControl(cfg.RunID, control); err != nil {
		return SimulationResult{}, err
	}
	defer p.unregisterRunControl(cfg.RunID)
	if cfg.AutoContinueAfter > 0 {
		timer := time.AfterFunc(cfg.AutoContinueAfter, func() {
			_ = p.ContinueRun(cfg.RunID)
		})
		defer timer.Stop()
	}

	logger := p.logger.With("run_id", cfg.RunID)
	w, err := world.New(cfg.World, rand.New(rand.NewSource(cfg.Seed)), logger)
	if err != nil {
		return SimulationResult{}, err
	}
	defer w.Close()

	started := time.Now()
	run := model.RunRecord{
		ID:           cfg.RunID,
		Seed:         cfg.Seed,
		Hz:           cfg.Hz,
		InitPodds:    cfg.World.InitPodds,
		CreatedAtUTC: started.UTC().Format(time.RFC3339Nano),
	}
	if err := p.store.SaveRun(ctx, run); err != nil {
		return SimulationResult{}, fmt.Errorf("save run: %w", err)
	}
	for _, s := range w.Podds() {
		if err := p.store.SaveGenome(ctx, model.GenomeRecord{RunID: cfg.RunID, PoddID: s.ID, Genome: s.Genome}); err != nil {
			return SimulationResult{}, fmt.Errorf("save seed genome: %w", err)
		}
	}
	logger.Info("run started", "seed", cfg.Seed, "podds", w.Population(), "ticks", cfg.Ticks)

	result := SimulationResult{}
	buf := &pending{}
	paused := cfg.StartPaused
	for {
		reason, halted := p.checkHalt(ctx, control, cfg.RunID, paused)
		paused = false
		if halted {
			result.StopReason = reason
			break
		}
		if cfg.Ticks > 0 && w.CurrentTick() >= cfg.Ticks {
			result.StopReason = StopReasonTicks
			break
		}

		report := w.Tick()
		stampRunID(cfg.RunID, &report)
		buf.add(report)
		run.TotalBirths += len(report.Births)
		run.TotalDeaths += len(report.Deaths)
		result.FailedBirths += report.FailedBirths
		if cfg.OnTick != nil {
			cfg.OnTick(report)
		}

		if report.Tick%cfg.FlushEvery == 0 {
			if err := buf.flush(context.WithoutCancel(ctx), p.store, cfg.RunID); err != nil {
				return SimulationResult{}, err
			}
		}
		if w.Population() == 0 {
			result.StopReason = StopReasonExtinct
			break
		}
	}

	// Records of a halted run are still written, even when ctx is done.
	saveCtx := context.WithoutCancel(ctx)
	if err := buf.flush(saveCtx, p.store, cfg.RunID); err != nil {
		return SimulationResult{}, err
	}

	run.Ticks = w.CurrentTick()
	run.FinalPodds = w.Population()
	if err := p.store.SaveRun(saveCtx, run); err != nil {
		return SimulationResult{}, fmt.Errorf("save run: %w", err)
	}

	result.Run = run
	result.Survivors = w.Podds()
	result.Elapsed = time.Since(started)
	logger.Info("run finished",
		"reason", string(result.StopReason),
		"ticks", run.Ticks,
		"podds", run.FinalPodds,
		"births", run.TotalBirths,
		"deaths", run.TotalDeaths,
		"failed_births", result.FailedBirths,
	)
	return result, nil
}

// checkHalt drains pending commands, blocking while the run is paused.
func (p *Polis) checkHalt(ctx context.Context, control <-chan Command, runID string, paused bool) (StopReason, bool) {
	if paused {
		p.logger.Info("run paused", "run_id", runID)
	}
	for {
		if ctx.Err() != nil {
			return StopReasonCanceled, true
		}
		if !paused {
			select {
			case cmd := <-control:
				switch cmd {
				case CommandStop:
					return StopReasonCommand, true
				case CommandPause:
					paused = true
					p.logger.Info("run paused", "run_id", runID)
				}
				continue
			default:
				return "", false
			}
		}
		select {
		case <-ctx.Done():
			return StopReasonCanceled, true
		case cmd := <-control:
			switch cmd {
			case CommandStop:
				return StopReasonCommand, true
			case CommandContinue:
				paused = false
				p.logger.Info("run continued", "run_id", runID)
			}
		}
	}
}

func stampRunID(runID string, report *world.TickReport) {
	for i := range report.Births {
		report.Births[i].RunID = runID
	}
	for i := range report.Deaths {
		report.Deaths[i].RunID = runID
	}
	report.Stats.RunID = runID
}

// pending buffers the records of the ticks not yet written to the store.
type pending struct {
	genomes []model.GenomeRecord
	births  []model.BirthRecord
	deaths  []model.DeathRecord
	ticks   []model.TickStats
}

func (b *pending) add(report world.TickReport) {
	for _, birth := range report.Births {
		b.genomes = append(b.genomes, model.GenomeRecord{RunID: birth.RunID, PoddID: birth.ChildID, Genome: birth.Genome})
	}
	b.births = append(b.births, report.Births...)
	b.deaths = append(b.deaths, report.Deaths...)
	b.ticks = append(b.ticks, report.Stats)
}

func (b *pending) flush(ctx context.Context, store storage.Store, runID string) error {
	for _, g := range b.genomes {
		if err := store.SaveGenome(ctx, g); err != nil {
			return fmt.Errorf("save genome %d: %w", g.PoddID, err)
		}
	}
	if err := store.AppendBirths(ctx, runID, b.births); err != nil {
		return fmt.Errorf("append births: %w", err)
	}
	if err := store.AppendDeaths(ctx, runID, b.deaths); err != nil {
		return fmt.Errorf("append deaths: %w", err)
	}
	if err := store.AppendTickStats(ctx, runID, b.ticks); err != nil {
		return fmt.Errorf("append tick stats: %w", err)
	}
	*b = pending{}
	return nil
}

func (p *Polis) registerRunControl(runID string, control chan Command) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.started {
		return fmt.Errorf("polis is not initialized")
	}
	if _, exists := p.runs[runID]; exists {
		return fmt.Errorf("run already active: %s", runID)
	}
	p.runs[runID] = control
	return nil
}

func (p *Polis) unregisterRunControl(runID string) {
	p.mu.Lock()
	delete(p.runs, runID)
	p.mu.Unlock()
}

func (p *Polis) sendRunCommand(runID string, cmd Command) error {
	if runID == "" {
		return fmt.Errorf("run id is required")
	}
	p.mu.RLock()
	control, ok := p.runs[runID]
	p.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrRunNotActive, runID)
	}
	select {
	case control <- cmd:
		return nil
	default:
		return fmt.Errorf("run control channel is full: %s", runID)
	}
}
