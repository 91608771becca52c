// Package podds is the public entry point for running podd simulations and
// reading back what they recorded.
package podds

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"podds/internal/config"
	"podds/internal/logging"
	"podds/internal/model"
	"podds/internal/platform"
	"podds/internal/stats"
	"podds/internal/storage"
	"podds/internal/world"
)

const (
	defaultRunsDir    = config.DefaultOutDir
	defaultExportsDir = "exports"
	defaultDBPath     = config.DefaultDBPath
	defaultRunsLimit  = 20
)

var ErrRunNotFound = errors.New("run not found")

type Options struct {
	StoreKind  string
	DBPath     string
	RunsDir    string
	ExportsDir string
	Logger     *slog.Logger
}

type Client struct {
	store     storage.Store
	storeKind string
	logger    *slog.Logger

	mu    sync.Mutex
	polis *platform.Polis

	runsDir    string
	exportsDir string
}

type RunRequest struct {
	// Settings describes the simulation. A zero Hz selects config.Default().
	Settings config.Settings
	// RunID defaults to a random UUID.
	RunID string
	// StartPaused holds the run before its first tick until ContinueRun.
	StartPaused bool
	// AutoContinueAfter continues a paused run after this delay; 0 disables.
	AutoContinueAfter time.Duration
	// OnTick, when set, observes every tick of the run.
	OnTick func(world.TickReport)
}

// RunControlRequest addresses a run in progress on this client.
type RunControlRequest struct {
	RunID string
}

type RunSummary struct {
	RunID        string        `json:"run_id"`
	Seed         int64         `json:"seed"`
	StopReason   string        `json:"stop_reason"`
	Ticks        int           `json:"ticks"`
	Duration     float64       `json:"duration"`
	FinalPodds   int           `json:"final_podds"`
	PeakPodds    int           `json:"peak_podds"`
	TotalBirths  int           `json:"total_births"`
	FailedBirths int           `json:"failed_births"`
	TotalDeaths  int           `json:"total_deaths"`
	Extinct      bool          `json:"extinct"`
	ArtifactsDir string        `json:"artifacts_dir"`
	Elapsed      time.Duration `json:"elapsed"`
}

type RunsRequest struct {
	Limit int
}

type RunItem struct {
	RunID        string  `json:"run_id"`
	CreatedAtUTC string  `json:"created_at_utc"`
	Seed         int64   `json:"seed"`
	Hz           float64 `json:"hz"`
	Ticks        int     `json:"ticks"`
	InitPodds    int     `json:"init_podds"`
	FinalPodds   int     `json:"final_podds"`
	TotalBirths  int     `json:"total_births"`
	TotalDeaths  int     `json:"total_deaths"`
}

// RunRef selects a run by id or the most recent one.
type RunRef struct {
	RunID  string
	Latest bool
}

type LineageRequest struct {
	RunRef
	// PoddID selects the podd whose ancestry is traced back to its seed.
	// Zero lists every birth of the run instead.
	PoddID int
	Limit  int
}

type LineageItem struct {
	PoddID     int           `json:"podd_id"`
	ParentID   int           `json:"parent_id"`
	Tick       int           `json:"tick"`
	Generation int           `json:"generation"`
	Genome     *model.Genome `json:"genome,omitempty"`
}

type DeathsRequest struct {
	RunRef
	Cause string
	Limit int
}

type StatsRequest struct {
	RunRef
	// Every keeps one tick in Every; 0 or 1 keeps all of them.
	Every int
}

type StatsReport struct {
	RunID   string            `json:"run_id"`
	Summary stats.RunSummary  `json:"summary"`
	Ticks   []model.TickStats `json:"ticks"`
}

type ExportRequest struct {
	RunRef
	OutDir string
}

type ExportSummary struct {
	RunID     string
	Directory string
}

func New(opts Options) (*Client, error) {
	storeKind := opts.StoreKind
	if storeKind == "" {
		storeKind = storage.DefaultStoreKind()
	}
	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = defaultDBPath
	}
	runsDir := opts.RunsDir
	if runsDir == "" {
		runsDir = defaultRunsDir
	}
	exportsDir := opts.ExportsDir
	if exportsDir == "" {
		exportsDir = defaultExportsDir
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	store, err := storage.NewStore(storeKind, dbPath)
	if err != nil {
		return nil, err
	}

	return &Client{
		store:      store,
		storeKind:  storeKind,
		logger:     logger,
		runsDir:    runsDir,
		exportsDir: exportsDir,
	}, nil
}

// Close stops any run still in progress and releases the store.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.polis != nil {
		c.polis.Stop()
	}
	c.mu.Unlock()
	return storage.CloseIfSupported(c.store)
}

func (c *Client) Init(ctx context.Context) error {
	_, err := c.ensurePolis(ctx)
	return err
}

// Run executes one simulation and writes its artifacts under the runs
// directory. A run cut short by ctx is still recorded.
func (c *Client) Run(ctx context.Context, req RunRequest) (RunSummary, error) {
	settings := req.Settings
	if settings.Run.Hz == 0 {
		settings = config.Default()
	}
	if err := settings.Validate(); err != nil {
		return RunSummary{}, err
	}
	runID := req.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	seed := settings.Run.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	p, err := c.ensurePolis(ctx)
	if err != nil {
		return RunSummary{}, err
	}
	result, err := p.RunSimulation(ctx, platform.SimulationConfig{
		RunID:             runID,
		Seed:              seed,
		Hz:                settings.Run.Hz,
		Ticks:             settings.Run.Ticks,
		World:             settings.WorldConfig(),
		StartPaused:       req.StartPaused,
		AutoContinueAfter: req.AutoContinueAfter,
		OnTick:            req.OnTick,
	})
	if err != nil {
		return RunSummary{}, err
	}

	// The run kept nothing per tick in memory; read its records back for the
	// artifacts. A cancelled ctx must not lose them.
	readCtx := context.WithoutCancel(ctx)
	ticks, err := c.store.GetTickStats(readCtx, runID)
	if err != nil {
		return RunSummary{}, err
	}
	births, err := c.store.GetBirths(readCtx, runID)
	if err != nil {
		return RunSummary{}, err
	}
	deaths, err := c.store.GetDeaths(readCtx, runID)
	if err != nil {
		return RunSummary{}, err
	}

	settings.Run.Seed = seed
	rawSettings, err := json.Marshal(settings)
	if err != nil {
		return RunSummary{}, err
	}
	summary := stats.SummarizeRun(ticks)
	survivors := make([]stats.Survivor, 0, len(result.Survivors))
	for _, s := range result.Survivors {
		survivors = append(survivors, stats.Survivor{
			ID:       s.ID,
			ParentID: s.ParentID,
			Energy:   s.Energy,
			Age:      s.Age,
			Genome:   s.Genome,
		})
	}

	runDir, err := stats.WriteRunArtifacts(c.runsDir, stats.RunArtifacts{
		Config: stats.RunConfig{
			RunID:               runID,
			Seed:                seed,
			Hz:                  settings.Run.Hz,
			Ticks:               settings.Run.Ticks,
			InitPodds:           settings.World.InitPodds,
			Store:               c.storeKind,
			StartPaused:         req.StartPaused,
			AutoContinueAfterMS: req.AutoContinueAfter.Milliseconds(),
			Settings:            rawSettings,
		},
		Summary:   summary,
		Ticks:     ticks,
		Births:    births,
		Deaths:    deaths,
		Survivors: survivors,
	})
	if err != nil {
		return RunSummary{}, err
	}
	if err := stats.AppendRunIndex(c.runsDir, stats.RunIndexEntry{
		RunID:           runID,
		Seed:            seed,
		Hz:              settings.Run.Hz,
		Ticks:           result.Run.Ticks,
		InitPodds:       settings.World.InitPodds,
		FinalPopulation: result.Run.FinalPodds,
		TotalBirths:     result.Run.TotalBirths,
		TotalDeaths:     result.Run.TotalDeaths,
		CreatedAtUTC:    result.Run.CreatedAtUTC,
	}); err != nil {
		return RunSummary{}, err
	}

	return RunSummary{
		RunID:        runID,
		Seed:         seed,
		StopReason:   string(result.StopReason),
		Ticks:        result.Run.Ticks,
		Duration:     summary.Duration,
		FinalPodds:   result.Run.FinalPodds,
		PeakPodds:    summary.PeakPopulation,
		TotalBirths:  result.Run.TotalBirths,
		FailedBirths: result.FailedBirths,
		TotalDeaths:  result.Run.TotalDeaths,
		Extinct:      result.Run.FinalPodds == 0,
		ArtifactsDir: filepath.Clean(runDir),
		Elapsed:      result.Elapsed,
	}, nil
}

// PauseRun holds a run in progress on this client before its next tick.
func (c *Client) PauseRun(ctx context.Context, req RunControlRequest) error {
	p, err := c.ensurePolis(ctx)
	if err != nil {
		return err
	}
	return p.PauseRun(req.RunID)
}

func (c *Client) ContinueRun(ctx context.Context, req RunControlRequest) error {
	p, err := c.ensurePolis(ctx)
	if err != nil {
		return err
	}
	return p.ContinueRun(req.RunID)
}

// StopRun ends a run in progress. The run is still recorded, with stop
// reason "command".
func (c *Client) StopRun(ctx context.Context, req RunControlRequest) error {
	p, err := c.ensurePolis(ctx)
	if err != nil {
		return err
	}
	return p.StopRun(req.RunID)
}

// ActiveRuns lists the ids of runs in progress on this client.
func (c *Client) ActiveRuns() []string {
	c.mu.Lock()
	p := c.polis
	c.mu.Unlock()
	if p == nil {
		return nil
	}
	runs := p.ActiveRuns()
	sort.Strings(runs)
	return runs
}

// Runs lists recorded runs, newest first.
func (c *Client) Runs(ctx context.Context, req RunsRequest) ([]RunItem, error) {
	if req.Limit <= 0 {
		req.Limit = defaultRunsLimit
	}

	entries, err := stats.ListRunIndex(c.runsDir)
	if err != nil {
		return nil, err
	}
	out := make([]RunItem, 0, len(entries))
	seen := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		seen[e.RunID] = struct{}{}
		out = append(out, RunItem{
			RunID:        e.RunID,
			CreatedAtUTC: e.CreatedAtUTC,
			Seed:         e.Seed,
			Hz:           e.Hz,
			Ticks:        e.Ticks,
			InitPodds:    e.InitPodds,
			FinalPodds:   e.FinalPopulation,
			TotalBirths:  e.TotalBirths,
			TotalDeaths:  e.TotalDeaths,
		})
	}

	// Runs interrupted before their artifacts were written only live in the
	// store.
	if _, err := c.ensurePolis(ctx); err != nil {
		return nil, err
	}
	stored, err := c.store.ListRuns(ctx)
	if err != nil {
		return nil, err
	}
	for _, r := range stored {
		if _, ok := seen[r.ID]; ok {
			continue
		}
		out = append(out, RunItem{
			RunID:        r.ID,
			CreatedAtUTC: r.CreatedAtUTC,
			Seed:         r.Seed,
			Hz:           r.Hz,
			Ticks:        r.Ticks,
			InitPodds:    r.InitPodds,
			FinalPodds:   r.FinalPodds,
			TotalBirths:  r.TotalBirths,
			TotalDeaths:  r.TotalDeaths,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAtUTC > out[j].CreatedAtUTC })

	if len(out) > req.Limit {
		out = out[:req.Limit]
	}
	return out, nil
}

// Lineage traces the ancestry of one podd, or lists every birth of the run
// when no podd is selected.
func (c *Client) Lineage(ctx context.Context, req LineageRequest) ([]LineageItem, error) {
	if req.Limit < 0 {
		return nil, errors.New("limit must be >= 0")
	}
	runID, err := c.resolveRun(ctx, req.RunRef)
	if err != nil {
		return nil, err
	}
	births, err := c.births(ctx, runID)
	if err != nil {
		return nil, err
	}

	byChild := make(map[int]model.BirthRecord, len(births))
	for _, b := range births {
		byChild[b.ChildID] = b
	}
	generation := func(id int) int {
		n := 0
		for {
			b, ok := byChild[id]
			if !ok {
				return n
			}
			n++
			id = b.ParentID
		}
	}
	item := func(b model.BirthRecord) LineageItem {
		genome := b.Genome.Clone()
		return LineageItem{PoddID: b.ChildID, ParentID: b.ParentID, Tick: b.Tick, Generation: generation(b.ChildID), Genome: &genome}
	}

	var out []LineageItem
	if req.PoddID == 0 {
		out = make([]LineageItem, 0, len(births))
		for _, b := range births {
			out = append(out, item(b))
		}
	} else {
		id := req.PoddID
		for {
			b, ok := byChild[id]
			if !ok {
				break
			}
			out = append(out, item(b))
			id = b.ParentID
		}
		root := LineageItem{PoddID: id}
		record, ok, err := c.store.GetGenome(ctx, runID, id)
		if err != nil {
			return nil, err
		}
		if ok {
			root.Genome = &record.Genome
		}
		if len(out) == 0 && !ok {
			return nil, fmt.Errorf("podd %d not found in run %s", req.PoddID, runID)
		}
		out = append(out, root)
	}

	if req.Limit > 0 && len(out) > req.Limit {
		out = out[:req.Limit]
	}
	return out, nil
}

// Deaths returns the death records of a run in tick order, optionally
// restricted to one cause.
func (c *Client) Deaths(ctx context.Context, req DeathsRequest) ([]model.DeathRecord, error) {
	if req.Limit < 0 {
		return nil, errors.New("limit must be >= 0")
	}
	runID, err := c.resolveRun(ctx, req.RunRef)
	if err != nil {
		return nil, err
	}

	known, err := c.knownRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	var deaths []model.DeathRecord
	if known {
		deaths, err = c.store.GetDeaths(ctx, runID)
	} else {
		var ok bool
		deaths, ok, err = stats.ReadDeaths(c.runsDir, runID)
		if err == nil && !ok {
			err = fmt.Errorf("%w: %s", ErrRunNotFound, runID)
		}
	}
	if err != nil {
		return nil, err
	}

	out := make([]model.DeathRecord, 0, len(deaths))
	for _, d := range deaths {
		if req.Cause != "" && d.Cause != req.Cause {
			continue
		}
		out = append(out, d)
	}
	if req.Limit > 0 && len(out) > req.Limit {
		out = out[:req.Limit]
	}
	return out, nil
}

// Stats returns the run summary together with its per-tick statistics.
func (c *Client) Stats(ctx context.Context, req StatsRequest) (StatsReport, error) {
	if req.Every < 0 {
		return StatsReport{}, errors.New("every must be >= 0")
	}
	runID, err := c.resolveRun(ctx, req.RunRef)
	if err != nil {
		return StatsReport{}, err
	}

	known, err := c.knownRun(ctx, runID)
	if err != nil {
		return StatsReport{}, err
	}
	var ticks []model.TickStats
	var summary stats.RunSummary
	if known {
		ticks, err = c.store.GetTickStats(ctx, runID)
		if err != nil {
			return StatsReport{}, err
		}
		summary = stats.SummarizeRun(ticks)
	} else {
		var ok bool
		ticks, ok, err = stats.ReadTickStats(c.runsDir, runID)
		if err != nil {
			return StatsReport{}, err
		}
		if !ok {
			return StatsReport{}, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
		}
		// Cause counts are only kept in the summary artifact.
		saved, ok, err := stats.ReadRunSummary(c.runsDir, runID)
		if err != nil {
			return StatsReport{}, err
		}
		if ok {
			summary = saved
		} else {
			summary = stats.SummarizeRun(ticks)
		}
	}

	if req.Every > 1 {
		sampled := make([]model.TickStats, 0, len(ticks)/req.Every+1)
		for i, t := range ticks {
			if i%req.Every == 0 || i == len(ticks)-1 {
				sampled = append(sampled, t)
			}
		}
		ticks = sampled
	}
	return StatsReport{RunID: runID, Summary: summary, Ticks: ticks}, nil
}

func (c *Client) Export(ctx context.Context, req ExportRequest) (ExportSummary, error) {
	if req.OutDir == "" {
		req.OutDir = c.exportsDir
	}
	runID, err := c.resolveRun(ctx, req.RunRef)
	if err != nil {
		return ExportSummary{}, err
	}

	exportedDir, err := stats.ExportRunArtifacts(c.runsDir, runID, req.OutDir)
	if err != nil {
		return ExportSummary{}, err
	}
	return ExportSummary{RunID: runID, Directory: filepath.Clean(exportedDir)}, nil
}

func (c *Client) resolveRun(ctx context.Context, ref RunRef) (string, error) {
	if ref.RunID != "" && ref.Latest {
		return "", errors.New("use either run id or latest")
	}
	if ref.RunID == "" && !ref.Latest {
		return "", errors.New("run id or latest is required")
	}
	if _, err := c.ensurePolis(ctx); err != nil {
		return "", err
	}
	if ref.RunID != "" {
		return ref.RunID, nil
	}

	runs, err := c.Runs(ctx, RunsRequest{Limit: 1})
	if err != nil {
		return "", err
	}
	if len(runs) == 0 {
		return "", fmt.Errorf("%w: no runs recorded", ErrRunNotFound)
	}
	return runs[0].RunID, nil
}

// births reads the births of a run from the store, or from its artifacts
// when the store does not know the run. The memory store forgets runs when
// the process exits; artifacts do not.
func (c *Client) births(ctx context.Context, runID string) ([]model.BirthRecord, error) {
	known, err := c.knownRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if known {
		return c.store.GetBirths(ctx, runID)
	}
	births, ok, err := stats.ReadBirths(c.runsDir, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return births, nil
}

func (c *Client) knownRun(ctx context.Context, runID string) (bool, error) {
	_, ok, err := c.store.GetRun(ctx, runID)
	return ok, err
}

func (c *Client) ensurePolis(ctx context.Context) (*platform.Polis, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.polis != nil {
		return c.polis, nil
	}
	p := platform.NewPolis(platform.Config{Store: c.store, Logger: c.logger})
	if err := p.Init(ctx); err != nil {
		return nil, err
	}
	c.polis = p
	return p, nil
}
