package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"

	"podds/internal/config"
	"podds/internal/world"
	"podds/pkg/podds"
)

const exportsDir = "exports"

var stdout io.Writer = os.Stdout

func main() {
	if err := run(context.Background(), os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return usageError("missing command")
	}

	switch args[0] {
	case "init":
		return runInit(ctx, args[1:])
	case "run":
		return runRun(ctx, args[1:])
	case "runs":
		return runRuns(ctx, args[1:])
	case "lineage":
		return runLineage(ctx, args[1:])
	case "deaths":
		return runDeaths(ctx, args[1:])
	case "stats":
		return runStats(ctx, args[1:])
	case "export":
		return runExport(ctx, args[1:])
	default:
		return usageError(fmt.Sprintf("unknown command: %s", args[0]))
	}
}

func runInit(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	configPath := fs.String("config", "podds.yaml", "settings file to write (.yaml or .json)")
	hz := fs.Float64("hz", 30, "ticks per second the default rates are scaled for")
	force := fs.Bool("force", false, "overwrite an existing settings file")
	store := addStoreFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *hz <= 0 {
		return errors.New("hz must be > 0")
	}

	if _, err := os.Stat(*configPath); err == nil && !*force {
		return fmt.Errorf("%s already exists; use --force to overwrite", *configPath)
	} else if err != nil && !os.IsNotExist(err) {
		return err
	}
	settings := config.DefaultForHz(*hz)
	settings.Run.Store = *store.kind
	settings.Run.DBPath = *store.dbPath
	settings.Run.OutDir = *store.runsDir
	if err := config.Write(*configPath, settings); err != nil {
		return err
	}

	client, err := store.open(nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()
	if err := client.Init(ctx); err != nil {
		return err
	}

	fmt.Fprintf(stdout, "initialized config=%s store=%s\n", *configPath, *store.kind)
	return nil
}

func runRun(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	configPath := fs.String("config", "", "optional settings file (.yaml or .json)")
	runID := fs.String("run-id", "", "explicit run id (default: random uuid)")
	ticks := fs.Int("ticks", config.DefaultTicks, "ticks to simulate (0 runs until extinction or interrupt; the store grows with every tick)")
	hz := fs.Float64("hz", 30, "ticks per second; scales the default rates")
	seed := fs.Int64("seed", 0, "rng seed (0 picks one from the clock)")
	initPodds := fs.Int("init-podds", 1, "initial population size")
	logLevel := fs.String("log-level", "info", "log level: debug|info|warn|error")
	logFormat := fs.String("log-format", "text", "log format: text|json")
	progress := fs.Int("progress", 0, "log population every N ticks (0 disables)")
	jsonOut := fs.Bool("json", false, "emit run summary as JSON")
	startPaused := fs.Bool("start-paused", false, "hold the run before its first tick (requires --auto-continue-ms)")
	autoContinueMS := fs.Int("auto-continue-ms", 0, "continue a paused run after N milliseconds (0 disables)")
	store := addStoreFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *autoContinueMS < 0 {
		return errors.New("auto-continue-ms must be >= 0")
	}
	if *startPaused && *autoContinueMS == 0 {
		return errors.New("--start-paused requires --auto-continue-ms; nothing else can continue the run")
	}
	setFlags := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) {
		setFlags[f.Name] = true
	})

	settings, err := loadSettings(*configPath, *hz, setFlags["hz"])
	if err != nil {
		return err
	}
	applyRunFlags(&settings, setFlags, runFlags{
		ticks:     *ticks,
		seed:      *seed,
		initPodds: *initPodds,
		logLevel:  *logLevel,
		logFormat: *logFormat,
	})
	store.applyTo(&settings, setFlags, *configPath != "")
	if err := settings.Validate(); err != nil {
		return err
	}

	logger, err := newLogger(settings)
	if err != nil {
		return err
	}
	client, err := openClient(settings.Run.Store, settings.Run.DBPath, settings.Run.OutDir, logger)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	req := podds.RunRequest{
		Settings:          settings,
		RunID:             *runID,
		StartPaused:       *startPaused,
		AutoContinueAfter: time.Duration(*autoContinueMS) * time.Millisecond,
	}
	if *progress > 0 {
		every := *progress
		req.OnTick = func(r world.TickReport) {
			if r.Tick%every == 0 {
				logger.Info("progress",
					"tick", r.Tick,
					"podds", r.Stats.Population,
					"food", r.Stats.Food,
					"mean_energy", r.Stats.MeanEnergy,
				)
			}
		}
	}
	summary, err := client.Run(ctx, req)
	if err != nil {
		return err
	}

	if *jsonOut {
		return writeJSON(summary)
	}
	fmt.Fprintf(stdout, "run_id=%s seed=%d stop=%s ticks=%s sim_time=%s final_podds=%s peak_podds=%s births=%s failed_births=%s deaths=%s elapsed=%s artifacts=%s\n",
		summary.RunID,
		summary.Seed,
		summary.StopReason,
		humanize.Comma(int64(summary.Ticks)),
		(time.Duration(summary.Duration * float64(time.Second))).Round(time.Millisecond),
		humanize.Comma(int64(summary.FinalPodds)),
		humanize.Comma(int64(summary.PeakPodds)),
		humanize.Comma(int64(summary.TotalBirths)),
		humanize.Comma(int64(summary.FailedBirths)),
		humanize.Comma(int64(summary.TotalDeaths)),
		summary.Elapsed.Round(time.Millisecond),
		summary.ArtifactsDir,
	)
	return nil
}

func runRuns(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("runs", flag.ContinueOnError)
	limit := fs.Int("limit", 20, "max runs to list")
	jsonOut := fs.Bool("json", false, "emit runs list as JSON")
	store := addStoreFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *limit <= 0 {
		return errors.New("limit must be > 0")
	}

	client, err := store.open(nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	runs, err := client.Runs(ctx, podds.RunsRequest{Limit: *limit})
	if err != nil {
		return err
	}
	if *jsonOut {
		return writeJSON(runs)
	}
	if len(runs) == 0 {
		fmt.Fprintln(stdout, "no runs found")
		return nil
	}

	for _, r := range runs {
		fmt.Fprintf(stdout, "run_id=%s created=%q seed=%d hz=%g ticks=%s init_podds=%d final_podds=%s births=%s deaths=%s\n",
			r.RunID,
			createdDisplay(r.CreatedAtUTC),
			r.Seed,
			r.Hz,
			humanize.Comma(int64(r.Ticks)),
			r.InitPodds,
			humanize.Comma(int64(r.FinalPodds)),
			humanize.Comma(int64(r.TotalBirths)),
			humanize.Comma(int64(r.TotalDeaths)),
		)
	}
	return nil
}

func runLineage(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("lineage", flag.ContinueOnError)
	ref := addRunRefFlags(fs)
	poddID := fs.Int("podd", 0, "trace the ancestry of this podd (0 lists every birth)")
	limit := fs.Int("limit", 50, "max lineage rows to print (<=0 for all)")
	jsonOut := fs.Bool("json", false, "emit lineage rows as JSON")
	store := addStoreFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	runRef, err := ref.resolve("lineage")
	if err != nil {
		return err
	}
	if *limit < 0 {
		*limit = 0
	}

	client, err := store.open(nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	lineage, err := client.Lineage(ctx, podds.LineageRequest{RunRef: runRef, PoddID: *poddID, Limit: *limit})
	if err != nil {
		return err
	}
	if *jsonOut {
		return writeJSON(lineage)
	}
	if len(lineage) == 0 {
		fmt.Fprintln(stdout, "no lineage records")
		return nil
	}

	for _, rec := range lineage {
		connections := "n/a"
		if rec.Genome != nil {
			connections = fmt.Sprint(len(rec.Genome.Brain))
		}
		fmt.Fprintf(stdout, "gen=%d podd_id=%d parent_id=%d born_tick=%d connections=%s\n",
			rec.Generation,
			rec.PoddID,
			rec.ParentID,
			rec.Tick,
			connections,
		)
	}
	return nil
}

func runDeaths(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("deaths", flag.ContinueOnError)
	ref := addRunRefFlags(fs)
	cause := fs.String("cause", "", "only deaths of this cause: no_energy|brain_malfunction|age")
	limit := fs.Int("limit", 50, "max deaths to print (<=0 for all)")
	jsonOut := fs.Bool("json", false, "emit deaths as JSON")
	store := addStoreFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	runRef, err := ref.resolve("deaths")
	if err != nil {
		return err
	}
	if *limit < 0 {
		*limit = 0
	}

	client, err := store.open(nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	deaths, err := client.Deaths(ctx, podds.DeathsRequest{RunRef: runRef, Cause: *cause, Limit: *limit})
	if err != nil {
		return err
	}
	if *jsonOut {
		return writeJSON(deaths)
	}
	if len(deaths) == 0 {
		fmt.Fprintln(stdout, "no deaths recorded")
		return nil
	}

	for _, d := range deaths {
		fmt.Fprintf(stdout, "tick=%d podd_id=%d parent_id=%d cause=%s age=%.2f energy=%.3f children=%d\n",
			d.Tick,
			d.PoddID,
			d.ParentID,
			d.Cause,
			d.Age,
			d.Energy,
			d.Children,
		)
	}
	return nil
}

func runStats(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("stats", flag.ContinueOnError)
	ref := addRunRefFlags(fs)
	every := fs.Int("every", 0, "print one tick in N (0 prints only the summary)")
	jsonOut := fs.Bool("json", false, "emit stats as JSON")
	store := addStoreFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	runRef, err := ref.resolve("stats")
	if err != nil {
		return err
	}
	if *every < 0 {
		return errors.New("every must be >= 0")
	}

	client, err := store.open(nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	report, err := client.Stats(ctx, podds.StatsRequest{RunRef: runRef, Every: *every})
	if err != nil {
		return err
	}
	if *jsonOut {
		if *every == 0 {
			report.Ticks = nil
		}
		return writeJSON(report)
	}

	s := report.Summary
	fmt.Fprintf(stdout, "run_id=%s ticks=%s sim_time=%.1fs final_podds=%s peak_podds=%s peak_tick=%d mean_podds=%.2f std_podds=%.2f births=%s failed_births=%s deaths=%s max_age=%.1fs extinct=%t\n",
		report.RunID,
		humanize.Comma(int64(s.Ticks)),
		s.Duration,
		humanize.Comma(int64(s.FinalPopulation)),
		humanize.Comma(int64(s.PeakPopulation)),
		s.PeakTick,
		s.MeanPopulation,
		s.StdPopulation,
		humanize.Comma(int64(s.TotalBirths)),
		humanize.Comma(int64(s.FailedBirths)),
		humanize.Comma(int64(s.TotalDeaths)),
		s.MaxAge,
		s.Extinct,
	)
	for _, cause := range sortedCauses(s.DeathsByCause) {
		fmt.Fprintf(stdout, "cause=%s deaths=%s\n", cause, humanize.Comma(int64(s.DeathsByCause[cause])))
	}
	if *every == 0 {
		return nil
	}
	for _, t := range report.Ticks {
		fmt.Fprintf(stdout, "tick=%d time=%.2f podds=%d food=%d births=%d deaths=%d mean_energy=%.3f mean_age=%.2f mean_complexity=%.3f\n",
			t.Tick,
			t.Time,
			t.Population,
			t.Food,
			t.Births,
			t.Deaths,
			t.MeanEnergy,
			t.MeanAge,
			t.MeanComplexity,
		)
	}
	return nil
}

func runExport(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	ref := addRunRefFlags(fs)
	outDir := fs.String("out", exportsDir, "export output directory")
	store := addStoreFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	runRef, err := ref.resolve("export")
	if err != nil {
		return err
	}

	client, err := store.open(nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	exported, err := client.Export(ctx, podds.ExportRequest{RunRef: runRef, OutDir: *outDir})
	if err != nil {
		return err
	}

	fmt.Fprintf(stdout, "exported run_id=%s to=%s\n", exported.RunID, exported.Directory)
	return nil
}

func writeJSON(value any) error {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(value)
}

func createdDisplay(createdAtUTC string) string {
	created, err := time.Parse(time.RFC3339Nano, createdAtUTC)
	if err != nil {
		return createdAtUTC
	}
	return humanize.Time(created)
}

func usageError(msg string) error {
	return fmt.Errorf("%s\nusage: poddsctl <init|run|runs|lineage|deaths|stats|export> [flags]", msg)
}
