package main

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"sort"

	"podds/internal/config"
	"podds/internal/logging"
	"podds/internal/storage"
	"podds/pkg/podds"
)

type storeFlags struct {
	kind    *string
	dbPath  *string
	runsDir *string
}

func addStoreFlags(fs *flag.FlagSet) storeFlags {
	return storeFlags{
		kind:    fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite"),
		dbPath:  fs.String("db-path", config.DefaultDBPath, "sqlite database path"),
		runsDir: fs.String("runs-dir", config.DefaultOutDir, "directory holding run artifacts and the run index"),
	}
}

// applyTo copies the store flags into settings. Values read from a settings
// file win over flags left at their defaults.
func (f storeFlags) applyTo(settings *config.Settings, setFlags map[string]bool, fromFile bool) {
	if !fromFile || setFlags["store"] {
		settings.Run.Store = *f.kind
	}
	if !fromFile || setFlags["db-path"] {
		settings.Run.DBPath = *f.dbPath
	}
	if !fromFile || setFlags["runs-dir"] {
		settings.Run.OutDir = *f.runsDir
	}
}

func (f storeFlags) open(logger *slog.Logger) (*podds.Client, error) {
	return openClient(*f.kind, *f.dbPath, *f.runsDir, logger)
}

func openClient(kind, dbPath, runsDir string, logger *slog.Logger) (*podds.Client, error) {
	return podds.New(podds.Options{
		StoreKind:  kind,
		DBPath:     dbPath,
		RunsDir:    runsDir,
		ExportsDir: exportsDir,
		Logger:     logger,
	})
}

type runRefFlags struct {
	runID  *string
	latest *bool
}

func addRunRefFlags(fs *flag.FlagSet) runRefFlags {
	return runRefFlags{
		runID:  fs.String("run-id", "", "run id"),
		latest: fs.Bool("latest", false, "use the most recent run"),
	}
}

func (f runRefFlags) resolve(command string) (podds.RunRef, error) {
	if *f.runID != "" && *f.latest {
		return podds.RunRef{}, errors.New("use either --run-id or --latest, not both")
	}
	if *f.runID == "" && !*f.latest {
		return podds.RunRef{}, fmt.Errorf("%s requires --run-id or --latest", command)
	}
	return podds.RunRef{RunID: *f.runID, Latest: *f.latest}, nil
}

// loadSettings reads the settings file, or builds defaults scaled for hz when
// there is none.
func loadSettings(path string, hz float64, hzSet bool) (config.Settings, error) {
	if path == "" {
		if hz <= 0 {
			return config.Settings{}, errors.New("hz must be > 0")
		}
		return config.DefaultForHz(hz), nil
	}
	if hzSet {
		return config.Settings{}, errors.New("--hz cannot be combined with --config; set run.hz in the settings file")
	}
	return config.Load(path)
}

type runFlags struct {
	ticks     int
	seed      int64
	initPodds int
	logLevel  string
	logFormat string
}

func applyRunFlags(settings *config.Settings, setFlags map[string]bool, flags runFlags) {
	if setFlags["ticks"] {
		settings.Run.Ticks = flags.ticks
	}
	if setFlags["seed"] {
		settings.Run.Seed = flags.seed
	}
	if setFlags["init-podds"] {
		settings.World.InitPodds = flags.initPodds
	}
	if setFlags["log-level"] {
		settings.Log.Level = flags.logLevel
	}
	if setFlags["log-format"] {
		settings.Log.Format = flags.logFormat
	}
}

func newLogger(settings config.Settings) (*slog.Logger, error) {
	cfg := settings.Log
	cfg.Output = os.Stderr
	return logging.New(cfg)
}

func sortedCauses(counts map[string]int) []string {
	causes := make([]string, 0, len(counts))
	for cause := range counts {
		causes = append(causes, cause)
	}
	sort.Strings(causes)
	return causes
}
