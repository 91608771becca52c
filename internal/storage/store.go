package storage

import (
	"context"

	"podds/internal/model"
)

// Store persists the records of simulation runs. Append operations take the
// run id explicitly and overwrite the RunID field of every record.
type Store interface {
	Init(ctx context.Context) error
	SaveRun(ctx context.Context, run model.RunRecord) error
	GetRun(ctx context.Context, id string) (model.RunRecord, bool, error)
	// ListRuns returns every run, newest first.
	ListRuns(ctx context.Context) ([]model.RunRecord, error)
	SaveGenome(ctx context.Context, record model.GenomeRecord) error
	GetGenome(ctx context.Context, runID string, poddID int) (model.GenomeRecord, bool, error)
	AppendBirths(ctx context.Context, runID string, births []model.BirthRecord) error
	GetBirths(ctx context.Context, runID string) ([]model.BirthRecord, error)
	AppendDeaths(ctx context.Context, runID string, deaths []model.DeathRecord) error
	GetDeaths(ctx context.Context, runID string) ([]model.DeathRecord, error)
	AppendTickStats(ctx context.Context, runID string, stats []model.TickStats) error
	GetTickStats(ctx context.Context, runID string) ([]model.TickStats, error)
}
