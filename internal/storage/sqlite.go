//go:build sqlite

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"podds/internal/model"

	_ "modernc.org/sqlite"
)

type SQLiteStore struct {
	path string

	mu sync.RWMutex
	db *sql.DB
}

func NewSQLiteStore(path string) *SQLiteStore {
	return &SQLiteStore{path: path}
}

func (s *SQLiteStore) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path == "" {
		return errors.New("sqlite path is required")
	}
	if s.db != nil {
		return nil
	}

	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return err
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return err
	}

	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return err
	}

	s.db = db
	return nil
}

func (s *SQLiteStore) SaveRun(ctx context.Context, run model.RunRecord) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}
	if run.ID == "" {
		return errors.New("run id is required")
	}

	payload, err := EncodeRun(run)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO runs (id, created_at, payload)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			created_at = excluded.created_at,
			payload = excluded.payload
	`, run.ID, run.CreatedAtUTC, payload)
	return err
}

func (s *SQLiteStore) GetRun(ctx context.Context, id string) (model.RunRecord, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return model.RunRecord{}, false, err
	}

	var payload []byte
	err = db.QueryRowContext(ctx, `SELECT payload FROM runs WHERE id = ?`, id).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.RunRecord{}, false, nil
		}
		return model.RunRecord{}, false, err
	}

	run, err := DecodeRun(payload)
	if err != nil {
		return model.RunRecord{}, false, fmt.Errorf("decode run %s: %w", id, err)
	}
	return run, true, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context) ([]model.RunRecord, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `SELECT id, payload FROM runs ORDER BY created_at DESC, rowid DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := []model.RunRecord{}
	for rows.Next() {
		var id string
		var payload []byte
		if err := rows.Scan(&id, &payload); err != nil {
			return nil, err
		}
		run, err := DecodeRun(payload)
		if err != nil {
			return nil, fmt.Errorf("decode run %s: %w", id, err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func (s *SQLiteStore) SaveGenome(ctx context.Context, record model.GenomeRecord) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	payload, err := EncodeGenome(record)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO genomes (run_id, podd_id, payload)
		VALUES (?, ?, ?)
		ON CONFLICT(run_id, podd_id) DO UPDATE SET
			payload = excluded.payload
	`, record.RunID, record.PoddID, payload)
	return err
}

func (s *SQLiteStore) GetGenome(ctx context.Context, runID string, poddID int) (model.GenomeRecord, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return model.GenomeRecord{}, false, err
	}

	var payload []byte
	err = db.QueryRowContext(ctx, `SELECT payload FROM genomes WHERE run_id = ? AND podd_id = ?`, runID, poddID).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.GenomeRecord{}, false, nil
		}
		return model.GenomeRecord{}, false, err
	}

	record, err := DecodeGenome(payload)
	if err != nil {
		return model.GenomeRecord{}, false, fmt.Errorf("decode genome %s/%d: %w", runID, poddID, err)
	}
	return record, true, nil
}

func (s *SQLiteStore) AppendBirths(ctx context.Context, runID string, births []model.BirthRecord) error {
	return s.appendRows(ctx, `INSERT INTO births (run_id, tick, child_id, payload) VALUES (?, ?, ?, ?)`, len(births), func(i int) ([]any, error) {
		b := births[i]
		b.RunID = runID
		payload, err := EncodeBirth(b)
		if err != nil {
			return nil, err
		}
		return []any{runID, b.Tick, b.ChildID, payload}, nil
	})
}

func (s *SQLiteStore) GetBirths(ctx context.Context, runID string) ([]model.BirthRecord, error) {
	payloads, err := s.payloads(ctx, `SELECT payload FROM births WHERE run_id = ? ORDER BY tick, child_id`, runID)
	if err != nil {
		return nil, err
	}
	out := make([]model.BirthRecord, 0, len(payloads))
	for _, payload := range payloads {
		birth, err := DecodeBirth(payload)
		if err != nil {
			return nil, fmt.Errorf("decode birth in run %s: %w", runID, err)
		}
		out = append(out, birth)
	}
	return out, nil
}

func (s *SQLiteStore) AppendDeaths(ctx context.Context, runID string, deaths []model.DeathRecord) error {
	return s.appendRows(ctx, `INSERT INTO deaths (run_id, tick, podd_id, cause, payload) VALUES (?, ?, ?, ?, ?)`, len(deaths), func(i int) ([]any, error) {
		d := deaths[i]
		d.RunID = runID
		payload, err := EncodeDeath(d)
		if err != nil {
			return nil, err
		}
		return []any{runID, d.Tick, d.PoddID, d.Cause, payload}, nil
	})
}

func (s *SQLiteStore) GetDeaths(ctx context.Context, runID string) ([]model.DeathRecord, error) {
	payloads, err := s.payloads(ctx, `SELECT payload FROM deaths WHERE run_id = ? ORDER BY tick, podd_id`, runID)
	if err != nil {
		return nil, err
	}
	out := make([]model.DeathRecord, 0, len(payloads))
	for _, payload := range payloads {
		death, err := DecodeDeath(payload)
		if err != nil {
			return nil, fmt.Errorf("decode death in run %s: %w", runID, err)
		}
		out = append(out, death)
	}
	return out, nil
}

func (s *SQLiteStore) AppendTickStats(ctx context.Context, runID string, stats []model.TickStats) error {
	return s.appendRows(ctx, `
		INSERT INTO tick_stats (run_id, tick, payload) VALUES (?, ?, ?)
		ON CONFLICT(run_id, tick) DO UPDATE SET payload = excluded.payload
	`, len(stats), func(i int) ([]any, error) {
		t := stats[i]
		t.RunID = runID
		payload, err := EncodeTickStats(t)
		if err != nil {
			return nil, err
		}
		return []any{runID, t.Tick, payload}, nil
	})
}

func (s *SQLiteStore) GetTickStats(ctx context.Context, runID string) ([]model.TickStats, error) {
	payloads, err := s.payloads(ctx, `SELECT payload FROM tick_stats WHERE run_id = ? ORDER BY tick`, runID)
	if err != nil {
		return nil, err
	}
	out := make([]model.TickStats, 0, len(payloads))
	for _, payload := range payloads {
		stats, err := DecodeTickStats(payload)
		if err != nil {
			return nil, fmt.Errorf("decode tick stats in run %s: %w", runID, err)
		}
		out = append(out, stats)
	}
	return out, nil
}

func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *SQLiteStore) getDB() (*sql.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, errNotInitialized
	}
	return s.db, nil
}

// appendRows inserts n rows in one transaction through a prepared statement.
func (s *SQLiteStore) appendRows(ctx context.Context, query string, n int, args func(i int) ([]any, error)) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}
	if n == 0 {
		return nil
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i := 0; i < n; i++ {
		values, err := args(i)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, values...); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) payloads(ctx context.Context, query, runID string) ([][]byte, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out [][]byte
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		out = append(out, payload)
	}
	return out, rows.Err()
}

func migrate(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			created_at TEXT NOT NULL,
			payload BLOB NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS genomes (
			run_id TEXT NOT NULL,
			podd_id INTEGER NOT NULL,
			payload BLOB NOT NULL,
			PRIMARY KEY (run_id, podd_id)
		);`,
		`CREATE TABLE IF NOT EXISTS births (
			run_id TEXT NOT NULL,
			tick INTEGER NOT NULL,
			child_id INTEGER NOT NULL,
			payload BLOB NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_births_run ON births(run_id, tick);`,
		`CREATE TABLE IF NOT EXISTS deaths (
			run_id TEXT NOT NULL,
			tick INTEGER NOT NULL,
			podd_id INTEGER NOT NULL,
			cause TEXT NOT NULL,
			payload BLOB NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_deaths_run ON deaths(run_id, tick);`,
		`CREATE TABLE IF NOT EXISTS tick_stats (
			run_id TEXT NOT NULL,
			tick INTEGER NOT NULL,
			payload BLOB NOT NULL,
			PRIMARY KEY (run_id, tick)
		);`,
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
