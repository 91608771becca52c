package stats

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"podds/internal/model"
)

const (
	runIndexFile  = "run_index.json"
	configFile    = "config.json"
	summaryFile   = "summary.json"
	survivorsFile = "survivors.json"
	ticksFile     = "tick_stats.csv"
	birthsFile    = "births.csv"
	deathsFile    = "deaths.csv"
)

// RunConfig records how a run was started. Settings holds the full
// simulation settings as they were resolved for the run.
type RunConfig struct {
	RunID               string          `json:"run_id"`
	Seed                int64           `json:"seed"`
	Hz                  float64         `json:"hz"`
	Ticks               int             `json:"ticks"`
	InitPodds           int             `json:"init_podds"`
	Store               string          `json:"store"`
	StartPaused         bool            `json:"start_paused"`
	AutoContinueAfterMS int64           `json:"auto_continue_after_ms"`
	Settings            json.RawMessage `json:"settings,omitempty"`
}

// Survivor is a podd alive when the run ended.
type Survivor struct {
	ID       int          `json:"id"`
	ParentID int          `json:"parent_id"`
	Energy   float64      `json:"energy"`
	Age      float64      `json:"age"`
	Genome   model.Genome `json:"genome"`
}

type RunArtifacts struct {
	Config    RunConfig
	Summary   RunSummary
	Ticks     []model.TickStats
	Births    []model.BirthRecord
	Deaths    []model.DeathRecord
	Survivors []Survivor
}

type RunIndexEntry struct {
	RunID           string  `json:"run_id"`
	Seed            int64   `json:"seed"`
	Hz              float64 `json:"hz"`
	Ticks           int     `json:"ticks"`
	InitPodds       int     `json:"init_podds"`
	FinalPopulation int     `json:"final_population"`
	TotalBirths     int     `json:"total_births"`
	TotalDeaths     int     `json:"total_deaths"`
	CreatedAtUTC    string  `json:"created_at_utc"`
}

func WriteRunArtifacts(baseDir string, artifacts RunArtifacts) (string, error) {
	if artifacts.Config.RunID == "" {
		return "", fmt.Errorf("run id is required")
	}

	runDir := filepath.Join(baseDir, artifacts.Config.RunID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", err
	}

	if err := writeJSON(filepath.Join(runDir, configFile), artifacts.Config); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, summaryFile), artifacts.Summary); err != nil {
		return "", err
	}
	survivors := artifacts.Survivors
	if survivors == nil {
		survivors = []Survivor{}
	}
	if err := writeJSON(filepath.Join(runDir, survivorsFile), survivors); err != nil {
		return "", err
	}
	if err := WriteTickStats(filepath.Join(runDir, ticksFile), artifacts.Ticks); err != nil {
		return "", err
	}
	if err := WriteBirths(filepath.Join(runDir, birthsFile), artifacts.Births); err != nil {
		return "", err
	}
	if err := WriteDeaths(filepath.Join(runDir, deathsFile), artifacts.Deaths); err != nil {
		return "", err
	}

	return runDir, nil
}

func AppendRunIndex(baseDir string, entry RunIndexEntry) error {
	if entry.RunID == "" {
		return fmt.Errorf("run id is required")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return err
	}

	index, err := ListRunIndex(baseDir)
	if err != nil {
		return err
	}

	for i := range index {
		if index[i].RunID == entry.RunID {
			index[i] = entry
			return writeJSON(filepath.Join(baseDir, runIndexFile), index)
		}
	}

	index = append(index, entry)
	return writeJSON(filepath.Join(baseDir, runIndexFile), index)
}

// ListRunIndex returns the index newest first.
func ListRunIndex(baseDir string) ([]RunIndexEntry, error) {
	data, err := os.ReadFile(filepath.Join(baseDir, runIndexFile))
	if err != nil {
		if os.IsNotExist(err) {
			return []RunIndexEntry{}, nil
		}
		return nil, err
	}

	var entries []RunIndexEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}

	type indexedEntry struct {
		entry RunIndexEntry
		idx   int
	}
	indexed := make([]indexedEntry, len(entries))
	for i := range entries {
		indexed[i] = indexedEntry{entry: entries[i], idx: i}
	}
	sort.Slice(indexed, func(i, j int) bool {
		if indexed[i].entry.CreatedAtUTC == indexed[j].entry.CreatedAtUTC {
			// Prefer later appended entries for equal timestamps.
			return indexed[i].idx > indexed[j].idx
		}
		return indexed[i].entry.CreatedAtUTC > indexed[j].entry.CreatedAtUTC
	})

	sorted := make([]RunIndexEntry, 0, len(indexed))
	for _, item := range indexed {
		sorted = append(sorted, item.entry)
	}
	return sorted, nil
}

// ExportRunArtifacts copies a run directory to outDir/<runID>.
func ExportRunArtifacts(baseDir, runID, outDir string) (string, error) {
	if runID == "" {
		return "", fmt.Errorf("run id is required")
	}

	src := filepath.Join(baseDir, runID)
	if _, err := os.Stat(src); err != nil {
		return "", err
	}

	dst := filepath.Join(outDir, runID)
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return "", err
	}

	for _, file := range []string{configFile, summaryFile, ticksFile, birthsFile, deathsFile} {
		if err := copyFile(filepath.Join(src, file), filepath.Join(dst, file)); err != nil {
			return "", err
		}
	}
	survivorsPath := filepath.Join(src, survivorsFile)
	if _, err := os.Stat(survivorsPath); err == nil {
		if err := copyFile(survivorsPath, filepath.Join(dst, survivorsFile)); err != nil {
			return "", err
		}
	} else if !os.IsNotExist(err) {
		return "", err
	}

	return dst, nil
}

func ReadRunConfig(baseDir, runID string) (RunConfig, bool, error) {
	var cfg RunConfig
	ok, err := readJSON(filepath.Join(baseDir, runID, configFile), &cfg)
	return cfg, ok, err
}

func ReadRunSummary(baseDir, runID string) (RunSummary, bool, error) {
	var summary RunSummary
	ok, err := readJSON(filepath.Join(baseDir, runID, summaryFile), &summary)
	return summary, ok, err
}

func ReadSurvivors(baseDir, runID string) ([]Survivor, bool, error) {
	var survivors []Survivor
	ok, err := readJSON(filepath.Join(baseDir, runID, survivorsFile), &survivors)
	return survivors, ok, err
}

var tickStatsHeader = []string{
	"tick", "time", "population", "food", "births", "failed_births", "deaths",
	"mean_energy", "mean_age", "max_age", "mean_size", "mean_strength", "mean_complexity",
}

func WriteTickStats(path string, ticks []model.TickStats) error {
	rows := make([][]string, 0, len(ticks))
	for _, t := range ticks {
		rows = append(rows, []string{
			strconv.Itoa(t.Tick),
			formatFloat(t.Time),
			strconv.Itoa(t.Population),
			strconv.Itoa(t.Food),
			strconv.Itoa(t.Births),
			strconv.Itoa(t.FailedBirths),
			strconv.Itoa(t.Deaths),
			formatFloat(t.MeanEnergy),
			formatFloat(t.MeanAge),
			formatFloat(t.MaxAge),
			formatFloat(t.MeanSize),
			formatFloat(t.MeanStrength),
			formatFloat(t.MeanComplexity),
		})
	}
	return writeCSV(path, tickStatsHeader, rows)
}

// ReadTickStats reads a tick_stats.csv file back. Per-cause death counts are
// not part of the CSV form.
func ReadTickStats(baseDir, runID string) ([]model.TickStats, bool, error) {
	rows, ok, err := readCSV(filepath.Join(baseDir, runID, ticksFile), len(tickStatsHeader))
	if err != nil || !ok {
		return nil, ok, err
	}

	out := make([]model.TickStats, 0, len(rows))
	for line, row := range rows {
		var p rowParser
		t := model.TickStats{
			RunID:          runID,
			Tick:           p.atoi(row[0]),
			Time:           p.atof(row[1]),
			Population:     p.atoi(row[2]),
			Food:           p.atoi(row[3]),
			Births:         p.atoi(row[4]),
			FailedBirths:   p.atoi(row[5]),
			Deaths:         p.atoi(row[6]),
			MeanEnergy:     p.atof(row[7]),
			MeanAge:        p.atof(row[8]),
			MaxAge:         p.atof(row[9]),
			MeanSize:       p.atof(row[10]),
			MeanStrength:   p.atof(row[11]),
			MeanComplexity: p.atof(row[12]),
		}
		if p.err != nil {
			return nil, false, fmt.Errorf("%s row %d: %w", ticksFile, line+2, p.err)
		}
		out = append(out, t)
	}
	return out, true, nil
}

var birthsHeader = []string{"tick", "parent_id", "child_id", "parent_energy", "genome"}

// WriteBirths writes one row per birth; the genome column holds the child
// genome in its flat JSON form.
func WriteBirths(path string, births []model.BirthRecord) error {
	rows := make([][]string, 0, len(births))
	for _, b := range births {
		genome, err := json.Marshal(b.Genome)
		if err != nil {
			return fmt.Errorf("birth %d genome: %w", b.ChildID, err)
		}
		rows = append(rows, []string{
			strconv.Itoa(b.Tick),
			strconv.Itoa(b.ParentID),
			strconv.Itoa(b.ChildID),
			formatFloat(b.Energy),
			string(genome),
		})
	}
	return writeCSV(path, birthsHeader, rows)
}

func ReadBirths(baseDir, runID string) ([]model.BirthRecord, bool, error) {
	rows, ok, err := readCSV(filepath.Join(baseDir, runID, birthsFile), len(birthsHeader))
	if err != nil || !ok {
		return nil, ok, err
	}

	out := make([]model.BirthRecord, 0, len(rows))
	for line, row := range rows {
		var p rowParser
		b := model.BirthRecord{
			RunID:    runID,
			Tick:     p.atoi(row[0]),
			ParentID: p.atoi(row[1]),
			ChildID:  p.atoi(row[2]),
			Energy:   p.atof(row[3]),
		}
		if p.err == nil {
			p.err = json.Unmarshal([]byte(row[4]), &b.Genome)
		}
		if p.err != nil {
			return nil, false, fmt.Errorf("%s row %d: %w", birthsFile, line+2, p.err)
		}
		out = append(out, b)
	}
	return out, true, nil
}

var deathsHeader = []string{"tick", "podd_id", "parent_id", "cause", "age", "energy", "children"}

func WriteDeaths(path string, deaths []model.DeathRecord) error {
	rows := make([][]string, 0, len(deaths))
	for _, d := range deaths {
		rows = append(rows, []string{
			strconv.Itoa(d.Tick),
			strconv.Itoa(d.PoddID),
			strconv.Itoa(d.ParentID),
			d.Cause,
			formatFloat(d.Age),
			formatFloat(d.Energy),
			strconv.Itoa(d.Children),
		})
	}
	return writeCSV(path, deathsHeader, rows)
}

func ReadDeaths(baseDir, runID string) ([]model.DeathRecord, bool, error) {
	rows, ok, err := readCSV(filepath.Join(baseDir, runID, deathsFile), len(deathsHeader))
	if err != nil || !ok {
		return nil, ok, err
	}

	out := make([]model.DeathRecord, 0, len(rows))
	for line, row := range rows {
		var p rowParser
		d := model.DeathRecord{
			RunID:    runID,
			Tick:     p.atoi(row[0]),
			PoddID:   p.atoi(row[1]),
			ParentID: p.atoi(row[2]),
			Cause:    row[3],
			Age:      p.atof(row[4]),
			Energy:   p.atof(row[5]),
			Children: p.atoi(row[6]),
		}
		if p.err != nil {
			return nil, false, fmt.Errorf("%s row %d: %w", deathsFile, line+2, p.err)
		}
		out = append(out, d)
	}
	return out, true, nil
}

// rowParser keeps the first conversion error of a CSV row.
type rowParser struct {
	err error
}

func (p *rowParser) atoi(s string) int {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil && p.err == nil {
		p.err = err
	}
	return v
}

func (p *rowParser) atof(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil && p.err == nil {
		p.err = err
	}
	return v
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func writeCSV(path string, header []string, rows [][]string) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write(header); err != nil {
		return err
	}
	if err := writer.WriteAll(rows); err != nil {
		return err
	}
	return writer.Error()
}

func readCSV(path string, columns int) ([][]string, bool, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = columns
	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return [][]string{}, true, nil
		}
		return nil, false, err
	}
	if len(header) != columns {
		return nil, false, fmt.Errorf("%s: header has %d columns, want %d", filepath.Base(path), len(header), columns)
	}
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, false, err
	}
	return rows, true, nil
}

func readJSON(path string, value any) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, value); err != nil {
		return false, err
	}
	return true, nil
}

func writeJSON(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o644)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
