package model

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

// GenomeRecord is a persisted genome owned by one podd of one run.
type GenomeRecord struct {
	VersionedRecord
	RunID  string `json:"run_id"`
	PoddID int    `json:"podd_id"`
	Genome Genome `json:"genome"`
}

type BirthRecord struct {
	VersionedRecord
	RunID    string  `json:"run_id"`
	Tick     int     `json:"tick"`
	ParentID int     `json:"parent_id"`
	ChildID  int     `json:"child_id"`
	Energy   float64 `json:"parent_energy"`
	Genome   Genome  `json:"genome"`
}

type DeathRecord struct {
	VersionedRecord
	RunID    string  `json:"run_id"`
	Tick     int     `json:"tick"`
	PoddID   int     `json:"podd_id"`
	ParentID int     `json:"parent_id"`
	Cause    string  `json:"cause"`
	Age      float64 `json:"age"`
	Energy   float64 `json:"energy"`
	Children int     `json:"children"`
}

// TickStats summarizes the population after one tick was applied.
type TickStats struct {
	VersionedRecord
	RunID          string         `json:"run_id"`
	Tick           int            `json:"tick"`
	Time           float64        `json:"time"`
	Population     int            `json:"population"`
	Food           int            `json:"food"`
	Births         int            `json:"births"`
	FailedBirths   int            `json:"failed_births"`
	Deaths         int            `json:"deaths"`
	DeathsByCause  map[string]int `json:"deaths_by_cause,omitempty"`
	MeanEnergy     float64        `json:"mean_energy"`
	MeanAge        float64        `json:"mean_age"`
	MaxAge         float64        `json:"max_age"`
	MeanSize       float64        `json:"mean_size"`
	MeanStrength   float64        `json:"mean_strength"`
	MeanComplexity float64        `json:"mean_complexity"`
}

type RunRecord struct {
	VersionedRecord
	ID           string  `json:"id"`
	Seed         int64   `json:"seed"`
	Hz           float64 `json:"hz"`
	InitPodds    int     `json:"init_podds"`
	Ticks        int     `json:"ticks"`
	FinalPodds   int     `json:"final_podds"`
	TotalBirths  int     `json:"total_births"`
	TotalDeaths  int     `json:"total_deaths"`
	CreatedAtUTC string  `json:"created_at_utc"`
}
