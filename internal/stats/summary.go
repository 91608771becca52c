package stats

import (
	"math"
	"sort"

	"podds/internal/model"
)

// Sample is the per-podd input of a population summary.
type Sample struct {
	Energy     float64
	Age        float64
	Size       float64
	Strength   float64
	Complexity float64
}

// Summarize fills the population fields of a TickStats. Tick, time, food and
// event counts are left for the caller.
func Summarize(samples []Sample) model.TickStats {
	out := model.TickStats{Population: len(samples)}
	if len(samples) == 0 {
		return out
	}
	for _, s := range samples {
		out.MeanEnergy += s.Energy
		out.MeanAge += s.Age
		out.MeanSize += s.Size
		out.MeanStrength += s.Strength
		out.MeanComplexity += s.Complexity
		out.MaxAge = math.Max(out.MaxAge, s.Age)
	}
	n := float64(len(samples))
	out.MeanEnergy /= n
	out.MeanAge /= n
	out.MeanSize /= n
	out.MeanStrength /= n
	out.MeanComplexity /= n
	return out
}

// RunSummary aggregates a whole run from its per-tick statistics.
type RunSummary struct {
	Ticks           int            `json:"ticks"`
	Duration        float64        `json:"duration"`
	FinalPopulation int            `json:"final_population"`
	PeakPopulation  int            `json:"peak_population"`
	PeakTick        int            `json:"peak_tick"`
	TotalBirths     int            `json:"total_births"`
	FailedBirths    int            `json:"failed_births"`
	TotalDeaths     int            `json:"total_deaths"`
	DeathsByCause   map[string]int `json:"deaths_by_cause"`
	MaxAge          float64        `json:"max_age"`
	MeanPopulation  float64        `json:"mean_population"`
	StdPopulation   float64        `json:"std_population"`
	Extinct         bool           `json:"extinct"`
}

func SummarizeRun(ticks []model.TickStats) RunSummary {
	out := RunSummary{DeathsByCause: map[string]int{}}
	if len(ticks) == 0 {
		return out
	}
	sorted := append([]model.TickStats(nil), ticks...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Tick < sorted[j].Tick })

	pops := make([]float64, 0, len(sorted))
	for _, t := range sorted {
		pops = append(pops, float64(t.Population))
		if t.Population > out.PeakPopulation {
			out.PeakPopulation = t.Population
			out.PeakTick = t.Tick
		}
		out.TotalBirths += t.Births
		out.FailedBirths += t.FailedBirths
		out.TotalDeaths += t.Deaths
		for cause, n := range t.DeathsByCause {
			out.DeathsByCause[cause] += n
		}
		out.MaxAge = math.Max(out.MaxAge, t.MaxAge)
	}
	last := sorted[len(sorted)-1]
	out.Ticks = last.Tick
	out.Duration = last.Time
	out.FinalPopulation = last.Population
	out.Extinct = last.Population == 0
	out.MeanPopulation, out.StdPopulation = meanStd(pops)
	return out
}

func meanStd(values []float64) (float64, float64) {
	if len(values) == 0 {
		return 0, 0
	}
	mean := 0.0
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))
	variance := 0.0
	for _, v := range values {
		d := v - mean
		variance += d * d
	}
	variance /= float64(len(values))
	return mean, math.Sqrt(variance)
}
