package podd

// MortalityTable holds the per-tick death probability for each whole second
// of age. Ages past the horizon use the last bucket.
type MortalityTable struct {
	rates []float64
}

func NewMortalityTable(fixedRate, deteriorationRate float64, horizon int) MortalityTable {
	if horizon < 1 {
		horizon = 1
	}
	rates := make([]float64, horizon)
	for b := range rates {
		rates[b] = clampProbability(fixedRate + float64(b)*deteriorationRate)
	}
	return MortalityTable{rates: rates}
}

func (m MortalityTable) Rate(age float64) float64 {
	if len(m.rates) == 0 {
		return 0
	}
	b := int(age)
	if b < 0 {
		b = 0
	}
	if b >= len(m.rates) {
		b = len(m.rates) - 1
	}
	return m.rates[b]
}

func (m MortalityTable) Horizon() int {
	return len(m.rates)
}

func clampProbability(p float64) float64 {
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}
