package model

import (
	"encoding/json"
	"fmt"
)

// BrainKey is the reserved genome key holding the brain connections.
const BrainKey = "brain"

// Genome holds heritable scalar traits and the brain connection weights.
// A nil Brain means the brain key is absent; an empty one is a brain
// without connections.
type Genome struct {
	Attributes map[string]float64
	Brain      map[string]float64
}

func (g Genome) Clone() Genome {
	out := Genome{}
	if g.Attributes != nil {
		out.Attributes = make(map[string]float64, len(g.Attributes))
		for k, v := range g.Attributes {
			out.Attributes[k] = v
		}
	}
	if g.Brain != nil {
		out.Brain = make(map[string]float64, len(g.Brain))
		for k, v := range g.Brain {
			out.Brain[k] = v
		}
	}
	return out
}

// MarshalJSON writes the flat external form: attributes at the top level and
// the brain mapping under BrainKey.
func (g Genome) MarshalJSON() ([]byte, error) {
	flat := make(map[string]any, len(g.Attributes)+1)
	for k, v := range g.Attributes {
		flat[k] = v
	}
	if g.Brain != nil {
		flat[BrainKey] = g.Brain
	}
	return json.Marshal(flat)
}

func (g *Genome) UnmarshalJSON(data []byte) error {
	var flat map[string]json.RawMessage
	if err := json.Unmarshal(data, &flat); err != nil {
		return err
	}
	g.Attributes = make(map[string]float64, len(flat))
	g.Brain = nil
	for k, raw := range flat {
		if k == BrainKey {
			brain := map[string]float64{}
			if err := json.Unmarshal(raw, &brain); err != nil {
				return fmt.Errorf("genome %s: %w", BrainKey, err)
			}
			g.Brain = brain
			continue
		}
		var v float64
		if err := json.Unmarshal(raw, &v); err != nil {
			return fmt.Errorf("genome attribute %s: %w", k, err)
		}
		g.Attributes[k] = v
	}
	return nil
}
