package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenomeJSONIsFlatWithBrainKey(t *testing.T) {
	g := Genome{
		Attributes: map[string]float64{"size": 1.5},
		Brain:      map[string]float64{"i0000-o0000": 2},
	}
	data, err := json.Marshal(g)
	require.NoError(t, err)
	assert.JSONEq(t, `{"size":1.5,"brain":{"i0000-o0000":2}}`, string(data))

	var decoded Genome
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, g, decoded)
}

func TestGenomeJSONWithoutBrainKeepsNilBrain(t *testing.T) {
	var g Genome
	require.NoError(t, json.Unmarshal([]byte(`{"strength":20}`), &g))
	assert.Nil(t, g.Brain)
	assert.Equal(t, 20.0, g.Attributes["strength"])

	err := json.Unmarshal([]byte(`{"size":"big"}`), &g)
	assert.ErrorContains(t, err, "genome attribute size")
}

func TestCloneDoesNotShareMaps(t *testing.T) {
	g := Genome{Attributes: map[string]float64{"size": 1}, Brain: map[string]float64{}}
	c := g.Clone()
	c.Attributes["size"] = 2
	c.Brain["i0000-o0000"] = 1
	assert.Equal(t, 1.0, g.Attributes["size"])
	assert.Empty(t, g.Brain)
	assert.NotNil(t, c.Brain)
}
