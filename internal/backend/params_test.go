package backend

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sampleParams struct {
	Temperature *float64 `mapstructure:"temperature"`
	TopP        *float64 `mapstructure:"top_p"`
	Threads     int      `mapstructure:"threads"`
	NPredict    int      `mapstructure:"n_predict"`
}

func TestDecodeParameters(t *testing.T) {
	var p sampleParams
	err := DecodeParameters(map[string]any{
		"temperature": 0.5,
		"topP":        "0.8",
		"Threads":     4.0, // JSON numbers arrive as float64
		"n-predict":   32,
	}, &p)
	require.NoError(t, err)

	require.NotNil(t, p.Temperature)
	assert.InDelta(t, 0.5, *p.Temperature, 1e-9)
	require.NotNil(t, p.TopP)
	assert.InDelta(t, 0.8, *p.TopP, 1e-9)
	assert.Equal(t, 4, p.Threads)
	assert.Equal(t, 32, p.NPredict)
}

func TestDecodeParameters_Empty(t *testing.T) {
	var p sampleParams
	require.NoError(t, DecodeParameters(nil, &p))
	assert.Nil(t, p.Temperature)
}

func TestDecodeParameters_Invalid(t *testing.T) {
	var p sampleParams
	err := DecodeParameters(map[string]any{"threads": "many"}, &p)
	assert.ErrorContains(t, err, "invalid backend parameters")
}

func TestMergeParameters(t *testing.T) {
	base := map[string]any{"a": 1, "b": 2}
	merged := MergeParameters(base, map[string]any{"b": 3, "c": 4})

	assert.Equal(t, map[string]any{"a": 1, "b": 3, "c": 4}, merged)
	assert.Equal(t, 2, base["b"])
}
