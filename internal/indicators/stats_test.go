package indicators

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fill(values ...float64) *PriceBuffer {
	b := NewPriceBuffer(DefaultCapacity)
	for _, v := range values {
		b.Push(v)
	}
	return b
}

func TestComputeUndefinedBelowFiveSamples(t *testing.T) {
	_, ok := Compute(fill(1, 2, 3, 4), 5)
	assert.False(t, ok)

	s, ok := Compute(fill(1, 2, 3, 4, 5), 5)
	require.True(t, ok)
	assert.Equal(t, 5, s.Count)
	assert.InDelta(t, 3.0, s.Mean, 1e-12)
	assert.InDelta(t, math.Sqrt(2), s.StdDev, 1e-12)
	assert.InDelta(t, 1.0, s.Slope, 1e-12)
}

func TestComputeUndefinedForConstantSeries(t *testing.T) {
	values := make([]float64, 40)
	for i := range values {
		values[i] = 100
	}
	s, ok := Compute(fill(values...), 5)
	assert.False(t, ok)
	assert.Equal(t, 0.0, s.StdDev)
}

func TestZScoreSignMatchesDeviation(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for trial := 0; trial < 200; trial++ {
		b := NewPriceBuffer(DefaultCapacity)
		n := 5 + rng.Intn(150)
		for i := 0; i < n; i++ {
			b.Push(10000 + rng.Float64()*100 - 50)
		}
		s, ok := Compute(b, 5)
		require.True(t, ok)
		dev := s.Last - s.Mean
		switch {
		case dev > 0:
			assert.Greater(t, s.ZScore, 0.0)
		case dev < 0:
			assert.Less(t, s.ZScore, 0.0)
		}
	}
}

func TestSlope(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		want   float64
	}{
		{"empty", nil, 0},
		{"single point", []float64{5}, 0},
		{"two points", []float64{1, 3}, 2},
		{"flat", []float64{4, 4, 4, 4, 4}, 0},
		{"falling", []float64{10, 8, 6, 4, 2}, -2},
		{"spike last", []float64{100, 100, 100, 100, 106}, 1.2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Slope(tt.values), 1e-9)
		})
	}
}
