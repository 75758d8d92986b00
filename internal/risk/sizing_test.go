package risk

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSizeStake(t *testing.T) {
	tests := []struct {
		name    string
		balance float64
		base    float64
		losses  int
		want    float64
	}{
		{"no streak", 1000, 1.00, 0, 1.00},
		{"one loss", 1000, 1.00, 1, 1.00},
		{"two losses", 1000, 1.00, 2, 0.70},
		{"three losses halves", 1000, 1.00, 3, 0.50},
		{"long streak halves", 1000, 1.00, 9, 0.50},
		{"balance cap", 10, 5.00, 0, 0.50},
		{"floor after reduction", 1000, 0.50, 3, 0.35},
		{"floor on empty balance", 0, 1.00, 0, 0.35},
		{"ceiling", 100000, 100, 0, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, SizeStake(tt.balance, tt.base, tt.losses), 1e-9)
		})
	}
}

func TestSizeStakeAlwaysWithinBounds(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 5000; i++ {
		balance := rng.Float64() * 1e5
		if i%10 == 0 {
			balance = 0
		}
		base := MinStake + rng.Float64()*(MaxStake-MinStake)
		losses := rng.Intn(10)
		stake := SizeStake(balance, base, losses)
		assert.GreaterOrEqual(t, stake, MinStake)
		assert.LessOrEqual(t, stake, MaxStake)
	}
}

func TestAdjustThreshold(t *testing.T) {
	tests := []struct {
		name   string
		in     float64
		wins   int
		losses int
		want   float64
	}{
		{"no streak", 2.2, 0, 0, 2.2},
		{"two wins unchanged", 2.2, 2, 0, 2.2},
		{"win streak raises", 2.2, 3, 0, 2.244},
		{"win streak capped", 2.49, 5, 0, 2.5},
		{"one loss unchanged", 2.2, 0, 1, 2.2},
		{"loss streak lowers", 2.2, 0, 2, 2.156},
		{"loss streak floored", 1.81, 0, 4, 1.8},
		{"out of range input clamped", 3.0, 0, 0, 2.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, AdjustThreshold(tt.in, tt.wins, tt.losses), 1e-9)
		})
	}
}

func TestAdjustThresholdAlwaysWithinBounds(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	for i := 0; i < 5000; i++ {
		th := MinThreshold + rng.Float64()*(MaxThreshold-MinThreshold)
		wins, losses := rng.Intn(8), 0
		if rng.Intn(2) == 0 {
			wins, losses = 0, rng.Intn(8)
		}
		got := AdjustThreshold(th, wins, losses)
		assert.GreaterOrEqual(t, got, MinThreshold)
		assert.LessOrEqual(t, got, MaxThreshold)
	}
}
