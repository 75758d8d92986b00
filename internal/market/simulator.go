package market

import (
	"context"
	"math"
	"math/rand"
	"sync"
)

// Synthetic feed defaults.
const (
	DefaultBasePrice     = 10000.0
	DefaultStep          = 5.0
	DefaultReversionBand = 50.0
	DefaultReversionRate = 0.1
	DefaultClampFraction = 0.05
)

// Simulator is a bounded random walk that is pulled back toward its base
// price once it drifts outside the reversion band.
type Simulator struct {
	Base          float64
	Step          float64
	ReversionBand float64
	ReversionRate float64
	Min, Max      float64

	mu    sync.Mutex
	price float64
	rng   *rand.Rand
}

// NewSimulator creates a walk starting at base, clamped to base ±5%.
func NewSimulator(base float64, seed int64) *Simulator {
	if base <= 0 || math.IsNaN(base) || math.IsInf(base, 0) {
		base = DefaultBasePrice
	}
	return &Simulator{
		Base:          base,
		Step:          DefaultStep,
		ReversionBand: DefaultReversionBand,
		ReversionRate: DefaultReversionRate,
		Min:           base * (1 - DefaultClampFraction),
		Max:           base * (1 + DefaultClampFraction),
		price:         base,
		rng:           rand.New(rand.NewSource(seed)),
	}
}

// NextPrice advances the walk by one step.
func (s *Simulator) NextPrice(ctx context.Context) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	change := (s.rng.Float64()*2 - 1) * s.Step
	if math.Abs(s.price-s.Base) > s.ReversionBand {
		change += (s.Base - s.price) * s.ReversionRate
	}
	s.price = math.Max(s.Min, math.Min(s.Max, s.price+change))
	return s.price, nil
}

// Price returns the last generated price without advancing.
func (s *Simulator) Price() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.price
}
