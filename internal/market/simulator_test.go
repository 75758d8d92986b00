package market

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimulatorStaysWithinBounds(t *testing.T) {
	sim := NewSimulator(DefaultBasePrice, 7)
	ctx := context.Background()
	for i := 0; i < 10000; i++ {
		p, err := sim.NextPrice(ctx)
		require.NoError(t, err)
		require.False(t, math.IsNaN(p))
		require.GreaterOrEqual(t, p, 9500.0)
		require.LessOrEqual(t, p, 10500.0)
	}
}

func TestSimulatorIsDeterministicForSeed(t *testing.T) {
	a, b := NewSimulator(100, 42), NewSimulator(100, 42)
	ctx := context.Background()
	for i := 0; i < 50; i++ {
		pa, _ := a.NextPrice(ctx)
		pb, _ := b.NextPrice(ctx)
		require.Equal(t, pa, pb)
	}
}

func TestSimulatorRevertsTowardBase(t *testing.T) {
	sim := NewSimulator(DefaultBasePrice, 1)
	sim.price = 10400

	// Reversion of 0.1 x 400 dominates the ±5 step.
	p, err := sim.NextPrice(context.Background())
	require.NoError(t, err)
	assert.Less(t, p, 10400.0-30)
	assert.Greater(t, p, 10400.0-50)
}

func TestSimulatorRejectsBadBase(t *testing.T) {
	assert.Equal(t, DefaultBasePrice, NewSimulator(math.NaN(), 1).Base)
	assert.Equal(t, DefaultBasePrice, NewSimulator(-3, 1).Base)
}

func TestSimulatorHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewSimulator(0, 1).NextPrice(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCheckFinite(t *testing.T) {
	assert.NoError(t, CheckFinite(1.5))
	assert.ErrorIs(t, CheckFinite(math.NaN()), ErrNonFinite)
	assert.ErrorIs(t, CheckFinite(math.Inf(-1)), ErrNonFinite)
}
