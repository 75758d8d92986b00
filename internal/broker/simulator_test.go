package broker

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func place(t *testing.T, s *Simulator, stake float64) Handle {
	t.Helper()
	h, err := s.PlaceTrade(context.Background(), Request{
		Symbol: "1HZ100V", Stake: stake, Duration: 4, DurationUnit: DurationTicks, Direction: Put,
	})
	require.NoError(t, err)
	return h
}

func TestSimulatorAlwaysWins(t *testing.T) {
	s := NewSimulator(100, 1, DefaultPayoutRatio, 1)
	h := place(t, s, 2)
	assert.Equal(t, 3.7, h.Payout)

	st, err := s.Settle(context.Background(), h)
	require.NoError(t, err)
	assert.True(t, st.Won())
	assert.Equal(t, 1.7, st.Profit)

	bal, err := s.GetBalance(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 101.7, bal)
}

func TestSimulatorAlwaysLoses(t *testing.T) {
	s := NewSimulator(100, 0, DefaultPayoutRatio, 1)
	st, err := s.Settle(context.Background(), place(t, s, 0.5))
	require.NoError(t, err)
	assert.False(t, st.Won())
	assert.Equal(t, -0.5, st.Profit)

	bal, _ := s.GetBalance(context.Background())
	assert.Equal(t, 99.5, bal)
}

func TestSimulatorWinRateApproachesProbability(t *testing.T) {
	s := NewSimulator(1e9, DefaultWinProbability, DefaultPayoutRatio, 99)
	wins := 0
	const n = 5000
	for i := 0; i < n; i++ {
		st, err := s.Settle(context.Background(), place(t, s, 1))
		require.NoError(t, err)
		if st.Won() {
			wins++
		}
	}
	assert.InDelta(t, DefaultWinProbability, float64(wins)/n, 0.03)
}

func TestSimulatorRejections(t *testing.T) {
	s := NewSimulator(1, 1, DefaultPayoutRatio, 1)
	ctx := context.Background()

	_, err := s.PlaceTrade(ctx, Request{Stake: 5})
	assert.ErrorIs(t, err, ErrRejected)

	_, err = s.PlaceTrade(ctx, Request{Stake: 0})
	assert.ErrorIs(t, err, ErrRejected)

	_, err = s.Settle(ctx, Handle{ContractID: "nope"})
	assert.ErrorIs(t, err, ErrUnknownContract)

	h := place(t, s, 0.5)
	_, err = s.Settle(ctx, h)
	require.NoError(t, err)
	_, err = s.Settle(ctx, h)
	assert.ErrorIs(t, err, ErrUnknownContract, "a contract settles once")
}

func TestRoundMoney(t *testing.T) {
	assert.Equal(t, 0.43, RoundMoney(0.425000001))
	assert.Equal(t, 1.0, RoundMoney(0.999))
	assert.Equal(t, -0.5, RoundMoney(-0.5))
}
