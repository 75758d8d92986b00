package db

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *Database {
	t.Helper()
	database, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })
	require.NoError(t, ApplyMigrations(database))
	return database
}

func TestApplyMigrationsIsIdempotent(t *testing.T) {
	database := newTestDB(t)
	require.NoError(t, ApplyMigrations(database))

	ok, err := columnExists(database.DB, "sessions", "stop_reason")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestQueriesRequireSessionID(t *testing.T) {
	q := newTestDB(t).Queries()
	ctx := context.Background()

	t.Run("InsertSession", func(t *testing.T) {
		assert.ErrorIs(t, q.InsertSession(ctx, Session{}), ErrSessionIDRequired)
	})
	t.Run("InsertTrade", func(t *testing.T) {
		assert.ErrorIs(t, q.InsertTrade(ctx, Trade{ID: "t1"}), ErrSessionIDRequired)
	})
	t.Run("ListTrades", func(t *testing.T) {
		_, err := q.ListTrades(ctx, "")
		assert.ErrorIs(t, err, ErrSessionIDRequired)
	})
	t.Run("FinishSession", func(t *testing.T) {
		assert.ErrorIs(t, q.FinishSession(ctx, "", SessionResult{}), ErrSessionIDRequired)
	})
}

func TestSessionAndTradeRoundTrip(t *testing.T) {
	q := newTestDB(t).Queries()
	ctx := context.Background()
	start := time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)

	require.NoError(t, q.InsertSession(ctx, Session{
		ID:                "s-1",
		Symbol:            "1HZ100V",
		Demo:              true,
		DryRun:            true,
		BaseStake:         0.5,
		DailyProfitTarget: 10,
		DailyLossLimit:    10,
		MaxTrades:         200,
		InitialBalance:    1000,
		StartedAt:         start,
	}))

	// Inserted out of order; ListTrades must return sequence order.
	for _, seq := range []int{2, 1, 3} {
		require.NoError(t, q.InsertTrade(ctx, Trade{
			ID:        "t" + string(rune('0'+seq)),
			SessionID: "s-1",
			Seq:       seq,
			Direction: "PUT",
			Stake:     0.5,
			Profit:    0.425,
			Result:    "WIN",
			Threshold: 2.2,
			ZScore:    2.4,
			CreatedAt: start.Add(time.Duration(seq) * time.Minute),
		}))
	}

	trades, err := q.ListTrades(ctx, "s-1")
	require.NoError(t, err)
	require.Len(t, trades, 3)
	for i, tr := range trades {
		assert.Equal(t, i+1, tr.Seq)
	}

	require.NoError(t, q.FinishSession(ctx, "s-1", SessionResult{
		StopReason:   "profit_target",
		FinalBalance: 1010,
		TotalProfit:  10,
		MaxDrawdown:  1.5,
		EndedAt:      start.Add(time.Hour),
	}))

	s, err := q.GetSession(ctx, "s-1")
	require.NoError(t, err)
	assert.True(t, s.Demo)
	assert.Equal(t, 200, s.MaxTrades)
	assert.Equal(t, "profit_target", s.StopReason.String)
	assert.InDelta(t, 10.0, s.TotalProfit.Float64, 1e-9)

	_, err = q.GetSession(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, q.FinishSession(ctx, "missing", SessionResult{}), ErrNotFound)
}
