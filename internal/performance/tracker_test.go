package performance

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recordAll(tr *Tracker, profits ...float64) {
	for _, p := range profits {
		tr.Record("CALL", 1, p)
	}
}

func TestPeakAndDrawdown(t *testing.T) {
	tr := NewTracker()
	wantPeaks := []float64{5, 8, 8, 8}
	for i, p := range []float64{5, 3, -10, 2} {
		tr.Record("PUT", 1, p)
		assert.Equal(t, wantPeaks[i], tr.State().PeakProfit, "peak after trade %d", i+1)
	}

	r := tr.Performance()
	assert.Equal(t, 4, r.TotalTrades)
	assert.Equal(t, 3, r.Wins)
	assert.Equal(t, 1, r.Losses)
	assert.InDelta(t, 75.0, r.WinRate, 1e-9)
	assert.InDelta(t, 0.0, r.TotalProfit, 1e-9)
	assert.InDelta(t, 10.0, r.MaxDrawdown, 1e-9)
	assert.InDelta(t, 0.0, r.AvgProfitPerTrade, 1e-9)
	assert.Equal(t, 1, r.ConsecutiveWins)
	assert.Equal(t, 0, r.ConsecutiveLosses)
}

func TestEmptyTrackerHasZeroRates(t *testing.T) {
	r := NewTracker().Performance()
	assert.Equal(t, Report{}, r)
}

func TestBreakEvenCountsAsLoss(t *testing.T) {
	tr := NewTracker()
	trade := tr.Record("CALL", 1, 0)
	assert.Equal(t, Loss, trade.Result)
	assert.Equal(t, 1, tr.State().ConsecutiveLosses)
	assert.Equal(t, 0, tr.State().Wins)
}

func TestStreaks(t *testing.T) {
	tests := []struct {
		name       string
		profits    []float64
		wantWins   int
		wantLosses int
	}{
		{"three wins", []float64{1, 1, 1}, 3, 0},
		{"loss resets wins", []float64{1, 1, -1}, 0, 1},
		{"two losses", []float64{1, -1, -1}, 0, 2},
		{"win resets losses", []float64{-1, -1, -1, 2}, 1, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := NewTracker()
			recordAll(tr, tt.profits...)
			s := tr.State()
			assert.Equal(t, tt.wantWins, s.ConsecutiveWins)
			assert.Equal(t, tt.wantLosses, s.ConsecutiveLosses)
			// Only one streak may be non-zero.
			assert.True(t, s.ConsecutiveWins == 0 || s.ConsecutiveLosses == 0)
		})
	}
}

func TestIncrementalMatchesRecompute(t *testing.T) {
	tr := NewTracker()
	profits := []float64{0.85, -1, -1, 0.85, 0.425, -0.5, 0, 1.7, -3, 0.85}
	prevDD := 0.0
	for i, p := range profits {
		tr.Record("PUT", 1, p)

		s := tr.State()
		require.Equal(t, i+1, s.Wins+s.Losses)
		assert.GreaterOrEqual(t, s.MaxDrawdown, prevDD, "drawdown must not decrease")
		assert.GreaterOrEqual(t, s.PeakProfit, s.TotalProfit)
		prevDD = s.MaxDrawdown

		re := Recompute(tr.Trades())
		assert.Equal(t, s.Wins, re.Wins)
		assert.Equal(t, s.Losses, re.Losses)
		assert.InDelta(t, s.TotalProfit, re.TotalProfit, 1e-9)
		assert.InDelta(t, s.PeakProfit, re.PeakProfit, 1e-9)
		assert.InDelta(t, s.MaxDrawdown, re.MaxDrawdown, 1e-9)
		assert.InDelta(t, ReportOf(s).WinRate, ReportOf(re).WinRate, 1e-9)
	}
}

func TestPerformanceIsIdempotent(t *testing.T) {
	tr := NewTracker()
	recordAll(tr, 1, -2, 3)
	first := tr.Performance()
	second := tr.Performance()
	assert.Equal(t, first, second)
	assert.Len(t, tr.Trades(), 3)
}

func TestTradesAreAssignedSequenceAndID(t *testing.T) {
	tr := NewTracker()
	n := 0
	tr.newID = func() string { n++; return fmt.Sprintf("id-%d", n) }
	recordAll(tr, 1, -1, 1)

	trades := tr.Trades()
	require.Len(t, trades, 3)
	for i, trade := range trades {
		assert.Equal(t, i+1, trade.Seq)
		assert.Equal(t, fmt.Sprintf("id-%d", i+1), trade.ID)
	}

	// Copies must not alias internal storage.
	trades[0].Profit = 100
	assert.Equal(t, 1.0, tr.Trades()[0].Profit)
}

func TestRecent(t *testing.T) {
	tr := NewTracker()
	recordAll(tr, 1, 2, 3, 4)

	tests := []struct {
		n    int
		want []float64
	}{
		{0, nil},
		{-1, nil},
		{2, []float64{3, 4}},
		{10, []float64{1, 2, 3, 4}},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("n=%d", tt.n), func(t *testing.T) {
			got := tr.Recent(tt.n)
			var profits []float64
			for _, trade := range got {
				profits = append(profits, trade.Profit)
			}
			assert.Equal(t, tt.want, profits)
		})
	}
}
