package performance

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Result classifies a settled trade.
type Result string

const (
	Win  Result = "WIN"
	Loss Result = "LOSS"
)

// ResultOf classifies a profit; break-even counts as a loss.
func ResultOf(profit float64) Result {
	if profit > 0 {
		return Win
	}
	return Loss
}

// Trade is an immutable settled trade.
type Trade struct {
	ID        string    `json:"id"`
	Seq       int       `json:"seq"`
	Time      time.Time `json:"time"`
	Direction string    `json:"direction"`
	Stake     float64   `json:"stake"`
	Profit    float64   `json:"profit"`
	Result    Result    `json:"result"`
}

// State is the incrementally maintained performance state.
type State struct {
	Wins              int     `json:"wins"`
	Losses            int     `json:"losses"`
	TotalProfit       float64 `json:"total_profit"`
	PeakProfit        float64 `json:"peak_profit"`
	MaxDrawdown       float64 `json:"max_drawdown"`
	ConsecutiveWins   int     `json:"consecutive_wins"`
	ConsecutiveLosses int     `json:"consecutive_losses"`
}

// apply folds one profit into the state. Peak and drawdown are high-water marks.
func (s State) apply(profit float64) State {
	if profit > 0 {
		s.Wins++
		s.ConsecutiveWins++
		s.ConsecutiveLosses = 0
	} else {
		s.Losses++
		s.ConsecutiveLosses++
		s.ConsecutiveWins = 0
	}

	s.TotalProfit += profit
	if s.TotalProfit > s.PeakProfit {
		s.PeakProfit = s.TotalProfit
	} else if dd := s.PeakProfit - s.TotalProfit; dd > s.MaxDrawdown {
		s.MaxDrawdown = dd
	}
	return s
}

// Report is the externally rendered projection of the tracker.
type Report struct {
	TotalTrades       int     `json:"total_trades"`
	Wins              int     `json:"wins"`
	Losses            int     `json:"losses"`
	WinRate           float64 `json:"win_rate"` // percent
	TotalProfit       float64 `json:"total_profit"`
	PeakProfit        float64 `json:"peak_profit"`
	ConsecutiveWins   int     `json:"consecutive_wins"`
	ConsecutiveLosses int     `json:"consecutive_losses"`
	MaxDrawdown       float64 `json:"max_drawdown"`
	AvgProfitPerTrade float64 `json:"avg_profit_per_trade"`
}

// ReportOf projects a state.
func ReportOf(s State) Report {
	r := Report{
		TotalTrades:       s.Wins + s.Losses,
		Wins:              s.Wins,
		Losses:            s.Losses,
		TotalProfit:       s.TotalProfit,
		PeakProfit:        s.PeakProfit,
		ConsecutiveWins:   s.ConsecutiveWins,
		ConsecutiveLosses: s.ConsecutiveLosses,
		MaxDrawdown:       s.MaxDrawdown,
	}
	if r.TotalTrades > 0 {
		r.WinRate = float64(s.Wins) / float64(r.TotalTrades) * 100
		r.AvgProfitPerTrade = s.TotalProfit / float64(r.TotalTrades)
	}
	return r
}

// Tracker records settled trades for a session.
type Tracker struct {
	mu     sync.RWMutex
	trades []Trade
	state  State
	now    func() time.Time
	newID  func() string
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{now: time.Now, newID: uuid.NewString}
}

// Record appends a trade and updates counters, streaks, peak and drawdown.
func (t *Tracker) Record(direction string, stake, profit float64) Trade {
	t.mu.Lock()
	defer t.mu.Unlock()

	tr := Trade{
		ID:        t.newID(),
		Seq:       len(t.trades) + 1,
		Time:      t.now(),
		Direction: direction,
		Stake:     stake,
		Profit:    profit,
		Result:    ResultOf(profit),
	}
	t.trades = append(t.trades, tr)
	t.state = t.state.apply(profit)
	return tr
}

// Performance returns the current report. It does not mutate the tracker.
func (t *Tracker) Performance() Report {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return ReportOf(t.state)
}

// State returns the raw incremental state.
func (t *Tracker) State() State {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}

// Trades returns a copy of the full history in chronological order.
func (t *Tracker) Trades() []Trade {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Trade, len(t.trades))
	copy(out, t.trades)
	return out
}

// Recent returns a copy of the newest n trades, oldest first.
func (t *Tracker) Recent(n int) []Trade {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if n <= 0 {
		return nil
	}
	if n > len(t.trades) {
		n = len(t.trades)
	}
	out := make([]Trade, n)
	copy(out, t.trades[len(t.trades)-n:])
	return out
}

// Recompute rebuilds the state from a full history.
func Recompute(trades []Trade) State {
	var s State
	for _, tr := range trades {
		s = s.apply(tr.Profit)
	}
	return s
}
