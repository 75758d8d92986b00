package session

import (
	"time"

	"reversion-core/internal/performance"
	"reversion-core/internal/risk"
)

// Recommendation is a post-session hint. Its value doubles as the i18n key.
type Recommendation string

const (
	RecommendRaise    Recommendation = "RecommendRaise"
	RecommendReduce   Recommendation = "RecommendReduce"
	RecommendWorking  Recommendation = "RecommendWorking"
	RecommendIncrease Recommendation = "RecommendIncrease"
)

// Win-rate bands, in percent, that trigger recommendations.
const (
	WeakWinRate   = 50.0
	StrongWinRate = 65.0
)

// FinalReport summarizes a stopped session.
type FinalReport struct {
	SessionID       string              `json:"session_id"`
	StopReason      risk.StopReason     `json:"stop_reason"`
	StartedAt       time.Time           `json:"started_at"`
	EndedAt         time.Time           `json:"ended_at"`
	Duration        time.Duration       `json:"duration"`
	Trades          int                 `json:"trades"`
	TradesPerHour   float64             `json:"trades_per_hour"`
	InitialBalance  float64             `json:"initial_balance"`
	FinalBalance    float64             `json:"final_balance"`
	BalanceChange   float64             `json:"balance_change"`
	Totals          risk.SessionTotals  `json:"totals"`
	Risk            risk.State          `json:"risk"`
	Performance     performance.Report  `json:"performance"`
	Recent          []performance.Trade `json:"recent"`
	Recommendations []Recommendation    `json:"recommendations"`
	Error           string              `json:"error,omitempty"`
}

// Recommend maps a win rate to advice. No trades means no advice.
func Recommend(r performance.Report) []Recommendation {
	if r.TotalTrades == 0 {
		return nil
	}
	switch {
	case r.WinRate < WeakWinRate:
		return []Recommendation{RecommendRaise, RecommendReduce}
	case r.WinRate > StrongWinRate:
		return []Recommendation{RecommendWorking, RecommendIncrease}
	}
	return nil
}

// tradesPerHour guards against sub-second sessions.
func tradesPerHour(trades int, d time.Duration) float64 {
	if trades == 0 || d <= 0 {
		return 0
	}
	return float64(trades) / d.Hours()
}
