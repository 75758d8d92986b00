package db

import (
	"database/sql"
	"time"
)

// Session is one journaled trading session. It is written at start and
// finalized at stop; nothing reads it back into a running session.
type Session struct {
	ID                string
	Symbol            string
	Demo              bool
	DryRun            bool
	BaseStake         float64
	DailyProfitTarget float64
	DailyLossLimit    float64
	MaxTrades         int
	InitialBalance    float64
	StartedAt         time.Time

	StopReason   sql.NullString
	FinalBalance sql.NullFloat64
	TotalProfit  sql.NullFloat64
	MaxDrawdown  sql.NullFloat64
	EndedAt      sql.NullTime
}

// SessionResult carries the values written when a session ends.
type SessionResult struct {
	StopReason   string
	FinalBalance float64
	TotalProfit  float64
	MaxDrawdown  float64
	EndedAt      time.Time
}

// Trade is a settled trade as stored in the journal.
type Trade struct {
	ID         string
	SessionID  string
	Seq        int
	Direction  string
	Stake      float64
	Profit     float64
	Result     string
	Threshold  float64
	ZScore     float64
	ContractID string
	CreatedAt  time.Time
}
