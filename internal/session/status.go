package session

import (
	"time"

	"reversion-core/internal/performance"
	"reversion-core/internal/risk"
	"reversion-core/internal/strategy"
)

// State is the session lifecycle state.
type State string

const (
	StateIdle    State = "IDLE"
	StateRunning State = "RUNNING"
	StateStopped State = "STOPPED"
)

// Status is the read-only snapshot served to reporting.
type Status struct {
	SessionID      string              `json:"session_id"`
	State          State               `json:"state"`
	Symbol         string              `json:"symbol"`
	Demo           bool                `json:"demo"`
	DryRun         bool                `json:"dry_run"`
	StartedAt      time.Time           `json:"started_at"`
	UpdatedAt      time.Time           `json:"updated_at"`
	Cycles         int64               `json:"cycles"`
	LastPrice      float64             `json:"last_price"`
	LastDecision   strategy.Decision   `json:"last_decision"`
	NextStake      float64             `json:"next_stake"`
	InitialBalance float64             `json:"initial_balance"`
	Balance        float64             `json:"balance"`
	Totals         risk.SessionTotals  `json:"totals"`
	Limits         risk.Limits         `json:"limits"`
	Risk           risk.State          `json:"risk"`
	Performance    performance.Report  `json:"performance"`
	StopReason     risk.StopReason     `json:"stop_reason,omitempty"`
	LastError      string              `json:"last_error,omitempty"`
	Recent         []performance.Trade `json:"recent"`
}
