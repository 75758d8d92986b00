package events

import (
	"time"

	"reversion-core/internal/performance"
)

// Event enumerates topics published by the trading session.
type Event string

const (
	EventCycle   Event = "session.cycle"
	EventTrade   Event = "session.trade"
	EventStopped Event = "session.stopped"
)

// All lists every topic, in publish order of a typical session.
var All = []Event{EventCycle, EventTrade, EventStopped}

// Envelope is what sinks such as the websocket stream forward verbatim.
type Envelope struct {
	Type    Event     `json:"type"`
	Time    time.Time `json:"time"`
	Payload any       `json:"payload"`
}

// CyclePayload describes one evaluated cycle.
type CyclePayload struct {
	Seq       int64   `json:"seq"`
	Price     float64 `json:"price"`
	Signal    string  `json:"signal"`
	Ready     bool    `json:"ready"`
	ZScore    float64 `json:"z_score"`
	Slope     float64 `json:"slope"`
	Threshold float64 `json:"threshold"`
	Stake     float64 `json:"stake"`
}

// TradePayload is published after a trade settles and risk state is updated.
type TradePayload struct {
	Trade             performance.Trade `json:"trade"`
	Balance           float64           `json:"balance"`
	Threshold         float64           `json:"threshold"`
	ConsecutiveWins   int               `json:"consecutive_wins"`
	ConsecutiveLosses int               `json:"consecutive_losses"`
}

// StoppedPayload is published once when a session reaches STOPPED.
type StoppedPayload struct {
	SessionID    string  `json:"session_id"`
	Reason       string  `json:"reason"`
	Trades       int     `json:"trades"`
	TotalProfit  float64 `json:"total_profit"`
	FinalBalance float64 `json:"final_balance"`
}
