package strategy

import (
	"fmt"

	"reversion-core/internal/indicators"
)

// Signal is the discrete trading decision for one cycle.
type Signal string

const (
	SignalWait Signal = "WAIT"
	SignalCall Signal = "CALL" // expect the price to rise back toward the mean
	SignalPut  Signal = "PUT"  // expect the price to fall back toward the mean
)

// Actionable reports whether the signal requests a trade.
func (s Signal) Actionable() bool {
	return s == SignalCall || s == SignalPut
}

func (s Signal) String() string { return string(s) }

// Decision is a signal together with the statistics it was derived from.
type Decision struct {
	Signal    Signal              `json:"signal"`
	Snapshot  indicators.Snapshot `json:"snapshot"`
	Ready     bool                `json:"ready"` // snapshot defined and warm-up complete
	Threshold float64             `json:"threshold"`
	Note      string              `json:"note"`
}

func waitDecision(snap indicators.Snapshot, threshold float64, ready bool, format string, args ...any) Decision {
	return Decision{
		Signal:    SignalWait,
		Snapshot:  snap,
		Ready:     ready,
		Threshold: threshold,
		Note:      fmt.Sprintf(format, args...),
	}
}
