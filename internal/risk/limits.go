package risk

// StopReason names the condition that ended a session. Empty means keep running.
type StopReason string

const (
	StopNone         StopReason = ""
	StopProfitTarget StopReason = "profit_target"
	StopLossLimit    StopReason = "loss_limit"
	StopMaxTrades    StopReason = "max_trades"
	StopCancelled    StopReason = "cancelled"
	StopFatal        StopReason = "fatal_error"
)

// Limits are the session circuit breakers.
type Limits struct {
	DailyProfitTarget float64 `json:"daily_profit_target"`
	DailyLossLimit    float64 `json:"daily_loss_limit"` // magnitude
	MaxTrades         int     `json:"max_trades"`
}

// SessionTotals are the running figures the breakers look at.
type SessionTotals struct {
	Profit float64 `json:"profit"` // sum of winning trades
	Loss   float64 `json:"loss"`   // sum of |losing trades|
	Trades int     `json:"trades"` // settled
	// Executed counts every contract the broker accepted, settled or not.
	Executed int `json:"executed"`
}

// Placed records a contract the broker accepted. Settlement is folded in
// separately by Add, so a contract whose result never arrives still counts.
func (t SessionTotals) Placed() SessionTotals {
	t.Executed++
	return t
}

// Add folds one settled trade's profit into the totals.
func (t SessionTotals) Add(profit float64) SessionTotals {
	t.Trades++
	if profit > 0 {
		t.Profit += profit
	} else {
		t.Loss += -profit
	}
	return t
}

// Net is profit minus loss.
func (t SessionTotals) Net() float64 { return t.Profit - t.Loss }

// CheckStop evaluates the breakers in fixed order; the first match wins.
func (l Limits) CheckStop(t SessionTotals) StopReason {
	switch {
	case t.Profit >= l.DailyProfitTarget:
		return StopProfitTarget
	case t.Loss >= l.DailyLossLimit:
		return StopLossLimit
	case t.contracts() >= l.MaxTrades:
		return StopMaxTrades
	}
	return StopNone
}

// AllowsTrade reports whether another trade may be placed under MaxTrades.
func (l Limits) AllowsTrade(t SessionTotals) bool {
	return t.contracts() < l.MaxTrades
}

func (t SessionTotals) contracts() int { return max(t.Executed, t.Trades) }
