package risk

import "sync"

// State is the controller's mutable risk state.
type State struct {
	BaseStake         float64 `json:"base_stake"`
	Threshold         float64 `json:"threshold"`
	ConsecutiveWins   int     `json:"consecutive_wins"`
	ConsecutiveLosses int     `json:"consecutive_losses"`
}

// Controller owns the RiskState for one session. The session loop is its only
// writer; the mutex lets reporting read State concurrently.
type Controller struct {
	mu    sync.RWMutex
	state State
}

// NewController starts a session's risk state. The initial threshold is
// clamped into the valid range.
func NewController(baseStake, initialThreshold float64) *Controller {
	return &Controller{state: State{
		BaseStake: baseStake,
		Threshold: clamp(initialThreshold, MinThreshold, MaxThreshold),
	}}
}

// Stake sizes the next trade against the projected balance.
func (c *Controller) Stake(balance float64) float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return SizeStake(balance, c.state.BaseStake, c.state.ConsecutiveLosses)
}

// Threshold returns the current z-score threshold.
func (c *Controller) Threshold() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state.Threshold
}

// OnOutcome takes the streak counters reported after a trade was recorded and
// adapts the threshold. It returns the previous and new threshold.
func (c *Controller) OnOutcome(consecutiveWins, consecutiveLosses int) (before, after float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	before = c.state.Threshold
	c.state.ConsecutiveWins = consecutiveWins
	c.state.ConsecutiveLosses = consecutiveLosses
	c.state.Threshold = AdjustThreshold(before, consecutiveWins, consecutiveLosses)
	return before, c.state.Threshold
}

// State returns a copy of the risk state.
func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}
