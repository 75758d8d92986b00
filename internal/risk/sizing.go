package risk

import "math"

// Stake and threshold bounds.
const (
	MinStake = 0.35
	MaxStake = 100.0

	// MaxBalanceFraction caps a single stake relative to the projected balance.
	MaxBalanceFraction = 0.05

	MinThreshold = 1.8
	MaxThreshold = 2.5
)

// Reduction ladder applied to the base stake on losing streaks.
const (
	reduceAfterTwo   = 0.7
	reduceAfterThree = 0.5

	winStreakFactor  = 1.02
	lossStreakFactor = 0.98
)

// SizeStake computes the stake for the next trade.
//
// The ladder checks the stricter rung first: three or more consecutive losses
// halve the base stake, two cut it to 70%. The result is capped at 5% of the
// balance and then clamped into [MinStake, MaxStake].
func SizeStake(balance, baseStake float64, consecutiveLosses int) float64 {
	stake := baseStake
	switch {
	case consecutiveLosses >= 3:
		stake = baseStake * reduceAfterThree
	case consecutiveLosses >= 2:
		stake = baseStake * reduceAfterTwo
	}

	if limit := balance * MaxBalanceFraction; stake > limit {
		stake = limit
	}
	return clamp(stake, MinStake, MaxStake)
}

// AdjustThreshold returns the z-score threshold for the next cycle.
//
// A winning streak of three raises it by 2% (entries get rarer), a losing
// streak of two lowers it by 2%. The result always lies in [MinThreshold, MaxThreshold].
func AdjustThreshold(threshold float64, consecutiveWins, consecutiveLosses int) float64 {
	switch {
	case consecutiveWins >= 3:
		threshold = math.Min(MaxThreshold, threshold*winStreakFactor)
	case consecutiveLosses >= 2:
		threshold = math.Max(MinThreshold, threshold*lossStreakFactor)
	}
	return clamp(threshold, MinThreshold, MaxThreshold)
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(v, hi))
}
