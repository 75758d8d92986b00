package indicators

import "math"

// MinSnapshotSamples is the smallest sample count for which a snapshot is defined.
const MinSnapshotSamples = 5

// Snapshot is a statistics view of a PriceBuffer computed on demand.
type Snapshot struct {
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`
	ZScore float64 `json:"z_score"`
	Slope  float64 `json:"slope"`
	Last   float64 `json:"last"`
	Count  int     `json:"count"`
}

// Compute derives a snapshot from the buffer. trendWindow bounds the number of
// newest points used for the slope. ok is false when there are fewer than
// MinSnapshotSamples prices or the series is constant.
func Compute(b *PriceBuffer, trendWindow int) (s Snapshot, ok bool) {
	s.Count = b.Len()
	if s.Count < MinSnapshotSamples {
		return s, false
	}

	values := b.Values()
	s.Last = values[len(values)-1]
	s.Mean, s.StdDev = MeanStd(values)
	if s.StdDev == 0 {
		return s, false
	}
	s.ZScore = (s.Last - s.Mean) / s.StdDev
	s.Slope = Slope(b.Tail(trendWindow))
	return s, true
}

// Mean returns the arithmetic mean, or 0 for an empty slice.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// MeanStd returns the mean and population standard deviation.
func MeanStd(values []float64) (mean, std float64) {
	if len(values) == 0 {
		return 0, 0
	}
	mean = Mean(values)
	variance := 0.0
	for _, v := range values {
		d := v - mean
		variance += d * d
	}
	return mean, math.Sqrt(variance / float64(len(values)))
}

// Slope is the least-squares linear slope of values against their index.
// Fewer than two points have no slope and yield 0.
func Slope(values []float64) float64 {
	n := len(values)
	if n < 2 {
		return 0
	}
	sumX, sumY := 0.0, 0.0
	sumXY, sumXX := 0.0, 0.0
	for i, y := range values {
		x := float64(i)
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}
	count := float64(n)
	den := count*sumXX - sumX*sumX
	if den == 0 {
		return 0
	}
	return (count*sumXY - sumX*sumY) / den
}
