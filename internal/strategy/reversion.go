package strategy

import (
	"fmt"

	"reversion-core/internal/indicators"
)

// Generator turns a price window into a mean-reversion signal. It holds only
// immutable parameters, so Evaluate is a pure function of its inputs.
type Generator struct {
	params Params
}

// NewGenerator builds a generator; zero-valued fields take defaults.
func NewGenerator(p Params) *Generator {
	return &Generator{params: p.withDefaults()}
}

// Params returns the effective parameters.
func (g *Generator) Params() Params { return g.params }

// Signal is Evaluate reduced to the bare decision.
func (g *Generator) Signal(buf *indicators.PriceBuffer, threshold float64) Signal {
	return g.Evaluate(buf, threshold).Signal
}

// Evaluate applies the z-score and trend filter to the buffer.
//
// PUT when the price is stretched above the mean (z >= threshold) and the
// short-term slope is no longer rising faster than epsilon; CALL for the
// mirror case. Everything else, including warm-up and a constant series, is WAIT.
func (g *Generator) Evaluate(buf *indicators.PriceBuffer, threshold float64) Decision {
	p := g.params
	if buf.Len() < p.MinSamples {
		return waitDecision(indicators.Snapshot{Count: buf.Len()}, threshold, false,
			"warming up: %d/%d samples", buf.Len(), p.MinSamples)
	}

	snap, ok := indicators.Compute(buf, p.TrendWindow)
	if !ok {
		return waitDecision(snap, threshold, false, "degenerate statistics: zero variance")
	}

	d := Decision{Signal: SignalWait, Snapshot: snap, Ready: true, Threshold: threshold}
	switch {
	case snap.ZScore >= threshold && snap.Slope <= p.Epsilon:
		d.Signal = SignalPut
		d.Note = fmt.Sprintf("overextended up: z=%.2f >= %.2f, slope %.4f", snap.ZScore, threshold, snap.Slope)
	case snap.ZScore <= -threshold && snap.Slope >= -p.Epsilon:
		d.Signal = SignalCall
		d.Note = fmt.Sprintf("overextended down: z=%.2f <= %.2f, slope %.4f", snap.ZScore, -threshold, snap.Slope)
	default:
		d.Note = fmt.Sprintf("no entry: z=%.2f slope=%.4f", snap.ZScore, snap.Slope)
	}
	return d
}
