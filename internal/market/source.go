package market

import (
	"context"
	"errors"
	"fmt"
	"math"
)

var (
	// ErrNonFinite is returned when a source yields NaN or ±Inf.
	ErrNonFinite = errors.New("non-finite price")
	// ErrStreamClosed is returned once a streaming source has shut down.
	ErrStreamClosed = errors.New("price stream closed")
)

// Source yields the latest observed price for the traded instrument.
type Source interface {
	NextPrice(ctx context.Context) (float64, error)
}

// CheckFinite rejects NaN and infinite prices.
func CheckFinite(p float64) error {
	if math.IsNaN(p) || math.IsInf(p, 0) {
		return fmt.Errorf("%w: %v", ErrNonFinite, p)
	}
	return nil
}
