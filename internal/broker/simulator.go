package broker

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Simulated outcome defaults for dry-run sessions.
const (
	DefaultWinProbability = 0.62
	DefaultPayoutRatio    = 0.85
)

// Simulator settles contracts locally without touching a broker.
// A win pays PayoutRatio x stake; a loss forfeits the stake.
type Simulator struct {
	WinProbability float64
	PayoutRatio    float64

	mu      sync.Mutex
	balance decimal.Decimal
	open    map[string]decimal.Decimal
	rng     *rand.Rand
	now     func() time.Time
}

// NewSimulator creates a simulated account.
func NewSimulator(balance, winProbability, payoutRatio float64, seed int64) *Simulator {
	return &Simulator{
		WinProbability: winProbability,
		PayoutRatio:    payoutRatio,
		balance:        decimal.NewFromFloat(balance),
		open:           make(map[string]decimal.Decimal),
		rng:            rand.New(rand.NewSource(seed)),
		now:            time.Now,
	}
}

// GetBalance returns the simulated balance including open stakes.
func (s *Simulator) GetBalance(ctx context.Context) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.balance.InexactFloat64(), nil
}

// PlaceTrade reserves the stake and returns a handle.
func (s *Simulator) PlaceTrade(ctx context.Context, req Request) (Handle, error) {
	if err := ctx.Err(); err != nil {
		return Handle{}, err
	}
	stake := decimal.NewFromFloat(req.Stake).Round(2)
	if !stake.IsPositive() {
		return Handle{}, fmt.Errorf("%w: stake must be positive", ErrRejected)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if stake.GreaterThan(s.balance) {
		return Handle{}, fmt.Errorf("%w: insufficient balance %s for stake %s", ErrRejected, s.balance.StringFixed(2), stake.StringFixed(2))
	}

	id := uuid.NewString()
	s.open[id] = stake
	payout := stake.Add(stake.Mul(decimal.NewFromFloat(s.PayoutRatio))).Round(2)
	return Handle{
		ContractID: id,
		BuyPrice:   stake.InexactFloat64(),
		Payout:     payout.InexactFloat64(),
		PlacedAt:   s.now(),
	}, nil
}

// Settle draws the outcome and applies it to the balance.
func (s *Simulator) Settle(ctx context.Context, h Handle) (Settlement, error) {
	if err := ctx.Err(); err != nil {
		return Settlement{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	stake, ok := s.open[h.ContractID]
	if !ok {
		return Settlement{}, fmt.Errorf("settle %s: %w", h.ContractID, ErrUnknownContract)
	}
	delete(s.open, h.ContractID)

	profit := stake.Neg()
	if s.rng.Float64() < s.WinProbability {
		profit = stake.Mul(decimal.NewFromFloat(s.PayoutRatio)).Round(2)
	}
	s.balance = s.balance.Add(profit)

	return Settlement{
		ContractID: h.ContractID,
		Profit:     profit.InexactFloat64(),
		SettledAt:  s.now(),
	}, nil
}
