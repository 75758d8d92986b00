package broker

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Direction is the contract type sent to the broker.
type Direction string

const (
	Call Direction = "CALL"
	Put  Direction = "PUT"
)

// DurationTicks is the only duration unit the core trades.
const DurationTicks = "t"

var (
	// ErrRejected marks a request the broker answered with an error payload.
	ErrRejected = errors.New("broker rejected request")
	// ErrUnknownContract is returned when settling a handle the broker does not know.
	ErrUnknownContract = errors.New("unknown contract")
	// ErrSettleTimeout is returned when a contract is still open after the settle deadline.
	ErrSettleTimeout = errors.New("contract not settled in time")
)

// Request describes one fixed-duration contract.
type Request struct {
	Symbol       string
	Stake        float64
	Duration     int
	DurationUnit string
	Direction    Direction
}

// Handle identifies a placed contract.
type Handle struct {
	ContractID string    `json:"contract_id"`
	BuyPrice   float64   `json:"buy_price"`
	Payout     float64   `json:"payout"`
	PlacedAt   time.Time `json:"placed_at"`
}

// Settlement is the final outcome of a contract.
type Settlement struct {
	ContractID string    `json:"contract_id"`
	Profit     float64   `json:"profit"`
	SettledAt  time.Time `json:"settled_at"`
}

// Won reports whether the contract closed in profit.
func (s Settlement) Won() bool { return s.Profit > 0 }

// Client is the brokerage collaborator used by the session.
type Client interface {
	PlaceTrade(ctx context.Context, req Request) (Handle, error)
	GetBalance(ctx context.Context) (float64, error)
	Settle(ctx context.Context, h Handle) (Settlement, error)
}

// RoundMoney rounds an amount to cents.
func RoundMoney(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}
