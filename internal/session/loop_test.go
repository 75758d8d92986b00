package session

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reversion-core/internal/broker"
	"reversion-core/internal/events"
	"reversion-core/internal/market"
	"reversion-core/internal/monitor"
	"reversion-core/internal/risk"
	"reversion-core/internal/strategy"
	"reversion-core/pkg/db"
)

// A 30-tick block whose full window yields exactly one PUT: 25 x 100 then a
// 5-tick plateau at 106 (z = sqrt(5), slope 0). Every other rotation is WAIT.
func putBlock() []float64 {
	block := make([]float64, 0, 30)
	for i := 0; i < 25; i++ {
		block = append(block, 100)
	}
	for i := 0; i < 5; i++ {
		block = append(block, 106)
	}
	return block
}

type patternSource struct {
	mu      sync.Mutex
	pattern []float64
	calls   int
	hook    func(call int) (price float64, handled bool, err error)
}

func (s *patternSource) NextPrice(ctx context.Context) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.hook != nil {
		if p, handled, err := s.hook(s.calls); handled {
			return p, err
		}
	}
	return s.pattern[(s.calls-1)%len(s.pattern)], nil
}

type fakeBroker struct {
	mu        sync.Mutex
	balance   float64
	balErr    error
	outcomes  []bool // true = win; cycled
	placeErrs []error
	settleErr []error
	placed    []broker.Request
	settled   int
	onPlace   func(n int)
}

func (b *fakeBroker) GetBalance(ctx context.Context) (float64, error) {
	return b.balance, b.balErr
}

func (b *fakeBroker) PlaceTrade(ctx context.Context, req broker.Request) (broker.Handle, error) {
	b.mu.Lock()
	n := len(b.placed)
	b.placed = append(b.placed, req)
	hook := b.onPlace
	var err error
	if n < len(b.placeErrs) {
		err = b.placeErrs[n]
	}
	b.mu.Unlock()
	if hook != nil {
		hook(n + 1)
	}
	if err != nil {
		return broker.Handle{}, err
	}
	return broker.Handle{ContractID: "c", BuyPrice: req.Stake}, nil
}

func (b *fakeBroker) Settle(ctx context.Context, h broker.Handle) (broker.Settlement, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	idx := b.settled
	b.settled++
	if idx < len(b.settleErr) && b.settleErr[idx] != nil {
		return broker.Settlement{}, b.settleErr[idx]
	}
	won := true
	if len(b.outcomes) > 0 {
		won = b.outcomes[idx%len(b.outcomes)]
	}
	profit := -h.BuyPrice
	if won {
		profit = broker.RoundMoney(h.BuyPrice * 0.85)
	}
	return broker.Settlement{ContractID: h.ContractID, Profit: profit}, nil
}

type fakeJournal struct {
	mu       sync.Mutex
	started  []db.Session
	trades   []db.Trade
	finished []db.SessionResult
}

func (j *fakeJournal) StartSession(ctx context.Context, s db.Session) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.started = append(j.started, s)
	return nil
}

func (j *fakeJournal) RecordTrade(t db.Trade) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.trades = append(j.trades, t)
	return nil
}

func (j *fakeJournal) FinishSession(ctx context.Context, id string, r db.SessionResult) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.finished = append(j.finished, r)
	return nil
}

type harness struct {
	loop    *Loop
	source  *patternSource
	broker  *fakeBroker
	journal *fakeJournal
	bus     *events.Bus
	metrics *monitor.Metrics

	mu     sync.Mutex
	sleeps []time.Duration
}

func newHarness(t *testing.T, limits risk.Limits, b *fakeBroker) *harness {
	t.Helper()
	if b == nil {
		b = &fakeBroker{balance: 1000}
	}
	h := &harness{
		source:  &patternSource{pattern: putBlock()},
		broker:  b,
		journal: &fakeJournal{},
		bus:     events.NewBus(),
		metrics: monitor.NewMetrics("test"),
	}
	loop, err := New(Config{
		SessionID: "test-session",
		Symbol:    "1HZ100V",
		BaseStake: 1,
		Limits:    limits,
		Strategy:  strategy.Params{BufferCapacity: 30},
	}, Deps{Source: h.source, Broker: h.broker, Bus: h.bus, Metrics: h.metrics, Journal: h.journal})
	require.NoError(t, err)

	clock := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	loop.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	loop.sleep = func(ctx context.Context, d time.Duration) error {
		h.mu.Lock()
		h.sleeps = append(h.sleeps, d)
		h.mu.Unlock()
		return ctx.Err()
	}
	h.loop = loop
	return h
}

func (h *harness) countSleeps(d time.Duration) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, s := range h.sleeps {
		if s == d {
			n++
		}
	}
	return n
}

func wideLimits(maxTrades int) risk.Limits {
	return risk.Limits{DailyProfitTarget: 1000, DailyLossLimit: 1000, MaxTrades: maxTrades}
}

func TestRunStopsAtMaxTrades(t *testing.T) {
	h := newHarness(t, wideLimits(3), &fakeBroker{balance: 1000, outcomes: []bool{true, false}})
	stopped, unsub := h.bus.Subscribe(events.EventStopped, 1)
	defer unsub()

	report, err := h.loop.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, risk.StopMaxTrades, report.StopReason)
	assert.Equal(t, 3, report.Trades)
	assert.Equal(t, 90, h.source.calls, "one PUT per 30-tick block")
	assert.InDelta(t, 0.85-1+0.85, report.Performance.TotalProfit, 1e-9)
	assert.InDelta(t, 1000.7, report.FinalBalance, 1e-9)
	assert.InDelta(t, 0.7, report.BalanceChange, 1e-9)
	assert.InDelta(t, 1.7, report.Totals.Profit, 1e-9)
	assert.InDelta(t, 1.0, report.Totals.Loss, 1e-9)
	assert.Equal(t, StateStopped, h.loop.Status().State)

	for _, req := range h.broker.placed {
		assert.Equal(t, broker.Put, req.Direction)
		assert.Equal(t, 4, req.Duration)
		assert.Equal(t, broker.DurationTicks, req.DurationUnit)
		assert.Equal(t, "1HZ100V", req.Symbol)
		assert.GreaterOrEqual(t, req.Stake, risk.MinStake)
	}

	require.Len(t, h.journal.started, 1)
	require.Len(t, h.journal.trades, 3)
	require.Len(t, h.journal.finished, 1)
	assert.Equal(t, "max_trades", h.journal.finished[0].StopReason)
	// The final trade stops the session before any pacing.
	assert.Equal(t, 2, h.countSleeps(h.loop.cfg.TradeInterval))

	select {
	case msg := <-stopped:
		p := msg.(events.StoppedPayload)
		assert.Equal(t, "max_trades", p.Reason)
		assert.Equal(t, 3, p.Trades)
	default:
		t.Fatal("stopped event not published")
	}
}

func TestRunStopsAtLossLimitAndTightensThreshold(t *testing.T) {
	limits := risk.Limits{DailyProfitTarget: 100, DailyLossLimit: 1.5, MaxTrades: 50}
	h := newHarness(t, limits, &fakeBroker{balance: 1000, outcomes: []bool{false}})

	report, err := h.loop.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, risk.StopLossLimit, report.StopReason)
	assert.Equal(t, 2, report.Trades)
	assert.Equal(t, 2, report.Risk.ConsecutiveLosses)
	assert.InDelta(t, 2.2*0.98, report.Risk.Threshold, 1e-9)
	assert.InDelta(t, 998.0, report.FinalBalance, 1e-9)
	assert.Equal(t, []Recommendation{RecommendRaise, RecommendReduce}, report.Recommendations)
}

func TestRunStopsAtProfitTarget(t *testing.T) {
	limits := risk.Limits{DailyProfitTarget: 1.5, DailyLossLimit: 100, MaxTrades: 50}
	h := newHarness(t, limits, &fakeBroker{balance: 1000, outcomes: []bool{true}})

	report, err := h.loop.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, risk.StopProfitTarget, report.StopReason)
	assert.Equal(t, 2, report.Trades)
	assert.InDelta(t, 100.0, report.Performance.WinRate, 1e-9)
	assert.Equal(t, []Recommendation{RecommendWorking, RecommendIncrease}, report.Recommendations)
}

func TestPlaceFailureLeavesStateUntouched(t *testing.T) {
	b := &fakeBroker{balance: 1000, placeErrs: []error{errors.New("connection reset")}}
	h := newHarness(t, wideLimits(1), b)

	var atRetry Status
	b.onPlace = func(n int) {
		if n == 2 {
			atRetry = h.loop.Status()
		}
	}

	report, err := h.loop.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Trades)
	assert.Equal(t, 0, atRetry.Performance.TotalTrades)
	assert.Equal(t, 0, atRetry.Risk.ConsecutiveLosses)
	assert.Equal(t, 2.2, atRetry.Risk.Threshold)
	assert.Equal(t, 1000.0, atRetry.Balance)
	assert.Equal(t, "connection reset", atRetry.LastError)
	assert.Equal(t, 1, h.countSleeps(h.loop.cfg.FailureBackoff))
	assert.Equal(t, uint64(1), h.metrics.GetSnapshot().Errors)
}

func TestSettleFailureDoesNotRecordTrade(t *testing.T) {
	b := &fakeBroker{balance: 1000, settleErr: []error{broker.ErrSettleTimeout}}
	h := newHarness(t, wideLimits(2), b)

	report, err := h.loop.Run(context.Background())
	require.NoError(t, err)

	// The unsettled contract still used up one of the two allowed.
	assert.Len(t, b.placed, 2)
	assert.Equal(t, 1, report.Trades)
	assert.Equal(t, 2, report.Totals.Executed)
	assert.Equal(t, 1, report.Totals.Trades)
	assert.Equal(t, risk.StopMaxTrades, report.StopReason)
	assert.Len(t, h.journal.trades, 1)
	assert.Equal(t, 1, h.countSleeps(h.loop.cfg.FailureBackoff))
}

func TestUnsettledContractsCountTowardMaxTrades(t *testing.T) {
	tests := []struct {
		name      string
		maxTrades int
		settleErr []error
	}{
		{"timeout", 1, []error{broker.ErrSettleTimeout}},
		{"rejected", 1, []error{broker.ErrRejected}},
		{"every settle fails", 3, []error{broker.ErrSettleTimeout, broker.ErrSettleTimeout, broker.ErrSettleTimeout}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := &fakeBroker{balance: 1000, settleErr: tt.settleErr}
			h := newHarness(t, wideLimits(tt.maxTrades), b)
			riskBefore := h.loop.risk.State()

			report, err := h.loop.Run(context.Background())
			require.NoError(t, err)

			assert.Len(t, b.placed, tt.maxTrades, "no contract beyond the limit")
			assert.Equal(t, risk.StopMaxTrades, report.StopReason)
			assert.Equal(t, tt.maxTrades, report.Totals.Executed)
			assert.Zero(t, report.Trades)
			assert.Zero(t, report.Totals.Trades)
			assert.Empty(t, h.journal.trades)
			assert.Equal(t, riskBefore, report.Risk)
			assert.InDelta(t, 1000, report.FinalBalance, 1e-9)
			assert.Equal(t, 30*tt.maxTrades, h.source.calls)
		})
	}
}

func TestNonFinitePriceSkipsCycle(t *testing.T) {
	h := newHarness(t, wideLimits(1), nil)
	h.source.hook = func(call int) (float64, bool, error) {
		if call == 3 {
			return math.NaN(), true, nil
		}
		return 0, false, nil
	}

	report, err := h.loop.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Trades)
	assert.Equal(t, 1, h.countSleeps(h.loop.cfg.FailureBackoff))
	// The NaN tick was never buffered, so the first full PUT window only
	// appears once the next 30-tick block has been seen in full.
	assert.Equal(t, 60, h.source.calls)
}

func TestCancellationProducesFinalReport(t *testing.T) {
	h := newHarness(t, wideLimits(100), nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.source.hook = func(call int) (float64, bool, error) {
		if call == 45 {
			cancel()
		}
		return 0, false, nil
	}

	report, err := h.loop.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, risk.StopCancelled, report.StopReason)
	assert.Equal(t, 1, report.Trades)
	assert.Equal(t, "test-session", report.SessionID)
	assert.Len(t, h.journal.finished, 1)
	assert.Equal(t, StateStopped, h.loop.Status().State)
}

func TestPanicStopsSessionWithReport(t *testing.T) {
	h := newHarness(t, wideLimits(100), nil)
	h.source.hook = func(call int) (float64, bool, error) {
		if call == 40 {
			panic("feed exploded")
		}
		return 0, false, nil
	}

	report, err := h.loop.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "feed exploded")
	assert.Equal(t, risk.StopFatal, report.StopReason)
	assert.Equal(t, 1, report.Trades)
	assert.NotEmpty(t, report.Error)
	assert.Len(t, h.journal.finished, 1)
}

func TestLostPriceFeedStopsSession(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"closed", market.ErrStreamClosed},
		{"gave up reconnecting", fmt.Errorf("%w: gave up after 10 reconnect attempts", market.ErrStreamClosed)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, wideLimits(100), nil)
			h.source.hook = func(call int) (float64, bool, error) {
				if call >= 40 {
					return 0, true, tt.err
				}
				return 0, false, nil
			}

			report, err := h.loop.Run(context.Background())
			require.ErrorIs(t, err, market.ErrStreamClosed)
			assert.Equal(t, risk.StopFatal, report.StopReason)
			assert.Equal(t, 1, report.Trades)
			assert.Equal(t, 40, h.source.calls, "no retries against a dead feed")
			assert.Zero(t, h.countSleeps(h.loop.cfg.FailureBackoff))
			assert.Len(t, h.journal.finished, 1)
		})
	}
}

func TestConnectivityFailureIsFatal(t *testing.T) {
	h := newHarness(t, wideLimits(1), &fakeBroker{balErr: errors.New("401 unauthorized")})

	report, err := h.loop.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, risk.StopFatal, report.StopReason)
	assert.Zero(t, h.source.calls)
	assert.Empty(t, h.journal.started)
}

func TestRunTwice(t *testing.T) {
	h := newHarness(t, wideLimits(1), nil)
	_, err := h.loop.Run(context.Background())
	require.NoError(t, err)
	_, err = h.loop.Run(context.Background())
	assert.ErrorIs(t, err, ErrAlreadyStarted)
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(Config{}, Deps{Broker: &fakeBroker{}})
	assert.Error(t, err)
	_, err = New(Config{}, Deps{Source: &patternSource{pattern: []float64{1}}})
	assert.Error(t, err)
}

func TestStatusBeforeRun(t *testing.T) {
	h := newHarness(t, wideLimits(1), nil)
	s := h.loop.Status()
	assert.Equal(t, StateIdle, s.State)
	assert.Equal(t, "test-session", s.SessionID)
	assert.Equal(t, strategy.DefaultInitialThreshold, s.Risk.Threshold)
}
