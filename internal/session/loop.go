package session

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"reversion-core/internal/broker"
	"reversion-core/internal/events"
	"reversion-core/internal/indicators"
	"reversion-core/internal/market"
	"reversion-core/internal/monitor"
	"reversion-core/internal/performance"
	"reversion-core/internal/risk"
	"reversion-core/internal/strategy"
	"reversion-core/pkg/db"
	"reversion-core/pkg/i18n"
	"reversion-core/pkg/logger"
)

// ErrAlreadyStarted is returned by a second call to Run.
var ErrAlreadyStarted = errors.New("session already started")

// Config is the validated session configuration.
type Config struct {
	SessionID        string
	Symbol           string
	ContractDuration int
	Demo             bool
	DryRun           bool
	BaseStake        float64
	Limits           risk.Limits
	Strategy         strategy.Params

	IdleInterval    time.Duration
	TradeInterval   time.Duration
	FailureBackoff  time.Duration
	SummaryInterval time.Duration
	RecentTrades    int
}

func (c Config) withDefaults() Config {
	if c.SessionID == "" {
		c.SessionID = uuid.NewString()
	}
	if c.ContractDuration <= 0 {
		c.ContractDuration = 4
	}
	if c.IdleInterval <= 0 {
		c.IdleInterval = time.Second
	}
	if c.TradeInterval <= 0 {
		c.TradeInterval = 2 * time.Second
	}
	if c.FailureBackoff <= 0 {
		c.FailureBackoff = 3 * time.Second
	}
	if c.SummaryInterval <= 0 {
		c.SummaryInterval = 30 * time.Second
	}
	if c.RecentTrades <= 0 {
		c.RecentTrades = 5
	}
	return c
}

// Journal persists the session record. Nothing is ever read back.
type Journal interface {
	StartSession(ctx context.Context, s db.Session) error
	RecordTrade(t db.Trade) error
	FinishSession(ctx context.Context, id string, r db.SessionResult) error
}

// Deps are the session collaborators. Source and Broker are required.
type Deps struct {
	Source  market.Source
	Broker  broker.Client
	Bus     *events.Bus
	Metrics *monitor.Metrics
	Journal Journal
}

// Loop runs one trading session: fetch price, evaluate, size, trade, record,
// adapt, check stop conditions. Cycles run sequentially on the caller's goroutine.
type Loop struct {
	cfg  Config
	deps Deps
	log  zerolog.Logger

	gen     *strategy.Generator
	risk    *risk.Controller
	tracker *performance.Tracker
	buf     *indicators.PriceBuffer

	// Loop-goroutine state.
	totals      risk.SessionTotals
	balance     float64
	initial     float64
	startedAt   time.Time
	lastSummary time.Time
	cycles      int64

	mu      sync.RWMutex
	started bool
	status  Status

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// New wires a session loop.
func New(cfg Config, deps Deps) (*Loop, error) {
	if deps.Source == nil {
		return nil, errors.New("session: price source is required")
	}
	if deps.Broker == nil {
		return nil, errors.New("session: broker is required")
	}
	cfg = cfg.withDefaults()
	gen := strategy.NewGenerator(cfg.Strategy)
	cfg.Strategy = gen.Params()

	l := &Loop{
		cfg:     cfg,
		deps:    deps,
		log:     logger.Component("session").With().Str("session_id", cfg.SessionID).Logger(),
		gen:     gen,
		risk:    risk.NewController(cfg.BaseStake, cfg.Strategy.InitialThreshold),
		tracker: performance.NewTracker(),
		buf:     indicators.NewPriceBuffer(cfg.Strategy.BufferCapacity),
		now:     time.Now,
		sleep:   sleepContext,
	}
	l.status = Status{
		SessionID: cfg.SessionID,
		State:     StateIdle,
		Symbol:    cfg.Symbol,
		Demo:      cfg.Demo,
		DryRun:    cfg.DryRun,
		Limits:    cfg.Limits,
		Risk:      l.risk.State(),
	}
	return l, nil
}

// ID returns the session identifier.
func (l *Loop) ID() string { return l.cfg.SessionID }

// Status returns the latest published snapshot.
func (l *Loop) Status() Status {
	l.mu.RLock()
	defer l.mu.RUnlock()
	s := l.status
	s.Recent = append([]performance.Trade(nil), s.Recent...)
	return s
}

// Trades returns the full trade history.
func (l *Loop) Trades() []performance.Trade { return l.tracker.Trades() }

// Performance returns the tracker report.
func (l *Loop) Performance() performance.Report { return l.tracker.Performance() }

type cycleOutcome int

const (
	outcomeIdle cycleOutcome = iota
	outcomeTrade
	outcomeFailure
)

// Run executes cycles until a stop condition, cancellation or a fatal error.
// A final report is returned whenever the session got past its connectivity check.
func (l *Loop) Run(ctx context.Context) (FinalReport, error) {
	l.mu.Lock()
	if l.started {
		l.mu.Unlock()
		return FinalReport{}, ErrAlreadyStarted
	}
	l.started = true
	l.mu.Unlock()

	balance, err := l.timedBalance(ctx)
	if err != nil {
		l.log.Error().Msgf(i18n.Get("BrokerConnectFailed"), err)
		return FinalReport{SessionID: l.cfg.SessionID, StopReason: risk.StopFatal, Error: err.Error()},
			fmt.Errorf("broker connectivity check: %w", err)
	}
	l.log.Info().Msgf(i18n.Get("BrokerConnected"), balance)

	l.initial, l.balance = balance, balance
	l.startedAt = l.now()
	l.lastSummary = l.startedAt
	l.setStarted()

	if l.deps.Journal != nil {
		if err := l.deps.Journal.StartSession(ctx, l.sessionRow()); err != nil {
			l.log.Warn().Msgf(i18n.Get("JournalWriteFailed"), err)
		}
	}
	l.log.Info().Msgf(i18n.Get("SessionStarted"), l.cfg.SessionID, balance)

	var (
		reason   risk.StopReason
		fatalErr error
	)
	for reason == risk.StopNone {
		if ctx.Err() != nil {
			reason = risk.StopCancelled
			break
		}

		outcome, stop, err := l.safeCycle(ctx)
		if err != nil {
			if errors.Is(err, market.ErrStreamClosed) {
				l.log.Error().Msgf(i18n.Get("PriceFeedLost"), err)
			} else {
				l.log.Error().Msgf(i18n.Get("CyclePanic"), err)
			}
			reason, fatalErr = risk.StopFatal, err
			l.recordError(err)
			break
		}
		if stop != risk.StopNone {
			reason = stop
			break
		}

		l.maybeSummary()

		if err := l.sleep(ctx, l.pace(outcome)); err != nil {
			reason = risk.StopCancelled
		}
	}

	report := l.finish(reason, fatalErr)
	return report, fatalErr
}

func (l *Loop) pace(o cycleOutcome) time.Duration {
	switch o {
	case outcomeTrade:
		return l.cfg.TradeInterval
	case outcomeFailure:
		return l.cfg.FailureBackoff
	}
	return l.cfg.IdleInterval
}

// safeCycle converts a panic inside a cycle into an error.
func (l *Loop) safeCycle(ctx context.Context) (outcome cycleOutcome, stop risk.StopReason, err error) {
	defer func() {
		if r := recover(); r != nil {
			l.log.Debug().Bytes("stack", debug.Stack()).Msg("cycle panic stack")
			err = fmt.Errorf("panic in cycle: %v", r)
		}
	}()
	return l.cycle(ctx)
}

// cycle runs one iteration. Collaborator failures leave risk and performance state untouched.
func (l *Loop) cycle(ctx context.Context) (cycleOutcome, risk.StopReason, error) {
	start := l.now()
	l.cycles++

	price, err := l.fetchPrice(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return outcomeIdle, risk.StopCancelled, nil
		}
		if errors.Is(err, market.ErrStreamClosed) {
			// The feed already exhausted its own reconnects.
			return outcomeIdle, risk.StopFatal, err
		}
		l.log.Warn().Msgf(i18n.Get("PriceFetchFailed"), err)
		l.deps.Metrics.Failure(monitor.OpPrice)
		l.recordError(err)
		return outcomeFailure, risk.StopNone, nil
	}
	l.buf.Push(price)

	threshold := l.risk.Threshold()
	decision := l.gen.Evaluate(l.buf, threshold)
	stake := l.risk.Stake(l.balance)

	l.publish(events.EventCycle, events.CyclePayload{
		Seq:       l.cycles,
		Price:     price,
		Signal:    decision.Signal.String(),
		Ready:     decision.Ready,
		ZScore:    decision.Snapshot.ZScore,
		Slope:     decision.Snapshot.Slope,
		Threshold: threshold,
		Stake:     stake,
	})

	outcome := outcomeIdle
	if decision.Signal.Actionable() && l.cfg.Limits.AllowsTrade(l.totals) {
		l.log.Info().Msgf(i18n.Get("SignalEmitted"), decision.Signal, decision.Snapshot.ZScore, decision.Snapshot.Slope, threshold)
		if err := l.trade(ctx, decision, stake); err != nil {
			if ctx.Err() != nil {
				return outcomeIdle, risk.StopCancelled, nil
			}
			l.recordError(err)
			outcome = outcomeFailure
		} else {
			outcome = outcomeTrade
		}
	}

	l.deps.Metrics.ObserveCycle(decision.Signal.String(), l.now().Sub(start))

	stop := l.cfg.Limits.CheckStop(l.totals)
	l.logStop(stop)
	l.publishStatus(price, decision, stop)
	return outcome, stop, nil
}

func (l *Loop) fetchPrice(ctx context.Context) (float64, error) {
	t := monitor.NewTimer(func(d time.Duration) { l.deps.Metrics.ObserveBroker(monitor.OpPrice, d) })
	price, err := l.deps.Source.NextPrice(ctx)
	t.Stop()
	if err != nil {
		return 0, err
	}
	if err := market.CheckFinite(price); err != nil {
		return 0, err
	}
	return price, nil
}

// trade places, settles and records one contract.
func (l *Loop) trade(ctx context.Context, d strategy.Decision, stake float64) error {
	stake = broker.RoundMoney(stake)
	req := broker.Request{
		Symbol:       l.cfg.Symbol,
		Stake:        stake,
		Duration:     l.cfg.ContractDuration,
		DurationUnit: broker.DurationTicks,
		Direction:    broker.Direction(d.Signal),
	}
	l.log.Info().Msgf(i18n.Get("TradeExecuting"), d.Signal, stake)

	t := monitor.NewTimer(func(dur time.Duration) { l.deps.Metrics.ObserveBroker(monitor.OpPlace, dur) })
	handle, err := l.deps.Broker.PlaceTrade(ctx, req)
	t.Stop()
	if err != nil {
		l.log.Warn().Msgf(i18n.Get("TradeFailed"), err)
		l.deps.Metrics.Failure(monitor.OpPlace)
		return err
	}
	// The contract is live from here; it counts toward MaxTrades even if
	// its result never arrives.
	l.totals = l.totals.Placed()

	t = monitor.NewTimer(func(dur time.Duration) { l.deps.Metrics.ObserveBroker(monitor.OpSettle, dur) })
	settlement, err := l.deps.Broker.Settle(ctx, handle)
	t.Stop()
	if err != nil {
		l.log.Warn().Str("contract_id", handle.ContractID).Msgf(i18n.Get("SettleFailed"), err)
		l.deps.Metrics.Failure(monitor.OpSettle)
		return err
	}

	rec := l.tracker.Record(string(d.Signal), stake, settlement.Profit)
	st := l.tracker.State()
	before, after := l.risk.OnOutcome(st.ConsecutiveWins, st.ConsecutiveLosses)
	l.totals = l.totals.Add(settlement.Profit)
	l.balance += settlement.Profit

	if before != after {
		l.log.Info().Msgf(i18n.Get("ThresholdAdjusted"), before, after)
	}
	l.log.Info().
		Str("contract_id", handle.ContractID).
		Float64("daily_pl", l.totals.Net()).
		Msgf(i18n.Get("TradeResult"), rec.Result, rec.Seq, rec.Direction, rec.Stake, rec.Profit, l.balance)
	if st.ConsecutiveLosses >= 2 {
		l.log.Info().Msgf(i18n.Get("StakeReduced"), st.ConsecutiveLosses, l.risk.Stake(l.balance))
	}

	l.deps.Metrics.TradeSettled(rec.Direction, string(rec.Result))
	l.journalTrade(rec, handle.ContractID, after, d.Snapshot.ZScore)
	l.publish(events.EventTrade, events.TradePayload{
		Trade:             rec,
		Balance:           l.balance,
		Threshold:         after,
		ConsecutiveWins:   st.ConsecutiveWins,
		ConsecutiveLosses: st.ConsecutiveLosses,
	})
	return nil
}

func (l *Loop) journalTrade(rec performance.Trade, contractID string, threshold, z float64) {
	if l.deps.Journal == nil {
		return
	}
	err := l.deps.Journal.RecordTrade(db.Trade{
		ID:         rec.ID,
		SessionID:  l.cfg.SessionID,
		Seq:        rec.Seq,
		Direction:  rec.Direction,
		Stake:      rec.Stake,
		Profit:     rec.Profit,
		Result:     string(rec.Result),
		Threshold:  threshold,
		ZScore:     z,
		ContractID: contractID,
		CreatedAt:  rec.Time,
	})
	// Drops are counted by the journal's error hook.
	if err != nil {
		l.log.Warn().Msgf(i18n.Get("JournalWriteFailed"), err)
	}
}

func (l *Loop) timedBalance(ctx context.Context) (float64, error) {
	t := monitor.NewTimer(func(d time.Duration) { l.deps.Metrics.ObserveBroker(monitor.OpBalance, d) })
	defer t.Stop()
	return l.deps.Broker.GetBalance(ctx)
}

func (l *Loop) logStop(stop risk.StopReason) {
	switch stop {
	case risk.StopProfitTarget:
		l.log.Info().Msgf(i18n.Get("ProfitTargetHit"), l.totals.Profit)
	case risk.StopLossLimit:
		l.log.Warn().Msgf(i18n.Get("LossLimitHit"), l.totals.Loss)
	case risk.StopMaxTrades:
		l.log.Info().Msgf(i18n.Get("MaxTradesHit"), l.cfg.Limits.MaxTrades)
	}
}

func (l *Loop) maybeSummary() {
	now := l.now()
	if now.Sub(l.lastSummary) < l.cfg.SummaryInterval {
		return
	}
	l.lastSummary = now
	l.logSummary()
}

func (l *Loop) logSummary() {
	p := l.tracker.Performance()
	l.log.Info().Msgf(i18n.Get("PeriodicSummary"), p.TotalTrades, p.WinRate, p.TotalProfit, p.MaxDrawdown)
	for _, tr := range l.tracker.Recent(l.cfg.RecentTrades) {
		l.log.Info().
			Str("time", tr.Time.Format("15:04:05")).
			Str("direction", tr.Direction).
			Float64("stake", tr.Stake).
			Float64("profit", tr.Profit).
			Str("result", string(tr.Result)).
			Msg("recent trade")
	}
}

// finish moves the session to STOPPED and produces the final report.
func (l *Loop) finish(reason risk.StopReason, fatalErr error) FinalReport {
	end := l.now()
	perf := l.tracker.Performance()
	dur := end.Sub(l.startedAt)

	report := FinalReport{
		SessionID:       l.cfg.SessionID,
		StopReason:      reason,
		StartedAt:       l.startedAt,
		EndedAt:         end,
		Duration:        dur,
		Trades:          perf.TotalTrades,
		TradesPerHour:   tradesPerHour(perf.TotalTrades, dur),
		InitialBalance:  l.initial,
		FinalBalance:    l.balance,
		BalanceChange:   l.balance - l.initial,
		Totals:          l.totals,
		Risk:            l.risk.State(),
		Performance:     perf,
		Recent:          l.tracker.Recent(l.cfg.RecentTrades),
		Recommendations: Recommend(perf),
	}
	if fatalErr != nil {
		report.Error = fatalErr.Error()
	}

	l.mu.Lock()
	l.status.State = StateStopped
	l.status.StopReason = reason
	l.status.UpdatedAt = end
	l.mu.Unlock()

	if reason == risk.StopCancelled {
		l.log.Info().Msg(i18n.Get("ManualStop"))
	}
	l.log.Info().Msgf(i18n.Get("SessionStopped"), reason)
	l.logSummary()
	l.log.Info().Msgf(i18n.Get("FinalReport"), dur.Minutes(), report.Trades, report.TradesPerHour,
		report.InitialBalance, report.FinalBalance, report.BalanceChange)
	for _, r := range report.Recommendations {
		l.log.Info().Msg(i18n.Get(string(r)))
	}

	l.deps.Metrics.Stopped(string(reason))
	if l.deps.Journal != nil {
		// The session context may already be cancelled.
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := l.deps.Journal.FinishSession(ctx, l.cfg.SessionID, db.SessionResult{
			StopReason:   string(reason),
			FinalBalance: l.balance,
			TotalProfit:  perf.TotalProfit,
			MaxDrawdown:  perf.MaxDrawdown,
			EndedAt:      end,
		})
		if err != nil {
			l.log.Warn().Msgf(i18n.Get("JournalWriteFailed"), err)
		}
	}
	l.publish(events.EventStopped, events.StoppedPayload{
		SessionID:    l.cfg.SessionID,
		Reason:       string(reason),
		Trades:       perf.TotalTrades,
		TotalProfit:  perf.TotalProfit,
		FinalBalance: l.balance,
	})
	return report
}

func (l *Loop) sessionRow() db.Session {
	return db.Session{
		ID:                l.cfg.SessionID,
		Symbol:            l.cfg.Symbol,
		Demo:              l.cfg.Demo,
		DryRun:            l.cfg.DryRun,
		BaseStake:         l.cfg.BaseStake,
		DailyProfitTarget: l.cfg.Limits.DailyProfitTarget,
		DailyLossLimit:    l.cfg.Limits.DailyLossLimit,
		MaxTrades:         l.cfg.Limits.MaxTrades,
		InitialBalance:    l.initial,
		StartedAt:         l.startedAt,
	}
}

func (l *Loop) setStarted() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.status.State = StateRunning
	l.status.StartedAt = l.startedAt
	l.status.UpdatedAt = l.startedAt
	l.status.InitialBalance = l.initial
	l.status.Balance = l.balance
	l.status.NextStake = l.risk.Stake(l.balance)
}

func (l *Loop) publishStatus(price float64, d strategy.Decision, stop risk.StopReason) {
	perf := l.tracker.Performance()
	rs := l.risk.State()
	next := l.risk.Stake(l.balance)

	l.mu.Lock()
	l.status.UpdatedAt = l.now()
	l.status.Cycles = l.cycles
	l.status.LastPrice = price
	l.status.LastDecision = d
	l.status.NextStake = next
	l.status.Balance = l.balance
	l.status.Totals = l.totals
	l.status.Risk = rs
	l.status.Performance = perf
	l.status.StopReason = stop
	l.status.Recent = l.tracker.Recent(l.cfg.RecentTrades)
	l.mu.Unlock()

	l.deps.Metrics.SetGauges(monitor.Gauges{
		Balance:           l.balance,
		Threshold:         rs.Threshold,
		Stake:             next,
		TotalProfit:       perf.TotalProfit,
		MaxDrawdown:       perf.MaxDrawdown,
		WinRate:           perf.WinRate,
		ConsecutiveLosses: rs.ConsecutiveLosses,
	})
}

func (l *Loop) recordError(err error) {
	l.mu.Lock()
	l.status.LastError = err.Error()
	l.mu.Unlock()
}

func (l *Loop) publish(e events.Event, payload any) {
	if l.deps.Bus != nil {
		l.deps.Bus.Publish(e, payload)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
