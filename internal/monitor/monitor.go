package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"reversion-core/internal/events"
	"reversion-core/pkg/logger"
)

// DefaultLossStreakAlert is the losing streak that triggers an alert.
const DefaultLossStreakAlert = 3

// Monitor watches session events and emits alerts.
type Monitor struct {
	Bus             *events.Bus
	Sink            AlertSink
	LossStreakAlert int
	now             func() time.Time
}

// Start subscribes to trade and stop events until ctx is done.
// The returned WaitGroup completes once both watchers exit.
func (m *Monitor) Start(ctx context.Context) *sync.WaitGroup {
	var wg sync.WaitGroup
	if m.Bus == nil || m.Sink == nil {
		logger.Warn().Msg("monitor not fully configured; skipping")
		return &wg
	}
	if m.LossStreakAlert <= 0 {
		m.LossStreakAlert = DefaultLossStreakAlert
	}
	if m.now == nil {
		m.now = time.Now
	}

	trades, unsubTrades := m.Bus.Subscribe(events.EventTrade, 50)
	stops, unsubStops := m.Bus.Subscribe(events.EventStopped, 4)
	wg.Add(2)
	go m.watch(ctx, &wg, trades, unsubTrades)
	go m.watch(ctx, &wg, stops, unsubStops)
	return &wg
}

func (m *Monitor) watch(ctx context.Context, wg *sync.WaitGroup, stream <-chan any, unsub func()) {
	defer wg.Done()
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			// Deliver what was already published, then stop.
			for {
				select {
				case msg, ok := <-stream:
					if !ok {
						return
					}
					m.handle(msg)
				default:
					return
				}
			}
		case msg, ok := <-stream:
			if !ok {
				return
			}
			m.handle(msg)
		}
	}
}

func (m *Monitor) handle(msg any) {
	if text, fire := m.evaluate(msg); fire {
		if err := m.Sink.Send(m.format(text)); err != nil {
			logger.Error().Err(err).Msg("alert delivery failed")
		}
	}
}

// evaluate applies the alert rules to a bus payload.
func (m *Monitor) evaluate(msg any) (string, bool) {
	switch p := msg.(type) {
	case events.TradePayload:
		if p.ConsecutiveLosses >= m.LossStreakAlert {
			return fmt.Sprintf("%d consecutive losses (balance %.2f, threshold %.3f)",
				p.ConsecutiveLosses, p.Balance, p.Threshold), true
		}
	case events.StoppedPayload:
		switch p.Reason {
		case "loss_limit", "fatal_error":
			return fmt.Sprintf("session %s stopped: %s (P/L %+.2f)", p.SessionID, p.Reason, p.TotalProfit), true
		}
	}
	return "", false
}

func (m *Monitor) format(text string) string {
	return "[" + m.now().Format(time.RFC3339) + "] " + text
}
