package reconciliation

import (
	"context"
	"math"
	"sync"
	"time"

	"reversion-core/internal/monitor"
	"reversion-core/internal/session"
	"reversion-core/pkg/logger"

	"github.com/rs/zerolog"
)

// DefaultTolerance is the drift below which balances are considered equal.
const DefaultTolerance = 0.01

// BalanceSource reports the broker's view of the account balance.
type BalanceSource interface {
	GetBalance(ctx context.Context) (float64, error)
}

// Ledger exposes the session's projected balance.
type Ledger interface {
	Status() session.Status
}

// Service periodically compares the session's projected balance with the
// broker balance. It never writes to the session: the projected balance
// stays authoritative for risk decisions and drift is only reported.
type Service struct {
	broker    BalanceSource
	ledger    Ledger
	metrics   *monitor.Metrics
	interval  time.Duration
	tolerance float64
	log       zerolog.Logger

	mu   sync.Mutex
	last *Report
	now  func() time.Time
}

// Report contains reconciliation results
type Report struct {
	Timestamp  time.Time `json:"timestamp"`
	SessionID  string    `json:"session_id"`
	Projected  float64   `json:"projected"`
	Broker     float64   `json:"broker"`
	Difference float64   `json:"difference"` // projected - broker
	HasDrift   bool      `json:"has_drift"`
	Skipped    bool      `json:"skipped"` // session not running
}

// NewService creates a new reconciliation service. tolerance <= 0 means DefaultTolerance.
func NewService(broker BalanceSource, ledger Ledger, metrics *monitor.Metrics, interval time.Duration, tolerance float64) *Service {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	return &Service{
		broker:    broker,
		ledger:    ledger,
		metrics:   metrics,
		interval:  interval,
		tolerance: tolerance,
		log:       logger.Component("reconciliation"),
		now:       time.Now,
	}
}

// Start begins periodic reconciliation. The returned channel closes when
// the loop exits. A non-positive interval disables the loop.
func (s *Service) Start(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	if s.interval <= 0 {
		close(done)
		return done
	}

	ticker := time.NewTicker(s.interval)
	go func() {
		defer close(done)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				report, err := s.Reconcile(ctx)
				if err != nil {
					if ctx.Err() == nil {
						s.log.Warn().Err(err).Msg("reconciliation failed")
					}
					continue
				}
				s.handleReport(report)
			case <-ctx.Done():
				return
			}
		}
	}()

	s.log.Info().Dur("interval", s.interval).Float64("tolerance", s.tolerance).Msg("reconciliation started")
	return done
}

// Reconcile performs one reconciliation check.
func (s *Service) Reconcile(ctx context.Context) (*Report, error) {
	st := s.ledger.Status()
	report := &Report{
		Timestamp: s.now(),
		SessionID: st.SessionID,
		Projected: st.Balance,
	}
	if st.State != session.StateRunning {
		report.Skipped = true
		s.store(report)
		return report, nil
	}

	balance, err := s.broker.GetBalance(ctx)
	if err != nil {
		return nil, err
	}
	report.Broker = balance
	report.Difference = st.Balance - balance
	report.HasDrift = math.Abs(report.Difference) > s.tolerance

	s.metrics.SetBalanceDrift(report.Difference)
	s.store(report)
	return report, nil
}

// Last returns the most recent report, or nil before the first check.
func (s *Service) Last() *Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return nil
	}
	r := *s.last
	return &r
}

func (s *Service) store(r *Report) {
	s.mu.Lock()
	s.last = r
	s.mu.Unlock()
}

func (s *Service) handleReport(r *Report) {
	switch {
	case r.Skipped:
		return
	case r.HasDrift:
		// A contract still open at the broker shows up here as a one-off drift.
		s.log.Warn().
			Str("session_id", r.SessionID).
			Float64("projected", r.Projected).
			Float64("broker", r.Broker).
			Float64("difference", r.Difference).
			Msg("balance drift detected")
	default:
		s.log.Debug().Float64("balance", r.Broker).Msg("reconciliation ok")
	}
}
