package monitor

import (
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Broker operations observed by ObserveBroker.
const (
	OpBalance = "balance"
	OpPlace   = "place"
	OpSettle  = "settle"
	OpPrice   = "price"
)

// Metrics holds the Prometheus collectors and in-process latency windows
// for one trading core. All methods are safe on a nil receiver.
type Metrics struct {
	registry *prometheus.Registry

	CyclesTotal      prometheus.Counter
	SignalsTotal     *prometheus.CounterVec
	TradesTotal      *prometheus.CounterVec
	FailuresTotal    *prometheus.CounterVec
	StopsTotal       *prometheus.CounterVec
	JournalDropped   prometheus.Counter
	Balance          prometheus.Gauge
	Threshold        prometheus.Gauge
	Stake            prometheus.Gauge
	TotalProfit      prometheus.Gauge
	MaxDrawdown      prometheus.Gauge
	WinRate          prometheus.Gauge
	ConsecutiveLoss  prometheus.Gauge
	CycleDuration    prometheus.Histogram
	BrokerLatencySec *prometheus.HistogramVec
	BalanceDrift     prometheus.Gauge
	APIRequests      *prometheus.CounterVec
	APILatencySec    prometheus.Histogram

	// Sliding windows rendered by /api/status.
	BrokerLatency *LatencyHistogram
	CycleLatency  *LatencyHistogram

	cycles  uint64
	trades  uint64
	signals uint64
	errors  uint64
	started time.Time
}

// NewMetrics registers every collector on a private registry.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "reversion"
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		CyclesTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "cycles_total",
			Help:      "Total number of trading cycles evaluated",
		}),
		SignalsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "strategy",
			Name:      "signals_total",
			Help:      "Signals produced by the generator",
		}, []string{"signal"}),
		TradesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "trades_total",
			Help:      "Settled trades by direction and result",
		}, []string{"direction", "result"}),
		FailuresTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "collaborator_failures_total",
			Help:      "Aborted cycles by failing operation",
		}, []string{"op"}),
		StopsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "stops_total",
			Help:      "Sessions stopped by reason",
		}, []string{"reason"}),
		JournalDropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "journal",
			Name:      "dropped_total",
			Help:      "Trade records the journal failed to persist",
		}),
		Balance: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "account",
			Name:      "balance",
			Help:      "Projected account balance",
		}),
		Threshold: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "risk",
			Name:      "z_threshold",
			Help:      "Current z-score entry threshold",
		}),
		Stake: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "risk",
			Name:      "stake",
			Help:      "Stake the next trade would use",
		}),
		TotalProfit: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "performance",
			Name:      "total_profit",
			Help:      "Cumulative session profit",
		}),
		MaxDrawdown: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "performance",
			Name:      "max_drawdown",
			Help:      "Largest peak-to-trough decline of cumulative profit",
		}),
		WinRate: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "performance",
			Name:      "win_rate_percent",
			Help:      "Percentage of winning trades",
		}),
		ConsecutiveLoss: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "risk",
			Name:      "consecutive_losses",
			Help:      "Current losing streak",
		}),
		CycleDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "cycle_duration_seconds",
			Help:      "Wall time of one cycle excluding pacing",
			Buckets:   prometheus.DefBuckets,
		}),
		BrokerLatencySec: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "broker",
			Name:      "call_latency_seconds",
			Help:      "Collaborator call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
		BalanceDrift: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "balance_drift",
			Help:      "Projected balance minus broker-reported balance at the last reconciliation",
		}),
		APIRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "requests_total",
			Help:      "Reporting API requests by method and status class",
		}, []string{"method", "class"}),
		APILatencySec: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "request_duration_seconds",
			Help:      "Reporting API request latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}),

		BrokerLatency: NewLatencyHistogram(1000),
		CycleLatency:  NewLatencyHistogram(1000),
		started:       time.Now(),
	}
}

// Handler serves the private registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveCycle records one evaluated cycle and its signal.
func (m *Metrics) ObserveCycle(signal string, d time.Duration) {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.cycles, 1)
	m.CyclesTotal.Inc()
	m.CycleDuration.Observe(d.Seconds())
	m.CycleLatency.RecordDuration(d)
	if signal != "" {
		m.SignalsTotal.WithLabelValues(signal).Inc()
		if signal != "WAIT" {
			atomic.AddUint64(&m.signals, 1)
		}
	}
}

// ObserveBroker records the latency of a collaborator call.
func (m *Metrics) ObserveBroker(op string, d time.Duration) {
	if m == nil {
		return
	}
	m.BrokerLatencySec.WithLabelValues(op).Observe(d.Seconds())
	m.BrokerLatency.RecordDuration(d)
}

// Failure counts an aborted cycle.
func (m *Metrics) Failure(op string) {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.errors, 1)
	m.FailuresTotal.WithLabelValues(op).Inc()
}

// TradeSettled counts a settled trade.
func (m *Metrics) TradeSettled(direction, result string) {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.trades, 1)
	m.TradesTotal.WithLabelValues(direction, result).Inc()
}

// Stopped counts a terminal session state.
func (m *Metrics) Stopped(reason string) {
	if m == nil {
		return
	}
	m.StopsTotal.WithLabelValues(reason).Inc()
}

// SetBalanceDrift records the latest reconciliation difference.
func (m *Metrics) SetBalanceDrift(v float64) {
	if m == nil {
		return
	}
	m.BalanceDrift.Set(v)
}

// ObserveAPI records one served reporting request.
func (m *Metrics) ObserveAPI(method string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.APIRequests.WithLabelValues(method, statusClass(status)).Inc()
	m.APILatencySec.Observe(d.Seconds())
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}

// JournalDrops counts n trade records the journal failed to persist.
func (m *Metrics) JournalDrops(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.JournalDropped.Add(float64(n))
}

// Gauges carries the values mirrored into gauges after each cycle.
type Gauges struct {
	Balance           float64
	Threshold         float64
	Stake             float64
	TotalProfit       float64
	MaxDrawdown       float64
	WinRate           float64
	ConsecutiveLosses int
}

// SetGauges updates every session gauge.
func (m *Metrics) SetGauges(g Gauges) {
	if m == nil {
		return
	}
	m.Balance.Set(g.Balance)
	m.Threshold.Set(g.Threshold)
	m.Stake.Set(g.Stake)
	m.TotalProfit.Set(g.TotalProfit)
	m.MaxDrawdown.Set(g.MaxDrawdown)
	m.WinRate.Set(g.WinRate)
	m.ConsecutiveLoss.Set(float64(g.ConsecutiveLosses))
}

// MetricsSnapshot is a point-in-time view for JSON endpoints.
type MetricsSnapshot struct {
	BrokerLatency  LatencyStats `json:"broker_latency"`
	CycleLatency   LatencyStats `json:"cycle_latency"`
	Cycles         uint64       `json:"cycles"`
	Trades         uint64       `json:"trades"`
	Signals        uint64       `json:"signals"`
	Errors         uint64       `json:"errors"`
	GoroutineCount int          `json:"goroutine_count"`
	HeapAlloc      uint64       `json:"heap_alloc_bytes"`
	Uptime         string       `json:"uptime"`
	Timestamp      time.Time    `json:"timestamp"`
}

// GetSnapshot returns a point-in-time metrics snapshot.
func (m *Metrics) GetSnapshot() MetricsSnapshot {
	if m == nil {
		return MetricsSnapshot{Timestamp: time.Now()}
	}
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	return MetricsSnapshot{
		BrokerLatency:  m.BrokerLatency.Stats(),
		CycleLatency:   m.CycleLatency.Stats(),
		Cycles:         atomic.LoadUint64(&m.cycles),
		Trades:         atomic.LoadUint64(&m.trades),
		Signals:        atomic.LoadUint64(&m.signals),
		Errors:         atomic.LoadUint64(&m.errors),
		GoroutineCount: runtime.NumGoroutine(),
		HeapAlloc:      memStats.HeapAlloc,
		Uptime:         time.Since(m.started).Truncate(time.Second).String(),
		Timestamp:      time.Now(),
	}
}

// Timer measures an operation and records it on Stop.
type Timer struct {
	start time.Time
	done  func(time.Duration)
}

// NewTimer starts a timer; done receives the elapsed time.
func NewTimer(done func(time.Duration)) *Timer {
	return &Timer{start: time.Now(), done: done}
}

// Stop records and returns the elapsed time.
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	if t.done != nil {
		t.done(elapsed)
	}
	return elapsed
}
