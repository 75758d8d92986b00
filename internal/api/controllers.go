package api

import (
	"net/http"
	"strconv"

	"reversion-core/internal/events"
	"reversion-core/internal/monitor"
	"reversion-core/internal/performance"
	"reversion-core/internal/persistence"
	"reversion-core/internal/reconciliation"
	"reversion-core/internal/session"

	"github.com/gin-gonic/gin"
)

const (
	defaultTradeLimit = 50
	maxTradeLimit     = 1000
)

// StatusResponse is the body of GET /api/status.
type StatusResponse struct {
	Session session.Status                  `json:"session"`
	Metrics monitor.MetricsSnapshot         `json:"metrics"`
	Journal *persistence.BatchWriterMetrics `json:"journal,omitempty"`
	Balance *reconciliation.Report          `json:"reconciliation,omitempty"`
	Events  map[events.Event]uint64         `json:"events_dropped"`
	Meta    SystemMeta                      `json:"meta"`
}

// TradesResponse is the body of GET /api/trades.
type TradesResponse struct {
	SessionID string              `json:"session_id"`
	Total     int                 `json:"total"`
	Trades    []performance.Trade `json:"trades"`
}

func (s *Server) health(c *gin.Context) {
	state := session.StateIdle
	if s.opts.Session != nil {
		state = s.opts.Session.Status().State
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "session": state})
}

func (s *Server) getStatus(c *gin.Context) {
	if !s.requireSession(c) {
		return
	}
	resp := StatusResponse{
		Session: s.opts.Session.Status(),
		Metrics: s.opts.Metrics.GetSnapshot(),
		Events:  make(map[events.Event]uint64, len(events.All)),
		Meta:    s.opts.Meta,
	}
	if s.opts.Journal != nil {
		m := s.opts.Journal.Metrics()
		resp.Journal = &m
	}
	if s.opts.Reconcile != nil {
		resp.Balance = s.opts.Reconcile.Last()
	}
	if s.opts.Bus != nil {
		for _, e := range events.All {
			resp.Events[e] = s.opts.Bus.Dropped(e)
		}
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) getPerformance(c *gin.Context) {
	if !s.requireSession(c) {
		return
	}
	c.JSON(http.StatusOK, s.opts.Session.Performance())
}

// getTrades returns the newest trades, oldest first. limit defaults to 50.
func (s *Server) getTrades(c *gin.Context) {
	if !s.requireSession(c) {
		return
	}
	limit := defaultTradeLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":  "INVALID_LIMIT",
				"error": "limit must be a positive integer",
			})
			return
		}
		limit = min(n, maxTradeLimit)
	}

	trades := s.opts.Session.Trades()
	total := len(trades)
	if total > limit {
		trades = trades[total-limit:]
	}
	c.JSON(http.StatusOK, TradesResponse{
		SessionID: s.opts.Session.Status().SessionID,
		Total:     total,
		Trades:    trades,
	})
}

func (s *Server) getMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, s.opts.Metrics.GetSnapshot())
}

func (s *Server) requireSession(c *gin.Context) bool {
	if s.opts.Session != nil {
		return true
	}
	c.JSON(http.StatusServiceUnavailable, gin.H{
		"code":  "SESSION_NOT_READY",
		"error": "no trading session attached",
	})
	return false
}
