package api

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"reversion-core/internal/events"
	"reversion-core/internal/monitor"
	"reversion-core/internal/performance"
	"reversion-core/internal/persistence"
	"reversion-core/internal/reconciliation"
	"reversion-core/internal/session"
	"reversion-core/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// SessionView is the read side of a running session.
type SessionView interface {
	Status() session.Status
	Trades() []performance.Trade
	Performance() performance.Report
}

// JournalStats reports the trade journal's write pipeline.
type JournalStats interface {
	Metrics() persistence.BatchWriterMetrics
}

// Reconciler reports the latest balance reconciliation.
type Reconciler interface {
	Last() *reconciliation.Report
}

// SystemMeta describes runtime status exposed to readers.
type SystemMeta struct {
	Version     string `json:"version"`
	Broker      string `json:"broker"`
	UseMockFeed bool   `json:"use_mock_feed"`
}

// Options configures NewServer.
type Options struct {
	Session   SessionView
	Bus       *events.Bus
	Metrics   *monitor.Metrics
	Journal   JournalStats
	Reconcile Reconciler
	JWTSecret string
	Meta      SystemMeta
	// Per-IP request budget; zero means 20 rps with a burst of 50.
	RateLimit float64
	Burst     int
}

// Server wires HTTP endpoints around a trading session.
type Server struct {
	Router *gin.Engine
	opts   Options
	log    zerolog.Logger

	closeOnce sync.Once
	closing   chan struct{}
}

func NewServer(opts Options) *Server {
	if opts.RateLimit <= 0 {
		opts.RateLimit = 20
	}
	if opts.Burst <= 0 {
		opts.Burst = 50
	}

	log := logger.Component("api")
	r := gin.New()

	// Middleware stack (order matters!)
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(RequestLogger(log, opts.Metrics))
	r.Use(RateLimitMiddleware(opts.RateLimit, opts.Burst, log))
	r.Use(CORSMiddleware())

	s := &Server{
		Router:  r,
		opts:    opts,
		log:     log,
		closing: make(chan struct{}),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.Router.GET("/health", s.health)
	s.Router.GET("/metrics", gin.WrapH(s.opts.Metrics.Handler()))

	protected := s.Router.Group("")
	protected.Use(AuthMiddleware(s.opts.JWTSecret))
	{
		protected.GET("/ws", s.websocket)

		api := protected.Group("/api")
		api.GET("/status", s.getStatus)
		api.GET("/performance", s.getPerformance)
		api.GET("/trades", s.getTrades)
		api.GET("/metrics", s.getMetrics)
	}
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		s.Close()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	// Hijacked websocket connections are not tracked by Shutdown.
	s.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Close ends every open websocket stream. Safe to call more than once.
func (s *Server) Close() {
	s.closeOnce.Do(func() { close(s.closing) })
}
