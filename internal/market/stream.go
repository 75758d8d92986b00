package market

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"reversion-core/pkg/logger"
)

// Tick is one quote from the broker's tick stream.
type Tick struct {
	Symbol string
	Quote  float64
	Epoch  int64
}

// Reconnect defaults for TickStream.
const (
	DefaultReconnectDelay       = 500 * time.Millisecond
	DefaultMaxReconnectDelay    = 30 * time.Second
	DefaultMaxReconnectAttempts = 10
)

// TickStream subscribes to a broker websocket and serves the newest tick.
// A dropped connection is redialled with exponential backoff; the stream
// only reports ErrStreamClosed after Close, ctx cancellation or once
// MaxReconnectAttempts consecutive redials have failed.
type TickStream struct {
	URL    string
	Symbol string

	ReconnectDelay       time.Duration
	MaxReconnectDelay    time.Duration
	MaxReconnectAttempts int // <= 0 retries forever

	dialer     *websocket.Dialer
	log        zerolog.Logger
	reconnects atomic.Int64

	mu     sync.Mutex
	conn   *websocket.Conn
	ticks  chan Tick
	done   chan struct{}
	err    error
	once   sync.Once
	recvAt time.Time
}

// NewTickStream builds a stream client; Start must be called before NextPrice.
func NewTickStream(url, symbol string) *TickStream {
	return &TickStream{
		URL:                  url,
		Symbol:               symbol,
		ReconnectDelay:       DefaultReconnectDelay,
		MaxReconnectDelay:    DefaultMaxReconnectDelay,
		MaxReconnectAttempts: DefaultMaxReconnectAttempts,
		dialer:               websocket.DefaultDialer,
		log:                  logger.Component("tick-stream"),
		ticks:                make(chan Tick, 1),
		done:                 make(chan struct{}),
	}
}

type tickRequest struct {
	Ticks     string `json:"ticks"`
	Subscribe int    `json:"subscribe"`
}

type tickMessage struct {
	MsgType string `json:"msg_type"`
	Tick    *struct {
		Symbol string          `json:"symbol"`
		Quote  json.RawMessage `json:"quote"`
		Epoch  int64           `json:"epoch"`
	} `json:"tick"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Start dials the endpoint, sends the subscription and begins reading.
// Only the first dial is reported here; later drops are redialled in the background.
func (s *TickStream) Start(ctx context.Context) error {
	conn, err := s.connect(ctx)
	if err != nil {
		return err
	}
	if !s.attach(conn) {
		_ = conn.Close()
		return ErrStreamClosed
	}

	go func() {
		<-ctx.Done()
		s.Close()
	}()
	go s.run(ctx, conn)
	return nil
}

// Reconnects reports how many times the stream has been redialled.
func (s *TickStream) Reconnects() int { return int(s.reconnects.Load()) }

func (s *TickStream) connect(ctx context.Context) (*websocket.Conn, error) {
	conn, _, err := s.dialer.DialContext(ctx, s.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial tick stream: %w", err)
	}
	if err := conn.WriteJSON(tickRequest{Ticks: s.Symbol, Subscribe: 1}); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("subscribe ticks %s: %w", s.Symbol, err)
	}
	return conn, nil
}

// attach makes conn current unless the stream has already been closed.
func (s *TickStream) attach(conn *websocket.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-s.done:
		return false
	default:
	}
	s.conn = conn
	return true
}

func (s *TickStream) closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

func (s *TickStream) run(ctx context.Context, conn *websocket.Conn) {
	for {
		err := s.readLoop(conn)
		_ = conn.Close()
		if s.closed() {
			return
		}
		s.log.Warn().Err(err).Msg("tick stream disconnected")

		conn, err = s.redial(ctx)
		if err != nil {
			if !s.closed() {
				s.log.Error().Err(err).Msg("tick stream lost")
			}
			s.shutdown(err)
			return
		}
	}
}

// redial retries with a doubling delay capped at MaxReconnectDelay.
func (s *TickStream) redial(ctx context.Context) (*websocket.Conn, error) {
	delay := s.ReconnectDelay
	if delay <= 0 {
		delay = DefaultReconnectDelay
	}
	maxDelay := max(s.MaxReconnectDelay, delay)

	var lastErr error
	for attempt := 1; s.MaxReconnectAttempts <= 0 || attempt <= s.MaxReconnectAttempts; attempt++ {
		timer := time.NewTimer(delay)
		select {
		case <-s.done:
			timer.Stop()
			return nil, ErrStreamClosed
		case <-timer.C:
		}

		conn, err := s.connect(ctx)
		if err == nil {
			if !s.attach(conn) {
				_ = conn.Close()
				return nil, ErrStreamClosed
			}
			s.reconnects.Add(1)
			s.log.Info().Int("attempt", attempt).Msg("tick stream reconnected")
			return conn, nil
		}
		lastErr = err
		delay = min(delay*2, maxDelay)
		s.log.Warn().Err(err).Int("attempt", attempt).Dur("retry_in", delay).Msg("tick stream reconnect failed")
	}
	return nil, fmt.Errorf("gave up after %d reconnect attempts: %w", s.MaxReconnectAttempts, lastErr)
}

// readLoop returns when conn fails. Unparseable messages are skipped.
func (s *TickStream) readLoop(conn *websocket.Conn) error {
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		tick, err := parseTick(msg)
		if err != nil {
			s.log.Warn().Err(err).Msg("tick stream parse error")
			continue
		}
		if tick == nil {
			continue
		}
		s.offer(*tick)
	}
}

// offer keeps only the newest tick so NextPrice never returns a stale backlog.
func (s *TickStream) offer(t Tick) {
	for {
		select {
		case s.ticks <- t:
			s.mu.Lock()
			s.recvAt = time.Now()
			s.mu.Unlock()
			return
		default:
		}
		select {
		case <-s.ticks:
		default:
		}
	}
}

// NextPrice blocks until the next tick arrives, ctx ends or the stream closes.
// It keeps waiting while a dropped connection is being redialled.
func (s *TickStream) NextPrice(ctx context.Context) (float64, error) {
	select {
	case t := <-s.ticks:
		if err := CheckFinite(t.Quote); err != nil {
			return 0, err
		}
		return t.Quote, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-s.done:
		s.mu.Lock()
		err := s.err
		s.mu.Unlock()
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrStreamClosed, err)
		}
		return 0, ErrStreamClosed
	}
}

// LastTickAt reports when the most recent tick was received.
func (s *TickStream) LastTickAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recvAt
}

// Close terminates the connection. Safe to call more than once.
func (s *TickStream) Close() {
	s.shutdown(nil)
}

func (s *TickStream) shutdown(cause error) {
	s.once.Do(func() {
		s.mu.Lock()
		s.err = cause
		close(s.done)
		conn := s.conn
		s.mu.Unlock()
		if conn != nil {
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			_ = conn.Close()
		}
	})
}

// parseTick returns nil for messages that carry no tick.
func parseTick(msg []byte) (*Tick, error) {
	var raw tickMessage
	if err := json.Unmarshal(msg, &raw); err != nil {
		return nil, err
	}
	if raw.Error != nil {
		return nil, fmt.Errorf("broker stream error %s: %s", raw.Error.Code, raw.Error.Message)
	}
	if raw.Tick == nil {
		return nil, nil
	}
	quote, err := parseQuote(raw.Tick.Quote)
	if err != nil {
		return nil, err
	}
	return &Tick{Symbol: raw.Tick.Symbol, Quote: quote, Epoch: raw.Tick.Epoch}, nil
}

// parseQuote accepts a JSON number or a numeric string.
func parseQuote(raw json.RawMessage) (float64, error) {
	if len(raw) == 0 {
		return 0, errors.New("tick without quote")
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, nil
	}
	var s json.Number
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, fmt.Errorf("invalid quote %s: %w", raw, err)
	}
	return s.Float64()
}
