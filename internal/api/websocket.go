package api

import (
	"net/http"
	"sync"
	"time"

	"reversion-core/internal/events"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	wsBuffer     = 100
	wsWriteWait  = 10 * time.Second
	wsPingPeriod = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// websocket streams every session event as an events.Envelope until the
// client disconnects or the server closes.
func (s *Server) websocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("ws upgrade failed")
		return
	}
	defer conn.Close()

	if s.opts.Bus == nil {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"bus not ready"}`))
		return
	}

	// Reader goroutine: only needed to notice the client going away.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	out := make(chan events.Envelope, wsBuffer)
	var wg sync.WaitGroup
	unsubs := make([]func(), 0, len(events.All))
	for _, e := range events.All {
		stream, unsub := s.opts.Bus.Subscribe(e, wsBuffer)
		unsubs = append(unsubs, unsub)
		wg.Add(1)
		go func(e events.Event, stream <-chan any) {
			defer wg.Done()
			for payload := range stream {
				select {
				case out <- events.Envelope{Type: e, Time: time.Now(), Payload: payload}:
				default:
					// Slow client; same policy as the bus.
				}
			}
		}(e, stream)
	}
	defer func() {
		for _, unsub := range unsubs {
			unsub()
		}
		wg.Wait()
	}()

	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()

	for {
		select {
		case env := <-out:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(env); err != nil {
				s.log.Debug().Err(err).Msg("ws write failed")
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		case <-gone:
			return
		case <-s.closing:
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(wsWriteWait))
			return
		}
	}
}
