package monitor

import (
	"github.com/rs/zerolog"
)

// AlertSink delivers alert messages.
type AlertSink interface {
	Send(message string) error
}

// LogSink writes alerts as warnings.
type LogSink struct {
	Logger zerolog.Logger
}

func (s LogSink) Send(message string) error {
	s.Logger.Warn().Str("kind", "alert").Msg(message)
	return nil
}
