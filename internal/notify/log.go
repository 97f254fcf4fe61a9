package notify

import (
	"context"

	"github.com/rs/zerolog"
)

// Log writes notifications to a zerolog logger.  Used when no broker is
// configured.
type Log struct {
	logger *zerolog.Logger
}

func NewLog(logger *zerolog.Logger) *Log {
	return &Log{logger: logger}
}

func (l *Log) Notify(_ context.Context, n Notification) error {
	l.logger.Info().
		Str("class", string(n.Class)).
		Str("type", n.Type).
		Str("user_id", n.UserID).
		Str("location_id", n.LocationID).
		Str("pass_id", n.PassID).
		Str("title", n.Title).
		Msg(n.Message)
	return nil
}
