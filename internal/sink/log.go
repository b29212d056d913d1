package sink

import (
	"context"

	"nudged/internal/engine"
	logx "nudged/pkg/logx"
)

// Log writes finalized requests to the structured log. Default sink; also
// useful in development and as a fallback.
type Log struct {
	log logx.Logger
}

func NewLog(log logx.Logger) *Log {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Log{log: log.With(logx.String("comp", "sink.log"))}
}

func (s *Log) Deliver(ctx context.Context, f engine.Finalized) error {
	_ = ctx
	s.log.Info("notification",
		logx.String("id", f.Request.ID),
		logx.String("category", f.Request.Category.String()),
		logx.String("title", f.Request.Title),
		logx.Time("fire_at", f.FireAt))
	return nil
}
