// Package sink provides delivery sink implementations for the engine.
//
// A sink accepts a finalized, time-adjusted request and hands it to an
// external presenter: a structured log line, a webhook endpoint, a message
// broker, or a Telegram chat. The engine treats every sink the same way:
// deliver once, log failures, never retry.
package sink

import (
	"errors"
	"strings"
	"time"

	"nudged/internal/engine"
	logx "nudged/pkg/logx"
)

// Config selects and configures the delivery sink.
//
// Driver values: "log" (default), "webhook", "amqp", "telegram".
type Config struct {
	Driver string

	Webhook  WebhookConfig
	AMQP     AMQPConfig
	Telegram TelegramConfig
}

type WebhookConfig struct {
	URL     string
	Timeout time.Duration // 0 means 10s
}

type AMQPConfig struct {
	URL        string
	Exchange   string // default "nudged.notifications"
	RoutingKey string // default "notify"
}

type TelegramConfig struct {
	Token  string
	ChatID int64
}

// Open initializes the configured sink. An empty driver falls back to the
// log sink so a bare config still produces a working daemon.
func Open(cfg Config, log logx.Logger) (engine.Sink, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "log":
		return NewLog(log), nil
	case "webhook":
		return NewWebhook(cfg.Webhook, log)
	case "amqp", "rabbitmq":
		return NewAMQP(cfg.AMQP, log)
	case "telegram":
		return NewTelegram(cfg.Telegram, log)
	default:
		return nil, errors.New("unknown sink driver: " + cfg.Driver)
	}
}

// payload is the wire shape shared by the webhook and AMQP sinks.
type payload struct {
	ID       string    `json:"id"`
	Title    string    `json:"title"`
	Body     string    `json:"body,omitempty"`
	Category string    `json:"category"`
	FireAt   time.Time `json:"fire_at"`
	Repeats  bool      `json:"repeats,omitempty"`
}

func toPayload(f engine.Finalized) payload {
	return payload{
		ID:       f.Request.ID,
		Title:    f.Request.Title,
		Body:     f.Request.Body,
		Category: f.Request.Category.String(),
		FireAt:   f.FireAt,
		Repeats:  f.Request.Repeats,
	}
}
