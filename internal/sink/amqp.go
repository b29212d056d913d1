package sink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"nudged/internal/engine"
	logx "nudged/pkg/logx"
)

// AMQP publishes finalized requests to a RabbitMQ exchange, for fan-out to
// platform-specific presenters (push, email, ...).
type AMQP struct {
	mu      sync.Mutex
	conn    *amqp.Connection
	channel *amqp.Channel
	cfg     AMQPConfig
	log     logx.Logger
}

func NewAMQP(cfg AMQPConfig, log logx.Logger) (*AMQP, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.New("sink.amqp.url is required")
	}
	if cfg.Exchange == "" {
		cfg.Exchange = "nudged.notifications"
	}
	if cfg.RoutingKey == "" {
		cfg.RoutingKey = "notify"
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	channel, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}

	if err := channel.ExchangeDeclare(
		cfg.Exchange,
		"direct",
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}

	return &AMQP{
		conn:    conn,
		channel: channel,
		cfg:     cfg,
		log:     log.With(logx.String("comp", "sink.amqp")),
	}, nil
}

func (s *AMQP) Deliver(ctx context.Context, f engine.Finalized) error {
	body, err := json.Marshal(toPayload(f))
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.channel == nil {
		return errors.New("amqp sink closed")
	}
	err = s.channel.PublishWithContext(ctx,
		s.cfg.Exchange,
		s.cfg.RoutingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    f.Request.ID,
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	s.log.Debug("published", logx.String("id", f.Request.ID))
	return nil
}

func (s *AMQP) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channel = nil
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}
