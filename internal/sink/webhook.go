package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"nudged/internal/engine"
	logx "nudged/pkg/logx"
)

// Webhook POSTs finalized requests as JSON to a configured endpoint.
// The receiver owns the actual OS-level presentation.
type Webhook struct {
	url  string
	http *http.Client
	log  logx.Logger
}

func NewWebhook(cfg WebhookConfig, log logx.Logger) (*Webhook, error) {
	url := strings.TrimSpace(cfg.URL)
	if url == "" {
		return nil, errors.New("sink.webhook.url is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Webhook{
		url:  url,
		http: &http.Client{Timeout: timeout},
		log:  log.With(logx.String("comp", "sink.webhook")),
	}, nil
}

func (s *Webhook) Deliver(ctx context.Context, f engine.Finalized) error {
	body, err := json.Marshal(toPayload(f))
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	s.log.Debug("delivered", logx.String("id", f.Request.ID))
	return nil
}
