package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestManagerParseJSON(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "config.json", `{
		"logging": {"level": "debug"},
		"engine": {
			"per_key_throttle": "5m",
			"min_dispatch_interval": "60s",
			"quiet_start": "22:00",
			"quiet_end": "08:00",
			"quotas": {"goal-reminder": 8}
		},
		"sink": {"driver": "log"}
	}`)

	m := NewManager(path)
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("Level = %q, want debug", cfg.Logging.Level)
	}
	if cfg.Engine.Quotas["goal-reminder"] != 8 {
		t.Fatalf("quota = %d, want 8", cfg.Engine.Quotas["goal-reminder"])
	}
	if got := m.Get(); got != cfg {
		t.Fatal("Get must return the committed config")
	}
}

func TestManagerParseYAML(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "config.yaml", `
logging:
  level: info
engine:
  min_dispatch_interval: 90s
  timezone: UTC
sink:
  driver: webhook
  webhook:
    url: http://localhost:9000/notify
`)

	m := NewManager(path)
	cfg, err := m.Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Engine.MinDispatchInterval != "90s" {
		t.Fatalf("MinDispatchInterval = %q, want 90s", cfg.Engine.MinDispatchInterval)
	}
	if cfg.Sink.Webhook == nil || cfg.Sink.Webhook.URL != "http://localhost:9000/notify" {
		t.Fatalf("webhook config not decoded: %+v", cfg.Sink)
	}
}

func TestManagerParseRejectsUnknownFields(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "config.json", `{"engine": {"typo_field": 1}, "sink": {}}`)
	if _, err := NewManager(path).Parse(); err == nil {
		t.Fatal("unknown fields must be rejected")
	}
}

func TestManagerParseRejectsTrailingData(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "config.json", `{"sink": {}}{"sink": {}}`)
	if _, err := NewManager(path).Parse(); err == nil {
		t.Fatal("trailing data must be rejected")
	}
}

func TestManagerSubscribePublish(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "config.json", `{"sink": {}}`)
	m := NewManager(path)
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}

	sub := m.Subscribe(1)
	next := &Config{}
	m.publish(next)
	select {
	case got := <-sub:
		if got != next {
			t.Fatal("subscriber received the wrong config")
		}
	default:
		t.Fatal("subscriber did not receive the published config")
	}

	// A full buffer drops the oldest update, never blocks.
	m.publish(&Config{})
	m.publish(next)
	if got := <-sub; got != next {
		t.Fatal("latest config must win when the buffer overflows")
	}

	m.Unsubscribe(sub)
	if _, ok := <-sub; ok {
		t.Fatal("Unsubscribe must close the channel")
	}
}
