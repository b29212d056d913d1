package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"nudged/internal/config"
	"nudged/internal/engine"
	"nudged/internal/sink"
	"nudged/internal/storage"
	logx "nudged/pkg/logx"
)

func mapLogging(cfg *config.Config) logx.Config {
	console := true
	if cfg.Logging.Console != nil {
		console = *cfg.Logging.Console
	}
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func mapEngine(cfg *config.Config) (engine.Config, error) {
	enabled := true
	if cfg.Engine.Enabled != nil {
		enabled = *cfg.Engine.Enabled
	}

	throttle, err := config.ParseDurationOrDefault("engine.per_key_throttle", cfg.Engine.PerKeyThrottle, 5*time.Minute)
	if err != nil {
		return engine.Config{}, err
	}
	minInterval, err := config.ParseDurationOrDefault("engine.min_dispatch_interval", cfg.Engine.MinDispatchInterval, 60*time.Second)
	if err != nil {
		return engine.Config{}, err
	}
	quietStart, err := config.ParseHourField("engine.quiet_start", cfg.Engine.QuietStart, 22)
	if err != nil {
		return engine.Config{}, err
	}
	quietEnd, err := config.ParseHourField("engine.quiet_end", cfg.Engine.QuietEnd, 8)
	if err != nil {
		return engine.Config{}, err
	}

	var quotas map[engine.Category]int
	if len(cfg.Engine.Quotas) > 0 {
		quotas = make(map[engine.Category]int, len(cfg.Engine.Quotas))
		for slug, n := range cfg.Engine.Quotas {
			cat, ok := engine.ParseCategory(slug)
			if !ok {
				return engine.Config{}, fmt.Errorf("engine.quotas: unknown category %q", slug)
			}
			if n < 0 {
				return engine.Config{}, fmt.Errorf("engine.quotas.%s: must be >= 0", slug)
			}
			quotas[cat] = n
		}
	}

	if tz := strings.TrimSpace(cfg.Engine.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return engine.Config{}, fmt.Errorf("engine.timezone: invalid %q: %w", tz, err)
		}
	}

	return engine.Config{
		Enabled:             enabled,
		QueueSize:           cfg.Engine.QueueSize,
		PerKeyThrottle:      throttle,
		MinDispatchInterval: minInterval,
		QuietStartHour:      quietStart,
		QuietEndHour:        quietEnd,
		Timezone:            cfg.Engine.Timezone,
		Quotas:              quotas,
	}, nil
}

func mapStorage(cfg *config.Config) (storage.Config, error) {
	if cfg.Storage == nil {
		return storage.Config{}, nil
	}
	busy, err := config.ParseDurationOrDefault("storage.busy_timeout", cfg.Storage.BusyTimeout, 0)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{
		Driver:      cfg.Storage.Driver,
		Path:        cfg.Storage.Path,
		BusyTimeout: busy,
		Addr:        cfg.Storage.Addr,
		Password:    cfg.Storage.Password,
		DB:          cfg.Storage.DB,
	}, nil
}

func mapSink(cfg *config.Config) (sink.Config, error) {
	out := sink.Config{Driver: cfg.Sink.Driver}
	if cfg.Sink.Webhook != nil {
		timeout, err := config.ParseDurationOrDefault("sink.webhook.timeout", cfg.Sink.Webhook.Timeout, 0)
		if err != nil {
			return sink.Config{}, err
		}
		out.Webhook = sink.WebhookConfig{
			URL:     cfg.Sink.Webhook.URL,
			Timeout: timeout,
		}
	}
	if cfg.Sink.AMQP != nil {
		out.AMQP = sink.AMQPConfig{
			URL:        cfg.Sink.AMQP.URL,
			Exchange:   cfg.Sink.AMQP.Exchange,
			RoutingKey: cfg.Sink.AMQP.RoutingKey,
		}
	}
	if cfg.Sink.Telegram != nil {
		out.Telegram = sink.TelegramConfig{
			Token:  cfg.Sink.Telegram.Token,
			ChatID: cfg.Sink.Telegram.ChatID,
		}
	}
	return out, nil
}

// staticPermission implements engine.PermissionProvider from config.
// OS-level notification permission has no portable probe, so the operator
// states it explicitly; omitted means granted.
type staticPermission struct {
	granted bool
}

func newPermission(cfg *config.Config) staticPermission {
	granted := true
	if cfg.Permission != nil && cfg.Permission.Granted != nil {
		granted = *cfg.Permission.Granted
	}
	return staticPermission{granted: granted}
}

func (p staticPermission) DeliveryPermitted(_ context.Context) bool {
	return p.granted
}
