package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	logx "nudged/pkg/logx"
)

// Store is the minimal persistence API used by the engine and settings.
type Store interface {
	PutStamp(ctx context.Context, key string, at time.Time) error
	LoadStamps(ctx context.Context) (map[string]time.Time, error)

	PutSettings(ctx context.Context, doc []byte) error
	GetSettings(ctx context.Context) (doc []byte, ok bool, err error)

	AppendDelivery(ctx context.Context, e DeliveryEntry) error

	Close() error
}

// Open initializes the configured store.
// It returns (nil, nil) if storage is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	case "redis":
		return openRedis(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
