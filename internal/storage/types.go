package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// Driver values:
//   - "file": dependency-free file backend (jsonl + snapshot)
//   - "sqlite": SQLite database file (optional build tag)
//   - "redis": Redis backend (for shared/remote state)
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string        // file/sqlite
	BusyTimeout time.Duration // sqlite only; 0 means default

	Addr     string // redis only, host:port
	Password string // redis only
	DB       int    // redis only
}

// DeliveryEntry records one dispatched (or failed) notification.
// Keep it compact and schema-stable.
type DeliveryEntry struct {
	At       time.Time
	ID       string
	Category string
	Title    string
	FireAt   time.Time
	Error    string
}
