// Package storage provides a minimal persistence layer used by the engine.
//
// It currently supports:
//   - Last-sent stamps (so per-key throttling survives restarts)
//   - The notification settings document (single well-known key)
//   - An append-only delivery log (operator visibility)
package storage
