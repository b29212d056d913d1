// Package settings owns the user's notification preferences: per-category
// enable toggles and named reminder intervals.
//
// The document is persisted through the storage layer under a single
// well-known key. The engine only ever reads snapshots; all mutation goes
// through Update. Malformed or missing documents fall back to defaults
// rather than failing the engine.
package settings

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"nudged/internal/engine"
	"nudged/internal/storage"
	logx "nudged/pkg/logx"
)

// document is the persisted shape. Intervals are Go duration strings.
type document struct {
	Enabled map[string]bool `json:"enabled"`

	GoalReminderInterval string `json:"goal_reminder_interval,omitempty"`
	PetCheckInInterval   string `json:"pet_check_in_interval,omitempty"`
	MotivationalInterval string `json:"motivational_interval,omitempty"`
}

// Defaults returns the hard-coded fallback settings: every category
// enabled, conservative intervals.
func Defaults() engine.Settings {
	enabled := make(map[engine.Category]bool, len(engine.Categories()))
	for _, c := range engine.Categories() {
		enabled[c] = true
	}
	return engine.Settings{
		Enabled:              enabled,
		GoalReminderInterval: 4 * time.Hour,
		PetCheckInInterval:   6 * time.Hour,
		MotivationalInterval: 8 * time.Hour,
	}
}

// Store implements engine.SettingsSource on top of storage.Store.
// It is safe for concurrent use.
type Store struct {
	mu   sync.Mutex
	log  logx.Logger
	back storage.Store
	cur  engine.Settings
}

func NewStore(back storage.Store, log logx.Logger) *Store {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Store{log: log, back: back, cur: Defaults()}
}

// Load reads the persisted document. Any failure keeps the defaults:
// a broken settings record must never take the engine down.
func (s *Store) Load(ctx context.Context) error {
	if s.back == nil {
		return nil
	}
	raw, ok, err := s.back.GetSettings(ctx)
	if err != nil {
		s.log.Warn("loading settings failed, using defaults", logx.Err(err))
		return nil
	}
	if !ok {
		return nil
	}

	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		s.log.Warn("malformed settings document, using defaults", logx.Err(err))
		return nil
	}

	s.mu.Lock()
	s.cur = fromDocument(doc)
	s.mu.Unlock()
	s.log.Debug("settings loaded")
	return nil
}

// Current returns a snapshot for one decision cycle.
func (s *Store) Current() engine.Settings {
	s.mu.Lock()
	cur := s.cur
	enabled := make(map[engine.Category]bool, len(cur.Enabled))
	for c, en := range cur.Enabled {
		enabled[c] = en
	}
	s.mu.Unlock()
	cur.Enabled = enabled
	return cur
}

// Update applies a user mutation and persists the result best-effort.
func (s *Store) Update(ctx context.Context, fn func(*engine.Settings)) error {
	if fn == nil {
		return nil
	}
	s.mu.Lock()
	next := s.cur
	enabled := make(map[engine.Category]bool, len(next.Enabled))
	for c, en := range next.Enabled {
		enabled[c] = en
	}
	next.Enabled = enabled
	fn(&next)
	s.cur = next
	s.mu.Unlock()

	if s.back == nil {
		return nil
	}
	raw, err := json.Marshal(toDocument(next))
	if err != nil {
		return err
	}
	if err := s.back.PutSettings(ctx, raw); err != nil {
		s.log.Warn("persisting settings failed", logx.Err(err))
		return err
	}
	return nil
}

// SetCategoryEnabled is a convenience wrapper for the single most common
// user action.
func (s *Store) SetCategoryEnabled(ctx context.Context, c engine.Category, en bool) error {
	return s.Update(ctx, func(st *engine.Settings) {
		if st.Enabled == nil {
			st.Enabled = map[engine.Category]bool{}
		}
		st.Enabled[c] = en
	})
}

func fromDocument(doc document) engine.Settings {
	st := Defaults()
	for slug, en := range doc.Enabled {
		if c, ok := engine.ParseCategory(slug); ok {
			st.Enabled[c] = en
		}
	}
	st.GoalReminderInterval = parseInterval(doc.GoalReminderInterval, st.GoalReminderInterval)
	st.PetCheckInInterval = parseInterval(doc.PetCheckInInterval, st.PetCheckInInterval)
	st.MotivationalInterval = parseInterval(doc.MotivationalInterval, st.MotivationalInterval)
	return st
}

func toDocument(st engine.Settings) document {
	doc := document{Enabled: map[string]bool{}}
	for c, en := range st.Enabled {
		doc.Enabled[c.String()] = en
	}
	if st.GoalReminderInterval > 0 {
		doc.GoalReminderInterval = st.GoalReminderInterval.String()
	}
	if st.PetCheckInInterval > 0 {
		doc.PetCheckInInterval = st.PetCheckInInterval.String()
	}
	if st.MotivationalInterval > 0 {
		doc.MotivationalInterval = st.MotivationalInterval.String()
	}
	return doc
}

func parseInterval(raw string, def time.Duration) time.Duration {
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
