package settings

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"nudged/internal/engine"
	"nudged/internal/storage"
	logx "nudged/pkg/logx"
)

func openBackend(t *testing.T) storage.Store {
	t.Helper()
	st, err := storage.Open(storage.Config{
		Driver: "file",
		Path:   filepath.Join(t.TempDir(), "settings_store"),
	}, logx.Nop())
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestDefaults(t *testing.T) {
	t.Parallel()
	st := Defaults()
	for _, c := range engine.Categories() {
		if !st.CategoryEnabled(c) {
			t.Fatalf("category %s must default to enabled", c)
		}
	}
	if st.GoalReminderInterval != 4*time.Hour {
		t.Fatalf("GoalReminderInterval = %v, want 4h", st.GoalReminderInterval)
	}
}

func TestStoreLoadWithoutBackend(t *testing.T) {
	t.Parallel()
	s := NewStore(nil, logx.Nop())
	if err := s.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !s.Current().CategoryEnabled(engine.CategoryStreak) {
		t.Fatal("nil backend must keep defaults")
	}
}

func TestStoreRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	back := openBackend(t)

	s := NewStore(back, logx.Nop())
	if err := s.Load(ctx); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := s.SetCategoryEnabled(ctx, engine.CategoryMotivational, false); err != nil {
		t.Fatalf("SetCategoryEnabled: %v", err)
	}
	err := s.Update(ctx, func(st *engine.Settings) {
		st.PetCheckInInterval = 90 * time.Minute
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	// A fresh store over the same backend sees the persisted document.
	s2 := NewStore(back, logx.Nop())
	if err := s2.Load(ctx); err != nil {
		t.Fatalf("Load: %v", err)
	}
	cur := s2.Current()
	if cur.CategoryEnabled(engine.CategoryMotivational) {
		t.Fatal("motivational must stay disabled after reload")
	}
	if !cur.CategoryEnabled(engine.CategoryGoalReminder) {
		t.Fatal("untouched categories must stay enabled")
	}
	if cur.PetCheckInInterval != 90*time.Minute {
		t.Fatalf("PetCheckInInterval = %v, want 90m", cur.PetCheckInInterval)
	}
}

func TestStoreMalformedDocumentFallsBack(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	back := openBackend(t)
	if err := back.PutSettings(ctx, []byte("{not json")); err != nil {
		t.Fatalf("PutSettings: %v", err)
	}

	s := NewStore(back, logx.Nop())
	if err := s.Load(ctx); err != nil {
		t.Fatalf("Load must not fail on malformed documents: %v", err)
	}
	if !s.Current().CategoryEnabled(engine.CategoryDailySummary) {
		t.Fatal("malformed document must fall back to defaults")
	}
}

func TestCurrentReturnsSnapshot(t *testing.T) {
	t.Parallel()
	s := NewStore(nil, logx.Nop())
	snap := s.Current()
	snap.Enabled[engine.CategoryStreak] = false
	if !s.Current().CategoryEnabled(engine.CategoryStreak) {
		t.Fatal("mutating a snapshot must not affect the store")
	}
}
