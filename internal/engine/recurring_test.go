package engine

import (
	"context"
	"testing"
	"time"
)

func TestScheduleRecurringExpansion(t *testing.T) {
	t.Parallel()
	ch := make(chan delivery, 1)
	e := newRunningEngine(t, Config{MinDispatchInterval: time.Hour, Timezone: "UTC"}, ch)
	now := time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)
	e.nowFn = func() time.Time { return now }

	// Burn the initial dispatch slot so expanded entries stay queued.
	if err := e.Schedule(context.Background(), Request{ID: "warm", Title: "warm", Category: CategoryGeneral}); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	waitDelivery(t, ch)

	times := []TimeOfDay{
		{Hour: 9, Minute: 0},   // already passed; rolls to tomorrow
		{Hour: 18, Minute: 30}, // later today
		{Hour: 25, Minute: 0},  // invalid; skipped
	}
	if err := e.ScheduleRecurring(context.Background(), "goal-1", "Drink water", "stay hydrated", times); err != nil {
		t.Fatalf("ScheduleRecurring: %v", err)
	}

	pending := e.Pending()
	if len(pending) != 2 {
		t.Fatalf("Pending = %d, want 2 (invalid time skipped)", len(pending))
	}
	byID := map[string]PendingEntry{}
	for _, ent := range pending {
		byID[ent.Request.ID] = ent
	}

	early, ok := byID["goal-1/0"]
	if !ok {
		t.Fatalf("missing deterministic id goal-1/0; got %+v", pending)
	}
	if want := time.Date(2026, time.March, 11, 9, 0, 0, 0, time.UTC); !early.FireAt.Equal(want) {
		t.Fatalf("passed time must roll to tomorrow: FireAt = %v, want %v", early.FireAt, want)
	}

	late, ok := byID["goal-1/1"]
	if !ok {
		t.Fatalf("missing deterministic id goal-1/1; got %+v", pending)
	}
	if want := time.Date(2026, time.March, 10, 18, 30, 0, 0, time.UTC); !late.FireAt.Equal(want) {
		t.Fatalf("future time must stay today: FireAt = %v, want %v", late.FireAt, want)
	}
	if !late.Request.Repeats {
		t.Fatal("expanded requests must be marked repeating")
	}
}

func TestScheduleRecurringReplacesPreviousExpansion(t *testing.T) {
	t.Parallel()
	ch := make(chan delivery, 1)
	e := newRunningEngine(t, Config{MinDispatchInterval: time.Hour, Timezone: "UTC"}, ch)
	now := time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)
	e.nowFn = func() time.Time { return now }

	if err := e.Schedule(context.Background(), Request{ID: "warm", Title: "warm", Category: CategoryGeneral}); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	waitDelivery(t, ch)

	times := []TimeOfDay{{Hour: 14, Minute: 0}, {Hour: 20, Minute: 0}}
	if err := e.ScheduleRecurring(context.Background(), "goal-7", "Stretch", "", times); err != nil {
		t.Fatalf("ScheduleRecurring: %v", err)
	}
	// Re-running after an edit targets the same identities.
	if err := e.ScheduleRecurring(context.Background(), "goal-7", "Stretch", "", times[:1]); err != nil {
		t.Fatalf("ScheduleRecurring (rerun): %v", err)
	}

	pending := e.Pending()
	if len(pending) != 1 || pending[0].Request.ID != "goal-7/0" {
		t.Fatalf("rerun must replace the previous expansion; got %+v", pending)
	}

	e.CancelRecurring("goal-7")
	if got := len(e.Pending()); got != 0 {
		t.Fatalf("Pending = %d after CancelRecurring, want 0", got)
	}
}

func TestScheduleRecurringRequiresOwner(t *testing.T) {
	t.Parallel()
	e := newRunningEngine(t, Config{MinDispatchInterval: time.Hour}, nil)
	if err := e.ScheduleRecurring(context.Background(), "", "x", "", []TimeOfDay{{Hour: 9}}); err == nil {
		t.Fatal("empty owner id must be rejected")
	}
}
