package engine

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestLedgerTryAdmit(t *testing.T) {
	t.Parallel()
	l := NewLedger()
	now := time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)
	key := ThrottleKey{Category: CategoryPetCheckIn, Title: "Check pet"}

	if _, ok := l.LastSent(key); ok {
		t.Fatal("fresh ledger must have no stamps")
	}

	if rej, ok := l.TryAdmit(key, now, 5*time.Minute, 10, true); !ok {
		t.Fatalf("first admission rejected: %v", rej)
	}
	if at, ok := l.LastSent(key); !ok || !at.Equal(now) {
		t.Fatalf("LastSent = %v/%v, want %v", at, ok, now)
	}

	rej, ok := l.TryAdmit(key, now.Add(2*time.Minute), 5*time.Minute, 10, true)
	if ok {
		t.Fatal("same key 2m later must be throttled")
	}
	if rej.Code != RejectThrottled || rej.Remaining != 3*time.Minute {
		t.Fatalf("rejection = %v, want throttled with 3m remaining", rej)
	}
	// A rejected admission must not consume a quota slot.
	if got := l.DailyCount(CategoryPetCheckIn); got != 1 {
		t.Fatalf("DailyCount = %d, want 1", got)
	}

	other := ThrottleKey{Category: CategoryPetCheckIn, Title: "Feed pet"}
	if _, ok := l.TryAdmit(other, now, 5*time.Minute, 2, true); !ok {
		t.Fatal("distinct title must not be throttled")
	}
	if rej, ok := l.TryAdmit(ThrottleKey{Category: CategoryPetCheckIn, Title: "Walk pet"}, now, 5*time.Minute, 2, true); ok || rej.Code != RejectDailyLimitReached {
		t.Fatalf("third admission under quota 2 = %v/%v, want daily limit rejection", rej, ok)
	}
}

func TestLedgerTryAdmitWithoutStamp(t *testing.T) {
	t.Parallel()
	l := NewLedger()
	now := time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)
	key := ThrottleKey{Category: CategoryGoalReminder, Title: "Drink water"}

	for i := 0; i < 3; i++ {
		if rej, ok := l.TryAdmit(key, now, 5*time.Minute, 8, false); !ok {
			t.Fatalf("unstamped admission %d rejected: %v", i, rej)
		}
	}
	if got := l.DailyCount(CategoryGoalReminder); got != 3 {
		t.Fatalf("DailyCount = %d, want 3", got)
	}
	if _, ok := l.LastSent(key); ok {
		t.Fatal("stamp=false must leave the key unstamped")
	}
	// The key is still free for a stamped admission.
	if _, ok := l.TryAdmit(key, now, 5*time.Minute, 8, true); !ok {
		t.Fatal("stamped admission after unstamped ones must pass")
	}
}

func TestLedgerResetDailyKeepsStamps(t *testing.T) {
	t.Parallel()
	l := NewLedger()
	now := time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)
	key := ThrottleKey{Category: CategoryStreak, Title: "3 days"}

	if _, ok := l.TryAdmit(key, now, 5*time.Minute, 1, true); !ok {
		t.Fatal("admission rejected")
	}
	l.ResetDaily()
	if got := l.DailyCount(CategoryStreak); got != 0 {
		t.Fatalf("DailyCount after reset = %d, want 0", got)
	}
	// Stamps survive the daily reset; only counts roll over.
	if _, ok := l.LastSent(key); !ok {
		t.Fatal("LastSent must survive ResetDaily")
	}
}

// Racing admissions must never overshoot the quota: the check and the
// commit share one critical section.
func TestLedgerTryAdmitConcurrentQuota(t *testing.T) {
	t.Parallel()
	l := NewLedger()
	now := time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)
	const quota = 3
	const workers = 32

	var wg sync.WaitGroup
	admitted := make(chan struct{}, workers)
	for i := 0; i < workers; i++ {
		key := ThrottleKey{Category: CategoryGoalReminder, Title: fmt.Sprintf("Goal %d", i)}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok := l.TryAdmit(key, now, 5*time.Minute, quota, true); ok {
				admitted <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(admitted)

	n := 0
	for range admitted {
		n++
	}
	if n != quota {
		t.Fatalf("admitted = %d, want exactly %d", n, quota)
	}
	if got := l.DailyCount(CategoryGoalReminder); got != quota {
		t.Fatalf("DailyCount = %d, want %d", got, quota)
	}
}

// Racing same-key admissions must never both land inside one throttle window.
func TestLedgerTryAdmitConcurrentThrottle(t *testing.T) {
	t.Parallel()
	l := NewLedger()
	now := time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)
	key := ThrottleKey{Category: CategoryMotivational, Title: "Keep going"}
	const workers = 32

	var wg sync.WaitGroup
	admitted := make(chan struct{}, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok := l.TryAdmit(key, now, 5*time.Minute, 0, true); ok {
				admitted <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(admitted)

	n := 0
	for range admitted {
		n++
	}
	if n != 1 {
		t.Fatalf("admitted = %d, want exactly 1", n)
	}
}

func TestLedgerSeedSkipsZero(t *testing.T) {
	t.Parallel()
	l := NewLedger()
	now := time.Now()
	l.Seed(map[ThrottleKey]time.Time{
		{Category: CategoryStreak, Title: "a"}: now,
		{Category: CategoryStreak, Title: "b"}: {},
	})
	if _, ok := l.LastSent(ThrottleKey{Category: CategoryStreak, Title: "a"}); !ok {
		t.Fatal("seeded stamp missing")
	}
	if _, ok := l.LastSent(ThrottleKey{Category: CategoryStreak, Title: "b"}); ok {
		t.Fatal("zero stamp must be ignored")
	}
}

func TestLedgerPruneLastSent(t *testing.T) {
	t.Parallel()
	l := NewLedger()
	now := time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)
	old := ThrottleKey{Category: CategoryGeneral, Title: "old"}
	fresh := ThrottleKey{Category: CategoryGeneral, Title: "fresh"}
	l.Seed(map[ThrottleKey]time.Time{
		old:   now.Add(-40 * 24 * time.Hour),
		fresh: now.Add(-time.Hour),
	})

	l.PruneLastSent(now, 30*24*time.Hour)
	if _, ok := l.LastSent(old); ok {
		t.Fatal("expired stamp must be pruned")
	}
	if _, ok := l.LastSent(fresh); !ok {
		t.Fatal("recent stamp must survive pruning")
	}
}
