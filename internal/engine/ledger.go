package engine

import (
	"sync"
	"time"
)

// Ledger tracks, per throttle key, the time of the last committed admission,
// and per category, how many admissions have been committed today.
//
// It is safe for concurrent use. All engine-side mutation goes through
// TryAdmit (policy gate) and ResetDaily (midnight rollover); cancellations
// never touch it, so already-committed notifications keep counting against
// the day's quota.
type Ledger struct {
	mu       sync.Mutex
	lastSent map[ThrottleKey]time.Time
	daily    map[Category]int
}

func NewLedger() *Ledger {
	return &Ledger{
		lastSent: map[ThrottleKey]time.Time{},
		daily:    map[Category]int{},
	}
}

// Seed loads persisted last-sent stamps (cross-restart throttling).
// Daily counts are intentionally not persisted; they reset at midnight
// anyway, so a restart forfeits at most one day's accounting.
func (l *Ledger) Seed(stamps map[ThrottleKey]time.Time) {
	l.mu.Lock()
	for k, at := range stamps {
		if at.IsZero() {
			continue
		}
		l.lastSent[k] = at
	}
	l.mu.Unlock()
}

// TryAdmit runs the throttle and quota checks and, when both pass, commits
// the admission in the same critical section: the stamp is written and the
// category's daily count is incremented before the lock is released, so two
// racing admissions can never both squeeze past a quota of n-1 or inside
// the same throttle window.
//
// stamp=false skips the per-key throttle and leaves the key unstamped; the
// admission still counts against the daily quota. Used for recurring
// reminders, whose expansions submit several same-title requests at once.
func (l *Ledger) TryAdmit(k ThrottleKey, now time.Time, throttle time.Duration, quota int, stamp bool) (Rejection, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if stamp {
		if last, ok := l.lastSent[k]; ok {
			if gap := now.Sub(last); gap < throttle {
				return Rejection{Code: RejectThrottled, Remaining: throttle - gap}, false
			}
		}
	}
	if quota > 0 && l.daily[k.Category] >= quota {
		return Rejection{Code: RejectDailyLimitReached}, false
	}

	l.daily[k.Category]++
	if stamp {
		l.lastSent[k] = now
	}
	return Rejection{}, true
}

// LastSent returns the last committed admission time for the key.
func (l *Ledger) LastSent(k ThrottleKey) (time.Time, bool) {
	l.mu.Lock()
	at, ok := l.lastSent[k]
	l.mu.Unlock()
	return at, ok
}

// DailyCount returns today's committed admissions for the category.
func (l *Ledger) DailyCount(c Category) int {
	l.mu.Lock()
	n := l.daily[c]
	l.mu.Unlock()
	return n
}

// ResetDaily clears every category's daily count.
func (l *Ledger) ResetDaily() {
	l.mu.Lock()
	l.daily = map[Category]int{}
	l.mu.Unlock()
}

// Counts returns a copy of today's per-category counts.
func (l *Ledger) Counts() map[Category]int {
	l.mu.Lock()
	out := make(map[Category]int, len(l.daily))
	for c, n := range l.daily {
		out[c] = n
	}
	l.mu.Unlock()
	return out
}

// PruneLastSent drops stamps older than keep. Called opportunistically so
// the map doesn't grow unbounded over months of distinct titles.
func (l *Ledger) PruneLastSent(now time.Time, keep time.Duration) {
	if keep <= 0 {
		return
	}
	cutoff := now.Add(-keep)
	l.mu.Lock()
	for k, at := range l.lastSent {
		if at.Before(cutoff) {
			delete(l.lastSent, k)
		}
	}
	l.mu.Unlock()
}
