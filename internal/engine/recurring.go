package engine

import (
	"context"
	"fmt"
	"time"

	logx "nudged/pkg/logx"
)

// TimeOfDay is a clock time for recurring per-goal reminders.
type TimeOfDay struct {
	Hour   int
	Minute int
}

func (t TimeOfDay) valid() bool {
	return t.Hour >= 0 && t.Hour <= 23 && t.Minute >= 0 && t.Minute <= 59
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

func recurringID(ownerID string, idx int) string {
	return fmt.Sprintf("%s/%d", ownerID, idx)
}

// ScheduleRecurring expands a list of times-of-day into independent
// requests: today's occurrence of each time, rolled forward to tomorrow if
// it has already passed. Request identities are deterministic
// (ownerID/index), so re-running the expansion after an edit replaces the
// previous set. Each expanded request runs through the policy gate like any
// other.
func (e *Engine) ScheduleRecurring(ctx context.Context, ownerID, title, body string, times []TimeOfDay) error {
	if ownerID == "" {
		return fmt.Errorf("recurring: owner id is required")
	}

	// Replace any previous expansion for this owner.
	e.CancelRecurring(ownerID)

	loc := e.location()
	now := e.now().In(loc)

	for i, tod := range times {
		if !tod.valid() {
			e.log.Warn("skipping invalid reminder time",
				logx.String("owner", ownerID),
				logx.String("time", tod.String()))
			continue
		}
		occ := time.Date(now.Year(), now.Month(), now.Day(), tod.Hour, tod.Minute, 0, 0, loc)
		if !occ.After(now) {
			occ = occ.AddDate(0, 0, 1)
		}
		req := Request{
			ID:       recurringID(ownerID, i),
			Title:    title,
			Body:     body,
			Category: CategoryGoalReminder,
			Delay:    occ.Sub(now),
			Repeats:  true,
		}
		if err := e.Schedule(ctx, req); err != nil {
			return err
		}
	}
	return nil
}

// CancelRecurring removes every pending reminder expanded for the owner.
func (e *Engine) CancelRecurring(ownerID string) {
	if ownerID == "" {
		return
	}
	e.CancelByPrefix(ownerID + "/")
}
