package engine

import (
	"time"

	"nudged/internal/eventbus"
	logx "nudged/pkg/logx"
)

// admit runs the policy gate for a single request.
//
// Decision order: category toggle, per-key throttle, daily quota. The
// throttle and quota checks and the commit on success happen inside one
// ledger critical section, so concurrent Schedule calls cannot overshoot a
// quota or slip two same-key admissions into one throttle window. On
// admission the quota slot is reserved before the request ever reaches the
// pacer queue.
//
// Recurring reminders bypass the per-key throttle: an expansion submits
// several same-title requests at once, and their deterministic identities
// already give them replace semantics. They still consume quota.
func (e *Engine) admit(req Request, now time.Time) (Rejection, bool) {
	st := e.settingsSnapshot()
	if !st.CategoryEnabled(req.Category) {
		return Rejection{Code: RejectCategoryDisabled}, false
	}

	key := req.Key()

	e.mu.Lock()
	throttle := e.cfg.PerKeyThrottle
	quota := e.quotas[req.Category]
	e.mu.Unlock()

	rej, ok := e.ledger.TryAdmit(key, now, throttle, quota, !req.Repeats)
	if !ok {
		return rej, false
	}
	if !req.Repeats {
		e.persistStamp(key, now)
	}
	return Rejection{}, true
}

func (e *Engine) settingsSnapshot() Settings {
	e.mu.Lock()
	src := e.settings
	e.mu.Unlock()
	if src == nil {
		return Settings{}
	}
	return src.Current()
}

func (e *Engine) publishGate(typ string, req Request, rej Rejection, at time.Time) {
	ev := eventbus.Gate{
		ID:       req.ID,
		Category: req.Category.String(),
		Title:    req.Title,
	}
	if typ == eventbus.Rejected {
		ev.Reason = rej.String()
	}
	if e.bus != nil {
		e.bus.Publish(eventbus.Event{Type: typ, Time: at, Gate: &ev})
	}
	if typ == eventbus.Rejected {
		e.log.Debug("request rejected",
			logx.String("id", req.ID),
			logx.String("category", req.Category.String()),
			logx.String("reason", rej.String()))
	}
}
