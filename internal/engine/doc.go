// Package engine implements nudged's notification scheduling and throttling
// engine.
//
// The engine decides, for each request to notify the user, whether to
// suppress it, when to deliver it, and at what pace relative to other
// pending notifications:
//
//   - Policy gate: per-category enable toggles, per-(category,title)
//     throttling, and per-category daily quotas.
//   - Delivery pacer: a FIFO queue with a global minimum interval between
//     any two dispatches, regardless of category.
//   - Quiet hours: dispatch times falling inside the do-not-disturb window
//     are deferred to the next morning, never advanced.
//   - Daily reset: per-category counts are cleared at local midnight.
//
// Admission is fire-and-forget: policy rejections are logged and published
// on the event bus, never returned to the caller. Delivery is delegated to
// a Sink implementation; the engine owns no platform code.
//
// The queue, pacing state, and configuration are guarded by one engine
// mutex; the ledger carries its own lock so the gate's check-and-commit is
// a single critical section. Schedule may be called from any goroutine.
package engine
