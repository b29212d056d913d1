package engine

import (
	"context"
	"time"

	"nudged/internal/eventbus"
	"nudged/internal/storage"
	logx "nudged/pkg/logx"
)

// Per-delivery call bound. Keeps a wedged sink from stalling the drain loop.
const deliverTimeout = 10 * time.Second

// enqueue appends an admitted entry and kicks the drain loop if idle.
func (e *Engine) enqueue(ent PendingEntry) {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	if e.cfg.QueueSize > 0 && len(e.queue) >= e.cfg.QueueSize {
		e.mu.Unlock()
		e.log.Warn("pacer queue full, dropping request",
			logx.String("id", ent.Request.ID),
			logx.String("category", ent.Request.Category.String()))
		return
	}
	e.queue = append(e.queue, ent)
	e.kickDrainLocked()
	e.mu.Unlock()
}

// kickDrainLocked starts a drain pass when there is work and none running.
// Caller must hold e.mu.
func (e *Engine) kickDrainLocked() {
	if !e.running || e.draining || len(e.queue) == 0 {
		return
	}
	e.draining = true
	dctx, cancel := context.WithCancel(e.runCtx)
	e.drainCancel = cancel
	sup := e.sup
	sup.Go0("pacer.drain", func(_ context.Context) {
		e.drainLoop(dctx)
	})
}

// drainLoop is the single-flight pacer: it pops entries FIFO and spaces
// dispatches by the global minimum interval. At most one loop runs at a
// time; it exits when the queue empties and a later enqueue restarts it.
//
// The limiter wait is the only blocking step and is cancellable via
// CancelAll (drain context) or engine shutdown.
func (e *Engine) drainLoop(ctx context.Context) {
	for {
		e.mu.Lock()
		if ctx.Err() != nil || !e.running || len(e.queue) == 0 {
			e.finishDrainLocked()
			e.mu.Unlock()
			return
		}
		lim := e.limiter
		e.mu.Unlock()

		// Wait for the next dispatch slot. Burst is 1, so consecutive
		// dispatches are never closer together than the configured interval.
		if err := lim.Wait(ctx); err != nil {
			e.mu.Lock()
			e.finishDrainLocked()
			e.mu.Unlock()
			return
		}

		e.mu.Lock()
		// Re-check: CancelAll may have emptied the queue during the wait.
		if !e.running || len(e.queue) == 0 {
			e.finishDrainLocked()
			e.mu.Unlock()
			return
		}
		ent := e.queue[0]
		e.queue = e.queue[1:]
		fireAt := e.quiet.Adjust(ent.FireAt)
		sink := e.sink
		st := e.store
		now := e.now()
		e.lastDispatch = now
		e.mu.Unlock()

		e.dispatch(ctx, sink, st, ent, fireAt, now)
	}
}

// finishDrainLocked marks the pass done and restarts one if entries arrived
// while this pass was shutting down. Caller must hold e.mu.
func (e *Engine) finishDrainLocked() {
	e.draining = false
	e.drainCancel = nil
	e.kickDrainLocked()
}

func (e *Engine) dispatch(ctx context.Context, sink Sink, st storage.Store, ent PendingEntry, fireAt, now time.Time) {
	ev := eventbus.Dispatch{
		ID:       ent.Request.ID,
		Category: ent.Request.Category.String(),
		Title:    ent.Request.Title,
		FireAt:   fireAt,
	}
	rec := DeliveryRecord{
		At:       now,
		ID:       ent.Request.ID,
		Category: ent.Request.Category,
		Title:    ent.Request.Title,
		FireAt:   fireAt,
	}

	var err error
	if sink == nil {
		e.log.Warn("no delivery sink configured, dropping entry", logx.String("id", ent.Request.ID))
	} else {
		dctx, cancel := context.WithTimeout(ctx, deliverTimeout)
		err = sink.Deliver(dctx, Finalized{Request: ent.Request, FireAt: fireAt})
		cancel()
	}

	typ := eventbus.Dispatched
	if err != nil {
		// No automatic retry: log, record, drop.
		typ = eventbus.DeliveryFailed
		ev.Error = err.Error()
		rec.Error = err.Error()
		e.log.Warn("delivery failed",
			logx.String("id", ent.Request.ID),
			logx.String("category", ent.Request.Category.String()),
			logx.Err(err))
	} else {
		e.log.Debug("dispatched",
			logx.String("id", ent.Request.ID),
			logx.String("category", ent.Request.Category.String()),
			logx.Time("fire_at", fireAt))
	}

	if e.bus != nil {
		e.bus.Publish(eventbus.Event{Type: typ, Time: now, Dispatch: &ev})
	}
	e.appendHistory(rec)

	if st != nil {
		cctx, cancel := context.WithTimeout(context.Background(), 250*time.Millisecond)
		_ = st.AppendDelivery(cctx, storage.DeliveryEntry{
			At:       now,
			ID:       ent.Request.ID,
			Category: ent.Request.Category.String(),
			Title:    ent.Request.Title,
			FireAt:   fireAt,
			Error:    rec.Error,
		})
		cancel()
	}
}
