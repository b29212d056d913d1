package engine

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"golang.org/x/time/rate"

	"nudged/internal/eventbus"
	rtsup "nudged/internal/runtime/supervisor"
	"nudged/internal/storage"
	logx "nudged/pkg/logx"
)

var (
	ErrDisabled = errors.New("engine disabled")
	ErrStopped  = errors.New("engine stopped")
)

// Stamps older than this are pruned from the ledger at the daily reset.
const stampRetention = 30 * 24 * time.Hour

// Engine is the notification scheduling and throttling engine.
//
// It is safe for concurrent use. Construct it with New and inject every
// collaborator explicitly; there is no shared instance.
type Engine struct {
	mu sync.Mutex

	log      logx.Logger
	bus      eventbus.Bus
	store    storage.Store
	sink     Sink
	settings SettingsSource
	perm     PermissionProvider

	cfg     Config
	loc     *time.Location
	quiet   QuietWindow
	quotas  map[Category]int
	limiter *rate.Limiter

	ledger *Ledger

	queue        []PendingEntry
	draining     bool
	drainCancel  context.CancelFunc
	lastDispatch time.Time

	running bool
	runCtx  context.Context
	sup     *rtsup.Supervisor
	cron    *cron.Cron

	persistCh chan stampWrite

	hmu     sync.Mutex
	history []DeliveryRecord

	// nowFn is a test seam; nil means time.Now.
	nowFn func() time.Time
}

type stampWrite struct {
	key ThrottleKey
	at  time.Time
}

func New(cfg Config, sink Sink, settings SettingsSource, perm PermissionProvider, log logx.Logger, bus eventbus.Bus, store storage.Store) *Engine {
	if log.IsZero() {
		log = logx.Nop()
	}
	e := &Engine{
		log:      log,
		bus:      bus,
		store:    store,
		sink:     sink,
		settings: settings,
		perm:     perm,
		ledger:   NewLedger(),
	}
	e.applyLocked(cfg)
	return e
}

func (e *Engine) Enabled() bool {
	e.mu.Lock()
	en := e.cfg.Enabled
	e.mu.Unlock()
	return en
}

// Apply updates engine configuration at runtime (intervals, quotas, quiet
// window, timezone). Queue contents and ledger state are preserved. A
// timezone change re-arms the midnight reset in the new location.
func (e *Engine) Apply(cfg Config) {
	e.mu.Lock()
	rearm := e.running && cfg.Timezone != e.cfg.Timezone
	e.applyLocked(cfg)

	var old *cron.Cron
	if rearm {
		loc := e.loadLocationLocked()
		c := cron.New(cron.WithLocation(loc))
		if _, err := c.AddFunc("0 0 * * *", e.resetDaily); err != nil {
			e.mu.Unlock()
			e.log.Warn("re-arming daily reset failed, keeping previous timezone", logx.Err(err))
			return
		}
		c.Start()
		e.loc = loc
		old = e.cron
		e.cron = c
		e.log.Info("engine timezone changed", logx.String("tz", loc.String()))
	}
	e.mu.Unlock()

	if old != nil {
		<-old.Stop().Done()
	}
}

func (e *Engine) applyLocked(cfg Config) {
	// Defaults
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.PerKeyThrottle <= 0 {
		cfg.PerKeyThrottle = 5 * time.Minute
	}
	if cfg.MinDispatchInterval <= 0 {
		cfg.MinDispatchInterval = 60 * time.Second
	}
	if cfg.QuietStartHour == 0 && cfg.QuietEndHour == 0 {
		w := DefaultQuietWindow()
		cfg.QuietStartHour = w.StartHour
		cfg.QuietEndHour = w.EndHour
	}

	// Keep pacing state across reconfiguration unless the interval changed.
	if e.limiter == nil || cfg.MinDispatchInterval != e.cfg.MinDispatchInterval {
		e.limiter = rate.NewLimiter(rate.Every(cfg.MinDispatchInterval), 1)
	}

	e.cfg = cfg
	e.quiet = QuietWindow{StartHour: cfg.QuietStartHour, EndHour: cfg.QuietEndHour}
	e.quotas = resolveQuotas(cfg.Quotas)
}

// Start is idempotent. It seeds the ledger from persisted stamps, starts the
// stamp persist loop, and arms the midnight reset.
func (e *Engine) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return nil
	}
	if !e.cfg.Enabled {
		e.mu.Unlock()
		return nil
	}

	loc := e.loadLocationLocked()
	e.loc = loc

	e.sup = rtsup.New(ctx,
		rtsup.WithLogger(e.log.With(logx.String("comp", "engine"))),
		// Engine failures are best-effort; never take down the whole app.
		rtsup.WithCancelOnError(false),
	)
	e.runCtx = e.sup.Context()
	if e.store != nil {
		e.persistCh = make(chan stampWrite, 1024)
	}
	e.running = true
	sup := e.sup
	pch := e.persistCh
	st := e.store
	cfg := e.cfg
	e.mu.Unlock()

	// Cross-restart throttling: reload last-sent stamps.
	if st != nil {
		cctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		raw, err := st.LoadStamps(cctx)
		cancel()
		if err != nil {
			e.log.Warn("loading last-sent stamps failed", logx.Err(err))
		} else if len(raw) > 0 {
			stamps := make(map[ThrottleKey]time.Time, len(raw))
			for k, at := range raw {
				if key, ok := ParseThrottleKey(k); ok {
					stamps[key] = at
				}
			}
			e.ledger.Seed(stamps)
			e.log.Debug("ledger seeded", logx.Int("stamps", len(stamps)))
		}
	}

	if pch != nil {
		sup.GoRestart("stamps.persist", func(c context.Context) error {
			e.persistLoop(c, pch, st)
			return c.Err()
		}, rtsup.WithPublishFirstError(true))
	}

	c := cron.New(cron.WithLocation(loc))
	if _, err := c.AddFunc("0 0 * * *", e.resetDaily); err != nil {
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
		sup.Cancel()
		return err
	}
	c.Start()
	e.mu.Lock()
	e.cron = c
	e.mu.Unlock()

	e.log.Info("engine started",
		logx.Duration("per_key_throttle", cfg.PerKeyThrottle),
		logx.Duration("min_dispatch_interval", cfg.MinDispatchInterval),
		logx.String("tz", loc.String()))
	return nil
}

// Stop halts intake, drops pending entries, and waits for internal loops
// best-effort until ctx expires. Daily counts and last-sent stamps survive
// in the ledger (and store).
func (e *Engine) Stop(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}

	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	e.queue = nil
	cancelDrain := e.drainCancel
	e.drainCancel = nil
	c := e.cron
	e.cron = nil
	sup := e.sup
	e.sup = nil
	// persistCh is never closed: a Schedule racing with Stop may still hold a
	// reference and send. The persist loop exits on supervisor cancellation,
	// and any stragglers land in the buffer and get collected with it.
	e.persistCh = nil
	e.mu.Unlock()

	if cancelDrain != nil {
		cancelDrain()
	}
	if c != nil {
		<-c.Stop().Done()
	}
	if sup != nil {
		_ = sup.Stop(ctx)
	}
	e.log.Info("engine stopped")
}

// Schedule submits a notification request. It is fire-and-forget: policy
// rejections are silent (logged and published on the bus), and an error is
// returned only when the engine cannot accept work at all.
func (e *Engine) Schedule(ctx context.Context, req Request) error {
	if ctx == nil {
		ctx = context.Background()
	}

	e.mu.Lock()
	if !e.cfg.Enabled {
		e.mu.Unlock()
		return ErrDisabled
	}
	if !e.running {
		e.mu.Unlock()
		return ErrStopped
	}
	perm := e.perm
	e.mu.Unlock()

	// No permission, no queueing. Silent by contract.
	if perm != nil && !perm.DeliveryPermitted(ctx) {
		e.log.Debug("delivery not permitted, dropping request",
			logx.String("category", req.Category.String()),
			logx.String("title", req.Title))
		return nil
	}

	if strings.TrimSpace(req.ID) == "" {
		req.ID = uuid.NewString()
	}
	if req.Delay < 0 {
		req.Delay = 0
	}

	now := e.now()
	rej, ok := e.admit(req, now)
	if !ok {
		e.publishGate(eventbus.Rejected, req, rej, now)
		return nil
	}
	e.publishGate(eventbus.Admitted, req, Rejection{}, now)

	e.enqueue(PendingEntry{
		Request:    req,
		AdmittedAt: now,
		FireAt:     now.Add(req.Delay),
	})
	return nil
}

// Cancel removes a pending entry by request ID. No-op if it was already
// dispatched or never admitted.
func (e *Engine) Cancel(id string) {
	e.mu.Lock()
	for i := range e.queue {
		if e.queue[i].Request.ID == id {
			e.queue = append(e.queue[:i], e.queue[i+1:]...)
			break
		}
	}
	e.mu.Unlock()
}

// CancelByPrefix removes every pending entry whose request ID starts with
// prefix. Used by the recurring-reminder expansion.
func (e *Engine) CancelByPrefix(prefix string) {
	if prefix == "" {
		return
	}
	e.mu.Lock()
	kept := e.queue[:0]
	for _, ent := range e.queue {
		if !strings.HasPrefix(ent.Request.ID, prefix) {
			kept = append(kept, ent)
		}
	}
	e.queue = kept
	e.mu.Unlock()
}

// CancelAll drops every pending entry and stops the current drain pass.
// The ledger is untouched: already-committed notifications keep counting
// against the day's quota.
func (e *Engine) CancelAll() {
	e.mu.Lock()
	e.queue = nil
	cancel := e.drainCancel
	e.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Pending returns a copy of the pacer queue, oldest first.
func (e *Engine) Pending() []PendingEntry {
	e.mu.Lock()
	out := append([]PendingEntry(nil), e.queue...)
	e.mu.Unlock()
	return out
}

// Snapshot returns a point-in-time operational view.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	snap := Snapshot{
		Enabled:      e.cfg.Enabled,
		QueueLen:     len(e.queue),
		Draining:     e.draining,
		LastDispatch: e.lastDispatch,
		Pending:      append([]PendingEntry(nil), e.queue...),
	}
	e.mu.Unlock()
	snap.DailyCounts = e.ledger.Counts()
	return snap
}

// History returns the bounded in-memory delivery history, oldest first.
func (e *Engine) History() []DeliveryRecord {
	e.hmu.Lock()
	out := append([]DeliveryRecord(nil), e.history...)
	e.hmu.Unlock()
	return out
}

func (e *Engine) appendHistory(rec DeliveryRecord) {
	e.hmu.Lock()
	e.history = append(e.history, rec)
	if len(e.history) > 300 {
		e.history = e.history[len(e.history)-300:]
	}
	e.hmu.Unlock()
}

// resetDaily clears per-category counts. Wired to the midnight cron entry;
// also called directly by tests.
func (e *Engine) resetDaily() {
	e.ledger.ResetDaily()
	now := e.now()
	e.ledger.PruneLastSent(now, stampRetention)
	if e.bus != nil {
		e.bus.Publish(eventbus.Event{Type: eventbus.DailyReset, Time: now})
	}
	e.log.Info("daily notification counts reset")
}

func (e *Engine) persistStamp(key ThrottleKey, at time.Time) {
	e.mu.Lock()
	ch := e.persistCh
	e.mu.Unlock()
	if ch == nil {
		return
	}
	// Never block admission on persistence.
	select {
	case ch <- stampWrite{key: key, at: at}:
	default:
	}
}

func (e *Engine) persistLoop(ctx context.Context, ch <-chan stampWrite, st storage.Store) {
	if ch == nil || st == nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case w := <-ch:
			cctx, cancel := context.WithTimeout(context.Background(), 250*time.Millisecond)
			_ = st.PutStamp(cctx, w.key.String(), w.at)
			cancel()
		}
	}
}

func (e *Engine) loadLocationLocked() *time.Location {
	tz := strings.TrimSpace(e.cfg.Timezone)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		e.log.Warn("invalid timezone, falling back to Local", logx.String("tz", tz), logx.Err(err))
		return time.Local
	}
	return loc
}

func (e *Engine) location() *time.Location {
	e.mu.Lock()
	loc := e.loc
	e.mu.Unlock()
	if loc == nil {
		return time.Local
	}
	return loc
}

func (e *Engine) now() time.Time {
	if e.nowFn != nil {
		return e.nowFn()
	}
	return time.Now()
}
