// Package app wires configuration, storage, the delivery sink and the
// engine into a single daemon lifecycle.
package app

import (
	"context"
	"fmt"
	"time"

	"nudged/internal/config"
	"nudged/internal/engine"
	"nudged/internal/eventbus"
	"nudged/internal/runtime/supervisor"
	"nudged/internal/settings"
	"nudged/internal/sink"
	"nudged/internal/storage"
	logx "nudged/pkg/logx"
)

type App struct {
	cfgPath string

	cfgm *config.Manager
	sup  *supervisor.Supervisor

	log  logx.Logger
	logs *logx.Service

	bus   eventbus.Bus
	store storage.Store
	sets  *settings.Store
	snk   engine.Sink
	eng   *engine.Engine
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(mapLogging(cfg))
	log = log.With(logx.String("comp", "app"))

	stCfg, err := mapStorage(cfg)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(stCfg, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}

	sets := settings.NewStore(store, log.With(logx.String("comp", "settings")))
	if err := sets.Load(context.Background()); err != nil {
		return nil, err
	}

	skCfg, err := mapSink(cfg)
	if err != nil {
		return nil, err
	}
	snk, err := sink.Open(skCfg, log.With(logx.String("comp", "sink")))
	if err != nil {
		return nil, err
	}

	engCfg, err := mapEngine(cfg)
	if err != nil {
		return nil, err
	}

	bus := eventbus.New()
	eng := engine.New(engCfg, snk, sets, newPermission(cfg),
		log.With(logx.String("comp", "engine")), bus, store)

	return &App{
		cfgPath: cfgPath,
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		bus:     bus,
		store:   store,
		sets:    sets,
		snk:     snk,
		eng:     eng,
	}, nil
}

// Engine exposes the scheduling engine for embedding callers.
func (a *App) Engine() *engine.Engine { return a.eng }

// Settings exposes the user preference store.
func (a *App) Settings() *settings.Store { return a.sets }

// Bus exposes the internal event stream (admissions, rejections, dispatches).
func (a *App) Bus() eventbus.Bus { return a.bus }

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))

	// transactional config reload: validate before commit/publish
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		if cfg.Engine.QueueSize < 0 {
			return fmt.Errorf("engine.queue_size must be >= 0")
		}
		if _, err := mapEngine(cfg); err != nil {
			return err
		}
		// storage and sink drivers are fixed at boot; reject attempts to
		// hot-swap them so a reload can't half-apply.
		cur := a.cfgm.Get()
		if cur != nil {
			if driverOf(cur.Storage) != driverOf(cfg.Storage) {
				return fmt.Errorf("storage.driver cannot change at runtime")
			}
			if cur.Sink.Driver != cfg.Sink.Driver {
				return fmt.Errorf("sink.driver cannot change at runtime")
			}
		}
		return nil
	})

	if err := a.eng.Start(a.sup.Context()); err != nil {
		return err
	}

	// hot reload config fan-out
	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts: keep only the latest config in the channel.
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						goto APPLY
					}
				}
			APPLY:
				a.logs.Apply(mapLogging(newCfg))

				engCfg, err := mapEngine(newCfg)
				if err != nil {
					// validator should have caught this; keep the old policy
					a.log.Warn("engine config rejected on reload", logx.Err(err))
					continue
				}
				a.eng.Apply(engCfg)

				a.log.Info("config reloaded")
			}
		}
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.log.Info("app started")
	return nil
}

func (a *App) Stop(ctx context.Context) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping")

	// Cancel the run context first so background loops start unwinding.
	a.sup.Cancel()

	// Run a shutdown step with an upper bound so one component can't stall
	// the whole stop.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()

		stepCtx := ctx
		var cancel context.CancelFunc
		if max > 0 {
			if dl, ok := ctx.Deadline(); ok {
				if rem := time.Until(dl); rem > 0 && rem < max {
					max = rem
				}
			}
			stepCtx, cancel = context.WithTimeout(ctx, max)
			defer cancel()
		}

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn(
				"stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Duration("elapsed", time.Since(start)),
			)
		}
	}

	step("engine", 3*time.Second, func(c context.Context) error { a.eng.Stop(c); return nil })
	if closer, ok := a.snk.(interface{ Close() error }); ok {
		step("sink", 1*time.Second, func(context.Context) error { return closer.Close() })
	}
	if a.store != nil {
		step("storage", 1*time.Second, func(context.Context) error { return a.store.Close() })
	}
	step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })

	a.log.Info("stopped")
	return nil
}

func driverOf(cfg *config.StorageConfig) string {
	if cfg == nil {
		return ""
	}
	return cfg.Driver
}
