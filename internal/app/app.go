package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"intentd/internal/config"
	"intentd/internal/eventbus"
	"intentd/internal/executor"
	"intentd/internal/intent"
	"intentd/internal/runtime/supervisor"
	"intentd/internal/storage"
	"intentd/internal/task/engine"
	"intentd/internal/task/reclaim"
	"intentd/internal/validate"
	logx "intentd/pkg/logx"
)

// App owns every per-process component: logging, the intake pipeline, the
// task engine, the reclaimer and the optional archive store.
type App struct {
	cfgm *config.Manager
	sup  *supervisor.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	parser    *intent.Parser
	validator *validate.Validator
	engine    *engine.Service
	reclaim   *reclaim.Service

	watch bool

	mu      sync.RWMutex
	limiter *rate.Limiter // nil when submissions are unthrottled
}

type options struct {
	exec    executor.Executor
	console io.Writer
	watch   bool
}

type Option func(*options)

// WithExecutor sets the executor tasks are dispatched to. The default routes
// both kinds to executor.DryRun.
func WithExecutor(e executor.Executor) Option { return func(o *options) { o.exec = e } }

// WithConsole redirects console logging (stderr by default).
func WithConsole(w io.Writer) Option { return func(o *options) { o.console = w } }

// WithoutWatch disables config hot reload.
func WithoutWatch() Option { return func(o *options) { o.watch = false } }

// NewFromPath loads the config file at path (empty for defaults) and builds the app.
func NewFromPath(ctx context.Context, path string, opts ...Option) (*App, error) {
	cfgm := config.NewManager(path)
	if _, err := cfgm.Load(); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return New(ctx, cfgm, opts...)
}

// New builds the app from the manager's current config.
func New(ctx context.Context, cfgm *config.Manager, opts ...Option) (*App, error) {
	o := options{exec: executor.Router{Web: executor.DryRun{}, Desktop: executor.DryRun{}}, watch: true}
	for _, fn := range opts {
		fn(&o)
	}
	cfg := cfgm.Get()
	if cfg == nil {
		var err error
		if cfg, err = cfgm.Load(); err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
	}
	s, err := resolve(cfg)
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.NewWithConsole(s.Log, o.console)
	bus := eventbus.New()

	store, err := storage.Open(ctx, storage.Config{
		Driver:      s.Storage.Driver,
		Path:        s.Storage.Path,
		DSN:         s.Storage.DSN,
		BusyTimeout: s.Storage.BusyTimeout,
	}, log.With(logx.String("comp", "storage")))
	if err != nil {
		_ = logSvc.Close()
		return nil, fmt.Errorf("open storage: %w", err)
	}
	if store != nil {
		log.Info("storage enabled", logx.String("driver", s.Storage.Driver))
	}

	eng := engine.New(engine.Config{
		Concurrency: s.Concurrency,
		BaseDelay:   s.RetryBaseDelay,
		MaxDelay:    s.RetryMaxDelay,
		ExecTimeout: s.ExecTimeout,
	}, o.exec, log.With(logx.String("comp", "taskengine")), bus)

	var ropts []reclaim.Option
	if store != nil {
		ropts = append(ropts, reclaim.WithArchiver(storeArchiver{store: store}))
	}
	rec := reclaim.New(reclaimConfig(s.Reclaim), eng, log.With(logx.String("comp", "reclaim")), bus, ropts...)

	a := &App{
		cfgm:      cfgm,
		log:       log.With(logx.String("comp", "app")),
		logs:      logSvc,
		bus:       bus,
		store:     store,
		parser:    intent.NewParser(intent.WithCache(s.CacheSize, s.CacheTTL)),
		validator: validate.New(),
		engine:    eng,
		reclaim:   rec,
		watch:     o.watch,
	}
	a.setRate(s.SubmitRate, s.SubmitBurst)
	return a, nil
}

// resolve validates cfg, including checks owned by other packages.
func resolve(cfg *config.Config) (config.Settings, error) {
	s, err := cfg.Resolve()
	if err != nil {
		return s, err
	}
	if s.Reclaim.Enabled && s.Reclaim.Schedule != "" {
		if _, err := reclaim.NormalizeSchedule(s.Reclaim.Schedule); err != nil {
			return s, fmt.Errorf("reclaimer.schedule: %w", err)
		}
	}
	return s, nil
}

func reclaimConfig(r config.Reclaim) reclaim.Config {
	return reclaim.Config{
		Enabled:         r.Enabled,
		Schedule:        r.Schedule,
		MaxAge:          r.MaxAge,
		MaxTerminal:     r.MaxTerminal,
		MemoryThreshold: r.MemoryThreshold,
	}
}

func (a *App) Logger() logx.Logger { return a.log }
func (a *App) Bus() eventbus.Bus { return a.bus }
func (a *App) Engine() *engine.Service { return a.engine }
func (a *App) Reclaimer() *reclaim.Service { return a.reclaim }
func (a *App) Config() *config.Config { return a.cfgm.Get() }

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

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		_, err := resolve(cfg)
		return err
	})

	a.engine.Start(a.sup.Context())
	if err := a.reclaim.Start(a.sup.Context()); err != nil {
		a.sup.Cancel()
		return fmt.Errorf("start reclaimer: %w", err)
	}

	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				fields := []logx.Field{logx.String("type", e.Type)}
				if te, ok := e.Data.(engine.TaskEvent); ok {
					fields = append(fields, logx.String("task", te.ID), logx.Int("retry", te.RetryCount))
				}
				a.log.Trace("event", fields...)
			}
		}
	})

	if a.watch {
		sub := a.cfgm.Subscribe(8)
		a.sup.Go0("config.reload", func(c context.Context) {
			defer a.cfgm.Unsubscribe(sub)
			last := a.cfgm.Get()
			for {
				select {
				case <-c.Done():
					return
				case cfg, ok := <-sub:
					if !ok {
						return
					}
					a.applyConfig(last, cfg)
					last = cfg
				}
			}
		})
		a.sup.Go("config.watch", func(c context.Context) error {
			return a.cfgm.Watch(c)
		})
	}

	a.log.Info("app started", logx.Int("concurrency", a.engine.Config().Concurrency))
	return nil
}

// Stop shuts everything down. On an app that was never started it only
// releases the store and log sinks.
func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return a.release()
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	a.sup.Cancel()

	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		stepCtx, cancel := context.WithTimeout(ctx, max)
		defer cancel()
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
			a.log.Warn("stop step deadline reached (continuing)", logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
		}
	}

	step("reclaimer", time.Second, func(c context.Context) error { a.reclaim.Stop(c); return nil })
	step("taskengine", 2*time.Second, a.engine.Stop)
	step("supervisor", 2*time.Second, a.sup.Wait)
	step("storage", time.Second, func(context.Context) error {
		if a.store != nil {
			return a.store.Close()
		}
		return nil
	})

	a.log.Info("stopped")
	return a.logs.Close()
}

func (a *App) release() error {
	var err error
	if a.store != nil {
		err = a.store.Close()
	}
	return errors.Join(err, a.logs.Close())
}
