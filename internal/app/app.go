package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"planbot/internal/config"
	"planbot/internal/eventbus"
	"planbot/internal/inference"
	"planbot/internal/observability"
	"planbot/internal/planner"
	"planbot/internal/plugin"
	plannerplugin "planbot/internal/plugin/builtin/planner"
	"planbot/internal/plugin/builtin/status"
	"planbot/internal/runtime/supervisor"
	"planbot/internal/storage"
	kit "planbot/internal/transport"
	telegram "planbot/internal/transport/telegram/adapter"
	"planbot/internal/transport/telegram/router"
	logx "planbot/pkg/logx"
)

type App struct {
	cfgm *config.ConfigManager
	sup  *supervisor.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store
	ret   *storage.Retention

	adapter *telegram.Adapter
	cmdm    *router.CommandManager
	pm      *plugin.Manager
	metrics *observability.Server

	reg        *prometheus.Registry
	infMetrics *inference.Metrics
	plMetrics  *planner.Metrics
	pipeline   atomic.Pointer[planner.Pipeline]

	updates chan kit.Update
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		return nil, errors.New("telegram.token is required (or set PLANBOT_TELEGRAM_TOKEN)")
	}
	if err := validateMapped(cfg); err != nil {
		return nil, err
	}

	bootLog := logx.NewConsole("INFO").With(logx.String("comp", "telegram"))
	pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return nil, err
	}
	ad, err := telegram.New(telegram.Config{Token: cfg.Telegram.Token, PollTimeout: pollTimeout}, bootLog)
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(mapLogging(cfg), ad)
	log = log.With(logx.String("comp", "app"))

	a := &App{
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		bus:     eventbus.New(),
		adapter: ad,
		reg:     prometheus.NewRegistry(),
		updates: make(chan kit.Update, 256),
	}
	a.reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.infMetrics = inference.NewMetrics(a.reg)
	a.plMetrics = planner.NewMetrics(a.reg)

	if err := a.rebuildPipeline(cfg); err != nil {
		return nil, err
	}

	if sc, enabled, err := mapStorage(cfg); err != nil {
		return nil, err
	} else if enabled {
		st, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
		if err != nil {
			return nil, err
		}
		a.store = st
		log.Info("storage enabled", logx.String("driver", sc.Driver))
	}
	rc, err := mapRetention(cfg)
	if err != nil {
		return nil, err
	}
	a.ret = storage.NewRetention(a.store, rc, log)

	a.cmdm = router.NewCommandManager(log.With(logx.String("comp", "commands")), ad,
		router.WithRateLimit(mapRateLimit(cfg)))
	a.pm = plugin.NewManager(log.With(logx.String("comp", "plugins")), plugin.Deps{
		Logger:   log,
		Adapter:  ad,
		Config:   cfgm,
		Bus:      a.bus,
		Store:    a.store,
		Pipeline: a.pipeline.Load,
		Health:   a.health,
	}, a.cmdm)
	if err := a.pm.Register(plannerplugin.New(), status.New()); err != nil {
		return nil, err
	}

	a.metrics = observability.New(mapMetrics(cfg), log.With(logx.String("comp", "metrics")), a.reg, a.health)
	return a, nil
}

// rebuildPipeline swaps in a pipeline built from cfg. Requests already
// running keep the pipeline they started with.
func (a *App) rebuildPipeline(cfg *config.Config) error {
	p, err := buildPipeline(cfg, a.log, a.bus, a.infMetrics, a.plMetrics)
	if err != nil {
		return err
	}
	a.pipeline.Store(p)
	return nil
}

func (a *App) Plugins() *plugin.Manager { return a.pm }

// Pipeline returns the pipeline currently serving requests.
func (a *App) Pipeline() *planner.Pipeline { return a.pipeline.Load() }

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

func (a *App) health() map[string]supervisor.Snapshot {
	out := map[string]supervisor.Snapshot{}
	add := func(name string, s *supervisor.Supervisor) {
		if s != nil {
			out[name] = s.Snapshot()
		}
	}
	add("app", a.sup)
	add("telegram.adapter", a.adapter.Supervisor())
	add("commands", a.cmdm.Supervisor())
	add("metrics", a.metrics.Supervisor())
	for name, s := range a.pm.Supervisors() {
		add(name, s)
	}
	return out
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		return validateMapped(cfg)
	})

	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return err
	}
	if err := a.pm.StartAll(a.sup.Context()); err != nil {
		return err
	}
	a.sup.Go("commands.dispatch", func(c context.Context) error {
		return a.cmdm.DispatchLoop(c, a.updates)
	})
	if err := a.ret.Start(a.sup.Context()); err != nil {
		return fmt.Errorf("retention: %w", err)
	}
	if err := a.metrics.Start(a.sup.Context()); err != nil {
		return err
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
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				// coalesce bursts, keep only the latest
			drain:
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						break drain
					}
				}
				a.applyConfig(c, lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	if ok, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		a.log.Warn("sd_notify ready failed", logx.Err(err))
	} else if ok {
		a.log.Debug("sd_notify ready sent")
	}
	a.log.Info("app started")
	return nil
}

func (a *App) applyConfig(ctx context.Context, oldCfg, newCfg *config.Config) {
	sections, attrs := config.SummarizeConfigChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	if restart := config.RestartRequired(sections); len(restart) > 0 {
		a.log.Warn("config sections changed that need a restart", logx.Strings("sections", restart))
	}

	a.logs.Apply(mapLogging(newCfg))

	if err := a.rebuildPipeline(newCfg); err != nil {
		a.log.Warn("invalid planner or inference config; keeping previous", logx.Err(err))
	}
	a.cmdm.SetRateLimit(mapRateLimit(newCfg))
	if rc, err := mapRetention(newCfg); err == nil {
		a.ret.Apply(rc)
	}
	a.pm.OnConfigUpdate(ctx, newCfg)

	a.bus.Publish(eventbus.Event{Type: eventbus.ConfigReloaded, Time: time.Now(), Data: sections})
	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	a.sup.Cancel()

	// step bounds one shutdown stage so a stuck component cannot stall the rest.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		stepCtx := ctx
		if max > 0 {
			if dl, ok := ctx.Deadline(); ok {
				if rem := time.Until(dl); rem < max {
					max = rem
				}
			}
			if max > 0 {
				var cancel context.CancelFunc
				stepCtx, cancel = context.WithTimeout(ctx, max)
				defer cancel()
			}
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
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
		}
	}

	step("plugins", 4*time.Second, func(c context.Context) error { a.pm.StopAll(c); return nil })
	step("retention", time.Second, func(c context.Context) error { a.ret.Stop(c); return nil })
	step("metrics", time.Second, func(c context.Context) error { a.metrics.Stop(c); return nil })
	step("adapter", 2*time.Second, func(c context.Context) error { return a.adapter.Stop(c) })
	step("storage", time.Second, func(context.Context) error {
		if a.store != nil {
			return a.store.Close()
		}
		return nil
	})
	step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })

	a.log.Info("stopped")
	return a.logs.Close()
}
