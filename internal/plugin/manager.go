package plugin

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"planbot/internal/config"
	"planbot/internal/eventbus"
	"planbot/internal/runtime/supervisor"
	"planbot/internal/transport/telegram/router"
	logx "planbot/pkg/logx"
)

type PluginEvent struct {
	Plugin string
	Stage  string
	Err    string
}

type Manager struct {
	mu      sync.Mutex
	log     logx.Logger
	deps    Deps
	cmdm    *router.CommandManager
	order   []Plugin
	running map[string]bool

	// StartTimeout bounds each Start call.
	StartTimeout time.Duration
}

func NewManager(log logx.Logger, deps Deps, cmdm *router.CommandManager) *Manager {
	if log.IsZero() {
		log = logx.Nop()
	}
	if deps.Bus == nil {
		deps.Bus = eventbus.Nop{}
	}
	return &Manager{log: log, deps: deps, cmdm: cmdm, running: map[string]bool{}, StartTimeout: 10 * time.Second}
}

// Register adds plugins in start order. Names must be unique.
func (pm *Manager) Register(ps ...Plugin) error {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	for _, p := range ps {
		for _, have := range pm.order {
			if have.Name() == p.Name() {
				return fmt.Errorf("plugin %q registered twice", p.Name())
			}
		}
		pm.order = append(pm.order, p)
	}
	return nil
}

// StartAll inits and starts plugins in order. A failing plugin is logged and
// left out of the command registry; the others keep running.
func (pm *Manager) StartAll(ctx context.Context) error {
	pm.mu.Lock()
	order := append([]Plugin(nil), pm.order...)
	pm.mu.Unlock()

	started := 0
	for _, p := range order {
		name := p.Name()
		t0 := time.Now()
		err := pm.safeCall("plugin.init."+name, func() error { return p.Init(ctx, pm.deps) })
		if err == nil {
			err = pm.startWithTimeout(ctx, name, p)
		}
		if err != nil {
			pm.log.Error("plugin failed to start", logx.String("plugin", name), logx.Err(err))
			pm.emit("plugin.start_failed", PluginEvent{Plugin: name, Err: err.Error()})
			continue
		}
		pm.mu.Lock()
		pm.running[name] = true
		pm.mu.Unlock()
		started++
		pm.log.Info("plugin started", logx.String("plugin", name), logx.Duration("took", time.Since(t0)))
		pm.emit("plugin.started", PluginEvent{Plugin: name})
	}
	pm.refreshRegistry()
	if started == 0 && len(order) > 0 {
		return fmt.Errorf("no plugin started")
	}
	return nil
}

// StopAll stops running plugins in reverse start order.
func (pm *Manager) StopAll(ctx context.Context) {
	pm.mu.Lock()
	order := append([]Plugin(nil), pm.order...)
	pm.mu.Unlock()

	for i := len(order) - 1; i >= 0; i-- {
		p := order[i]
		name := p.Name()
		pm.mu.Lock()
		was := pm.running[name]
		delete(pm.running, name)
		pm.mu.Unlock()
		if !was {
			continue
		}
		sctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := pm.safeCall("plugin.stop."+name, func() error { return p.Stop(sctx) }); err != nil {
			pm.log.Warn("plugin stop failed", logx.String("plugin", name), logx.Err(err))
		}
		cancel()
		pm.emit("plugin.stopped", PluginEvent{Plugin: name})
	}
	pm.refreshRegistry()
}

// OnConfigUpdate forwards a committed config to every running plugin that
// wants it, then refreshes the command registry.
func (pm *Manager) OnConfigUpdate(ctx context.Context, cfg *config.Config) {
	for _, p := range pm.runningPlugins() {
		cp, ok := p.(ConfigurablePlugin)
		if !ok {
			continue
		}
		name := p.Name()
		cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := pm.safeCall("plugin.config."+name, func() error { return cp.OnConfigChange(cctx, cfg) }); err != nil {
			pm.log.Warn("plugin rejected config change", logx.String("plugin", name), logx.Err(err))
			pm.emit("plugin.config_failed", PluginEvent{Plugin: name, Err: err.Error()})
		}
		cancel()
	}
	pm.refreshRegistry()
}

// Supervisors returns the supervisors of running plugins, keyed by name.
func (pm *Manager) Supervisors() map[string]*supervisor.Supervisor {
	out := map[string]*supervisor.Supervisor{}
	for _, p := range pm.runningPlugins() {
		if sp, ok := p.(interface{ Supervisor() *supervisor.Supervisor }); ok {
			if s := sp.Supervisor(); s != nil {
				out["plugin."+p.Name()] = s
			}
		}
	}
	return out
}

func (pm *Manager) runningPlugins() []Plugin {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	out := make([]Plugin, 0, len(pm.order))
	for _, p := range pm.order {
		if pm.running[p.Name()] {
			out = append(out, p)
		}
	}
	return out
}

func (pm *Manager) emit(typ string, ev PluginEvent) {
	pm.deps.Bus.Publish(eventbus.Event{Type: typ, Data: ev})
}

func (pm *Manager) startWithTimeout(ctx context.Context, name string, p Plugin) error {
	done := make(chan error, 1)
	go func() {
		done <- pm.safeCall("plugin.start."+name, func() error { return p.Start(ctx) })
	}()
	if pm.StartTimeout <= 0 {
		return <-done
	}
	t := time.NewTimer(pm.StartTimeout)
	defer t.Stop()
	select {
	case err := <-done:
		return err
	case <-t.C:
		return fmt.Errorf("start timeout (%s)", pm.StartTimeout)
	}
}

func (pm *Manager) safeCall(label string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			pm.log.Error("panic in plugin call",
				logx.String("call", label),
				logx.Any("panic", r),
				logx.String("stack", string(debug.Stack())),
			)
			err = fmt.Errorf("panic in %s: %v", label, r)
		}
	}()
	return fn()
}

func (pm *Manager) refreshRegistry() {
	if pm.cmdm == nil {
		return
	}
	var cmds []Command
	var cbs []CallbackRoute
	for _, p := range pm.runningPlugins() {
		name := p.Name()
		var pc []Command
		_ = pm.safeCall("plugin.commands."+name, func() error { pc = p.Commands(); return nil })
		for _, c := range pc {
			c.PluginName = name
			cmds = append(cmds, c)
		}
		if cbp, ok := p.(CallbackProvider); ok {
			var pr []CallbackRoute
			_ = pm.safeCall("plugin.callbacks."+name, func() error { pr = cbp.Callbacks(); return nil })
			cbs = append(cbs, pr...)
		}
	}
	pm.cmdm.SetRegistry(cmds, cbs)
}
