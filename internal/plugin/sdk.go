// Package plugin hosts the chat features of the bot. Each plugin contributes
// commands and callback routes and owns its background goroutines.
package plugin

import (
	"context"
	"errors"

	"planbot/internal/config"
	"planbot/internal/eventbus"
	"planbot/internal/planner"
	"planbot/internal/runtime/supervisor"
	"planbot/internal/storage"
	kit "planbot/internal/transport"
	"planbot/internal/transport/telegram/router"
	logx "planbot/pkg/logx"
)

type (
	Command       = router.Command
	CallbackRoute = router.CallbackRoute
	Request       = router.Request
)

type Plugin interface {
	Name() string
	Init(ctx context.Context, deps Deps) error
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Commands() []Command
}

type CallbackProvider interface {
	Callbacks() []CallbackRoute
}

// ConfigurablePlugin is notified after a new config has been committed.
type ConfigurablePlugin interface {
	OnConfigChange(ctx context.Context, cfg *config.Config) error
}

type Deps struct {
	Logger  logx.Logger
	Adapter kit.Adapter
	Config  *config.ConfigManager
	Bus     eventbus.Bus
	Store   storage.Store // nil when persistence is disabled

	// Pipeline returns the current pipeline; it is rebuilt on config reload.
	Pipeline func() *planner.Pipeline
	// Health reports the supervisors of the running components.
	Health func() map[string]supervisor.Snapshot
}

// Base carries the logger, deps and per-plugin supervisor shared by plugins.
type Base struct {
	Log    logx.Logger
	Deps   Deps
	Runner *supervisor.Supervisor
	name   string
}

func (b *Base) InitBase(deps Deps, name string) {
	b.Deps = deps
	b.name = name
	log := deps.Logger
	if log.IsZero() {
		log = logx.Nop()
	}
	b.Log = log.With(logx.String("plugin", name))
	if b.Deps.Bus == nil {
		b.Deps.Bus = eventbus.Nop{}
	}
}

func (b *Base) StartBase(ctx context.Context) {
	b.Runner = supervisor.New(ctx, supervisor.WithLogger(b.Log))
}

func (b *Base) StopBase(ctx context.Context) error {
	if b.Runner == nil {
		return nil
	}
	err := b.Runner.Stop(ctx)
	b.Runner = nil
	return err
}

// Supervisor exposes the plugin goroutines to health reporting.
func (b *Base) Supervisor() *supervisor.Supervisor { return b.Runner }

func (b *Base) Publish(typ string, data any) {
	b.Deps.Bus.Publish(eventbus.Event{Type: typ, Data: data})
}

// Pipeline returns the active pipeline or an error when none is configured.
func (b *Base) Pipeline() (*planner.Pipeline, error) {
	if b.Deps.Pipeline == nil {
		return nil, errors.New("planner not available")
	}
	p := b.Deps.Pipeline()
	if p == nil {
		return nil, errors.New("planner not available")
	}
	return p, nil
}
