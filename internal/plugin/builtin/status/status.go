// Package status answers liveness probes from chat: /ping, /uptime and
// /status with the supervisor health of every running component.
package status

import (
	"context"
	"fmt"
	"runtime"
	"runtime/debug"
	"sort"
	"strings"
	"time"

	"planbot/internal/plugin"
	"planbot/internal/runtime/supervisor"
	"planbot/pkg/tgui"
)

type Plugin struct {
	plugin.Base
	startedAt time.Time
	now       func() time.Time
}

func New() *Plugin             { return &Plugin{now: time.Now} }
func (p *Plugin) Name() string { return "status" }

func (p *Plugin) Init(_ context.Context, deps plugin.Deps) error {
	p.InitBase(deps, p.Name())
	if p.startedAt.IsZero() {
		p.startedAt = p.now()
	}
	return nil
}

func (p *Plugin) Start(ctx context.Context) error {
	p.StartBase(ctx)
	return nil
}

func (p *Plugin) Stop(ctx context.Context) error { return p.StopBase(ctx) }

func (p *Plugin) Commands() []plugin.Command {
	return []plugin.Command{
		{
			Name:        "ping",
			Description: "liveness check",
			Usage:       "/ping",
			Handle: func(ctx context.Context, req *plugin.Request) error {
				_, err := req.Reply(ctx, "pong", nil)
				return err
			},
		},
		{
			Name:        "uptime",
			Aliases:     []string{"up"},
			Description: "show process uptime",
			Usage:       "/uptime",
			Handle: func(ctx context.Context, req *plugin.Request) error {
				_, err := req.Reply(ctx, "uptime: "+durRel(p.now().Sub(p.startedAt)), nil)
				return err
			},
		},
		{
			Name:        "status",
			Aliases:     []string{"health"},
			Description: "component health and runtime info",
			Usage:       "/status",
			Handle:      p.cmdStatus,
		},
	}
}

func (p *Plugin) cmdStatus(ctx context.Context, req *plugin.Request) error {
	_, err := req.Reply(ctx, p.render().String(), nil)
	return err
}

func (p *Plugin) render() tgui.H {
	var snaps map[string]supervisor.Snapshot
	if p.Deps.Health != nil {
		snaps = p.Deps.Health()
	}
	names := make([]string, 0, len(snaps))
	for n := range snaps {
		names = append(names, n)
	}
	sort.Strings(names)

	healthy := true
	lines := make([]tgui.H, 0, len(names)+8)
	for _, n := range names {
		s := snaps[n]
		mark := "✅"
		if !s.Healthy {
			mark, healthy = "⚠️", false
		}
		line := tgui.H(mark+" ") + tgui.Code(n) + tgui.Esc(fmt.Sprintf(" tasks=%d", len(s.Tasks)))
		if r := restarts(s); r > 0 {
			line += tgui.Esc(fmt.Sprintf(" restarts=%d", r))
		}
		if s.FirstError != "" {
			line += tgui.H(" ") + tgui.I(tgui.TruncRunes(s.FirstError, 120))
		}
		lines = append(lines, line)
	}
	if len(names) == 0 {
		lines = append(lines, tgui.I("no components reporting"))
	}

	title := tgui.B("🟢 healthy")
	if !healthy {
		title = tgui.B("🟠 degraded")
	}

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	mod := ""
	if bi, ok := debug.ReadBuildInfo(); ok && bi != nil {
		mod = bi.Main.Path + " " + bi.Main.Version
	}
	info := []tgui.H{
		tgui.Esc("uptime: " + durRel(p.now().Sub(p.startedAt))),
		tgui.Esc("go: " + runtime.Version() + " " + strings.TrimSpace(mod)),
		tgui.Esc(fmt.Sprintf("goroutines: %d", runtime.NumGoroutine())),
		tgui.Esc("mem_alloc: " + fmtBytes(m.Alloc) + ", mem_sys: " + fmtBytes(m.Sys)),
	}
	return tgui.JoinH("\n\n", title+"\n"+tgui.JoinH("\n", lines...), tgui.JoinH("\n", info...))
}

func restarts(s supervisor.Snapshot) int {
	n := 0
	for _, t := range s.Tasks {
		n += t.Restarts
	}
	return n
}

func fmtBytes(n uint64) string {
	const (
		KB = 1024
		MB = 1024 * KB
		GB = 1024 * MB
	)
	switch {
	case n >= GB:
		return fmt.Sprintf("%.1fGB", float64(n)/GB)
	case n >= MB:
		return fmt.Sprintf("%.1fMB", float64(n)/MB)
	case n >= KB:
		return fmt.Sprintf("%.1fKB", float64(n)/KB)
	default:
		return fmt.Sprintf("%dB", n)
	}
}

func durRel(d time.Duration) string {
	if d < 0 {
		d = -d
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
}
