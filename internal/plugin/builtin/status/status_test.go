package status

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"planbot/internal/plugin"
	"planbot/internal/runtime/supervisor"
	kit "planbot/internal/transport"
	logx "planbot/pkg/logx"
)

type fakeAdapter struct {
	mu   sync.Mutex
	sent []string
}

func (f *fakeAdapter) Start(context.Context, chan<- kit.Update) error { return nil }
func (f *fakeAdapter) Stop(context.Context) error                     { return nil }
func (f *fakeAdapter) AnswerCallback(context.Context, string, string) error {
	return nil
}
func (f *fakeAdapter) EditText(context.Context, kit.MessageRef, string, *kit.SendOptions) error {
	return nil
}
func (f *fakeAdapter) SendText(_ context.Context, to kit.ChatTarget, text string, _ *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, text)
	return kit.MessageRef{ChatID: to.ChatID, MessageID: len(f.sent)}, nil
}

func newPlugin(t *testing.T, health func() map[string]supervisor.Snapshot) (*Plugin, *fakeAdapter) {
	t.Helper()
	ad := &fakeAdapter{}
	p := New()
	start := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return start }
	if err := p.Init(context.Background(), plugin.Deps{Logger: logx.Nop(), Adapter: ad, Health: health}); err != nil {
		t.Fatalf("Init: %v", err)
	}
	p.now = func() time.Time { return start.Add(90*time.Minute + 5*time.Second) }
	return p, ad
}

func run(t *testing.T, p *Plugin, ad *fakeAdapter, name string) string {
	t.Helper()
	for _, c := range p.Commands() {
		if c.Name == name {
			req := &plugin.Request{Chat: kit.ChatTarget{ChatID: 1}, Adapter: ad}
			if err := c.Handle(context.Background(), req); err != nil {
				t.Fatalf("%s: %v", name, err)
			}
			ad.mu.Lock()
			defer ad.mu.Unlock()
			return ad.sent[len(ad.sent)-1]
		}
	}
	t.Fatalf("command %q not found", name)
	return ""
}

func TestPingAndUptime(t *testing.T) {
	t.Parallel()

	p, ad := newPlugin(t, nil)
	if got := run(t, p, ad, "ping"); got != "pong" {
		t.Fatalf("ping = %q", got)
	}
	if got := run(t, p, ad, "uptime"); got != "uptime: 1h30m" {
		t.Fatalf("uptime = %q", got)
	}
}

func TestStatusReportsDegradedComponents(t *testing.T) {
	t.Parallel()

	p, ad := newPlugin(t, func() map[string]supervisor.Snapshot {
		return map[string]supervisor.Snapshot{
			"app": {Healthy: true, Tasks: []supervisor.TaskStatus{{Name: "config.watch", Active: 1}}},
			"telegram.adapter": {
				Healthy:    false,
				FirstError: "poll failed: <timeout>",
				Tasks:      []supervisor.TaskStatus{{Name: "telebot.poll", Restarts: 3}},
			},
		}
	})
	got := run(t, p, ad, "status")
	for _, want := range []string{"🟠 degraded", "<code>app</code>", "restarts=3", "&lt;timeout&gt;", "uptime: 1h30m"} {
		if !strings.Contains(got, want) {
			t.Fatalf("status missing %q:\n%s", want, got)
		}
	}
	if strings.Index(got, "<code>app</code>") > strings.Index(got, "<code>telegram.adapter</code>") {
		t.Fatalf("components not sorted:\n%s", got)
	}
}

func TestStatusWithoutHealth(t *testing.T) {
	t.Parallel()

	p, ad := newPlugin(t, nil)
	got := run(t, p, ad, "status")
	if !strings.Contains(got, "🟢 healthy") || !strings.Contains(got, "no components reporting") {
		t.Fatalf("unexpected status:\n%s", got)
	}
}
