package planner

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"planbot/internal/eventbus"
	"planbot/internal/inference"
	"planbot/internal/planner"
	"planbot/internal/plugin"
	"planbot/internal/storage"
	kit "planbot/internal/transport"
	logx "planbot/pkg/logx"
)

const reply = `{
  "schedule": [
    {"task_id": 1, "start_time": "09:00", "end_time": "10:30", "duration": 90,
     "task": "Write report", "priority": "high", "type": "general", "reasoning": "fresh <mind>"},
    {"task_id": 2, "start_time": "14:00", "end_time": "14:30", "duration": 30,
     "task": "Team sync", "priority": "medium", "type": "meeting"}
  ],
  "summary": {"total_tasks": 2, "total_duration": 120, "productivity_score": 8},
  "recommendations": ["Stretch between blocks"]
}`

const input = `9am-5pm "Write report (high)" "Team sync (meeting, 2pm)"`

type stubInferer struct {
	reply string
	err   error
	calls int
	mu    sync.Mutex
}

func (s *stubInferer) Complete(context.Context, string, string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.reply, s.err
}

type sent struct {
	text   string
	markup any
}

type fakeAdapter struct {
	mu    sync.Mutex
	sent  []sent
	edits []sent
}

func (f *fakeAdapter) Start(context.Context, chan<- kit.Update) error { return nil }
func (f *fakeAdapter) Stop(context.Context) error                     { return nil }
func (f *fakeAdapter) AnswerCallback(context.Context, string, string) error {
	return nil
}

func (f *fakeAdapter) SendText(_ context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var m any
	if opt != nil {
		m = opt.ReplyMarkupAdapter
	}
	f.sent = append(f.sent, sent{text: text, markup: m})
	return kit.MessageRef{ChatID: to.ChatID, MessageID: len(f.sent)}, nil
}

func (f *fakeAdapter) EditText(_ context.Context, _ kit.MessageRef, text string, opt *kit.SendOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edits = append(f.edits, sent{text: text, markup: opt.ReplyMarkupAdapter})
	return nil
}

func (f *fakeAdapter) last() sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return sent{}
	}
	return f.sent[len(f.sent)-1]
}

type fixture struct {
	p     *Plugin
	ad    *fakeAdapter
	inf   *stubInferer
	store storage.Store
	bus   eventbus.Bus
}

func newFixture(t *testing.T, withStore bool) *fixture {
	t.Helper()

	f := &fixture{ad: &fakeAdapter{}, inf: &stubInferer{reply: reply}, bus: eventbus.New()}
	pipe, err := planner.NewPipeline(planner.Deps{Policy: planner.DefaultPolicy(), Inferer: f.inf})
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}
	if withStore {
		f.store, err = storage.Open(storage.Config{Driver: "file", Path: filepath.Join(t.TempDir(), "plans")}, logx.Nop())
		if err != nil {
			t.Fatalf("storage.Open: %v", err)
		}
		t.Cleanup(func() { _ = f.store.Close() })
	}

	f.p = New()
	f.p.now = func() time.Time { return time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC) }
	deps := plugin.Deps{
		Logger:   logx.Nop(),
		Adapter:  f.ad,
		Bus:      f.bus,
		Store:    f.store,
		Pipeline: func() *planner.Pipeline { return pipe },
	}
	if err := f.p.Init(context.Background(), deps); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := f.p.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { _ = f.p.Stop(context.Background()) })
	return f
}

func (f *fixture) command(name string) plugin.Command {
	for _, c := range f.p.Commands() {
		if c.Name == name {
			return c
		}
	}
	panic("no command " + name)
}

func (f *fixture) callback(prefix string) plugin.CallbackRoute {
	for _, r := range f.p.Callbacks() {
		if r.Prefix == prefix {
			return r
		}
	}
	panic("no callback " + prefix)
}

func request(text string) *plugin.Request {
	return &plugin.Request{
		Chat:    kit.ChatTarget{ChatID: 100},
		FromID:  7,
		RawText: text,
		Args:    strings.Fields(text),
		Logger:  logx.Nop(),
	}
}

func TestScheduleSavesAndRenders(t *testing.T) {
	t.Parallel()

	f := newFixture(t, true)
	req := request(input)
	req.Adapter = f.ad
	if err := f.command("schedule").Handle(context.Background(), req); err != nil {
		t.Fatalf("schedule: %v", err)
	}

	msg := f.ad.last()
	for _, want := range []string{"09:00-17:00", "Write report", "fresh &lt;mind&gt;", "2 tasks · 120 min · score 8.0", "Stretch between blocks"} {
		if !strings.Contains(msg.text, want) {
			t.Fatalf("message missing %q:\n%s", want, msg.text)
		}
	}
	if msg.markup == nil {
		t.Fatalf("expected inline keyboard")
	}

	recs, err := f.store.ListSchedules(context.Background(), 7, 10)
	if err != nil || len(recs) != 1 {
		t.Fatalf("records=%d err=%v", len(recs), err)
	}
	rec := recs[0]
	if rec.RawInput != input || rec.WindowStart != 540 || rec.WindowEnd != 1020 || len(rec.Tasks) != 2 || len(rec.Items) != 2 {
		t.Fatalf("record=%+v", rec)
	}
	if rec.Tasks[1].Type != "meeting" || rec.Tasks[1].PreferredOffset == nil || *rec.Tasks[1].PreferredOffset != 840 {
		t.Fatalf("task=%+v", rec.Tasks[1])
	}
}

func TestScheduleWithoutStoreHasNoButtons(t *testing.T) {
	t.Parallel()

	f := newFixture(t, false)
	req := request(input)
	req.Adapter = f.ad
	if err := f.command("schedule").Handle(context.Background(), req); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if msg := f.ad.last(); msg.markup != nil || !strings.Contains(msg.text, "Team sync") {
		t.Fatalf("msg=%+v", msg)
	}

	req = request("")
	req.Adapter = f.ad
	if err := f.command("schedules").Handle(context.Background(), req); err != nil {
		t.Fatalf("schedules: %v", err)
	}
	if !strings.Contains(f.ad.last().text, "not enabled") {
		t.Fatalf("history reply=%q", f.ad.last().text)
	}
}

func TestScheduleDegradedReply(t *testing.T) {
	t.Parallel()

	f := newFixture(t, false)
	f.inf.reply = "sorry, no json today"
	req := request(input)
	req.Adapter = f.ad
	if err := f.command("schedule").Handle(context.Background(), req); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	msg := f.ad.last().text
	if !strings.Contains(msg, "generic plan") || !strings.Contains(msg, planner.FallbackTaskLabel) {
		t.Fatalf("degraded message:\n%s", msg)
	}
}

func TestScheduleErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		infErr  error
		want    string
		wantErr bool
	}{
		{name: "no tasks", input: "9am-5pm", want: "no tasks"},
		{name: "bad window", input: `noonish "a"`, want: "do not understand the time window"},
		{name: "reversed", input: `5pm-9am "a"`, want: "end time must be after"},
		{name: "short", input: `9am-9:30am "a"`, want: "too short"},
		{name: "unavailable", input: input, infErr: &inference.ServiceUnavailableError{Attempts: 3, Err: errors.New("503")}, want: "unavailable", wantErr: true},
		{name: "rejected", input: input, infErr: &inference.ServiceError{Attempts: 1, Err: errors.New("400")}, want: "rejected", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newFixture(t, false)
			f.inf.err = tt.infErr
			req := request(tt.input)
			req.Adapter = f.ad
			err := f.command("schedule").Handle(context.Background(), req)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err=%v wantErr=%v", err, tt.wantErr)
			}
			if got := f.ad.last().text; !strings.Contains(got, tt.want) {
				t.Fatalf("reply=%q want %q", got, tt.want)
			}
		})
	}
}

func TestDoneCallbackMarksAndEdits(t *testing.T) {
	t.Parallel()

	f := newFixture(t, true)
	req := request(input)
	req.Adapter = f.ad
	if err := f.command("schedule").Handle(context.Background(), req); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	recs, _ := f.store.ListSchedules(context.Background(), 7, 1)
	id := recs[0].ID

	events, unsub := f.bus.Subscribe(4)
	defer unsub()

	cb := &plugin.Request{
		Update:  kit.Update{Kind: kit.UpdateCallback, Callback: &kit.Callback{ID: "c", ChatID: 100, FromID: 7, MessageID: 1, Data: "done:" + id + ":0"}},
		Chat:    kit.ChatTarget{ChatID: 100},
		FromID:  7,
		Adapter: f.ad,
		Logger:  logx.Nop(),
	}
	if err := f.callback(cbDone).Handle(context.Background(), cb, id+":0"); err != nil {
		t.Fatalf("done: %v", err)
	}
	rec, err := f.store.GetSchedule(context.Background(), id)
	if err != nil || rec.Items[0].DoneAt == nil || rec.Items[1].DoneAt != nil {
		t.Fatalf("rec=%+v err=%v", rec.Items, err)
	}
	if len(f.ad.edits) != 1 || !strings.Contains(f.ad.edits[0].text, "<s>09:00-10:30 Write report</s>") || !strings.Contains(f.ad.edits[0].text, "1/2 done") {
		t.Fatalf("edits=%+v", f.ad.edits)
	}

	select {
	case ev := <-events:
		se, ok := ev.Data.(eventbus.ScheduleEvent)
		if ev.Type != eventbus.ItemCompleted || !ok || se.ScheduleID != id || se.Items != 1 {
			t.Fatalf("event=%+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatalf("no completion event")
	}

	// another user's click is ignored
	cb.FromID = 8
	if err := f.callback(cbDone).Handle(context.Background(), cb, id+":1"); err != nil {
		t.Fatalf("foreign done: %v", err)
	}
	if rec, _ := f.store.GetSchedule(context.Background(), id); rec.Items[1].DoneAt != nil {
		t.Fatalf("foreign user marked item done")
	}
}

func TestRegenCallbackReruns(t *testing.T) {
	t.Parallel()

	f := newFixture(t, true)
	req := request(input)
	req.Adapter = f.ad
	if err := f.command("schedule").Handle(context.Background(), req); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	recs, _ := f.store.ListSchedules(context.Background(), 7, 1)

	cb := &plugin.Request{Chat: kit.ChatTarget{ChatID: 100}, FromID: 7, Adapter: f.ad, Logger: logx.Nop()}
	if err := f.callback(cbRegen).Handle(context.Background(), cb, recs[0].ID); err != nil {
		t.Fatalf("regen: %v", err)
	}
	if f.inf.calls != 2 {
		t.Fatalf("backend calls=%d", f.inf.calls)
	}
	after, _ := f.store.ListSchedules(context.Background(), 7, 10)
	if len(after) != 2 || after[0].RawInput != input {
		t.Fatalf("records=%d", len(after))
	}

	req = request("")
	req.Adapter = f.ad
	if err := f.command("schedules").Handle(context.Background(), req); err != nil {
		t.Fatalf("schedules: %v", err)
	}
	hist := f.ad.last().text
	if got := strings.Count(hist, "09:00-17:00"); got != 2 {
		t.Fatalf("history lists %d entries:\n%s", got, hist)
	}
}

func TestUserMessageFallsThrough(t *testing.T) {
	t.Parallel()

	msg, user := userMessage(fmt.Errorf("wrap: %w", context.DeadlineExceeded))
	if user || !strings.Contains(msg, "too long") {
		t.Fatalf("msg=%q user=%v", msg, user)
	}
	msg, user = userMessage(&planner.ParseError{Reason: planner.ReasonEmptyDescription, Index: 1})
	if !user || !strings.Contains(msg, "(task 2)") {
		t.Fatalf("msg=%q user=%v", msg, user)
	}
}
