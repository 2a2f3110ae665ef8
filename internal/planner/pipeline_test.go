package planner

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"planbot/internal/eventbus"
	"planbot/internal/inference"
	logx "planbot/pkg/logx"
)

type stubInferer struct {
	reply string
	err   error
	calls atomic.Int32
}

func (s *stubInferer) Complete(ctx context.Context, system, user string) (string, error) {
	s.calls.Add(1)
	return s.reply, s.err
}

func newTestPipeline(t *testing.T, inf Inferer, bus eventbus.Bus) *Pipeline {
	t.Helper()
	p, err := NewPipeline(Deps{
		Inferer: inf,
		Logger:  logx.Nop(),
		Metrics: NewMetrics(prometheus.NewRegistry()),
		Bus:     bus,
	})
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}
	return p
}

const twoTaskInput = `9AM-5PM "Review code (high, general)" "Team meeting (medium, meeting)"`

func TestPipelineRunValidated(t *testing.T) {
	t.Parallel()

	bus := eventbus.New()
	events, unsub := bus.Subscribe(4)
	defer unsub()

	inf := &stubInferer{reply: "```json\n" + validReply + "\n```"}
	res, err := newTestPipeline(t, inf, bus).Run(context.Background(), twoTaskInput)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Degraded || len(res.Schedule.Items) != 2 {
		t.Fatalf("result=%+v", res)
	}
	if res.Request.Window != (Timeframe{Start: 540, End: 1020}) || len(res.Request.Tasks) != 2 {
		t.Fatalf("request=%+v", res.Request)
	}
	select {
	case e := <-events:
		if e.Type != eventbus.ScheduleGenerated {
			t.Fatalf("event=%s", e.Type)
		}
	case <-time.After(time.Second):
		t.Fatalf("no event published")
	}
}

func TestPipelineUnparsableReplyFallsBack(t *testing.T) {
	t.Parallel()

	for _, reply := range []string{"not json", `{"plan":[]}`, `{"schedule":"soon"}`, ""} {
		inf := &stubInferer{reply: reply}
		res, err := newTestPipeline(t, inf, nil).Run(context.Background(), twoTaskInput)
		if err != nil {
			t.Fatalf("%q: shape failures must not surface: %v", reply, err)
		}
		s := res.Schedule
		if !res.Degraded || s.Diagnostic == "" {
			t.Fatalf("%q: expected degraded result, got %+v", reply, s)
		}
		if s.Summary.TotalTasks != 1 || len(s.Items) != 1 {
			t.Fatalf("%q: summary=%+v items=%d", reply, s.Summary, len(s.Items))
		}
		if s.Items[0].Start != 540 || s.Items[0].End != 1020 {
			t.Fatalf("%q: item=%+v", reply, s.Items[0])
		}
	}
}

func TestPipelineMalformedEnvelopeFallsBack(t *testing.T) {
	t.Parallel()

	inf := &stubInferer{err: &inference.ServiceError{Attempts: 1, Err: inference.ErrMalformedReply}}
	res, err := newTestPipeline(t, inf, nil).Run(context.Background(), `morning "Focus work"`)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.Degraded || res.Schedule.Items[0].End != 720 {
		t.Fatalf("result=%+v", res)
	}
}

func TestPipelineRejectsBeforeBackend(t *testing.T) {
	t.Parallel()

	cases := []string{"", `tomorrow "x"`, `morning`, `5pm-9am "x"`}
	for _, in := range cases {
		inf := &stubInferer{reply: validReply}
		_, err := newTestPipeline(t, inf, nil).Run(context.Background(), in)
		if err == nil {
			t.Fatalf("%q: expected error", in)
		}
		if inf.calls.Load() != 0 {
			t.Fatalf("%q: backend must not be called", in)
		}
	}
}

func TestPipelineTransportErrorSurfaces(t *testing.T) {
	t.Parallel()

	cause := &inference.ServiceUnavailableError{Attempts: 4, Err: errors.New("503")}
	inf := &stubInferer{err: cause}
	_, err := newTestPipeline(t, inf, nil).Run(context.Background(), twoTaskInput)
	var su *inference.ServiceUnavailableError
	if !errors.As(err, &su) {
		t.Fatalf("expected ServiceUnavailableError, got %v", err)
	}
}

func TestPipelineRetriesServerErrorsThenValidates(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]string{"role": "assistant", "content": validReply}}},
		})
	}))
	defer srv.Close()

	var delays []time.Duration
	client := inference.New(inference.Config{
		Endpoint:   srv.URL,
		Model:      "test",
		MaxRetries: 3,
		RetryBase:  50 * time.Millisecond,
	}, logx.Nop(), inference.WithSleeper(func(ctx context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}))

	res, err := newTestPipeline(t, client, nil).Run(context.Background(), twoTaskInput)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if calls.Load() != 3 {
		t.Fatalf("calls=%d want 3", calls.Load())
	}
	if len(delays) != 2 || delays[0] != 50*time.Millisecond || delays[1] != 100*time.Millisecond {
		t.Fatalf("delays=%v", delays)
	}
	if res.Degraded || len(res.Schedule.Items) != 2 {
		t.Fatalf("expected validated schedule, got %+v", res.Schedule)
	}
}

func TestNewPipelineRequiresInferer(t *testing.T) {
	t.Parallel()

	if _, err := NewPipeline(Deps{}); err == nil {
		t.Fatalf("expected error")
	}
	if _, err := NewPipeline(Deps{Inferer: &stubInferer{}, Policy: Policy{MaxTasks: 99}}); err == nil {
		t.Fatalf("expected policy error")
	}
}
