package observability

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	rtsup "planbot/internal/runtime/supervisor"
	logx "planbot/pkg/logx"
)

func TestMetricsAndHealth(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "planbot_test_total", Help: "test"})
	reg.MustRegister(c)
	c.Inc()

	var unhealthy atomic.Bool
	s := New(Config{Enabled: true}, logx.Nop(), reg, func() map[string]rtsup.Snapshot {
		return map[string]rtsup.Snapshot{"app": {Healthy: !unhealthy.Load()}}
	})
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	res, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	body, _ := io.ReadAll(res.Body)
	res.Body.Close()
	if !strings.Contains(string(body), "planbot_test_total 1") {
		t.Fatalf("metrics body:\n%s", body)
	}

	res, err = http.Get(ts.URL + "/healthz")
	if err != nil || res.StatusCode != http.StatusOK {
		t.Fatalf("healthz status=%v err=%v", res, err)
	}
	res.Body.Close()

	unhealthy.Store(true)
	res, err = http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	defer res.Body.Close()
	var rep healthReport
	if err := json.NewDecoder(res.Body).Decode(&rep); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.StatusCode != http.StatusServiceUnavailable || rep.Status != "degraded" || len(rep.Unhealthy) != 1 || rep.Unhealthy[0] != "app" {
		t.Fatalf("status=%d rep=%+v", res.StatusCode, rep)
	}

	if res, err := http.Get(ts.URL + "/debug/pprof/"); err != nil || res.StatusCode != http.StatusNotFound {
		t.Fatalf("pprof should be off: %v %v", res, err)
	}
}

func TestTokenAuth(t *testing.T) {
	t.Parallel()

	s := New(Config{Enabled: true, Token: "s3cret", Pprof: true}, logx.Nop(), prometheus.NewRegistry(), nil)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	res, err := http.Get(ts.URL + "/healthz")
	if err != nil || res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("no token: %v %v", res, err)
	}
	res.Body.Close()

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/healthz", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	res, err = http.DefaultClient.Do(req)
	if err != nil || res.StatusCode != http.StatusOK {
		t.Fatalf("bearer: %v %v", res, err)
	}
	res.Body.Close()

	res, err = http.Get(ts.URL + "/debug/pprof/?token=s3cret")
	if err != nil || res.StatusCode != http.StatusOK {
		t.Fatalf("pprof with token: %v %v", res, err)
	}
	res.Body.Close()
}

func TestStartRefusesPublicAddrWithoutToken(t *testing.T) {
	t.Parallel()

	s := New(Config{Enabled: true, Addr: "0.0.0.0:0"}, logx.Nop(), nil, nil)
	if err := s.Start(context.Background()); err == nil {
		t.Fatalf("expected refusal")
	}
	if !isLoopbackAddr("127.0.0.1:9464") || !isLoopbackAddr("localhost:1") || isLoopbackAddr(":9464") {
		t.Fatalf("isLoopbackAddr")
	}
}
