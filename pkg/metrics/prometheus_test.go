package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func scrape(t *testing.T, p *Prometheus) string {
	t.Helper()
	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	p.Handler().ServeHTTP(w, req)
	if w.Code != 200 {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	return w.Body.String()
}

func TestPrometheus_Counter(t *testing.T) {
	p := NewPrometheus()
	p.Counter(MetricLoadsTotal, 1, map[string]string{TagStatus: "ok"})
	p.Counter(MetricLoadsTotal, 2, map[string]string{TagStatus: "ok"})
	p.Counter(MetricLoadsTotal, 1, map[string]string{TagStatus: "error"})

	body := scrape(t, p)
	for _, want := range []string{
		`pmdash_loads_total{status="ok"} 3`,
		`pmdash_loads_total{status="error"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("Missing %q in output", want)
		}
	}
}

func TestPrometheus_GaugeAndTimer(t *testing.T) {
	p := NewPrometheus()
	p.Gauge(MetricCasesLoaded, 42, nil)
	p.Timer(MetricPhaseDuration, 250*time.Millisecond, map[string]string{TagPhase: "load"})

	body := scrape(t, p)
	if !strings.Contains(body, "pmdash_cases_loaded 42") {
		t.Error("Missing gauge sample")
	}
	if !strings.Contains(body, `pmdash_phase_duration_seconds_count{phase="load"} 1`) {
		t.Error("Missing timer sample")
	}
}

func TestPrometheus_MismatchedLabelsDropped(t *testing.T) {
	p := NewPrometheus()
	p.Counter("x.total", 1, map[string]string{"a": "1"})
	p.Counter("x.total", 1, map[string]string{"b": "1"})

	if !strings.Contains(scrape(t, p), `x_total{a="1"} 1`) {
		t.Error("Expected the first label set to survive")
	}
}

func TestNoop(t *testing.T) {
	var r Recorder = NewNoop()
	r.Counter("a", 1, nil)
	r.Gauge("a", 1, nil)
	r.Histogram("a", 1, nil)
	r.Timer("a", time.Second, nil)
}
