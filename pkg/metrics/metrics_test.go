package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestCounter(t *testing.T) {
	r := New()
	c := r.Counter("flows_total", "Flows created.")
	c.Inc()
	c.Add(2)
	if c.Value() != 3 {
		t.Fatalf("expected 3, got %d", c.Value())
	}
	// Same name returns the same counter.
	if r.Counter("flows_total", "").Value() != 3 {
		t.Fatal("expected the registered counter back")
	}
}

func TestGauge(t *testing.T) {
	r := New()
	g := r.Gauge("active_flows", "")
	g.Set(5)
	g.Inc()
	g.Dec()
	g.Dec()
	if g.Value() != 4 {
		t.Fatalf("expected 4, got %d", g.Value())
	}
}

func TestWithLabels(t *testing.T) {
	got := WithLabels("flows_total", "status", "failed")
	want := `flows_total{status="failed"}`
	if got != want {
		t.Fatalf("expected %s, got %s", want, got)
	}
	// Odd pair count is ignored.
	if WithLabels("x", "only-key") != "x" {
		t.Fatal("odd label pairs should return the bare name")
	}
}

func TestRenderCountersAndLabels(t *testing.T) {
	r := New()
	r.Counter(WithLabels("steps_total", "action", "query"), "Steps executed.").Inc()
	r.Counter(WithLabels("steps_total", "action", "forward"), "").Add(2)

	out := r.Render()
	for _, want := range []string{
		"# HELP steps_total Steps executed.",
		"# TYPE steps_total counter",
		`steps_total{action="forward"} 2`,
		`steps_total{action="query"} 1`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in:\n%s", want, out)
		}
	}
}

func TestRenderHistogram(t *testing.T) {
	r := New()
	h := r.Histogram("embed_seconds", "", []float64{0.1, 1})
	h.Observe(0.05)
	h.Observe(0.5)
	h.Observe(5)

	out := r.Render()
	for _, want := range []string{
		"# TYPE embed_seconds histogram",
		`embed_seconds_bucket{le="0.1"} 1`,
		`embed_seconds_bucket{le="1"} 2`,
		`embed_seconds_bucket{le="+Inf"} 3`,
		"embed_seconds_count 3",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in:\n%s", want, out)
		}
	}
}

func TestHandler(t *testing.T) {
	r := New()
	r.Counter("up", "").Inc()

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	if rec.Code != 200 {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "up 1") {
		t.Fatalf("unexpected body:\n%s", rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); !strings.Contains(ct, "text/plain") {
		t.Fatalf("unexpected content type %q", ct)
	}
}
