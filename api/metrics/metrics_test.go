package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordOutcome(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.RecordOutcome(true)
	m.RecordOutcome(false)
	m.RecordOutcome(false)

	if got := testutil.ToFloat64(m.Deployments.WithLabelValues("success")); got != 1 {
		t.Errorf("success = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.Deployments.WithLabelValues("failure")); got != 2 {
		t.Errorf("failure = %v, want 2", got)
	}
}

func TestObservePhase(t *testing.T) {
	m := New(nil)
	m.ObservePhase("fetching", 3*time.Second)
	m.ObservePhase("building", time.Second)
	if got := testutil.CollectAndCount(m.PhaseDuration); got != 2 {
		t.Errorf("phase series = %d, want 2", got)
	}
}

func TestInstrumentUsesRoutePattern(t *testing.T) {
	m := New(prometheus.NewRegistry())
	r := chi.NewRouter()
	r.Use(m.Instrument)
	r.Get("/api/items/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	for _, id := range []string{"1", "2"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/items/"+id, nil))
	}

	got := testutil.ToFloat64(m.requestTotal.WithLabelValues("GET", "/api/items/{id}", "418"))
	if got != 2 {
		t.Errorf("requests = %v, want 2", got)
	}
}

func TestRegisterTwiceOnSameRegistryPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)
	defer func() {
		if recover() == nil {
			t.Error("expected duplicate registration to panic")
		}
	}()
	New(reg)
}
