// Package metrics holds the Prometheus collectors for the deploy service.
package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	phaseBuckets = []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300}
	httpBuckets  = []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 60, 300}
)

type Metrics struct {
	Deployments     *prometheus.CounterVec
	PhaseDuration   *prometheus.HistogramVec
	UploadRetries   prometheus.Counter
	UploadsInFlight prometheus.Gauge
	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

// New registers the collectors with reg. A nil reg leaves them
// unregistered, which tests use to avoid global state.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Deployments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "quickdeploy",
			Name:      "deployments_total",
			Help:      "Deployment jobs by outcome",
		}, []string{"outcome"}),
		PhaseDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "quickdeploy",
			Name:      "phase_duration_seconds",
			Help:      "Time spent in each pipeline phase",
			Buckets:   phaseBuckets,
		}, []string{"phase"}),
		UploadRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "quickdeploy",
			Name:      "upload_retries_total",
			Help:      "Object uploads retried after a transient error",
		}),
		UploadsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "quickdeploy",
			Name:      "uploads_in_flight",
			Help:      "Object uploads currently running",
		}),
		requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "quickdeploy",
			Name:      "http_requests_total",
			Help:      "Count of processed HTTP requests",
		}, []string{"method", "route", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "quickdeploy",
			Name:      "http_request_duration_seconds",
			Help:      "Latency distribution of HTTP handlers",
			Buckets:   httpBuckets,
		}, []string{"method", "route", "status"}),
	}
	if reg != nil {
		reg.MustRegister(m.Deployments, m.PhaseDuration, m.UploadRetries,
			m.UploadsInFlight, m.requestTotal, m.requestDuration)
	}
	return m
}

func (m *Metrics) ObservePhase(phase string, d time.Duration) {
	m.PhaseDuration.WithLabelValues(phase).Observe(d.Seconds())
}

func (m *Metrics) RecordOutcome(success bool) {
	outcome := "failure"
	if success {
		outcome = "success"
	}
	m.Deployments.WithLabelValues(outcome).Inc()
}

// Instrument is chi middleware counting requests by route pattern.
func (m *Metrics) Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &responseRecorder{ResponseWriter: w}
		start := time.Now()
		next.ServeHTTP(rec, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		status := rec.status
		if status == 0 {
			status = http.StatusOK
		}
		labels := prometheus.Labels{
			"method": r.Method,
			"route":  route,
			"status": strconv.Itoa(status),
		}
		m.requestTotal.With(labels).Inc()
		m.requestDuration.With(labels).Observe(time.Since(start).Seconds())
	})
}

type responseRecorder struct {
	http.ResponseWriter
	status int
}

func (rr *responseRecorder) WriteHeader(code int) {
	rr.status = code
	rr.ResponseWriter.WriteHeader(code)
}

func (rr *responseRecorder) Write(b []byte) (int, error) {
	if rr.status == 0 {
		rr.status = http.StatusOK
	}
	return rr.ResponseWriter.Write(b)
}

func (rr *responseRecorder) Unwrap() http.ResponseWriter {
	return rr.ResponseWriter
}

// Hijack passes websocket upgrades through to the underlying writer.
func (rr *responseRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := rr.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	rr.status = http.StatusSwitchingProtocols
	return h.Hijack()
}
