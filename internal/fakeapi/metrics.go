package fakeapi

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

// metrics counts what the backend served. A nil *metrics records nothing.
type metrics struct {
	requests *prometheus.CounterVec
	issued   *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "subtrackr",
			Subsystem: "fakeapi",
			Name:      "requests_total",
			Help:      "Requests served by route pattern and status.",
		}, []string{"method", "route", "status"}),
		issued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "subtrackr",
			Subsystem: "fakeapi",
			Name:      "tokens_issued_total",
			Help:      "Tokens issued by kind (access, refresh).",
		}, []string{"kind"}),
	}
	reg.MustRegister(m.requests, m.issued)
	return m
}

func (m *metrics) request(method, route string, status int) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
}

func (m *metrics) tokenIssued(kind string) {
	if m == nil {
		return
	}
	m.issued.WithLabelValues(kind).Inc()
}

// instrument records each request under its chi route pattern, so
// /api/subscriptions/{id} is one series however many ids are used.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unknown"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		s.metrics.request(r.Method, route, status)
	})
}
