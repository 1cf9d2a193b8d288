package session

import "github.com/prometheus/client_golang/prometheus"

// Refresh results.
const (
	refreshSuccess        = "success"
	refreshFailure        = "failure"
	refreshNoRefreshToken = "no_refresh_token"
)

// Request outcomes recorded by the executor.
const (
	outcomeOK              = "ok"
	outcomeRetried         = "retried"
	outcomeUnauthenticated = "unauthenticated"
	outcomeSessionExpired  = "session_expired"
	outcomeTransportError  = "transport_error"
)

// Metrics counts refresh and request outcomes. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	refreshes     *prometheus.CounterVec
	refreshShared prometheus.Counter
	requests      *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them on reg when reg is non-nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "subtrackr",
			Subsystem: "session",
			Name:      "refresh_total",
			Help:      "Refresh-token exchanges by result.",
		}, []string{"result"}),
		refreshShared: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "subtrackr",
			Subsystem: "session",
			Name:      "refresh_shared_total",
			Help:      "Refresh calls whose result was shared with concurrent callers.",
		}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "subtrackr",
			Subsystem: "session",
			Name:      "requests_total",
			Help:      "Authenticated requests by outcome.",
		}, []string{"outcome"}),
	}

	if reg != nil {
		reg.MustRegister(m.refreshes, m.refreshShared, m.requests)
	}
	return m
}

func (m *Metrics) refresh(result string) {
	if m == nil {
		return
	}
	m.refreshes.WithLabelValues(result).Inc()
}

func (m *Metrics) shared() {
	if m == nil {
		return
	}
	m.refreshShared.Inc()
}

func (m *Metrics) request(outcome string) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(outcome).Inc()
}
