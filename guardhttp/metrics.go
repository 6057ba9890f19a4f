package guardhttp

import (
	"errors"

	"github.com/ggoodman/authguard/auth"
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "authguard"

// Authentication outcomes reported by Metrics.
const (
	OutcomeAnonymous     = "anonymous"
	OutcomeAuthenticated = "authenticated"
	OutcomeRejected      = "rejected"
	OutcomeError         = "error"
)

// Metrics is a prometheus.Collector counting authentication outcomes and
// guard rejections. A nil *Metrics records nothing.
type Metrics struct {
	authentications *prometheus.CounterVec
	rejections      prometheus.Counter
}

// NewMetrics returns a new, unregistered Metrics collector.
func NewMetrics() *Metrics {
	return &Metrics{
		authentications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "authentications_total",
				Help:      "The number of requests that passed through the authentication pipeline, by outcome.",
			}, []string{"outcome"},
		),
		rejections: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "guard_rejections_total",
				Help:      "The number of requests refused for lacking an authenticated principal.",
			},
		),
	}
}

// Describe is part of the prometheus.Collector interface.
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	m.authentications.Describe(ch)
	m.rejections.Describe(ch)
}

// Collect is part of the prometheus.Collector interface.
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	m.authentications.Collect(ch)
	m.rejections.Collect(ch)
}

// ObserveAuthentication records the outcome of one pipeline run.
func (m *Metrics) ObserveAuthentication(ac auth.AuthContext, err error) {
	if m == nil {
		return
	}
	m.authentications.WithLabelValues(Outcome(ac, err)).Inc()
}

// ObserveRejection records one request refused by a require-authenticated
// check.
func (m *Metrics) ObserveRejection() {
	if m == nil {
		return
	}
	m.rejections.Inc()
}

// Outcome classifies the result of Authenticator.Authenticate.
func Outcome(ac auth.AuthContext, err error) string {
	switch {
	case err != nil && errors.Is(err, auth.ErrUnauthorized) && !errors.Is(err, auth.ErrInternal):
		return OutcomeRejected
	case err != nil:
		return OutcomeError
	case ac.IsAuthenticated():
		return OutcomeAuthenticated
	default:
		return OutcomeAnonymous
	}
}
