package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups the Prometheus collectors exposed by the access core.
type Metrics struct {
	LoginAttempts     *prometheus.CounterVec
	ActionValidations *prometheus.CounterVec
	CriticalDenials   prometheus.Counter
	AuditAppends      prometheus.Counter
	AuditDropped      prometheus.Counter
	HTTPRequests      *prometheus.CounterVec
	HTTPDuration      *prometheus.HistogramVec
}

// New registers the collectors against the supplied registerer. Passing nil
// uses the default registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		LoginAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "access",
			Name:      "login_attempts_total",
			Help:      "Login attempts by outcome.",
		}, []string{"result"}),
		ActionValidations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "access",
			Name:      "action_validations_total",
			Help:      "Secure action validations by outcome.",
		}, []string{"outcome"}),
		CriticalDenials: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "access",
			Name:      "critical_action_denials_total",
			Help:      "Critical actions refused by the policy gates.",
		}),
		AuditAppends: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "access",
			Name:      "audit_records_total",
			Help:      "Audit records appended to the store.",
		}),
		AuditDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "access",
			Name:      "audit_record_failures_total",
			Help:      "Audit appends that failed and were swallowed.",
		}),
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "access",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by method, path and status.",
		}, []string{"method", "path", "status"}),
		HTTPDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "access",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),
	}
}
