package engine

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/roach88/billsync/internal/billing"
)

// Metric names.
const (
	MetricReconcilePasses       = "billsync_reconcile_passes_total"
	MetricConsumeDispatched     = "billsync_consume_dispatched_total"
	MetricAcknowledgeDispatched = "billsync_acknowledge_dispatched_total"
	MetricConnectAttempts       = "billsync_connect_attempts_total"
	MetricBillingErrors         = "billsync_billing_errors_total"
)

// Metrics counts engine activity.
//
// Thread Safety: Safe for concurrent use by multiple goroutines.
type Metrics struct {
	ReconcilePasses       prometheus.Counter
	ConsumeDispatched     prometheus.Counter
	AcknowledgeDispatched prometheus.Counter
	ConnectAttempts       prometheus.Counter
	BillingErrors         *prometheus.CounterVec
}

// NewMetrics creates the engine counters and registers them with reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ReconcilePasses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricReconcilePasses,
			Help: "Total number of reconciliation passes processed.",
		}),
		ConsumeDispatched: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricConsumeDispatched,
			Help: "Total number of consume requests dispatched.",
		}),
		AcknowledgeDispatched: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricAcknowledgeDispatched,
			Help: "Total number of acknowledge requests dispatched.",
		}),
		ConnectAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricConnectAttempts,
			Help: "Total number of billing session open attempts.",
		}),
		BillingErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricBillingErrors,
			Help: "Total number of failed billing responses by error class.",
		}, []string{"class"}),
	}

	if reg != nil {
		reg.MustRegister(
			m.ReconcilePasses,
			m.ConsumeDispatched,
			m.AcknowledgeDispatched,
			m.ConnectAttempts,
			m.BillingErrors,
		)
	}
	return m
}

func (m *Metrics) billingError(class billing.ErrorClass) {
	m.BillingErrors.WithLabelValues(class.String()).Inc()
}
