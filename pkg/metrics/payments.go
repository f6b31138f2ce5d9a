package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PaymentMetrics tracks checkout and reconciliation outcomes.
type PaymentMetrics struct {
	checkouts       *prometheus.CounterVec
	reconciled      *prometheus.CounterVec
	reconcileErrors *prometheus.CounterVec
	orphanedCharges *prometheus.CounterVec
}

// NewPaymentMetrics registers the payment metrics on the provided registerer.
func NewPaymentMetrics(reg prometheus.Registerer) *PaymentMetrics {
	if reg == nil {
		return &PaymentMetrics{}
	}
	checkouts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rentwise_checkouts_total",
		Help: "Checkout charges accepted by the gateway, by kind and immediate status.",
	}, []string{"kind", "status"})
	reconciled := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rentwise_payments_reconciled_total",
		Help: "Pending payments moved to a terminal status.",
	}, []string{"kind", "status"})
	reconcileErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rentwise_reconcile_errors_total",
		Help: "Per-record reconciliation failures left pending for the next sweep.",
	}, []string{"kind"})
	orphaned := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rentwise_orphaned_charges_total",
		Help: "Gateway charges accepted without a local record.",
	}, []string{"kind"})
	reg.MustRegister(checkouts, reconciled, reconcileErrors, orphaned)
	return &PaymentMetrics{
		checkouts:       checkouts,
		reconciled:      reconciled,
		reconcileErrors: reconcileErrors,
		orphanedCharges: orphaned,
	}
}

func (m *PaymentMetrics) IncCheckout(kind, status string) {
	if m == nil || m.checkouts == nil {
		return
	}
	m.checkouts.WithLabelValues(normalizeLabel(kind), normalizeLabel(status)).Inc()
}

func (m *PaymentMetrics) IncReconciled(kind, status string) {
	if m == nil || m.reconciled == nil {
		return
	}
	m.reconciled.WithLabelValues(normalizeLabel(kind), normalizeLabel(status)).Inc()
}

func (m *PaymentMetrics) IncReconcileError(kind string) {
	if m == nil || m.reconcileErrors == nil {
		return
	}
	m.reconcileErrors.WithLabelValues(normalizeLabel(kind)).Inc()
}

func (m *PaymentMetrics) IncOrphanedCharge(kind string) {
	if m == nil || m.orphanedCharges == nil {
		return
	}
	m.orphanedCharges.WithLabelValues(normalizeLabel(kind)).Inc()
}
