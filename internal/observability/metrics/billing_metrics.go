package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	BillOutcomeGenerated = "generated"
	BillOutcomeSkipped   = "skipped"
	BillOutcomeFailed    = "failed"
)

const (
	PaymentActionReported  = "reported"
	PaymentActionConfirmed = "confirmed"
	PaymentActionRejected  = "rejected"
)

// BillingMetrics tracks bill generation and payment reconciliation.
type BillingMetrics struct {
	billsGenerated   *prometheus.CounterVec
	generationRuns   prometheus.Counter
	generationTime   prometheus.Histogram
	paymentsActioned *prometheus.CounterVec
	notifications    *prometheus.CounterVec
}

var (
	billingMetricsOnce sync.Once
	billingMetrics     *BillingMetrics
)

// Billing returns the singleton billing metrics registry.
func Billing() *BillingMetrics {
	return BillingWithConfig(Config{})
}

// BillingWithConfig returns the singleton billing metrics registry using config labels.
func BillingWithConfig(cfg Config) *BillingMetrics {
	billingMetricsOnce.Do(func() {
		billingMetrics = newBillingMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return billingMetrics
}

// ResetBillingMetricsForTest resets the billing metrics singleton for tests.
func ResetBillingMetricsForTest() {
	billingMetricsOnce = sync.Once{}
	billingMetrics = nil
}

func newBillingMetrics(registerer prometheus.Registerer, cfg Config) *BillingMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	constLabels := cfg.constLabels()

	billsGenerated := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "kost_billing_bills_total",
		Help:        "Per-tenant bill generation outcomes.",
		ConstLabels: constLabels,
	}, []string{"outcome"})
	generationRuns := prometheus.NewCounter(prometheus.CounterOpts{
		Name:        "kost_billing_generation_runs_total",
		Help:        "Monthly bill generation runs.",
		ConstLabels: constLabels,
	})
	generationTime := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:        "kost_billing_generation_duration_seconds",
		Help:        "Wall time of a monthly bill generation run.",
		Buckets:     []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
		ConstLabels: constLabels,
	})
	paymentsActioned := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "kost_billing_payments_total",
		Help:        "Payment reports and reconciliation decisions.",
		ConstLabels: constLabels,
	}, []string{"action"})
	notifications := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "kost_billing_notifications_total",
		Help:        "Billing email notifications by status.",
		ConstLabels: constLabels,
	}, []string{"status"})

	registerer.MustRegister(
		billsGenerated,
		generationRuns,
		generationTime,
		paymentsActioned,
		notifications,
	)

	return &BillingMetrics{
		billsGenerated:   billsGenerated,
		generationRuns:   generationRuns,
		generationTime:   generationTime,
		paymentsActioned: paymentsActioned,
		notifications:    notifications,
	}
}

// ObserveGenerationRun records one finished generation run and its per-tenant outcomes.
func (m *BillingMetrics) ObserveGenerationRun(duration time.Duration, generated, skipped, failed int) {
	if m == nil {
		return
	}
	m.generationRuns.Inc()
	m.generationTime.Observe(duration.Seconds())
	m.addOutcome(BillOutcomeGenerated, generated)
	m.addOutcome(BillOutcomeSkipped, skipped)
	m.addOutcome(BillOutcomeFailed, failed)
}

func (m *BillingMetrics) addOutcome(outcome string, count int) {
	if count <= 0 {
		return
	}
	m.billsGenerated.WithLabelValues(outcome).Add(float64(count))
}

// IncPayment increments the payment counter for a reconciliation action.
func (m *BillingMetrics) IncPayment(action string) {
	if m == nil {
		return
	}
	m.paymentsActioned.WithLabelValues(action).Inc()
}

// IncNotification counts a sent or failed billing email.
func (m *BillingMetrics) IncNotification(err error) {
	if m == nil {
		return
	}
	status := "sent"
	if err != nil {
		status = "failed"
	}
	m.notifications.WithLabelValues(status).Inc()
}
