package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// BookingMetrics tracks reservation and payment outcomes.
type BookingMetrics struct {
	reservations *prometheus.CounterVec
	reconciles   *prometheus.CounterVec
	charges      *prometheus.HistogramVec
}

// NewBookingMetrics registers the booking metrics on the provided registerer.
func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	if reg == nil {
		return &BookingMetrics{}
	}
	reservations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "carrental_reservation_create_total",
		Help: "Reservation create attempts by result.",
	}, []string{"result"})
	reconciles := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "carrental_reconcile_total",
		Help: "Reservation payment reconciliations by result.",
	}, []string{"result"})
	charges := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "carrental_charge_duration_seconds",
		Help:    "Latency of card processor calls by outcome.",
		Buckets: prometheus.DefBuckets,
	}, []string{"status"})
	reg.MustRegister(reservations, reconciles, charges)
	return &BookingMetrics{
		reservations: reservations,
		reconciles:   reconciles,
		charges:      charges,
	}
}

// IncReservation counts a create attempt; result is created, conflict or error.
func (b *BookingMetrics) IncReservation(result string) {
	if b == nil || b.reservations == nil {
		return
	}
	b.reservations.WithLabelValues(normalizeLabel(result)).Inc()
}

// IncReconcile counts a reconciliation; result is applied, noop, rejected or error.
func (b *BookingMetrics) IncReconcile(result string) {
	if b == nil || b.reconciles == nil {
		return
	}
	b.reconciles.WithLabelValues(normalizeLabel(result)).Inc()
}

// ObserveCharge records how long a processor call took.
func (b *BookingMetrics) ObserveCharge(status string, duration time.Duration) {
	if b == nil || b.charges == nil {
		return
	}
	b.charges.WithLabelValues(normalizeLabel(status)).Observe(duration.Seconds())
}
