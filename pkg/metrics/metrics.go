package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Booking outcomes recorded by the coordinator.
const (
	ResultCreated     = "created"
	ResultPartial     = "partial"
	ResultValidation  = "validation"
	ResultPersistence = "persistence"
)

// Metrics holds all application metrics. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	// Booking metrics
	Bookings          *prometheus.CounterVec
	LinkRetries       *prometheus.CounterVec
	AgendaRejectedRow prometheus.Counter
	Deletions         *prometheus.CounterVec

	// Outbox related metrics
	OutboxEventsProcessed   prometheus.Counter
	OutboxEventsFailed      prometheus.Counter
	OutboxProcessingLatency prometheus.Histogram

	// Store metrics
	StoreOperations *prometheus.CounterVec
	StoreLatency    *prometheus.HistogramVec
}

// NewMetrics creates the application metrics and registers them with reg.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Bookings: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bookings_total",
			Help:      "Booking attempts by outcome",
		}, []string{"result"}),
		LinkRetries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_link_retries_total",
			Help:      "Appointment service link retries by outcome",
		}, []string{"status"}),
		AgendaRejectedRow: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "agenda_rejected_rows_total",
			Help:      "Agenda rows dropped because they failed schema validation",
		}),
		Deletions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "history_deletions_total",
			Help:      "History deletions by final state",
		}, []string{"state"}),

		OutboxEventsProcessed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_events_processed_total",
			Help:      "Total number of successfully processed outbox events",
		}),
		OutboxEventsFailed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_events_failed_total",
			Help:      "Total number of failed outbox events",
		}),
		OutboxProcessingLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "outbox_processing_duration_seconds",
			Help:      "Time spent processing outbox events",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}),

		StoreOperations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_operations_total",
			Help:      "Total number of store operations",
		}, []string{"operation", "status"}),
		StoreLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "store_operation_duration_seconds",
			Help:      "Duration of store operations",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}, []string{"operation"}),
	}
}

func (m *Metrics) BookingResult(result string) {
	if m == nil {
		return
	}
	m.Bookings.WithLabelValues(result).Inc()
}

func (m *Metrics) LinkRetry(status string) {
	if m == nil {
		return
	}
	m.LinkRetries.WithLabelValues(status).Inc()
}

func (m *Metrics) AgendaRejected(n int) {
	if m == nil || n == 0 {
		return
	}
	m.AgendaRejectedRow.Add(float64(n))
}

func (m *Metrics) Deletion(state string) {
	if m == nil {
		return
	}
	m.Deletions.WithLabelValues(state).Inc()
}

func (m *Metrics) OutboxProcessed() {
	if m == nil {
		return
	}
	m.OutboxEventsProcessed.Inc()
}

func (m *Metrics) OutboxFailed() {
	if m == nil {
		return
	}
	m.OutboxEventsFailed.Inc()
}

// OutboxTimer returns a func that observes the elapsed batch time.
func (m *Metrics) OutboxTimer() func() {
	if m == nil {
		return func() {}
	}
	timer := prometheus.NewTimer(m.OutboxProcessingLatency)
	return func() { timer.ObserveDuration() }
}

// ObserveStore records one store call.
func (m *Metrics) ObserveStore(operation string, start time.Time, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.StoreOperations.WithLabelValues(operation, status).Inc()
	m.StoreLatency.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}
