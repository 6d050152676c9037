package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus instruments for the ticket lifecycle.
// All services treat a nil *Metrics as "metrics disabled".
type Metrics struct {
	TicketsIssued    prometheus.Counter
	TierSaves        *prometheus.CounterVec
	DispatchOutcomes *prometheus.CounterVec
	RecordsPurged    *prometheus.CounterVec
	CacheHits        prometheus.Counter
	CacheMisses      prometheus.Counter
	DispatchDuration prometheus.Histogram
}

// New creates and registers all ticket metrics on the default registry.
func New() *Metrics {
	return &Metrics{
		TicketsIssued: promauto.NewCounter(prometheus.CounterOpts{
			Name: "gatepass_tickets_issued_total",
			Help: "Total number of tickets issued",
		}),
		TierSaves: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "gatepass_ticket_saves_total",
			Help: "Ticket record saves by storage tier",
		}, []string{"tier"}),
		DispatchOutcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "gatepass_dispatch_outcomes_total",
			Help: "Per-item bulk dispatch outcomes by status",
		}, []string{"status"}),
		RecordsPurged: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "gatepass_records_purged_total",
			Help: "Expired ticket records removed by storage tier",
		}, []string{"tier"}),
		CacheHits: promauto.NewCounter(prometheus.CounterOpts{
			Name: "gatepass_record_cache_hits_total",
			Help: "Ticket record cache hits",
		}),
		CacheMisses: promauto.NewCounter(prometheus.CounterOpts{
			Name: "gatepass_record_cache_misses_total",
			Help: "Ticket record cache misses",
		}),
		DispatchDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "gatepass_bulk_dispatch_duration_seconds",
			Help:    "Wall-clock duration of bulk dispatch runs",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
	}
}

func (m *Metrics) IncrementIssued() {
	if m == nil {
		return
	}
	m.TicketsIssued.Inc()
}

func (m *Metrics) RecordSave(tier string) {
	if m == nil {
		return
	}
	m.TierSaves.WithLabelValues(tier).Inc()
}

func (m *Metrics) RecordOutcome(status string) {
	if m == nil {
		return
	}
	m.DispatchOutcomes.WithLabelValues(status).Inc()
}

func (m *Metrics) RecordPurged(tier string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.RecordsPurged.WithLabelValues(tier).Add(float64(count))
}

func (m *Metrics) RecordCacheHit() {
	if m == nil {
		return
	}
	m.CacheHits.Inc()
}

func (m *Metrics) RecordCacheMiss() {
	if m == nil {
		return
	}
	m.CacheMisses.Inc()
}

func (m *Metrics) ObserveDispatchDuration(seconds float64) {
	if m == nil {
		return
	}
	m.DispatchDuration.Observe(seconds)
}
