package metrics

import (
	"time"

	"github.com/hoamxTrav/hoamx-watcher-agent/internal/domain/entity"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "watcher"

// Collector holds the watcher's prometheus series. A nil *Collector is a
// valid no-op.
type Collector struct {
	cycles           *prometheus.CounterVec
	observed         *prometheus.CounterVec
	newEvents        *prometheus.CounterVec
	skipped          *prometheus.CounterVec
	dispatched       *prometheus.CounterVec
	cycleDuration    *prometheus.HistogramVec
	deliveries       *prometheus.CounterVec
	deliveryDuration *prometheus.HistogramVec
}

func NewCollector(reg prometheus.Registerer) *Collector {
	f := promauto.With(reg)
	return &Collector{
		cycles: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Watch cycles by tenant and outcome (OK, ERROR, SKIPPED, FAILED).",
		}, []string{"tenant", "status"}),
		observed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_observed_total",
			Help:      "Source rows read past the cursor.",
		}, []string{"tenant"}),
		newEvents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_new_total",
			Help:      "Events inserted into the outbox for the first time.",
		}, []string{"tenant"}),
		skipped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_skipped_total",
			Help:      "Events already present in the outbox.",
		}, []string{"tenant"}),
		dispatched: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_dispatched_total",
			Help:      "Successful sink deliveries summed per cycle.",
		}, []string{"tenant"}),
		cycleDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Wall time of a complete watch cycle.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"tenant"}),
		deliveries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_total",
			Help:      "Delivery attempts per sink by result.",
		}, []string{"sink", "result"}),
		deliveryDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "delivery_duration_seconds",
			Help:      "Latency of a single sink delivery.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20},
		}, []string{"sink"}),
	}
}

func (c *Collector) ObserveCycle(result entity.CycleResult) {
	if c == nil {
		return
	}
	t := result.Tenant
	c.cycles.WithLabelValues(t, result.Status).Inc()
	c.observed.WithLabelValues(t).Add(float64(result.ObservedCount))
	c.newEvents.WithLabelValues(t).Add(float64(result.NewEventsCount))
	c.skipped.WithLabelValues(t).Add(float64(result.SkippedExistingEventsCount))
	c.dispatched.WithLabelValues(t).Add(float64(result.DispatchedCount))
	c.cycleDuration.WithLabelValues(t).Observe(float64(result.DurationMS) / 1000)
}

// CycleOutcome counts cycles that produced no result, such as lock
// contention or storage failures.
func (c *Collector) CycleOutcome(tenant, status string) {
	if c == nil {
		return
	}
	c.cycles.WithLabelValues(tenant, status).Inc()
}

func (c *Collector) ObserveDelivery(sink string, err error, elapsed time.Duration) {
	if c == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.deliveries.WithLabelValues(sink, result).Inc()
	c.deliveryDuration.WithLabelValues(sink).Observe(elapsed.Seconds())
}
