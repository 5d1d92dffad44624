package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const DefaultNamespace = "dgroup"

// Prometheus implements Collector backed by Prometheus. Metrics are registered lazily on first
// use.
type Prometheus struct {
	reg       prometheus.Registerer
	namespace string
	once      sync.Once

	batches      *prometheus.CounterVec
	batchChanges *prometheus.CounterVec
	batchLatency *prometheus.HistogramVec
	lifecycle    *prometheus.CounterVec
	violations   *prometheus.CounterVec
	groups       prometheus.Gauge
	trackedItems prometheus.Gauge
}

var _ Collector = (*Prometheus)(nil)

// NewPrometheus creates a Prometheus collector. A nil registerer falls back to
// prometheus.DefaultRegisterer, an empty namespace to DefaultNamespace.
func NewPrometheus(reg prometheus.Registerer, namespace string) *Prometheus {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = DefaultNamespace
	}
	return &Prometheus{reg: reg, namespace: namespace}
}

func (p *Prometheus) ensureRegistered() {
	p.once.Do(func() {
		p.batches = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "grouper",
			Name:      "batches_total",
			Help:      "Total batches processed by kind (apply/regroup).",
		}, []string{"kind"})
		p.batchChanges = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "grouper",
			Name:      "changes_total",
			Help:      "Total item changes processed by batch kind.",
		}, []string{"kind"})
		p.batchLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: p.namespace,
			Subsystem: "grouper",
			Name:      "batch_duration_seconds",
			Help:      "Batch processing latency in seconds by kind.",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 10), // 10us .. ~2.6s
		}, []string{"kind"})
		p.lifecycle = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "grouper",
			Name:      "lifecycle_events_total",
			Help:      "Total group lifecycle events by reason (Add/Remove).",
		}, []string{"reason"})
		p.violations = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "grouper",
			Name:      "contract_violations_total",
			Help:      "Total changes rejected for missing prior state by reason.",
		}, []string{"reason"})
		p.groups = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: p.namespace,
			Subsystem: "grouper",
			Name:      "groups_current",
			Help:      "Current number of non-empty groups.",
		})
		p.trackedItems = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: p.namespace,
			Subsystem: "grouper",
			Name:      "tracked_items_current",
			Help:      "Current number of items in the ledger.",
		})

		p.reg.MustRegister(p.batches, p.batchChanges, p.batchLatency, p.lifecycle,
			p.violations, p.groups, p.trackedItems)
	})
}

func (p *Prometheus) BatchProcessed(kind string, changes int, seconds float64) {
	p.ensureRegistered()
	p.batches.WithLabelValues(kind).Inc()
	p.batchChanges.WithLabelValues(kind).Add(float64(changes))
	p.batchLatency.WithLabelValues(kind).Observe(seconds)
}

func (p *Prometheus) LifecycleEvent(reason string) {
	p.ensureRegistered()
	p.lifecycle.WithLabelValues(reason).Inc()
}

func (p *Prometheus) ContractViolation(reason string) {
	p.ensureRegistered()
	p.violations.WithLabelValues(reason).Inc()
}

func (p *Prometheus) SetGroups(n int) {
	p.ensureRegistered()
	p.groups.Set(float64(n))
}

func (p *Prometheus) SetTrackedItems(n int) {
	p.ensureRegistered()
	p.trackedItems.Set(float64(n))
}
