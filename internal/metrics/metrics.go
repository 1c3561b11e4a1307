package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "locator"

// Transition labels.
const (
	TransitionPublish   = "publish"
	TransitionWithdraw  = "withdraw"
	TransitionRepublish = "republish"
)

// Collector holds the runtime's Prometheus collectors. It satisfies the
// recorder interfaces of the catalog and the resolver.
type Collector struct {
	transitions     *prometheus.CounterVec
	faults          *prometheus.CounterVec
	catalogEntries  *prometheus.GaugeVec
	resolveDuration *prometheus.HistogramVec
	resolveFailures *prometheus.CounterVec
	cacheHits       prometheus.Counter
	components      prometheus.Gauge
	modules         prometheus.Gauge
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) (*Collector, error) {
	c := &Collector{
		transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "component_transitions_total",
				Help:      "Number of component publication transitions by capability.",
			},
			[]string{"capability", "transition"},
		),
		faults: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "component_faults_total",
				Help:      "Number of failed component instantiations by implementation.",
			},
			[]string{"implementation"},
		),
		catalogEntries: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "catalog_entries",
				Help:      "Number of entries currently published per capability.",
			},
			[]string{"capability"},
		),
		resolveDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "resolve_duration_seconds",
				Help:      "Time taken by static resolution requests.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"mode"},
		),
		resolveFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "resolve_failures_total",
				Help:      "Number of static resolution requests that failed.",
			},
			[]string{"mode"},
		),
		cacheHits: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "resolve_cache_hits_total",
				Help:      "Number of static builds served from the instance cache.",
			},
		),
		components: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "components",
				Help:      "Number of live components.",
			},
		),
		modules: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "modules",
				Help:      "Number of attached modules.",
			},
		),
	}

	for _, col := range []prometheus.Collector{
		c.transitions,
		c.faults,
		c.catalogEntries,
		c.resolveDuration,
		c.resolveFailures,
		c.cacheHits,
		c.components,
		c.modules,
	} {
		if err := reg.Register(col); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// CatalogEntries records the provider count of capability.
func (c *Collector) CatalogEntries(capability string, count int) {
	c.catalogEntries.WithLabelValues(capability).Set(float64(count))
}

func (c *Collector) ResolveObserved(mode string, d time.Duration, err error) {
	c.resolveDuration.WithLabelValues(mode).Observe(d.Seconds())
	if err != nil {
		c.resolveFailures.WithLabelValues(mode).Inc()
	}
}

func (c *Collector) CacheHit() {
	c.cacheHits.Inc()
}

// Transition counts one publication transition of a component providing
// capability.
func (c *Collector) Transition(capability, transition string) {
	c.transitions.WithLabelValues(capability, transition).Inc()
}

func (c *Collector) Fault(implementation string) {
	c.faults.WithLabelValues(implementation).Inc()
}

func (c *Collector) Components(n int) {
	c.components.Set(float64(n))
}

func (c *Collector) Modules(n int) {
	c.modules.Set(float64(n))
}
