// Package metrics provides optional prometheus instrumentation for
// pools and routers. A nil *Collectors is a documented no-op so the
// library stays silent unless an embedder opts in.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Collectors bundles the gauges/counters the pool and routers update.
// Register the result of Collectors() (or the individual collectors) with
// a prometheus.Registerer to expose them.
type Collectors struct {
	PoolIdle        *prometheus.GaugeVec
	PoolOutstanding *prometheus.GaugeVec
	DialTotal       *prometheus.CounterVec
	RedirectTotal   *prometheus.CounterVec
	FailoverTotal   prometheus.Counter
	RefreshTotal    *prometheus.CounterVec
}

// New builds a fresh Collectors set with the given namespace, e.g. "redis".
func New(namespace string) *Collectors {
	return &Collectors{
		PoolIdle: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "pool_idle_connections",
			Help: "Idle connections currently held by the pool.",
		}, []string{"node"}),
		PoolOutstanding: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "pool_outstanding_connections",
			Help: "Connections currently checked out of the pool.",
		}, []string{"node"}),
		DialTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "dial_total",
			Help: "Connections dialed, by node and outcome.",
		}, []string{"node", "outcome"}),
		RedirectTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "cluster_redirect_total",
			Help: "MOVED/ASK/TRYAGAIN redirects handled, by kind.",
		}, []string{"kind"}),
		FailoverTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "sentinel_failover_total",
			Help: "Sentinel-driven primary re-resolutions that changed the primary address.",
		}),
		RefreshTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "cluster_refresh_total",
			Help: "Background slot-map refresh attempts, by outcome.",
		}, []string{"outcome"}),
	}
}

// Collectors returns every prometheus.Collector for bulk registration.
func (c *Collectors) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		c.PoolIdle, c.PoolOutstanding, c.DialTotal, c.RedirectTotal, c.FailoverTotal, c.RefreshTotal,
	}
}

func (c *Collectors) SetPoolIdle(node string, n int) {
	if c == nil {
		return
	}
	c.PoolIdle.WithLabelValues(node).Set(float64(n))
}

func (c *Collectors) SetPoolOutstanding(node string, n int) {
	if c == nil {
		return
	}
	c.PoolOutstanding.WithLabelValues(node).Set(float64(n))
}

func (c *Collectors) IncDial(node, outcome string) {
	if c == nil {
		return
	}
	c.DialTotal.WithLabelValues(node, outcome).Inc()
}

func (c *Collectors) IncRedirect(kind string) {
	if c == nil {
		return
	}
	c.RedirectTotal.WithLabelValues(kind).Inc()
}

func (c *Collectors) IncFailover() {
	if c == nil {
		return
	}
	c.FailoverTotal.Inc()
}

func (c *Collectors) IncRefresh(outcome string) {
	if c == nil {
		return
	}
	c.RefreshTotal.WithLabelValues(outcome).Inc()
}
