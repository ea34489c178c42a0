package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PromCollectors holds the pipeline's Prometheus instruments, registered
// against a caller-supplied Registerer so cmd/tracker (the only long-lived
// process, and therefore the only one that can usefully serve /metrics) can
// expose them over HTTP. cmd/enforcer does not construct them, so counts
// from enforcement runs do not reach these collectors.
type PromCollectors struct {
	GateChecksTotal  *prometheus.CounterVec
	GateBlocksTotal  *prometheus.CounterVec
	GateDuration     *prometheus.HistogramVec
	CacheHitsTotal   prometheus.Counter
	CacheMissesTotal prometheus.Counter
	CircuitOpenGauge *prometheus.GaugeVec
	RateLimitDenied  *prometheus.CounterVec
}

// NewPromCollectors constructs and registers the pipeline's collectors
// against reg.
func NewPromCollectors(reg prometheus.Registerer) *PromCollectors {
	c := &PromCollectors{
		GateChecksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "torus_enforcer_gate_checks_total",
			Help: "Total gate evaluations, labeled by gate and tool.",
		}, []string{"gate", "tool"}),
		GateBlocksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "torus_enforcer_gate_blocks_total",
			Help: "Total blocking gate results, labeled by gate and tool.",
		}, []string{"gate", "tool"}),
		GateDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "torus_enforcer_gate_duration_ms",
			Help:    "Gate evaluation duration in milliseconds.",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		}, []string{"gate"}),
		CacheHitsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "torus_enforcer_gate_cache_hits_total",
			Help: "Total result-cache hits.",
		}),
		CacheMissesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "torus_enforcer_gate_cache_misses_total",
			Help: "Total result-cache misses.",
		}),
		CircuitOpenGauge: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "torus_enforcer_circuit_open",
			Help: "1 if the gate's circuit breaker is currently OPEN or HALF_OPEN, else 0.",
		}, []string{"gate"}),
		RateLimitDenied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "torus_enforcer_rate_limit_denied_total",
			Help: "Total requests denied by the token-bucket rate limiter, labeled by key prefix.",
		}, []string{"prefix"}),
	}
	reg.MustRegister(
		c.GateChecksTotal,
		c.GateBlocksTotal,
		c.GateDuration,
		c.CacheHitsTotal,
		c.CacheMissesTotal,
		c.CircuitOpenGauge,
		c.RateLimitDenied,
	)
	return c
}

// Observe records one completed gate evaluation against the collectors.
func (c *PromCollectors) Observe(gt GateTelemetry) {
	c.GateChecksTotal.WithLabelValues(gt.Gate, gt.Tool).Inc()
	if gt.Blocked {
		c.GateBlocksTotal.WithLabelValues(gt.Gate, gt.Tool).Inc()
	}
	c.GateDuration.WithLabelValues(gt.Gate).Observe(float64(gt.DurationMs))
	if gt.CacheHit {
		c.CacheHitsTotal.Inc()
	} else {
		c.CacheMissesTotal.Inc()
	}
}
