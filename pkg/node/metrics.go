package node

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/raterudder/vrmapi/pkg/types"
)

// Request outcomes recorded in vrm_requests_total.
const (
	outcomeSuccess     = "success"
	outcomeFailure     = "failure"
	outcomeRateLimited = "rate_limited"
	outcomeError       = "error"
)

// Metrics records request counts and latencies per node and family. A nil
// *Metrics records nothing.
type Metrics struct {
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them with reg when it is
// non-nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vrm",
			Name:      "requests_total",
			Help:      "VRM requests handled by a node, by outcome.",
		}, []string{"node", "family", "outcome"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "vrm",
			Name:      "request_duration_seconds",
			Help:      "Latency of VRM API calls.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"node", "family"}),
	}
	if reg != nil {
		reg.MustRegister(m.requests, m.latency)
	}
	return m
}

func (m *Metrics) count(node string, family types.Family, outcome string) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(node, string(family), outcome).Inc()
}

func (m *Metrics) observe(node string, family types.Family, d time.Duration) {
	if m == nil {
		return
	}
	m.latency.WithLabelValues(node, string(family)).Observe(d.Seconds())
}
