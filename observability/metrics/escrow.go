package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics aggregates the node's escrow instrumentation. A nil *Metrics is a
// valid no-op receiver so callers never need to guard their observation sites.
type Metrics struct {
	ops           *prometheus.CounterVec
	liveInstances prometheus.Gauge
	blockHeight   prometheus.Gauge
	mempoolDepth  prometheus.Gauge
}

// New registers the escrow collectors against the supplied registerer.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "escrownet",
			Subsystem: "engine",
			Name:      "operations_total",
			Help:      "Escrow operations applied, labelled by operation and result.",
		}, []string{"op", "result"}),
		liveInstances: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "escrownet",
			Subsystem: "engine",
			Name:      "live_instances",
			Help:      "Escrow instances that have not reached a terminal phase.",
		}),
		blockHeight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "escrownet",
			Subsystem: "chain",
			Name:      "block_height",
			Help:      "Height of the most recently committed block.",
		}),
		mempoolDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "escrownet",
			Subsystem: "chain",
			Name:      "mempool_depth",
			Help:      "Transactions waiting for the next block.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.ops, m.liveInstances, m.blockHeight, m.mempoolDepth)
	}
	return m
}

// ObserveOp counts one applied operation with its result label.
func (m *Metrics) ObserveOp(op, result string) {
	if m == nil {
		return
	}
	m.ops.WithLabelValues(op, result).Inc()
}

// AddLiveInstances moves the live instance gauge by delta.
func (m *Metrics) AddLiveInstances(delta float64) {
	if m == nil {
		return
	}
	m.liveInstances.Add(delta)
}

// SetBlockHeight records the committed chain height.
func (m *Metrics) SetBlockHeight(height uint64) {
	if m == nil {
		return
	}
	m.blockHeight.Set(float64(height))
}

// SetMempoolDepth records the pending transaction count.
func (m *Metrics) SetMempoolDepth(depth int) {
	if m == nil {
		return
	}
	m.mempoolDepth.Set(float64(depth))
}
