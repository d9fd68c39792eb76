// Package boemetrics contains the Prometheus metrics reported by benor nodes.
package boemetrics

import (
	"strconv"

	"github.com/gordian-engine/benor/boconsensus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the metric vectors shared by every node in a process.
// Each vector is labelled by node index.
type Metrics struct {
	MessagesReceived *prometheus.CounterVec
	MessagesRejected *prometheus.CounterVec

	Quorums         *prometheus.CounterVec
	Decisions       *prometheus.CounterVec
	RandomFallbacks *prometheus.CounterVec

	CurrentRound *prometheus.GaugeVec
}

// New registers the benor metrics with reg under the given namespace.
// Registering twice with the same registry panics,
// so multiple nodes in one process must share a single Metrics value.
func New(reg prometheus.Registerer, namespace string) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		MessagesReceived: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_received_total",
			Help:      "Messages accepted by a live node, by phase",
		}, []string{"node", "phase"}),
		MessagesRejected: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_rejected_total",
			Help:      "Messages rejected because the node was not alive",
		}, []string{"node"}),

		Quorums: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quorums_total",
			Help:      "Quorums reached, by phase",
		}, []string{"node", "phase"}),
		Decisions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decisions_total",
			Help:      "Decisions reached, by value and phase",
		}, []string{"node", "value", "phase"}),
		RandomFallbacks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "random_fallbacks_total",
			Help:      "Vote quorums resolved by flipping the coin",
		}, []string{"node"}),

		CurrentRound: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "current_round",
			Help:      "The round the node is currently in, or 0 before start",
		}, []string{"node"}),
	}
}

// ForNode returns the metrics view for a single node.
// Calling ForNode on a nil *Metrics returns a nil *NodeMetrics,
// whose methods are all no-ops.
func (m *Metrics) ForNode(idx int) *NodeMetrics {
	if m == nil {
		return nil
	}
	return &NodeMetrics{m: m, node: strconv.Itoa(idx)}
}

// NodeMetrics records events for one node.
// All methods are safe to call on a nil receiver.
type NodeMetrics struct {
	m    *Metrics
	node string
}

func (n *NodeMetrics) MessageReceived(p boconsensus.Phase) {
	if n == nil {
		return
	}
	n.m.MessagesReceived.WithLabelValues(n.node, p.String()).Inc()
}

func (n *NodeMetrics) MessageRejected() {
	if n == nil {
		return
	}
	n.m.MessagesRejected.WithLabelValues(n.node).Inc()
}

func (n *NodeMetrics) QuorumReached(p boconsensus.Phase) {
	if n == nil {
		return
	}
	n.m.Quorums.WithLabelValues(n.node, p.String()).Inc()
}

func (n *NodeMetrics) Decided(v boconsensus.Value, p boconsensus.Phase) {
	if n == nil {
		return
	}
	n.m.Decisions.WithLabelValues(n.node, v.String(), p.String()).Inc()
}

func (n *NodeMetrics) RandomFallback() {
	if n == nil {
		return
	}
	n.m.RandomFallbacks.WithLabelValues(n.node).Inc()
}

func (n *NodeMetrics) EnteredRound(r uint32) {
	if n == nil {
		return
	}
	n.m.CurrentRound.WithLabelValues(n.node).Set(float64(r))
}
