package boemetrics_test

import (
	"testing"

	"github.com/gordian-engine/benor/boconsensus"
	"github.com/gordian-engine/benor/boengine/boemetrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestNodeMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m := boemetrics.New(reg, "benor")

	n0 := m.ForNode(0)
	n1 := m.ForNode(1)

	n0.MessageReceived(boconsensus.PhaseProposal)
	n0.MessageReceived(boconsensus.PhaseProposal)
	n1.MessageReceived(boconsensus.PhaseVote)
	n1.MessageRejected()

	n0.QuorumReached(boconsensus.PhaseVote)
	n0.Decided(boconsensus.One, boconsensus.PhaseVote)
	n1.RandomFallback()
	n0.EnteredRound(4)

	require.Equal(t, 2.0, testutil.ToFloat64(m.MessagesReceived.WithLabelValues("0", "proposal")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.MessagesReceived.WithLabelValues("1", "vote")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.MessagesRejected.WithLabelValues("1")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.Quorums.WithLabelValues("0", "vote")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.Decisions.WithLabelValues("0", "1", "vote")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.RandomFallbacks.WithLabelValues("1")))
	require.Equal(t, 4.0, testutil.ToFloat64(m.CurrentRound.WithLabelValues("0")))
}

func TestNodeMetrics_nil(t *testing.T) {
	t.Parallel()

	var m *boemetrics.Metrics
	n := m.ForNode(3)
	require.Nil(t, n)

	// None of these may panic.
	n.MessageReceived(boconsensus.PhaseVote)
	n.MessageRejected()
	n.QuorumReached(boconsensus.PhaseProposal)
	n.Decided(boconsensus.Zero, boconsensus.PhaseProposal)
	n.RandomFallback()
	n.EnteredRound(1)
}
