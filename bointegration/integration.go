// Package bointegration runs the same end-to-end consensus scenarios
// against any transport.
package bointegration

import (
	"context"
	"testing"

	"github.com/gordian-engine/benor/boconsensus"
	"github.com/gordian-engine/benor/internal/gtest"
	"github.com/stretchr/testify/require"
)

// scenario is a set of inputs whose outcome is fully determined,
// regardless of message ordering and coin flips.
type scenario struct {
	name string

	cfg ClusterConfig

	// Every live node must decide this.
	want boconsensus.Value
}

func values(vs ...int) []boconsensus.Value {
	out := make([]boconsensus.Value, len(vs))
	for i, v := range vs {
		out[i] = boconsensus.Value(v)
	}
	return out
}

var scenarios = []scenario{
	{
		name: "unanimous ones",
		cfg: ClusterConfig{
			Params: boconsensus.Params{N: 4, F: 1},
			Inputs: values(1, 1, 1, 1),
		},
		want: boconsensus.One,
	},
	{
		name: "unanimous zeros with a faulty node",
		cfg: ClusterConfig{
			Params: boconsensus.Params{N: 4, F: 1},
			Inputs: values(0, 0, 1, 0),
			Faulty: []int{2},
		},
		want: boconsensus.Zero,
	},
	{
		name: "unanimous ones with two faulty nodes",
		cfg: ClusterConfig{
			Params: boconsensus.Params{N: 7, F: 2},
			Inputs: values(1, 0, 1, 1, 0, 1, 1),
			Faulty: []int{1, 4},
		},
		want: boconsensus.One,
	},
	{
		// Every quorum of six holds at least four zeros,
		// so every node votes 0 and six votes for 0 exceed F.
		name: "supermajority decides in the first vote",
		cfg: ClusterConfig{
			Params: boconsensus.Params{N: 7, F: 1},
			Inputs: values(0, 1, 0, 0, 1, 0, 0),
		},
		want: boconsensus.Zero,
	},
	{
		name: "single node",
		cfg: ClusterConfig{
			Params: boconsensus.Params{N: 1, F: 0},
			Inputs: values(1),
		},
		want: boconsensus.One,
	},
	{
		name: "round retention does not affect the outcome",
		cfg: ClusterConfig{
			Params:       boconsensus.Params{N: 7, F: 1},
			Inputs:       values(1, 1, 0, 1, 1, 1, 0),
			RetainRounds: 1,
		},
		want: boconsensus.One,
	},
}

// RunIntegrationTest runs every scenario against networks from ff.
func RunIntegrationTest(t *testing.T, ff FactoryFunc) {
	for _, sc := range scenarios {
		t.Run(sc.name, func(t *testing.T) {
			t.Parallel()

			ctx, cancel := context.WithCancel(t.Context())
			defer cancel()

			net := ff(t, ctx, sc.cfg.Params.N)
			defer net.Wait()
			defer cancel()

			states := RunCluster(t, ctx, net, sc.cfg)
			RequireDecided(t, states, sc.want)
		})
	}
}

// RunCluster builds a cluster on net, starts it,
// and returns the node states once every live node has decided.
// The cluster is stopped when ctx is cancelled.
func RunCluster(t *testing.T, ctx context.Context, net Network, cfg ClusterConfig) []boconsensus.NodeState {
	t.Helper()

	c, err := NewCluster(ctx, gtest.NewLogger(t), net, cfg)
	require.NoError(t, err)
	t.Cleanup(c.Wait)

	stabilizeCtx, cancel := context.WithTimeout(ctx, gtest.ScaleMs(10_000))
	defer cancel()
	require.NoError(t, net.Stabilize(stabilizeCtx))

	require.NoError(t, c.StartAll(ctx))

	decideCtx, cancel := context.WithTimeout(ctx, gtest.ScaleMs(10_000))
	defer cancel()
	states, err := c.AwaitDecisions(decideCtx)
	require.NoError(t, err, "last states: %v", states)

	return states
}

// RequireDecided asserts that every live node decided want
// and that faulty nodes report no state.
func RequireDecided(t *testing.T, states []boconsensus.NodeState, want boconsensus.Value) {
	t.Helper()

	for i, s := range states {
		if s.Faulty {
			require.Equal(t, boconsensus.NodeState{Faulty: true}, s, "node %d", i)
			continue
		}
		require.True(t, s.Alive, "node %d", i)
		require.True(t, s.Decided, "node %d", i)
		require.Equal(t, want, s.Value, "node %d", i)
		require.True(t, s.Progress.Started(), "node %d", i)
	}
}
