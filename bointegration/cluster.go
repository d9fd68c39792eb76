package bointegration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gordian-engine/benor/boconsensus"
	"github.com/gordian-engine/benor/boengine"
)

// ClusterConfig describes the nodes to run on a [Network].
type ClusterConfig struct {
	Params boconsensus.Params

	// One initial value per node.
	Inputs []boconsensus.Value

	// Indices of faulty nodes.
	Faulty []int

	RetainRounds uint32
}

// Cluster is a set of running nodes attached to a [Network].
type Cluster struct {
	Nodes []*boengine.Node

	faulty map[int]bool
}

// NewCluster creates one node per input and attaches each to net.
// The nodes are not started; see [*Cluster.StartAll].
// Cancel ctx and call [*Cluster.Wait] to stop them.
func NewCluster(ctx context.Context, log *slog.Logger, net Network, cfg ClusterConfig) (*Cluster, error) {
	if len(cfg.Inputs) != cfg.Params.N {
		return nil, fmt.Errorf("got %d inputs for %d nodes", len(cfg.Inputs), cfg.Params.N)
	}

	c := &Cluster{
		Nodes:  make([]*boengine.Node, cfg.Params.N),
		faulty: make(map[int]bool, len(cfg.Faulty)),
	}
	for _, idx := range cfg.Faulty {
		c.faulty[idx] = true
	}

	for i := range c.Nodes {
		n, err := boengine.NewNode(ctx, log.With("sys", "node", "idx", i), boengine.NodeConfig{
			Index:        i,
			Params:       cfg.Params,
			InitialValue: cfg.Inputs[i],
			Faulty:       c.faulty[i],
			Broadcaster:  net.Broadcaster(i),
			RetainRounds: cfg.RetainRounds,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create node %d: %w", i, err)
		}
		c.Nodes[i] = n
		net.SetNodeHandler(i, n)
	}

	return c, nil
}

// StartAll starts every node.
// Faulty nodes must refuse with [boconsensus.ErrNotAlive].
func (c *Cluster) StartAll(ctx context.Context) error {
	for i, n := range c.Nodes {
		err := n.Start(ctx)
		if c.faulty[i] {
			if !errors.Is(err, boconsensus.ErrNotAlive) {
				return fmt.Errorf("faulty node %d: expected ErrNotAlive on start, got %v", i, err)
			}
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to start node %d: %w", i, err)
		}
	}
	return nil
}

// AwaitDecisions polls every node until each live node has decided.
// On failure the last observed states are returned with the error.
func (c *Cluster) AwaitDecisions(ctx context.Context) ([]boconsensus.NodeState, error) {
	t := time.NewTicker(5 * time.Millisecond)
	defer t.Stop()

	states := make([]boconsensus.NodeState, len(c.Nodes))
	for {
		done := true
		for i, n := range c.Nodes {
			s, err := n.State(ctx)
			if err != nil {
				return states, fmt.Errorf("failed to get state of node %d: %w", i, err)
			}
			states[i] = s
			if s.Alive && !s.Decided {
				done = false
			}
		}
		if done {
			return states, nil
		}

		select {
		case <-ctx.Done():
			return states, fmt.Errorf("not every live node decided: %w", context.Cause(ctx))
		case <-t.C:
		}
	}
}

// Wait blocks until every node has stopped.
func (c *Cluster) Wait() {
	for _, n := range c.Nodes {
		n.Wait()
	}
}
