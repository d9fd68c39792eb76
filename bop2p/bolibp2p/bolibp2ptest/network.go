// Package bolibp2ptest builds fully connected local libp2p networks for tests.
package bolibp2ptest

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gordian-engine/benor/bop2p/bolibp2p"
)

// Network is a set of loopback libp2p hosts sharing one topic.
type Network struct {
	nodes []*bolibp2p.Network
}

// NewNetwork starts n hosts and connects every pair of them.
// Cancel ctx and call [*Network.Wait] to shut them all down.
func NewNetwork(ctx context.Context, log *slog.Logger, n int, codec bolibp2p.MessageCodec) (*Network, error) {
	nodes := make([]*bolibp2p.Network, n)
	for i := range nodes {
		nw, err := bolibp2p.NewNetwork(ctx, log.With("sys", "libp2p", "idx", i), bolibp2p.NetworkConfig{
			Codec: codec,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create node %d: %w", i, err)
		}
		nodes[i] = nw
	}

	if err := bolibp2p.ConnectMesh(ctx, nodes); err != nil {
		return nil, err
	}

	return &Network{nodes: nodes}, nil
}

// Node returns the host at idx.
func (n *Network) Node(idx int) *bolibp2p.Network {
	return n.nodes[idx]
}

// Stabilize blocks until every host sees every other host on the topic.
func (n *Network) Stabilize(ctx context.Context) error {
	return bolibp2p.AwaitMesh(ctx, n.nodes)
}

// Wait blocks until every host has shut down.
func (n *Network) Wait() {
	for _, nw := range n.nodes {
		nw.Wait()
	}
}
