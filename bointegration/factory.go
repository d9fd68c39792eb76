package bointegration

import (
	"context"
	"testing"

	"github.com/gordian-engine/benor/bop2p"
)

// FactoryFunc creates a Network of n nodes for a single sub-test.
// The network must shut down when ctx is cancelled.
type FactoryFunc func(t *testing.T, ctx context.Context, n int) Network

// Network is a transport under test.
//
// Within each integration sub-test, the factory is called once,
// then for every node index Broadcaster and SetNodeHandler are each called once,
// then Stabilize is called before any node is started.
type Network interface {
	// Broadcaster returns the broadcaster for the node at idx.
	Broadcaster(idx int) bop2p.Broadcaster

	// SetNodeHandler routes inbound traffic for idx to h.
	SetNodeHandler(idx int, h bop2p.NodeHandler)

	// Stabilize blocks until a broadcast from any node reaches every node.
	Stabilize(ctx context.Context) error

	// Wait blocks until the network has shut down
	// after the factory's context is cancelled.
	Wait()
}
