// Package bop2p defines the boundary between a benor node
// and whatever network carries its messages.
//
// The engine only ever calls [Broadcaster.Broadcast].
// Transports deliver inbound traffic by calling methods on a [NodeHandler].
package bop2p

import (
	"context"

	"github.com/gordian-engine/benor/boconsensus"
)

// Broadcaster sends a message to every node in the network,
// including the sender itself.
//
// Broadcast is best-effort and must not block on delivery:
// there is no acknowledgement, no retry, and no error reported to the caller.
type Broadcaster interface {
	Broadcast(ctx context.Context, msg boconsensus.Message)
}

// PeerSender delivers a single message to the node at peerIdx.
// The returned error is informational only;
// [FanOut] logs it and moves on.
type PeerSender interface {
	Send(ctx context.Context, peerIdx int, msg boconsensus.Message) error
}

// NodeHandler is the set of operations a node exposes to its transport.
//
// [github.com/gordian-engine/benor/boengine.Node] implements NodeHandler.
type NodeHandler interface {
	// HandleMessage accepts a proposal or vote.
	// It returns [boconsensus.ErrNotAlive] for faulty or stopped nodes.
	HandleMessage(ctx context.Context, msg boconsensus.Message) error

	// Start begins consensus.
	// It returns [boconsensus.ErrNotReady] if the network is not ready,
	// or [boconsensus.ErrNotAlive] for faulty or stopped nodes.
	Start(ctx context.Context) error

	// Stop marks the node as not alive.
	// It only fails if ctx is cancelled.
	Stop(ctx context.Context) error

	// Status returns nil if the node is live,
	// and [boconsensus.ErrNotAlive] otherwise.
	Status(ctx context.Context) error

	// State returns a snapshot of the node's state.
	// It only fails if ctx is cancelled.
	State(ctx context.Context) (boconsensus.NodeState, error)
}
