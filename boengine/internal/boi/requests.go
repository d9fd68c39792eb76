package boi

import "github.com/gordian-engine/benor/boconsensus"

// MessageRequest asks the kernel to accept a proposal or vote.
// Resp receives nil or [boconsensus.ErrNotAlive].
type MessageRequest struct {
	Msg boconsensus.Message

	Resp chan error
}

// StartRequest asks the kernel to begin round 1.
// Resp receives nil, [boconsensus.ErrNotReady], or [boconsensus.ErrNotAlive].
type StartRequest struct {
	Resp chan error
}

// StopRequest asks the kernel to mark the node not alive.
// Resp is closed once the node is stopped.
type StopRequest struct {
	Resp chan struct{}
}

// SnapshotRequest asks the kernel for a copy of the current node state.
type SnapshotRequest struct {
	Resp chan boconsensus.NodeState
}
