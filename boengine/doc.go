// Package boengine runs a single benor consensus node.
//
// Create a node with [NewNode], connect its broadcaster and inbound handler
// to a transport (see the bop2p subpackages), and call [*Node.Start]
// once every node in the network is ready.
// The node keeps participating after it decides,
// so that slower peers can still reach quorum;
// observe progress with [*Node.State].
package boengine
