// Package bocodec defines how benor messages and node state
// are serialized for transports that carry bytes.
package bocodec

import "github.com/gordian-engine/benor/boconsensus"

// MessageMarshaler serializes consensus messages.
type MessageMarshaler interface {
	MarshalMessage(boconsensus.Message) ([]byte, error)
}

// MessageUnmarshaler deserializes consensus messages.
type MessageUnmarshaler interface {
	UnmarshalMessage([]byte, *boconsensus.Message) error
}

// StateMarshaler serializes node state snapshots.
type StateMarshaler interface {
	MarshalState(boconsensus.NodeState) ([]byte, error)
}

// StateUnmarshaler deserializes node state snapshots.
type StateUnmarshaler interface {
	UnmarshalState([]byte, *boconsensus.NodeState) error
}

// Codec is the full set of serialization operations a transport needs.
type Codec interface {
	MessageMarshaler
	MessageUnmarshaler

	StateMarshaler
	StateUnmarshaler
}
