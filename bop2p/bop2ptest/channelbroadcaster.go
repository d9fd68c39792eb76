package bop2ptest

import (
	"context"

	"github.com/gordian-engine/benor/boconsensus"
)

// ChannelBroadcaster is a [bop2p.Broadcaster] that writes every broadcast
// message to a buffered channel, for tests to inspect.
//
// Broadcast panics if the buffer is full,
// since the broadcaster contract forbids blocking.
type ChannelBroadcaster struct {
	ch chan boconsensus.Message
}

// NewChannelBroadcaster returns a ChannelBroadcaster with the given buffer size.
func NewChannelBroadcaster(bufSize int) *ChannelBroadcaster {
	return &ChannelBroadcaster{
		ch: make(chan boconsensus.Message, bufSize),
	}
}

// Broadcast implements [bop2p.Broadcaster].
func (b *ChannelBroadcaster) Broadcast(_ context.Context, msg boconsensus.Message) {
	select {
	case b.ch <- msg:
	default:
		panic("BUG: ChannelBroadcaster buffer full; increase bufSize")
	}
}

// Messages returns the channel of broadcast messages.
func (b *ChannelBroadcaster) Messages() <-chan boconsensus.Message {
	return b.ch
}
