// Package bolibp2p carries benor messages over a libp2p gossipsub topic.
//
// Every node joins the same topic.
// A broadcast is a single publish, which gossipsub delivers
// to every subscribed peer and to the publisher's own subscription.
package bolibp2p

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gordian-engine/benor/bocodec"
	"github.com/gordian-engine/benor/boconsensus"
	"github.com/gordian-engine/benor/bop2p"
	"github.com/libp2p/go-libp2p"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
)

// DefaultTopic is the gossipsub topic used when [NetworkConfig.Topic] is empty.
const DefaultTopic = "benor/messages/v1"

// Network is one node's libp2p host, joined to the consensus topic.
type Network struct {
	log *slog.Logger

	host  host.Host
	topic *pubsub.Topic
	sub   *pubsub.Subscription
	codec MessageCodec

	handler atomic.Pointer[handlerBox]

	publishes sync.WaitGroup
	done      chan struct{}
}

var _ bop2p.Broadcaster = (*Network)(nil)

// MessageCodec is the subset of [bocodec.Codec] a Network needs.
type MessageCodec interface {
	bocodec.MessageMarshaler
	bocodec.MessageUnmarshaler
}

// NetworkConfig is the configuration for [NewNetwork].
type NetworkConfig struct {
	// Multiaddrs to listen on.
	// Defaults to a random TCP port on the IPv4 loopback interface.
	ListenAddrs []string

	// Defaults to [DefaultTopic].
	Topic string

	Codec MessageCodec
}

// handlerBox lets the handler interface live in an atomic.Pointer.
type handlerBox struct {
	h bop2p.NodeHandler
}

// NewNetwork starts a libp2p host, joins the topic, and begins reading from it.
// Inbound messages are dropped until [*Network.SetHandler] is called.
//
// The host is closed when ctx is cancelled.
func NewNetwork(ctx context.Context, log *slog.Logger, cfg NetworkConfig) (*Network, error) {
	if cfg.Codec == nil {
		return nil, errors.New("codec is required")
	}
	addrs := cfg.ListenAddrs
	if len(addrs) == 0 {
		addrs = []string{"/ip4/127.0.0.1/tcp/0"}
	}
	topicName := cfg.Topic
	if topicName == "" {
		topicName = DefaultTopic
	}

	h, err := libp2p.New(libp2p.ListenAddrStrings(addrs...))
	if err != nil {
		return nil, fmt.Errorf("failed to create libp2p host: %w", err)
	}

	ps, err := pubsub.NewGossipSub(ctx, h)
	if err != nil {
		_ = h.Close()
		return nil, fmt.Errorf("failed to create gossipsub: %w", err)
	}

	topic, err := ps.Join(topicName)
	if err != nil {
		_ = h.Close()
		return nil, fmt.Errorf("failed to join topic %q: %w", topicName, err)
	}

	sub, err := topic.Subscribe()
	if err != nil {
		_ = h.Close()
		return nil, fmt.Errorf("failed to subscribe to topic %q: %w", topicName, err)
	}

	n := &Network{
		log: log,

		host:  h,
		topic: topic,
		sub:   sub,
		codec: cfg.Codec,

		done: make(chan struct{}),
	}

	log.Info("Started libp2p host", "id", h.ID(), "addrs", h.Addrs(), "topic", topicName)

	go n.readLoop(ctx)

	return n, nil
}

// SetHandler sets the handler for inbound messages.
func (n *Network) SetHandler(h bop2p.NodeHandler) {
	n.handler.Store(&handlerBox{h: h})
}

// AddrInfo returns the information other hosts need to connect to this one.
func (n *Network) AddrInfo() peer.AddrInfo {
	return peer.AddrInfo{
		ID:    n.host.ID(),
		Addrs: n.host.Addrs(),
	}
}

// Connect dials the given peer.
func (n *Network) Connect(ctx context.Context, ai peer.AddrInfo) error {
	if err := n.host.Connect(ctx, ai); err != nil {
		return fmt.Errorf("failed to connect to %s: %w", ai.ID, err)
	}
	return nil
}

// TopicPeers returns the number of connected peers
// known to be subscribed to the consensus topic.
func (n *Network) TopicPeers() int {
	return len(n.topic.ListPeers())
}

// Broadcast implements [bop2p.Broadcaster].
// The publish happens in the background and failures are only logged.
func (n *Network) Broadcast(ctx context.Context, msg boconsensus.Message) {
	b, err := n.codec.MarshalMessage(msg)
	if err != nil {
		n.log.Warn("Failed to marshal message for broadcast", "msg", msg, "err", err)
		return
	}

	n.publishes.Add(1)
	go func() {
		defer n.publishes.Done()
		if err := n.topic.Publish(ctx, b); err != nil && ctx.Err() == nil {
			n.log.Debug("Failed to publish message", "round", msg.Round, "phase", msg.Phase, "err", err)
		}
	}()
}

// Wait blocks until the read loop has stopped, all publishes have returned,
// and the host has been closed.
func (n *Network) Wait() {
	<-n.done
}

func (n *Network) readLoop(ctx context.Context) {
	defer close(n.done)
	defer func() {
		n.publishes.Wait()
		n.sub.Cancel()
		if err := n.host.Close(); err != nil {
			n.log.Debug("Error closing libp2p host", "err", err)
		}
	}()

	for {
		m, err := n.sub.Next(ctx)
		if err != nil {
			if ctx.Err() == nil {
				n.log.Info("Subscription ended", "err", err)
			}
			return
		}

		var msg boconsensus.Message
		if err := n.codec.UnmarshalMessage(m.Data, &msg); err != nil {
			n.log.Debug("Dropping undecodable message", "from", m.ReceivedFrom, "err", err)
			continue
		}

		hb := n.handler.Load()
		if hb == nil {
			n.log.Debug("Dropping message received before handler was set", "from", m.ReceivedFrom)
			continue
		}

		if err := hb.h.HandleMessage(ctx, msg); err != nil && ctx.Err() == nil {
			n.log.Debug("Handler rejected message", "from", m.ReceivedFrom, "err", err)
		}
	}
}
