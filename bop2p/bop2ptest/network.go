package bop2ptest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"

	"github.com/gordian-engine/benor/boconsensus"
	"github.com/gordian-engine/benor/bop2p"
)

// Network is an in-process network of nodes.
// Every send is delivered on its own goroutine,
// so delivery order between messages is unspecified.
//
// Optional fault injection can silence individual senders
// or duplicate a fraction of deliveries.
type Network struct {
	log *slog.Logger

	mu       sync.RWMutex
	handlers []bop2p.NodeHandler
	silenced map[int]bool

	dupRate float64
	rng     *rand.Rand
	rngMu   sync.Mutex

	fanOuts []*bop2p.FanOut
}

// NetworkConfig configures fault injection on a [Network].
type NetworkConfig struct {
	// Fraction of deliveries, in [0, 1], that are delivered twice.
	DuplicateRate float64

	// Seed for the duplication decisions.
	Seed uint64
}

// NewNetwork returns a network with n empty slots.
// Use [*Network.SetHandler] to attach a node to each slot.
func NewNetwork(log *slog.Logger, n int, cfg NetworkConfig) *Network {
	return &Network{
		log: log,

		handlers: make([]bop2p.NodeHandler, n),
		silenced: make(map[int]bool),

		dupRate: cfg.DuplicateRate,
		rng:     rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x5bd1e995)),

		fanOuts: make([]*bop2p.FanOut, n),
	}
}

// SetHandler attaches h to slot idx.
// Messages sent to a slot without a handler are dropped.
func (n *Network) SetHandler(idx int, h bop2p.NodeHandler) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.handlers[idx] = h
}

// Silence drops every message sent by the node at idx,
// as if that node were faulty.
func (n *Network) Silence(idx int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.silenced[idx] = true
}

// Broadcaster returns the broadcaster to be used by the node at idx.
func (n *Network) Broadcaster(idx int) bop2p.Broadcaster {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.fanOuts[idx] == nil {
		n.fanOuts[idx] = bop2p.NewFanOut(
			n.log.With("sys", "fanout", "idx", idx),
			len(n.handlers),
			sender{n: n, from: idx},
		)
	}
	return n.fanOuts[idx]
}

// Wait blocks until every in-flight delivery has returned.
// Cancel the context passed to broadcasts first.
func (n *Network) Wait() {
	n.mu.RLock()
	fanOuts := append([]*bop2p.FanOut(nil), n.fanOuts...)
	n.mu.RUnlock()

	for _, f := range fanOuts {
		if f != nil {
			f.Wait()
		}
	}
}

var errSilenced = errors.New("sender silenced")

// sender is the [bop2p.PeerSender] for a single node in the network.
type sender struct {
	n    *Network
	from int
}

func (s sender) Send(ctx context.Context, peerIdx int, msg boconsensus.Message) error {
	s.n.mu.RLock()
	silenced := s.n.silenced[s.from]
	var h bop2p.NodeHandler
	if peerIdx >= 0 && peerIdx < len(s.n.handlers) {
		h = s.n.handlers[peerIdx]
	}
	s.n.mu.RUnlock()

	if silenced {
		return errSilenced
	}
	if h == nil {
		return fmt.Errorf("no handler for peer %d", peerIdx)
	}

	if err := h.HandleMessage(ctx, msg); err != nil {
		return err
	}

	if s.n.duplicate() {
		return h.HandleMessage(ctx, msg)
	}
	return nil
}

func (n *Network) duplicate() bool {
	if n.dupRate <= 0 {
		return false
	}

	n.rngMu.Lock()
	defer n.rngMu.Unlock()
	return n.rng.Float64() < n.dupRate
}
