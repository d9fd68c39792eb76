package bop2p

import (
	"context"
	"log/slog"
	"sync"

	"github.com/gordian-engine/benor/boconsensus"
)

// FanOut is a [Broadcaster] that issues one independent [PeerSender.Send]
// per node, each on its own goroutine.
type FanOut struct {
	log *slog.Logger

	n      int
	sender PeerSender

	wg sync.WaitGroup
}

// NewFanOut returns a FanOut that broadcasts to peer indices 0 through n-1.
func NewFanOut(log *slog.Logger, n int, sender PeerSender) *FanOut {
	return &FanOut{
		log:    log,
		n:      n,
		sender: sender,
	}
}

// Broadcast implements [Broadcaster].
// It returns immediately; sends continue in the background
// until they complete or ctx is cancelled.
func (f *FanOut) Broadcast(ctx context.Context, msg boconsensus.Message) {
	f.wg.Add(f.n)
	for i := range f.n {
		go f.send(ctx, i, msg)
	}
}

func (f *FanOut) send(ctx context.Context, peerIdx int, msg boconsensus.Message) {
	defer f.wg.Done()

	if err := f.sender.Send(ctx, peerIdx, msg); err != nil {
		if ctx.Err() != nil {
			return
		}

		// Loss is tolerated by the protocol, so this is not an error.
		f.log.Debug(
			"Failed to send message",
			"peer", peerIdx,
			"round", msg.Round, "phase", msg.Phase, "value", msg.Value,
			"err", err,
		)
	}
}

// Wait blocks until every in-flight send has returned.
func (f *FanOut) Wait() {
	f.wg.Wait()
}
