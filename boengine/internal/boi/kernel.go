package boi

import (
	"context"
	"log/slog"
	"math"

	"github.com/gordian-engine/benor/boconsensus"
	"github.com/gordian-engine/benor/boengine/boemetrics"
	"github.com/gordian-engine/benor/bop2p"
)

// Kernel is the single goroutine that owns a node's consensus state.
//
// Every read or write of the node state and the two round aggregators
// happens on the kernel goroutine, in response to a request
// arriving on one of the kernel's input channels.
// That makes "append, check quorum, act" atomic
// with respect to every other message for the node.
type Kernel struct {
	log *slog.Logger

	params       boconsensus.Params
	retainRounds uint32

	ready   func() bool
	bc      bop2p.Broadcaster
	coin    boconsensus.Coin
	metrics *boemetrics.NodeMetrics

	messageRequests  <-chan MessageRequest
	startRequests    <-chan StartRequest
	stopRequests     <-chan StopRequest
	snapshotRequests <-chan SnapshotRequest

	done chan struct{}
}

// KernelConfig is the configuration for a [Kernel].
// The boengine package is responsible for validating it.
type KernelConfig struct {
	Params       boconsensus.Params
	InitialValue boconsensus.Value
	Faulty       bool

	// Zero retains every round.
	RetainRounds uint32

	// Nil means always ready.
	Ready func() bool

	Broadcaster bop2p.Broadcaster
	Coin        boconsensus.Coin
	Metrics     *boemetrics.NodeMetrics

	MessageRequests  <-chan MessageRequest
	StartRequests    <-chan StartRequest
	StopRequests     <-chan StopRequest
	SnapshotRequests <-chan SnapshotRequest
}

// kState is the mutable state owned by the kernel goroutine.
type kState struct {
	node boconsensus.NodeState

	proposals, votes *RoundAggregator

	// Set on the first successful start.
	started bool
}

// NewKernel returns a kernel whose main loop is already running.
// Cancel ctx and call [*Kernel.Wait] to stop it.
func NewKernel(ctx context.Context, log *slog.Logger, cfg KernelConfig) *Kernel {
	ready := cfg.Ready
	if ready == nil {
		ready = func() bool { return true }
	}

	k := &Kernel{
		log: log,

		params:       cfg.Params,
		retainRounds: cfg.RetainRounds,

		ready:   ready,
		bc:      cfg.Broadcaster,
		coin:    cfg.Coin,
		metrics: cfg.Metrics,

		messageRequests:  cfg.MessageRequests,
		startRequests:    cfg.StartRequests,
		stopRequests:     cfg.StopRequests,
		snapshotRequests: cfg.SnapshotRequests,

		done: make(chan struct{}),
	}

	s := &kState{
		proposals: NewRoundAggregator(cfg.Params.Quorum()),
		votes:     NewRoundAggregator(cfg.Params.Quorum()),
	}
	if cfg.Faulty {
		s.node = boconsensus.NodeState{Faulty: true}
	} else {
		s.node = boconsensus.NodeState{
			Alive: true,
			Value: cfg.InitialValue,
		}
	}

	go k.mainLoop(ctx, s)

	return k
}

// Wait blocks until the kernel's main loop has returned.
func (k *Kernel) Wait() {
	<-k.done
}

func (k *Kernel) mainLoop(ctx context.Context, s *kState) {
	defer close(k.done)

	for {
		select {
		case <-ctx.Done():
			k.log.Info("Stopping due to context cancellation", "cause", context.Cause(ctx))
			return

		case req := <-k.messageRequests:
			req.Resp <- k.handleMessage(ctx, s, req.Msg)

		case req := <-k.startRequests:
			req.Resp <- k.handleStart(ctx, s)

		case req := <-k.stopRequests:
			k.handleStop(s)
			close(req.Resp)

		case req := <-k.snapshotRequests:
			req.Resp <- s.node
		}
	}
}

func (k *Kernel) handleMessage(ctx context.Context, s *kState, msg boconsensus.Message) error {
	if !s.node.Alive {
		k.metrics.MessageRejected()
		return boconsensus.ErrNotAlive
	}

	switch msg.Phase {
	case boconsensus.PhaseProposal:
		k.metrics.MessageReceived(msg.Phase)
		k.handleProposal(ctx, s, msg)
	case boconsensus.PhaseVote:
		k.metrics.MessageReceived(msg.Phase)
		k.handleVote(ctx, s, msg)
	default:
		// Message contents are trusted, but there is nothing to do with an unknown phase.
		k.log.Debug("Ignoring message with unknown phase", "phase", msg.Phase, "round", msg.Round)
	}

	return nil
}

func (k *Kernel) handleProposal(ctx context.Context, s *kState, msg boconsensus.Message) {
	vals, reached := s.proposals.Add(msg.Round, msg.Value)
	if !reached {
		return
	}
	k.metrics.QuorumReached(boconsensus.PhaseProposal)

	out := boconsensus.EvaluateProposalQuorum(vals, k.params.Quorum())
	if out.Unanimous {
		k.decide(s, msg.Round, out.Value, boconsensus.PhaseProposal)

		// Everyone visibly agrees, so there is no vote for this round.
		return
	}

	k.log.Debug("Voting", "round", msg.Round, "value", out.Value)
	k.bc.Broadcast(ctx, boconsensus.Message{
		Round: msg.Round,
		Value: out.Value,
		Phase: boconsensus.PhaseVote,
	})
}

func (k *Kernel) handleVote(ctx context.Context, s *kState, msg boconsensus.Message) {
	vals, reached := s.votes.Add(msg.Round, msg.Value)
	if !reached {
		return
	}
	k.metrics.QuorumReached(boconsensus.PhaseVote)

	out := boconsensus.EvaluateVoteQuorum(vals, k.params.F, k.coin)
	switch {
	case out.Decided:
		k.decide(s, msg.Round, out.Value, boconsensus.PhaseVote)
	case s.node.Decided:
		// Latched; the plurality or coin result is ignored.
	default:
		if out.Random {
			k.metrics.RandomFallback()
			k.log.Debug("Adopting random value", "round", msg.Round, "value", out.Value)
		}
		s.node.Value = out.Value
	}

	if msg.Round == math.MaxUint32 {
		k.log.Warn(
			"Vote quorum reached in final round; not advancing",
			"round", msg.Round, "value", s.node.Value,
		)
		return
	}

	// Decided or not, move on so that slower peers can still reach quorum.
	next := msg.Round + 1
	k.advanceTo(s, next)

	k.bc.Broadcast(ctx, boconsensus.Message{
		Round: next,
		Value: s.node.Value,
		Phase: boconsensus.PhaseProposal,
	})
}

func (k *Kernel) decide(s *kState, round uint32, v boconsensus.Value, p boconsensus.Phase) {
	if s.node.Decided {
		if s.node.Value != v {
			// Only reachable if the network violates the fault bound.
			k.log.Error(
				"Observed conflicting decision; keeping first decision",
				"round", round, "phase", p,
				"decided", s.node.Value, "conflicting", v,
			)
		}
		return
	}

	s.node.Value = v
	s.node.Decided = true
	k.metrics.Decided(v, p)
	k.log.Info("Decided", "round", round, "phase", p, "value", v)
}

// advanceTo moves the node to round r, unless it is already at or beyond r.
// A late vote quorum for an old round therefore never moves the round backwards.
func (k *Kernel) advanceTo(s *kState, r uint32) {
	if cur, ok := s.node.Progress.Round(); ok && cur >= r {
		return
	}

	s.node.Progress = boconsensus.ActiveRound(r)
	k.metrics.EnteredRound(r)

	if k.retainRounds > 0 && r > k.retainRounds {
		floor := r - k.retainRounds
		s.proposals.PruneBelow(floor)
		s.votes.PruneBelow(floor)
	}
}

func (k *Kernel) handleStart(ctx context.Context, s *kState) error {
	if !k.ready() {
		return boconsensus.ErrNotReady
	}
	if !s.node.Alive {
		return boconsensus.ErrNotAlive
	}

	if s.started {
		return nil
	}
	s.started = true

	// Peer traffic may already have advanced the round
	// (or even decided, on a unanimous proposal quorum),
	// in which case the current value is sent instead of the initial one.
	k.advanceTo(s, 1)

	k.log.Info("Starting consensus", "value", s.node.Value)
	k.bc.Broadcast(ctx, boconsensus.Message{
		Round: 1,
		Value: s.node.Value,
		Phase: boconsensus.PhaseProposal,
	})

	return nil
}

func (k *Kernel) handleStop(s *kState) {
	if s.node.Alive {
		k.log.Info("Stopping consensus")
	}
	s.node.Alive = false
}
