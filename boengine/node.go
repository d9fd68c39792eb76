package boengine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gordian-engine/benor/boconsensus"
	"github.com/gordian-engine/benor/boengine/boemetrics"
	"github.com/gordian-engine/benor/boengine/internal/boi"
	"github.com/gordian-engine/benor/bop2p"
	"github.com/gordian-engine/benor/internal/gchan"
)

// Node is a single participant in a benor network.
//
// Node implements [bop2p.NodeHandler].
// All of its state is owned by a background kernel goroutine,
// so Node methods are safe to call concurrently.
type Node struct {
	log *slog.Logger

	k *boi.Kernel

	messageRequests  chan<- boi.MessageRequest
	startRequests    chan<- boi.StartRequest
	stopRequests     chan<- boi.StopRequest
	snapshotRequests chan<- boi.SnapshotRequest
}

var _ bop2p.NodeHandler = (*Node)(nil)

// NodeConfig holds the configuration required to create a [Node].
type NodeConfig struct {
	// Index of this node in the network, used for metrics labels.
	Index int

	Params boconsensus.Params

	// InitialValue must be Zero or One, unless Faulty is set.
	InitialValue boconsensus.Value

	// Faulty nodes never participate:
	// they reject every message and start request.
	Faulty bool

	// Ready reports whether every node in the network is ready to receive messages.
	// Start is rejected while Ready returns false.
	// A nil Ready is treated as always ready.
	Ready func() bool

	// Broadcaster is required.
	Broadcaster bop2p.Broadcaster

	// Coin is used for the vote-phase tie-break.
	// Defaults to [RandomCoin].
	Coin boconsensus.Coin

	// If positive, only the most recent RetainRounds rounds of
	// proposals and votes are kept; older messages are acknowledged and ignored.
	// Zero keeps every round.
	RetainRounds uint32

	// Optional.
	Metrics *boemetrics.Metrics
}

func (c NodeConfig) validate() error {
	var errs []error

	if err := c.Params.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("invalid params: %w", err))
	}

	if c.Index < 0 || (c.Params.N > 0 && c.Index >= c.Params.N) {
		errs = append(errs, fmt.Errorf("node index %d out of range for network size %d", c.Index, c.Params.N))
	}

	if !c.Faulty && !c.InitialValue.IsBinary() {
		errs = append(errs, fmt.Errorf("initial value must be 0 or 1 (got %v)", c.InitialValue))
	}

	if c.Broadcaster == nil {
		errs = append(errs, errors.New("broadcaster is required"))
	}

	return errors.Join(errs...)
}

// NewNode validates cfg and returns a running Node.
//
// The node's background goroutine runs until ctx is cancelled;
// call [*Node.Wait] to block until it has finished.
func NewNode(ctx context.Context, log *slog.Logger, cfg NodeConfig) (*Node, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid node config: %w", err)
	}

	coin := cfg.Coin
	if coin == nil {
		coin = RandomCoin{}
	}

	// Callers always block on the response,
	// so there is no point in buffering the request channels.
	messageRequests := make(chan boi.MessageRequest)
	startRequests := make(chan boi.StartRequest)
	stopRequests := make(chan boi.StopRequest)
	snapshotRequests := make(chan boi.SnapshotRequest)

	k := boi.NewKernel(ctx, log.With("sys", "kernel"), boi.KernelConfig{
		Params:       cfg.Params,
		InitialValue: cfg.InitialValue,
		Faulty:       cfg.Faulty,
		RetainRounds: cfg.RetainRounds,

		Ready:       cfg.Ready,
		Broadcaster: cfg.Broadcaster,
		Coin:        coin,
		Metrics:     cfg.Metrics.ForNode(cfg.Index),

		MessageRequests:  messageRequests,
		StartRequests:    startRequests,
		StopRequests:     stopRequests,
		SnapshotRequests: snapshotRequests,
	})

	return &Node{
		log: log,

		k: k,

		messageRequests:  messageRequests,
		startRequests:    startRequests,
		stopRequests:     stopRequests,
		snapshotRequests: snapshotRequests,
	}, nil
}

// Wait blocks until the node's background goroutine has completed.
// To begin shutdown, cancel the context passed to [NewNode].
func (n *Node) Wait() {
	n.k.Wait()
}

// HandleMessage implements [bop2p.NodeHandler].
func (n *Node) HandleMessage(ctx context.Context, msg boconsensus.Message) error {
	req := boi.MessageRequest{
		Msg:  msg,
		Resp: make(chan error, 1),
	}
	err, ok := gchan.ReqResp(
		ctx, n.log,
		n.messageRequests, req,
		req.Resp,
		"HandleMessage",
	)
	if !ok {
		return context.Cause(ctx)
	}
	return err
}

// Start implements [bop2p.NodeHandler].
func (n *Node) Start(ctx context.Context) error {
	req := boi.StartRequest{
		Resp: make(chan error, 1),
	}
	err, ok := gchan.ReqResp(
		ctx, n.log,
		n.startRequests, req,
		req.Resp,
		"Start",
	)
	if !ok {
		return context.Cause(ctx)
	}
	return err
}

// Stop implements [bop2p.NodeHandler].
func (n *Node) Stop(ctx context.Context) error {
	req := boi.StopRequest{
		Resp: make(chan struct{}),
	}
	if _, ok := gchan.ReqResp(
		ctx, n.log,
		n.stopRequests, req,
		req.Resp,
		"Stop",
	); !ok {
		return context.Cause(ctx)
	}
	return nil
}

// Status implements [bop2p.NodeHandler].
func (n *Node) Status(ctx context.Context) error {
	s, err := n.State(ctx)
	if err != nil {
		return err
	}
	if !s.Alive {
		return boconsensus.ErrNotAlive
	}
	return nil
}

// State implements [bop2p.NodeHandler].
func (n *Node) State(ctx context.Context) (boconsensus.NodeState, error) {
	req := boi.SnapshotRequest{
		Resp: make(chan boconsensus.NodeState, 1),
	}
	s, ok := gchan.ReqResp(
		ctx, n.log,
		n.snapshotRequests, req,
		req.Resp,
		"State",
	)
	if !ok {
		return boconsensus.NodeState{}, context.Cause(ctx)
	}
	return s, nil
}
