package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"text/tabwriter"
	"time"

	petname "github.com/dustinkirkland/golang-petname"
	"github.com/gordian-engine/benor/boconfig"
	"github.com/gordian-engine/benor/bocodec/bojson"
	"github.com/gordian-engine/benor/boconsensus"
	"github.com/gordian-engine/benor/boengine"
	"github.com/gordian-engine/benor/boengine/boemetrics"
	"github.com/gordian-engine/benor/bop2p"
	"github.com/gordian-engine/benor/bop2p/bohttp"
	"github.com/gordian-engine/benor/bop2p/bolibp2p"
	"github.com/gordian-engine/benor/boready"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// runFlags override fields of the loaded cluster config when set.
type runFlags struct {
	configPath string

	nodes          int
	faultTolerance int
	faultyNodes    []int
	initialValues  []int
	transport      string
	basePort       int
	socketDir      string
	retainRounds   uint32
	metrics        bool
	decideTimeout  time.Duration
	unsafe         bool
}

func newRunCmd(root *rootFlags) *cobra.Command {
	var rf runFlags

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a local cluster until every live node decides",
		Long: `Run starts every node of a cluster in this process,
each with its own HTTP server, starts consensus on all of them,
and waits until every live node has decided.
It then prints the final state of each node.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			log, err := root.logger(cmd)
			if err != nil {
				return err
			}

			c, err := rf.cluster(cmd)
			if err != nil {
				return err
			}

			runID := petname.Generate(2, "-")
			log = log.With("run", runID)
			log.Info("Starting cluster", "nodes", c.Nodes, "f", c.FaultTolerance, "transport", c.Transport)

			return runCluster(cmd.Context(), log, c, cmd.OutOrStdout())
		},
	}

	f := cmd.Flags()
	f.StringVar(&rf.configPath, "config", "", "Path to a YAML cluster config")
	f.IntVar(&rf.nodes, "nodes", 0, "Number of nodes")
	f.IntVar(&rf.faultTolerance, "fault-tolerance", 0, "Maximum number of faulty nodes (F)")
	f.IntSliceVar(&rf.faultyNodes, "faulty", nil, "Indices of faulty nodes")
	f.IntSliceVar(&rf.initialValues, "initial-values", nil, "Initial value (0 or 1) of each node; random if unset")
	f.StringVar(&rf.transport, "transport", "", "Message transport (http or libp2p)")
	f.IntVar(&rf.basePort, "base-port", 0, "Port of node 0; node i listens on base-port+i")
	f.StringVar(&rf.socketDir, "socket-dir", "", "Serve nodes on Unix sockets in this directory instead of TCP")
	f.Uint32Var(&rf.retainRounds, "retain-rounds", 0, "Rounds of messages to retain (0 keeps all)")
	f.BoolVar(&rf.metrics, "metrics", false, "Serve Prometheus metrics on each node's /metrics route")
	f.DurationVar(&rf.decideTimeout, "decide-timeout", 0, "How long to wait for every live node to decide")
	f.BoolVar(&rf.unsafe, "allow-unsafe-fault-bound", false, "Permit clusters where nodes <= 3 * fault-tolerance")

	return cmd
}

// cluster loads the config file, if any, and applies explicitly set flags on top.
func (rf *runFlags) cluster(cmd *cobra.Command) (boconfig.Cluster, error) {
	c := boconfig.Default()
	if rf.configPath != "" {
		var err error
		c, err = boconfig.Load(rf.configPath)
		if err != nil {
			return boconfig.Cluster{}, err
		}
	}

	f := cmd.Flags()
	if f.Changed("nodes") {
		c.Nodes = rf.nodes
	}
	if f.Changed("fault-tolerance") {
		c.FaultTolerance = rf.faultTolerance
	}
	if f.Changed("faulty") {
		c.FaultyNodes = rf.faultyNodes
	}
	if f.Changed("initial-values") {
		c.InitialValues = rf.initialValues
	}
	if f.Changed("transport") {
		c.Transport = rf.transport
	}
	if f.Changed("base-port") {
		c.BasePort = rf.basePort
	}
	if f.Changed("socket-dir") {
		c.SocketDir = rf.socketDir
	}
	if f.Changed("retain-rounds") {
		c.RetainRounds = rf.retainRounds
	}
	if f.Changed("metrics") {
		c.Metrics = rf.metrics
	}
	if f.Changed("decide-timeout") {
		c.DecideTimeout = rf.decideTimeout
	}
	if f.Changed("allow-unsafe-fault-bound") {
		c.AllowUnsafeFaultBound = rf.unsafe
	}

	// A changed node count invalidates values sized for the old one.
	if f.Changed("nodes") && !f.Changed("initial-values") && len(c.InitialValues) != c.Nodes {
		c.InitialValues = nil
	}
	c.FillInitialValues(boengine.RandomCoin{})

	if err := c.Validate(); err != nil {
		return boconfig.Cluster{}, err
	}
	return c, nil
}

// runCluster runs every node of c in-process until all live nodes decide,
// then writes a state table to out.
func runCluster(ctx context.Context, log *slog.Logger, c boconfig.Cluster, out io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	codec := bojson.MarshalCodec{}
	barrier := boready.NewBarrier(c.Nodes)

	var (
		reg     *prometheus.Registry
		metrics *boemetrics.Metrics
	)
	if c.Metrics {
		reg = prometheus.NewRegistry()
		metrics = boemetrics.New(reg, "benor")
	}

	listeners, addrs, err := listen(c)
	if err != nil {
		return err
	}

	client, err := bohttp.NewClient(log.With("sys", "client"), bohttp.ClientConfig{
		Peers:   addrs,
		Codec:   codec,
		Timeout: 5 * time.Second,
	})
	if err != nil {
		closeAll(listeners)
		return err
	}
	defer client.CloseIdleConnections()

	broadcasters, nets, err := newBroadcasters(ctx, log, c, client)
	if err != nil {
		closeAll(listeners)
		return err
	}

	var waits []func()
	defer func() {
		cancel()
		for _, w := range waits {
			w()
		}
	}()

	for i := range c.Nodes {
		nlog := log.With("idx", i)

		node, err := boengine.NewNode(ctx, nlog.With("sys", "node"), boengine.NodeConfig{
			Index:        i,
			Params:       c.Params(),
			InitialValue: c.InitialValue(i),
			Faulty:       c.IsFaulty(i),
			Ready:        barrier.AllReady,
			Broadcaster:  broadcasters[i],
			RetainRounds: c.RetainRounds,
			Metrics:      metrics,
		})
		if err != nil {
			closeAll(listeners[i:])
			return fmt.Errorf("failed to create node %d: %w", i, err)
		}
		waits = append(waits, node.Wait)

		if nets != nil {
			nets[i].SetHandler(node)
			waits = append(waits, nets[i].Wait)
		}

		cfg := bohttp.HTTPServerConfig{
			Listener: listeners[i],
			Node:     node,
			Codec:    codec,
			OnReady:  func() { barrier.SetReady(i) },
		}
		if reg != nil {
			cfg.Gatherer = reg
		}
		srv := bohttp.NewHTTPServer(ctx, nlog.With("sys", "http"), cfg)
		waits = append(waits, srv.Wait)
	}

	for _, b := range broadcasters {
		if f, ok := b.(*bop2p.FanOut); ok {
			waits = append(waits, f.Wait)
		}
	}

	deadline, deadlineCancel := context.WithTimeout(ctx, c.DecideTimeout)
	defer deadlineCancel()

	select {
	case <-barrier.Done():
	case <-deadline.Done():
		return fmt.Errorf("nodes did not become ready: %w", context.Cause(deadline))
	}

	if nets != nil {
		if err := bolibp2p.AwaitMesh(deadline, nets); err != nil {
			return err
		}
	}

	if err := startAll(deadline, c, client); err != nil {
		return err
	}

	states, waitErr := awaitDecisions(deadline, c, client)
	if states != nil {
		if err := writeStates(out, states); err != nil {
			return err
		}
	}
	return waitErr
}

func listen(c boconfig.Cluster) ([]net.Listener, []string, error) {
	listeners := make([]net.Listener, 0, c.Nodes)
	addrs := make([]string, 0, c.Nodes)

	for i := range c.Nodes {
		var (
			ln   net.Listener
			addr string
			err  error
		)
		if c.SocketDir != "" {
			p := filepath.Join(c.SocketDir, fmt.Sprintf("node-%d.sock", i))
			_ = os.Remove(p)
			ln, err = net.Listen("unix", p)
			addr = "unix://" + p
		} else {
			hostPort := net.JoinHostPort(c.ListenHost, strconv.Itoa(c.BasePort+i))
			ln, err = net.Listen("tcp", hostPort)
			addr = "http://" + hostPort
		}
		if err != nil {
			closeAll(listeners)
			return nil, nil, fmt.Errorf("failed to listen for node %d: %w", i, err)
		}

		listeners = append(listeners, ln)
		addrs = append(addrs, addr)
	}

	return listeners, addrs, nil
}

func closeAll(lns []net.Listener) {
	for _, ln := range lns {
		_ = ln.Close()
	}
}

// newBroadcasters returns one broadcaster per node.
// For the libp2p transport it also returns the per-node networks,
// which still need their handlers set.
func newBroadcasters(
	ctx context.Context, log *slog.Logger, c boconfig.Cluster, client *bohttp.Client,
) ([]bop2p.Broadcaster, []*bolibp2p.Network, error) {
	bs := make([]bop2p.Broadcaster, c.Nodes)

	switch c.Transport {
	case boconfig.TransportHTTP:
		for i := range bs {
			bs[i] = bop2p.NewFanOut(log.With("sys", "fanout", "idx", i), c.Nodes, client)
		}
		return bs, nil, nil

	case boconfig.TransportLibp2p:
		nets := make([]*bolibp2p.Network, c.Nodes)
		for i := range nets {
			n, err := bolibp2p.NewNetwork(ctx, log.With("sys", "libp2p", "idx", i), bolibp2p.NetworkConfig{
				Codec: bojson.MarshalCodec{},
			})
			if err != nil {
				return nil, nil, fmt.Errorf("failed to start libp2p for node %d: %w", i, err)
			}
			nets[i] = n
			bs[i] = n
		}
		if err := bolibp2p.ConnectMesh(ctx, nets); err != nil {
			return nil, nil, err
		}
		return bs, nets, nil

	default:
		return nil, nil, fmt.Errorf("unknown transport %q", c.Transport)
	}
}

// startAll asks every node to start over HTTP.
// Faulty nodes are expected to refuse.
func startAll(ctx context.Context, c boconfig.Cluster, client *bohttp.Client) error {
	g, gctx := errgroup.WithContext(ctx)
	for i := range c.Nodes {
		g.Go(func() error {
			err := client.Start(gctx, i)
			if err != nil && c.IsFaulty(i) && errors.Is(err, boconsensus.ErrNotAlive) {
				return nil
			}
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("failed to start cluster: %w", err)
	}
	return nil
}

// awaitDecisions polls every node until all live nodes have decided.
// On timeout it returns the last states seen along with the error.
func awaitDecisions(ctx context.Context, c boconfig.Cluster, client *bohttp.Client) ([]boconsensus.NodeState, error) {
	t := time.NewTicker(50 * time.Millisecond)
	defer t.Stop()

	var last []boconsensus.NodeState
	for {
		states, err := fetchStates(ctx, c, client)
		if err == nil {
			last = states
			if allDecided(states) {
				return states, nil
			}
		}

		select {
		case <-ctx.Done():
			return last, fmt.Errorf("live nodes did not all decide: %w", context.Cause(ctx))
		case <-t.C:
		}
	}
}

func fetchStates(ctx context.Context, c boconfig.Cluster, client *bohttp.Client) ([]boconsensus.NodeState, error) {
	states := make([]boconsensus.NodeState, c.Nodes)
	g, gctx := errgroup.WithContext(ctx)
	for i := range c.Nodes {
		g.Go(func() error {
			s, err := client.State(gctx, i)
			states[i] = s
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return states, nil
}

func allDecided(states []boconsensus.NodeState) bool {
	for _, s := range states {
		if s.Alive && !s.Decided {
			return false
		}
	}
	return true
}

func writeStates(out io.Writer, states []boconsensus.NodeState) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NODE\tFAULTY\tALIVE\tDECIDED\tVALUE\tROUND")
	for i, s := range states {
		if s.Faulty {
			fmt.Fprintf(w, "%d\ttrue\tfalse\t-\t-\t-\n", i)
			continue
		}
		r, _ := s.Progress.Round()
		fmt.Fprintf(w, "%d\tfalse\t%t\t%t\t%s\t%d\n", i, s.Alive, s.Decided, s.Value, r)
	}
	return w.Flush()
}
