package main

import (
	"fmt"
	"time"

	"github.com/gordian-engine/benor/bocodec/bojson"
	"github.com/gordian-engine/benor/bop2p"
	"github.com/gordian-engine/benor/bop2p/bohttp"
	"github.com/spf13/cobra"
)

// clientFlags are the flags for commands that talk to a single node.
type clientFlags struct {
	addr    string
	timeout time.Duration
}

func (c *clientFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&c.addr, "addr", "http://127.0.0.1:3000", "Node address (http://host:port or unix:///path)")
	cmd.Flags().DurationVar(&c.timeout, "timeout", 5*time.Second, "Request timeout")
}

func (c *clientFlags) node(root *rootFlags, cmd *cobra.Command) (bop2p.NodeHandler, error) {
	log, err := root.logger(cmd)
	if err != nil {
		return nil, err
	}

	client, err := bohttp.NewClient(log, bohttp.ClientConfig{
		Peers:   []string{c.addr},
		Codec:   bojson.MarshalCodec{},
		Timeout: c.timeout,
	})
	if err != nil {
		return nil, err
	}
	return client.Peer(0), nil
}

func newStatusCmd(root *rootFlags) *cobra.Command {
	var cf clientFlags
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Report whether a node is live",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			n, err := cf.node(root, cmd)
			if err != nil {
				return err
			}
			if err := n.Status(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "live")
			return nil
		},
	}
	cf.register(cmd)
	return cmd
}

func newStartCmd(root *rootFlags) *cobra.Command {
	var cf clientFlags
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Ask a node to begin consensus",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			n, err := cf.node(root, cmd)
			if err != nil {
				return err
			}
			if err := n.Start(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "consensus started")
			return nil
		},
	}
	cf.register(cmd)
	return cmd
}

func newStopCmd(root *rootFlags) *cobra.Command {
	var cf clientFlags
	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Ask a node to stop participating",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			n, err := cf.node(root, cmd)
			if err != nil {
				return err
			}
			if err := n.Stop(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "consensus stopped")
			return nil
		},
	}
	cf.register(cmd)
	return cmd
}

func newStateCmd(root *rootFlags) *cobra.Command {
	var cf clientFlags
	cmd := &cobra.Command{
		Use:   "state",
		Short: "Print a node's state as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			n, err := cf.node(root, cmd)
			if err != nil {
				return err
			}
			s, err := n.State(cmd.Context())
			if err != nil {
				return err
			}
			b, err := bojson.MarshalCodec{}.MarshalState(s)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(b))
			return nil
		},
	}
	cf.register(cmd)
	return cmd
}
