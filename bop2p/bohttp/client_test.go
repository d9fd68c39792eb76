package bohttp_test

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gordian-engine/benor/bocodec/bojson"
	"github.com/gordian-engine/benor/boconsensus"
	"github.com/gordian-engine/benor/boengine"
	"github.com/gordian-engine/benor/bop2p/bohttp"
	"github.com/gordian-engine/benor/bop2p/bop2ptest"
	"github.com/gordian-engine/benor/internal/gtest"
	"github.com/stretchr/testify/require"
)

// listenFuncs produces a listener and the matching client address
// for each supported address style.
var listenFuncs = map[string]func(t *testing.T) (net.Listener, string){
	"tcp": func(t *testing.T) (net.Listener, string) {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		return ln, "http://" + ln.Addr().String()
	},
	"unix": func(t *testing.T) (net.Listener, string) {
		// t.TempDir can exceed the socket path length limit on some platforms.
		dir, err := os.MkdirTemp("", "benor")
		require.NoError(t, err)
		t.Cleanup(func() { _ = os.RemoveAll(dir) })

		p := filepath.Join(dir, "n.sock")
		ln, err := net.Listen("unix", p)
		require.NoError(t, err)
		return ln, "unix://" + p
	},
}

func TestClient_againstNode(t *testing.T) {
	t.Parallel()

	for name, listen := range listenFuncs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			log := gtest.NewLogger(t)
			bc := bop2ptest.NewChannelBroadcaster(8)

			node, err := boengine.NewNode(ctx, log.With("sys", "node"), boengine.NodeConfig{
				Params:       boconsensus.Params{N: 4, F: 1},
				InitialValue: boconsensus.One,
				Broadcaster:  bc,
			})
			require.NoError(t, err)
			t.Cleanup(node.Wait)

			ln, addr := listen(t)
			srv := bohttp.NewHTTPServer(ctx, log.With("sys", "http"), bohttp.HTTPServerConfig{
				Listener: ln,
				Node:     node,
				Codec:    bojson.MarshalCodec{},
			})
			t.Cleanup(srv.Wait)

			c, err := bohttp.NewClient(log.With("sys", "client"), bohttp.ClientConfig{
				Peers:   []string{addr},
				Codec:   bojson.MarshalCodec{},
				Timeout: 5 * time.Second,
			})
			require.NoError(t, err)
			defer c.CloseIdleConnections()

			require.NoError(t, c.Status(ctx, 0))

			s, err := c.State(ctx, 0)
			require.NoError(t, err)
			require.Equal(t, boconsensus.NodeState{Alive: true, Value: boconsensus.One}, s)

			require.NoError(t, c.Start(ctx, 0))
			require.Equal(t,
				boconsensus.Message{Round: 1, Value: boconsensus.One, Phase: boconsensus.PhaseProposal},
				gtest.ReceiveSoon(t, bc.Messages()),
			)

			for range 3 {
				require.NoError(t, c.Send(ctx, 0, boconsensus.Message{
					Round: 1, Value: boconsensus.Zero, Phase: boconsensus.PhaseProposal,
				}))
			}

			s, err = c.State(ctx, 0)
			require.NoError(t, err)
			require.True(t, s.Decided)
			require.Equal(t, boconsensus.Zero, s.Value)
			require.Equal(t, boconsensus.ActiveRound(1), s.Progress)

			require.NoError(t, c.Stop(ctx, 0))
			require.ErrorIs(t, c.Status(ctx, 0), boconsensus.ErrNotAlive)
			require.ErrorIs(t, c.Start(ctx, 0), boconsensus.ErrNotAlive)

			err = c.Send(ctx, 0, boconsensus.Message{
				Round: 2, Value: boconsensus.Zero, Phase: boconsensus.PhaseProposal,
			})
			require.ErrorIs(t, err, boconsensus.ErrNotAlive)

			stats := c.Stats()
			require.Equal(t, uint64(3), stats.MessagesSent)
			require.Equal(t, uint64(1), stats.SendErrors)
			require.Zero(t, stats.ActiveSends)
		})
	}
}

func TestClient_notReady(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log := gtest.NewLogger(t)

	node, err := boengine.NewNode(ctx, log.With("sys", "node"), boengine.NodeConfig{
		Params:       boconsensus.Params{N: 1, F: 0},
		InitialValue: boconsensus.Zero,
		Broadcaster:  bop2ptest.NewChannelBroadcaster(1),
		Ready:        func() bool { return false },
	})
	require.NoError(t, err)
	t.Cleanup(node.Wait)

	ln, addr := listenFuncs["tcp"](t)
	srv := bohttp.NewHTTPServer(ctx, log.With("sys", "http"), bohttp.HTTPServerConfig{
		Listener: ln,
		Node:     node,
		Codec:    bojson.MarshalCodec{},
	})
	t.Cleanup(srv.Wait)

	c, err := bohttp.NewClient(log, bohttp.ClientConfig{
		Peers: []string{addr},
		Codec: bojson.MarshalCodec{},
	})
	require.NoError(t, err)

	require.ErrorIs(t, c.Peer(0).Start(ctx), boconsensus.ErrNotReady)
}

func TestClient_faultyNodeState(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log := gtest.NewLogger(t)

	node, err := boengine.NewNode(ctx, log.With("sys", "node"), boengine.NodeConfig{
		Params:      boconsensus.Params{N: 4, F: 1},
		Faulty:      true,
		Broadcaster: bop2ptest.NewChannelBroadcaster(1),
	})
	require.NoError(t, err)
	t.Cleanup(node.Wait)

	ln, addr := listenFuncs["unix"](t)
	srv := bohttp.NewHTTPServer(ctx, log.With("sys", "http"), bohttp.HTTPServerConfig{
		Listener: ln,
		Node:     node,
		Codec:    bojson.MarshalCodec{},
	})
	t.Cleanup(srv.Wait)

	c, err := bohttp.NewClient(log, bohttp.ClientConfig{
		Peers: []string{addr},
		Codec: bojson.MarshalCodec{},
	})
	require.NoError(t, err)

	p := c.Peer(0)
	require.ErrorIs(t, p.Status(ctx), boconsensus.ErrNotAlive)

	s, err := p.State(ctx)
	require.NoError(t, err)
	require.Equal(t, boconsensus.NodeState{Faulty: true}, s)
}

func TestNewClient_validation(t *testing.T) {
	t.Parallel()

	log := gtest.NewLogger(t)

	_, err := bohttp.NewClient(log, bohttp.ClientConfig{Codec: bojson.MarshalCodec{}})
	require.Error(t, err)

	_, err = bohttp.NewClient(log, bohttp.ClientConfig{Peers: []string{"http://127.0.0.1:1"}})
	require.Error(t, err)

	_, err = bohttp.NewClient(log, bohttp.ClientConfig{
		Peers: []string{"ftp://127.0.0.1:1"},
		Codec: bojson.MarshalCodec{},
	})
	require.Error(t, err)

	c, err := bohttp.NewClient(log, bohttp.ClientConfig{
		Peers: []string{"http://127.0.0.1:1/"},
		Codec: bojson.MarshalCodec{},
	})
	require.NoError(t, err)
	require.Error(t, c.Status(context.Background(), 1))
}
