package bointegration

import (
	"context"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/gordian-engine/benor/bocodec/bojson"
	"github.com/gordian-engine/benor/bop2p"
	"github.com/gordian-engine/benor/bop2p/bohttp"
	"github.com/gordian-engine/benor/internal/gtest"
	"github.com/stretchr/testify/require"
)

// HTTPNetwork runs one [bohttp.HTTPServer] per node on a Unix socket,
// with every node broadcasting through a shared [bohttp.Client].
type HTTPNetwork struct {
	ctx context.Context
	log *slog.Logger

	listeners []net.Listener
	client    *bohttp.Client

	fanOuts []*bop2p.FanOut
	servers []*bohttp.HTTPServer
}

// HTTPFactory is a [FactoryFunc] for [HTTPNetwork].
func HTTPFactory(t *testing.T, ctx context.Context, n int) Network {
	t.Helper()

	// Keep socket paths short.
	dir, err := os.MkdirTemp("", "benor")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(dir) })

	log := gtest.NewLogger(t)

	lns := make([]net.Listener, n)
	addrs := make([]string, n)
	for i := range lns {
		p := filepath.Join(dir, strconv.Itoa(i)+".sock")
		ln, err := net.Listen("unix", p)
		require.NoError(t, err)
		lns[i] = ln
		addrs[i] = "unix://" + p
	}

	client, err := bohttp.NewClient(log.With("sys", "client"), bohttp.ClientConfig{
		Peers:   addrs,
		Codec:   bojson.MarshalCodec{},
		Timeout: 5 * time.Second,
	})
	require.NoError(t, err)

	return &HTTPNetwork{
		ctx: ctx,
		log: log,

		listeners: lns,
		client:    client,

		fanOuts: make([]*bop2p.FanOut, n),
		servers: make([]*bohttp.HTTPServer, n),
	}
}

func (n *HTTPNetwork) Broadcaster(idx int) bop2p.Broadcaster {
	if n.fanOuts[idx] == nil {
		n.fanOuts[idx] = bop2p.NewFanOut(
			n.log.With("sys", "fanout", "idx", idx),
			len(n.listeners),
			n.client,
		)
	}
	return n.fanOuts[idx]
}

func (n *HTTPNetwork) SetNodeHandler(idx int, h bop2p.NodeHandler) {
	n.servers[idx] = bohttp.NewHTTPServer(n.ctx, n.log.With("sys", "http", "idx", idx), bohttp.HTTPServerConfig{
		Listener: n.listeners[idx],
		Node:     h,
		Codec:    bojson.MarshalCodec{},
	})
}

// Stabilize returns immediately:
// every listener is bound before any node exists,
// so early requests wait in the accept queue.
func (n *HTTPNetwork) Stabilize(context.Context) error {
	return nil
}

func (n *HTTPNetwork) Wait() {
	for _, f := range n.fanOuts {
		if f != nil {
			f.Wait()
		}
	}
	for i, s := range n.servers {
		if s != nil {
			s.Wait()
		} else {
			_ = n.listeners[i].Close()
		}
	}
	n.client.CloseIdleConnections()
}
