package bointegration

import (
	"context"
	"testing"

	"github.com/gordian-engine/benor/bocodec/bojson"
	"github.com/gordian-engine/benor/bop2p"
	"github.com/gordian-engine/benor/bop2p/bolibp2p/bolibp2ptest"
	"github.com/gordian-engine/benor/internal/gtest"
	"github.com/stretchr/testify/require"
)

// Libp2pNetwork adapts [bolibp2ptest.Network] to [Network].
type Libp2pNetwork struct {
	*bolibp2ptest.Network
}

// Libp2pFactory is a [FactoryFunc] for gossipsub networks on loopback.
func Libp2pFactory(t *testing.T, ctx context.Context, n int) Network {
	t.Helper()

	nw, err := bolibp2ptest.NewNetwork(ctx, gtest.NewLogger(t), n, bojson.MarshalCodec{})
	require.NoError(t, err)

	return Libp2pNetwork{Network: nw}
}

func (n Libp2pNetwork) Broadcaster(idx int) bop2p.Broadcaster {
	return n.Node(idx)
}

func (n Libp2pNetwork) SetNodeHandler(idx int, h bop2p.NodeHandler) {
	n.Node(idx).SetHandler(h)
}
