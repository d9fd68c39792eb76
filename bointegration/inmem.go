package bointegration

import (
	"context"
	"testing"

	"github.com/gordian-engine/benor/bop2p"
	"github.com/gordian-engine/benor/bop2p/bop2ptest"
	"github.com/gordian-engine/benor/internal/gtest"
)

// InmemNetwork adapts [bop2ptest.Network] to [Network].
type InmemNetwork struct {
	*bop2ptest.Network
}

// NewInmemFactory returns a FactoryFunc for in-process networks
// with the given fault injection settings.
func NewInmemFactory(cfg bop2ptest.NetworkConfig) FactoryFunc {
	return func(t *testing.T, _ context.Context, n int) Network {
		return InmemNetwork{
			Network: bop2ptest.NewNetwork(gtest.NewLogger(t).With("sys", "inmem"), n, cfg),
		}
	}
}

func (n InmemNetwork) SetNodeHandler(idx int, h bop2p.NodeHandler) {
	n.SetHandler(idx, h)
}

// Stabilize is a no-op; in-process delivery needs no setup.
func (InmemNetwork) Stabilize(context.Context) error {
	return nil
}
