package bolibp2p

import (
	"context"
	"fmt"
	"time"
)

// ConnectMesh connects every pair of networks in nets.
func ConnectMesh(ctx context.Context, nets []*Network) error {
	for i, a := range nets {
		for j, b := range nets[i+1:] {
			if err := a.Connect(ctx, b.AddrInfo()); err != nil {
				return fmt.Errorf("failed to connect node %d to node %d: %w", i, i+1+j, err)
			}
		}
	}
	return nil
}

// AwaitMesh blocks until every network sees every other network on the topic,
// so that a single publish reaches all of them.
func AwaitMesh(ctx context.Context, nets []*Network) error {
	want := len(nets) - 1

	t := time.NewTicker(10 * time.Millisecond)
	defer t.Stop()

	for {
		ready := true
		for _, n := range nets {
			if n.TopicPeers() < want {
				ready = false
				break
			}
		}
		if ready {
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("topic mesh did not form: %w", context.Cause(ctx))
		case <-t.C:
		}
	}
}
