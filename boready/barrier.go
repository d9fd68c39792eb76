// Package boready tracks which nodes in a local network
// are ready to receive messages.
package boready

import (
	"fmt"
	"sync"

	"github.com/bits-and-blooms/bitset"
)

// Barrier records readiness for n nodes.
// Its methods are safe for concurrent use.
//
// [*Barrier.AllReady] is the readiness predicate given to each node,
// and [*Barrier.SetReady] is the callback each transport calls
// once its listener is accepting connections.
type Barrier struct {
	mu    sync.RWMutex
	ready *bitset.BitSet
	n     uint

	done chan struct{}
}

// NewBarrier returns a barrier for n nodes, none of which are ready.
func NewBarrier(n int) *Barrier {
	if n <= 0 {
		panic(fmt.Errorf("BUG: NewBarrier requires a positive node count (got %d)", n))
	}
	return &Barrier{
		ready: bitset.New(uint(n)),
		n:     uint(n),
		done:  make(chan struct{}),
	}
}

// SetReady marks the node at idx as ready.
// Marking a node more than once has no further effect.
func (b *Barrier) SetReady(idx int) {
	if idx < 0 || uint(idx) >= b.n {
		panic(fmt.Errorf("BUG: SetReady index %d out of range [0, %d)", idx, b.n))
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.ready.Test(uint(idx)) {
		return
	}
	b.ready.Set(uint(idx))

	if b.ready.Count() == b.n {
		close(b.done)
	}
}

// AllReady reports whether every node has been marked ready.
func (b *Barrier) AllReady() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.ready.Count() == b.n
}

// IsReady reports whether the node at idx has been marked ready.
func (b *Barrier) IsReady(idx int) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.ready.Test(uint(idx))
}

// Done returns a channel that is closed once every node is ready.
func (b *Barrier) Done() <-chan struct{} {
	return b.done
}
