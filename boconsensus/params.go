package boconsensus

import (
	"errors"
	"fmt"
)

var (
	// ErrNotAlive is returned when a faulty or stopped node
	// is asked to accept a message or to start.
	ErrNotAlive = errors.New("node is not alive")

	// ErrNotReady is returned when a node is asked to start
	// before every node in the network has reported ready.
	ErrNotReady = errors.New("not all nodes are ready")
)

// Params are the fixed sizing parameters of a protocol instance.
type Params struct {
	// Total number of nodes.
	N int

	// Maximum number of faulty nodes tolerated.
	F int
}

// Validate reports whether p describes a runnable network.
// It does not enforce [Params.SafeFaultBound].
func (p Params) Validate() error {
	if p.N < 1 {
		return fmt.Errorf("network size must be positive (got %d)", p.N)
	}
	if p.F < 0 {
		return fmt.Errorf("fault tolerance must not be negative (got %d)", p.F)
	}
	if p.F >= p.N {
		return fmt.Errorf("fault tolerance %d must be less than network size %d", p.F, p.N)
	}
	return nil
}

// Quorum is the number of same-phase messages required
// before a node acts on a round: N - F.
func (p Params) Quorum() int {
	return p.N - p.F
}

// SafeFaultBound reports whether N > 3F.
func (p Params) SafeFaultBound() bool {
	return p.N > 3*p.F
}
