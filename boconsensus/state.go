package boconsensus

import "fmt"

// RoundProgress is either "not started" or "active in round R".
//
// The zero value is not started.
// Use [ActiveRound] to construct an active progress value.
type RoundProgress struct {
	// Rounds are numbered from 1, so zero is free to mean "not started".
	round uint32
}

// NotStarted returns the progress value for a node that has not yet entered round 1.
func NotStarted() RoundProgress {
	return RoundProgress{}
}

// ActiveRound returns the progress value for a node in round r.
// It panics if r is zero.
func ActiveRound(r uint32) RoundProgress {
	if r == 0 {
		panic(fmt.Errorf("BUG: ActiveRound called with round 0"))
	}
	return RoundProgress{round: r}
}

// Round returns the active round and true,
// or zero and false if consensus has not started.
func (p RoundProgress) Round() (uint32, bool) {
	return p.round, p.round != 0
}

// Started reports whether p is an active round.
func (p RoundProgress) Started() bool {
	return p.round != 0
}

func (p RoundProgress) String() string {
	if p.round == 0 {
		return "NotStarted"
	}
	return fmt.Sprintf("Active(%d)", p.round)
}

// NodeState is a snapshot of a single node's consensus state.
type NodeState struct {
	// Alive is false for faulty nodes and for nodes that have been stopped.
	// Once false, it never becomes true again.
	Alive bool

	// Faulty nodes never participate.
	// When Faulty is set, Value, Decided, and Progress carry no information
	// and are reported as absent on the wire.
	Faulty bool

	// Value is the node's current estimate.
	// It is always Zero or One for a non-faulty node.
	Value Value

	// Decided latches to true once the node decides,
	// after which Value no longer changes.
	Decided bool

	Progress RoundProgress
}
