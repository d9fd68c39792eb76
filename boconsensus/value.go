package boconsensus

import "fmt"

// Value is the payload carried by proposals and votes.
//
// Decisions are always [Zero] or [One].
// [Undetermined] only appears as a vote payload,
// when a node saw an exact tie among the proposals for a round.
type Value uint8

const (
	Zero Value = 0
	One  Value = 1

	// Undetermined is the vote payload for a tied proposal round.
	Undetermined Value = 2
)

// IsBinary reports whether v is [Zero] or [One].
func (v Value) IsBinary() bool {
	return v == Zero || v == One
}

func (v Value) String() string {
	switch v {
	case Zero:
		return "0"
	case One:
		return "1"
	case Undetermined:
		return "?"
	default:
		return fmt.Sprintf("Value(%d)", uint8(v))
	}
}

// Phase identifies which half of a round a [Message] belongs to.
type Phase uint8

const (
	_ Phase = iota // Invalid.

	PhaseProposal
	PhaseVote
)

func (p Phase) String() string {
	switch p {
	case PhaseProposal:
		return "proposal"
	case PhaseVote:
		return "vote"
	default:
		return fmt.Sprintf("Phase(%d)", uint8(p))
	}
}

// Message is a single proposal or vote exchanged between nodes.
//
// Messages carry no sender identity.
// Transports may duplicate or drop them,
// and the engine tolerates both.
type Message struct {
	Round uint32
	Value Value
	Phase Phase
}
