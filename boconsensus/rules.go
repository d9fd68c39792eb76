package boconsensus

// Coin is the source of randomness for the vote-phase tie-break.
//
// Implementations must return [Zero] or [One],
// each with probability one half.
// Flip is only ever called from a single node's kernel goroutine,
// but a single Coin may be shared across nodes,
// so implementations should be safe for concurrent use.
type Coin interface {
	Flip() Value
}

// Tally is the count of binary values in a quorum.
type Tally struct {
	Zero, One int
}

// TallyValues counts the Zero and One entries in vals.
// Any other value, including [Undetermined], is ignored.
func TallyValues(vals []Value) Tally {
	var t Tally
	for _, v := range vals {
		switch v {
		case Zero:
			t.Zero++
		case One:
			t.One++
		}
	}
	return t
}

// Plurality returns the value with strictly more entries,
// or [Undetermined] on a tie.
func (t Tally) Plurality() Value {
	switch {
	case t.Zero > t.One:
		return Zero
	case t.One > t.Zero:
		return One
	default:
		return Undetermined
	}
}

// ProposalOutcome is the result of evaluating a proposal quorum.
type ProposalOutcome struct {
	// Unanimous is set when every proposal in the quorum carried Value.
	// The node decides Value and does not vote.
	Unanimous bool

	// Value is the decided value when Unanimous is set,
	// otherwise the vote to broadcast (possibly Undetermined).
	Value Value
}

// EvaluateProposalQuorum applies the proposal-phase rule
// to the values collected for one round.
func EvaluateProposalQuorum(vals []Value, quorum int) ProposalOutcome {
	t := TallyValues(vals)
	if t.Zero == quorum {
		return ProposalOutcome{Unanimous: true, Value: Zero}
	}
	if t.One == quorum {
		return ProposalOutcome{Unanimous: true, Value: One}
	}
	return ProposalOutcome{Value: t.Plurality()}
}

// VoteOutcome is the result of evaluating a vote quorum.
type VoteOutcome struct {
	// Decided is set when more than F votes carried Value.
	Decided bool

	// Random is set when neither value had a plurality
	// and Value came from the coin.
	Random bool

	// Value is always Zero or One.
	Value Value
}

// EvaluateVoteQuorum applies the vote-phase rule
// to the votes collected for one round.
// The coin is only flipped when the binary votes are tied.
func EvaluateVoteQuorum(vals []Value, f int, coin Coin) VoteOutcome {
	t := TallyValues(vals)
	if t.Zero > f {
		return VoteOutcome{Decided: true, Value: Zero}
	}
	if t.One > f {
		return VoteOutcome{Decided: true, Value: One}
	}

	if p := t.Plurality(); p != Undetermined {
		return VoteOutcome{Value: p}
	}

	return VoteOutcome{Random: true, Value: coin.Flip()}
}
