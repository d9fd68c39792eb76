package boi

import (
	"slices"

	"github.com/gordian-engine/benor/boconsensus"
)

// RoundAggregator collects the values received for one phase, grouped by round.
//
// It is not safe for concurrent use;
// it is owned exclusively by a single [Kernel] goroutine.
type RoundAggregator struct {
	quorum int

	buckets map[uint32]*roundBucket

	// Rounds below floor have been pruned and are ignored.
	floor uint32
}

type roundBucket struct {
	values []boconsensus.Value

	// Set once len(values) first reaches the quorum.
	reached bool
}

// NewRoundAggregator returns an empty aggregator with the given quorum size.
func NewRoundAggregator(quorum int) *RoundAggregator {
	return &RoundAggregator{
		quorum:  quorum,
		buckets: make(map[uint32]*roundBucket),
	}
}

// Add appends v to the bucket for round.
//
// It returns a copy of the round's values and true
// only on the call that first brings the bucket to the quorum size.
// Every later call for the same round returns false,
// no matter how many more values arrive.
//
// Values for pruned rounds are discarded.
func (a *RoundAggregator) Add(round uint32, v boconsensus.Value) ([]boconsensus.Value, bool) {
	if round < a.floor {
		return nil, false
	}

	b := a.getOrCreate(round)
	b.values = append(b.values, v)

	if b.reached || len(b.values) < a.quorum {
		return nil, false
	}

	b.reached = true
	return slices.Clone(b.values), true
}

func (a *RoundAggregator) getOrCreate(round uint32) *roundBucket {
	b, ok := a.buckets[round]
	if !ok {
		b = new(roundBucket)
		a.buckets[round] = b
	}
	return b
}

// Len returns the number of values received for round.
func (a *RoundAggregator) Len(round uint32) int {
	b, ok := a.buckets[round]
	if !ok {
		return 0
	}
	return len(b.values)
}

// Rounds returns the number of rounds currently held.
func (a *RoundAggregator) Rounds() int {
	return len(a.buckets)
}

// PruneBelow drops every bucket for a round less than round
// and ignores any later values for those rounds.
// The floor never moves backwards.
func (a *RoundAggregator) PruneBelow(round uint32) {
	if round <= a.floor {
		return
	}
	a.floor = round

	for r := range a.buckets {
		if r < round {
			delete(a.buckets, r)
		}
	}
}
