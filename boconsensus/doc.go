// Package boconsensus contains the data types and decision rules
// shared by every part of the benor consensus engine.
//
// A network of N nodes, at most F of which are silent,
// agrees on a single binary [Value].
// Each round has a proposal phase and a vote phase.
// Once a node has collected a quorum of N-F proposals for a round,
// it either decides immediately (if the quorum is unanimous)
// or votes for the plurality value.
// Once it has collected N-F votes,
// it decides if more than F votes agree,
// otherwise it adopts the plurality or flips a [Coin],
// and moves on to the next round.
//
// The functions in this package are pure;
// the stateful engine lives in [github.com/gordian-engine/benor/boengine].
package boconsensus
