package boengine

import (
	"math/rand/v2"

	"github.com/gordian-engine/benor/boconsensus"
)

// RandomCoin is the default [boconsensus.Coin],
// backed by the math/rand/v2 global generator.
type RandomCoin struct{}

// Flip implements [boconsensus.Coin].
func (RandomCoin) Flip() boconsensus.Value {
	return boconsensus.Value(rand.IntN(2))
}
