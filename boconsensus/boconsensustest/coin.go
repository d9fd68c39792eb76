package boconsensustest

import (
	"fmt"
	"sync"

	"github.com/gordian-engine/benor/boconsensus"
)

// CoinSequence is a [boconsensus.Coin] that returns a fixed sequence of values.
// It panics if flipped more times than there are values.
type CoinSequence struct {
	mu    sync.Mutex
	vals  []boconsensus.Value
	flips int
}

// NewCoinSequence returns a CoinSequence that yields vals in order.
func NewCoinSequence(vals ...boconsensus.Value) *CoinSequence {
	return &CoinSequence{vals: vals}
}

// Flip implements [boconsensus.Coin].
func (c *CoinSequence) Flip() boconsensus.Value {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.flips >= len(c.vals) {
		panic(fmt.Errorf("coin sequence exhausted after %d flips", c.flips))
	}
	v := c.vals[c.flips]
	c.flips++
	return v
}

// Flips returns the number of times Flip has been called.
func (c *CoinSequence) Flips() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.flips
}

// ConstantCoin always returns the same value.
type ConstantCoin boconsensus.Value

// Flip implements [boconsensus.Coin].
func (c ConstantCoin) Flip() boconsensus.Value {
	return boconsensus.Value(c)
}
