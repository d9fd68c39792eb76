package boready_test

import (
	"sync"
	"testing"

	"github.com/gordian-engine/benor/boready"
	"github.com/gordian-engine/benor/internal/gtest"
	"github.com/stretchr/testify/require"
)

func TestBarrier(t *testing.T) {
	t.Parallel()

	b := boready.NewBarrier(3)
	require.False(t, b.AllReady())
	gtest.NotSending(t, b.Done())

	b.SetReady(1)
	b.SetReady(1)
	require.True(t, b.IsReady(1))
	require.False(t, b.IsReady(0))
	require.False(t, b.AllReady())

	b.SetReady(0)
	require.False(t, b.AllReady())
	gtest.NotSending(t, b.Done())

	b.SetReady(2)
	require.True(t, b.AllReady())
	_ = gtest.ReceiveSoon(t, b.Done())

	// Closing the done channel only happens once.
	require.NotPanics(t, func() { b.SetReady(2) })
}

func TestBarrier_concurrent(t *testing.T) {
	t.Parallel()

	const n = 64
	b := boready.NewBarrier(n)

	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.SetReady(i)
		}()
	}
	wg.Wait()

	require.True(t, b.AllReady())
	_ = gtest.ReceiveSoon(t, b.Done())
}

func TestBarrier_outOfRange(t *testing.T) {
	t.Parallel()

	b := boready.NewBarrier(2)
	require.Panics(t, func() { b.SetReady(2) })
	require.Panics(t, func() { b.SetReady(-1) })
	require.Panics(t, func() { boready.NewBarrier(0) })
}
