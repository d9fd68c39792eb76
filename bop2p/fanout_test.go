package bop2p_test

import (
	"context"
	"errors"
	"testing"

	"github.com/gordian-engine/benor/boconsensus"
	"github.com/gordian-engine/benor/bop2p"
	"github.com/gordian-engine/benor/internal/gtest"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// mockSender implements bop2p.PeerSender for testing.
type mockSender struct {
	mock.Mock
}

func (m *mockSender) Send(ctx context.Context, peerIdx int, msg boconsensus.Message) error {
	args := m.Called(ctx, peerIdx, msg)
	return args.Error(0)
}

func TestFanOut_Broadcast(t *testing.T) {
	t.Parallel()

	t.Run("sends to every peer including self", func(t *testing.T) {
		ctx := context.Background()
		msg := boconsensus.Message{Round: 3, Value: boconsensus.One, Phase: boconsensus.PhaseVote}

		s := new(mockSender)
		for i := range 4 {
			s.On("Send", ctx, i, msg).Return(nil).Once()
		}

		f := bop2p.NewFanOut(gtest.NewLogger(t), 4, s)
		f.Broadcast(ctx, msg)
		f.Wait()

		s.AssertExpectations(t)
	})

	t.Run("send failures do not stop other sends", func(t *testing.T) {
		ctx := context.Background()
		msg := boconsensus.Message{Round: 1, Value: boconsensus.Zero, Phase: boconsensus.PhaseProposal}

		s := new(mockSender)
		s.On("Send", ctx, 0, msg).Return(errors.New("connection refused")).Once()
		s.On("Send", ctx, 1, msg).Return(nil).Once()
		s.On("Send", ctx, 2, msg).Return(errors.New("timeout")).Once()

		f := bop2p.NewFanOut(gtest.NewLogger(t), 3, s)
		f.Broadcast(ctx, msg)
		f.Wait()

		s.AssertExpectations(t)
		s.AssertNumberOfCalls(t, "Send", 3)
	})

	t.Run("broadcast does not wait for slow peers", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		msg := boconsensus.Message{Round: 2, Value: boconsensus.Undetermined, Phase: boconsensus.PhaseVote}
		release := make(chan struct{})

		s := new(mockSender)
		s.On("Send", ctx, 0, msg).Run(func(mock.Arguments) { <-release }).Return(nil).Once()

		f := bop2p.NewFanOut(gtest.NewLogger(t), 1, s)

		returned := make(chan struct{})
		go func() {
			f.Broadcast(ctx, msg)
			close(returned)
		}()

		_ = gtest.ReceiveSoon(t, returned)

		close(release)
		f.Wait()
		require.True(t, s.AssertExpectations(t))
	})
}
