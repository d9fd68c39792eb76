package boconsensus_test

import (
	"testing"

	"github.com/gordian-engine/benor/boconsensus"
	"github.com/stretchr/testify/require"
)

func TestParams_Validate(t *testing.T) {
	t.Parallel()

	require.NoError(t, boconsensus.Params{N: 4, F: 1}.Validate())
	require.NoError(t, boconsensus.Params{N: 1, F: 0}.Validate())

	// Unsafe, but still runnable.
	require.NoError(t, boconsensus.Params{N: 3, F: 1}.Validate())

	require.Error(t, boconsensus.Params{N: 0, F: 0}.Validate())
	require.Error(t, boconsensus.Params{N: 4, F: -1}.Validate())
	require.Error(t, boconsensus.Params{N: 4, F: 4}.Validate())
}

func TestParams_Quorum(t *testing.T) {
	t.Parallel()

	require.Equal(t, 3, boconsensus.Params{N: 4, F: 1}.Quorum())
	require.Equal(t, 5, boconsensus.Params{N: 5, F: 0}.Quorum())
}

func TestParams_SafeFaultBound(t *testing.T) {
	t.Parallel()

	require.True(t, boconsensus.Params{N: 4, F: 1}.SafeFaultBound())
	require.True(t, boconsensus.Params{N: 1, F: 0}.SafeFaultBound())
	require.False(t, boconsensus.Params{N: 3, F: 1}.SafeFaultBound())
	require.False(t, boconsensus.Params{N: 6, F: 2}.SafeFaultBound())
}

func TestRoundProgress(t *testing.T) {
	t.Parallel()

	var p boconsensus.RoundProgress
	require.Equal(t, boconsensus.NotStarted(), p)
	require.False(t, p.Started())
	r, ok := p.Round()
	require.False(t, ok)
	require.Zero(t, r)
	require.Equal(t, "NotStarted", p.String())

	p = boconsensus.ActiveRound(3)
	require.True(t, p.Started())
	r, ok = p.Round()
	require.True(t, ok)
	require.Equal(t, uint32(3), r)
	require.Equal(t, "Active(3)", p.String())

	require.Panics(t, func() {
		_ = boconsensus.ActiveRound(0)
	})
}

func TestValue_String(t *testing.T) {
	t.Parallel()

	require.Equal(t, "0", boconsensus.Zero.String())
	require.Equal(t, "1", boconsensus.One.String())
	require.Equal(t, "?", boconsensus.Undetermined.String())
	require.Equal(t, "Value(9)", boconsensus.Value(9).String())

	require.True(t, boconsensus.Zero.IsBinary())
	require.False(t, boconsensus.Undetermined.IsBinary())

	require.Equal(t, "proposal", boconsensus.PhaseProposal.String())
	require.Equal(t, "vote", boconsensus.PhaseVote.String())
}
