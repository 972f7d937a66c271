package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	G "gorgonia.org/gorgonia"

	"github.com/evanburke/chessrl/internal/qnet"
)

func newTestAgent(t *testing.T, epsilon float64, seed int64) *Agent {
	t.Helper()
	g := G.NewGraph()
	net, err := qnet.New(g, 8, 1, 6, []int{16}, []*qnet.Activation{qnet.ReLU()}, qnet.GlorotUniform.Build(1.0))
	require.NoError(t, err)
	a, err := New(net, epsilon, seed)
	require.NoError(t, err)
	return a
}

func TestSelectActionRestrictedToLegalSet(t *testing.T) {
	a := newTestAgent(t, 0.0, 1)
	state := make([]float32, 8)

	mask := make([]byte, 6)
	mask[2] = 1
	mask[4] = 1

	action, err := a.SelectAction(state, mask)
	require.NoError(t, err)
	assert.Contains(t, []int{2, 4}, action)
}

func TestSelectActionPanicsOnEmptyMask(t *testing.T) {
	a := newTestAgent(t, 0.0, 1)
	state := make([]float32, 8)
	mask := make([]byte, 6)

	assert.Panics(t, func() {
		a.SelectAction(state, mask)
	})
}

func TestEpsilonOneAlwaysExplores(t *testing.T) {
	a := newTestAgent(t, 1.0, 2)
	state := make([]float32, 8)
	mask := make([]byte, 6)
	mask[0] = 1
	mask[1] = 1
	mask[2] = 1

	for i := 0; i < 10; i++ {
		action, err := a.SelectAction(state, mask)
		require.NoError(t, err)
		assert.Contains(t, []int{0, 1, 2}, action)
	}
}

func TestSnapshotCopiesWeightsAndIsIndependent(t *testing.T) {
	a := newTestAgent(t, 0.1, 3)
	snap, err := a.Snapshot(0.0, 4)
	require.NoError(t, err)

	assert.Equal(t, 0.0, snap.Epsilon())
	assert.NotSame(t, a.Network(), snap.Network())

	q1, err := a.QValues(make([]float32, 8))
	require.NoError(t, err)
	q2, err := snap.QValues(make([]float32, 8))
	require.NoError(t, err)
	assert.Equal(t, q1, q2, "snapshot must start with identical weights to the source")
}
