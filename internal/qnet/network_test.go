package qnet

import (
	"testing"

	"github.com/stretchr/testify/require"
	G "gorgonia.org/gorgonia"
)

func TestNewNetworkShape(t *testing.T) {
	g := G.NewGraph()
	net, err := New(g, 783, 32, 4096, []int{512, 256, 128},
		[]*Activation{ReLU(), ReLU(), ReLU()}, GlorotUniform.Build(1.0))
	require.NoError(t, err)

	require.Equal(t, 783, net.Features())
	require.Equal(t, 4096, net.Outputs())
	require.Equal(t, 32, net.BatchSize())
	require.Len(t, net.Learnables(), 2*4) // 3 hidden layers + 1 output layer
}

func TestCloneWithBatchPreservesArchitecture(t *testing.T) {
	g := G.NewGraph()
	net, err := New(g, 783, 1, 4096, []int{64}, []*Activation{ReLU()}, Zeroes.Build(0))
	require.NoError(t, err)

	clone, err := net.CloneWithBatch(16)
	require.NoError(t, err)

	require.Equal(t, 16, clone.BatchSize())
	require.Equal(t, net.Features(), clone.Features())
	require.Equal(t, net.Outputs(), clone.Outputs())
	require.Len(t, clone.Learnables(), len(net.Learnables()))
}

func TestSetCopiesWeights(t *testing.T) {
	g := G.NewGraph()
	src, err := New(g, 10, 4, 2, []int{8}, []*Activation{ReLU()}, GlorotUniform.Build(1.0))
	require.NoError(t, err)

	dst, err := src.CloneWithBatch(4)
	require.NoError(t, err)

	require.NoError(t, dst.Set(src))
	for i, d := range dst.Learnables() {
		require.Equal(t, src.Learnables()[i].Value().Data(), d.Value().Data())
	}
}
