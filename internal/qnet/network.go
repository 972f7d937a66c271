// Package qnet implements the feed-forward Q-value network used by
// the DQN learner and agent: a multi-layer perceptron mapping a board
// encoding to one value per action.
package qnet

import (
	"bytes"
	"encoding/gob"
	"fmt"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Network is a feed-forward Q-value approximator: Features inputs,
// Outputs action values, built on a Gorgonia expression graph.
type Network struct {
	g      *G.ExprGraph
	layers []*layer
	input  *G.Node

	features  int
	outputs   int
	batchSize int

	hiddenSizes []int
	activations []*Activation

	learnables G.Nodes
	model      []G.ValueGrad

	prediction *G.Node
	predVal    G.Value
}

// New builds a Network on graph g with the given input batch size.
// hiddenSizes/activations describe the hidden layers only; a final
// linear (Identity) layer of size outputs is always appended, with a
// bias, so the network always terminates in a plain linear layer
// producing exactly outputs values.
func New(g *G.ExprGraph, features, batch, outputs int, hiddenSizes []int,
	activations []*Activation, init G.InitWFn) (*Network, error) {

	if len(hiddenSizes) != len(activations) {
		return nil, fmt.Errorf("qnet: %d hidden sizes but %d activations",
			len(hiddenSizes), len(activations))
	}

	input := G.NewMatrix(g, tensor.Float64, G.WithShape(batch, features),
		G.WithName("input"), G.WithInit(G.Zeroes()))

	allSizes := append(append([]int{}, hiddenSizes...), outputs)
	allActs := append(append([]*Activation{}, activations...), Identity())

	layers := addLayers(g, features, allSizes, allActs, init, "")

	n := &Network{
		g:           g,
		layers:      layers,
		input:       input,
		features:    features,
		outputs:     outputs,
		batchSize:   batch,
		hiddenSizes: hiddenSizes,
		activations: activations,
	}
	if _, err := n.fwd(input); err != nil {
		return nil, fmt.Errorf("qnet: forward pass: %w", err)
	}
	return n, nil
}

func (n *Network) fwd(x *G.Node) (*G.Node, error) {
	var err error
	for i, l := range n.layers {
		if x, err = l.fwd(x); err != nil {
			return nil, fmt.Errorf("qnet: layer %d: %w", i, err)
		}
	}
	n.prediction = x
	G.Read(n.prediction, &n.predVal)
	return x, nil
}

// Graph returns the network's computational graph.
func (n *Network) Graph() *G.ExprGraph { return n.g }

// BatchSize returns the batch size this network instance was built for.
func (n *Network) BatchSize() int { return n.batchSize }

// Features returns the input vector length.
func (n *Network) Features() int { return n.features }

// Outputs returns the number of action values produced per row.
func (n *Network) Outputs() int { return n.outputs }

// Input returns the input node, for feeding state batches via SetInput.
func (n *Network) Input() *G.Node { return n.input }

// Prediction returns the node holding the network's raw Q-value output.
func (n *Network) Prediction() *G.Node { return n.prediction }

// Value returns the most recently computed output tensor. Valid only
// after a VM run over the network's graph.
func (n *Network) Value() G.Value { return n.predVal }

// SetInput binds a flattened (batch*features) state buffer to the
// input node ahead of a VM run.
func (n *Network) SetInput(data []float64) error {
	if len(data) != n.features*n.batchSize {
		return fmt.Errorf("qnet: want %d inputs, have %d",
			n.features*n.batchSize, len(data))
	}
	t := tensor.New(tensor.WithBacking(data), tensor.WithShape(n.input.Shape()...))
	return G.Let(n.input, t)
}

// Learnables returns every learnable node (weights and biases) across
// all layers, in layer order.
func (n *Network) Learnables() G.Nodes {
	if n.learnables == nil {
		nodes := make([]*G.Node, 0, 2*len(n.layers))
		for _, l := range n.layers {
			nodes = append(nodes, l.weights, l.bias)
		}
		n.learnables = G.Nodes(nodes)
	}
	return n.learnables
}

// Model returns the learnables paired with their gradients, as
// required by a Gorgonia solver's Step method.
func (n *Network) Model() []G.ValueGrad {
	if n.model == nil {
		m := make([]G.ValueGrad, 0, len(n.Learnables()))
		for _, node := range n.Learnables() {
			m = append(m, node)
		}
		n.model = m
	}
	return n.model
}

// CloneWithBatch builds a structurally identical Network on a fresh
// graph with a different batch size, copying no weight values (the
// caller must call Set afterward to copy parameters). Used to build
// the target network and the double-DQN action-selection network
// alongside the training network.
func (n *Network) CloneWithBatch(batch int) (*Network, error) {
	g := G.NewGraph()
	input := G.NewMatrix(g, tensor.Float64, G.WithShape(batch, n.features),
		G.WithName("input"), G.WithInit(G.Zeroes()))

	layers := make([]*layer, len(n.layers))
	for i, l := range n.layers {
		layers[i] = l.cloneTo(g)
	}

	clone := &Network{
		g:           g,
		layers:      layers,
		input:       input,
		features:    n.features,
		outputs:     n.outputs,
		batchSize:   batch,
		hiddenSizes: n.hiddenSizes,
		activations: n.activations,
	}
	if _, err := clone.fwd(input); err != nil {
		return nil, fmt.Errorf("qnet: clone forward pass: %w", err)
	}
	return clone, nil
}

// Set copies source's weight values into n. n and source must have
// identical architecture (as produced by CloneWithBatch).
func (n *Network) Set(source *Network) error {
	dst := n.Learnables()
	src := source.Learnables()
	if len(dst) != len(src) {
		return fmt.Errorf("qnet: learnable count mismatch: %d vs %d", len(dst), len(src))
	}
	for i, d := range dst {
		if err := G.Let(d, src[i].Value()); err != nil {
			return fmt.Errorf("qnet: set learnable %d: %w", i, err)
		}
	}
	return nil
}

// Polyak sets n's weights to (1-tau)*n + tau*source. Not used by the
// baseline hard-sync target network; no config field selects it.
func (n *Network) Polyak(source *Network, tau float64) error {
	dst := n.Learnables()
	src := source.Learnables()
	for i := range dst {
		dw := dst[i].Value().(*tensor.Dense)
		sw := src[i].Value().(*tensor.Dense)

		dw, err := dw.MulScalar(1-tau, true)
		if err != nil {
			return err
		}
		sw, err = sw.MulScalar(tau, true)
		if err != nil {
			return err
		}
		merged, err := dw.Add(sw)
		if err != nil {
			return err
		}
		if err := G.Let(dst[i], merged); err != nil {
			return err
		}
	}
	return nil
}

// GobEncode serializes the network's architecture and weight values.
func (n *Network) GobEncode() ([]byte, error) {
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)
	if err := enc.Encode(n.features); err != nil {
		return nil, err
	}
	if err := enc.Encode(n.outputs); err != nil {
		return nil, err
	}
	if err := enc.Encode(n.batchSize); err != nil {
		return nil, err
	}
	if err := enc.Encode(n.hiddenSizes); err != nil {
		return nil, err
	}
	if err := enc.Encode(n.activations); err != nil {
		return nil, err
	}
	for i, l := range n.layers {
		if err := enc.Encode(l); err != nil {
			return nil, fmt.Errorf("qnet: encode layer %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

// GobDecode rebuilds a network from a saved encoding onto a fresh
// graph. The caller is expected to compare architecture fields against
// the running config before accepting the decoded network (see
// checkpoint.Load) and reject on mismatch.
func (n *Network) GobDecode(in []byte) error {
	dec := gob.NewDecoder(bytes.NewReader(in))

	var features, outputs, batch int
	if err := dec.Decode(&features); err != nil {
		return err
	}
	if err := dec.Decode(&outputs); err != nil {
		return err
	}
	if err := dec.Decode(&batch); err != nil {
		return err
	}
	var hiddenSizes []int
	if err := dec.Decode(&hiddenSizes); err != nil {
		return err
	}
	var activations []*Activation
	if err := dec.Decode(&activations); err != nil {
		return err
	}

	g := G.NewGraph()
	fresh, err := New(g, features, batch, outputs, hiddenSizes, activations, G.Zeroes())
	if err != nil {
		return fmt.Errorf("qnet: rebuild for decode: %w", err)
	}
	for i, l := range fresh.layers {
		if err := dec.Decode(l); err != nil {
			return fmt.Errorf("qnet: decode layer %d: %w", i, err)
		}
	}
	*n = *fresh
	return nil
}
