package qnet

import (
	"bytes"
	"encoding/gob"
	"fmt"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// layer is a single fully connected layer: y = act(x*W + b).
type layer struct {
	weights *G.Node
	bias    *G.Node
	act     *Activation
}

func (l *layer) fwd(x *G.Node) (*G.Node, error) {
	x = G.Must(G.Mul(x, l.weights))
	if l.bias != nil {
		x = G.Must(G.BroadcastAdd(x, l.bias, nil, []byte{0}))
	}
	if l.act.IsIdentity() {
		return x, nil
	}
	return l.act.fwd(x)
}

func (l *layer) cloneTo(g *G.ExprGraph) *layer {
	return &layer{
		weights: l.weights.CloneTo(g),
		bias:    l.bias.CloneTo(g),
		act:     l.act,
	}
}

// GobEncode saves only the layer's current weight/bias values and its
// activation, not the graph node identity, so a checkpoint only ever
// carries values and can be replayed onto any freshly-built graph of
// matching shape.
func (l *layer) GobEncode() ([]byte, error) {
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)
	if err := enc.Encode(l.weights.Value()); err != nil {
		return nil, fmt.Errorf("qnet: encode weights: %w", err)
	}
	if err := enc.Encode(l.bias.Value()); err != nil {
		return nil, fmt.Errorf("qnet: encode bias: %w", err)
	}
	if err := enc.Encode(l.act); err != nil {
		return nil, fmt.Errorf("qnet: encode activation: %w", err)
	}
	return buf.Bytes(), nil
}

// GobDecode fills an already-constructed layer's weight/bias node
// values from a saved encoding. The layer must have been built with
// matching shapes beforehand (Network.GobDecode calls it per layer).
func (l *layer) GobDecode(in []byte) error {
	if l.weights == nil || l.bias == nil {
		return fmt.Errorf("qnet: layer must be initialized before GobDecode")
	}
	dec := gob.NewDecoder(bytes.NewReader(in))

	var w *tensor.Dense
	if err := dec.Decode(&w); err != nil {
		return fmt.Errorf("qnet: decode weights: %w", err)
	}
	if err := G.Let(l.weights, w); err != nil {
		return fmt.Errorf("qnet: set weights: %w", err)
	}

	var b *tensor.Dense
	if err := dec.Decode(&b); err != nil {
		return fmt.Errorf("qnet: decode bias: %w", err)
	}
	if err := G.Let(l.bias, b); err != nil {
		return fmt.Errorf("qnet: set bias: %w", err)
	}

	if l.act == nil {
		l.act = &Activation{}
	}
	if err := dec.Decode(l.act); err != nil {
		return fmt.Errorf("qnet: decode activation: %w", err)
	}
	return nil
}

// addLayers builds the stack of fully connected layers described by
// sizes/activations, reading from features inputs. Weight matrices are
// shaped (prevSize, size) so that fwd computes x*W with x of shape
// (batch, prevSize); bias vectors are shaped (1, size) so they
// broadcast across the batch dimension in BroadcastAdd.
func addLayers(g *G.ExprGraph, features int, sizes []int, activations []*Activation,
	init G.InitWFn, namePrefix string) []*layer {

	layers := make([]*layer, len(sizes))
	prev := features
	for i, size := range sizes {
		w := G.NewMatrix(g, tensor.Float64, G.WithShape(prev, size),
			G.WithName(fmt.Sprintf("%sW%d", namePrefix, i)), G.WithInit(init))
		b := G.NewMatrix(g, tensor.Float64, G.WithShape(1, size),
			G.WithName(fmt.Sprintf("%sb%d", namePrefix, i)), G.WithInit(G.Zeroes()))
		layers[i] = &layer{weights: w, bias: b, act: activations[i]}
		prev = size
	}
	return layers
}
