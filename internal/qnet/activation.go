package qnet

import (
	"encoding/json"
	"fmt"
	"strings"

	G "gorgonia.org/gorgonia"
)

type activationKind string

const (
	actReLU     activationKind = "relu"
	actIdentity activationKind = "identity"
	actTanh     activationKind = "tanh"
	actSigmoid  activationKind = "sigmoid"
)

// Activation wraps a Gorgonia elementwise op so it can be named,
// JSON/gob-(de)serialized and compared by kind.
type Activation struct {
	kind activationKind
	f    func(*G.Node) (*G.Node, error)
}

func (a *Activation) fwd(x *G.Node) (*G.Node, error) {
	return a.f(x)
}

// IsIdentity reports whether the activation is the identity function.
func (a *Activation) IsIdentity() bool {
	return a.kind == actIdentity
}

func (a *Activation) String() string {
	return string(a.kind)
}

// ReLU returns a rectified-linear activation, used for every hidden
// layer of the Q-network.
func ReLU() *Activation {
	return &Activation{kind: actReLU, f: G.Rectify}
}

// Identity returns the identity activation, used on the Q-value output
// layer (raw, unbounded action values).
func Identity() *Activation {
	return &Activation{kind: actIdentity, f: func(x *G.Node) (*G.Node, error) {
		return x, nil
	}}
}

// TanH returns a hyperbolic tangent activation.
func TanH() *Activation {
	return &Activation{kind: actTanh, f: G.Tanh}
}

// Sigmoid returns a sigmoid activation.
func Sigmoid() *Activation {
	return &Activation{kind: actSigmoid, f: G.Sigmoid}
}

func fromKind(k activationKind) (*Activation, error) {
	switch k {
	case actReLU:
		return ReLU(), nil
	case actIdentity:
		return Identity(), nil
	case actTanh:
		return TanH(), nil
	case actSigmoid:
		return Sigmoid(), nil
	default:
		return nil, fmt.Errorf("qnet: unknown activation kind %q", k)
	}
}

// MarshalJSON implements json.Marshaler so Activation can live inside
// HCL/JSON-decoded config structs.
func (a *Activation) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.kind)
}

// UnmarshalJSON implements json.Unmarshaler.
func (a *Activation) UnmarshalJSON(data []byte) error {
	k := activationKind(strings.Trim(string(data), `"`))
	act, err := fromKind(k)
	if err != nil {
		return err
	}
	*a = *act
	return nil
}

// GobEncode implements gob.GobEncoder.
func (a *Activation) GobEncode() ([]byte, error) {
	return []byte(a.kind), nil
}

// GobDecode implements gob.GobDecoder.
func (a *Activation) GobDecode(data []byte) error {
	act, err := fromKind(activationKind(data))
	if err != nil {
		return err
	}
	*a = *act
	return nil
}
