package qnet

import G "gorgonia.org/gorgonia"

// InitScheme names a weight initialization algorithm, a config-friendly
// (HCL/JSON) alternative to passing a G.InitWFn closure around.
type InitScheme string

const (
	// GlorotUniform is the default: Xavier/Glorot uniform init, the
	// standard choice for ReLU MLPs.
	GlorotUniform InitScheme = "glorot-uniform"
	GlorotNormal  InitScheme = "glorot-normal"
	Zeroes        InitScheme = "zeroes"
)

// Build returns the Gorgonia weight initializer for the scheme.
func (s InitScheme) Build(gain float64) G.InitWFn {
	switch s {
	case GlorotNormal:
		return G.GlorotN(gain)
	case Zeroes:
		return G.Zeroes()
	case GlorotUniform, "":
		return G.GlorotU(gain)
	default:
		return G.GlorotU(gain)
	}
}
