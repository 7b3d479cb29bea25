// Package synth trains single-table synthesizers and draws synthetic rows
// from them. Native models are fitted in-process; deep generative kinds can
// be delegated to an external bridge command.
package synth

import (
	"fmt"
	"strings"

	"github.com/inferloop/tabsynth/pkg/errors"
)

// Kind identifies a synthesizer algorithm
type Kind string

const (
	KindCTGAN          Kind = "CTGAN"
	KindTVAE           Kind = "TVAE"
	KindGaussianCopula Kind = "GaussianCopula"
	KindCopulaGAN      Kind = "CopulaGAN"
)

// Kinds lists the supported algorithms in flag order
var Kinds = []Kind{KindCTGAN, KindTVAE, KindGaussianCopula, KindCopulaGAN}

// Engine names the implementation that actually fits a model
const (
	EngineCopula = "copula"
	EngineBridge = "bridge"
)

// ParseKind validates an algorithm name
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds {
		if string(k) == s {
			return k, nil
		}
	}
	names := make([]string, len(Kinds))
	for i, k := range Kinds {
		names[i] = string(k)
	}
	return "", errors.WrapError(errors.ErrInvalidAlgorithm, errors.ErrorTypeModel, errors.CodeInvalidAlgorithm,
		fmt.Sprintf("unknown algorithm %q, expected one of %s", s, strings.Join(names, ", ")))
}

// UsesEpochs reports whether the algorithm trains iteratively
func (k Kind) UsesEpochs() bool {
	return k != KindGaussianCopula
}

func (k Kind) String() string {
	return string(k)
}
