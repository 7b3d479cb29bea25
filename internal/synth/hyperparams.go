package synth

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/inferloop/tabsynth/pkg/constants"
	"github.com/inferloop/tabsynth/pkg/errors"
)

// Hyperparameters controls model fitting
type Hyperparameters struct {
	Epochs             int     `json:"epochs" toml:"epochs"`
	BatchSize          int     `json:"batch_size" toml:"batch_size"`
	LearningRate       float64 `json:"learning_rate" toml:"learning_rate"`
	DiscriminatorSteps int     `json:"discriminator_steps" toml:"discriminator_steps"`
	GeneratorDim       []int   `json:"generator_dim,omitempty" toml:"generator_dim,omitempty"`
	DiscriminatorDim   []int   `json:"discriminator_dim,omitempty" toml:"discriminator_dim,omitempty"`
	Seed               int64   `json:"seed,omitempty" toml:"seed,omitempty"`
}

// DefaultHyperparameters returns the defaults used when no flags are given
func DefaultHyperparameters() Hyperparameters {
	return Hyperparameters{
		Epochs:             constants.DefaultEpochs,
		BatchSize:          constants.DefaultBatchSize,
		LearningRate:       constants.DefaultLearningRate,
		DiscriminatorSteps: constants.DefaultDiscriminatorSteps,
	}
}

// ParseDims parses a "d1,d2,..." layer size list. An empty string yields nil.
func ParseDims(s string) ([]int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	dims := make([]int, len(parts))
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || n <= 0 {
			return nil, errors.WrapError(errors.ErrInvalidParameters, errors.ErrorTypeModel, errors.CodeInvalidParams,
				fmt.Sprintf("invalid layer size %q in %q", p, s))
		}
		dims[i] = n
	}
	return dims, nil
}

// Validate rejects non-positive settings
func (h Hyperparameters) Validate() error {
	switch {
	case h.Epochs <= 0:
		return invalidParam("epochs must be positive")
	case h.BatchSize <= 0:
		return invalidParam("batch_size must be positive")
	case h.LearningRate <= 0:
		return invalidParam("learning_rate must be positive")
	case h.DiscriminatorSteps <= 0:
		return invalidParam("discriminator_steps must be positive")
	}
	return nil
}

func invalidParam(msg string) error {
	return errors.WrapError(errors.ErrInvalidParameters, errors.ErrorTypeModel, errors.CodeInvalidParams, msg)
}

// ForKind maps the settings onto the parameter names each algorithm accepts.
// GaussianCopula takes none of them.
func (h Hyperparameters) ForKind(kind Kind) map[string]interface{} {
	switch kind {
	case KindGaussianCopula:
		return map[string]interface{}{}
	case KindTVAE:
		return map[string]interface{}{
			"epochs":          h.Epochs,
			"batch_size":      h.BatchSize,
			"compress_dims":   dimsOr(h.GeneratorDim, 128, 128),
			"decompress_dims": dimsOr(h.DiscriminatorDim, 128, 128),
		}
	case KindCopulaGAN:
		return map[string]interface{}{
			"epochs":              h.Epochs,
			"batch_size":          h.BatchSize,
			"discriminator_steps": h.DiscriminatorSteps,
			"generator_lr":        h.LearningRate,
			"discriminator_lr":    h.LearningRate,
		}
	default:
		return map[string]interface{}{
			"epochs":              h.Epochs,
			"batch_size":          h.BatchSize,
			"discriminator_steps": h.DiscriminatorSteps,
			"generator_lr":        h.LearningRate,
			"discriminator_lr":    h.LearningRate,
			"generator_dim":       dimsOr(h.GeneratorDim, 256, 256),
			"discriminator_dim":   dimsOr(h.DiscriminatorDim, 256, 256),
		}
	}
}

func dimsOr(dims []int, fallback ...int) []int {
	if len(dims) > 0 {
		return dims
	}
	return fallback
}
