package synth

import (
	"context"

	"github.com/inferloop/tabsynth/internal/dataset"
)

// Synthesizer learns a table and draws synthetic rows from it
type Synthesizer interface {
	// Kind returns the algorithm the model was requested as
	Kind() Kind

	// Engine returns the implementation that fits the model
	Engine() string

	// Metadata returns the schema the model was built with
	Metadata() *Metadata

	// Fit learns the distribution of data
	Fit(ctx context.Context, data *dataset.Dataset) error

	// Sample draws n synthetic rows
	Sample(ctx context.Context, n int) (*dataset.Dataset, error)

	// Marshal serializes the fitted model
	Marshal() ([]byte, error)

	// Unmarshal restores a model produced by Marshal
	Unmarshal(data []byte) error
}

// Options configures a synthesizer instance
type Options struct {
	Kind            Kind
	Metadata        *Metadata
	Hyperparameters Hyperparameters
}

// CreateFunc builds a synthesizer for the given options
type CreateFunc func(opts Options) (Synthesizer, error)
