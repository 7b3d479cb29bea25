package synth

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/inferloop/tabsynth/pkg/errors"
)

// Config holds engine settings
type Config struct {
	Bridge BridgeConfig `mapstructure:"bridge"`
}

// Factory maps algorithm kinds to synthesizer constructors
type Factory struct {
	creators map[Kind]CreateFunc
	config   Config
	mu       sync.RWMutex
	logger   *logrus.Logger
}

// NewFactory creates a factory with every supported kind registered
func NewFactory(config Config, logger *logrus.Logger) *Factory {
	if logger == nil {
		logger = logrus.New()
	}

	factory := &Factory{
		creators: make(map[Kind]CreateFunc),
		config:   config,
		logger:   logger,
	}

	factory.registerDefaults()

	return factory
}

// Create builds an unfitted synthesizer
func (f *Factory) Create(opts Options) (Synthesizer, error) {
	f.mu.RLock()
	createFunc, exists := f.creators[opts.Kind]
	f.mu.RUnlock()

	if !exists {
		var names []string
		for _, k := range f.AvailableKinds() {
			names = append(names, string(k))
		}
		return nil, errors.WrapError(errors.ErrInvalidAlgorithm, errors.ErrorTypeModel, errors.CodeInvalidAlgorithm,
			fmt.Sprintf("algorithm '%s' is not supported, available: %s", opts.Kind, strings.Join(names, ", ")))
	}

	s, err := createFunc(opts)
	if err != nil {
		return nil, err
	}

	f.logger.WithFields(logrus.Fields{
		"kind":   opts.Kind,
		"engine": s.Engine(),
	}).Info("Created synthesizer instance")

	return s, nil
}

// Load restores a fitted synthesizer. The engine recorded at save time
// decides how the artifact is decoded.
func (f *Factory) Load(sidecar *Sidecar, artifact []byte, seed int64) (Synthesizer, error) {
	opts := Options{
		Kind:            sidecar.Kind,
		Metadata:        &Metadata{Columns: sidecar.Columns},
		Hyperparameters: sidecar.Hyperparameters,
	}
	opts.Hyperparameters.Seed = seed

	var s Synthesizer
	switch sidecar.Engine {
	case EngineCopula:
		s = NewCopulaSynthesizer(opts, f.logger)
	case EngineBridge:
		b, err := NewBridgeSynthesizer(opts, f.config.Bridge, f.logger)
		if err != nil {
			return nil, err
		}
		s = b
	default:
		return nil, errors.WrapError(errors.ErrModelLoadFailed, errors.ErrorTypeModel, errors.CodeModelLoadFailed,
			fmt.Sprintf("unknown engine %q", sidecar.Engine))
	}

	if err := s.Unmarshal(artifact); err != nil {
		return nil, err
	}
	return s, nil
}

// RegisterSynthesizer registers a constructor for kind
func (f *Factory) RegisterSynthesizer(kind Kind, createFunc CreateFunc) error {
	if kind == "" {
		return errors.NewModelError(errors.CodeInvalidAlgorithm, "Synthesizer kind cannot be empty")
	}

	if createFunc == nil {
		return errors.NewModelError(errors.CodeInvalidAlgorithm, "Synthesizer create function cannot be nil")
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.creators[kind] = createFunc

	f.logger.WithFields(logrus.Fields{
		"kind": kind,
	}).Debug("Registered synthesizer kind")

	return nil
}

// IsSupported checks if a kind has a constructor
func (f *Factory) IsSupported(kind Kind) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()

	_, exists := f.creators[kind]
	return exists
}

// AvailableKinds returns the registered kinds sorted by name
func (f *Factory) AvailableKinds() []Kind {
	f.mu.RLock()
	defer f.mu.RUnlock()

	kinds := make([]Kind, 0, len(f.creators))
	for kind := range f.creators {
		kinds = append(kinds, kind)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })

	return kinds
}

// registerDefaults wires GaussianCopula to the native engine and the deep
// kinds to the bridge, falling back to the copula when no bridge is set
func (f *Factory) registerDefaults() {
	f.RegisterSynthesizer(KindGaussianCopula, func(opts Options) (Synthesizer, error) {
		return NewCopulaSynthesizer(opts, f.logger), nil
	})

	for _, kind := range []Kind{KindCTGAN, KindTVAE, KindCopulaGAN} {
		f.RegisterSynthesizer(kind, f.deepCreator)
	}
}

func (f *Factory) deepCreator(opts Options) (Synthesizer, error) {
	if f.config.Bridge.Enabled() {
		return NewBridgeSynthesizer(opts, f.config.Bridge, f.logger)
	}

	f.logger.WithFields(logrus.Fields{
		"kind":   opts.Kind,
		"engine": EngineCopula,
	}).Warn("No synthesizer bridge configured, fitting a Gaussian copula instead")

	return NewCopulaSynthesizer(opts, f.logger), nil
}
