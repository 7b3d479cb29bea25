package synth

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/inferloop/tabsynth/pkg/constants"
	"github.com/inferloop/tabsynth/pkg/errors"
)

// Store reads and writes artifacts by location
type Store interface {
	Read(ctx context.Context, location string) ([]byte, error)
	Write(ctx context.Context, location string, data []byte) error
}

// Sidecar records how an artifact was produced. It is written next to the
// artifact and is the only input used to pick a loader.
type Sidecar struct {
	Kind            Kind             `toml:"kind"`
	Engine          string           `toml:"engine"`
	Version         int              `toml:"version"`
	RunID           string           `toml:"run_id"`
	CreatedAt       time.Time        `toml:"created_at"`
	Hyperparameters Hyperparameters  `toml:"hyperparameters"`
	Columns         []ColumnMetadata `toml:"columns"`
}

// SidecarLocation returns where the sidecar of an artifact lives
func SidecarLocation(location string) string {
	return location + constants.SidecarSuffix
}

// NewSidecar describes a fitted synthesizer
func NewSidecar(s Synthesizer, params Hyperparameters) *Sidecar {
	sc := &Sidecar{
		Kind:            s.Kind(),
		Engine:          s.Engine(),
		Version:         constants.ArtifactVersion,
		RunID:           uuid.NewString(),
		CreatedAt:       time.Now().UTC().Truncate(time.Second),
		Hyperparameters: params,
	}
	if md := s.Metadata(); md != nil {
		sc.Columns = md.Columns
	}
	return sc
}

// EncodeSidecar renders sc as TOML
func EncodeSidecar(sc *Sidecar) ([]byte, error) {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(sc); err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeModel, errors.CodeModelSaveFailed, "failed to encode model sidecar")
	}
	return buf.Bytes(), nil
}

// DecodeSidecar parses and validates a TOML sidecar
func DecodeSidecar(data []byte) (*Sidecar, error) {
	var sc Sidecar
	md, err := toml.Decode(string(data), &sc)
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeModel, errors.CodeModelLoadFailed, "failed to parse model sidecar")
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, errors.NewModelError(errors.CodeModelLoadFailed,
			fmt.Sprintf("unknown keys in model sidecar: %s", strings.Join(keys, ", ")))
	}
	if _, err := ParseKind(string(sc.Kind)); err != nil {
		return nil, err
	}
	if sc.Version != constants.ArtifactVersion {
		return nil, errors.NewModelError(errors.CodeModelLoadFailed,
			fmt.Sprintf("unsupported model version %d", sc.Version))
	}
	return &sc, nil
}

// SaveModel writes the artifact of a fitted synthesizer and its sidecar
func SaveModel(ctx context.Context, store Store, location string, s Synthesizer, params Hyperparameters, logger *logrus.Logger) (*Sidecar, error) {
	artifact, err := s.Marshal()
	if err != nil {
		return nil, err
	}

	sc := NewSidecar(s, params)
	meta, err := EncodeSidecar(sc)
	if err != nil {
		return nil, err
	}

	if err := store.Write(ctx, location, artifact); err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeModel, errors.CodeModelSaveFailed,
			fmt.Sprintf("failed to write model to %s", location))
	}
	if err := store.Write(ctx, SidecarLocation(location), meta); err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeModel, errors.CodeModelSaveFailed,
			fmt.Sprintf("failed to write model sidecar for %s", location))
	}

	logger.WithFields(logrus.Fields{
		"location": location,
		"kind":     sc.Kind,
		"engine":   sc.Engine,
		"run_id":   sc.RunID,
		"bytes":    len(artifact),
	}).Info("Saved model")

	return sc, nil
}

// LoadModel reads a sidecar and its artifact and restores the synthesizer
func LoadModel(ctx context.Context, store Store, factory *Factory, location string, seed int64) (Synthesizer, *Sidecar, error) {
	meta, err := store.Read(ctx, SidecarLocation(location))
	if err != nil {
		return nil, nil, errors.WrapError(err, errors.ErrorTypeModel, errors.CodeModelLoadFailed,
			fmt.Sprintf("failed to read model sidecar for %s", location))
	}
	sc, err := DecodeSidecar(meta)
	if err != nil {
		return nil, nil, err
	}

	artifact, err := store.Read(ctx, location)
	if err != nil {
		return nil, nil, errors.WrapError(err, errors.ErrorTypeModel, errors.CodeModelLoadFailed,
			fmt.Sprintf("failed to read model %s", location))
	}

	s, err := factory.Load(sc, artifact, seed)
	if err != nil {
		return nil, nil, err
	}
	return s, sc, nil
}
