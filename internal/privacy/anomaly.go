package privacy

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/inferloop/tabsynth/internal/dataset"
	"github.com/inferloop/tabsynth/pkg/constants"
	"github.com/inferloop/tabsynth/pkg/errors"
)

// AnomalyKind selects how target cells are overwritten
type AnomalyKind string

const (
	AnomalyFixed AnomalyKind = "fixed"
	AnomalyNull  AnomalyKind = "null"
)

// AnomalySpec describes one injection
type AnomalySpec struct {
	Column string        `json:"column"`
	Kind   AnomalyKind   `json:"type"`
	Value  dataset.Value `json:"-"`
	Ratio  float64       `json:"ratio"`
}

type anomalySpecJSON struct {
	Column string          `json:"column"`
	Type   string          `json:"type"`
	Value  json.RawMessage `json:"value"`
	Ratio  *float64        `json:"ratio"`
}

// ParseAnomalySpecs decodes a JSON array of anomaly entries. A missing ratio
// defaults to 0.05.
func ParseAnomalySpecs(raw string) ([]AnomalySpec, error) {
	var entries []anomalySpecJSON
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.UseNumber()
	if err := dec.Decode(&entries); err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeInput, errors.CodeInvalidAnomaly, "failed to parse anomaly JSON")
	}

	specs := make([]AnomalySpec, len(entries))
	for i, e := range entries {
		ratio := constants.DefaultAnomalyRatio
		if e.Ratio != nil {
			ratio = *e.Ratio
		}

		value, err := decodeScalar(e.Value)
		if err != nil {
			return nil, errors.WrapError(err, errors.ErrorTypeInput, errors.CodeInvalidAnomaly,
				fmt.Sprintf("invalid value in anomaly entry %d", i))
		}

		specs[i] = AnomalySpec{
			Column: e.Column,
			Kind:   AnomalyKind(e.Type),
			Value:  value,
			Ratio:  ratio,
		}
	}
	return specs, nil
}

func decodeScalar(raw json.RawMessage) (dataset.Value, error) {
	if len(raw) == 0 {
		return dataset.Null(), nil
	}
	var v interface{}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return dataset.Null(), err
	}
	switch x := v.(type) {
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return dataset.Null(), err
		}
		return dataset.Number(f), nil
	case string, bool, nil:
		return dataset.FromInterface(x), nil
	default:
		return dataset.String(string(raw)), nil
	}
}

// Validate reports why a spec cannot be applied
func (s AnomalySpec) Validate() error {
	if s.Kind != AnomalyFixed && s.Kind != AnomalyNull {
		return errors.WrapError(errors.ErrInvalidKind, errors.ErrorTypeInput, errors.CodeInvalidAnomaly,
			fmt.Sprintf("unknown anomaly type %q", s.Kind))
	}
	if math.IsNaN(s.Ratio) || s.Ratio < 0 || s.Ratio > 1 {
		return errors.WrapError(errors.ErrInvalidRatio, errors.ErrorTypeInput, errors.CodeInvalidAnomaly,
			fmt.Sprintf("ratio %v out of range", s.Ratio))
	}
	return nil
}

// InjectionResult counts the cells touched by each spec entry
type InjectionResult struct {
	Column  string      `json:"column"`
	Kind    AnomalyKind `json:"type"`
	Applied int         `json:"applied"`
	Skipped bool        `json:"skipped"`
}

// AnomalyInjector overwrites a random fraction of cells in chosen columns
type AnomalyInjector struct {
	rng    *rand.Rand
	logger *logrus.Logger
}

// NewAnomalyInjector creates an injector. A nil rng uses a time-seeded source.
func NewAnomalyInjector(rng *rand.Rand, logger *logrus.Logger) *AnomalyInjector {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &AnomalyInjector{rng: rng, logger: logger}
}

// Inject applies specs in order to a copy of ds. Each entry picks
// floor(rows*ratio) distinct rows; later entries may overwrite earlier ones.
// Entries naming a missing column are ignored, invalid entries are skipped
// with a warning.
func (a *AnomalyInjector) Inject(ds *dataset.Dataset, specs []AnomalySpec) (*dataset.Dataset, []InjectionResult) {
	out := ds.Clone()
	results := make([]InjectionResult, len(specs))

	for k, spec := range specs {
		results[k] = InjectionResult{Column: spec.Column, Kind: spec.Kind}

		col := out.ColumnIndex(spec.Column)
		if col < 0 {
			results[k].Skipped = true
			continue
		}

		if err := spec.Validate(); err != nil {
			a.logger.WithFields(logrus.Fields{
				"column": spec.Column,
				"error":  err.Error(),
			}).Warn("Skipping anomaly entry")
			results[k].Skipped = true
			continue
		}

		count := int(math.Floor(float64(out.Len()) * spec.Ratio))
		rows := a.rng.Perm(out.Len())[:count]

		value := spec.Value
		if spec.Kind == AnomalyNull {
			value = dataset.Null()
		}
		if out.Columns[col].Type == dataset.TypeObject && value.IsNumber() {
			value = dataset.String(value.Format(dataset.TypeObject))
		}
		for _, r := range rows {
			out.Rows[r][col] = value
		}
		out.Retype(col)

		results[k].Applied = count
		a.logger.WithFields(logrus.Fields{
			"column": spec.Column,
			"type":   spec.Kind,
			"rows":   count,
		}).Info("Injected anomalies")
	}

	return out, results
}
