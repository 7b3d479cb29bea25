package synth

import (
	"fmt"
	"strings"
	"time"

	"github.com/inferloop/tabsynth/internal/dataset"
	"github.com/inferloop/tabsynth/internal/privacy"
	"github.com/inferloop/tabsynth/pkg/constants"
	"github.com/inferloop/tabsynth/pkg/errors"
)

// datetimeLayouts are tried in order when detecting datetime columns.
// Fractional seconds are accepted by every layout when parsing.
var datetimeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006/01/02",
	"01/02/2006 15:04:05",
	"01/02/2006",
}

// ColumnMetadata describes how one column is modelled
type ColumnMetadata struct {
	Name   string             `json:"name" toml:"name"`
	SDType string             `json:"sdtype" toml:"sdtype"`
	DType  dataset.ColumnType `json:"dtype" toml:"dtype"`
	PII    bool               `json:"pii" toml:"pii"`
	Format string             `json:"datetime_format,omitempty" toml:"datetime_format,omitempty"`
}

// Metadata is the single-table schema handed to a synthesizer
type Metadata struct {
	Columns []ColumnMetadata `json:"columns" toml:"columns"`
}

// DetectMetadata assigns a semantic type to every column of ds
func DetectMetadata(ds *dataset.Dataset) (*Metadata, error) {
	if ds == nil || ds.Width() == 0 {
		return nil, errors.WrapError(errors.ErrEmptyDataset, errors.ErrorTypeMetadata, errors.CodeDetectionFailed,
			"cannot detect metadata")
	}

	md := &Metadata{Columns: make([]ColumnMetadata, ds.Width())}
	for i, col := range ds.Columns {
		cm := ColumnMetadata{Name: col.Name, DType: col.Type}
		switch {
		case col.Type.IsNumeric():
			cm.SDType = constants.SDTypeNumerical
		default:
			if layout, ok := detectLayout(ds.NonNull(i)); ok {
				cm.SDType = constants.SDTypeDatetime
				cm.Format = layout
			} else {
				cm.SDType = constants.SDTypeCategorical
			}
		}
		md.Columns[i] = cm
	}
	return md, nil
}

// detectLayout returns the first layout that parses every value
func detectLayout(values []dataset.Value) (string, bool) {
	if len(values) == 0 {
		return "", false
	}
	for _, layout := range datetimeLayouts {
		ok := true
		for _, v := range values {
			if v.Kind != dataset.KindString {
				ok = false
				break
			}
			if _, err := time.Parse(layout, strings.TrimSpace(v.Str)); err != nil {
				ok = false
				break
			}
		}
		if ok {
			return layout, true
		}
	}
	return "", false
}

// Column returns the metadata of the named column
func (m *Metadata) Column(name string) (*ColumnMetadata, bool) {
	for i := range m.Columns {
		if m.Columns[i].Name == name {
			return &m.Columns[i], true
		}
	}
	return nil, false
}

// Names returns the column names in schema order
func (m *Metadata) Names() []string {
	names := make([]string, len(m.Columns))
	for i, c := range m.Columns {
		names[i] = c.Name
	}
	return names
}

// UpdateColumn changes the semantic type of a column. Sensitivity tags mark
// the column as PII.
func (m *Metadata) UpdateColumn(name, sdtype string) error {
	col, ok := m.Column(name)
	if !ok {
		return errors.WrapError(errors.ErrColumnNotFound, errors.ErrorTypeMetadata, errors.CodeUnknownColumn,
			fmt.Sprintf("column %q is not in the schema", name))
	}

	switch {
	case sdtype == constants.SDTypeNumerical:
		if !col.DType.IsNumeric() {
			return errors.NewMetadataError(errors.CodeUnknownSDType,
				fmt.Sprintf("column %q holds %s values and cannot be numerical", name, col.DType))
		}
		col.PII = false
	case sdtype == constants.SDTypeDatetime:
		if col.Format == "" {
			return errors.NewMetadataError(errors.CodeUnknownSDType,
				fmt.Sprintf("column %q has no recognised datetime format", name))
		}
		col.PII = false
	case sdtype == constants.SDTypeCategorical:
		col.PII = false
	case privacy.IsTag(sdtype):
		col.PII = true
	default:
		return errors.WrapError(errors.ErrUnknownSDType, errors.ErrorTypeMetadata, errors.CodeUnknownSDType,
			fmt.Sprintf("sdtype %q is not supported", sdtype))
	}

	col.SDType = sdtype
	if sdtype != constants.SDTypeDatetime {
		col.Format = ""
	}
	return nil
}

// Validate checks the schema matches the columns of ds
func (m *Metadata) Validate(ds *dataset.Dataset) error {
	for _, c := range m.Columns {
		if !ds.HasColumn(c.Name) {
			return errors.WrapError(errors.ErrColumnNotFound, errors.ErrorTypeMetadata, errors.CodeUnknownColumn,
				fmt.Sprintf("column %q is missing from the training data", c.Name))
		}
	}
	return nil
}
