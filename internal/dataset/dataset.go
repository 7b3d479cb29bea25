// Package dataset holds the in-memory tabular representation shared by every
// stage of the pipeline, plus its CSV and SQL readers and writers.
package dataset

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/inferloop/tabsynth/pkg/errors"
)

// Column describes one column of a dataset
type Column struct {
	Name string     `json:"name" toml:"name"`
	Type ColumnType `json:"type" toml:"type"`
}

// Dataset is an ordered sequence of rows sharing one column set
type Dataset struct {
	Columns []Column
	Rows    [][]Value
}

var (
	// NA strings recognised as null when reading text
	nullMarkers = map[string]bool{
		"": true, "NA": true, "N/A": true, "n/a": true, "NaN": true, "nan": true,
		"-NaN": true, "-nan": true, "null": true, "NULL": true, "None": true,
		"#N/A": true, "#N/A N/A": true, "#NA": true, "<NA>": true,
		"1.#IND": true, "1.#QNAN": true, "-1.#IND": true, "-1.#QNAN": true,
	}

	integerLiteral = regexp.MustCompile(`^[+-]?[0-9]+$`)
)

// IsNullMarker reports whether s is read as a missing value
func IsNullMarker(s string) bool {
	return nullMarkers[s]
}

// New builds a dataset, checking every row has one value per column
func New(columns []Column, rows [][]Value) (*Dataset, error) {
	for i, row := range rows {
		if len(row) != len(columns) {
			return nil, errors.WrapError(errors.ErrInconsistentRows, errors.ErrorTypeInput, errors.CodeParseFailed,
				fmt.Sprintf("row %d has %d values, expected %d", i, len(row), len(columns)))
		}
	}
	return &Dataset{Columns: columns, Rows: rows}, nil
}

// FromStrings builds a dataset from raw text cells, detecting nulls and
// inferring a type per column. Rows shorter than the header are padded with
// nulls; callers reject longer rows before calling.
func FromStrings(header []string, records [][]string) *Dataset {
	names := dedupeNames(header)
	width := len(names)

	columns := make([]Column, width)
	rows := make([][]Value, len(records))
	for i := range rows {
		rows[i] = make([]Value, width)
	}

	for j := 0; j < width; j++ {
		numeric, ints, hasNull := true, true, false
		for _, rec := range records {
			if j >= len(rec) || nullMarkers[rec[j]] {
				hasNull = true
				continue
			}
			cell := strings.TrimSpace(rec[j])
			if _, ok := parseNumber(cell); !ok {
				numeric = false
				break
			}
			if !integerLiteral.MatchString(cell) {
				ints = false
			}
		}

		switch {
		case numeric && ints && !hasNull && len(records) > 0:
			columns[j] = Column{Name: names[j], Type: TypeInt64}
		case numeric && len(records) > 0:
			columns[j] = Column{Name: names[j], Type: TypeFloat64}
		default:
			columns[j] = Column{Name: names[j], Type: TypeObject}
		}

		for i, rec := range records {
			if j >= len(rec) || nullMarkers[rec[j]] {
				rows[i][j] = Null()
				continue
			}
			if columns[j].Type.IsNumeric() {
				f, _ := parseNumber(strings.TrimSpace(rec[j]))
				rows[i][j] = Number(f)
			} else {
				rows[i][j] = String(rec[j])
			}
		}
	}

	return &Dataset{Columns: columns, Rows: rows}
}

// FromValues builds a dataset from typed values and infers column types.
// A column mixing numbers and strings becomes an object column whose numbers
// are rendered as text.
func FromValues(names []string, rows [][]Value) (*Dataset, error) {
	names = dedupeNames(names)
	columns := make([]Column, len(names))
	for j := range names {
		numeric, ints, hasNull, present := true, true, false, false
		for _, row := range rows {
			if j >= len(row) {
				continue
			}
			switch row[j].Kind {
			case KindNull:
				hasNull = true
			case KindNumber:
				present = true
				if !isIntegral(row[j].Num) {
					ints = false
				}
			case KindString:
				present = true
				numeric = false
			}
		}
		switch {
		case numeric && present && ints && !hasNull:
			columns[j] = Column{Name: names[j], Type: TypeInt64}
		case numeric && present:
			columns[j] = Column{Name: names[j], Type: TypeFloat64}
		default:
			columns[j] = Column{Name: names[j], Type: TypeObject}
			for _, row := range rows {
				if j < len(row) && row[j].Kind == KindNumber {
					row[j] = String(row[j].Format(TypeObject))
				}
			}
		}
	}
	return New(columns, rows)
}

// Len returns the number of rows
func (d *Dataset) Len() int {
	return len(d.Rows)
}

// Width returns the number of columns
func (d *Dataset) Width() int {
	return len(d.Columns)
}

// ColumnNames returns the column names in order
func (d *Dataset) ColumnNames() []string {
	names := make([]string, len(d.Columns))
	for i, c := range d.Columns {
		names[i] = c.Name
	}
	return names
}

// ColumnIndex returns the position of the named column, or -1
func (d *Dataset) ColumnIndex(name string) int {
	for i, c := range d.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// HasColumn reports whether the named column exists
func (d *Dataset) HasColumn(name string) bool {
	return d.ColumnIndex(name) >= 0
}

// IsNumeric reports whether column i is numeric
func (d *Dataset) IsNumeric(i int) bool {
	return d.Columns[i].Type.IsNumeric()
}

// NumericColumns returns the indices of numeric columns in order
func (d *Dataset) NumericColumns() []int {
	var idx []int
	for i := range d.Columns {
		if d.IsNumeric(i) {
			idx = append(idx, i)
		}
	}
	return idx
}

// ColumnValues returns every value of column i
func (d *Dataset) ColumnValues(i int) []Value {
	out := make([]Value, len(d.Rows))
	for r, row := range d.Rows {
		out[r] = row[i]
	}
	return out
}

// NonNull returns the non-null values of column i in row order
func (d *Dataset) NonNull(i int) []Value {
	out := make([]Value, 0, len(d.Rows))
	for _, row := range d.Rows {
		if !row[i].IsNull() {
			out = append(out, row[i])
		}
	}
	return out
}

// NullCount returns the number of nulls in column i
func (d *Dataset) NullCount(i int) int {
	n := 0
	for _, row := range d.Rows {
		if row[i].IsNull() {
			n++
		}
	}
	return n
}

// UniqueCount returns the number of distinct non-null values in column i
func (d *Dataset) UniqueCount(i int) int {
	seen := make(map[string]struct{})
	for _, row := range d.Rows {
		if !row[i].IsNull() {
			seen[row[i].Key()] = struct{}{}
		}
	}
	return len(seen)
}

// Floats returns column i as floats with NaN for missing or non-numeric cells
func (d *Dataset) Floats(i int) []float64 {
	out := make([]float64, len(d.Rows))
	for r, row := range d.Rows {
		if row[i].Kind == KindNumber {
			out[r] = row[i].Num
		} else {
			out[r] = nan
		}
	}
	return out
}

// NonNullFloats returns the numeric values of column i, skipping nulls
func (d *Dataset) NonNullFloats(i int) []float64 {
	out := make([]float64, 0, len(d.Rows))
	for _, row := range d.Rows {
		if row[i].Kind == KindNumber {
			out = append(out, row[i].Num)
		}
	}
	return out
}

// Clone returns a deep copy
func (d *Dataset) Clone() *Dataset {
	columns := make([]Column, len(d.Columns))
	copy(columns, d.Columns)
	rows := make([][]Value, len(d.Rows))
	for i, row := range d.Rows {
		rows[i] = make([]Value, len(row))
		copy(rows[i], row)
	}
	return &Dataset{Columns: columns, Rows: rows}
}

// Project returns a dataset with only the named columns, in the given order
func (d *Dataset) Project(names []string) (*Dataset, error) {
	idx := make([]int, len(names))
	columns := make([]Column, len(names))
	for k, name := range names {
		i := d.ColumnIndex(name)
		if i < 0 {
			return nil, errors.WrapError(errors.ErrColumnNotFound, errors.ErrorTypeInput, errors.CodeInvalidSource,
				fmt.Sprintf("column %q not found", name))
		}
		idx[k] = i
		columns[k] = d.Columns[i]
	}
	rows := make([][]Value, len(d.Rows))
	for r, row := range d.Rows {
		out := make([]Value, len(idx))
		for k, i := range idx {
			out[k] = row[i]
		}
		rows[r] = out
	}
	return &Dataset{Columns: columns, Rows: rows}, nil
}

// DropRows returns a copy without the rows at the given indices
func (d *Dataset) DropRows(indices []int) *Dataset {
	drop := make(map[int]bool, len(indices))
	for _, i := range indices {
		drop[i] = true
	}
	out := &Dataset{Columns: append([]Column(nil), d.Columns...)}
	for i, row := range d.Rows {
		if drop[i] {
			continue
		}
		out.Rows = append(out.Rows, append([]Value(nil), row...))
	}
	return out
}

// RowKey returns a canonical key for row r restricted to the given columns
func (d *Dataset) RowKey(r int, cols []int) string {
	var b strings.Builder
	for k, i := range cols {
		if k > 0 {
			b.WriteByte(0x1f)
		}
		b.WriteString(d.Rows[r][i].Key())
	}
	return b.String()
}

// CommonColumns returns the columns of a that also appear in b, in a's order
func CommonColumns(a, b *Dataset) []string {
	var common []string
	for _, c := range a.Columns {
		if b.HasColumn(c.Name) {
			common = append(common, c.Name)
		}
	}
	return common
}

func parseNumber(s string) (float64, bool) {
	if s == "" {
		return 0, false
	}
	lower := strings.ToLower(s)
	if strings.HasPrefix(lower, "0x") || strings.HasPrefix(lower, "-0x") || strings.HasPrefix(lower, "+0x") ||
		strings.Contains(s, "_") {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// dedupeNames suffixes repeated header names with .1, .2, ...
func dedupeNames(names []string) []string {
	out := make([]string, len(names))
	seen := make(map[string]int, len(names))
	for i, name := range names {
		if n, ok := seen[name]; ok {
			candidate := fmt.Sprintf("%s.%d", name, n)
			for {
				if _, taken := seen[candidate]; !taken {
					break
				}
				n++
				candidate = fmt.Sprintf("%s.%d", name, n)
			}
			seen[name] = n + 1
			seen[candidate] = 1
			out[i] = candidate
			continue
		}
		seen[name] = 1
		out[i] = name
	}
	return out
}

// Retype re-derives the type of column i after cells were overwritten. A
// string makes the column object; a null or fraction demotes int64 to float64.
func (d *Dataset) Retype(i int) {
	col := &d.Columns[i]
	if col.Type == TypeObject {
		return
	}

	hasString, demote := false, false
	for _, row := range d.Rows {
		switch row[i].Kind {
		case KindString:
			hasString = true
		case KindNull:
			demote = true
		case KindNumber:
			if !isIntegral(row[i].Num) {
				demote = true
			}
		}
	}

	switch {
	case hasString:
		for _, row := range d.Rows {
			if row[i].Kind == KindNumber {
				row[i] = String(row[i].Format(col.Type))
			}
		}
		col.Type = TypeObject
	case demote:
		col.Type = TypeFloat64
	}
}
