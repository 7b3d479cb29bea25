package dataset

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/sirupsen/logrus"
	"golang.org/x/text/encoding/charmap"

	"github.com/inferloop/tabsynth/pkg/errors"
)

// Supported text encodings
const (
	EncodingUTF8   = "utf-8"
	EncodingLatin1 = "latin-1"
)

const sniffLines = 20

var (
	utf8BOM         = []byte{0xEF, 0xBB, 0xBF}
	sniffCandidates = []rune{',', '\t', ';', '|', ':'}
)

// CSVOptions controls how delimited text is decoded
type CSVOptions struct {
	Encoding string
	// Delimiter is the field separator; zero means detect it from the content.
	Delimiter rune
}

// DefaultCSVOptions returns utf-8 with a comma delimiter
func DefaultCSVOptions() CSVOptions {
	return CSVOptions{Encoding: EncodingUTF8, Delimiter: ','}
}

// ReadCSV parses delimited text with a header row into a Dataset
func ReadCSV(data []byte, opts CSVOptions) (*Dataset, error) {
	text, err := decode(data, opts.Encoding)
	if err != nil {
		return nil, err
	}

	delim := opts.Delimiter
	if delim == 0 {
		delim, err = SniffDelimiter(text)
		if err != nil {
			return nil, err
		}
	}

	r := csv.NewReader(strings.NewReader(text))
	r.Comma = delim
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	header, err := r.Read()
	if err == io.EOF {
		return nil, errors.WrapError(errors.ErrEmptyDataset, errors.ErrorTypeInput, errors.CodeEmptyInput,
			"No columns to parse from file")
	}
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeInput, errors.CodeParseFailed, "failed to read header")
	}

	var records [][]string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.WrapError(err, errors.ErrorTypeInput, errors.CodeParseFailed, "failed to read record")
		}
		if len(rec) > len(header) {
			line, _ := r.FieldPos(0)
			return nil, errors.NewInputError(errors.CodeParseFailed,
				fmt.Sprintf("Error tokenizing data. Expected %d fields in line %d, saw %d", len(header), line, len(rec)))
		}
		records = append(records, rec)
	}

	return FromStrings(header, records), nil
}

// LoadWithFallback reads a CSV trying utf-8 with commas, then latin-1, then
// a sniffed delimiter. The error of the last attempt is returned when all fail.
func LoadWithFallback(data []byte, logger *logrus.Logger) (*Dataset, error) {
	if logger == nil {
		logger = logrus.New()
	}

	ds, err := ReadCSV(data, DefaultCSVOptions())
	if err == nil {
		return ds, nil
	}
	logger.WithError(err).Debug("Default CSV read failed, retrying with latin-1")

	ds, err = ReadCSV(data, CSVOptions{Encoding: EncodingLatin1, Delimiter: ','})
	if err == nil {
		return ds, nil
	}
	logger.WithError(err).Debug("Latin-1 CSV read failed, retrying with delimiter detection")

	encoding := EncodingUTF8
	if !utf8.Valid(bytes.TrimPrefix(data, utf8BOM)) {
		encoding = EncodingLatin1
	}
	return ReadCSV(data, CSVOptions{Encoding: encoding})
}

// SniffDelimiter picks the candidate separator that appears a consistent,
// non-zero number of times on each of the first lines.
func SniffDelimiter(text string) (rune, error) {
	var lines []string
	sc := bufio.NewScanner(strings.NewReader(text))
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for sc.Scan() && len(lines) < sniffLines {
		line := strings.TrimRight(sc.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, line)
	}
	if len(lines) == 0 {
		return 0, errors.NewInputError(errors.CodeParseFailed, "Could not determine delimiter")
	}

	for _, cand := range sniffCandidates {
		want := countOutsideQuotes(lines[0], cand)
		if want == 0 {
			continue
		}
		consistent := true
		for _, line := range lines[1:] {
			if countOutsideQuotes(line, cand) != want {
				consistent = false
				break
			}
		}
		if consistent {
			return cand, nil
		}
	}
	return 0, errors.NewInputError(errors.CodeParseFailed, "Could not determine delimiter")
}

// WriteCSV writes the dataset with a header row, nulls as empty cells
func WriteCSV(w io.Writer, d *Dataset) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(d.ColumnNames()); err != nil {
		return err
	}
	rec := make([]string, d.Width())
	for _, row := range d.Rows {
		for j, v := range row {
			rec[j] = v.Format(d.Columns[j].Type)
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// EncodeCSV renders the dataset as CSV bytes
func EncodeCSV(d *Dataset) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, d); err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeWriteFailed, "failed to encode csv")
	}
	return buf.Bytes(), nil
}

func decode(data []byte, encoding string) (string, error) {
	switch strings.ToLower(strings.ReplaceAll(encoding, "_", "-")) {
	case "", EncodingUTF8, "utf8":
		data = bytes.TrimPrefix(data, utf8BOM)
		if !utf8.Valid(data) {
			return "", errors.WrapError(errors.ErrInvalidEncoding, errors.ErrorTypeInput, errors.CodeDecodeFailed,
				"'utf-8' codec can't decode input")
		}
		return string(data), nil
	case EncodingLatin1, "latin1", "iso-8859-1":
		out, err := charmap.ISO8859_1.NewDecoder().Bytes(data)
		if err != nil {
			return "", errors.WrapError(err, errors.ErrorTypeInput, errors.CodeDecodeFailed, "latin-1 decode failed")
		}
		return string(out), nil
	default:
		return "", errors.NewInputError(errors.CodeDecodeFailed, fmt.Sprintf("unsupported encoding %q", encoding))
	}
}

func countOutsideQuotes(line string, sep rune) int {
	n := 0
	quoted := false
	for _, c := range line {
		switch {
		case c == '"':
			quoted = !quoted
		case c == sep && !quoted:
			n++
		}
	}
	return n
}
