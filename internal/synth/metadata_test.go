package synth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inferloop/tabsynth/internal/dataset"
	"github.com/inferloop/tabsynth/pkg/constants"
	"github.com/inferloop/tabsynth/pkg/errors"
)

func loadCSV(t *testing.T, text string) *dataset.Dataset {
	t.Helper()
	ds, err := dataset.ReadCSV([]byte(text), dataset.DefaultCSVOptions())
	require.NoError(t, err)
	return ds
}

func TestDetectMetadata(t *testing.T) {
	ds := loadCSV(t, "age,income,joined,city,mixed\n"+
		"31,1200.5,2021-03-04,Paris,2021-01-01\n"+
		"45,,2022-11-30,Lyon,soon\n")

	md, err := DetectMetadata(ds)
	require.NoError(t, err)
	require.Len(t, md.Columns, 5)

	assert.Equal(t, constants.SDTypeNumerical, md.Columns[0].SDType)
	assert.Equal(t, dataset.TypeInt64, md.Columns[0].DType)
	assert.Equal(t, constants.SDTypeNumerical, md.Columns[1].SDType)
	assert.Equal(t, constants.SDTypeDatetime, md.Columns[2].SDType)
	assert.Equal(t, "2006-01-02", md.Columns[2].Format)
	assert.Equal(t, constants.SDTypeCategorical, md.Columns[3].SDType)
	assert.Equal(t, constants.SDTypeCategorical, md.Columns[4].SDType)
	assert.Equal(t, []string{"age", "income", "joined", "city", "mixed"}, md.Names())
}

func TestDetectMetadataDatetimeLayouts(t *testing.T) {
	tests := []struct {
		value  string
		layout string
	}{
		{"2023-05-01T10:00:00Z", "2006-01-02T15:04:05Z07:00"},
		{"2023-05-01 10:00:00", "2006-01-02 15:04:05"},
		{"05/01/2023", "01/02/2006"},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			md, err := DetectMetadata(loadCSV(t, "ts\n"+tt.value+"\n"))
			require.NoError(t, err)
			assert.Equal(t, constants.SDTypeDatetime, md.Columns[0].SDType)
			assert.Equal(t, tt.layout, md.Columns[0].Format)
		})
	}
}

func TestDetectMetadataEmpty(t *testing.T) {
	_, err := DetectMetadata(&dataset.Dataset{})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeMetadata))
}

func TestUpdateColumn(t *testing.T) {
	md, err := DetectMetadata(loadCSV(t, "email,code,when\na@b.co,1,2020-01-01\n"))
	require.NoError(t, err)

	require.NoError(t, md.UpdateColumn("email", "email"))
	col, ok := md.Column("email")
	require.True(t, ok)
	assert.Equal(t, "email", col.SDType)
	assert.True(t, col.PII)

	require.NoError(t, md.UpdateColumn("email", constants.SDTypeCategorical))
	assert.False(t, col.PII)

	require.NoError(t, md.UpdateColumn("when", constants.SDTypeCategorical))
	when, _ := md.Column("when")
	assert.Empty(t, when.Format)
}

func TestUpdateColumnErrors(t *testing.T) {
	md, err := DetectMetadata(loadCSV(t, "name,code\nAda,1\n"))
	require.NoError(t, err)

	tests := []struct {
		name   string
		column string
		sdtype string
	}{
		{"missing column", "nope", "email"},
		{"unknown sdtype", "name", "shoe_size"},
		{"numerical on text", "name", constants.SDTypeNumerical},
		{"datetime without format", "name", constants.SDTypeDatetime},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := md.UpdateColumn(tt.column, tt.sdtype)
			require.Error(t, err)
			assert.True(t, errors.IsType(err, errors.ErrorTypeMetadata))
		})
	}

	// failed updates leave the schema untouched
	col, _ := md.Column("name")
	assert.Equal(t, constants.SDTypeCategorical, col.SDType)
}

func TestMetadataValidate(t *testing.T) {
	md, err := DetectMetadata(loadCSV(t, "a,b\n1,2\n"))
	require.NoError(t, err)

	assert.NoError(t, md.Validate(loadCSV(t, "b,a,c\n1,2,3\n")))
	assert.Error(t, md.Validate(loadCSV(t, "a\n1\n")))
}
