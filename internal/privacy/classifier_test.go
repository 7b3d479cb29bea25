package privacy

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inferloop/tabsynth/internal/dataset"
	"github.com/inferloop/tabsynth/pkg/constants"
)

func TestClassifyByName(t *testing.T) {
	tests := []struct {
		name   string
		column string
		sdtype string
		want   Tag
	}{
		{"email", "customer_email", constants.SDTypeCategorical, TagEmail},
		{"mail", "Mailbox", constants.SDTypeCategorical, TagEmail},
		{"phone", "user_phone", constants.SDTypeCategorical, TagPhoneNumber},
		{"ssn", "SSN", constants.SDTypeCategorical, TagSSN},
		{"credit card", "credit_limit_note", constants.SDTypeCategorical, TagCreditCardNumber},
		{"iban", "iban", constants.SDTypeCategorical, TagIBAN},
		{"ip before address", "ip_address", constants.SDTypeCategorical, TagIPAddress},
		{"mac before address", "mac_address", constants.SDTypeCategorical, TagMACAddress},
		{"address", "home_address", constants.SDTypeCategorical, TagAddress},
		{"city", "City", constants.SDTypeCategorical, TagCity},
		{"country", "country_code", constants.SDTypeCategorical, TagCountry},
		{"first name before name", "first_name", constants.SDTypeCategorical, TagFirstName},
		{"last name before name", "last_name", constants.SDTypeCategorical, TagLastName},
		{"generic name", "username", constants.SDTypeCategorical, TagPersonName},
		{"gps", "gps_fix", constants.SDTypeCategorical, TagLatitude},
		{"uuid", "row_uuid", constants.SDTypeCategorical, TagUUID},
		{"vin", "vin", constants.SDTypeCategorical, TagID},
		{"no match", "segment", constants.SDTypeCategorical, TagNone},
	}

	classifier := NewClassifier(logrus.New())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classifier.Classify([]ColumnInput{{Name: tt.column, SDType: tt.sdtype}})
			require.Len(t, got, 1)
			assert.Equal(t, tt.want, got[0].Tag)
			assert.Equal(t, tt.column, got[0].Column)
			if tt.want != TagNone {
				assert.Equal(t, SourceName, got[0].Source)
			}
		})
	}
}

func TestClassifyExemptsNumericAndDatetime(t *testing.T) {
	classifier := NewClassifier(logrus.New())
	got := classifier.Classify([]ColumnInput{
		{Name: "phone_code", SDType: constants.SDTypeNumerical, Samples: []string{"33", "44"}},
		{Name: "email_sent_at", SDType: constants.SDTypeDatetime},
		{Name: "latitude", SDType: constants.SDTypeNumerical},
	})

	for _, c := range got {
		assert.False(t, c.Sensitive(), c.Column)
	}
}

func TestClassifyContentFallback(t *testing.T) {
	tests := []struct {
		name    string
		samples []string
		want    Tag
	}{
		{"ipv4", []string{"192.168.1.1", "10.0.0.5"}, TagIPAddress},
		{"mac colon", []string{"00:1A:2b:3C:4d:5E"}, TagMACAddress},
		{"mac hyphen", []string{"00-1A-2B-3C-4D-5E"}, TagMACAddress},
		{"email", []string{"nobody", "jane@example.org"}, TagEmail},
		{"plain text", []string{"red", "green"}, TagNone},
		{"empty", nil, TagNone},
	}

	classifier := NewClassifier(logrus.New())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classifier.Classify([]ColumnInput{{Name: "field", SDType: constants.SDTypeCategorical, Samples: tt.samples}})
			assert.Equal(t, tt.want, got[0].Tag)
			if tt.want != TagNone {
				assert.Equal(t, SourceContent, got[0].Source)
			}
		})
	}
}

func TestClassifyContentOnlyForCategorical(t *testing.T) {
	classifier := NewClassifier(logrus.New())
	got := classifier.Classify([]ColumnInput{{Name: "field", SDType: constants.SDTypeDatetime, Samples: []string{"10.0.0.1"}}})
	assert.Equal(t, TagNone, got[0].Tag)
}

func TestClassifyContentUsesFirstTenSamples(t *testing.T) {
	samples := make([]string, 0, 11)
	for i := 0; i < 10; i++ {
		samples = append(samples, "plain")
	}
	samples = append(samples, "10.0.0.1")

	classifier := NewClassifier(logrus.New())
	got := classifier.Classify([]ColumnInput{{Name: "field", SDType: constants.SDTypeCategorical, Samples: samples}})
	assert.Equal(t, TagNone, got[0].Tag)
}

func TestSampleValuesSkipsNulls(t *testing.T) {
	ds, err := dataset.ReadCSV([]byte("a,b\nx,\n,1\ny,2\nz,3\n"), dataset.DefaultCSVOptions())
	require.NoError(t, err)

	assert.Equal(t, []string{"1.0", "2.0"}, SampleValues(ds, 1, 2))
	assert.Equal(t, []string{"x", "y", "z"}, SampleValues(ds, 0, 10))
}

func TestIsTag(t *testing.T) {
	assert.True(t, IsTag("iban"))
	assert.True(t, IsTag("person_name"))
	assert.False(t, IsTag(""))
	assert.False(t, IsTag("name"))
}
