package privacy

import (
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/inferloop/tabsynth/internal/dataset"
	"github.com/inferloop/tabsynth/pkg/constants"
)

// Tag is a sensitivity category. The empty tag means not sensitive.
type Tag string

const (
	TagNone             Tag = ""
	TagEmail            Tag = "email"
	TagPhoneNumber      Tag = "phone_number"
	TagSSN              Tag = "ssn"
	TagCreditCardNumber Tag = "credit_card_number"
	TagIBAN             Tag = "iban"
	TagAddress          Tag = "address"
	TagCity             Tag = "city"
	TagCountry          Tag = "country"
	TagPersonName       Tag = "person_name"
	TagFirstName        Tag = "first_name"
	TagLastName         Tag = "last_name"
	TagIPAddress        Tag = "ip_address"
	TagMACAddress       Tag = "mac_address"
	TagLatitude         Tag = "latitude"
	TagLongitude        Tag = "longitude"
	TagUUID             Tag = "uuid"
	TagID               Tag = "id"
)

// Tags lists every sensitivity tag
var Tags = []Tag{
	TagEmail, TagPhoneNumber, TagSSN, TagCreditCardNumber, TagIBAN, TagAddress,
	TagCity, TagCountry, TagPersonName, TagFirstName, TagLastName, TagIPAddress,
	TagMACAddress, TagLatitude, TagLongitude, TagUUID, TagID,
}

// IsTag reports whether s names a sensitivity tag
func IsTag(s string) bool {
	for _, t := range Tags {
		if string(t) == s {
			return true
		}
	}
	return false
}

// Source records which detection step produced a tag
type Source string

const (
	SourceName    Source = "name"
	SourceContent Source = "content"
)

// NameRule tags a column when its lowercased name matches
type NameRule struct {
	Match func(lowerName string) bool
	Tag   Tag
}

// ContentRule tags a column when any sample value matches
type ContentRule struct {
	Pattern *regexp.Regexp
	Tag     Tag
}

func substring(patterns ...string) func(string) bool {
	return func(name string) bool {
		for _, p := range patterns {
			if strings.Contains(name, p) {
				return true
			}
		}
		return false
	}
}

// DefaultNameRules is evaluated in order; the first match wins, so specific
// patterns precede the generic ones they contain.
var DefaultNameRules = []NameRule{
	{substring("email", "mail"), TagEmail},
	{substring("phone", "tel"), TagPhoneNumber},
	{substring("ssn", "social"), TagSSN},
	{substring("card", "credit"), TagCreditCardNumber},
	{substring("iban"), TagIBAN},
	{substring("ip_address"), TagIPAddress},
	{substring("mac_address"), TagMACAddress},
	{substring("address"), TagAddress},
	{substring("city"), TagCity},
	{substring("country"), TagCountry},
	{substring("first_name"), TagFirstName},
	{substring("last_name"), TagLastName},
	{substring("name"), TagPersonName},
	{substring("gps", "lat"), TagLatitude},
	{substring("lon"), TagLongitude},
	{substring("uuid"), TagUUID},
	{substring("serial", "vin"), TagID},
}

// DefaultContentRules is evaluated in order against each sample value
var DefaultContentRules = []ContentRule{
	{regexp.MustCompile(`^(?:[0-9]{1,3}\.){3}[0-9]{1,3}$`), TagIPAddress},
	{regexp.MustCompile(`^([0-9A-Fa-f]{2}[:-]){5}([0-9A-Fa-f]{2})$`), TagMACAddress},
	{regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`), TagEmail},
}

// ColumnInput is what the classifier knows about one column
type ColumnInput struct {
	Name    string
	SDType  string
	Samples []string
}

// Classification is the verdict for one column
type Classification struct {
	Column string `json:"column"`
	Tag    Tag    `json:"tag"`
	Source Source `json:"source,omitempty"`
}

// Sensitive reports whether the column was tagged
func (c Classification) Sensitive() bool {
	return c.Tag != TagNone
}

// Classifier assigns sensitivity tags to columns
type Classifier struct {
	nameRules    []NameRule
	contentRules []ContentRule
	sampleSize   int
	logger       *logrus.Logger
}

// NewClassifier creates a classifier with the default rule lists
func NewClassifier(logger *logrus.Logger) *Classifier {
	if logger == nil {
		logger = logrus.New()
	}
	return &Classifier{
		nameRules:    DefaultNameRules,
		contentRules: DefaultContentRules,
		sampleSize:   constants.PIISampleValues,
		logger:       logger,
	}
}

// Classify returns one classification per input column, in input order
func (c *Classifier) Classify(columns []ColumnInput) []Classification {
	out := make([]Classification, len(columns))
	for i, col := range columns {
		out[i] = c.classifyColumn(col)
		if out[i].Sensitive() {
			c.logger.WithFields(logrus.Fields{
				"column": col.Name,
				"tag":    out[i].Tag,
				"source": out[i].Source,
			}).Info("Flagged column as PII")
		}
	}
	return out
}

func (c *Classifier) classifyColumn(col ColumnInput) Classification {
	result := Classification{Column: col.Name}

	// numeric and datetime columns keep their statistical treatment
	if col.SDType != constants.SDTypeNumerical && col.SDType != constants.SDTypeDatetime {
		lower := strings.ToLower(col.Name)
		for _, rule := range c.nameRules {
			if rule.Match(lower) {
				result.Tag = rule.Tag
				result.Source = SourceName
				return result
			}
		}
	}

	if col.SDType != constants.SDTypeCategorical {
		return result
	}

	samples := col.Samples
	if len(samples) > c.sampleSize {
		samples = samples[:c.sampleSize]
	}
	for _, v := range samples {
		for _, rule := range c.contentRules {
			if rule.Pattern.MatchString(v) {
				result.Tag = rule.Tag
				result.Source = SourceContent
				return result
			}
		}
	}

	return result
}

// SampleValues returns the first n non-null values of column i as text
func SampleValues(ds *dataset.Dataset, i, n int) []string {
	var out []string
	for _, row := range ds.Rows {
		if len(out) == n {
			break
		}
		if row[i].IsNull() {
			continue
		}
		out = append(out, row[i].Format(ds.Columns[i].Type))
	}
	return out
}
