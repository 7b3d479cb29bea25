package privacy

import (
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/inferloop/tabsynth/internal/dataset"
	"github.com/inferloop/tabsynth/pkg/errors"
)

// ibanLayouts maps country codes to total IBAN length for countries whose
// basic bank account number is purely numeric.
var ibanLayouts = map[string]int{
	"AT": 20,
	"BE": 16,
	"DE": 22,
	"ES": 24,
	"FI": 18,
	"PL": 28,
	"PT": 25,
}

var ibanCountries = []string{"AT", "BE", "DE", "ES", "FI", "PL", "PT"}

// SyntheticValueGenerator produces replacement values for sensitive columns.
// Values are drawn independently of any real data.
type SyntheticValueGenerator struct {
	faker  *gofakeit.Faker
	logger *logrus.Logger
	mu     sync.Mutex
}

// NewSyntheticValueGenerator creates a generator. A zero seed uses the clock.
func NewSyntheticValueGenerator(seed int64, logger *logrus.Logger) *SyntheticValueGenerator {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &SyntheticValueGenerator{
		faker:  gofakeit.New(seed),
		logger: logger,
	}
}

// Generate returns one synthetic value for tag
func (s *SyntheticValueGenerator) Generate(tag Tag) (dataset.Value, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f := s.faker
	switch tag {
	case TagEmail:
		return dataset.String(f.Email()), nil
	case TagPhoneNumber:
		return dataset.String(f.Phone()), nil
	case TagSSN:
		return dataset.String(f.SSN()), nil
	case TagCreditCardNumber:
		return dataset.String(f.CreditCardNumber(nil)), nil
	case TagIBAN:
		return dataset.String(s.iban()), nil
	case TagAddress:
		return dataset.String(f.Address().Address), nil
	case TagCity:
		return dataset.String(f.City()), nil
	case TagCountry:
		return dataset.String(f.Country()), nil
	case TagPersonName:
		return dataset.String(f.Name()), nil
	case TagFirstName:
		return dataset.String(f.FirstName()), nil
	case TagLastName:
		return dataset.String(f.LastName()), nil
	case TagIPAddress:
		return dataset.String(f.IPv4Address()), nil
	case TagMACAddress:
		return dataset.String(f.MacAddress()), nil
	case TagLatitude:
		return dataset.Number(f.Latitude()), nil
	case TagLongitude:
		return dataset.Number(f.Longitude()), nil
	case TagUUID:
		id, err := uuid.NewRandomFromReader(f.Rand)
		if err != nil {
			return dataset.Null(), errors.WrapError(err, errors.ErrorTypePrivacy, errors.CodeInternalError, "failed to generate uuid")
		}
		return dataset.String(id.String()), nil
	case TagID:
		return dataset.String(f.Numerify("##########")), nil
	default:
		return dataset.Null(), errors.NewPrivacyError(errors.CodeUnknownSDType, fmt.Sprintf("no synthetic generator for tag %q", tag))
	}
}

func (s *SyntheticValueGenerator) iban() string {
	country := s.faker.RandomString(ibanCountries)
	bban := s.faker.Numerify(strings.Repeat("#", ibanLayouts[country]-4))
	return country + ibanCheckDigits(country, bban) + bban
}

// ibanCheckDigits computes the ISO 13616 mod-97 check digits
func ibanCheckDigits(country, bban string) string {
	rem := ibanRemainder(bban + country + "00")
	return fmt.Sprintf("%02d", 98-rem)
}

// ValidIBAN reports whether s carries correct mod-97 check digits
func ValidIBAN(s string) bool {
	s = strings.ReplaceAll(strings.ToUpper(s), " ", "")
	if len(s) < 5 {
		return false
	}
	return ibanRemainder(s[4:]+s[:4]) == 1
}

func ibanRemainder(s string) int64 {
	var digits strings.Builder
	for _, c := range s {
		switch {
		case c >= '0' && c <= '9':
			digits.WriteRune(c)
		case c >= 'A' && c <= 'Z':
			fmt.Fprintf(&digits, "%d", c-'A'+10)
		default:
			return -1
		}
	}
	n, ok := new(big.Int).SetString(digits.String(), 10)
	if !ok {
		return -1
	}
	return new(big.Int).Mod(n, big.NewInt(97)).Int64()
}
