package privacy

import (
	"net"
	"regexp"
	"testing"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inferloop/tabsynth/internal/dataset"
)

func TestGenerateCoversEveryTag(t *testing.T) {
	gen := NewSyntheticValueGenerator(42, logrus.New())

	for _, tag := range Tags {
		t.Run(string(tag), func(t *testing.T) {
			v, err := gen.Generate(tag)
			require.NoError(t, err)
			assert.False(t, v.IsNull())
		})
	}
}

func TestGenerateFormats(t *testing.T) {
	gen := NewSyntheticValueGenerator(7, logrus.New())

	email, err := gen.Generate(TagEmail)
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[a-z]+$`), email.Str)

	ip, err := gen.Generate(TagIPAddress)
	require.NoError(t, err)
	assert.NotNil(t, net.ParseIP(ip.Str).To4())

	mac, err := gen.Generate(TagMACAddress)
	require.NoError(t, err)
	_, err = net.ParseMAC(mac.Str)
	assert.NoError(t, err)

	id, err := gen.Generate(TagUUID)
	require.NoError(t, err)
	_, err = uuid.Parse(id.Str)
	assert.NoError(t, err)

	lat, err := gen.Generate(TagLatitude)
	require.NoError(t, err)
	assert.Equal(t, dataset.KindNumber, lat.Kind)
	assert.True(t, lat.Num >= -90 && lat.Num <= 90)

	serial, err := gen.Generate(TagID)
	require.NoError(t, err)
	assert.Regexp(t, `^[0-9]{10}$`, serial.Str)
}

func TestGenerateIBANChecksum(t *testing.T) {
	gen := NewSyntheticValueGenerator(99, logrus.New())

	for i := 0; i < 50; i++ {
		v, err := gen.Generate(TagIBAN)
		require.NoError(t, err)
		assert.True(t, ValidIBAN(v.Str), v.Str)
		assert.Equal(t, ibanLayouts[v.Str[:2]], len(v.Str))
	}
}

func TestValidIBAN(t *testing.T) {
	assert.True(t, ValidIBAN("GB82 WEST 1234 5698 7654 32"))
	assert.True(t, ValidIBAN("DE89370400440532013000"))
	assert.False(t, ValidIBAN("DE89370400440532013001"))
	assert.False(t, ValidIBAN("DE8"))
	assert.False(t, ValidIBAN("DE89-3704"))
}

func TestGenerateIsSeeded(t *testing.T) {
	a := NewSyntheticValueGenerator(5, logrus.New())
	b := NewSyntheticValueGenerator(5, logrus.New())

	for _, tag := range []Tag{TagPersonName, TagCity, TagSSN} {
		va, err := a.Generate(tag)
		require.NoError(t, err)
		vb, err := b.Generate(tag)
		require.NoError(t, err)
		assert.Equal(t, va, vb)
	}
}

func TestGenerateUnknownTag(t *testing.T) {
	gen := NewSyntheticValueGenerator(1, logrus.New())
	_, err := gen.Generate(Tag("shoe_size"))
	assert.Error(t, err)
}
