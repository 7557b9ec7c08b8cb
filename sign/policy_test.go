package sign

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPolicyBytesCanonical(t *testing.T) {
	policy := NewCannedPolicy("https://cdn.example.com/a.jpg", 1700000000)
	b, err := policy.Bytes()
	require.NoError(t, err)

	assert.Equal(t,
		`{"Statement":[{"Resource":"https://cdn.example.com/a.jpg","Condition":{"DateLessThan":{"AWS:EpochTime":1700000000}}}]}`,
		string(b))
}

func TestPolicyBytesDoesNotEscapeAmpersand(t *testing.T) {
	policy := NewCannedPolicy("https://cdn.example.com/a.jpg?v=2&w=3", 1700000000)
	b, err := policy.Bytes()
	require.NoError(t, err)

	// Default Marshal would emit the ampersand as a unicode escape; signed
	// policy bytes must carry it verbatim.
	htmlEscaped, err := json.Marshal("&")
	require.NoError(t, err)

	assert.Contains(t, string(b), "v=2&w=3")
	assert.NotContains(t, string(b), strings.Trim(string(htmlEscaped), `"`))
}

func TestAwsEncodeAlphabet(t *testing.T) {
	// These bytes produce '+', '/' and '=' padding in standard base64, so all
	// three substitutions are exercised.
	encoded := awsEncode([]byte{0xfb, 0xff, 0xbf, 0x01})
	assert.NotContains(t, encoded, "+")
	assert.NotContains(t, encoded, "=")
	assert.NotContains(t, encoded, "/")

	decoded, err := awsDecode(encoded)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xfb, 0xff, 0xbf, 0x01}, decoded)
}

func TestAwsEncodeRoundTrip(t *testing.T) {
	for _, in := range [][]byte{
		{},
		{0x00},
		{0x01, 0x02},
		[]byte("any policy document at all"),
	} {
		out, err := awsDecode(awsEncode(in))
		require.NoError(t, err)
		assert.Equal(t, in, out)
	}
}

func TestValidateResourceURL(t *testing.T) {
	assert.NoError(t, validateResourceURL("https://cdn.example.com/a.jpg"))
	assert.NoError(t, validateResourceURL("https://cdn.example.com/galleries/abc/*"))
	assert.Error(t, validateResourceURL("not a url"))
	assert.Error(t, validateResourceURL("/relative"))
	assert.Error(t, validateResourceURL("cdn.example.com/a.jpg"))
}
