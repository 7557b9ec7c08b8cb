package sign

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
)

// Policy is a CloudFront canned policy: a single statement granting access to
// one resource until an absolute epoch second.
type Policy struct {
	Statement []Statement `json:"Statement"`
}

type Statement struct {
	Resource  string    `json:"Resource"`
	Condition Condition `json:"Condition"`
}

type Condition struct {
	DateLessThan EpochTime `json:"DateLessThan"`
}

type EpochTime struct {
	EpochTime int64 `json:"AWS:EpochTime"`
}

// NewCannedPolicy builds the policy for resourceURL valid until expiresAt
// (unix seconds).
func NewCannedPolicy(resourceURL string, expiresAt int64) Policy {
	return Policy{
		Statement: []Statement{
			{
				Resource: resourceURL,
				Condition: Condition{
					DateLessThan: EpochTime{EpochTime: expiresAt},
				},
			},
		},
	}
}

// Bytes serializes the policy to the exact byte sequence that gets signed.
// The same bytes must be encoded into the URL; CloudFront verifies the
// signature against a byte-for-byte re-serialization, so nothing may
// re-marshal the policy between signing and encoding. HTML escaping is off
// because resource URLs routinely contain '&'.
func (p Policy) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(p); err != nil {
		return nil, fmt.Errorf("marshal policy: %w", err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// awsEncode base64-encodes b and applies CloudFront's URL-safe substitution.
// This is not RFC 4648 base64url: '=' maps to '_' and '/' to '~'.
func awsEncode(b []byte) string {
	s := base64.StdEncoding.EncodeToString(b)
	out := make([]byte, len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '+':
			out[i] = '-'
		case '=':
			out[i] = '_'
		case '/':
			out[i] = '~'
		default:
			out[i] = s[i]
		}
	}
	return string(out)
}

// awsDecode reverses awsEncode.
func awsDecode(s string) ([]byte, error) {
	in := make([]byte, len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '-':
			in[i] = '+'
		case '_':
			in[i] = '='
		case '~':
			in[i] = '/'
		default:
			in[i] = s[i]
		}
	}
	return base64.StdEncoding.DecodeString(string(in))
}

// validateResourceURL rejects anything that is not an absolute URL. The
// resource string is embedded verbatim in the policy and returned as the base
// of the signed URL, so a malformed one is a caller bug, not something to
// paper over.
func validateResourceURL(resourceURL string) error {
	u, err := url.Parse(resourceURL)
	if err != nil {
		return fmt.Errorf("invalid resource URL: %w", err)
	}
	if !u.IsAbs() || u.Host == "" {
		return fmt.Errorf("resource URL must be absolute: %q", resourceURL)
	}
	return nil
}
