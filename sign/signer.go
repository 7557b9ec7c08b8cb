package sign

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"strings"
	"time"
)

// DefaultExpiry is the validity window applied when the caller passes a
// non-positive duration.
const DefaultExpiry = 3600 * time.Second

// Signer issues CloudFront signed URLs for a single key pair. It is stateless
// apart from the parsed key and safe for concurrent use.
type Signer struct {
	key       *rsa.PrivateKey
	keyPairID string
	now       func() time.Time
}

// NewSigner parses privateKeyPEM (PKCS#1 or PKCS#8 RSA) and returns a Signer
// for keyPairID.
func NewSigner(privateKeyPEM string, keyPairID string) (*Signer, error) {
	if keyPairID == "" {
		return nil, errors.New("key pair id is required")
	}
	key, err := ParsePrivateKey(privateKeyPEM)
	if err != nil {
		return nil, err
	}
	return &Signer{key: key, keyPairID: keyPairID, now: time.Now}, nil
}

// WithClock replaces the wall clock. Tests use this to pin expiry.
func (s *Signer) WithClock(now func() time.Time) *Signer {
	s.now = now
	return s
}

// SignURL returns resourceURL with the Policy, Signature and Key-Pair-Id
// query parameters appended, valid for expiresIn from now. The parameter
// order and the URL-safe alphabet are fixed by CloudFront's verifier.
func (s *Signer) SignURL(resourceURL string, expiresIn time.Duration) (string, error) {
	signed, _, err := s.SignURLWithExpiry(resourceURL, expiresIn)
	return signed, err
}

// SignURLWithExpiry is SignURL plus the expiry actually embedded in the
// policy, for callers that report it back and must not drift from the signed
// value.
func (s *Signer) SignURLWithExpiry(resourceURL string, expiresIn time.Duration) (string, int64, error) {
	encPolicy, encSig, expiresAt, err := s.signedParts(resourceURL, expiresIn)
	if err != nil {
		return "", 0, err
	}

	// A resource that already carries a query string gets the signing
	// parameters appended, never a second '?'.
	sep := "?"
	if strings.Contains(resourceURL, "?") {
		sep = "&"
	}

	signed := fmt.Sprintf("%s%sPolicy=%s&Signature=%s&Key-Pair-Id=%s",
		resourceURL, sep, encPolicy, encSig, s.keyPairID)
	return signed, expiresAt, nil
}

// SignCookieValues returns the encoded policy and signature for resourceURL,
// for callers that deliver them as signed cookies instead of query
// parameters.
func (s *Signer) SignCookieValues(resourceURL string, expiresIn time.Duration) (encodedPolicy, encodedSignature string, expiresAt int64, err error) {
	return s.signedParts(resourceURL, expiresIn)
}

func (s *Signer) signedParts(resourceURL string, expiresIn time.Duration) (string, string, int64, error) {
	if err := validateResourceURL(resourceURL); err != nil {
		return "", "", 0, err
	}
	if expiresIn <= 0 {
		expiresIn = DefaultExpiry
	}

	expiresAt := s.now().Add(expiresIn).Unix()
	policy, err := NewCannedPolicy(resourceURL, expiresAt).Bytes()
	if err != nil {
		return "", "", 0, err
	}

	sig, err := s.signPolicy(policy)
	if err != nil {
		return "", "", 0, err
	}

	return awsEncode(policy), awsEncode(sig), expiresAt, nil
}

// KeyPairID returns the id of the key pair this signer was built with.
func (s *Signer) KeyPairID() string {
	return s.keyPairID
}

func (s *Signer) signPolicy(policy []byte) ([]byte, error) {
	digest := sha1.Sum(policy)
	sig, err := rsa.SignPKCS1v15(rand.Reader, s.key, crypto.SHA1, digest[:])
	if err != nil {
		return nil, fmt.Errorf("sign policy: %w", err)
	}
	return sig, nil
}

// SignURL issues a signed URL in one call, for callers that already hold the
// credential pair and do not want to keep a Signer around.
func SignURL(resourceURL, privateKeyPEM, keyPairID string, expiresIn time.Duration) (string, error) {
	signer, err := NewSigner(privateKeyPEM, keyPairID)
	if err != nil {
		return "", err
	}
	return signer.SignURL(resourceURL, expiresIn)
}

// Verify checks encodedSignature against encodedPolicy using the public half
// of the key pair. Any tampering with either value makes this fail.
func Verify(pub *rsa.PublicKey, encodedPolicy, encodedSignature string) error {
	policy, err := awsDecode(encodedPolicy)
	if err != nil {
		return fmt.Errorf("decode policy: %w", err)
	}
	sig, err := awsDecode(encodedSignature)
	if err != nil {
		return fmt.Errorf("decode signature: %w", err)
	}
	digest := sha1.Sum(policy)
	return rsa.VerifyPKCS1v15(pub, crypto.SHA1, digest[:], sig)
}

// DecodePolicy reverses the URL-safe encoding and unmarshals the policy
// document.
func DecodePolicy(encodedPolicy string) (Policy, error) {
	raw, err := awsDecode(encodedPolicy)
	if err != nil {
		return Policy{}, fmt.Errorf("decode policy: %w", err)
	}
	var p Policy
	if err := json.Unmarshal(raw, &p); err != nil {
		return Policy{}, fmt.Errorf("unmarshal policy: %w", err)
	}
	return p, nil
}

// ParsePrivateKey reads a PEM-encoded RSA private key in PKCS#1 or PKCS#8
// form.
func ParsePrivateKey(privateKeyPEM string) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(privateKeyPEM))
	if block == nil {
		return nil, errors.New("no PEM block found in private key")
	}

	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}

	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("private key is %T, want RSA", parsed)
	}
	return key, nil
}
