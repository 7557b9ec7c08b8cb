package cookie

import (
	"net/http"
	"time"

	"github.com/michalmalinowski87/photo-sub013/sign"
)

// CloudFront signed-cookie names. The CDN edge reads exactly these.
const (
	PolicyCookie    = "CloudFront-Policy"
	SignatureCookie = "CloudFront-Signature"
	KeyPairIDCookie = "CloudFront-Key-Pair-Id"
)

// Options controls the attributes shared by the three cookies.
type Options struct {
	// Domain the cookies are scoped to, e.g. ".photos.example.com". Empty
	// leaves the attribute unset.
	Domain string
	// Path defaults to "/".
	Path string
	// Secure defaults to true; only disable for local development over http.
	Insecure bool
}

// New issues the CloudFront signed-cookie triple granting access to
// resourceURL for expiresIn. Gallery pages that embed many private assets use
// cookies so each asset URL does not need its own signature. The resource is
// typically a wildcard, e.g. "https://cdn.example.com/galleries/abc/*".
func New(signer *sign.Signer, resourceURL string, expiresIn time.Duration, opts Options) ([]*http.Cookie, int64, error) {
	policy, signature, expiresAt, err := signer.SignCookieValues(resourceURL, expiresIn)
	if err != nil {
		return nil, 0, err
	}

	path := opts.Path
	if path == "" {
		path = "/"
	}
	expires := time.Unix(expiresAt, 0)

	mk := func(name, value string) *http.Cookie {
		return &http.Cookie{
			Name:     name,
			Value:    value,
			Domain:   opts.Domain,
			Path:     path,
			Expires:  expires,
			HttpOnly: true,
			Secure:   !opts.Insecure,
			SameSite: http.SameSiteLaxMode,
		}
	}

	cookies := []*http.Cookie{
		mk(PolicyCookie, policy),
		mk(SignatureCookie, signature),
		mk(KeyPairIDCookie, signer.KeyPairID()),
	}
	return cookies, expiresAt, nil
}
