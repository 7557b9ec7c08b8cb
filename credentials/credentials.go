package credentials

import (
	"errors"
	"fmt"
	"os"
)

// Parameter store names, scoped under /{stage}/.
const (
	ParamPrivateKey = "CloudFrontPrivateKey"
	ParamKeyPairID  = "CloudFrontKeyPairId"
)

// Local sources.
const (
	EnvPrivateKey = "CLOUDFRONT_PRIVATE_KEY"
	EnvKeyPairID  = "CLOUDFRONT_KEY_PAIR_ID"

	// PrivateKeyFile is the development-only fallback, read from the working
	// directory. There is no file fallback for the key-pair id.
	PrivateKeyFile = "cloudfront-private-key.pem"
)

// ErrNotConfigured means no source had the requested value. It is the "soft
// failure" for unconfigured local environments and is distinct from a store
// that is configured but unreachable.
var ErrNotConfigured = errors.New("signing credentials not configured")

// StoreError wraps a transient parameter-store failure (network, permission,
// throttling). Callers can alert on these; ErrNotConfigured they cannot.
type StoreError struct {
	Param string
	Err   error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("credential store: %s: %v", e.Param, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// Credential is the signing identity: a PEM private key and the id of the
// matching public key registered with the CDN. The key material lives only in
// memory and must never be logged.
type Credential struct {
	PrivateKeyPEM string
	KeyPairID     string
}

// RuntimeMode selects the resolution strategy. It is injected at
// construction so that tests never have to fake the process environment.
type RuntimeMode string

const (
	// ModeManaged resolves exclusively from the remote parameter store.
	ModeManaged RuntimeMode = "managed"
	// ModeLocal resolves from environment variables, then the dev key file.
	ModeLocal RuntimeMode = "local"
)

// DetectRuntimeMode returns ModeManaged when running inside the Lambda
// runtime. Call it once at startup; nothing else inspects the environment at
// resolution time.
func DetectRuntimeMode() RuntimeMode {
	if os.Getenv("AWS_LAMBDA_FUNCTION_NAME") != "" {
		return ModeManaged
	}
	return ModeLocal
}

// ParseRuntimeMode validates a mode string from configuration.
func ParseRuntimeMode(s string) (RuntimeMode, error) {
	switch RuntimeMode(s) {
	case ModeManaged, ModeLocal:
		return RuntimeMode(s), nil
	case "":
		return DetectRuntimeMode(), nil
	default:
		return "", fmt.Errorf("unknown runtime mode %q", s)
	}
}
