package credentials

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"go.uber.org/zap"
)

// ParameterStore fetches a single stage-scoped parameter. The SSM-backed
// implementation lives in ssm.go; tests substitute their own.
type ParameterStore interface {
	GetParameter(ctx context.Context, stage string, name string) (string, error)
}

// Resolver resolves signing credentials for a deployment stage. In managed
// mode only the parameter store is consulted; in local mode environment
// variables win, with a working-directory PEM file as the private-key
// fallback for development. The resolver itself never caches; wrap it with
// NewCached when memoization is wanted.
type Resolver struct {
	mode   RuntimeMode
	store  ParameterStore
	logger *zap.Logger

	// overridable in tests
	getenv   func(string) string
	readFile func(string) ([]byte, error)
}

// NewResolver builds a resolver for mode. store may be nil in local mode.
func NewResolver(mode RuntimeMode, store ParameterStore, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		mode:     mode,
		store:    store,
		logger:   logger,
		getenv:   os.Getenv,
		readFile: os.ReadFile,
	}
}

// PrivateKey returns the PEM private key for stage, or ErrNotConfigured when
// no source has one.
func (r *Resolver) PrivateKey(ctx context.Context, stage string) (string, error) {
	if r.mode == ModeManaged {
		return r.fromStore(ctx, stage, ParamPrivateKey)
	}

	if v := r.getenv(EnvPrivateKey); v != "" {
		r.logger.Debug("private key resolved from environment", zap.String("stage", stage))
		return v, nil
	}

	b, err := r.readFile(PrivateKeyFile)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			r.logger.Debug("no dev key file present", zap.String("file", PrivateKeyFile))
			return "", ErrNotConfigured
		}
		return "", fmt.Errorf("read %s: %w", PrivateKeyFile, err)
	}
	r.logger.Debug("private key resolved from dev key file", zap.String("file", PrivateKeyFile))
	return string(b), nil
}

// KeyPairID returns the key-pair id for stage, or ErrNotConfigured. The id is
// non-secret but follows the same store/environment precedence; it has no
// on-disk fallback.
func (r *Resolver) KeyPairID(ctx context.Context, stage string) (string, error) {
	if r.mode == ModeManaged {
		return r.fromStore(ctx, stage, ParamKeyPairID)
	}

	if v := r.getenv(EnvKeyPairID); v != "" {
		r.logger.Debug("key pair id resolved from environment", zap.String("stage", stage))
		return v, nil
	}
	return "", ErrNotConfigured
}

// Resolve returns the full credential pair for stage.
func (r *Resolver) Resolve(ctx context.Context, stage string) (Credential, error) {
	key, err := r.PrivateKey(ctx, stage)
	if err != nil {
		return Credential{}, err
	}
	id, err := r.KeyPairID(ctx, stage)
	if err != nil {
		return Credential{}, err
	}
	return Credential{PrivateKeyPEM: key, KeyPairID: id}, nil
}

func (r *Resolver) fromStore(ctx context.Context, stage string, name string) (string, error) {
	if r.store == nil {
		return "", ErrNotConfigured
	}
	v, err := r.store.GetParameter(ctx, stage, name)
	if err != nil {
		if errors.Is(err, ErrNotConfigured) {
			r.logger.Warn("parameter not configured",
				zap.String("stage", stage),
				zap.String("parameter", name))
			return "", ErrNotConfigured
		}
		r.logger.Error("parameter store failure",
			zap.String("stage", stage),
			zap.String("parameter", name),
			zap.Error(err))
		return "", err
	}
	return v, nil
}
