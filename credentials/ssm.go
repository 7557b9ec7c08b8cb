package credentials

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

const (
	ssmCallTimeout = 3 * time.Second
	ssmMaxRetries  = 2
)

// ssmAPI is the slice of the SSM client the store uses.
type ssmAPI interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// SSMStore resolves parameters from AWS Systems Manager Parameter Store under
// stage-scoped paths (/{stage}/{name}), decrypting SecureString values.
// Transient failures are retried with exponential backoff and surfaced as
// *StoreError; a missing parameter maps to ErrNotConfigured without retry.
type SSMStore struct {
	client ssmAPI
	logger *zap.Logger
}

// NewSSMStore builds a store from an AWS SDK config.
func NewSSMStore(awsConf aws.Config, logger *zap.Logger) *SSMStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SSMStore{
		client: ssm.NewFromConfig(awsConf),
		logger: logger,
	}
}

func (s *SSMStore) GetParameter(ctx context.Context, stage string, name string) (string, error) {
	path := fmt.Sprintf("/%s/%s", stage, name)

	var value string
	op := func() error {
		callCtx, cancel := context.WithTimeout(ctx, ssmCallTimeout)
		defer cancel()

		out, err := s.client.GetParameter(callCtx, &ssm.GetParameterInput{
			Name:           aws.String(path),
			WithDecryption: aws.Bool(true),
		})
		if err != nil {
			var notFound *types.ParameterNotFound
			if errors.As(err, &notFound) {
				return backoff.Permanent(ErrNotConfigured)
			}
			s.logger.Warn("ssm get parameter failed, may retry",
				zap.String("parameter", path),
				zap.Error(err))
			return err
		}
		if out.Parameter == nil || out.Parameter.Value == nil {
			return backoff.Permanent(ErrNotConfigured)
		}
		value = *out.Parameter.Value
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), ssmMaxRetries), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		if errors.Is(err, ErrNotConfigured) {
			return "", ErrNotConfigured
		}
		return "", &StoreError{Param: path, Err: err}
	}
	return value, nil
}
