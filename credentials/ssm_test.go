package credentials

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubSSM struct {
	responses []func(*ssm.GetParameterInput) (*ssm.GetParameterOutput, error)
	calls     int
	lastInput *ssm.GetParameterInput
}

func (s *stubSSM) GetParameter(ctx context.Context, in *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	s.lastInput = in
	idx := s.calls
	s.calls++
	if idx >= len(s.responses) {
		idx = len(s.responses) - 1
	}
	return s.responses[idx](in)
}

func paramValue(v string) func(*ssm.GetParameterInput) (*ssm.GetParameterOutput, error) {
	return func(*ssm.GetParameterInput) (*ssm.GetParameterOutput, error) {
		return &ssm.GetParameterOutput{
			Parameter: &types.Parameter{Value: aws.String(v)},
		}, nil
	}
}

func paramError(err error) func(*ssm.GetParameterInput) (*ssm.GetParameterOutput, error) {
	return func(*ssm.GetParameterInput) (*ssm.GetParameterOutput, error) {
		return nil, err
	}
}

func newTestStore(stub *stubSSM) *SSMStore {
	return &SSMStore{client: stub, logger: zap.NewNop()}
}

func TestSSMStoreFetchesStageScopedParameter(t *testing.T) {
	stub := &stubSSM{responses: []func(*ssm.GetParameterInput) (*ssm.GetParameterOutput, error){
		paramValue("pem-material"),
	}}
	store := newTestStore(stub)

	v, err := store.GetParameter(context.Background(), "prod", ParamPrivateKey)
	require.NoError(t, err)
	assert.Equal(t, "pem-material", v)

	require.NotNil(t, stub.lastInput)
	assert.Equal(t, "/prod/CloudFrontPrivateKey", aws.ToString(stub.lastInput.Name))
	assert.True(t, aws.ToBool(stub.lastInput.WithDecryption))
}

func TestSSMStoreNotFoundIsNotConfiguredAndNotRetried(t *testing.T) {
	stub := &stubSSM{responses: []func(*ssm.GetParameterInput) (*ssm.GetParameterOutput, error){
		paramError(&types.ParameterNotFound{}),
	}}
	store := newTestStore(stub)

	_, err := store.GetParameter(context.Background(), "dev", ParamKeyPairID)
	assert.ErrorIs(t, err, ErrNotConfigured)
	assert.Equal(t, 1, stub.calls)
}

func TestSSMStoreRetriesTransientFailures(t *testing.T) {
	stub := &stubSSM{responses: []func(*ssm.GetParameterInput) (*ssm.GetParameterOutput, error){
		paramError(errors.New("throttled")),
		paramValue("pem-material"),
	}}
	store := newTestStore(stub)

	v, err := store.GetParameter(context.Background(), "prod", ParamPrivateKey)
	require.NoError(t, err)
	assert.Equal(t, "pem-material", v)
	assert.Equal(t, 2, stub.calls)
}

func TestSSMStoreGivesUpAsStoreError(t *testing.T) {
	stub := &stubSSM{responses: []func(*ssm.GetParameterInput) (*ssm.GetParameterOutput, error){
		paramError(errors.New("connection reset")),
	}}
	store := newTestStore(stub)

	_, err := store.GetParameter(context.Background(), "prod", ParamPrivateKey)
	var storeErr *StoreError
	require.ErrorAs(t, err, &storeErr)
	assert.Equal(t, "/prod/CloudFrontPrivateKey", storeErr.Param)
	assert.NotErrorIs(t, err, ErrNotConfigured)
	// initial attempt plus the bounded retries
	assert.Equal(t, 1+ssmMaxRetries, stub.calls)
}

func TestSSMStoreEmptyParameterIsNotConfigured(t *testing.T) {
	stub := &stubSSM{responses: []func(*ssm.GetParameterInput) (*ssm.GetParameterOutput, error){
		func(*ssm.GetParameterInput) (*ssm.GetParameterOutput, error) {
			return &ssm.GetParameterOutput{}, nil
		},
	}}
	store := newTestStore(stub)

	_, err := store.GetParameter(context.Background(), "prod", ParamPrivateKey)
	assert.ErrorIs(t, err, ErrNotConfigured)
	assert.Equal(t, 1, stub.calls)
}
