package app

import (
	"context"
	"errors"
	"testing"

	"github.com/kevin07696/checkout-reconciler/internal/config"
	"github.com/kevin07696/checkout-reconciler/internal/domain/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeProvider struct {
	values map[string]string
	calls  []string
}

func (f *fakeProvider) GetSecret(_ context.Context, path string) (*ports.Secret, error) {
	f.calls = append(f.calls, path)
	v, ok := f.values[path]
	if !ok {
		return nil, errors.New("secret not found")
	}
	return &ports.Secret{Value: v}, nil
}

func gatewayConfig() config.GatewayConfig {
	return config.GatewayConfig{
		APIKeyPath:    "checkout/kashier-api-key",
		SecretKeyPath: "checkout/kashier-secret-key",
	}
}

func TestResolveGatewayKeys_EnvOnly(t *testing.T) {
	gw := gatewayConfig()
	gw.APIKey, gw.SecretKey = "api", "hmac"

	keys, err := ResolveGatewayKeys(context.Background(), gw, nil, zaptest.NewLogger(t))

	require.NoError(t, err)
	assert.Equal(t, GatewayKeys{APIKey: "api", SecretKey: "hmac"}, keys)
}

func TestResolveGatewayKeys_FromProvider(t *testing.T) {
	provider := &fakeProvider{values: map[string]string{
		"checkout/kashier-api-key":    "api-from-store",
		"checkout/kashier-secret-key": "hmac-from-store",
	}}

	keys, err := ResolveGatewayKeys(context.Background(), gatewayConfig(), provider, zaptest.NewLogger(t))

	require.NoError(t, err)
	assert.Equal(t, "api-from-store", keys.APIKey)
	assert.Equal(t, "hmac-from-store", keys.SecretKey)
}

func TestResolveGatewayKeys_EnvOverridesProvider(t *testing.T) {
	gw := gatewayConfig()
	gw.SecretKey = "hmac-env"
	provider := &fakeProvider{values: map[string]string{"checkout/kashier-api-key": "api-from-store"}}

	keys, err := ResolveGatewayKeys(context.Background(), gw, provider, zaptest.NewLogger(t))

	require.NoError(t, err)
	assert.Equal(t, "hmac-env", keys.SecretKey)
	assert.Equal(t, []string{"checkout/kashier-api-key"}, provider.calls)
}

func TestResolveGatewayKeys_ProviderFailure(t *testing.T) {
	_, err := ResolveGatewayKeys(context.Background(), gatewayConfig(), &fakeProvider{}, zaptest.NewLogger(t))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "fetch callback secret")
}

func TestNewSecretProvider(t *testing.T) {
	logger := zaptest.NewLogger(t)

	p, err := NewSecretProvider(context.Background(), config.SecretsConfig{Provider: "env"}, logger)
	require.NoError(t, err)
	assert.Nil(t, p)

	p, err = NewSecretProvider(context.Background(), config.SecretsConfig{Provider: "local", LocalPath: t.TempDir()}, logger)
	require.NoError(t, err)
	assert.NotNil(t, p)

	_, err = NewSecretProvider(context.Background(), config.SecretsConfig{Provider: "gcp"}, logger)
	assert.Error(t, err)
}

func TestBuildNotifier_RejectsEmptyAndUnknownSinks(t *testing.T) {
	a := &App{}
	logger := zaptest.NewLogger(t)

	_, err := a.buildNotifier(context.Background(), config.NotifyConfig{}, logger)
	assert.EqualError(t, err, "no notification sinks configured")

	_, err = a.buildNotifier(context.Background(), config.NotifyConfig{Sinks: []string{"pager"}}, logger)
	assert.Error(t, err)
}

func TestBuildNotifier_KafkaRegistersCloser(t *testing.T) {
	a := &App{}

	n, err := a.buildNotifier(context.Background(), config.NotifyConfig{
		Sinks:        []string{"inbox", "kafka"},
		KafkaBrokers: []string{"localhost:9092"},
		KafkaTopic:   "checkout.notifications",
	}, zaptest.NewLogger(t))

	require.NoError(t, err)
	assert.NotNil(t, n)
	assert.Equal(t, []string{"inbox", "kafka"}, a.Sinks)
	assert.Len(t, a.closers, 1)
	assert.NoError(t, a.Close())
	assert.Empty(t, a.closers)
}
