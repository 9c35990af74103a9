package app

import (
	"context"
	"fmt"

	"github.com/kevin07696/checkout-reconciler/internal/adapters/secrets"
	"github.com/kevin07696/checkout-reconciler/internal/config"
	"github.com/kevin07696/checkout-reconciler/internal/domain/ports"
	"go.uber.org/zap"
)

// GatewayKeys are the Kashier credentials resolved at startup
type GatewayKeys struct {
	APIKey    string // refund API authentication
	SecretKey string // callback HMAC key
}

// NewSecretProvider builds the provider selected by SECRET_MANAGER.
// "env" returns nil: keys come straight from the environment.
func NewSecretProvider(ctx context.Context, cfg config.SecretsConfig, logger *zap.Logger) (ports.SecretProvider, error) {
	switch cfg.Provider {
	case "env", "":
		return nil, nil
	case "local":
		logger.Warn("Using local file secrets - NOT for production use",
			zap.String("path", cfg.LocalPath),
		)
		return secrets.NewLocalProvider(cfg.LocalPath, logger), nil
	case "aws":
		return secrets.NewAWSSecretsManager(ctx, secrets.AWSSecretsManagerConfig{
			Region:   cfg.AWSRegion,
			Profile:  cfg.AWSProfile,
			Endpoint: cfg.AWSEndpoint,
			CacheTTL: cfg.CacheTTL,
		}, logger)
	case "gcp":
		return secrets.NewGCPSecretManager(ctx, cfg.GCPProjectID, cfg.CacheTTL, logger)
	case "vault":
		return secrets.NewVaultProvider(ctx, secrets.VaultConfig{
			Address:    cfg.VaultAddress,
			AuthMethod: cfg.VaultAuth,
			Token:      cfg.VaultToken,
			RoleID:     cfg.VaultRoleID,
			SecretID:   cfg.VaultSecretID,
			Namespace:  cfg.VaultNamespace,
			MountPath:  cfg.VaultMount,
			CacheTTL:   cfg.CacheTTL,
		}, logger)
	default:
		return nil, fmt.Errorf("unknown secret provider %q", cfg.Provider)
	}
}

// ResolveGatewayKeys prefers keys set in the environment and fetches the
// rest from provider. A missing callback key is not an error here: the
// verifier then rejects every callback.
func ResolveGatewayKeys(ctx context.Context, gw config.GatewayConfig, provider ports.SecretProvider, logger *zap.Logger) (GatewayKeys, error) {
	keys := GatewayKeys{APIKey: gw.APIKey, SecretKey: gw.SecretKey}
	if provider == nil {
		return keys, nil
	}

	if keys.SecretKey == "" {
		s, err := provider.GetSecret(ctx, gw.SecretKeyPath)
		if err != nil {
			return keys, fmt.Errorf("fetch callback secret: %w", err)
		}
		keys.SecretKey = s.Value
	}
	if keys.APIKey == "" {
		s, err := provider.GetSecret(ctx, gw.APIKeyPath)
		if err != nil {
			return keys, fmt.Errorf("fetch gateway api key: %w", err)
		}
		keys.APIKey = s.Value
	}

	logger.Info("Gateway credentials resolved",
		zap.Bool("callback_secret", keys.SecretKey != ""),
		zap.Bool("api_key", keys.APIKey != ""),
	)
	return keys, nil
}
