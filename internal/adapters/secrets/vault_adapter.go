package secrets

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	vault "github.com/hashicorp/vault/api"
	"github.com/kevin07696/checkout-reconciler/internal/domain/ports"
	"go.uber.org/zap"
)

// VaultConfig contains configuration for the HashiCorp Vault provider
type VaultConfig struct {
	Address    string
	AuthMethod string // "token" or "approle"
	Token      string
	RoleID     string
	SecretID   string
	Namespace  string
	MountPath  string // KV v2 mount, default "secret"
	CacheTTL   time.Duration
}

// VaultProvider implements ports.SecretProvider over a KV v2 mount
type VaultProvider struct {
	kv     *vault.KVv2
	cache  *secretCache
	logger *zap.Logger
}

// NewVaultProvider creates and authenticates a Vault client
func NewVaultProvider(ctx context.Context, cfg VaultConfig, logger *zap.Logger) (*VaultProvider, error) {
	vaultConfig := vault.DefaultConfig()
	vaultConfig.Address = cfg.Address

	client, err := vault.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create Vault client: %w", err)
	}
	if cfg.Namespace != "" {
		client.SetNamespace(cfg.Namespace)
	}
	if err := authenticateVault(ctx, client, cfg); err != nil {
		return nil, fmt.Errorf("failed to authenticate with Vault: %w", err)
	}

	mount := cfg.MountPath
	if mount == "" {
		mount = "secret"
	}

	logger.Info("Vault provider initialized",
		zap.String("address", cfg.Address),
		zap.String("auth_method", cfg.AuthMethod),
		zap.String("mount_path", mount),
	)
	return &VaultProvider{kv: client.KVv2(mount), cache: newSecretCache(cfg.CacheTTL), logger: logger}, nil
}

func authenticateVault(ctx context.Context, client *vault.Client, cfg VaultConfig) error {
	switch cfg.AuthMethod {
	case "", "token":
		if cfg.Token == "" {
			return errors.New("token is required for token auth")
		}
		client.SetToken(cfg.Token)
		return nil
	case "approle":
		if cfg.RoleID == "" || cfg.SecretID == "" {
			return errors.New("role_id and secret_id are required for AppRole auth")
		}
		resp, err := client.Logical().WriteWithContext(ctx, "auth/approle/login", map[string]interface{}{
			"role_id":   cfg.RoleID,
			"secret_id": cfg.SecretID,
		})
		if err != nil {
			return fmt.Errorf("AppRole login failed: %w", err)
		}
		if resp == nil || resp.Auth == nil {
			return errors.New("AppRole login returned no auth info")
		}
		client.SetToken(resp.Auth.ClientToken)
		return nil
	default:
		return fmt.Errorf("unsupported auth method: %s", cfg.AuthMethod)
	}
}

// GetSecret reads path from the KV v2 mount. The value is taken from the
// "value" key, or the only string field when the secret has one.
func (v *VaultProvider) GetSecret(ctx context.Context, path string) (*ports.Secret, error) {
	if cached := v.cache.get(path); cached != nil {
		return cached, nil
	}

	kvSecret, err := v.kv.Get(ctx, path)
	if err != nil {
		v.logger.Error("Failed to retrieve secret from Vault",
			zap.String("path", path),
			zap.Error(err),
		)
		return nil, fmt.Errorf("failed to read secret from Vault: %w", err)
	}

	value, err := extractValue(kvSecret.Data)
	if err != nil {
		return nil, fmt.Errorf("secret %s: %w", path, err)
	}

	secret := &ports.Secret{Value: value, Metadata: make(map[string]string)}
	if md := kvSecret.VersionMetadata; md != nil {
		secret.Version = strconv.Itoa(md.Version)
		secret.CreatedAt = md.CreatedTime.Format(time.RFC3339)
	}

	v.cache.set(path, secret)
	return secret, nil
}

func extractValue(data map[string]interface{}) (string, error) {
	if s, ok := data["value"].(string); ok {
		return s, nil
	}
	var found []string
	for _, raw := range data {
		if s, ok := raw.(string); ok {
			found = append(found, s)
		}
	}
	if len(found) != 1 {
		return "", errors.New("secret has no \"value\" field")
	}
	return found[0], nil
}
