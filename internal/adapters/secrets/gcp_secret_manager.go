package secrets

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"github.com/kevin07696/checkout-reconciler/internal/domain/ports"
	"go.uber.org/zap"
)

// gcpSecretsAPI is the subset of *secretmanager.Client the provider uses
type gcpSecretsAPI interface {
	AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error)
	Close() error
}

// GCPSecretManager implements ports.SecretProvider for Google Cloud Secret Manager.
// Credentials come from GOOGLE_APPLICATION_CREDENTIALS or workload identity.
type GCPSecretManager struct {
	client    gcpSecretsAPI
	projectID string
	cache     *secretCache
	logger    *zap.Logger
}

// NewGCPSecretManager creates a Secret Manager client for projectID
func NewGCPSecretManager(ctx context.Context, projectID string, cacheTTL time.Duration, logger *zap.Logger) (*GCPSecretManager, error) {
	if projectID == "" {
		return nil, errors.New("GCP project ID is required")
	}
	client, err := secretmanager.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCP Secret Manager client: %w", err)
	}

	logger.Info("GCP Secret Manager provider initialized",
		zap.String("project_id", projectID),
		zap.Duration("cache_ttl", cacheTTL),
	)
	return newGCPSecretManager(client, projectID, cacheTTL, logger), nil
}

func newGCPSecretManager(client gcpSecretsAPI, projectID string, ttl time.Duration, logger *zap.Logger) *GCPSecretManager {
	return &GCPSecretManager{client: client, projectID: projectID, cache: newSecretCache(ttl), logger: logger}
}

// Close closes the underlying client
func (g *GCPSecretManager) Close() error {
	return g.client.Close()
}

// GetSecret reads the latest version of a secret. Slashes in path are not
// valid in GCP secret ids and are replaced with dashes.
func (g *GCPSecretManager) GetSecret(ctx context.Context, path string) (*ports.Secret, error) {
	if cached := g.cache.get(path); cached != nil {
		return cached, nil
	}

	secretID := strings.ReplaceAll(path, "/", "-")
	name := fmt.Sprintf("projects/%s/secrets/%s/versions/latest", g.projectID, secretID)

	result, err := g.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{Name: name})
	if err != nil {
		g.logger.Error("Failed to access GCP secret",
			zap.String("path", path),
			zap.String("secret_name", name),
			zap.Error(err),
		)
		return nil, fmt.Errorf("failed to access GCP secret %s: %w", path, err)
	}

	secret := &ports.Secret{
		Value:   string(result.GetPayload().GetData()),
		Version: versionFromName(result.GetName()),
		Metadata: map[string]string{
			"gcp_project_id": g.projectID,
			"gcp_secret":     secretID,
		},
	}
	g.cache.set(path, secret)
	return secret, nil
}

// versionFromName extracts the version from projects/*/secrets/*/versions/{version}
func versionFromName(name string) string {
	if i := strings.LastIndex(name, "/versions/"); i >= 0 {
		return name[i+len("/versions/"):]
	}
	return ""
}
