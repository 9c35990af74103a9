package secrets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kevin07696/checkout-reconciler/internal/domain/ports"
	"go.uber.org/zap"
)

// LocalProvider reads secrets from files under a base directory.
// For development only.
type LocalProvider struct {
	basePath string
	logger   *zap.Logger
}

// NewLocalProvider creates a filesystem secret provider
func NewLocalProvider(basePath string, logger *zap.Logger) *LocalProvider {
	return &LocalProvider{basePath: basePath, logger: logger}
}

// GetSecret reads basePath/path. A JSON file with a "value" field is
// unwrapped; anything else is returned verbatim without the trailing newline.
func (m *LocalProvider) GetSecret(ctx context.Context, secretPath string) (*ports.Secret, error) {
	clean := filepath.Clean("/" + secretPath)
	data, err := os.ReadFile(filepath.Join(m.basePath, clean))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("secret not found: %s", secretPath)
		}
		return nil, fmt.Errorf("failed to read secret: %w", err)
	}

	var wrapped struct {
		Value     *string           `json:"value"`
		Tags      map[string]string `json:"tags"`
		CreatedAt string            `json:"created_at"`
	}
	if err := json.Unmarshal(data, &wrapped); err == nil && wrapped.Value != nil {
		return &ports.Secret{
			Value:     *wrapped.Value,
			Version:   "local",
			Metadata:  wrapped.Tags,
			CreatedAt: wrapped.CreatedAt,
		}, nil
	}

	return &ports.Secret{
		Value:   strings.TrimRight(string(data), "\r\n"),
		Version: "local",
	}, nil
}
