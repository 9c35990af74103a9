package ports

import "context"

// Secret represents a retrieved secret with metadata
type Secret struct {
	Metadata  map[string]string
	Value     string
	Version   string
	CreatedAt string
}

// SecretProvider reads gateway credentials from a secret store.
// Path format depends on the backend:
//   - AWS: "checkout-reconciler/kashier/secret-key" or a full ARN
//   - Vault: "checkout-reconciler/kashier" under the KV v2 mount
//   - Local: a file path relative to the base directory
type SecretProvider interface {
	GetSecret(ctx context.Context, path string) (*Secret, error)
}
