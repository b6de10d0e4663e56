package config

import (
	"context"
	"os"
)

// EnvProvider retrieves secrets from environment variables
type EnvProvider struct {
	prefix string
}

// NewEnvProvider creates a new environment variable provider
func NewEnvProvider() *EnvProvider {
	return &EnvProvider{}
}

// NewPrefixedEnvProvider looks up prefix+key before falling back to the bare key.
// With prefix "TXN_", DB_HOST resolves TXN_DB_HOST first.
func NewPrefixedEnvProvider(prefix string) *EnvProvider {
	return &EnvProvider{prefix: prefix}
}

// GetSecret retrieves a secret from environment variables
func (e *EnvProvider) GetSecret(ctx context.Context, key string) (string, error) {
	if e.prefix != "" {
		if value, ok := os.LookupEnv(e.prefix + key); ok {
			return value, nil
		}
	}
	return os.Getenv(key), nil
}

// Name returns the provider name
func (e *EnvProvider) Name() string {
	return "env"
}

// IsAvailable always returns true as env vars are always available
func (e *EnvProvider) IsAvailable(ctx context.Context) bool {
	return true
}
