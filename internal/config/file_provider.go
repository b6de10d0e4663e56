package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileProvider retrieves secrets from a directory of mounted secret files,
// one value per file: /var/secrets/openai-api-key, /var/secrets/db_password.
type FileProvider struct {
	secretsPath string
}

// NewFileProvider creates a new file-based secret provider
func NewFileProvider(secretsPath string) *FileProvider {
	return &FileProvider{
		secretsPath: secretsPath,
	}
}

// candidates lists the file names tried for key, hyphenated first.
func candidates(key string) []string {
	lower := strings.ToLower(key)
	return []string{strings.ReplaceAll(lower, "_", "-"), lower}
}

// GetSecret retrieves a secret from a file. A missing file is not an error.
func (f *FileProvider) GetSecret(ctx context.Context, key string) (string, error) {
	if f.secretsPath == "" {
		return "", fmt.Errorf("secrets path not configured")
	}

	for _, name := range candidates(key) {
		path := filepath.Join(f.secretsPath, name)
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return "", fmt.Errorf("failed to read secret file %s: %w", path, err)
		}
		return strings.TrimSpace(string(data)), nil
	}
	return "", nil
}

// Name returns the provider name
func (f *FileProvider) Name() string {
	return "file"
}

// IsAvailable checks if the secrets directory exists
func (f *FileProvider) IsAvailable(ctx context.Context) bool {
	if f.secretsPath == "" {
		return false
	}

	info, err := os.Stat(f.secretsPath)
	if err != nil {
		return false
	}

	return info.IsDir()
}
