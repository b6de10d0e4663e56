package config

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrSecretNotFound is returned when no provider holds a key
var ErrSecretNotFound = errors.New("secret not found")

// SecretProvider is one source of configuration values
type SecretProvider interface {
	GetSecret(ctx context.Context, key string) (string, error)
	// Name identifies the provider in errors and logs
	Name() string
	IsAvailable(ctx context.Context) bool
}

// ChainProvider asks each provider in order; the first non-empty value wins
type ChainProvider struct {
	providers []SecretProvider
}

// NewChainProvider creates a chain; earlier providers take precedence
func NewChainProvider(providers ...SecretProvider) *ChainProvider {
	return &ChainProvider{providers: providers}
}

// GetSecret returns the first non-empty value in the chain
func (c *ChainProvider) GetSecret(ctx context.Context, key string) (string, error) {
	value, _, err := c.Lookup(ctx, key)
	return value, err
}

// Lookup is GetSecret that also reports which provider answered
func (c *ChainProvider) Lookup(ctx context.Context, key string) (value, source string, err error) {
	var failures []string
	for _, p := range c.providers {
		if !p.IsAvailable(ctx) {
			continue
		}
		v, err := p.GetSecret(ctx, key)
		if err == nil && v != "" {
			return v, p.Name(), nil
		}
		if err != nil && !errors.Is(err, ErrSecretNotFound) {
			failures = append(failures, fmt.Sprintf("%s: %v", p.Name(), err))
		}
	}
	if len(failures) > 0 {
		return "", "", fmt.Errorf("%w: %s (%s)", ErrSecretNotFound, key, strings.Join(failures, "; "))
	}
	return "", "", fmt.Errorf("%w: %s", ErrSecretNotFound, key)
}

// Name lists the chained providers
func (c *ChainProvider) Name() string {
	names := make([]string, len(c.providers))
	for i, p := range c.providers {
		names[i] = p.Name()
	}
	return "chain(" + strings.Join(names, ",") + ")"
}

// IsAvailable reports whether any chained provider is usable
func (c *ChainProvider) IsAvailable(ctx context.Context) bool {
	for _, p := range c.providers {
		if p.IsAvailable(ctx) {
			return true
		}
	}
	return false
}
