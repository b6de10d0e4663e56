package config

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// YAMLProvider reads settings from a single YAML document.
// Keys may be written as the env name (DB_HOST) or lowercased (db_host).
// Nested maps are flattened with underscores, so
//
//	db:
//	  host: localhost
//
// answers DB_HOST.
type YAMLProvider struct {
	path string

	once   sync.Once
	values map[string]string
	err    error
}

// NewYAMLProvider creates a provider backed by the YAML file at path
func NewYAMLProvider(path string) *YAMLProvider {
	return &YAMLProvider{path: path}
}

func (y *YAMLProvider) load() {
	data, err := os.ReadFile(y.path)
	if err != nil {
		y.err = fmt.Errorf("failed to read settings file %s: %w", y.path, err)
		return
	}

	var doc map[string]interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		y.err = fmt.Errorf("failed to parse settings file %s: %w", y.path, err)
		return
	}

	y.values = make(map[string]string)
	flatten("", doc, y.values)
}

func flatten(prefix string, in map[string]interface{}, out map[string]string) {
	for k, v := range in {
		key := strings.ToUpper(k)
		if prefix != "" {
			key = prefix + "_" + key
		}
		switch typed := v.(type) {
		case map[string]interface{}:
			flatten(key, typed, out)
		case []interface{}:
			parts := make([]string, 0, len(typed))
			for _, item := range typed {
				parts = append(parts, fmt.Sprint(item))
			}
			out[key] = strings.Join(parts, ",")
		case nil:
		default:
			out[key] = fmt.Sprint(typed)
		}
	}
}

// GetSecret returns the value stored under key
func (y *YAMLProvider) GetSecret(ctx context.Context, key string) (string, error) {
	y.once.Do(y.load)
	if y.err != nil {
		return "", y.err
	}
	return y.values[strings.ToUpper(key)], nil
}

// Name returns the provider name
func (y *YAMLProvider) Name() string {
	return "yaml"
}

// IsAvailable checks if the settings file exists
func (y *YAMLProvider) IsAvailable(ctx context.Context) bool {
	info, err := os.Stat(y.path)
	return err == nil && !info.IsDir()
}
