package config

import (
	"strings"
	"testing"
	"time"
)

func validConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     "5432",
			Database: "transactions_ai",
			Username: "txn_ai",
			Password: "testpass",
		},
		Redis: RedisConfig{Enabled: true, Addr: "localhost:6379"},
		LLM: LLMConfig{
			Provider: "openai",
			APIKey:   "sk-test",
			Model:    "gpt-4o-mini",
			Timeout:  15 * time.Second,
		},
		Dataset: DatasetConfig{ID: "transactions", Driver: "postgres"},
		Auth: AuthConfig{
			JWTSecret: "test-secret-key",
			JWTExpiry: 24 * time.Hour,
			RateLimit: 60,
		},
		Server: ServerConfig{Port: "8080", GinMode: "debug", LogLevel: "info"},
		Query: QueryConfig{
			Timeout:          30 * time.Second,
			TranslateTimeout: 15 * time.Second,
			CacheTTL:         5 * time.Minute,
			MaxSQLLength:     5000,
			DefaultLimit:     1000,
		},
		Visualization: VisualizationConfig{
			Enabled:         true,
			MaxRows:         10000,
			MaxColumns:      10,
			InsightsTimeout:  5 * time.Second,
			SelectionTimeout: 5 * time.Second,
		},
	}
}

func TestConfigValidation(t *testing.T) {
	t.Run("valid config passes validation", func(t *testing.T) {
		if err := validConfig().Validate(); err != nil {
			t.Errorf("expected no validation errors, got: %v", err)
		}
	})

	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"missing database host", func(c *Config) { c.Database.Host = "" }, "Database.Host"},
		{"redis enabled without address", func(c *Config) { c.Redis.Addr = "" }, "Redis.Addr"},
		{"unknown llm provider", func(c *Config) { c.LLM.Provider = "bard" }, "LLM.Provider"},
		{"temperature out of range", func(c *Config) { c.LLM.Temperature = 3 }, "LLM.Temperature"},
		{"duckdb without parquet", func(c *Config) { c.Dataset.Driver = "duckdb" }, "Dataset.ParquetPath"},
		{"unknown dataset driver", func(c *Config) { c.Dataset.Driver = "mysql" }, "Dataset.Driver"},
		{"missing jwt secret", func(c *Config) { c.Auth.JWTSecret = "" }, "Auth.JWTSecret"},
		{"invalid gin mode", func(c *Config) { c.Server.GinMode = "prod" }, "Server.GinMode"},
		{"invalid log level", func(c *Config) { c.Server.LogLevel = "loud" }, "Server.LogLevel"},
		{"zero row limit", func(c *Config) { c.Query.DefaultLimit = 0 }, "Query.DefaultLimit"},
		{"zero max rows", func(c *Config) { c.Visualization.MaxRows = 0 }, "Visualization.MaxRows"},
		{"zero chart selection timeout", func(c *Config) {
			c.Visualization.UseLLM = true
			c.Visualization.SelectionTimeout = 0
		}, "Visualization.SelectionTimeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.field) {
				t.Errorf("expected error for %s, got: %v", tt.field, err)
			}
		})
	}

	t.Run("anonymous access does not require jwt secret", func(t *testing.T) {
		cfg := validConfig()
		cfg.Auth.JWTSecret = ""
		cfg.Auth.AllowAnonymous = true
		if err := cfg.Validate(); err != nil {
			t.Errorf("expected no error, got: %v", err)
		}
	})

	t.Run("disabled visualization skips its checks", func(t *testing.T) {
		cfg := validConfig()
		cfg.Visualization = VisualizationConfig{}
		if err := cfg.Validate(); err != nil {
			t.Errorf("expected no error, got: %v", err)
		}
	})
}

func TestProductionValidation(t *testing.T) {
	t.Run("development defaults fail production checks", func(t *testing.T) {
		cfg := validConfig()
		err := cfg.ValidateProduction()
		if err == nil {
			t.Fatal("expected production validation errors")
		}

		verrs, ok := err.(ValidationErrors)
		if !ok {
			t.Fatalf("expected ValidationErrors, got %T", err)
		}
		fields := map[string]bool{}
		for _, e := range verrs {
			fields[e.Field] = true
		}
		for _, want := range []string{"Redis.Password", "Auth.JWTSecret", "Server.GinMode"} {
			if !fields[want] {
				t.Errorf("expected production error for %s", want)
			}
		}
	})

	t.Run("hardened config passes", func(t *testing.T) {
		cfg := validConfig()
		cfg.Redis.Password = "redis-strong-password"
		cfg.Auth.JWTSecret = strings.Repeat("x", 40)
		cfg.Server.GinMode = "release"

		if err := cfg.ValidateProduction(); err != nil {
			t.Errorf("expected no errors, got: %v", err)
		}
		if err := cfg.ValidateWithContext(); err != nil {
			t.Errorf("expected no errors, got: %v", err)
		}
	})
}

func TestIsProduction(t *testing.T) {
	cfg := validConfig()
	if cfg.IsProduction() {
		t.Error("debug mode should not be production")
	}
	cfg.Server.GinMode = "release"
	if !cfg.IsProduction() {
		t.Error("release mode should be production")
	}
}
