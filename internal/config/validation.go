package config

import (
	"fmt"
	"strings"
)

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s - %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation error(s):\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// HasErrors returns true if there are any validation errors
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Validate performs comprehensive validation on the configuration
func (c *Config) Validate() error {
	var errors ValidationErrors

	errors = append(errors, c.validateDatabase()...)
	errors = append(errors, c.validateRedis()...)
	errors = append(errors, c.validateLLM()...)
	errors = append(errors, c.validateDataset()...)
	errors = append(errors, c.validateAuth()...)
	errors = append(errors, c.validateServer()...)
	errors = append(errors, c.validateQuery()...)
	errors = append(errors, c.validateVisualization()...)

	if errors.HasErrors() {
		return errors
	}

	return nil
}

func (c *Config) validateDatabase() []ValidationError {
	var errors []ValidationError

	if c.Database.Host == "" {
		errors = append(errors, ValidationError{Field: "Database.Host", Message: "database host is required"})
	}
	if c.Database.Port == "" {
		errors = append(errors, ValidationError{Field: "Database.Port", Message: "database port is required"})
	}
	if c.Database.Database == "" {
		errors = append(errors, ValidationError{Field: "Database.Database", Message: "database name is required"})
	}
	if c.Database.Username == "" {
		errors = append(errors, ValidationError{Field: "Database.Username", Message: "database username is required"})
	}

	return errors
}

func (c *Config) validateRedis() []ValidationError {
	var errors []ValidationError

	if c.Redis.Enabled && c.Redis.Addr == "" {
		errors = append(errors, ValidationError{
			Field:   "Redis.Addr",
			Message: "redis address is required when redis is enabled",
		})
	}

	return errors
}

func (c *Config) validateLLM() []ValidationError {
	var errors []ValidationError

	switch c.LLM.Provider {
	case "openai", "claude":
		if c.LLM.Model == "" {
			errors = append(errors, ValidationError{Field: "LLM.Model", Message: "model is required"})
		}
	case "none":
	default:
		errors = append(errors, ValidationError{
			Field:   "LLM.Provider",
			Message: fmt.Sprintf("invalid provider: %s (must be 'openai', 'claude', or 'none')", c.LLM.Provider),
		})
	}

	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		errors = append(errors, ValidationError{Field: "LLM.Temperature", Message: "temperature must be between 0 and 2"})
	}
	if c.LLM.Timeout <= 0 {
		errors = append(errors, ValidationError{Field: "LLM.Timeout", Message: "completion timeout must be positive"})
	}
	if c.LLM.MaxRetries < 0 {
		errors = append(errors, ValidationError{Field: "LLM.MaxRetries", Message: "max retries must be non-negative"})
	}

	return errors
}

func (c *Config) validateDataset() []ValidationError {
	var errors []ValidationError

	switch c.Dataset.Driver {
	case "postgres":
	case "duckdb":
		if c.Dataset.ParquetPath == "" {
			errors = append(errors, ValidationError{
				Field:   "Dataset.ParquetPath",
				Message: "duckdb backend requires a parquet path",
			})
		}
	default:
		errors = append(errors, ValidationError{
			Field:   "Dataset.Driver",
			Message: fmt.Sprintf("invalid driver: %s (must be 'postgres' or 'duckdb')", c.Dataset.Driver),
		})
	}

	if c.Dataset.ID == "" {
		errors = append(errors, ValidationError{Field: "Dataset.ID", Message: "dataset id is required"})
	}

	return errors
}

func (c *Config) validateAuth() []ValidationError {
	var errors []ValidationError

	if c.Auth.JWTSecret == "" && !c.Auth.AllowAnonymous {
		errors = append(errors, ValidationError{
			Field:   "Auth.JWTSecret",
			Message: "JWT secret is required unless anonymous access is allowed",
		})
	}
	if c.Auth.JWTExpiry <= 0 {
		errors = append(errors, ValidationError{Field: "Auth.JWTExpiry", Message: "JWT expiry must be positive"})
	}
	if c.Auth.RateLimit < 0 {
		errors = append(errors, ValidationError{Field: "Auth.RateLimit", Message: "rate limit must be non-negative"})
	}

	return errors
}

func (c *Config) validateServer() []ValidationError {
	var errors []ValidationError

	if c.Server.Port == "" {
		errors = append(errors, ValidationError{Field: "Server.Port", Message: "server port is required"})
	}

	switch c.Server.GinMode {
	case "debug", "release", "test":
	default:
		errors = append(errors, ValidationError{
			Field:   "Server.GinMode",
			Message: fmt.Sprintf("invalid gin mode: %s (must be 'debug', 'release', or 'test')", c.Server.GinMode),
		})
	}

	switch strings.ToLower(c.Server.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		errors = append(errors, ValidationError{
			Field:   "Server.LogLevel",
			Message: fmt.Sprintf("invalid log level: %s", c.Server.LogLevel),
		})
	}

	return errors
}

func (c *Config) validateQuery() []ValidationError {
	var errors []ValidationError

	if c.Query.Timeout <= 0 {
		errors = append(errors, ValidationError{Field: "Query.Timeout", Message: "query timeout must be positive"})
	}
	if c.Query.TranslateTimeout <= 0 {
		errors = append(errors, ValidationError{Field: "Query.TranslateTimeout", Message: "translate timeout must be positive"})
	}
	if c.Query.CacheTTL < 0 {
		errors = append(errors, ValidationError{Field: "Query.CacheTTL", Message: "cache TTL must be non-negative"})
	}
	if c.Query.MaxSQLLength <= 0 {
		errors = append(errors, ValidationError{Field: "Query.MaxSQLLength", Message: "max SQL length must be positive"})
	}
	if c.Query.DefaultLimit <= 0 {
		errors = append(errors, ValidationError{Field: "Query.DefaultLimit", Message: "default row limit must be positive"})
	}
	if c.Query.FewShotExamples < 0 {
		errors = append(errors, ValidationError{Field: "Query.FewShotExamples", Message: "few-shot example count must be non-negative"})
	}

	return errors
}

func (c *Config) validateVisualization() []ValidationError {
	var errors []ValidationError

	if !c.Visualization.Enabled {
		return errors
	}
	if c.Visualization.MaxRows <= 0 {
		errors = append(errors, ValidationError{Field: "Visualization.MaxRows", Message: "max rows must be positive"})
	}
	if c.Visualization.MaxColumns <= 0 {
		errors = append(errors, ValidationError{Field: "Visualization.MaxColumns", Message: "max columns must be positive"})
	}
	if c.Visualization.InsightsTimeout <= 0 {
		errors = append(errors, ValidationError{Field: "Visualization.InsightsTimeout", Message: "insights timeout must be positive"})
	}
	if c.Visualization.UseLLM && c.Visualization.SelectionTimeout <= 0 {
		errors = append(errors, ValidationError{Field: "Visualization.SelectionTimeout", Message: "chart selection timeout must be positive"})
	}

	return errors
}

// ValidateProduction performs additional validation for production environments
// It checks for insecure default values that should not be used in production
func (c *Config) ValidateProduction() error {
	var errors ValidationErrors

	if c.Database.Password == "" || c.Database.Password == "changeme" {
		errors = append(errors, ValidationError{
			Field:   "Database.Password",
			Message: "production deployment must not use default or empty database password",
		})
	}

	if c.Redis.Enabled && (c.Redis.Password == "" || c.Redis.Password == "changeme") {
		errors = append(errors, ValidationError{
			Field:   "Redis.Password",
			Message: "production deployment must not use default or empty Redis password",
		})
	}

	if len(c.Auth.JWTSecret) < 32 {
		errors = append(errors, ValidationError{
			Field:   "Auth.JWTSecret",
			Message: "JWT secret should be at least 32 characters for production use",
		})
	}

	if c.Auth.AllowAnonymous {
		errors = append(errors, ValidationError{
			Field:   "Auth.AllowAnonymous",
			Message: "production deployment should not allow anonymous access",
		})
	}

	if !c.LLM.Enabled() {
		errors = append(errors, ValidationError{
			Field:   "LLM.APIKey",
			Message: "production deployment requires a completion provider API key",
		})
	}

	if c.Server.GinMode != "release" {
		errors = append(errors, ValidationError{
			Field:   "Server.GinMode",
			Message: "production deployment should use 'release' mode",
		})
	}

	if errors.HasErrors() {
		return errors
	}

	return nil
}

// IsProduction determines if the current environment is production
// based on the GinMode setting
func (c *Config) IsProduction() bool {
	return c.Server.GinMode == "release"
}

// ValidateWithContext validates configuration and runs production checks if appropriate
func (c *Config) ValidateWithContext() error {
	if err := c.Validate(); err != nil {
		return err
	}

	if c.IsProduction() {
		if err := c.ValidateProduction(); err != nil {
			return fmt.Errorf("production validation failed: %w", err)
		}
	}

	return nil
}
