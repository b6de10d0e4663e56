package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	// Database configuration (transactions dataset and query history)
	Database DatabaseConfig

	// Redis configuration
	Redis RedisConfig

	// Completion service configuration
	LLM LLMConfig

	// Dataset backend configuration
	Dataset DatasetConfig

	// Object storage configuration for remote parquet sources
	Storage StorageConfig

	// Authentication configuration
	Auth AuthConfig

	// Server configuration
	Server ServerConfig

	// Query configuration
	Query QueryConfig

	// Chart and insights configuration
	Visualization VisualizationConfig
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	Host     string
	Port     string
	Database string
	Username string
	Password string
	SSLMode  string
}

// DSN renders the lib/pq connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.Username, d.Password, d.Database, d.SSLMode)
}

// URL renders the postgres:// form used by golang-migrate.
func (d DatabaseConfig) URL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		d.Username, d.Password, d.Host, d.Port, d.Database, d.SSLMode)
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
}

// LLMConfig holds completion service configuration
type LLMConfig struct {
	Provider    string // "openai", "claude" or "none"
	APIKey      string
	Model       string
	BaseURL     string
	Temperature float64
	Timeout     time.Duration
	MaxRetries  int
}

// Enabled reports whether a completion provider is configured.
func (l LLMConfig) Enabled() bool {
	return l.Provider != "none" && l.APIKey != ""
}

// DatasetConfig selects where generated SQL is executed
type DatasetConfig struct {
	ID              string
	Driver          string // "postgres" or "duckdb"
	ParquetPath     string
	SchemaFile      string
	ConnectionsFile string
	SampleRows      int
}

// StorageConfig holds S3-compatible object storage settings
type StorageConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string
	UseSSL    bool
}

// AuthConfig holds authentication and authorization configuration
type AuthConfig struct {
	JWTSecret         string
	JWTExpiry         time.Duration
	SessionExpiry     time.Duration
	RateLimit         int
	AllowAnonymous    bool
	AdminUsername     string
	AdminPasswordHash string
	APIKeys           []string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port     string
	GinMode  string
	LogLevel string
}

// QueryConfig holds query processing configuration
type QueryConfig struct {
	Timeout          time.Duration
	TranslateTimeout time.Duration
	CacheTTL         time.Duration
	MaxSQLLength     int
	DefaultLimit     int
	HistoryEnabled   bool
	FewShotExamples  int
}

// VisualizationConfig holds chart selection and narration settings
type VisualizationConfig struct {
	Enabled              bool
	UseLLM               bool
	MaxRows              int
	MaxColumns           int
	EnableKurtosis       bool
	InsightsTimeout      time.Duration
	SelectionTimeout     time.Duration
	RecommendationTTL    time.Duration
	RecommendationModel  string
	InsightsMinRowsForAI int
}

// Loader handles loading configuration from various sources
type Loader struct {
	provider SecretProvider
}

// NewLoader creates a new configuration loader with the given secret provider
func NewLoader(provider SecretProvider) *Loader {
	return &Loader{
		provider: provider,
	}
}

// NewDefaultLoader creates a loader with the default provider chain:
// 1. YAML settings file (TXN_CONFIG_FILE, if set)
// 2. Mounted secret files under /var/secrets
// 3. Environment variables, TXN_ prefixed names first
func NewDefaultLoader() *Loader {
	providers := []SecretProvider{}
	if path := os.Getenv("TXN_CONFIG_FILE"); path != "" {
		providers = append(providers, NewYAMLProvider(path))
	}
	providers = append(providers,
		NewFileProvider("/var/secrets"),
		NewPrefixedEnvProvider("TXN_"),
	)

	return &Loader{
		provider: NewChainProvider(providers...),
	}
}

// Load loads the complete configuration
func (l *Loader) Load(ctx context.Context) (*Config, error) {
	cfg := &Config{}

	cfg.Database = DatabaseConfig{
		Host:     l.getString(ctx, "DB_HOST", "localhost"),
		Port:     l.getString(ctx, "DB_PORT", "5432"),
		Database: l.getString(ctx, "DB_NAME", "transactions_ai"),
		Username: l.getString(ctx, "DB_USER", "txn_ai"),
		Password: l.getString(ctx, "DB_PASSWORD", ""),
		SSLMode:  l.getString(ctx, "DB_SSLMODE", "disable"),
	}

	cfg.Redis = RedisConfig{
		Enabled:  l.getBool(ctx, "REDIS_ENABLED", true),
		Addr:     l.getString(ctx, "REDIS_ADDR", "localhost:6379"),
		Password: l.getString(ctx, "REDIS_PASSWORD", ""),
		DB:       l.getInt(ctx, "REDIS_DB", 0),
	}

	provider := l.getString(ctx, "LLM_PROVIDER", "openai")
	cfg.LLM = LLMConfig{
		Provider:    provider,
		APIKey:      l.getString(ctx, apiKeyName(provider), ""),
		Model:       l.getString(ctx, "LLM_MODEL", defaultModel(provider)),
		BaseURL:     l.getString(ctx, "LLM_BASE_URL", ""),
		Temperature: l.getFloat(ctx, "LLM_TEMPERATURE", 0),
		Timeout:     l.getDuration(ctx, "LLM_TIMEOUT", 15*time.Second),
		MaxRetries:  l.getInt(ctx, "LLM_MAX_RETRIES", 0),
	}

	cfg.Dataset = DatasetConfig{
		ID:              l.getString(ctx, "DATASET_ID", "transactions"),
		Driver:          l.getString(ctx, "DATASET_DRIVER", "postgres"),
		ParquetPath:     l.getString(ctx, "DATASET_PARQUET_PATH", ""),
		SchemaFile:      l.getString(ctx, "DATASET_SCHEMA_FILE", ""),
		ConnectionsFile: l.getString(ctx, "DATASETS_FILE", ""),
		SampleRows:      l.getInt(ctx, "DATASET_SAMPLE_ROWS", 3),
	}

	cfg.Storage = StorageConfig{
		Endpoint:  l.getString(ctx, "S3_ENDPOINT", ""),
		AccessKey: l.getString(ctx, "S3_ACCESS_KEY", ""),
		SecretKey: l.getString(ctx, "S3_SECRET_KEY", ""),
		Region:    l.getString(ctx, "S3_REGION", "us-east-1"),
		UseSSL:    l.getBool(ctx, "S3_USE_SSL", true),
	}

	cfg.Auth = AuthConfig{
		JWTSecret:         l.getString(ctx, "JWT_SECRET", ""),
		JWTExpiry:         l.getDuration(ctx, "JWT_EXPIRY", 24*time.Hour),
		SessionExpiry:     l.getDuration(ctx, "SESSION_EXPIRY", 7*24*time.Hour),
		RateLimit:         l.getInt(ctx, "RATE_LIMIT", 60),
		AllowAnonymous:    l.getBool(ctx, "ALLOW_ANONYMOUS", false),
		AdminUsername:     l.getString(ctx, "ADMIN_USERNAME", "admin"),
		AdminPasswordHash: l.getString(ctx, "ADMIN_PASSWORD_HASH", ""),
		APIKeys:           l.getSlice(ctx, "API_KEYS", []string{}),
	}

	cfg.Server = ServerConfig{
		Port:     l.getString(ctx, "PORT", "8080"),
		GinMode:  l.getString(ctx, "GIN_MODE", "debug"),
		LogLevel: l.getString(ctx, "LOG_LEVEL", "info"),
	}

	cfg.Query = QueryConfig{
		Timeout:          l.getDuration(ctx, "QUERY_TIMEOUT", 30*time.Second),
		TranslateTimeout: l.getDuration(ctx, "TRANSLATE_TIMEOUT", 15*time.Second),
		CacheTTL:         l.getDuration(ctx, "CACHE_TTL", 5*time.Minute),
		MaxSQLLength:     l.getInt(ctx, "MAX_SQL_LENGTH", 5000),
		DefaultLimit:     l.getInt(ctx, "DEFAULT_ROW_LIMIT", 1000),
		HistoryEnabled:   l.getBool(ctx, "HISTORY_ENABLED", true),
		FewShotExamples:  l.getInt(ctx, "FEW_SHOT_EXAMPLES", 3),
	}

	cfg.Visualization = VisualizationConfig{
		Enabled:              l.getBool(ctx, "VISUALIZATION_ENABLED", true),
		UseLLM:               l.getBool(ctx, "VISUALIZATION_USE_LLM", true),
		MaxRows:              l.getInt(ctx, "VISUALIZATION_MAX_ROWS", 10000),
		MaxColumns:           l.getInt(ctx, "VISUALIZATION_MAX_COLUMNS", 10),
		EnableKurtosis:       l.getBool(ctx, "PROFILER_KURTOSIS", true),
		InsightsTimeout:      l.getDuration(ctx, "INSIGHTS_TIMEOUT", 5*time.Second),
		SelectionTimeout:     l.getDuration(ctx, "CHART_SELECTION_TIMEOUT", 5*time.Second),
		RecommendationTTL:    l.getDuration(ctx, "CHART_CACHE_TTL", time.Hour),
		RecommendationModel:  l.getString(ctx, "CHART_MODEL", "gpt-4o-mini"),
		InsightsMinRowsForAI: l.getInt(ctx, "INSIGHTS_MIN_ROWS", 5),
	}

	return cfg, nil
}

func apiKeyName(provider string) string {
	if provider == "claude" {
		return "CLAUDE_API_KEY"
	}
	return "OPENAI_API_KEY"
}

func defaultModel(provider string) string {
	if provider == "claude" {
		return "claude-3-haiku-20240307"
	}
	return "gpt-4o-mini"
}

// Helper methods for retrieving and parsing configuration values

func (l *Loader) getString(ctx context.Context, key, defaultValue string) string {
	value, err := l.provider.GetSecret(ctx, key)
	if err != nil || value == "" {
		return defaultValue
	}
	return value
}

func (l *Loader) getBool(ctx context.Context, key string, defaultValue bool) bool {
	value, err := l.provider.GetSecret(ctx, key)
	if err != nil || value == "" {
		return defaultValue
	}

	b, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return b
}

func (l *Loader) getInt(ctx context.Context, key string, defaultValue int) int {
	value, err := l.provider.GetSecret(ctx, key)
	if err != nil || value == "" {
		return defaultValue
	}

	i, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return i
}

func (l *Loader) getFloat(ctx context.Context, key string, defaultValue float64) float64 {
	value, err := l.provider.GetSecret(ctx, key)
	if err != nil || value == "" {
		return defaultValue
	}

	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}
	return f
}

func (l *Loader) getDuration(ctx context.Context, key string, defaultValue time.Duration) time.Duration {
	value, err := l.provider.GetSecret(ctx, key)
	if err != nil || value == "" {
		return defaultValue
	}

	d, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return d
}

func (l *Loader) getSlice(ctx context.Context, key string, defaultValue []string) []string {
	value, err := l.provider.GetSecret(ctx, key)
	if err != nil || value == "" {
		return defaultValue
	}

	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}

	if len(result) == 0 {
		return defaultValue
	}
	return result
}

// MustLoad loads configuration and panics on error
// Useful for application startup
func (l *Loader) MustLoad(ctx context.Context) *Config {
	cfg, err := l.Load(ctx)
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}
