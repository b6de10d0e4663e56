// Package errors provides enhanced error types with helpful context and suggestions
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// ErrorCode represents a unique error identifier
type ErrorCode string

const (
	// Pipeline errors
	ErrCodeEmptyInput      ErrorCode = "EMPTY_INPUT"
	ErrCodeConfiguration   ErrorCode = "CONFIGURATION_ERROR"
	ErrCodeTranslation     ErrorCode = "TRANSLATION_FAILED"
	ErrCodeUnsafeSQL       ErrorCode = "UNSAFE_SQL"
	ErrCodeExecution       ErrorCode = "EXECUTION_FAILED"
	ErrCodeProfiling       ErrorCode = "PROFILING_FAILED"
	ErrCodeChartGeneration ErrorCode = "CHART_GENERATION_FAILED"

	// Dataset errors
	ErrCodeDatasetNotFound ErrorCode = "DATASET_NOT_FOUND"
	ErrCodeUnknownTool     ErrorCode = "UNKNOWN_TOOL"
	ErrCodeDatabaseQuery   ErrorCode = "DATABASE_QUERY_FAILED"

	// Authentication errors
	ErrCodeInvalidCredentials ErrorCode = "INVALID_CREDENTIALS"
	ErrCodeTokenCreation      ErrorCode = "TOKEN_CREATION_FAILED"
	ErrCodeNotAuthenticated   ErrorCode = "NOT_AUTHENTICATED"
	ErrCodeRateLimited        ErrorCode = "RATE_LIMITED"

	// Input validation errors
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"

	// Cache errors
	ErrCodeCacheRead  ErrorCode = "CACHE_READ_FAILED"
	ErrCodeCacheWrite ErrorCode = "CACHE_WRITE_FAILED"
)

// EnhancedError represents an error with additional context and helpful information
type EnhancedError struct {
	Code       ErrorCode              `json:"code"`
	Message    string                 `json:"message"`
	Details    string                 `json:"details,omitempty"`
	Suggestion string                 `json:"suggestion,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
	Cause      error                  `json:"-"`
}

// Error implements the error interface
func (e *EnhancedError) Error() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("[%s] %s", e.Code, e.Message))
	if e.Details != "" {
		sb.WriteString(fmt.Sprintf(": %s", e.Details))
	}
	if e.Cause != nil {
		sb.WriteString(fmt.Sprintf(" (cause: %v)", e.Cause))
	}
	return sb.String()
}

// Unwrap returns the underlying error for error chain unwrapping
func (e *EnhancedError) Unwrap() error {
	return e.Cause
}

// UserMessage returns the message shown to API callers
func (e *EnhancedError) UserMessage() string {
	if e.Details == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Message, e.Details)
}

// New creates a new EnhancedError
func New(code ErrorCode, message string) *EnhancedError {
	return &EnhancedError{
		Code:     code,
		Message:  message,
		Metadata: make(map[string]interface{}),
	}
}

// Wrap wraps an existing error with enhanced context
func Wrap(err error, code ErrorCode, message string) *EnhancedError {
	return &EnhancedError{
		Code:     code,
		Message:  message,
		Cause:    err,
		Metadata: make(map[string]interface{}),
	}
}

// WithDetails adds detailed information about the error
func (e *EnhancedError) WithDetails(details string) *EnhancedError {
	e.Details = details
	return e
}

// WithSuggestion adds a suggestion on how to fix the error
func (e *EnhancedError) WithSuggestion(suggestion string) *EnhancedError {
	e.Suggestion = suggestion
	return e
}

// WithMetadata adds additional metadata to the error
func (e *EnhancedError) WithMetadata(key string, value interface{}) *EnhancedError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

// CodeOf returns the code of the first EnhancedError in err's chain, or "".
func CodeOf(err error) ErrorCode {
	var enhanced *EnhancedError
	if stderrors.As(err, &enhanced) {
		return enhanced.Code
	}
	return ""
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code ErrorCode) bool {
	return CodeOf(err) == code
}

// NewEmptyInputError is returned when the user supplied no query text
func NewEmptyInputError(field string) *EnhancedError {
	return New(ErrCodeEmptyInput, fmt.Sprintf("Parameter '%s' is required", field)).
		WithSuggestion("Ask a question about the transactions, for example: 'total amount by bank last month'")
}

// NewConfigurationError creates an error for missing credentials or settings
func NewConfigurationError(setting string, reason string) *EnhancedError {
	return New(ErrCodeConfiguration, "Service is not configured").
		WithDetails(fmt.Sprintf("%s: %s", setting, reason)).
		WithSuggestion("Set the missing value in the environment or secrets file and restart the service.").
		WithMetadata("setting", setting)
}

// NewTranslationError creates an error for completion service failures during SQL generation
func NewTranslationError(err error) *EnhancedError {
	return Wrap(err, ErrCodeTranslation, "Failed to translate query to SQL").
		WithDetails("The language model did not return a usable answer").
		WithSuggestion("This is typically a temporary issue. Please try your query again in a moment.").
		WithMetadata("retryable", true)
}

// NewUninterpretableQueryError is returned when the model answer holds no SQL
func NewUninterpretableQueryError(raw string) *EnhancedError {
	return New(ErrCodeTranslation, "Could not interpret query").
		WithSuggestion("Try rephrasing your question to mention the fields you are interested in, such as bank, merchant, city or amount.").
		WithMetadata("raw_response_length", len(raw))
}

// NewUnsafeSQLError creates an error for safety validator rejections
func NewUnsafeSQLError(rule string, reason string, sql string) *EnhancedError {
	return New(ErrCodeUnsafeSQL, "Unsafe SQL").
		WithDetails(reason).
		WithSuggestion("Only single read-only SELECT statements can be executed.").
		WithMetadata("rule", rule).
		WithMetadata("sql", sql)
}

// NewExecutionError creates an error for backend query failures
func NewExecutionError(err error) *EnhancedError {
	return Wrap(err, ErrCodeExecution, "Query execution failed").
		WithDetails(err.Error())
}

// NewProfilingError creates an error for profiling failures
func NewProfilingError(err error) *EnhancedError {
	return Wrap(err, ErrCodeProfiling, "Failed to profile result set")
}

// NewChartGenerationError creates an error for chart rendering failures
func NewChartGenerationError(err error, family string) *EnhancedError {
	return Wrap(err, ErrCodeChartGeneration, "Failed to generate chart").
		WithDetails(fmt.Sprintf("chart type %s", family)).
		WithMetadata("chart_type", family)
}

// NewDatasetNotFoundError creates an error for unknown or inactive dataset connections
func NewDatasetNotFoundError(id string) *EnhancedError {
	return New(ErrCodeDatasetNotFound, "Database connection not found").
		WithDetails(fmt.Sprintf("No active dataset with id: %s", id)).
		WithSuggestion("Use the /api/v1/datasets endpoint to see all available datasets.").
		WithMetadata("dataset_id", id)
}

// NewUnknownToolError creates an error for unsupported tool names
func NewUnknownToolError(name string) *EnhancedError {
	return New(ErrCodeUnknownTool, "Unknown tool").
		WithDetails(fmt.Sprintf("Tool '%s' is not supported", name)).
		WithSuggestion("Supported tools are list_tables, table_info and run_query.")
}

// NewInvalidCredentialsError creates an error for authentication failures
func NewInvalidCredentialsError() *EnhancedError {
	return New(ErrCodeInvalidCredentials, "Invalid username or password").
		WithDetails("Authentication failed with the provided credentials")
}

// NewTokenCreationError creates an error for token creation failures
func NewTokenCreationError(err error) *EnhancedError {
	return Wrap(err, ErrCodeTokenCreation, "Failed to create authentication token").
		WithMetadata("retryable", true)
}

// NewNotAuthenticatedError creates an error for unauthenticated requests
func NewNotAuthenticatedError() *EnhancedError {
	return New(ErrCodeNotAuthenticated, "Authentication required").
		WithDetails("This endpoint requires authentication").
		WithSuggestion("Please log in using the /api/v1/auth/login endpoint, or include a valid API key in the 'X-API-Key' header.")
}

// NewRateLimitedError creates an error for throttled clients
func NewRateLimitedError(retryAfterSeconds int) *EnhancedError {
	return New(ErrCodeRateLimited, "Rate limit exceeded").
		WithDetails(fmt.Sprintf("Retry after %d seconds", retryAfterSeconds)).
		WithMetadata("retry_after", retryAfterSeconds)
}

// NewInvalidInputError creates an error for invalid input
func NewInvalidInputError(field string, reason string) *EnhancedError {
	return New(ErrCodeInvalidInput, "Invalid input").
		WithDetails(fmt.Sprintf("Field '%s' is invalid: %s", field, reason)).
		WithSuggestion("Please check the API documentation for the expected format and try again.")
}

// NewDatabaseQueryError creates an error for internal database failures
func NewDatabaseQueryError(err error, operation string) *EnhancedError {
	return Wrap(err, ErrCodeDatabaseQuery, "Database query failed").
		WithDetails(fmt.Sprintf("Failed to execute database operation: %s", operation)).
		WithMetadata("retryable", true)
}
