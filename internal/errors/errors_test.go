package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestEnhancedError_Error tests the formatted error string
func TestEnhancedError_Error(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	err := Wrap(cause, ErrCodeExecution, "Query execution failed").WithDetails("pq: relation does not exist")

	assert.Contains(t, err.Error(), "[EXECUTION_FAILED]")
	assert.Contains(t, err.Error(), "pq: relation does not exist")
	assert.Contains(t, err.Error(), "connection refused")
	assert.ErrorIs(t, err, cause)
}

// TestCodeOf tests extracting codes from wrapped chains
func TestCodeOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorCode
	}{
		{"direct", NewEmptyInputError("q"), ErrCodeEmptyInput},
		{"wrapped", fmt.Errorf("outer: %w", NewUnsafeSQLError("forbidden_keyword", "DROP", "DROP TABLE x")), ErrCodeUnsafeSQL},
		{"plain", fmt.Errorf("plain"), ""},
		{"nil", nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CodeOf(tt.err))
		})
	}
}

// TestNewUnsafeSQLError tests that the offending SQL is preserved
func TestNewUnsafeSQLError(t *testing.T) {
	err := NewUnsafeSQLError("multiple_statements", "multiple statements are not allowed", "SELECT 1; SELECT 2")

	assert.True(t, HasCode(err, ErrCodeUnsafeSQL))
	assert.Equal(t, "SELECT 1; SELECT 2", err.Metadata["sql"])
	assert.Equal(t, "Unsafe SQL: multiple statements are not allowed", err.UserMessage())
}
