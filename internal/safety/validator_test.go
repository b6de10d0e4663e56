// internal/safety/validator_test.go
package safety

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestValidate tests the ordered rule evaluation
func TestValidate(t *testing.T) {
	tests := []struct {
		name       string
		sql        string
		wantSafe   bool
		wantRule   Rule
		reasonPart string
	}{
		{
			name:     "simple select",
			sql:      "SELECT * FROM mcp_transactions LIMIT 10",
			wantSafe: true,
		},
		{
			name:     "single trailing semicolon",
			sql:      "SELECT issuer_bank_name, SUM(transaction_amount_kzt) FROM mcp_transactions GROUP BY 1;",
			wantSafe: true,
		},
		{
			name:     "lowercase with surrounding whitespace",
			sql:      "  \n select count(*) from mcp_transactions  ",
			wantSafe: true,
		},
		{
			name:     "keyword as part of identifier is allowed",
			sql:      "SELECT updated_at, created_by FROM mcp_transactions",
			wantSafe: true,
		},
		{
			name:       "drop after select",
			sql:        "SELECT * FROM mcp_transactions; DROP TABLE mcp_transactions;",
			wantRule:   RuleForbiddenKeyword,
			reasonPart: "DROP",
		},
		{
			name:       "forbidden keyword in subquery",
			sql:        "SELECT * FROM (DELETE FROM t RETURNING *) x",
			wantRule:   RuleForbiddenKeyword,
			reasonPart: "DELETE",
		},
		{
			name:       "forbidden keyword inside comment",
			sql:        "SELECT 1 -- truncate later",
			wantRule:   RuleForbiddenKeyword,
			reasonPart: "TRUNCATE",
		},
		{
			name:       "mixed case keyword",
			sql:        "select 1; gRaNt all on t to bob",
			wantRule:   RuleForbiddenKeyword,
			reasonPart: "GRANT",
		},
		{
			name:     "not a select",
			sql:      "WITH x AS (SELECT 1) SELECT * FROM x",
			wantRule: RuleNotSelect,
		},
		{
			name:     "explain is not a select",
			sql:      "EXPLAIN SELECT 1",
			wantRule: RuleNotSelect,
		},
		{
			name:     "two statements",
			sql:      "SELECT 1; SELECT 2;",
			wantRule: RuleMultipleStatements,
		},
		{
			name:     "second statement without terminator",
			sql:      "SELECT 1; SELECT 2",
			wantRule: RuleMultipleStatements,
		},
		{
			name:     "doubled terminator",
			sql:      "SELECT 1;;",
			wantRule: RuleMultipleStatements,
		},
	}

	v := NewValidator(0)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := v.Validate(tt.sql)
			assert.Equal(t, tt.wantSafe, got.Safe)
			if !tt.wantSafe {
				assert.Equal(t, tt.wantRule, got.Rule)
				assert.NotEmpty(t, got.Reason)
				if tt.reasonPart != "" {
					assert.Contains(t, got.Reason, tt.reasonPart)
				}
			}
		})
	}
}

// TestValidate_Length tests the length bound regardless of content
func TestValidate_Length(t *testing.T) {
	v := NewValidator(0)
	assert.Equal(t, DefaultMaxLength, v.MaxLength())

	atLimit := "SELECT " + strings.Repeat("a", DefaultMaxLength-len("SELECT "))
	require.Len(t, atLimit, DefaultMaxLength)
	assert.True(t, v.Validate(atLimit).Safe)

	over := atLimit + "a"
	got := v.Validate(over)
	assert.False(t, got.Safe)
	assert.Equal(t, RuleTooLong, got.Rule)

	assert.Equal(t, RuleTooLong, NewValidator(20).Validate("SELECT * FROM mcp_transactions").Rule)
}

// TestValidate_LengthCountsCharacters tests that multibyte literals count once per character
func TestValidate_LengthCountsCharacters(t *testing.T) {
	v := NewValidator(0)
	prefix := "SELECT * FROM mcp_transactions WHERE merchant_name ILIKE '%"
	suffix := "%'"
	fill := DefaultMaxLength - len(prefix) - len(suffix)

	atLimit := prefix + strings.Repeat("Ж", fill) + suffix
	require.Greater(t, len(atLimit), DefaultMaxLength)
	assert.True(t, v.Validate(atLimit).Safe)
	assert.Empty(t, v.Violations(atLimit))

	over := prefix + strings.Repeat("Ж", fill+1) + suffix
	assert.Equal(t, RuleTooLong, v.Validate(over).Rule)
	require.Len(t, v.Violations(over), 1)
	assert.Equal(t, RuleTooLong, v.Violations(over)[0].Rule)
}

// TestValidate_Idempotent tests that repeated validation yields the same verdict
func TestValidate_Idempotent(t *testing.T) {
	v := NewValidator(0)
	for _, sql := range []string{"SELECT 1", "DROP TABLE x", "SELECT 1; SELECT 2"} {
		first := v.Validate(sql)
		for i := 0; i < 5; i++ {
			assert.Equal(t, first, v.Validate(sql))
		}
	}
}

// TestViolations tests that every failing rule is reported
func TestViolations(t *testing.T) {
	v := NewValidator(0)

	got := v.Violations("SELECT * FROM mcp_transactions; DROP TABLE mcp_transactions;")
	rules := make([]Rule, 0, len(got))
	for _, verdict := range got {
		rules = append(rules, verdict.Rule)
	}
	assert.Contains(t, rules, RuleForbiddenKeyword)
	assert.Contains(t, rules, RuleMultipleStatements)
	assert.NotContains(t, rules, RuleNotSelect)

	assert.Empty(t, v.Violations("SELECT 1;"))

	all := v.Violations("insert into t values (1); delete from t")
	assert.Len(t, all, 4) // INSERT, DELETE, not select, multiple
}

// TestEnsureLimit tests row cap injection
func TestEnsureLimit(t *testing.T) {
	tests := []struct {
		name string
		sql  string
		want string
	}{
		{"adds limit", "SELECT * FROM t", "SELECT * FROM t LIMIT 1000;"},
		{"moves trailing semicolon", "SELECT * FROM t;", "SELECT * FROM t LIMIT 1000;"},
		{"keeps existing limit", "SELECT * FROM t LIMIT 5;", "SELECT * FROM t LIMIT 5;"},
		{"lowercase limit", "select * from t limit 5", "select * from t limit 5"},
		{"column named like limit does not count", "SELECT credit_limit FROM t", "SELECT credit_limit FROM t LIMIT 1000;"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EnsureLimit(tt.sql, 1000))
		})
	}

	limited := EnsureLimit("SELECT 1", 1000)
	assert.True(t, NewValidator(0).Validate(limited).Safe)
}
