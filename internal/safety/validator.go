// Package safety statically screens generated SQL before execution.
//
// The policy is a keyword deny-list plus structural checks, not a parser:
// keywords inside string literals or comments are still rejected, and a
// semicolon inside a literal counts as a statement separator. Both err
// toward rejection.
package safety

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// DefaultMaxLength is the longest statement accepted, in characters
const DefaultMaxLength = 5000

// Rule identifies which check rejected a statement
type Rule string

const (
	RuleForbiddenKeyword   Rule = "forbidden_keyword"
	RuleNotSelect          Rule = "not_select"
	RuleTooLong            Rule = "too_long"
	RuleMultipleStatements Rule = "multiple_statements"
)

// ForbiddenKeywords are rejected as whole words in any position
var ForbiddenKeywords = []string{
	"UPDATE", "DELETE", "DROP", "INSERT", "ALTER", "CREATE",
	"TRUNCATE", "EXEC", "EXECUTE", "GRANT", "REVOKE",
}

// Verdict is the outcome of validating one statement
type Verdict struct {
	Safe   bool   `json:"is_safe"`
	Rule   Rule   `json:"rule,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// Validator is stateless after construction and safe for concurrent use
type Validator struct {
	maxLength int
	keywords  []string
	patterns  []*regexp.Regexp
}

// NewValidator builds a validator; maxLength <= 0 selects DefaultMaxLength
func NewValidator(maxLength int) *Validator {
	if maxLength <= 0 {
		maxLength = DefaultMaxLength
	}
	v := &Validator{
		maxLength: maxLength,
		keywords:  ForbiddenKeywords,
		patterns:  make([]*regexp.Regexp, len(ForbiddenKeywords)),
	}
	for i, kw := range ForbiddenKeywords {
		v.patterns[i] = regexp.MustCompile(`\b` + kw + `\b`)
	}
	return v
}

// MaxLength returns the configured length bound
func (v *Validator) MaxLength() int {
	return v.maxLength
}

// Validate runs the checks in order and stops at the first failure
func (v *Validator) Validate(sql string) Verdict {
	upper := strings.ToUpper(strings.TrimSpace(sql))

	if kw, found := v.forbiddenKeyword(upper); found {
		return reject(RuleForbiddenKeyword, fmt.Sprintf("forbidden keyword: %s", kw))
	}
	if !strings.HasPrefix(upper, "SELECT") {
		return reject(RuleNotSelect, "only SELECT statements are allowed")
	}
	if utf8.RuneCountInString(sql) > v.maxLength {
		return reject(RuleTooLong, fmt.Sprintf("statement is too long (maximum %d characters)", v.maxLength))
	}
	if multipleStatements(sql) {
		return reject(RuleMultipleStatements, "multiple SQL statements are not allowed")
	}
	return Verdict{Safe: true}
}

// Violations evaluates every rule without short-circuiting. The result is
// empty exactly when Validate reports the statement safe.
func (v *Validator) Violations(sql string) []Verdict {
	upper := strings.ToUpper(strings.TrimSpace(sql))
	var out []Verdict

	for i, p := range v.patterns {
		if p.MatchString(upper) {
			out = append(out, reject(RuleForbiddenKeyword, fmt.Sprintf("forbidden keyword: %s", v.keywords[i])))
		}
	}
	if !strings.HasPrefix(upper, "SELECT") {
		out = append(out, reject(RuleNotSelect, "only SELECT statements are allowed"))
	}
	if utf8.RuneCountInString(sql) > v.maxLength {
		out = append(out, reject(RuleTooLong, fmt.Sprintf("statement is too long (maximum %d characters)", v.maxLength)))
	}
	if multipleStatements(sql) {
		out = append(out, reject(RuleMultipleStatements, "multiple SQL statements are not allowed"))
	}
	return out
}

func (v *Validator) forbiddenKeyword(upper string) (string, bool) {
	for i, p := range v.patterns {
		if p.MatchString(upper) {
			return v.keywords[i], true
		}
	}
	return "", false
}

// multipleStatements reports more than one ';' or any text after the first ';'
func multipleStatements(sql string) bool {
	if strings.Count(sql, ";") > 1 {
		return true
	}
	idx := strings.IndexByte(sql, ';')
	return idx >= 0 && strings.TrimSpace(sql[idx+1:]) != ""
}

func reject(rule Rule, reason string) Verdict {
	return Verdict{Safe: false, Rule: rule, Reason: reason}
}

var limitPattern = regexp.MustCompile(`(?i)\bLIMIT\b`)

// EnsureLimit appends "LIMIT n;" when the statement has no LIMIT keyword.
// A trailing semicolon is moved after the clause.
func EnsureLimit(sql string, n int) string {
	if limitPattern.MatchString(sql) {
		return sql
	}
	trimmed := strings.TrimRight(strings.TrimSpace(sql), ";")
	return fmt.Sprintf("%s LIMIT %d;", strings.TrimSpace(trimmed), n)
}
