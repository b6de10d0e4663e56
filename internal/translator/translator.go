// Package translator turns a natural language question into a single
// PostgreSQL SELECT statement over the configured schema.
package translator

import (
	"context"
	stderrors "errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/seanankenbruck/transactions-ai/internal/errors"
	"github.com/seanankenbruck/transactions-ai/internal/llm"
	"github.com/seanankenbruck/transactions-ai/internal/observability"
	"github.com/seanankenbruck/transactions-ai/internal/schema"
)

const (
	DefaultTimeout  = 15 * time.Second
	DefaultRowLimit = 1000
)

// Example is a previously answered question used as a few-shot example
type Example struct {
	Question string `json:"question"`
	SQL      string `json:"sql"`
}

// ExampleSource finds past questions similar to the one being translated
type ExampleSource interface {
	SimilarExamples(ctx context.Context, question string, limit int) ([]Example, error)
}

// Config controls prompt construction and the completion call
type Config struct {
	Timeout     time.Duration
	Temperature float64
	RowLimit    int
	MaxExamples int
	Model       string
}

// Translator is safe for concurrent use
type Translator struct {
	client   llm.Client
	schema   *schema.Descriptor
	examples ExampleSource
	config   Config
	logger   *observability.Logger
}

// New creates a translator. A nil client is allowed; Translate then reports a
// configuration error instead of calling out.
func New(client llm.Client, desc *schema.Descriptor, config Config) *Translator {
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	if config.RowLimit <= 0 {
		config.RowLimit = DefaultRowLimit
	}
	if desc == nil {
		desc = schema.Default()
	}
	return &Translator{
		client: client,
		schema: desc,
		config: config,
		logger: observability.NewLogger("translator"),
	}
}

// WithExamples enables few-shot examples from past questions
func (t *Translator) WithExamples(src ExampleSource) *Translator {
	t.examples = src
	return t
}

// WithLogger replaces the component logger
func (t *Translator) WithLogger(logger *observability.Logger) *Translator {
	t.logger = logger
	return t
}

// Schema returns the descriptor prompts are built from
func (t *Translator) Schema() *schema.Descriptor {
	return t.schema
}

// RowLimit returns the default row cap the prompt asks for
func (t *Translator) RowLimit() int {
	return t.config.RowLimit
}

// Translate produces candidate SQL for text. The result is not validated;
// callers pass it through the safety validator before execution.
func (t *Translator) Translate(ctx context.Context, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", errors.NewEmptyInputError("q")
	}
	if t.client == nil {
		return "", errors.NewConfigurationError("LLM_API_KEY", "no completion provider is configured")
	}

	examples := t.similarExamples(ctx, text)
	prompt := t.BuildPrompt(text, examples)

	ctx, cancel := context.WithTimeout(ctx, t.config.Timeout)
	defer cancel()

	resp, err := t.client.Complete(ctx, llm.Request{
		Operation:   "translate",
		Prompt:      prompt,
		Temperature: t.config.Temperature,
		Model:       t.config.Model,
	})
	if err != nil {
		translationErr := errors.NewTranslationError(err)
		if stderrors.Is(err, context.DeadlineExceeded) {
			translationErr = translationErr.
				WithDetails(fmt.Sprintf("The language model did not answer within %s", t.config.Timeout)).
				WithMetadata("timeout", true)
		}
		return "", translationErr
	}

	sql, ok := ExtractSQL(resp.Text)
	if !ok {
		t.logger.Warn(ctx, "Completion held no SQL", map[string]interface{}{
			"response_length": len(resp.Text),
		})
		return "", errors.NewUninterpretableQueryError(resp.Text)
	}

	t.logger.Debug(ctx, "Translated question", map[string]interface{}{
		"examples": len(examples),
		"sql":      sql,
	})
	return sql, nil
}

func (t *Translator) similarExamples(ctx context.Context, text string) []Example {
	if t.examples == nil || t.config.MaxExamples <= 0 {
		return nil
	}
	examples, err := t.examples.SimilarExamples(ctx, text, t.config.MaxExamples)
	if err != nil {
		// examples only improve the prompt
		t.logger.Warn(ctx, "Failed to load similar examples", map[string]interface{}{
			"error": err.Error(),
		})
		return nil
	}
	if len(examples) > t.config.MaxExamples {
		examples = examples[:t.config.MaxExamples]
	}
	return examples
}

// BuildPrompt renders the completion prompt for text
func (t *Translator) BuildPrompt(text string, examples []Example) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Table: %s\n", t.schema.Table))
	if t.schema.Description != "" {
		sb.WriteString(fmt.Sprintf("%s\n", t.schema.Description))
	}
	sb.WriteString("Columns:\n")
	for _, c := range t.schema.Columns {
		sb.WriteString(fmt.Sprintf("- %s (%s", c.Name, c.Type))
		if c.Description != "" {
			sb.WriteString(", " + c.Description)
		}
		if c.Nullable {
			sb.WriteString(", nullable")
		}
		if len(c.Examples) > 0 {
			sb.WriteString(", e.g. '" + strings.Join(c.Examples, "', '") + "'")
		}
		sb.WriteString(")\n")
	}

	sb.WriteString("\nConvert the user's request into a PostgreSQL SELECT statement.\n\nRules:\n")
	sb.WriteString("- SELECT statements only\n")
	sb.WriteString(fmt.Sprintf("- Always add LIMIT %d\n", t.config.RowLimit))
	if ts := t.schema.TimestampColumn(); ts != "" {
		sb.WriteString(fmt.Sprintf("- Use %s for dates\n", ts))
		sb.WriteString(fmt.Sprintf("- For \"last month\" use: WHERE %s >= CURRENT_DATE - INTERVAL '1 month'\n", ts))
	}
	if free := t.schema.FreeTextColumns(); len(free) > 0 {
		sb.WriteString(fmt.Sprintf("- For bank, merchant and other names use ILIKE '%%...%%' partial matching on %s\n",
			strings.Join(free, ", ")))
	}
	sb.WriteString("- Return ONLY the SQL, without explanations\n")

	if len(examples) > 0 {
		sb.WriteString("\nExamples:\n")
		for _, ex := range examples {
			sb.WriteString(fmt.Sprintf("Request: %s\nSQL: %s\n\n", ex.Question, ex.SQL))
		}
	}

	sb.WriteString(fmt.Sprintf("\nUser request: %s\n\nSQL:", text))
	return sb.String()
}

var (
	statementStart = regexp.MustCompile(`(?im)^[ \t]*(SELECT|WITH)\b`)
	paragraphBreak = regexp.MustCompile(`\n[ \t]*\n`)
	// words that continue or follow a statement rather than start prose
	sqlContinuation = regexp.MustCompile(`(?i)^(\(|\)|--|(SELECT|WITH|FROM|WHERE|GROUP|ORDER|HAVING|LIMIT|OFFSET|UNION|EXCEPT|INTERSECT|JOIN|LEFT|RIGHT|INNER|FULL|CROSS|ON|AND|OR|INSERT|UPDATE|DELETE|DROP|ALTER|CREATE|TRUNCATE|EXEC|EXECUTE|GRANT|REVOKE|MERGE|COPY|CALL|SET)\b)`)
)

// ExtractSQL strips code fences and the prose around the statement. The
// statement must start a line; explanation after a blank line or after the
// terminating semicolon is dropped. A second statement is kept so the
// validator can reject it. It reports false when no statement is found.
func ExtractSQL(text string) (string, bool) {
	body := llm.StripCodeFences(text)
	loc := statementStart.FindStringIndex(body)
	if loc == nil {
		return "", false
	}
	sql := body[loc[0]:]

	for _, br := range paragraphBreak.FindAllStringIndex(sql, -1) {
		if !sqlContinuation.MatchString(strings.TrimSpace(sql[br[1]:])) {
			sql = sql[:br[0]]
			break
		}
	}
	if semi := strings.IndexByte(sql, ';'); semi >= 0 {
		rest := strings.TrimSpace(sql[semi+1:])
		if rest != "" && !sqlContinuation.MatchString(rest) {
			sql = sql[:semi+1]
		}
	}

	sql = strings.TrimSpace(sql)
	if sql == "" {
		return "", false
	}
	return sql, true
}
