// Package insights writes the short narrative shown next to a chart.
package insights

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/seanankenbruck/transactions-ai/internal/charts"
	"github.com/seanankenbruck/transactions-ai/internal/dataset"
	"github.com/seanankenbruck/transactions-ai/internal/llm"
	"github.com/seanankenbruck/transactions-ai/internal/observability"
	"github.com/seanankenbruck/transactions-ai/internal/profiler"
)

const (
	baselineSeparator = " • "
	findingSeparator  = " | "
	maxFindings       = 3
	summaryJSONLimit  = 500
)

const systemPrompt = `You are a data analyst expert. Your task is to analyze data visualizations and generate clear, actionable insights.

Focus on:
- What the data actually shows
- Key patterns, trends, and anomalies
- Actionable recommendations
- Be concise but informative
- Use plain language that non-technical users can understand

Return insights as a JSON object with summary, key_findings, anomalies, trends, and recommendations.`

// Config controls the enrichment pass
type Config struct {
	// MinRows is the row count above which the completion service is asked
	MinRows int
	Timeout time.Duration
	Model   string
}

// DefaultConfig returns the standard enrichment settings
func DefaultConfig() Config {
	return Config{MinRows: 5, Timeout: 5 * time.Second, Model: "gpt-4o-mini"}
}

// Narrator never fails a request; every problem degrades to the baseline text
type Narrator struct {
	client llm.Client
	config Config
	logger *observability.Logger
}

// New creates a narrator; client may be nil
func New(client llm.Client, config Config) *Narrator {
	defaults := DefaultConfig()
	if config.MinRows <= 0 {
		config.MinRows = defaults.MinRows
	}
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}
	if config.Model == "" {
		config.Model = defaults.Model
	}
	return &Narrator{client: client, config: config, logger: observability.NewLogger("insights")}
}

// WithLogger replaces the component logger
func (n *Narrator) WithLogger(logger *observability.Logger) *Narrator {
	n.logger = logger
	return n
}

// Narrate returns the enriched narrative when available, the baseline otherwise
func (n *Narrator) Narrate(ctx context.Context, rs *dataset.ResultSet, family charts.Family, text string, profile *profiler.Profile) string {
	baseline := Baseline(rs, family, profile)
	if n.client == nil || rs.Len() <= n.config.MinRows {
		return baseline
	}

	enriched, err := n.enrich(ctx, rs, family, text, profile)
	if err != nil {
		n.logger.Warn(ctx, "Insights enrichment failed, using baseline", map[string]interface{}{
			"error":      err.Error(),
			"chart_type": string(family),
		})
		return baseline
	}
	return enriched
}

type modelInsights struct {
	Summary         string   `json:"summary"`
	KeyFindings     []string `json:"key_findings"`
	Anomalies       []string `json:"anomalies"`
	Trends          []string `json:"trends"`
	Recommendations []string `json:"recommendations"`
}

func (n *Narrator) enrich(ctx context.Context, rs *dataset.ResultSet, family charts.Family, text string, profile *profiler.Profile) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, n.config.Timeout)
	defer cancel()

	resp, err := n.client.Complete(ctx, llm.Request{
		Operation:   "insights",
		System:      systemPrompt,
		Prompt:      Prompt(rs, family, text, profile),
		Temperature: 0.7,
		MaxTokens:   300,
		JSON:        true,
		Model:       n.config.Model,
	})
	if err != nil {
		return "", err
	}

	var answer modelInsights
	if err := json.Unmarshal([]byte(llm.StripCodeFences(resp.Text)), &answer); err != nil {
		return "", fmt.Errorf("unparseable insights: %w", err)
	}
	summary := strings.TrimSpace(answer.Summary)
	if summary == "" {
		return "", fmt.Errorf("insights answer has no summary")
	}

	parts := []string{summary}
	for _, f := range answer.KeyFindings {
		if len(parts) > maxFindings {
			break
		}
		if f = strings.TrimSpace(f); f != "" {
			parts = append(parts, f)
		}
	}
	return strings.Join(parts, findingSeparator), nil
}

// Prompt renders the data summary sent for enrichment
func Prompt(rs *dataset.ResultSet, family charts.Family, text string, profile *profiler.Profile) string {
	data, err := json.Marshal(dataSummary(rs, profile))
	if err != nil {
		data = []byte("{}")
	}
	return fmt.Sprintf("Query: %q | Chart: %s | Data: %s\n\n", text, family, llm.ClipPrompt(string(data), summaryJSONLimit)) +
		`Return JSON: {"summary": "2-3 sentences", "key_findings": ["insight1", "insight2"], "anomalies": [], "trends": [], "recommendations": []}`
}

type summaryStats struct {
	Mean float64 `json:"mean"`
	Max  float64 `json:"max"`
}

type summary struct {
	Rows     int                     `json:"rows"`
	Cols     int                     `json:"cols"`
	ColNames []string                `json:"col_names"`
	Sample   *dataset.ResultSet      `json:"sample"`
	Stats    map[string]summaryStats `json:"stats,omitempty"`
	Patterns []string                `json:"patterns,omitempty"`
}

func dataSummary(rs *dataset.ResultSet, profile *profiler.Profile) summary {
	s := summary{
		Rows:     rs.Len(),
		Cols:     rs.Width(),
		ColNames: head(rs.Columns, 5),
		Sample:   corner(rs, 2, 3),
	}
	if profile == nil {
		return s
	}
	for _, col := range head(profile.NumericColumns, 2) {
		st, ok := profile.Statistics[col]
		if !ok {
			continue
		}
		if s.Stats == nil {
			s.Stats = map[string]summaryStats{}
		}
		s.Stats[col] = summaryStats{Mean: round2(st.Mean), Max: round2(st.Max)}
	}
	s.Patterns = head(profile.Patterns, 3)
	return s
}

func corner(rs *dataset.ResultSet, rows, cols int) *dataset.ResultSet {
	columns := head(rs.Columns, cols)
	n := rs.Len()
	if n > rows {
		n = rows
	}
	out := make([]dataset.Row, n)
	for i := 0; i < n; i++ {
		row := make(dataset.Row, len(columns))
		for _, c := range columns {
			row[c] = rs.Rows[i][c]
		}
		out[i] = row
	}
	return dataset.New(columns, out)
}

func head[T any](values []T, n int) []T {
	if len(values) > n {
		return values[:n]
	}
	return values
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
