package charts

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/seanankenbruck/transactions-ai/internal/cache"
	"github.com/seanankenbruck/transactions-ai/internal/dataset"
	"github.com/seanankenbruck/transactions-ai/internal/llm"
	"github.com/seanankenbruck/transactions-ai/internal/observability"
	"github.com/seanankenbruck/transactions-ai/internal/profiler"
)

const (
	SourceRules = "rules"
	SourceLLM   = "llm"
	SourceCache = "cache"

	ruleConfidence = 0.7
	// results smaller than this never go to the completion service
	minRowsForLLM = 3
	// pie is only offered for a lead category with at most this many values
	maxPieCategories = 8
	sampleJSONLimit  = 200
)

const selectionSystemPrompt = `You are an expert data visualization consultant. Analyze the user's query and the data characteristics to recommend the best chart type.

Consider:
- The user's intent (comparison, trend, distribution, composition, relationship)
- The column types (numeric, categorical, datetime)
- The number of rows and distinct categories
- Readability of the resulting chart

Available chart types: bar, line, pie, scatter, histogram, heatmap, box, treemap

Respond with a single JSON object.`

var (
	visualizationVerbs = []string{"show", "plot", "chart", "visualize", "graph"}
	aggregationMarkers = []string{"group by", "count(", "sum(", "avg(", "max(", "min("}
	pieWords           = []string{"pie", "pie chart"}
	scatterWords       = []string{"scatter", "correlation", "relationship"}
	trendWords         = []string{"trend", "over time", "timeline"}
	shareWords         = []string{"percentage", "proportion", "share", "distribution"}
)

// SelectorConfig bounds visualization and controls the LLM path
type SelectorConfig struct {
	MaxRows    int
	MaxColumns int
	UseLLM     bool
	Model      string
	Timeout    time.Duration
	CacheTTL   time.Duration
}

// DefaultSelectorConfig returns the standard readability bounds
func DefaultSelectorConfig() SelectorConfig {
	return SelectorConfig{
		MaxRows:    10000,
		MaxColumns: 10,
		UseLLM:     true,
		Model:      "gpt-4o-mini",
		Timeout:    5 * time.Second,
		CacheTTL:   time.Hour,
	}
}

// Selector decides whether to chart a result and which family to use
type Selector struct {
	client  llm.Client
	store   cache.Store
	config  SelectorConfig
	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewSelector creates a selector. client and store may be nil.
func NewSelector(client llm.Client, store cache.Store, config SelectorConfig) *Selector {
	defaults := DefaultSelectorConfig()
	if config.MaxRows <= 0 {
		config.MaxRows = defaults.MaxRows
	}
	if config.MaxColumns <= 0 {
		config.MaxColumns = defaults.MaxColumns
	}
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}
	if config.Model == "" {
		config.Model = defaults.Model
	}
	return &Selector{
		client: client,
		store:  store,
		config: config,
		logger: observability.NewLogger("chart-selector"),
	}
}

// WithLogger replaces the component logger
func (s *Selector) WithLogger(logger *observability.Logger) *Selector {
	s.logger = logger
	return s
}

// WithMetrics enables chart and cache metrics
func (s *Selector) WithMetrics(metrics *observability.Metrics) *Selector {
	s.metrics = metrics
	return s
}

// ShouldVisualize applies the visualization gate
func (s *Selector) ShouldVisualize(text, sql string, rs *dataset.ResultSet) bool {
	if rs.IsEmpty() {
		return false
	}
	rows, cols := rs.Len(), rs.Width()
	lowered := strings.ToLower(text)

	// a single cell is only charted on explicit request, and then always
	if rows == 1 && cols == 1 {
		return containsAny(lowered, visualizationVerbs)
	}
	if rows > s.config.MaxRows || cols > s.config.MaxColumns {
		return false
	}

	hasNumeric := false
	for _, c := range rs.Columns {
		if profiler.ClassifyColumn(rs.Column(c)) == profiler.KindNumeric {
			hasNumeric = true
			break
		}
	}
	if hasNumeric && rows > 1 && cols >= 2 {
		return true
	}
	return containsAny(strings.ToLower(sql), aggregationMarkers)
}

// Select recommends a chart family. It never fails: every problem on the
// LLM path falls back to the rule-based answer.
func (s *Selector) Select(ctx context.Context, text, sql string, rs *dataset.ResultSet, profile *profiler.Profile) Recommendation {
	baseline := RuleBased(text, profile)

	if !s.config.UseLLM || s.client == nil || rs.Len() < minRowsForLLM {
		s.metrics.RecordChart(string(baseline.Primary), baseline.Source)
		return baseline
	}

	key := recommendationKey(text, rs)
	if s.store != nil {
		var cached Recommendation
		found, err := s.store.Get(ctx, key, &cached)
		if err != nil {
			s.logger.Warn(ctx, "Recommendation cache read failed", map[string]interface{}{"error": err.Error()})
		}
		s.metrics.RecordCacheLookup("chart", found)
		if found {
			cached.Source = SourceCache
			s.metrics.RecordChart(string(cached.Primary), cached.Source)
			return cached
		}
	}

	rec, err := s.askModel(ctx, text, rs, profile)
	if err != nil {
		s.logger.Warn(ctx, "Falling back to rule-based chart selection", map[string]interface{}{
			"error":      err.Error(),
			"chart_type": baseline.Primary,
		})
		s.metrics.RecordChart(string(baseline.Primary), baseline.Source)
		return baseline
	}

	if s.store != nil {
		if err := s.store.Set(ctx, key, rec, s.config.CacheTTL); err != nil {
			s.logger.Warn(ctx, "Recommendation cache write failed", map[string]interface{}{"error": err.Error()})
		}
	}
	s.metrics.RecordChart(string(rec.Primary), rec.Source)
	return rec
}

type modelRecommendation struct {
	PrimaryChartType  string                 `json:"primary_chart_type"`
	Confidence        float64                `json:"confidence"`
	Reasoning         string                 `json:"reasoning"`
	AlternativeCharts []string               `json:"alternative_charts"`
	SuggestedConfig   map[string]interface{} `json:"suggested_config"`
}

func (s *Selector) askModel(ctx context.Context, text string, rs *dataset.ResultSet, profile *profiler.Profile) (Recommendation, error) {
	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	resp, err := s.client.Complete(ctx, llm.Request{
		Operation:   "chart_select",
		System:      selectionSystemPrompt,
		Prompt:      SelectionPrompt(text, rs, profile),
		Temperature: 0.3,
		MaxTokens:   200,
		JSON:        true,
		Model:       s.config.Model,
	})
	if err != nil {
		return Recommendation{}, err
	}
	return parseRecommendation(resp.Text)
}

func parseRecommendation(text string) (Recommendation, error) {
	var answer modelRecommendation
	if err := json.Unmarshal([]byte(llm.StripCodeFences(text)), &answer); err != nil {
		return Recommendation{}, fmt.Errorf("unparseable recommendation: %w", err)
	}

	primary, ok := ParseFamily(answer.PrimaryChartType)
	if !ok {
		return Recommendation{}, fmt.Errorf("unknown chart type %q", answer.PrimaryChartType)
	}
	if answer.Confidence < 0 || answer.Confidence > 1 {
		return Recommendation{}, fmt.Errorf("confidence %v out of range", answer.Confidence)
	}

	alternatives := []Family{}
	for _, alt := range answer.AlternativeCharts {
		if f, ok := ParseFamily(alt); ok && f != primary {
			alternatives = append(alternatives, f)
		}
	}
	if answer.SuggestedConfig == nil {
		answer.SuggestedConfig = map[string]interface{}{}
	}

	return Recommendation{
		Primary:         primary,
		Confidence:      answer.Confidence,
		Reasoning:       answer.Reasoning,
		Alternatives:    alternatives,
		SuggestedConfig: answer.SuggestedConfig,
		Source:          SourceLLM,
	}, nil
}

// SelectionPrompt renders the shape summary and a small sample
func SelectionPrompt(text string, rs *dataset.ResultSet, profile *profiler.Profile) string {
	shape := map[string]interface{}{
		"rows":        rs.Len(),
		"cols":        rs.Width(),
		"numeric":     len(profile.NumericColumns),
		"categorical": len(profile.CategoricalColumns),
		"datetime":    len(profile.DatetimeColumns),
	}
	shapeJSON, _ := json.Marshal(shape)

	var b strings.Builder
	fmt.Fprintf(&b, "Query: %q\n\n", text)
	fmt.Fprintf(&b, "Data: %s | Sample: %s\n\n", shapeJSON, sampleJSON(rs, 2, 3))
	b.WriteString(`Return JSON: {"primary_chart_type": "bar|line|pie|scatter|histogram|heatmap|box|treemap", "confidence": 0.0-1.0, "reasoning": "brief", "alternative_charts": [], "suggested_config": {}}`)
	return b.String()
}

// sampleJSON serializes the top-left corner of rs, cut to a fixed length
func sampleJSON(rs *dataset.ResultSet, rows, cols int) string {
	if rows > rs.Len() {
		rows = rs.Len()
	}
	if cols > rs.Width() {
		cols = rs.Width()
	}
	columns := rs.Columns[:cols]
	sample := make([]dataset.Row, rows)
	for i := 0; i < rows; i++ {
		row := make(dataset.Row, cols)
		for _, c := range columns {
			row[c] = rs.Rows[i][c]
		}
		sample[i] = row
	}

	data, err := dataset.New(columns, sample).MarshalJSON()
	if err != nil {
		return "[]"
	}
	return llm.ClipPrompt(string(data), sampleJSONLimit)
}

func recommendationKey(text string, rs *dataset.ResultSet) string {
	shape := fmt.Sprintf("%s_%d_%d_%s", text, rs.Len(), rs.Width(), strings.Join(rs.Columns, "_"))
	return cache.Key("chart", shape)
}

// RuleBased is the deterministic baseline selection
func RuleBased(text string, profile *profiler.Profile) Recommendation {
	family, reason := ruleFamily(strings.ToLower(text), profile)
	return Recommendation{
		Primary:         family,
		Confidence:      ruleConfidence,
		Reasoning:       reason,
		Alternatives:    []Family{},
		SuggestedConfig: map[string]interface{}{},
		Source:          SourceRules,
	}
}

func ruleFamily(text string, profile *profiler.Profile) (Family, string) {
	if profile == nil {
		return Bar, "no profile available"
	}
	numeric := len(profile.NumericColumns)
	categorical := len(profile.CategoricalColumns)
	datetime := len(profile.DatetimeColumns)

	switch {
	case containsAny(text, pieWords) && categorical >= 1 && numeric >= 1:
		return Pie, "pie chart requested"
	case containsAny(text, scatterWords) && numeric >= 2:
		return Scatter, "relationship between numeric columns requested"
	case containsAny(text, trendWords) && (datetime > 0 || categorical > 0):
		return Line, "trend requested"
	case datetime > 0:
		return Line, "time series data"
	case numeric >= 2 && categorical == 0 && profile.NumRows > 50:
		return Scatter, "enough numeric points for a correlation read"
	case categorical >= 1 && numeric >= 1:
		lead := profile.CategoricalColumns[0]
		if profile.Cardinality[lead] <= maxPieCategories && containsAny(text, shareWords) {
			return Pie, "composition of a small number of categories"
		}
		return Bar, "comparison across categories"
	case numeric == 1 && categorical == 0:
		return Histogram, "distribution of a single numeric column"
	default:
		return Bar, "default chart"
	}
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}
