// Package profiler derives a statistical profile from a result set. The
// chart selector, renderer and insights narrator all read from it.
package profiler

// ColumnKind partitions result columns
type ColumnKind string

const (
	KindNumeric     ColumnKind = "numeric"
	KindCategorical ColumnKind = "categorical"
	KindDatetime    ColumnKind = "datetime"
)

// Distribution labels a numeric column by absolute skewness
type Distribution string

const (
	DistributionUnknown          Distribution = "unknown"
	DistributionNormal           Distribution = "normal"
	DistributionSlightlySkewed   Distribution = "slightly_skewed"
	DistributionModeratelySkewed Distribution = "moderately_skewed"
	DistributionHighlySkewed     Distribution = "highly_skewed"
)

// Pattern tags
const (
	PatternTimeSeries         = "time_series"
	PatternHighCardinality    = "high_cardinality_categorical"
	PatternLowCardinality     = "low_cardinality_categorical"
	PatternHasOutliers        = "has_outliers"
	patternStrongCorrelation  = "strong_correlation_"
	patternNormalDistribution = "normal_distribution_"
)

// NumericStats summarizes one numeric column, nulls excluded
type NumericStats struct {
	Count    int      `json:"count"`
	Mean     float64  `json:"mean"`
	Median   float64  `json:"median"`
	Std      float64  `json:"std"`
	Min      float64  `json:"min"`
	Max      float64  `json:"max"`
	Q25      float64  `json:"q25"`
	Q75      float64  `json:"q75"`
	IQR      float64  `json:"iqr"`
	Skewness *float64 `json:"skewness,omitempty"`
	Kurtosis *float64 `json:"kurtosis,omitempty"`
}

// Outliers are the values outside the Tukey fences
type Outliers struct {
	Count      int       `json:"count"`
	Percentage float64   `json:"percentage"`
	Values     []float64 `json:"values"`
}

// Quality is the data quality block
type Quality struct {
	MissingValues map[string]int `json:"missing_values"`
	DuplicateRows int            `json:"duplicate_rows"`
	Completeness  float64        `json:"completeness"`
}

// Profile is computed once per result set and never mutated afterwards
type Profile struct {
	IsEmpty            bool                          `json:"is_empty"`
	NumRows            int                           `json:"num_rows"`
	NumColumns         int                           `json:"num_columns"`
	ColumnNames        []string                      `json:"column_names"`
	NumericColumns     []string                      `json:"numeric_columns"`
	CategoricalColumns []string                      `json:"categorical_columns"`
	DatetimeColumns    []string                      `json:"datetime_columns"`
	Statistics         map[string]NumericStats       `json:"statistics"`
	Distributions      map[string]Distribution       `json:"distributions"`
	Outliers           map[string]Outliers           `json:"outliers"`
	Correlations       map[string]map[string]float64 `json:"correlations"`
	Cardinality        map[string]int                `json:"cardinality"`
	Patterns           []string                      `json:"patterns"`
	Quality            Quality                       `json:"data_quality"`

	kinds map[string]ColumnKind
}

// Kind returns how col was typed; unknown columns are categorical
func (p *Profile) Kind(col string) ColumnKind {
	if p == nil || p.kinds == nil {
		return KindCategorical
	}
	if k, ok := p.kinds[col]; ok {
		return k
	}
	return KindCategorical
}

// HasPattern reports whether tag was detected
func (p *Profile) HasPattern(tag string) bool {
	if p == nil {
		return false
	}
	for _, t := range p.Patterns {
		if t == tag {
			return true
		}
	}
	return false
}

// Correlation returns the Pearson coefficient of a and b when defined
func (p *Profile) Correlation(a, b string) (float64, bool) {
	if p == nil {
		return 0, false
	}
	r, ok := p.Correlations[a][b]
	return r, ok
}

// StrongCorrelationTag is the pattern emitted for a strongly correlated pair
func StrongCorrelationTag(a, b string) string {
	return patternStrongCorrelation + a + "_" + b
}

// NormalDistributionTag is the pattern emitted for a near-normal column
func NormalDistributionTag(col string) string {
	return patternNormalDistribution + col
}

// Summary is the compact view sent to the completion service
func (p *Profile) Summary() map[string]interface{} {
	if p == nil || p.IsEmpty {
		return map[string]interface{}{"is_empty": true}
	}
	return map[string]interface{}{
		"num_rows":            p.NumRows,
		"num_columns":         p.NumColumns,
		"numeric_columns":     p.NumericColumns,
		"categorical_columns": p.CategoricalColumns,
		"datetime_columns":    p.DatetimeColumns,
		"patterns":            p.Patterns,
	}
}
