package profiler

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/seanankenbruck/transactions-ai/internal/dataset"
)

// dateSampleSize is how many string values are parsed before a column is typed datetime
const dateSampleSize = 5

// Capabilities are optional derived fields, resolved once at startup
type Capabilities struct {
	Kurtosis bool
}

// Profiler is stateless and safe for concurrent use
type Profiler struct {
	caps Capabilities
}

// New creates a profiler with the given capabilities
func New(caps Capabilities) *Profiler {
	return &Profiler{caps: caps}
}

// Analyze profiles rs. Empty input yields a profile flagged IsEmpty.
func (p *Profiler) Analyze(rs *dataset.ResultSet) *Profile {
	if rs.IsEmpty() {
		return &Profile{IsEmpty: true, kinds: map[string]ColumnKind{}}
	}

	prof := &Profile{
		NumRows:            rs.Len(),
		NumColumns:         rs.Width(),
		ColumnNames:        append([]string(nil), rs.Columns...),
		NumericColumns:     []string{},
		CategoricalColumns: []string{},
		DatetimeColumns:    []string{},
		Statistics:         map[string]NumericStats{},
		Distributions:      map[string]Distribution{},
		Outliers:           map[string]Outliers{},
		Correlations:       map[string]map[string]float64{},
		Cardinality:        map[string]int{},
		Patterns:           []string{},
		kinds:              make(map[string]ColumnKind, rs.Width()),
	}

	for _, col := range rs.Columns {
		kind := classify(rs.Column(col))
		prof.kinds[col] = kind
		switch kind {
		case KindNumeric:
			prof.NumericColumns = append(prof.NumericColumns, col)
		case KindDatetime:
			prof.DatetimeColumns = append(prof.DatetimeColumns, col)
		default:
			prof.CategoricalColumns = append(prof.CategoricalColumns, col)
			prof.Cardinality[col] = distinctCount(rs.Column(col))
		}
	}

	for _, col := range prof.NumericColumns {
		values := nonNullFloats(rs.Column(col))
		if len(values) == 0 {
			continue
		}
		s := describe(values, p.caps.Kurtosis)
		prof.Statistics[col] = s
		prof.Distributions[col] = distributionOf(s)
		if out := tukeyOutliers(values, s); out != nil {
			prof.Outliers[col] = *out
		}
	}

	if len(prof.NumericColumns) > 1 {
		prof.Correlations = correlationMatrix(rs, prof.NumericColumns)
	}

	prof.Patterns = detectPatterns(prof)
	prof.Quality = quality(rs)
	return prof
}

// classify types a column: all-numeric values are numeric, time.Time values
// or date-like strings (checked on a small sample) are datetime, the rest is
// categorical. A column with no values is categorical.
func classify(values []any) ColumnKind {
	var nonNull []any
	for _, v := range values {
		if v != nil {
			nonNull = append(nonNull, v)
		}
	}
	if len(nonNull) == 0 {
		return KindCategorical
	}

	numeric, times, strs := 0, 0, 0
	for _, v := range nonNull {
		switch v.(type) {
		case time.Time:
			times++
		case string:
			strs++
		default:
			if dataset.IsNumeric(v) {
				numeric++
			}
		}
	}

	switch {
	case numeric == len(nonNull):
		return KindNumeric
	case times == len(nonNull):
		return KindDatetime
	case strs == len(nonNull) && looksLikeDates(nonNull):
		return KindDatetime
	default:
		return KindCategorical
	}
}

func looksLikeDates(values []any) bool {
	n := min(dateSampleSize, len(values))
	for _, v := range values[:n] {
		if _, ok := dataset.AsTime(v); !ok {
			return false
		}
	}
	return true
}

func nonNullFloats(values []any) []float64 {
	out := make([]float64, 0, len(values))
	for _, v := range values {
		if f, ok := dataset.AsFloat(v); ok && !math.IsNaN(f) {
			out = append(out, f)
		}
	}
	return out
}

func distinctCount(values []any) int {
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		if v == nil {
			continue
		}
		seen[cellKey(v)] = struct{}{}
	}
	return len(seen)
}

func correlationMatrix(rs *dataset.ResultSet, cols []string) map[string]map[string]float64 {
	n := rs.Len()
	series := make(map[string][]float64, len(cols))
	present := make(map[string][]bool, len(cols))
	for _, c := range cols {
		xs := make([]float64, n)
		ok := make([]bool, n)
		for i, row := range rs.Rows {
			if f, isNum := dataset.AsFloat(row[c]); isNum && !math.IsNaN(f) {
				xs[i], ok[i] = f, true
			}
		}
		series[c], present[c] = xs, ok
	}

	out := make(map[string]map[string]float64, len(cols))
	for i, a := range cols {
		for _, b := range cols[i+1:] {
			both := make([]bool, n)
			for k := 0; k < n; k++ {
				both[k] = present[a][k] && present[b][k]
			}
			r, ok := pearson(series[a], series[b], both)
			if !ok {
				continue
			}
			if out[a] == nil {
				out[a] = map[string]float64{}
			}
			if out[b] == nil {
				out[b] = map[string]float64{}
			}
			out[a][b], out[b][a] = r, r
		}
	}
	return out
}

func detectPatterns(prof *Profile) []string {
	patterns := []string{}

	if len(prof.DatetimeColumns) > 0 {
		patterns = append(patterns, PatternTimeSeries)
	}

	for _, col := range prof.CategoricalColumns {
		unique := prof.Cardinality[col]
		if float64(unique) > float64(prof.NumRows)*0.9 {
			patterns = append(patterns, PatternHighCardinality)
		} else if unique < 10 {
			patterns = append(patterns, PatternLowCardinality)
		}
	}

	for i, a := range prof.NumericColumns {
		for _, b := range prof.NumericColumns[i+1:] {
			if r, ok := prof.Correlation(a, b); ok && math.Abs(r) > 0.7 {
				patterns = append(patterns, StrongCorrelationTag(a, b))
			}
		}
	}

	if len(prof.Outliers) > 0 {
		patterns = append(patterns, PatternHasOutliers)
	}

	for _, col := range prof.NumericColumns {
		if prof.Distributions[col] == DistributionNormal {
			patterns = append(patterns, NormalDistributionTag(col))
		}
	}
	return patterns
}

func quality(rs *dataset.ResultSet) Quality {
	q := Quality{MissingValues: make(map[string]int, rs.Width())}

	totalNulls := 0
	for _, col := range rs.Columns {
		nulls := 0
		for _, row := range rs.Rows {
			if isMissing(row[col]) {
				nulls++
			}
		}
		q.MissingValues[col] = nulls
		totalNulls += nulls
	}

	seen := make(map[string]struct{}, rs.Len())
	for _, rec := range rs.Records() {
		var sb strings.Builder
		for _, v := range rec {
			sb.WriteString(cellKey(v))
			sb.WriteByte(0x1f)
		}
		key := sb.String()
		if _, dup := seen[key]; dup {
			q.DuplicateRows++
			continue
		}
		seen[key] = struct{}{}
	}

	cells := rs.Len() * rs.Width()
	q.Completeness = 1 - float64(totalNulls)/float64(cells)
	return q
}

func isMissing(v any) bool {
	if v == nil {
		return true
	}
	if f, ok := v.(float64); ok {
		return math.IsNaN(f)
	}
	return false
}

func cellKey(v any) string {
	if t, ok := v.(time.Time); ok {
		return "t:" + t.UTC().Format(time.RFC3339Nano)
	}
	if f, ok := dataset.AsFloat(v); ok {
		return fmt.Sprintf("n:%v", f)
	}
	return fmt.Sprintf("%T:%v", v, v)
}

// ClassifyColumn types a single column the same way Analyze does
func ClassifyColumn(values []any) ColumnKind {
	return classify(values)
}
