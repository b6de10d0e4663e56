package profiler

import (
	"fmt"
	"testing"
	"time"

	"github.com/seanankenbruck/transactions-ai/internal/dataset"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func records(t *testing.T, columns []string, recs ...[]any) *dataset.ResultSet {
	t.Helper()
	rs, err := dataset.FromRecords(columns, recs)
	require.NoError(t, err)
	return rs
}

// TestAnalyze_Empty tests degenerate inputs
func TestAnalyze_Empty(t *testing.T) {
	p := New(Capabilities{})

	assert.True(t, p.Analyze(nil).IsEmpty)
	assert.True(t, p.Analyze(dataset.New([]string{"a"}, nil)).IsEmpty)
	assert.Equal(t, KindCategorical, p.Analyze(nil).Kind("a"))
}

// TestAnalyze_ColumnTyping tests the numeric, datetime and categorical partition
func TestAnalyze_ColumnTyping(t *testing.T) {
	ts := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	rs := records(t,
		[]string{"bank", "amount", "ts", "day", "flag", "empty", "mixed"},
		[]any{"Halyk", 10.0, ts, "2024-03-01", true, nil, "x"},
		[]any{"Kaspi", int64(20), ts.Add(time.Hour), "2024-03-02", false, nil, 1.0},
		[]any{"Forte", nil, ts.Add(2 * time.Hour), "2024-03-03", true, nil, "y"},
	)

	prof := New(Capabilities{}).Analyze(rs)

	assert.False(t, prof.IsEmpty)
	assert.Equal(t, 3, prof.NumRows)
	assert.Equal(t, 7, prof.NumColumns)
	assert.Equal(t, []string{"amount"}, prof.NumericColumns)
	assert.Equal(t, []string{"ts", "day"}, prof.DatetimeColumns)
	assert.Equal(t, []string{"bank", "flag", "empty", "mixed"}, prof.CategoricalColumns)
	assert.Equal(t, KindNumeric, prof.Kind("amount"))
	assert.Equal(t, KindDatetime, prof.Kind("day"))
	assert.True(t, prof.HasPattern(PatternTimeSeries))
}

// TestAnalyze_Statistics tests per-column numeric statistics
func TestAnalyze_Statistics(t *testing.T) {
	rs := records(t, []string{"v"},
		[]any{1.0}, []any{2.0}, []any{3.0}, []any{4.0}, []any{100.0})

	prof := New(Capabilities{}).Analyze(rs)
	s, ok := prof.Statistics["v"]
	require.True(t, ok)

	assert.Equal(t, 5, s.Count)
	assert.InDelta(t, 22.0, s.Mean, 1e-9)
	assert.Equal(t, 3.0, s.Median)
	assert.Equal(t, 1.0, s.Min)
	assert.Equal(t, 100.0, s.Max)
	assert.Equal(t, 2.0, s.Q25)
	assert.Equal(t, 4.0, s.Q75)
	assert.Equal(t, 2.0, s.IQR)
	require.NotNil(t, s.Skewness)
	assert.Greater(t, *s.Skewness, 2.0)
	assert.Nil(t, s.Kurtosis)
	assert.Equal(t, DistributionHighlySkewed, prof.Distributions["v"])

	out, ok := prof.Outliers["v"]
	require.True(t, ok)
	assert.Equal(t, 1, out.Count)
	assert.InDelta(t, 20.0, out.Percentage, 1e-9)
	assert.Equal(t, []float64{100}, out.Values)
	assert.True(t, prof.HasPattern(PatternHasOutliers))
}

// TestAnalyze_ConstantColumn tests that a zero IQR never reports outliers
func TestAnalyze_ConstantColumn(t *testing.T) {
	rs := records(t, []string{"v"}, []any{5.0}, []any{5.0}, []any{5.0}, []any{5.0})

	prof := New(Capabilities{}).Analyze(rs)

	assert.Equal(t, 0.0, prof.Statistics["v"].IQR)
	assert.Equal(t, 0.0, prof.Statistics["v"].Std)
	_, hasOutliers := prof.Outliers["v"]
	assert.False(t, hasOutliers)
	assert.False(t, prof.HasPattern(PatternHasOutliers))
	assert.Equal(t, DistributionNormal, prof.Distributions["v"])
}

// TestAnalyze_SmallColumn tests that fewer than three values give no skewness
func TestAnalyze_SmallColumn(t *testing.T) {
	rs := records(t, []string{"v"}, []any{1.0}, []any{2.0})

	prof := New(Capabilities{}).Analyze(rs)

	assert.Nil(t, prof.Statistics["v"].Skewness)
	assert.Equal(t, DistributionUnknown, prof.Distributions["v"])
	assert.Equal(t, 1.5, prof.Statistics["v"].Median)
}

// TestAnalyze_Kurtosis tests the optional capability
func TestAnalyze_Kurtosis(t *testing.T) {
	var recs [][]any
	for i := 0; i < 11; i++ {
		recs = append(recs, []any{float64(i * i)})
	}
	rs := records(t, []string{"v"}, recs...)

	assert.Nil(t, New(Capabilities{}).Analyze(rs).Statistics["v"].Kurtosis)
	assert.NotNil(t, New(Capabilities{Kurtosis: true}).Analyze(rs).Statistics["v"].Kurtosis)

	short := records(t, []string{"v"}, recs[:10]...)
	assert.Nil(t, New(Capabilities{Kurtosis: true}).Analyze(short).Statistics["v"].Kurtosis)
}

// TestAnalyze_Correlation tests the matrix and strong correlation tags
func TestAnalyze_Correlation(t *testing.T) {
	rs := records(t, []string{"x", "y", "z"},
		[]any{1.0, 2.0, 7.0},
		[]any{2.0, 4.0, 1.0},
		[]any{3.0, 6.0, 9.0},
		[]any{4.0, 8.0, 2.0},
	)

	prof := New(Capabilities{}).Analyze(rs)

	r, ok := prof.Correlation("x", "y")
	require.True(t, ok)
	assert.InDelta(t, 1.0, r, 1e-9)
	rr, _ := prof.Correlation("y", "x")
	assert.Equal(t, r, rr)
	_, self := prof.Correlation("x", "x")
	assert.False(t, self)

	assert.True(t, prof.HasPattern(StrongCorrelationTag("x", "y")))
	assert.False(t, prof.HasPattern(StrongCorrelationTag("y", "x")))
	assert.False(t, prof.HasPattern(StrongCorrelationTag("x", "z")))
}

// TestAnalyze_Cardinality tests the categorical cardinality patterns
func TestAnalyze_Cardinality(t *testing.T) {
	var unique, repeated [][]any
	for i := 0; i < 20; i++ {
		unique = append(unique, []any{fmt.Sprintf("card-%d", i)})
		repeated = append(repeated, []any{fmt.Sprintf("bank-%d", i%3)})
	}

	high := New(Capabilities{}).Analyze(records(t, []string{"c"}, unique...))
	assert.True(t, high.HasPattern(PatternHighCardinality))
	assert.Equal(t, 20, high.Cardinality["c"])

	low := New(Capabilities{}).Analyze(records(t, []string{"c"}, repeated...))
	assert.True(t, low.HasPattern(PatternLowCardinality))
	assert.Equal(t, 3, low.Cardinality["c"])
}

// TestAnalyze_Quality tests missing values, duplicates and completeness
func TestAnalyze_Quality(t *testing.T) {
	rs := records(t, []string{"a", "b"},
		[]any{"x", 1.0},
		[]any{"x", 1.0},
		[]any{"y", nil},
		[]any{nil, nil},
	)

	q := New(Capabilities{}).Analyze(rs).Quality

	assert.Equal(t, map[string]int{"a": 1, "b": 2}, q.MissingValues)
	assert.Equal(t, 1, q.DuplicateRows)
	assert.InDelta(t, 1-3.0/8.0, q.Completeness, 1e-9)
}

// TestQuantile tests linear interpolation between ranks
func TestQuantile(t *testing.T) {
	sorted := []float64{1, 2, 3, 4}
	assert.Equal(t, 1.75, quantile(sorted, 0.25))
	assert.Equal(t, 2.5, quantile(sorted, 0.5))
	assert.Equal(t, 3.25, quantile(sorted, 0.75))
	assert.Equal(t, 7.0, quantile([]float64{7}, 0.3))
	assert.Equal(t, 0.0, quantile(nil, 0.5))
}
