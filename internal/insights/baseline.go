package insights

import (
	"fmt"
	"strings"

	"github.com/seanankenbruck/transactions-ai/internal/charts"
	"github.com/seanankenbruck/transactions-ai/internal/dataset"
	"github.com/seanankenbruck/transactions-ai/internal/profiler"
)

// Baseline is the deterministic narrative computed for every chart
func Baseline(rs *dataset.ResultSet, family charts.Family, profile *profiler.Profile) (text string) {
	defer func() {
		if recover() != nil {
			text = fmt.Sprintf("Showing %d results", rs.Len())
		}
	}()

	if profile == nil {
		profile = profiler.New(profiler.Capabilities{}).Analyze(rs)
	}
	parts := []string{fmt.Sprintf("Showing %d data points", rs.Len())}
	if rs.IsEmpty() {
		return parts[0]
	}

	numeric := profile.NumericColumns
	var other []string
	for _, c := range rs.Columns {
		if profile.Kind(c) != profiler.KindNumeric {
			other = append(other, c)
		}
	}

	switch family {
	case charts.Bar:
		if len(other) == 0 || len(numeric) == 0 {
			break
		}
		hi, lo, ok := extremes(rs, numeric[0])
		if !ok {
			break
		}
		parts = append(parts, fmt.Sprintf("Highest: %s with %s",
			dataset.Label(rs.Rows[hi][other[0]]), charts.FormatNumber(value(rs, hi, numeric[0]))))
		if rs.Len() > 1 {
			parts = append(parts, fmt.Sprintf("Lowest: %s with %s",
				dataset.Label(rs.Rows[lo][other[0]]), charts.FormatNumber(value(rs, lo, numeric[0]))))
		}
	case charts.Line:
		if len(numeric) == 0 {
			break
		}
		first, okFirst := dataset.AsFloat(rs.Rows[0][numeric[0]])
		last, okLast := dataset.AsFloat(rs.Rows[rs.Len()-1][numeric[0]])
		if !okFirst || !okLast {
			break
		}
		trend := "decreasing"
		if last > first {
			trend = "increasing"
		}
		parts = append(parts, "Overall trend is "+trend)
	case charts.Pie:
		if len(other) == 0 || len(numeric) == 0 {
			break
		}
		hi, _, ok := extremes(rs, numeric[0])
		total := 0.0
		for i := range rs.Rows {
			total += value(rs, i, numeric[0])
		}
		if !ok || total == 0 {
			break
		}
		parts = append(parts, fmt.Sprintf("%s accounts for %.1f%% of total",
			dataset.Label(rs.Rows[hi][other[0]]), value(rs, hi, numeric[0])/total*100))
	}

	return strings.Join(parts, baselineSeparator)
}

// extremes returns the row indexes of the first max and first min of col
func extremes(rs *dataset.ResultSet, col string) (int, int, bool) {
	hi, lo := -1, -1
	for i, row := range rs.Rows {
		v, ok := dataset.AsFloat(row[col])
		if !ok {
			continue
		}
		if hi < 0 || v > value(rs, hi, col) {
			hi = i
		}
		if lo < 0 || v < value(rs, lo, col) {
			lo = i
		}
	}
	return hi, lo, hi >= 0
}

func value(rs *dataset.ResultSet, row int, col string) float64 {
	v, _ := dataset.AsFloat(rs.Rows[row][col])
	return v
}
