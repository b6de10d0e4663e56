// Package charts decides whether and how a result set is visualized and
// builds a Plotly-compatible figure for the chosen chart family.
package charts

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Family is one of the supported chart types
type Family string

const (
	Bar       Family = "bar"
	Line      Family = "line"
	Pie       Family = "pie"
	Scatter   Family = "scatter"
	Histogram Family = "histogram"
	Heatmap   Family = "heatmap"
	Box       Family = "box"
	Treemap   Family = "treemap"
)

// Families lists every supported family
var Families = []Family{Bar, Line, Pie, Scatter, Histogram, Heatmap, Box, Treemap}

// ParseFamily accepts a family name in any case
func ParseFamily(s string) (Family, bool) {
	f := Family(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Families {
		if f == known {
			return f, true
		}
	}
	return "", false
}

// Recommendation is the selector's answer
type Recommendation struct {
	Primary         Family                 `json:"primary_chart_type"`
	Confidence      float64                `json:"confidence"`
	Reasoning       string                 `json:"reasoning"`
	Alternatives    []Family               `json:"alternative_charts"`
	SuggestedConfig map[string]interface{} `json:"suggested_config"`
	// Source is rules, llm or cache
	Source string `json:"source"`
}

// Humanize turns a column name into an axis or title label
func Humanize(col string) string {
	return cases.Title(language.Und).String(strings.ReplaceAll(col, "_", " "))
}

// FormatNumber renders v rounded with thousands separators
func FormatNumber(v float64) string {
	return message.NewPrinter(language.English).Sprintf("%.0f", v)
}
