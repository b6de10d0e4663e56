package charts

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/seanankenbruck/transactions-ai/internal/dataset"
	"github.com/seanankenbruck/transactions-ai/internal/errors"
	"github.com/seanankenbruck/transactions-ai/internal/profiler"
)

const (
	maxBars         = 20
	horizontalAfter = 10
	maxPieSlices    = 10
	maxOutlierMarks = 5
	maxScatter      = 1000
	scatterSeed     = 42
	histogramBins   = 30
	// extremes are only annotated on short series
	annotateBelow   = 100
	trendMinPoints  = 3
)

// Options carries caller overrides for a rendered chart
type Options struct {
	Title string
	// Extra is merged into the chart config, usually the LLM's suggested_config
	Extra map[string]interface{}
}

// Chart is the renderable payload handed to the display layer
type Chart struct {
	Enabled        bool                   `json:"enabled"`
	ChartType      Family                 `json:"chart_type"`
	Figure         *Figure                `json:"figure"`
	Config         map[string]interface{} `json:"config"`
	Metadata       map[string]interface{} `json:"metadata"`
	Insights       string                 `json:"insights,omitempty"`
	Recommendation *Recommendation        `json:"recommendation,omitempty"`
}

// Renderer builds figures. It holds no per-request state.
type Renderer struct {
	capabilities profiler.Capabilities
}

// NewRenderer creates a renderer; caps are used when a caller passes no profile
func NewRenderer(caps profiler.Capabilities) *Renderer {
	return &Renderer{capabilities: caps}
}

// Render builds the chart for family. A nil chart with a nil error means the
// result does not have the columns the family needs.
func (r *Renderer) Render(rs *dataset.ResultSet, family Family, opts Options, profile *profiler.Profile) (chart *Chart, err error) {
	if rs.IsEmpty() {
		return nil, nil
	}
	if profile == nil {
		profile = profiler.New(r.capabilities).Analyze(rs)
	}

	defer func() {
		if p := recover(); p != nil {
			chart, err = nil, errors.NewChartGenerationError(fmt.Errorf("%v", p), string(family))
		}
	}()

	cols := splitColumns(rs, profile)

	var (
		fig   *Figure
		title string
		meta  = map[string]interface{}{}
	)
	switch family {
	case Line:
		fig, title = lineChart(rs, cols)
	case Pie:
		fig, title = pieChart(rs, cols, meta)
	case Scatter:
		fig, title = scatterChart(rs, cols, profile, meta)
	case Histogram:
		fig, title = histogramChart(rs, cols, profile)
	case Heatmap:
		fig, title = heatmapChart(cols, profile)
	case Box:
		fig, title = boxChart(rs, cols)
	default:
		// treemap and anything unrecognized are drawn as bars
		family = Bar
		fig, title = barChart(rs, cols, profile, meta)
	}
	if fig == nil {
		return nil, nil
	}

	if opts.Title != "" {
		title = opts.Title
	}
	fig.Layout.Title = Title{Text: title}

	config := map[string]interface{}{}
	for k, v := range opts.Extra {
		config[k] = v
	}
	config["title"] = title
	meta["chart_type"] = string(family)

	return &Chart{
		Enabled:   true,
		ChartType: family,
		Figure:    fig,
		Config:    config,
		Metadata:  meta,
	}, nil
}

type columnSplit struct {
	numeric []string
	// other holds every non-numeric column, datetimes included, in column order
	other    []string
	datetime []string
}

func splitColumns(rs *dataset.ResultSet, profile *profiler.Profile) columnSplit {
	var cols columnSplit
	for _, c := range rs.Columns {
		switch profile.Kind(c) {
		case profiler.KindNumeric:
			cols.numeric = append(cols.numeric, c)
		case profiler.KindDatetime:
			cols.datetime = append(cols.datetime, c)
			cols.other = append(cols.other, c)
		default:
			cols.other = append(cols.other, c)
		}
	}
	return cols
}

type point struct {
	label string
	value float64
}

// labeledValues pairs a label column with a numeric column, skipping null values
func labeledValues(rs *dataset.ResultSet, labelCol, valueCol string) []point {
	points := make([]point, 0, rs.Len())
	for _, row := range rs.Rows {
		v, ok := dataset.AsFloat(row[valueCol])
		if !ok || !finite(v) {
			continue
		}
		points = append(points, point{label: dataset.Label(row[labelCol]), value: v})
	}
	return points
}

func barChart(rs *dataset.ResultSet, cols columnSplit, profile *profiler.Profile, meta map[string]interface{}) (*Figure, string) {
	if len(cols.other) == 0 || len(cols.numeric) == 0 {
		return nil, ""
	}
	cat, num := cols.other[0], cols.numeric[0]
	points := labeledValues(rs, cat, num)
	if len(points) == 0 {
		return nil, ""
	}

	meta["original_rows"] = rs.Len()
	meta["truncated"] = false
	if len(points) > maxBars {
		sort.SliceStable(points, func(i, j int) bool { return points[i].value > points[j].value })
		points = points[:maxBars]
		meta["truncated"] = true
	}
	sort.SliceStable(points, func(i, j int) bool { return points[i].value < points[j].value })

	labels := make([]any, len(points))
	values := make([]any, len(points))
	raw := make([]float64, len(points))
	for i, p := range points {
		labels[i], values[i], raw[i] = p.label, p.value, p.value
	}
	mean := stat.Mean(raw, nil)
	lo, hi := minMax(raw)

	scale := "Blues"
	if lo < 0.5*mean && hi > 1.5*mean {
		scale = "RdYlGn"
	}

	horizontal := len(points) > horizontalAfter
	trace := Trace{
		Type:         "bar",
		Name:         Humanize(num),
		TextPosition: "outside",
		Marker:       &Marker{Color: values, ColorScale: scale},
	}
	layout := Layout{
		ShowLegend: boolPtr(false),
		HoverMode:  "closest",
		Height:     400,
	}
	meanLabel := "Mean: " + FormatNumber(mean)

	if horizontal {
		trace.Orientation = "h"
		trace.X, trace.Y = values, labels
		trace.TextTemplate = "%{x:,.0f}"
		layout.XAxis, layout.YAxis = axisTitle(Humanize(num)), axisTitle(Humanize(cat))
		layout.Height = 400 + 20*len(points)
		layout.addVLine(mean, "dash", "red", meanLabel, true)
	} else {
		trace.X, trace.Y = labels, values
		trace.TextTemplate = "%{y:,.0f}"
		layout.XAxis, layout.YAxis = axisTitle(Humanize(cat)), axisTitle(Humanize(num))
		layout.addHLine(mean, "dash", "red", meanLabel)
		annotateOutliers(&layout, points, profile.Outliers[num].Values)
	}

	return &Figure{Data: []Trace{trace}, Layout: layout}, fmt.Sprintf("%s by %s", Humanize(num), Humanize(cat))
}

func annotateOutliers(layout *Layout, points []point, outliers []float64) {
	if len(outliers) == 0 {
		return
	}
	isOutlier := make(map[float64]bool, len(outliers))
	for _, v := range outliers {
		isOutlier[v] = true
	}
	marked := 0
	for _, p := range points {
		if marked == maxOutlierMarks {
			return
		}
		if !isOutlier[p.value] {
			continue
		}
		layout.Annotations = append(layout.Annotations, Annotation{
			X: p.label, Y: p.value,
			Text:      "Outlier",
			ShowArrow: true,
			ArrowHead: 2,
			BgColor:   "yellow",
			Opacity:   0.7,
		})
		marked++
	}
}

func lineChart(rs *dataset.ResultSet, cols columnSplit) (*Figure, string) {
	xCol := rs.Columns[0]
	if len(cols.datetime) > 0 {
		xCol = cols.datetime[0]
	}
	var series []string
	for _, c := range cols.numeric {
		if c != xCol {
			series = append(series, c)
		}
	}
	if len(series) == 0 {
		return nil, ""
	}

	rows := make([]dataset.Row, len(rs.Rows))
	copy(rows, rs.Rows)
	sort.SliceStable(rows, func(i, j int) bool { return lessCell(rows[i][xCol], rows[j][xCol]) })

	xs := make([]any, len(rows))
	for i, row := range rows {
		xs[i] = axisValue(row[xCol])
	}

	layout := Layout{
		HoverMode: "x unified",
		XAxis:     axisTitle(Humanize(xCol)),
		YAxis:     axisTitle("Value"),
		Height:    500,
		Legend:    &Legend{Orientation: "h", YAnchor: "bottom", Y: 1.02, XAnchor: "right", X: 1},
	}

	if len(series) > 1 {
		fig := &Figure{Layout: layout}
		fig.Layout.Grid = &Grid{Rows: len(series), Columns: 1, Pattern: "coupled"}
		fig.Layout.Height = 300 * len(series)
		for i, s := range series {
			axis := "y"
			if i > 0 {
				axis = fmt.Sprintf("y%d", i+1)
			}
			fig.Data = append(fig.Data, Trace{
				Type: "scatter", Mode: "lines+markers", Name: Humanize(s),
				X: xs, Y: seriesValues(rows, s),
				XAxis: "x", YAxis: axis,
				Line:   &LineStyle{Width: 3},
				Marker: &Marker{Size: 6},
			})
			fig.Layout.Annotations = append(fig.Layout.Annotations, Annotation{
				X: 0.5, Y: 1 - float64(i)/float64(len(series)),
				XRef: "paper", YRef: "paper", XAnchor: "center", YAnchor: "bottom",
				Text: Humanize(s),
			})
		}
		return fig, "Trend Over Time"
	}

	s := series[0]
	ys := seriesValues(rows, s)
	fig := &Figure{Layout: layout}
	fig.Data = append(fig.Data, Trace{
		Type: "scatter", Mode: "lines+markers", Name: Humanize(s),
		X: xs, Y: ys,
		Line:   &LineStyle{Width: 3},
		Marker: &Marker{Size: 8},
	})

	var px, py []float64
	var idx []int
	for i, row := range rows {
		v, ok := dataset.AsFloat(row[s])
		if !ok || !finite(v) {
			continue
		}
		px = append(px, xPosition(row[xCol], i))
		py = append(py, v)
		idx = append(idx, i)
	}

	if len(py) > trendMinPoints {
		alpha, beta := stat.LinearRegression(px, py, nil, false)
		if finite(alpha) && finite(beta) {
			trendX := make([]any, len(idx))
			trendY := make([]any, len(idx))
			for k, i := range idx {
				trendX[k] = xs[i]
				trendY[k] = alpha + beta*px[k]
			}
			fig.Data = append(fig.Data, Trace{
				Type: "scatter", Mode: "lines", Name: "Trend",
				X: trendX, Y: trendY,
				Line: &LineStyle{Dash: "dash", Color: "red"},
			})
		}
	}

	if len(rows) < annotateBelow && len(py) > 0 {
		hiK, loK := argMax(py), argMin(py)
		fig.Layout.Annotations = append(fig.Layout.Annotations, Annotation{
			X: xs[idx[hiK]], Y: py[hiK],
			Text: "Peak: " + FormatNumber(py[hiK]), ShowArrow: true, ArrowHead: 2, ArrowColor: "green",
		})
		if idx[loK] != idx[hiK] {
			fig.Layout.Annotations = append(fig.Layout.Annotations, Annotation{
				X: xs[idx[loK]], Y: py[loK],
				Text: "Low: " + FormatNumber(py[loK]), ShowArrow: true, ArrowHead: 2, ArrowColor: "red",
			})
		}
	}

	return fig, "Trend Over Time"
}

func pieChart(rs *dataset.ResultSet, cols columnSplit, meta map[string]interface{}) (*Figure, string) {
	if len(cols.other) == 0 || len(cols.numeric) == 0 {
		return nil, ""
	}
	cat, num := cols.other[0], cols.numeric[0]

	// duplicate labels are one slice
	var slices []point
	pos := map[string]int{}
	for _, p := range labeledValues(rs, cat, num) {
		if i, ok := pos[p.label]; ok {
			slices[i].value += p.value
			continue
		}
		pos[p.label] = len(slices)
		slices = append(slices, p)
	}
	if len(slices) == 0 {
		return nil, ""
	}

	meta["categories"] = len(slices)
	meta["grouped"] = false
	if len(slices) > maxPieSlices {
		sort.SliceStable(slices, func(i, j int) bool { return slices[i].value > slices[j].value })
		others := 0.0
		for _, p := range slices[maxPieSlices:] {
			others += p.value
		}
		slices = append(slices[:maxPieSlices:maxPieSlices], point{label: "Others", value: others})
		meta["grouped"] = true
	}

	labels := make([]any, len(slices))
	values := make([]any, len(slices))
	for i, p := range slices {
		labels[i], values[i] = p.label, p.value
	}

	fig := &Figure{
		Data: []Trace{{
			Type:          "pie",
			Labels:        labels,
			Values:        values,
			Hole:          0.3,
			TextPosition:  "inside",
			TextInfo:      "percent+label",
			HoverTemplate: "<b>%{label}</b><br>Value: %{value:,.0f}<br>Percentage: %{percent}<extra></extra>",
		}},
		Layout: Layout{Height: 500},
	}
	return fig, Humanize(num) + " Distribution"
}

func scatterChart(rs *dataset.ResultSet, cols columnSplit, profile *profiler.Profile, meta map[string]interface{}) (*Figure, string) {
	if len(cols.numeric) < 2 {
		return nil, ""
	}
	xCol, yCol := cols.numeric[0], cols.numeric[1]

	var xs, ys []float64
	for _, row := range rs.Rows {
		x, okX := dataset.AsFloat(row[xCol])
		y, okY := dataset.AsFloat(row[yCol])
		if okX && okY && finite(x) && finite(y) {
			xs = append(xs, x)
			ys = append(ys, y)
		}
	}
	if len(xs) == 0 {
		return nil, ""
	}

	meta["sampled"] = false
	if len(xs) > maxScatter {
		xs, ys = sample(xs, ys, maxScatter)
		meta["sampled"] = true
	}
	meta["sample_size"] = len(xs)

	fig := &Figure{
		Data: []Trace{{
			Type: "scatter", Mode: "markers", Name: "Data",
			X: floats(xs), Y: floats(ys),
			Opacity: 0.6,
			Marker:  &Marker{Size: 8},
		}},
		Layout: Layout{
			XAxis:     axisTitle(Humanize(xCol)),
			YAxis:     axisTitle(Humanize(yCol)),
			HoverMode: "closest",
			Height:    500,
		},
	}

	if len(xs) > 1 {
		alpha, beta := stat.LinearRegression(xs, ys, nil, false)
		if finite(alpha) && finite(beta) {
			lo, hi := minMax(xs)
			fig.Data = append(fig.Data, Trace{
				Type: "scatter", Mode: "lines", Name: "Trend",
				X:    []any{lo, hi},
				Y:    []any{alpha + beta*lo, alpha + beta*hi},
				Line: &LineStyle{Dash: "dash", Color: "red"},
			})
		}
	}

	r, ok := profile.Correlation(xCol, yCol)
	if !ok && len(xs) > 1 {
		r = stat.Correlation(xs, ys, nil)
		ok = finite(r)
	}
	if ok {
		meta["correlation"] = r
		fig.Layout.Annotations = append(fig.Layout.Annotations, Annotation{
			X: 0.02, Y: 0.98, XRef: "paper", YRef: "paper",
			XAnchor: "left", YAnchor: "top",
			Text:        fmt.Sprintf("Correlation: %.2f", r),
			BgColor:     "white",
			BorderColor: "black",
			BorderWidth: 1,
		})
	} else {
		meta["correlation"] = nil
	}

	return fig, fmt.Sprintf("%s vs %s", Humanize(xCol), Humanize(yCol))
}

// sample draws n pairs without replacement with a fixed seed, keeping row order
func sample(xs, ys []float64, n int) ([]float64, []float64) {
	rng := rand.New(rand.NewSource(scatterSeed))
	picked := rng.Perm(len(xs))[:n]
	sort.Ints(picked)
	sx := make([]float64, n)
	sy := make([]float64, n)
	for i, j := range picked {
		sx[i], sy[i] = xs[j], ys[j]
	}
	return sx, sy
}

func histogramChart(rs *dataset.ResultSet, cols columnSplit, profile *profiler.Profile) (*Figure, string) {
	if len(cols.numeric) == 0 {
		return nil, ""
	}
	num := cols.numeric[0]
	stats, ok := profile.Statistics[num]
	if !ok || stats.Count == 0 {
		return nil, ""
	}

	var values []any
	for _, v := range rs.Column(num) {
		if f, ok := dataset.AsFloat(v); ok && finite(f) {
			values = append(values, f)
		}
	}

	fig := &Figure{
		Data: []Trace{
			{Type: "histogram", Name: Humanize(num), X: values, NBinsX: histogramBins, XAxis: "x", YAxis: "y"},
			{Type: "box", Name: Humanize(num), X: values, XAxis: "x", YAxis: "y2", ShowLegend: boolPtr(false)},
		},
		Layout: Layout{
			XAxis:      axisTitle(Humanize(num)),
			YAxis:      &Axis{Title: &Title{Text: "Frequency"}, Domain: []float64{0, 0.8}},
			YAxis2:     &Axis{Domain: []float64{0.85, 1}, Anchor: "x"},
			ShowLegend: boolPtr(false),
			Height:     500,
		},
	}
	fig.Layout.addVLine(stats.Mean, "dash", "red", "Mean: "+FormatNumber(stats.Mean), true)
	if stats.Median != stats.Mean {
		fig.Layout.addVLine(stats.Median, "dot", "blue", "Median: "+FormatNumber(stats.Median), false)
	}
	return fig, "Distribution of " + Humanize(num)
}

func heatmapChart(cols columnSplit, profile *profiler.Profile) (*Figure, string) {
	if len(cols.numeric) < 2 {
		return nil, ""
	}
	names := make([]any, len(cols.numeric))
	z := make([][]any, len(cols.numeric))
	for i, a := range cols.numeric {
		names[i] = a
		z[i] = make([]any, len(cols.numeric))
		for j, b := range cols.numeric {
			switch r, ok := profile.Correlation(a, b); {
			case i == j:
				z[i][j] = 1.0
			case ok:
				z[i][j] = r
			default:
				z[i][j] = nil
			}
		}
	}

	zero := 0.0
	fig := &Figure{
		Data: []Trace{{
			Type:         "heatmap",
			X:            names,
			Y:            names,
			Z:            z,
			ColorScale:   "RdBu",
			ZMid:         &zero,
			TextTemplate: "%{z:.2f}",
		}},
		Layout: Layout{Height: 500},
	}
	return fig, "Correlation Matrix"
}

func boxChart(rs *dataset.ResultSet, cols columnSplit) (*Figure, string) {
	if len(cols.other) == 0 || len(cols.numeric) == 0 {
		return nil, ""
	}
	cat, num := cols.other[0], cols.numeric[0]
	points := labeledValues(rs, cat, num)
	if len(points) == 0 {
		return nil, ""
	}
	labels := make([]any, len(points))
	values := make([]any, len(points))
	for i, p := range points {
		labels[i], values[i] = p.label, p.value
	}
	fig := &Figure{
		Data: []Trace{{Type: "box", Name: Humanize(num), X: labels, Y: values}},
		Layout: Layout{
			XAxis:  axisTitle(Humanize(cat)),
			YAxis:  axisTitle(Humanize(num)),
			Height: 500,
		},
	}
	return fig, fmt.Sprintf("Distribution of %s by %s", Humanize(num), Humanize(cat))
}

// lessCell orders cells by time, then number, then label
func lessCell(a, b any) bool {
	if ta, ok := dataset.AsTime(a); ok {
		if tb, ok := dataset.AsTime(b); ok {
			return ta.Before(tb)
		}
	}
	if fa, ok := dataset.AsFloat(a); ok {
		if fb, ok := dataset.AsFloat(b); ok {
			return fa < fb
		}
	}
	return dataset.Label(a) < dataset.Label(b)
}

func axisValue(v any) any {
	if f, ok := dataset.AsFloat(v); ok {
		return f
	}
	return dataset.Label(v)
}

// xPosition places a row on a numeric axis for the trend fit; non-numeric,
// non-time axes use the row index
func xPosition(v any, index int) float64 {
	if t, ok := dataset.AsTime(v); ok {
		return float64(t.Unix())
	}
	if f, ok := dataset.AsFloat(v); ok {
		return f
	}
	return float64(index)
}

func seriesValues(rows []dataset.Row, col string) []any {
	out := make([]any, len(rows))
	for i, row := range rows {
		if f, ok := dataset.AsFloat(row[col]); ok && finite(f) {
			out[i] = f
		}
	}
	return out
}

func floats(values []float64) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

func minMax(values []float64) (float64, float64) {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range values {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	return lo, hi
}

func argMax(values []float64) int {
	best := 0
	for i, v := range values {
		if v > values[best] {
			best = i
		}
	}
	return best
}

func argMin(values []float64) int {
	best := 0
	for i, v := range values {
		if v < values[best] {
			best = i
		}
	}
	return best
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
