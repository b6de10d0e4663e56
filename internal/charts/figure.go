package charts

// Figure is the subset of the Plotly figure schema the renderer emits
type Figure struct {
	Data   []Trace `json:"data"`
	Layout Layout  `json:"layout"`
}

type Trace struct {
	Type          string      `json:"type"`
	Name          string      `json:"name,omitempty"`
	Mode          string      `json:"mode,omitempty"`
	X             []any       `json:"x,omitempty"`
	Y             []any       `json:"y,omitempty"`
	Z             [][]any     `json:"z,omitempty"`
	Labels        []any       `json:"labels,omitempty"`
	Values        []any       `json:"values,omitempty"`
	Orientation   string      `json:"orientation,omitempty"`
	Hole          float64     `json:"hole,omitempty"`
	TextInfo      string      `json:"textinfo,omitempty"`
	TextPosition  string      `json:"textposition,omitempty"`
	TextTemplate  string      `json:"texttemplate,omitempty"`
	HoverTemplate string      `json:"hovertemplate,omitempty"`
	NBinsX        int         `json:"nbinsx,omitempty"`
	Opacity       float64     `json:"opacity,omitempty"`
	Marker        *Marker     `json:"marker,omitempty"`
	Line          *LineStyle  `json:"line,omitempty"`
	XAxis         string      `json:"xaxis,omitempty"`
	YAxis         string      `json:"yaxis,omitempty"`
	ColorScale    string      `json:"colorscale,omitempty"`
	ZMid          *float64    `json:"zmid,omitempty"`
	ShowLegend    *bool       `json:"showlegend,omitempty"`
	ShowScale     *bool       `json:"showscale,omitempty"`
	BoxMean       interface{} `json:"boxmean,omitempty"`
}

type Marker struct {
	Color      interface{} `json:"color,omitempty"`
	ColorScale string      `json:"colorscale,omitempty"`
	Size       int         `json:"size,omitempty"`
	ShowScale  bool        `json:"showscale,omitempty"`
}

type LineStyle struct {
	Width int    `json:"width,omitempty"`
	Dash  string `json:"dash,omitempty"`
	Color string `json:"color,omitempty"`
}

type Title struct {
	Text string `json:"text"`
}

type Axis struct {
	Title  *Title    `json:"title,omitempty"`
	Domain []float64 `json:"domain,omitempty"`
	Type   string    `json:"type,omitempty"`
	Anchor string    `json:"anchor,omitempty"`
}

type Grid struct {
	Rows    int    `json:"rows"`
	Columns int    `json:"columns"`
	Pattern string `json:"pattern"`
}

type Legend struct {
	Orientation string  `json:"orientation,omitempty"`
	YAnchor     string  `json:"yanchor,omitempty"`
	Y           float64 `json:"y,omitempty"`
	XAnchor     string  `json:"xanchor,omitempty"`
	X           float64 `json:"x,omitempty"`
}

// Shape draws reference lines
type Shape struct {
	Type string    `json:"type"`
	XRef string    `json:"xref"`
	YRef string    `json:"yref"`
	X0   any       `json:"x0"`
	X1   any       `json:"x1"`
	Y0   any       `json:"y0"`
	Y1   any       `json:"y1"`
	Line LineStyle `json:"line"`
}

// Annotation is a text label, optionally with an arrow to a point
type Annotation struct {
	X           any     `json:"x"`
	Y           any     `json:"y"`
	XRef        string  `json:"xref,omitempty"`
	YRef        string  `json:"yref,omitempty"`
	XAnchor     string  `json:"xanchor,omitempty"`
	YAnchor     string  `json:"yanchor,omitempty"`
	Text        string  `json:"text"`
	ShowArrow   bool    `json:"showarrow"`
	ArrowHead   int     `json:"arrowhead,omitempty"`
	ArrowColor  string  `json:"arrowcolor,omitempty"`
	BgColor     string  `json:"bgcolor,omitempty"`
	BorderColor string  `json:"bordercolor,omitempty"`
	BorderWidth int     `json:"borderwidth,omitempty"`
	Opacity     float64 `json:"opacity,omitempty"`
}

type Layout struct {
	Title       Title        `json:"title"`
	Height      int          `json:"height,omitempty"`
	ShowLegend  *bool        `json:"showlegend,omitempty"`
	HoverMode   string       `json:"hovermode,omitempty"`
	XAxis       *Axis        `json:"xaxis,omitempty"`
	YAxis       *Axis        `json:"yaxis,omitempty"`
	YAxis2      *Axis        `json:"yaxis2,omitempty"`
	Grid        *Grid        `json:"grid,omitempty"`
	Legend      *Legend      `json:"legend,omitempty"`
	Shapes      []Shape      `json:"shapes,omitempty"`
	Annotations []Annotation `json:"annotations,omitempty"`
}

func boolPtr(b bool) *bool { return &b }

func axisTitle(text string) *Axis {
	return &Axis{Title: &Title{Text: text}}
}

// addHLine draws a horizontal reference line across the plot with a label
func (l *Layout) addHLine(y float64, dash, color, label string) {
	l.Shapes = append(l.Shapes, Shape{
		Type: "line", XRef: "paper", YRef: "y",
		X0: 0, X1: 1, Y0: y, Y1: y,
		Line: LineStyle{Dash: dash, Color: color},
	})
	l.Annotations = append(l.Annotations, Annotation{
		X: 1, Y: y, XRef: "paper", YRef: "y", XAnchor: "left",
		Text: label,
	})
}

// addVLine draws a vertical reference line; top places the label above the plot
func (l *Layout) addVLine(x float64, dash, color, label string, top bool) {
	l.Shapes = append(l.Shapes, Shape{
		Type: "line", XRef: "x", YRef: "paper",
		X0: x, X1: x, Y0: 0, Y1: 1,
		Line: LineStyle{Dash: dash, Color: color},
	})
	ann := Annotation{X: x, XRef: "x", YRef: "paper", Text: label}
	if top {
		ann.Y, ann.YAnchor = 1, "bottom"
	} else {
		ann.Y, ann.YAnchor = 0, "top"
	}
	l.Annotations = append(l.Annotations, ann)
}
