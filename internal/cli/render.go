// Package cli renders pipeline results for the terminal
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/seanankenbruck/transactions-ai/internal/dataset"
	"github.com/seanankenbruck/transactions-ai/internal/executor"
	"github.com/seanankenbruck/transactions-ai/internal/history"
	"github.com/seanankenbruck/transactions-ai/internal/processor"
	"github.com/seanankenbruck/transactions-ai/internal/safety"
)

// Format selects how results are written
type Format string

const (
	FormatTable    Format = "table"
	FormatJSON     Format = "json"
	FormatCSV      Format = "csv"
	FormatMarkdown Format = "markdown"
)

// ParseFormat accepts table, json, csv and md/markdown
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "table":
		return FormatTable, nil
	case "json":
		return FormatJSON, nil
	case "csv":
		return FormatCSV, nil
	case "md", "markdown":
		return FormatMarkdown, nil
	}
	return "", fmt.Errorf("unknown output format %q (use table, json, csv or markdown)", s)
}

// Printer writes results to w in one format
type Printer struct {
	w      io.Writer
	format Format
}

// NewPrinter creates a printer
func NewPrinter(w io.Writer, format Format) *Printer {
	return &Printer{w: w, format: format}
}

// JSON writes v indented
func (p *Printer) JSON(v interface{}) error {
	enc := json.NewEncoder(p.w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// ResultSet writes rows in the printer's format
func (p *Printer) ResultSet(rs *dataset.ResultSet) error {
	if p.format == FormatJSON {
		return p.JSON(rs)
	}
	if rs == nil || rs.IsEmpty() {
		_, err := fmt.Fprintln(p.w, "(0 rows)")
		return err
	}

	t := p.newTable()
	header := make(table.Row, len(rs.Columns))
	for i, c := range rs.Columns {
		header[i] = c
	}
	t.AppendHeader(header)
	for _, rec := range rs.Records() {
		row := make(table.Row, len(rec))
		for i, v := range rec {
			row[i] = cell(v)
		}
		t.AppendRow(row)
	}
	p.render(t)
	if p.format == FormatTable {
		_, err := fmt.Fprintf(p.w, "(%d rows)\n", rs.Len())
		return err
	}
	return nil
}

// Response writes a pipeline answer: the SQL, the rows and the insights
func (p *Printer) Response(resp *processor.QueryResponse) error {
	if p.format == FormatJSON {
		return p.JSON(resp)
	}
	if resp.SQL != "" && p.format == FormatTable {
		fmt.Fprintf(p.w, "SQL: %s\n\n", resp.SQL)
	}
	if resp.Error != nil {
		fmt.Fprintf(p.w, "Error [%s]: %s\n", resp.Error.Code, resp.Error.Message)
		if resp.Error.Suggestion != "" {
			fmt.Fprintf(p.w, "Suggestion: %s\n", resp.Error.Suggestion)
		}
		return nil
	}
	if err := p.ResultSet(resp.Data); err != nil {
		return err
	}
	if p.format != FormatTable || resp.Visualization == nil {
		return nil
	}

	viz := resp.Visualization
	if viz.Enabled {
		fmt.Fprintf(p.w, "\nChart: %s", viz.ChartType)
		if rec := viz.Recommendation; rec != nil {
			fmt.Fprintf(p.w, " (%s, confidence %.2f)", rec.Source, rec.Confidence)
		}
		fmt.Fprintln(p.w)
	}
	if viz.Insights != "" {
		fmt.Fprintf(p.w, "\n%s\n", viz.Insights)
	}
	return nil
}

// Verdicts writes one row per failed safety rule
func (p *Printer) Verdicts(sql string, verdicts []safety.Verdict) error {
	if p.format == FormatJSON {
		return p.JSON(map[string]interface{}{
			"sql":        sql,
			"is_safe":    len(verdicts) == 0,
			"violations": verdicts,
		})
	}
	if len(verdicts) == 0 {
		_, err := fmt.Fprintln(p.w, "✓ SQL is safe to execute")
		return err
	}
	t := p.newTable()
	t.AppendHeader(table.Row{"Rule", "Reason"})
	for _, v := range verdicts {
		t.AppendRow(table.Row{v.Rule, v.Reason})
	}
	p.render(t)
	return nil
}

// Tables writes the table list
func (p *Printer) Tables(tables []string) error {
	if p.format == FormatJSON {
		return p.JSON(processor.TablesResult{Tables: tables})
	}
	sorted := append([]string(nil), tables...)
	sort.Strings(sorted)
	t := p.newTable()
	t.AppendHeader(table.Row{"Table"})
	for _, name := range sorted {
		t.AppendRow(table.Row{name})
	}
	p.render(t)
	return nil
}

// TableInfo writes the columns of one table followed by its sample rows
func (p *Printer) TableInfo(info *executor.TableInfo) error {
	if p.format == FormatJSON {
		return p.JSON(info)
	}
	t := p.newTable()
	t.SetTitle(info.Name)
	t.AppendHeader(table.Row{"Column", "Type", "Nullable"})
	for _, c := range info.Columns {
		t.AppendRow(table.Row{c.Name, c.DataType, c.Nullable})
	}
	p.render(t)
	if info.Sample == nil || info.Sample.IsEmpty() {
		return nil
	}
	fmt.Fprintln(p.w)
	return p.ResultSet(info.Sample)
}

// Datasets writes the configured datasets, marking the default
func (p *Printer) Datasets(conns []processor.DatasetConnection, defaultID string) error {
	if p.format == FormatJSON {
		return p.JSON(map[string]interface{}{
			"datasets": conns,
			"default":  defaultID,
		})
	}
	t := p.newTable()
	t.AppendHeader(table.Row{"ID", "Name", "Driver", "Table", "Active", "Default"})
	for _, c := range conns {
		def := ""
		if c.ID == defaultID {
			def = "*"
		}
		t.AppendRow(table.Row{c.ID, c.Name, c.Driver, c.Table, c.Active, def})
	}
	p.render(t)
	return nil
}

// History writes recent runs, newest first
func (p *Printer) History(entries []history.Entry) error {
	if p.format == FormatJSON {
		return p.JSON(entries)
	}
	if len(entries) == 0 {
		_, err := fmt.Fprintln(p.w, "(no history)")
		return err
	}
	t := p.newTable()
	t.AppendHeader(table.Row{"When", "Dataset", "Question", "Status", "Rows", "Chart", "ms"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 3, WidthMax: 48},
		{Number: 5, Align: text.AlignRight},
		{Number: 7, Align: text.AlignRight},
	})
	for _, e := range entries {
		t.AppendRow(table.Row{
			e.CreatedAt.Format("2006-01-02 15:04"),
			e.DatasetID,
			e.UserQuery,
			e.Status,
			e.RowCount,
			e.ChartType,
			e.ExecutionMS,
		})
	}
	p.render(t)
	return nil
}

func (p *Printer) newTable() table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(p.w)
	t.SetStyle(table.StyleLight)
	return t
}

func (p *Printer) render(t table.Writer) {
	switch p.format {
	case FormatCSV:
		t.RenderCSV()
	case FormatMarkdown:
		t.RenderMarkdown()
	default:
		t.Render()
	}
}

func cell(v any) any {
	if v == nil {
		return "NULL"
	}
	return dataset.Label(v)
}
