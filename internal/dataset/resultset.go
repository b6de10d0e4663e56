// Package dataset holds the tabular result of an executed query.
package dataset

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Row maps column name to a scalar: string, float64, int64, bool, time.Time or nil.
type Row map[string]any

// ResultSet is rectangular and read-only after construction
type ResultSet struct {
	Columns []string
	Rows    []Row
}

// New builds a ResultSet, filling missing cells with nil so every row has every column.
func New(columns []string, rows []Row) *ResultSet {
	for _, row := range rows {
		for _, c := range columns {
			if _, ok := row[c]; !ok {
				row[c] = nil
			}
		}
	}
	return &ResultSet{Columns: columns, Rows: rows}
}

// FromRecords builds a ResultSet from positional values
func FromRecords(columns []string, records [][]any) (*ResultSet, error) {
	rows := make([]Row, 0, len(records))
	for i, rec := range records {
		if len(rec) != len(columns) {
			return nil, fmt.Errorf("record %d has %d values, want %d", i, len(rec), len(columns))
		}
		row := make(Row, len(columns))
		for j, c := range columns {
			row[c] = rec[j]
		}
		rows = append(rows, row)
	}
	return &ResultSet{Columns: columns, Rows: rows}, nil
}

// Len returns the row count; nil is empty
func (rs *ResultSet) Len() int {
	if rs == nil {
		return 0
	}
	return len(rs.Rows)
}

// Width returns the column count
func (rs *ResultSet) Width() int {
	if rs == nil {
		return 0
	}
	return len(rs.Columns)
}

// IsEmpty reports a nil set, no rows or no columns
func (rs *ResultSet) IsEmpty() bool {
	return rs.Len() == 0 || rs.Width() == 0
}

// Column returns the values of one column in row order
func (rs *ResultSet) Column(name string) []any {
	if rs == nil {
		return nil
	}
	out := make([]any, len(rs.Rows))
	for i, row := range rs.Rows {
		out[i] = row[name]
	}
	return out
}

// Records returns the rows as positional slices in column order
func (rs *ResultSet) Records() [][]any {
	if rs == nil {
		return nil
	}
	out := make([][]any, len(rs.Rows))
	for i, row := range rs.Rows {
		rec := make([]any, len(rs.Columns))
		for j, c := range rs.Columns {
			rec[j] = row[c]
		}
		out[i] = rec
	}
	return out
}

// MarshalJSON writes the rows as an array of objects with keys in column order
func (rs *ResultSet) MarshalJSON() ([]byte, error) {
	if rs == nil {
		return []byte("[]"), nil
	}
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, row := range rs.Rows {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteByte('{')
		for j, c := range rs.Columns {
			if j > 0 {
				buf.WriteByte(',')
			}
			key, err := json.Marshal(c)
			if err != nil {
				return nil, err
			}
			val, err := json.Marshal(row[c])
			if err != nil {
				return nil, fmt.Errorf("column %s: %w", c, err)
			}
			buf.Write(key)
			buf.WriteByte(':')
			buf.Write(val)
		}
		buf.WriteByte('}')
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

// AsFloat converts numeric cells to float64. Numeric strings are not
// converted; executors normalize NUMERIC text before rows get here.
func AsFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

// IsNumeric reports whether v is a number
func IsNumeric(v any) bool {
	_, ok := AsFloat(v)
	return ok
}

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
	"2006/01/02",
	"02.01.2006",
	"2006-01",
}

// AsTime converts time.Time cells and date-like strings
func AsTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return time.Time{}, false
		}
		for _, layout := range dateLayouts {
			if parsed, err := time.Parse(layout, s); err == nil {
				return parsed, true
			}
		}
	}
	return time.Time{}, false
}

// Label renders a cell for chart axes and narrative text
func Label(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case time.Time:
		if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 {
			return t.Format("2006-01-02")
		}
		return t.Format("2006-01-02 15:04:05")
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}
