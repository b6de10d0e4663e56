package processor

import (
	"context"
	"strings"

	"github.com/seanankenbruck/transactions-ai/internal/dataset"
	"github.com/seanankenbruck/transactions-ai/internal/errors"
)

// ToolKind is the closed set of dataset tools
type ToolKind int

const (
	ToolListTables ToolKind = iota
	ToolTableInfo
	ToolRunQuery
)

var toolNames = [...]string{
	ToolListTables: "list_tables",
	ToolTableInfo:  "table_info",
	ToolRunQuery:   "run_query",
}

func (k ToolKind) String() string {
	if k < 0 || int(k) >= len(toolNames) {
		return "unknown"
	}
	return toolNames[k]
}

// ParseTool maps a tool name to its kind
func ParseTool(name string) (ToolKind, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for i, n := range toolNames {
		if n == name {
			return ToolKind(i), nil
		}
	}
	return 0, errors.NewUnknownToolError(name)
}

// ToolRequest carries the arguments of every tool; each reads what it needs
type ToolRequest struct {
	Table      string `json:"table,omitempty"`
	SQL        string `json:"sql,omitempty"`
	SampleRows int    `json:"sample_rows,omitempty"`
}

// TablesResult is the answer of list_tables
type TablesResult struct {
	Tables []string `json:"tables"`
}

// RunQueryResult is the answer of run_query
type RunQueryResult struct {
	Data     *dataset.ResultSet `json:"data"`
	SQL      string             `json:"sql"`
	RowCount int                `json:"row_count"`
}

type toolHandler func(ctx context.Context, qp *QueryProcessor, agent *Agent, req ToolRequest) (interface{}, error)

var toolHandlers = [...]toolHandler{
	ToolListTables: listTables,
	ToolTableInfo:  tableInfo,
	ToolRunQuery:   runQuery,
}

// RunTool dispatches a tool against a dataset
func (qp *QueryProcessor) RunTool(ctx context.Context, datasetID string, kind ToolKind, req ToolRequest) (interface{}, error) {
	if kind < 0 || int(kind) >= len(toolHandlers) {
		return nil, errors.NewUnknownToolError(kind.String())
	}
	agent, err := qp.Registry.Agent(ctx, datasetID)
	if err != nil {
		return nil, err
	}
	return toolHandlers[kind](ctx, qp, agent, req)
}

func listTables(ctx context.Context, qp *QueryProcessor, agent *Agent, req ToolRequest) (interface{}, error) {
	tables, err := agent.Executor.ListTables(ctx)
	if err != nil {
		return nil, err
	}
	return TablesResult{Tables: tables}, nil
}

func tableInfo(ctx context.Context, qp *QueryProcessor, agent *Agent, req ToolRequest) (interface{}, error) {
	if strings.TrimSpace(req.Table) == "" {
		return nil, errors.NewInvalidInputError("table", "is required")
	}
	rows := req.SampleRows
	if rows <= 0 {
		rows = agent.Connection.SampleRows
	}
	info, err := agent.Executor.DescribeTable(ctx, req.Table, rows)
	if err != nil {
		return nil, err
	}
	return info, nil
}

func runQuery(ctx context.Context, qp *QueryProcessor, agent *Agent, req ToolRequest) (interface{}, error) {
	if strings.TrimSpace(req.SQL) == "" {
		return nil, errors.NewEmptyInputError("sql")
	}
	rs, sql, err := qp.execute(ctx, agent, req.SQL)
	if err != nil {
		return nil, err
	}
	return RunQueryResult{Data: rs, SQL: sql, RowCount: rs.Len()}, nil
}
