package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// queryResponse and errorResponse are the JSON bodies returned by run_query.
type queryResponse struct {
	Success   bool             `json:"success"`
	Database  string           `json:"database"`
	RowCount  int              `json:"rowCount"`
	Data      []map[string]any `json:"data"`
	Truncated bool             `json:"truncated,omitempty"`
}

type errorResponse struct {
	Success  bool   `json:"success"`
	Database string `json:"database"`
	Error    string `json:"error"`
}

func (s *MCPServer) registerRunQuery() {
	tool := mcp.NewTool("run_query",
		mcp.WithDescription(fmt.Sprintf(
			"Executes a secure, read-only SQL query (SELECT or WITH) against the '%s' (%s) database. "+
				"This tool is pre-configured and requires no connection info.", s.dbName, s.engine)),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("The read-only SQL query to execute."),
		),
	)
	s.mcp.AddTool(tool, s.handleRunQuery)
}

func (s *MCPServer) handleRunQuery(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, _ := req.GetArguments()["query"].(string)

	result, err := s.runner.Run(ctx, query)
	if err != nil {
		return s.failure(err), nil
	}

	body, err := json.MarshalIndent(queryResponse{
		Success:   true,
		Database:  s.dbName,
		RowCount:  len(result.Rows),
		Data:      result.Rows,
		Truncated: result.Truncated,
	}, "", "  ")
	if err != nil {
		return s.failure(fmt.Errorf("failed to marshal results: %w", err)), nil
	}
	return mcp.NewToolResultText(string(body)), nil
}

// failure renders err as the structured error body. Rejections are routine;
// only engine-side failures are worth a warning.
func (s *MCPServer) failure(err error) *mcp.CallToolResult {
	var rej *RejectionError
	if !errors.As(err, &rej) {
		s.logger.Warn("run_query failed", "error", err)
	}

	body, merr := json.MarshalIndent(errorResponse{
		Success:  false,
		Database: s.dbName,
		Error:    err.Error(),
	}, "", "  ")
	if merr != nil {
		return mcp.NewToolResultError(err.Error())
	}
	return mcp.NewToolResultError(string(body))
}

func (s *MCPServer) tablesURI() string {
	return fmt.Sprintf("%s://%s/tables", s.engine, s.dbName)
}

func (s *MCPServer) registerSchemaResources() {
	tables := mcp.NewResource(s.tablesURI(), "Tables",
		mcp.WithResourceDescription(fmt.Sprintf("Tables in the '%s' database", s.dbName)),
		mcp.WithMIMEType("application/json"),
	)
	s.mcp.AddResource(tables, s.handleListTables)

	schema := mcp.NewResourceTemplate(
		fmt.Sprintf("%s://%s/{table}/schema", s.engine, s.dbName),
		"Table schema",
		mcp.WithTemplateDescription("Column definitions for a table"),
		mcp.WithTemplateMIMEType("application/json"),
	)
	s.mcp.AddResourceTemplate(schema, s.handleReadSchema)
}

func (s *MCPServer) handleListTables(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	tables, err := s.runner.ListTables(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	return jsonResource(req.Params.URI, tables)
}

func (s *MCPServer) handleReadSchema(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	table, err := s.tableFromURI(req.Params.URI)
	if err != nil {
		return nil, err
	}

	columns, err := s.runner.DescribeTable(ctx, table)
	if err != nil {
		return nil, fmt.Errorf("failed to get schema: %w", err)
	}
	return jsonResource(req.Params.URI, columns)
}

// tableFromURI parses <engine>://<database>/<table>/schema.
func (s *MCPServer) tableFromURI(uri string) (string, error) {
	prefix := fmt.Sprintf("%s://%s/", s.engine, s.dbName)
	if !strings.HasPrefix(uri, prefix) {
		return "", fmt.Errorf("invalid resource URI: must start with %s", prefix)
	}
	table, ok := strings.CutSuffix(strings.TrimPrefix(uri, prefix), "/schema")
	if !ok || table == "" || strings.Contains(table, "/") {
		return "", fmt.Errorf("invalid resource URI format: expected %s<table>/schema", prefix)
	}
	return table, nil
}

func jsonResource(uri string, v any) ([]mcp.ResourceContents, error) {
	text, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal resource: %w", err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(text),
		},
	}, nil
}
