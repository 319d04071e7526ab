package main

import (
	"context"
	"io"
	"log"
	"log/slog"

	"github.com/mark3labs/mcp-go/server"
)

const (
	ServerName    = "db-readonly-mcp-server"
	ServerVersion = "1.0.0"
)

// MCPServer exposes the runner as MCP tools and resources.
type MCPServer struct {
	mcp     *server.MCPServer
	runner  *Runner
	engine  Engine
	dbName  string
	logger  *slog.Logger
	closeFn func() error
}

// NewMCPServer registers the run_query tool and the schema resources.
func NewMCPServer(runner *Runner, adapter Adapter, logger *slog.Logger) *MCPServer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	s := &MCPServer{
		runner:  runner,
		engine:  adapter.Engine(),
		dbName:  adapter.DatabaseName(),
		logger:  logger,
		closeFn: adapter.Disconnect,
	}

	s.mcp = server.NewMCPServer(
		ServerName,
		ServerVersion,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
		server.WithRecovery(),
	)

	s.registerRunQuery()
	if _, ok := adapter.(Catalog); ok {
		s.registerSchemaResources()
	}
	return s
}

// Run serves MCP over the given streams until ctx is cancelled or in hits EOF.
func (s *MCPServer) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	stdio := server.NewStdioServer(s.mcp)
	stdio.SetErrorLogger(log.New(&slogWriter{logger: s.logger}, "", 0))
	return stdio.Listen(ctx, in, out)
}

// Close releases any connection still held by the adapter.
func (s *MCPServer) Close() error {
	if s.closeFn != nil {
		return s.closeFn()
	}
	return nil
}

// slogWriter forwards the transport's log.Logger output into slog.
type slogWriter struct {
	logger *slog.Logger
}

func (w *slogWriter) Write(p []byte) (int, error) {
	msg := string(p)
	if n := len(msg); n > 0 && msg[n-1] == '\n' {
		msg = msg[:n-1]
	}
	w.logger.Error(msg, "component", "transport")
	return len(p), nil
}
