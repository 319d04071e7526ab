package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	envFile := flag.String("env", "", "path to a dotenv file with DB_* settings (default: ./.env if present)")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: db-readonly-mcp-server [-env file]")
		fmt.Fprintln(os.Stderr, "Required: DB_TYPE (postgres|mysql|sqlite), DB_DATABASE")
		fmt.Fprintln(os.Stderr, "Required for network engines: DB_HOST, DB_USER, DB_PASSWORD")
		fmt.Fprintln(os.Stderr, "Optional: DB_PORT, DB_SSLMODE, MCP_QUERY_TIMEOUT, MCP_CONNECT_TIMEOUT, MCP_MAX_ROWS,")
		fmt.Fprintln(os.Stderr, "          MCP_ENGINE_DENY, MCP_EXTRA_DENY_KEYWORDS, MCP_LOG_LEVEL")
		flag.PrintDefaults()
	}
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s %s\n", ServerName, ServerVersion)
		return
	}

	cfg, err := LoadConfig(*envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		os.Exit(1)
	}

	// stdout carries the protocol; logs go to stderr.
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))

	adapter, err := NewAdapter(cfg.Engine, cfg.Details, cfg.AdapterOptions(logger))
	if err != nil {
		logger.Error("failed to create adapter", "error", err)
		os.Exit(1)
	}

	guard := NewGuard(logger, cfg.DenyKeywords(adapter)...)
	runner := NewRunner(guard, adapter, cfg.QueryTimeout, cfg.ConnectTimeout, logger)
	srv := NewMCPServer(runner, adapter, logger)
	defer srv.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("server started (read-only mode)",
		"engine", string(cfg.Engine),
		"connection", cfg.Details,
		"deny_keywords", guard.DenyKeywords(),
	)

	if err := srv.Run(ctx, os.Stdin, os.Stdout); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Info("server shutdown gracefully")
			return
		}
		logger.Error("server error", "error", err)
		srv.Close()
		os.Exit(1)
	}
}
