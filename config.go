package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// DefaultMaxResultRows is overridable via MCP_MAX_ROWS.
const DefaultMaxResultRows = 10000

// Config is read once at startup and never changes afterwards.
type Config struct {
	Engine         Engine
	Details        ConnectionDetails
	SSLMode        string
	QueryTimeout   time.Duration
	ConnectTimeout time.Duration
	MaxRows        int
	LogLevel       slog.Level

	// EngineDeny adds the adapter's own deny keywords to the guard.
	EngineDeny bool
	// ExtraDeny are operator-supplied deny keywords.
	ExtraDeny []string
}

// LoadConfig loads envFile (if any) into the environment and builds a Config
// from it. Variables already set in the environment take precedence. An empty
// envFile tries ".env" and ignores it when absent.
func LoadConfig(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, &ConfigError{Field: "env file", Message: err.Error()}
		}
	} else if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, &ConfigError{Field: ".env", Message: err.Error()}
	}
	return configFromEnv(os.Getenv)
}

func configFromEnv(getenv func(string) string) (*Config, error) {
	engineName := getenv("DB_TYPE")
	if engineName == "" {
		return nil, &ConfigError{Field: "DB_TYPE", Message: "missing required environment variable"}
	}
	engine, err := ParseEngine(engineName)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Engine: engine,
		Details: ConnectionDetails{
			Host:     getenv("DB_HOST"),
			User:     getenv("DB_USER"),
			Password: getenv("DB_PASSWORD"),
			Database: getenv("DB_DATABASE"),
		},
		SSLMode:        getenv("DB_SSLMODE"),
		QueryTimeout:   DefaultQueryTimeout,
		ConnectTimeout: DefaultConnectTimeout,
		MaxRows:        DefaultMaxResultRows,
		LogLevel:       slog.LevelInfo,
	}

	required := []string{"DB_DATABASE"}
	if engine != EngineSQLite {
		required = []string{"DB_HOST", "DB_USER", "DB_PASSWORD", "DB_DATABASE"}
	}
	var missing []string
	for _, name := range required {
		if getenv(name) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, &ConfigError{
			Field:   strings.Join(missing, ", "),
			Message: "missing required environment variables",
		}
	}

	if v := getenv("DB_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil || port <= 0 || port > 65535 {
			return nil, &ConfigError{Field: "DB_PORT", Message: fmt.Sprintf("invalid port %q", v)}
		}
		cfg.Details.Port = port
	}

	if v := getenv("MCP_QUERY_TIMEOUT"); v != "" {
		d, err := parseTimeout(v)
		if err != nil {
			return nil, &ConfigError{Field: "MCP_QUERY_TIMEOUT", Message: err.Error()}
		}
		cfg.QueryTimeout = d
	}

	if v := getenv("MCP_CONNECT_TIMEOUT"); v != "" {
		d, err := parseTimeout(v)
		if err != nil {
			return nil, &ConfigError{Field: "MCP_CONNECT_TIMEOUT", Message: err.Error()}
		}
		cfg.ConnectTimeout = d
	}

	if v := getenv("MCP_MAX_ROWS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return nil, &ConfigError{Field: "MCP_MAX_ROWS", Message: fmt.Sprintf("invalid row limit %q", v)}
		}
		cfg.MaxRows = n
	}

	if v := getenv("MCP_ENGINE_DENY"); v != "" {
		on, err := parseSwitch(v)
		if err != nil {
			return nil, &ConfigError{Field: "MCP_ENGINE_DENY", Message: err.Error()}
		}
		cfg.EngineDeny = on
	}

	for _, kw := range strings.Split(getenv("MCP_EXTRA_DENY_KEYWORDS"), ",") {
		if kw = strings.TrimSpace(kw); kw != "" {
			cfg.ExtraDeny = append(cfg.ExtraDeny, kw)
		}
	}

	if v := getenv("MCP_LOG_LEVEL"); v != "" {
		if err := cfg.LogLevel.UnmarshalText([]byte(v)); err != nil {
			return nil, &ConfigError{Field: "MCP_LOG_LEVEL", Message: err.Error()}
		}
	}

	return cfg, nil
}

// parseTimeout accepts Go durations ("45s") or a bare number of seconds.
func parseTimeout(v string) (time.Duration, error) {
	if secs, err := strconv.Atoi(v); err == nil {
		if secs <= 0 {
			return 0, fmt.Errorf("timeout must be positive, got %q", v)
		}
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid timeout %q", v)
	}
	if d <= 0 {
		return 0, fmt.Errorf("timeout must be positive, got %q", v)
	}
	return d, nil
}

// parseSwitch accepts strconv.ParseBool values plus on/off.
func parseSwitch(v string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "on":
		return true, nil
	case "off":
		return false, nil
	}
	on, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid switch %q", v)
	}
	return on, nil
}

// DenyKeywords returns the keywords added to the guard's default deny-list.
// Engine keywords are only included when EngineDeny is set.
func (c *Config) DenyKeywords(adapter Adapter) []string {
	var extra []string
	if c.EngineDeny {
		extra = append(extra, adapter.DenyKeywords()...)
	}
	return append(extra, c.ExtraDeny...)
}

// AdapterOptions derives the engine-independent adapter options.
func (c *Config) AdapterOptions(logger *slog.Logger) AdapterOptions {
	return AdapterOptions{
		MaxRows: c.MaxRows,
		SSLMode: c.SSLMode,
		Logger:  logger,
	}
}
