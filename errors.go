package main

import (
	"errors"
	"fmt"
)

// Adapter state errors. Neither reaches the engine.
var (
	ErrNotConnected     = errors.New("adapter is not connected")
	ErrAlreadyConnected = errors.New("adapter is already connected")
)

// ConfigError is fatal and only produced at startup.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return "configuration error: " + e.Message
	}
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Message)
}

// RejectionKind says which stage of the guard refused a query.
type RejectionKind int

const (
	RejectNotAllowlistedStart RejectionKind = iota + 1
	RejectWriteKeyword
)

func (k RejectionKind) String() string {
	switch k {
	case RejectNotAllowlistedStart:
		return "NotAllowlistedStart"
	case RejectWriteKeyword:
		return "WriteKeywordPresent"
	default:
		return "Unknown"
	}
}

// RejectionError is returned by Guard.Validate. It is routine, not a crash.
type RejectionError struct {
	Kind    RejectionKind
	Keyword string
}

func (e *RejectionError) Error() string {
	switch e.Kind {
	case RejectNotAllowlistedStart:
		return "query rejected: must begin with SELECT or WITH"
	case RejectWriteKeyword:
		return fmt.Sprintf("query rejected: contains restricted write keyword %s", e.Keyword)
	default:
		return "query rejected"
	}
}

// ConnectionError wraps an engine failure while establishing a connection.
type ConnectionError struct {
	Engine Engine
	Err    error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("failed to connect to %s database: %v", e.Engine, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// ExecutionError wraps an engine failure while running a query, including
// deadline expiry.
type ExecutionError struct {
	Engine Engine
	Err    error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("query failed on %s: %v", e.Engine, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }
