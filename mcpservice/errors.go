package mcpservice

import (
	"errors"
	"fmt"
)

// Caller contract violations. The engine reports these as JSON-RPC invalid
// params errors rather than as tool output.
var (
	ErrUnknownTool       = errors.New("unknown tool")
	ErrUnknownPrompt     = errors.New("unknown prompt")
	ErrUnsupportedScheme = errors.New("unsupported URI scheme")
)

// MissingArgumentError indicates that a required prompt argument was absent.
type MissingArgumentError struct {
	Prompt   string
	Argument string
}

func (e *MissingArgumentError) Error() string {
	return fmt.Sprintf("missing required argument %q for prompt %q", e.Argument, e.Prompt)
}

// NotFoundError indicates a requested item (note, bucket, collection,
// resource) doesn't exist. Tools render it as text; resources/read maps it to
// the resource-not-found protocol error.
type NotFoundError struct {
	Kind string // "note", "bucket", "collection", "resource"
	Name string // identifier that wasn't found
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.Name)
}

// ConfigError wraps a missing or malformed credential or endpoint. It is
// surfaced when a tool runs, never at startup.
type ConfigError struct {
	Err error
}

func (e *ConfigError) Error() string {
	return e.Err.Error()
}

func (e *ConfigError) Unwrap() error { return e.Err }

// NewConfigError formats a ConfigError.
func NewConfigError(format string, a ...any) *ConfigError {
	return &ConfigError{Err: fmt.Errorf(format, a...)}
}

// IsProtocolError reports whether err describes a caller contract violation
// that belongs on the JSON-RPC error channel.
func IsProtocolError(err error) bool {
	var missing *MissingArgumentError
	return errors.Is(err, ErrUnknownTool) ||
		errors.Is(err, ErrUnknownPrompt) ||
		errors.Is(err, ErrUnsupportedScheme) ||
		errors.As(err, &missing)
}
