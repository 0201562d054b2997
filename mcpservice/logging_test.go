package mcpservice

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/motebus/Ultra-MCP-Servers/mcp"
)

func TestSlogLevelVarLogging_SetLevel(t *testing.T) {
	var lv slog.LevelVar
	logging := NewSlogLevelVarLogging(&lv)
	cases := map[mcp.LoggingLevel]slog.Level{
		mcp.LoggingLevelDebug:     slog.LevelDebug,
		mcp.LoggingLevelNotice:    slog.LevelInfo,
		mcp.LoggingLevelWarning:   slog.LevelWarn,
		mcp.LoggingLevelEmergency: slog.LevelError,
	}
	for in, want := range cases {
		if err := logging.SetLevel(context.Background(), in); err != nil {
			t.Fatalf("SetLevel(%s): %v", in, err)
		}
		if lv.Level() != want {
			t.Fatalf("SetLevel(%s) = %v, want %v", in, lv.Level(), want)
		}
	}
	if err := logging.SetLevel(context.Background(), "verbose"); !errors.Is(err, ErrInvalidLoggingLevel) {
		t.Fatalf("expected ErrInvalidLoggingLevel, got %v", err)
	}
}
