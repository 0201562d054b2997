package logctx

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestHandlerAddsContextGroups(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(New(slog.NewTextHandler(&buf, nil))).With(slog.String("component", "test"))

	ctx := WithSessionData(context.Background(), &SessionData{SessionID: "s1", Server: "notes"})
	ctx = WithRPCMessage(ctx, &RPCMessage{Method: "tools/call", ID: "7", Type: "request"})
	ctx = WithToolCallData(ctx, &ToolCallData{ToolName: "add-note"})
	log.InfoContext(ctx, "engine.handle_request.ok")

	out := buf.String()
	for _, want := range []string{"component=test", "sess.id=s1", "sess.server=notes", "rpc.method=tools/call", "rpc.id=7", "tool.name=add-note"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in %q", want, out)
		}
	}
}

func TestHandlerWithoutContextData(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(New(slog.NewTextHandler(&buf, nil)))
	log.Info("plain")
	if strings.Contains(buf.String(), "rpc.") {
		t.Fatalf("unexpected rpc group: %q", buf.String())
	}
}
