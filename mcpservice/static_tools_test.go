package mcpservice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/motebus/Ultra-MCP-Servers/mcp"
)

type emptyArgs struct{}

type echoArgs struct {
	Message string `json:"message"`
	Times   int    `json:"times,omitempty" jsonschema:"minimum=1,default=1"`
}

func callText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if res == nil || len(res.Content) != 1 {
		b, _ := json.Marshal(res)
		t.Fatalf("expected a single content block, got %s", b)
	}
	return res.Content[0].Text
}

func newEchoTool(name string, opts ...ToolOption) StaticTool {
	return NewTool[echoArgs](name, func(ctx context.Context, w ToolResponseWriter, r *ToolRequest[echoArgs]) error {
		a := r.Args()
		if a.Message == "boom" {
			return errors.New("exploded")
		}
		if a.Message == "config" {
			return NewConfigError("Missing required MinIO configuration: %s", "serverUrl")
		}
		for i := 0; i < a.Times; i++ {
			if err := w.AppendText(a.Message); err != nil {
				return err
			}
		}
		return nil
	}, opts...)
}

func TestNewTool_DecodesNormalizedArguments(t *testing.T) {
	c := NewToolsContainer(newEchoTool("echo"))
	res, err := c.CallTool(context.Background(), &mcp.CallToolRequestReceived{
		Name:      "echo",
		Arguments: json.RawMessage(`{"message":"hi","times":"2"}`),
	})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if res.IsError || len(res.Content) != 2 || res.Content[1].Text != "hi" {
		b, _ := json.Marshal(res)
		t.Fatalf("unexpected result: %s", b)
	}
}

func TestNewTool_ValidationFailureIsTextResult(t *testing.T) {
	c := NewToolsContainer(newEchoTool("echo"))
	res, err := c.CallTool(context.Background(), &mcp.CallToolRequestReceived{Name: "echo", Arguments: json.RawMessage(`{}`)})
	if err != nil {
		t.Fatalf("validation failures must not be protocol errors: %v", err)
	}
	if !res.IsError {
		t.Fatalf("expected isError")
	}
	if got := callText(t, res); got != "invalid arguments: missing required argument: message" {
		t.Fatalf("unexpected text: %q", got)
	}
}

func TestNewTool_HandlerErrorsUsePrefix(t *testing.T) {
	c := NewToolsContainer(
		newEchoTool("default"),
		newEchoTool("custom", WithToolErrorPrefix("Error in flow operation: ")),
	)
	cases := []struct {
		tool, msg, want string
	}{
		{"default", "boom", "Error: exploded"},
		{"custom", "boom", "Error in flow operation: exploded"},
		{"custom", "config", "Configuration error: Missing required MinIO configuration: serverUrl"},
	}
	for _, tc := range cases {
		res, err := c.CallTool(context.Background(), &mcp.CallToolRequestReceived{
			Name:      tc.tool,
			Arguments: json.RawMessage(fmt.Sprintf(`{"message":%q}`, tc.msg)),
		})
		if err != nil {
			t.Fatalf("CallTool(%s): %v", tc.tool, err)
		}
		if !res.IsError || callText(t, res) != tc.want {
			b, _ := json.Marshal(res)
			t.Fatalf("CallTool(%s, %s) = %s, want %q", tc.tool, tc.msg, b, tc.want)
		}
	}
}

func TestToolsContainer_UnknownToolIsProtocolError(t *testing.T) {
	c := NewToolsContainer(newEchoTool("echo"))
	_, err := c.CallTool(context.Background(), &mcp.CallToolRequestReceived{Name: "Echo"})
	if !errors.Is(err, ErrUnknownTool) {
		t.Fatalf("expected ErrUnknownTool, got %v", err)
	}
	if !IsProtocolError(err) {
		t.Fatalf("expected protocol error classification")
	}
}

func TestToolsContainer_DuplicateNameReplacesInPlace(t *testing.T) {
	first := newEchoTool("echo", WithToolDescription("first"))
	other := NewTool[emptyArgs]("other", func(ctx context.Context, w ToolResponseWriter, r *ToolRequest[emptyArgs]) error {
		return nil
	})
	second := newEchoTool("echo", WithToolDescription("second"))
	c := NewToolsContainer(first, other, second)

	page, err := c.ListTools(context.Background(), nil)
	if err != nil {
		t.Fatalf("ListTools: %v", err)
	}
	if len(page.Items) != 2 {
		b, _ := json.Marshal(page.Items)
		t.Fatalf("expected 2 tools, got %s", b)
	}
	if page.Items[0].Name != "echo" || page.Items[0].Description != "second" || page.Items[1].Name != "other" {
		b, _ := json.Marshal(page.Items)
		t.Fatalf("unexpected listing: %s", b)
	}
}

func TestToolsContainer_RejectsUndeclaredRequired(t *testing.T) {
	c := NewToolsContainer()
	err := c.Register(StaticTool{
		Descriptor: mcp.Tool{Name: "bad", InputSchema: mcp.ToolInputSchema{Type: "object", Required: []string{"ghost"}}},
		Handler: func(ctx context.Context, req *mcp.CallToolRequestReceived) (*mcp.CallToolResult, error) {
			return TextResult("unreachable"), nil
		},
	})
	if err == nil {
		t.Fatalf("expected registration error")
	}
}

func TestToolsContainer_Pagination(t *testing.T) {
	var defs []StaticTool
	for i := 0; i < 5; i++ {
		defs = append(defs, newEchoTool(fmt.Sprintf("t%d", i)))
	}
	c := NewToolsContainer(defs...)
	c.SetPageSize(2)

	var names []string
	var cursor *string
	for {
		page, err := c.ListTools(context.Background(), cursor)
		if err != nil {
			t.Fatalf("ListTools: %v", err)
		}
		for _, tool := range page.Items {
			names = append(names, tool.Name)
		}
		if page.NextCursor == nil {
			break
		}
		cursor = page.NextCursor
	}
	if len(names) != 5 || names[4] != "t4" {
		t.Fatalf("unexpected names: %v", names)
	}
}

func TestNewTool_CancelledContextIsReturned(t *testing.T) {
	tool := NewTool[emptyArgs]("slow", func(ctx context.Context, w ToolResponseWriter, r *ToolRequest[emptyArgs]) error {
		<-ctx.Done()
		return ctx.Err()
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := tool.Handler(ctx, &mcp.CallToolRequestReceived{Name: "slow"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestToolResponseWriter_ProgressAndFinalize(t *testing.T) {
	var reports []float64
	ctx := WithProgressReporter(context.Background(), ProgressReporterFunc(func(ctx context.Context, progress, total float64) error {
		reports = append(reports, progress)
		return nil
	}))
	w := newToolResponseWriter(ctx)
	if err := w.SendProgress(1, 2); err != nil {
		t.Fatalf("SendProgress: %v", err)
	}
	_ = w.AppendText("done")
	res := w.Result()
	if len(res.Content) != 1 || len(reports) != 1 {
		t.Fatalf("unexpected state: content=%d reports=%v", len(res.Content), reports)
	}
	if err := w.AppendText("late"); !errors.Is(err, ErrFinalized) {
		t.Fatalf("expected ErrFinalized, got %v", err)
	}
}
