// Package servertest drives a mcpservice.ServerCapabilities directly from
// tests, without a transport.
package servertest

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/motebus/Ultra-MCP-Servers/mcp"
	"github.com/motebus/Ultra-MCP-Servers/mcpservice"
)

// Call invokes tool name with args (marshalled to JSON) and returns the
// result. A dispatch error fails the test.
func Call(t testing.TB, srv mcpservice.ServerCapabilities, name string, args any) *mcp.CallToolResult {
	t.Helper()
	return CallContext(context.Background(), t, srv, name, args)
}

// CallContext is Call with an explicit context.
func CallContext(ctx context.Context, t testing.TB, srv mcpservice.ServerCapabilities, name string, args any) *mcp.CallToolResult {
	t.Helper()
	tools, ok := srv.GetToolsCapability()
	if !ok {
		t.Fatalf("server has no tools capability")
	}
	raw, err := json.Marshal(args)
	if err != nil {
		t.Fatalf("marshal args: %v", err)
	}
	res, err := tools.CallTool(ctx, &mcp.CallToolRequestReceived{Name: name, Arguments: raw})
	if err != nil {
		t.Fatalf("CallTool(%s): %v", name, err)
	}
	return res
}

// Text returns the single text block of res, failing the test otherwise.
func Text(t testing.TB, res *mcp.CallToolResult) string {
	t.Helper()
	if res == nil || len(res.Content) != 1 {
		b, _ := json.Marshal(res)
		t.Fatalf("expected a single content block, got %s", b)
	}
	return res.Content[0].Text
}

// OK calls the tool and returns its text, failing the test on an error result.
func OK(t testing.TB, srv mcpservice.ServerCapabilities, name string, args any) string {
	t.Helper()
	res := Call(t, srv, name, args)
	if res.IsError {
		t.Fatalf("%s: unexpected error result %q", name, Text(t, res))
	}
	return Text(t, res)
}

// Fail calls the tool and returns its text, failing the test unless the
// result is an error result.
func Fail(t testing.TB, srv mcpservice.ServerCapabilities, name string, args any) string {
	t.Helper()
	res := Call(t, srv, name, args)
	if !res.IsError {
		t.Fatalf("%s: expected an error result, got %q", name, Text(t, res))
	}
	return Text(t, res)
}

// Prompt renders prompt name with args.
func Prompt(t testing.TB, srv mcpservice.ServerCapabilities, name string, args map[string]string) (*mcp.GetPromptResult, error) {
	t.Helper()
	prompts, ok := srv.GetPromptsCapability()
	if !ok {
		t.Fatalf("server has no prompts capability")
	}
	return prompts.GetPrompt(context.Background(), &mcp.GetPromptRequestReceived{Name: name, Arguments: args})
}

// PromptText renders prompt name and returns the text of its first message.
func PromptText(t testing.TB, srv mcpservice.ServerCapabilities, name string, args map[string]string) string {
	t.Helper()
	res, err := Prompt(t, srv, name, args)
	if err != nil {
		t.Fatalf("GetPrompt(%s): %v", name, err)
	}
	if len(res.Messages) == 0 {
		t.Fatalf("prompt %s rendered no messages", name)
	}
	return res.Messages[0].Content.Text
}

// Resources lists every resource of srv.
func Resources(t testing.TB, srv mcpservice.ServerCapabilities) []mcp.Resource {
	t.Helper()
	rc, ok := srv.GetResourcesCapability()
	if !ok {
		t.Fatalf("server has no resources capability")
	}
	page, err := rc.ListResources(context.Background(), nil)
	if err != nil {
		t.Fatalf("ListResources: %v", err)
	}
	return page.Items
}

// Read reads uri from srv.
func Read(t testing.TB, srv mcpservice.ServerCapabilities, uri string) ([]mcp.ResourceContents, error) {
	t.Helper()
	rc, ok := srv.GetResourcesCapability()
	if !ok {
		t.Fatalf("server has no resources capability")
	}
	return rc.ReadResource(context.Background(), uri)
}

// Subscribe returns the list-changed channel of srv's resources capability.
func Subscribe(t testing.TB, srv mcpservice.ServerCapabilities) <-chan struct{} {
	t.Helper()
	rc, ok := srv.GetResourcesCapability()
	if !ok {
		t.Fatalf("server has no resources capability")
	}
	sub, ok := rc.(mcpservice.ChangeSubscriber)
	if !ok {
		t.Fatalf("resources capability does not publish changes")
	}
	return sub.Subscriber()
}
