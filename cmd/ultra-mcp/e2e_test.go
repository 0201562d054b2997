package main

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/motebus/Ultra-MCP-Servers/stdio"
)

type session struct {
	cs          *sdk.ClientSession
	listChanged chan struct{}
}

// startServer runs the named server over in-memory pipes and connects the
// reference client to it.
func startServer(t *testing.T, name string, opts *options) *session {
	t.Helper()
	if opts == nil {
		opts = &options{state: stateMemory, logLevel: "error", configPath: filepath.Join(t.TempDir(), "config.json")}
	}
	var def *serverDef
	for i := range serverDefs {
		if serverDefs[i].name == name {
			def = &serverDefs[i]
		}
	}
	if def == nil {
		t.Fatalf("no server %q", name)
	}

	ctx, cancel := context.WithCancel(context.Background())
	a := newApp(opts, io.Discard)
	srv, err := def.build(ctx, a)
	if err != nil {
		cancel()
		t.Fatalf("build %s: %v", name, err)
	}

	c2sR, c2sW := io.Pipe()
	s2cR, s2cW := io.Pipe()
	h := stdio.NewHandler(srv,
		stdio.WithIO(c2sR, s2cW),
		stdio.WithLogger(a.log),
		stdio.WithUserProvider(stdio.StaticUserProvider("e2e")),
	)
	done := make(chan error, 1)
	go func() { done <- h.Serve(ctx) }()

	s := &session{listChanged: make(chan struct{}, 8)}
	client := sdk.NewClient(&sdk.Implementation{Name: "e2e", Version: "0.0.1"}, &sdk.ClientOptions{
		ResourceListChangedHandler: func(context.Context, *sdk.ResourceListChangedRequest) {
			select {
			case s.listChanged <- struct{}{}:
			default:
			}
		},
	})
	cs, err := client.Connect(ctx, &sdk.IOTransport{Reader: s2cR, Writer: c2sW}, nil)
	if err != nil {
		cancel()
		t.Fatalf("connect: %v", err)
	}
	s.cs = cs

	t.Cleanup(func() {
		_ = cs.Close()
		cancel()
		_ = c2sW.Close()
		_ = s2cW.Close()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("Serve: %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Errorf("Serve did not return")
		}
		_ = a.Close()
	})
	return s
}

func toolText(t *testing.T, res *sdk.CallToolResult) string {
	t.Helper()
	if len(res.Content) != 1 {
		t.Fatalf("expected one content block, got %d", len(res.Content))
	}
	tc, ok := res.Content[0].(*sdk.TextContent)
	if !ok {
		t.Fatalf("expected text content, got %T", res.Content[0])
	}
	return tc.Text
}

func TestNotesEndToEnd(t *testing.T) {
	s := startServer(t, "notes", nil)
	ctx := context.Background()

	res, err := s.cs.CallTool(ctx, &sdk.CallToolParams{Name: "add-note", Arguments: map[string]any{"name": "plan", "content": "write the tests"}})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if res.IsError {
		t.Fatalf("unexpected error result %q", toolText(t, res))
	}
	if got := toolText(t, res); got != "Added note 'plan' with content: write the tests" {
		t.Fatalf("unexpected reply %q", got)
	}

	select {
	case <-s.listChanged:
	case <-time.After(5 * time.Second):
		t.Fatalf("no resources/list_changed notification")
	}

	resources, err := s.cs.ListResources(ctx, &sdk.ListResourcesParams{})
	if err != nil {
		t.Fatalf("ListResources: %v", err)
	}
	if len(resources.Resources) != 1 || resources.Resources[0].URI != "note://internal/plan" {
		t.Fatalf("unexpected resources %+v", resources.Resources)
	}

	read, err := s.cs.ReadResource(ctx, &sdk.ReadResourceParams{URI: "note://internal/plan"})
	if err != nil {
		t.Fatalf("ReadResource: %v", err)
	}
	if len(read.Contents) != 1 || read.Contents[0].Text != "write the tests" {
		t.Fatalf("unexpected contents %+v", read.Contents)
	}

	prompt, err := s.cs.GetPrompt(ctx, &sdk.GetPromptParams{Name: "summarize-notes", Arguments: map[string]string{"style": "brief"}})
	if err != nil {
		t.Fatalf("GetPrompt: %v", err)
	}
	text, ok := prompt.Messages[0].Content.(*sdk.TextContent)
	if !ok || text.Text != "Here are the current notes to summarize:\n\n- plan: write the tests" {
		t.Fatalf("unexpected prompt %+v", prompt.Messages[0].Content)
	}

	res, err = s.cs.CallTool(ctx, &sdk.CallToolParams{Name: "word-count", Arguments: map[string]any{"name": "missing"}})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if !res.IsError || toolText(t, res) != "Error: Note 'missing' not found" {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestServersAdvertiseTools(t *testing.T) {
	want := map[string][]string{
		"notes":    {"add-note", "get-youtube-transcript", "randomize-note", "tag-note", "word-count"},
		"scout":    {"web-search"},
		"qdrant":   {"qdrant-delete-collection", "qdrant-list-collections", "qdrant-read-collection", "qdrant-write-collection"},
		"s3":       {"bucket_size", "fget_object", "fput_object", "list_buckets", "list_objects", "make_bucket", "read_bucket", "remove_bucket"},
		"langflow": {"add-component-to-flow", "create-flow", "delete-flow", "generate-component", "list-flows", "upload-saved-component"},
	}
	for _, def := range serverDefs {
		t.Run(def.name, func(t *testing.T) {
			s := startServer(t, def.name, nil)
			res, err := s.cs.ListTools(context.Background(), &sdk.ListToolsParams{})
			if err != nil {
				t.Fatalf("ListTools: %v", err)
			}
			var got []string
			for _, tool := range res.Tools {
				got = append(got, tool.Name)
			}
			sort.Strings(got)
			if diff := cmp.Diff(want[def.name], got); diff != "" {
				t.Fatalf("tools mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestS3MissingConfigurationIsToolError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"mcpServers": {"s3": {"minioConfig": {"serverUrl": "localhost:9000", "accessKey": "a"}}}}`), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	s := startServer(t, "s3", &options{state: stateMemory, logLevel: "error", configPath: path})

	res, err := s.cs.CallTool(context.Background(), &sdk.CallToolParams{Name: "list_buckets", Arguments: map[string]any{}})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if !res.IsError || toolText(t, res) != "Configuration error: Missing required MinIO configuration: secretKey" {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestUnreachableRedisSurfacesOnToolCalls(t *testing.T) {
	opts := &options{
		state:      stateRedis,
		redisAddr:  "127.0.0.1:1",
		logLevel:   "error",
		configPath: filepath.Join(t.TempDir(), "config.json"),
	}
	s := startServer(t, "notes", opts)
	ctx := context.Background()

	res, err := s.cs.CallTool(ctx, &sdk.CallToolParams{Name: "add-note", Arguments: map[string]any{"name": "plan", "content": "x"}})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if !res.IsError || !strings.HasPrefix(toolText(t, res), "Error: save note: ") {
		t.Fatalf("unexpected result %+v", res)
	}

	resources, err := s.cs.ListResources(ctx, &sdk.ListResourcesParams{})
	if err != nil {
		t.Fatalf("ListResources: %v", err)
	}
	if len(resources.Resources) != 0 {
		t.Fatalf("unexpected resources %+v", resources.Resources)
	}
}

func TestRootRejectsUnknownState(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetArgs([]string{"--state", "etcd", "notes"})
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	err := cmd.ExecuteContext(context.Background())
	if err == nil || !strings.Contains(err.Error(), `unsupported --state "etcd"`) {
		t.Fatalf("expected a --state error, got %v", err)
	}
}

func TestRootRejectsBadLogLevel(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetArgs([]string{"--log-level", "loud", "notes"})
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	if err := cmd.ExecuteContext(context.Background()); err == nil || !strings.Contains(err.Error(), "invalid --log-level") {
		t.Fatalf("expected a --log-level error, got %v", err)
	}
}
