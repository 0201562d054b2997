package stdio

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/motebus/Ultra-MCP-Servers/internal/jsonrpc"
	"github.com/motebus/Ultra-MCP-Servers/mcp"
	"github.com/motebus/Ultra-MCP-Servers/mcpservice"
)

// testHarness encapsulates pipes and collected output for stdio handler tests.
type testHarness struct {
	t       *testing.T
	ctx     context.Context
	cancel  context.CancelFunc
	stdinW  *io.PipeWriter
	stdoutR *bufio.Scanner
	done    chan error
	outMu   sync.Mutex
	lines   []string
}

func defaultInitializeRequest() mcp.InitializeRequest {
	return mcp.InitializeRequest{
		ProtocolVersion: mcp.LatestProtocolVersion,
		ClientInfo:      mcp.ImplementationInfo{Name: "client", Version: "0.0.1"},
	}
}

func newHarness(t *testing.T, srv mcpservice.ServerCapabilities) *testHarness {
	t.Helper()

	inR, inW := io.Pipe()
	outR, outW := io.Pipe()

	h := NewHandler(srv,
		WithIO(inR, outW),
		WithLogger(slog.New(slog.DiscardHandler)),
		WithUserProvider(StaticUserProvider("tester")),
	)

	ctx, cancel := context.WithCancel(context.Background())
	th := &testHarness{t: t, ctx: ctx, cancel: cancel, stdinW: inW, stdoutR: bufio.NewScanner(outR), done: make(chan error, 1)}

	go func() {
		th.done <- h.Serve(ctx)
	}()

	go func() {
		for th.stdoutR.Scan() {
			line := strings.TrimSpace(th.stdoutR.Text())
			th.t.Logf("OUT: %s", line)
			th.outMu.Lock()
			th.lines = append(th.lines, line)
			th.outMu.Unlock()
		}
	}()

	t.Cleanup(func() {
		cancel()
		_ = inW.Close()
		_ = outW.Close()
	})
	return th
}

func (th *testHarness) sendRaw(s string) {
	th.t.Helper()
	if _, err := th.stdinW.Write([]byte(s)); err != nil {
		th.t.Fatalf("write stdin: %v", err)
	}
}

// send writes a JSON-RPC request (as marshalled JSON + newline) to stdin.
func (th *testHarness) send(req *jsonrpc.Request) {
	th.t.Helper()
	b, err := json.Marshal(req)
	if err != nil {
		th.t.Fatalf("marshal request: %v", err)
	}
	th.sendRaw(string(b) + "\n")
}

func (th *testHarness) nextLine(timeout time.Duration) (string, error) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		th.outMu.Lock()
		if len(th.lines) > 0 {
			s := th.lines[0]
			th.lines = th.lines[1:]
			th.outMu.Unlock()
			return s, nil
		}
		th.outMu.Unlock()
		time.Sleep(2 * time.Millisecond)
	}
	return "", fmt.Errorf("timeout waiting for output line")
}

func (th *testHarness) nextMessage(timeout time.Duration) *jsonrpc.AnyMessage {
	th.t.Helper()
	line, err := th.nextLine(timeout)
	if err != nil {
		th.t.Fatal(err)
	}
	var msg jsonrpc.AnyMessage
	if err := json.Unmarshal([]byte(line), &msg); err != nil {
		th.t.Fatalf("decode output %q: %v", line, err)
	}
	return &msg
}

func (th *testHarness) expectResponse(timeout time.Duration) *jsonrpc.Response {
	th.t.Helper()
	msg := th.nextMessage(timeout)
	if msg.Type() != "response" {
		th.t.Fatalf("expected response, got %s %s", msg.Type(), msg.Method)
	}
	return msg.AsResponse()
}

func (th *testHarness) initialize(id string, req mcp.InitializeRequest) *mcp.InitializeResult {
	th.t.Helper()

	th.send(&jsonrpc.Request{
		JSONRPCVersion: jsonrpc.ProtocolVersion,
		Method:         string(mcp.InitializeMethod),
		ID:             jsonrpc.NewRequestID(id),
		Params:         mustJSON(th.t, req),
	})

	res := th.expectResponse(time.Second)
	if res.Error != nil {
		th.t.Fatalf("initialize failed: %+v", res.Error)
	}

	var initRes mcp.InitializeResult
	if err := json.Unmarshal(res.Result, &initRes); err != nil {
		th.t.Fatalf("decode initialize result: %v", err)
	}
	th.send(&jsonrpc.Request{JSONRPCVersion: jsonrpc.ProtocolVersion, Method: string(mcp.InitializedNotificationMethod)})
	return &initRes
}

func call(id, method string, params any) *jsonrpc.Request {
	req := &jsonrpc.Request{JSONRPCVersion: jsonrpc.ProtocolVersion, Method: method, ID: jsonrpc.NewRequestID(id)}
	if params != nil {
		b, _ := json.Marshal(params)
		req.Params = b
	}
	return req
}

func mustJSON(t *testing.T, v any) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return b
}

type memoArgs struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

// memoServer keeps named memos in a map and signals list changes on write.
func memoServer() mcpservice.ServerCapabilities {
	var mu sync.Mutex
	memos := map[string]string{}

	resources := mcpservice.NewResourcesContainer(slog.New(slog.DiscardHandler))
	resources.Handle("memo", mcpservice.SchemeFuncs{
		List: func(ctx context.Context) ([]mcp.Resource, error) {
			mu.Lock()
			defer mu.Unlock()
			var out []mcp.Resource
			for name := range memos {
				out = append(out, mcp.Resource{URI: "memo://internal/" + name, Name: name})
			}
			return out, nil
		},
		Read: func(ctx context.Context, u *url.URL) ([]mcp.ResourceContents, error) {
			mu.Lock()
			defer mu.Unlock()
			name := strings.TrimPrefix(u.Path, "/")
			text, ok := memos[name]
			if !ok {
				return nil, &mcpservice.NotFoundError{Kind: "memo", Name: name}
			}
			return []mcp.ResourceContents{{URI: u.String(), Text: text}}, nil
		},
	})

	add := mcpservice.NewTool("add-memo", func(ctx context.Context, w mcpservice.ToolResponseWriter, r *mcpservice.ToolRequest[memoArgs]) error {
		a := r.Args()
		mu.Lock()
		memos[a.Name] = a.Content
		mu.Unlock()
		_ = resources.Notifier().Notify(ctx)
		return w.AppendText("stored " + a.Name)
	})

	return mcpservice.NewServer(
		mcpservice.WithServerInfo(mcp.ImplementationInfo{Name: "memo", Version: "1.0.0"}),
		mcpservice.WithToolsCapability(mcpservice.NewToolsContainer(add)),
		mcpservice.WithResourcesCapability(resources),
	)
}

func TestInitialize_HappyPath(t *testing.T) {
	th := newHarness(t, memoServer())

	initRes := th.initialize("init-1", defaultInitializeRequest())
	if initRes.ProtocolVersion != mcp.LatestProtocolVersion {
		t.Fatalf("server protocol version mismatch: %s", initRes.ProtocolVersion)
	}
	if initRes.ServerInfo.Name != "memo" {
		t.Fatalf("server info missing")
	}
	if initRes.Capabilities.Tools == nil {
		t.Fatalf("tools capability not advertised")
	}
	if initRes.Capabilities.Resources == nil || !initRes.Capabilities.Resources.ListChanged {
		t.Fatalf("resources listChanged not advertised")
	}
}

func TestRequestBeforeInitialize(t *testing.T) {
	th := newHarness(t, memoServer())

	th.send(call("1", "tools/list", nil))
	res := th.expectResponse(time.Second)
	if res.Error == nil || res.Error.Code != jsonrpc.ErrorCodeInvalidRequest {
		t.Fatalf("expected invalid request, got %+v", res)
	}
	if res.ID.String() != "1" {
		t.Fatalf("expected id 1, got %q", res.ID.String())
	}
}

func TestParseErrorHasNullID(t *testing.T) {
	th := newHarness(t, memoServer())

	th.sendRaw("{not json\n")
	line, err := th.nextLine(time.Second)
	if err != nil {
		t.Fatal(err)
	}
	want := `{"jsonrpc":"2.0","error":{"code":-32700,"message":"parse error"},"id":null}`
	if line != want {
		t.Fatalf("unexpected parse error line:\n got %s\nwant %s", line, want)
	}

	// The loop keeps serving after a bad line.
	th.send(call("2", "ping", nil))
	res := th.expectResponse(time.Second)
	if res.Error != nil || res.ID.String() != "2" {
		t.Fatalf("unexpected ping response: %+v", res)
	}
}

func TestInvalidRequestKeepsID(t *testing.T) {
	th := newHarness(t, memoServer())

	th.sendRaw(`{"jsonrpc":"1.0","method":"ping","id":7}` + "\n")
	res := th.expectResponse(time.Second)
	if res.Error == nil || res.Error.Code != jsonrpc.ErrorCodeInvalidRequest {
		t.Fatalf("expected invalid request, got %+v", res)
	}
	if res.ID.String() != "7" {
		t.Fatalf("expected id 7, got %q", res.ID.String())
	}
}

func TestResponsesInRequestOrder(t *testing.T) {
	th := newHarness(t, memoServer())
	th.initialize("init-1", defaultInitializeRequest())

	var batch bytes.Buffer
	for i := 1; i <= 5; i++ {
		b, _ := json.Marshal(call(fmt.Sprintf("r%d", i), "ping", nil))
		batch.Write(b)
		batch.WriteByte('\n')
	}
	th.sendRaw(batch.String())

	var got []string
	for i := 0; i < 5; i++ {
		got = append(got, th.expectResponse(time.Second).ID.String())
	}
	if diff := cmp.Diff([]string{"r1", "r2", "r3", "r4", "r5"}, got); diff != "" {
		t.Fatalf("response order mismatch (-want +got):\n%s", diff)
	}
}

func TestToolCallEmitsListChanged(t *testing.T) {
	th := newHarness(t, memoServer())
	th.initialize("init-1", defaultInitializeRequest())

	th.send(call("1", "tools/call", map[string]any{
		"name":      "add-memo",
		"arguments": map[string]any{"name": "a", "content": "alpha"},
	}))

	var sawResponse, sawNotification bool
	for !(sawResponse && sawNotification) {
		msg := th.nextMessage(time.Second)
		switch {
		case msg.Type() == "response":
			var res mcp.CallToolResult
			if err := json.Unmarshal(msg.Result, &res); err != nil {
				t.Fatal(err)
			}
			if res.IsError || res.Content[0].Text != "stored a" {
				t.Fatalf("unexpected tool result: %+v", res)
			}
			sawResponse = true
		case msg.Method == string(mcp.ResourcesListChangedNotificationMethod):
			sawNotification = true
		default:
			t.Fatalf("unexpected message %s %s", msg.Type(), msg.Method)
		}
	}

	th.send(call("2", "resources/read", map[string]any{"uri": "memo://internal/a"}))
	res := th.expectResponse(time.Second)
	var read mcp.ReadResourceResult
	if err := json.Unmarshal(res.Result, &read); err != nil {
		t.Fatal(err)
	}
	if len(read.Contents) != 1 || read.Contents[0].Text != "alpha" {
		t.Fatalf("unexpected contents: %+v", read.Contents)
	}

	th.send(call("3", "resources/read", map[string]any{"uri": "memo://internal/missing"}))
	res = th.expectResponse(time.Second)
	if res.Error == nil || res.Error.Code != jsonrpc.ErrorCodeResourceNotFound {
		t.Fatalf("expected resource not found, got %+v", res)
	}
}

func TestServeReturnsNilOnEOF(t *testing.T) {
	th := newHarness(t, memoServer())

	// A trailing partial line is dropped without a response.
	th.sendRaw(`{"jsonrpc":"2.0","method":"ping","id":1}`)
	_ = th.stdinW.Close()

	select {
	case err := <-th.done:
		if err != nil {
			t.Fatalf("Serve returned %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("Serve did not return on EOF")
	}
	if line, err := th.nextLine(20 * time.Millisecond); err == nil {
		t.Fatalf("expected no output, got %s", line)
	}
}

func TestServeReturnsNilOnCancel(t *testing.T) {
	th := newHarness(t, memoServer())
	th.cancel()

	select {
	case err := <-th.done:
		if err != nil {
			t.Fatalf("Serve returned %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("Serve did not return on cancel")
	}
}
