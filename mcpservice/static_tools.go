package mcpservice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/motebus/Ultra-MCP-Servers/mcp"
)

// ToolHandler is the function signature used to handle a tool invocation.
// Returning an error puts it on the JSON-RPC error channel; data problems
// belong in a CallToolResult with IsError set.
type ToolHandler func(ctx context.Context, req *mcp.CallToolRequestReceived) (*mcp.CallToolResult, error)

// StaticTool pairs an MCP tool descriptor with its handler.
type StaticTool struct {
	Descriptor mcp.Tool
	Handler    ToolHandler
}

// ToolRequest is the container for tool call input and request metadata.
// It is generic over the typed argument struct A.
type ToolRequest[A any] struct {
	name string
	raw  json.RawMessage
	args A
}

func (r *ToolRequest[A]) Name() string                  { return r.name }
func (r *ToolRequest[A]) RawArguments() json.RawMessage { return r.raw }
func (r *ToolRequest[A]) Args() A                       { return r.args }

// ToolOption configures NewTool behavior.
type ToolOption func(*toolConfig)

type toolConfig struct {
	description               string
	allowAdditionalProperties bool // default false (strict)
	errorPrefix               string
}

// WithToolDescription sets the tool description used in listings.
func WithToolDescription(desc string) ToolOption {
	return func(c *toolConfig) { c.description = desc }
}

// WithToolAllowAdditionalProperties controls whether unknown fields are allowed.
// When false (default), the generated schema sets additionalProperties=false and
// validation rejects unknown fields.
func WithToolAllowAdditionalProperties(allow bool) ToolOption {
	return func(c *toolConfig) { c.allowAdditionalProperties = allow }
}

// WithToolErrorPrefix sets the text placed before a handler error message in
// the error result. The default is "Error: ".
func WithToolErrorPrefix(prefix string) ToolOption {
	return func(c *toolConfig) { c.errorPrefix = prefix }
}

// NewTool constructs a StaticTool from a typed args struct A. It:
//   - Reflects a JSON Schema from A using invopop/jsonschema
//   - Down-converts it to MCP's simplified ToolInputSchema
//   - Validates and normalizes incoming arguments against that schema
//   - Decodes the normalized arguments into A and invokes fn
//
// Validation failures and errors returned by fn become an error result with a
// single text block. A ConfigError always renders with the
// "Configuration error: " prefix. Cancellation of ctx is returned as an
// error.
func NewTool[A any](name string, fn func(ctx context.Context, w ToolResponseWriter, r *ToolRequest[A]) error, opts ...ToolOption) StaticTool {
	cfg := toolConfig{errorPrefix: "Error: "}
	for _, opt := range opts {
		opt(&cfg)
	}
	input := reflectToMCPInputSchema[A](cfg.allowAdditionalProperties)
	if err := checkInputSchema(input); err != nil {
		panic(fmt.Sprintf("mcpservice: tool %q: %v", name, err))
	}
	desc := mcp.Tool{
		Name:        name,
		Description: cfg.description,
		InputSchema: input,
	}

	handler := func(ctx context.Context, req *mcp.CallToolRequestReceived) (*mcp.CallToolResult, error) {
		normalized, err := Validate(input, req.Arguments)
		if err != nil {
			return Errorf("invalid arguments: %v", err), nil
		}
		b, err := json.Marshal(normalized)
		if err != nil {
			return nil, fmt.Errorf("failed to encode arguments: %w", err)
		}
		var a A
		if err := json.Unmarshal(b, &a); err != nil {
			return Errorf("invalid arguments: %v", err), nil
		}

		w := newToolResponseWriter(ctx)
		r := &ToolRequest[A]{name: req.Name, raw: req.Arguments, args: a}
		if err := fn(ctx, w, r); err != nil {
			if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
				return nil, err
			}
			var cfgErr *ConfigError
			if errors.As(err, &cfgErr) {
				return Errorf("Configuration error: %v", cfgErr), nil
			}
			return Errorf("%s%v", cfg.errorPrefix, err), nil
		}
		return w.Result(), nil
	}

	return StaticTool{Descriptor: desc, Handler: handler}
}

// ToolsContainer owns a mutable, threadsafe set of tool descriptors and
// handlers. Registering a name twice replaces the earlier entry in place, so
// listings name every tool exactly once and keep registration order.
type ToolsContainer struct {
	mu       sync.RWMutex
	tools    []mcp.Tool             // descriptors for listing
	handlers map[string]ToolHandler // name -> handler

	pageSize int
}

// NewToolsContainer constructs a new ToolsContainer with the given tool
// definitions. It panics if a definition cannot be registered.
func NewToolsContainer(defs ...StaticTool) *ToolsContainer {
	st := &ToolsContainer{pageSize: defaultPageSize, handlers: make(map[string]ToolHandler)}
	for _, d := range defs {
		if err := st.Register(d); err != nil {
			panic(fmt.Sprintf("mcpservice: %v", err))
		}
	}
	return st
}

// SetPageSize sets the pagination size used by ListTools.
// A non-positive value is ignored.
func (st *ToolsContainer) SetPageSize(n int) {
	if n <= 0 {
		return
	}
	st.mu.Lock()
	st.pageSize = n
	st.mu.Unlock()
}

// Register adds def, replacing any tool of the same name.
func (st *ToolsContainer) Register(def StaticTool) error {
	name := def.Descriptor.Name
	if name == "" {
		return errors.New("tool name is required")
	}
	if def.Handler == nil {
		return fmt.Errorf("tool %q has no handler", name)
	}
	if err := checkInputSchema(def.Descriptor.InputSchema); err != nil {
		return fmt.Errorf("tool %q: %w", name, err)
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if _, exists := st.handlers[name]; exists {
		for i, t := range st.tools {
			if t.Name == name {
				st.tools[i] = def.Descriptor
				break
			}
		}
	} else {
		st.tools = append(st.tools, def.Descriptor)
	}
	st.handlers[name] = def.Handler
	return nil
}

// Snapshot returns a copy of the current tool descriptors.
func (st *ToolsContainer) Snapshot() []mcp.Tool {
	st.mu.RLock()
	defer st.mu.RUnlock()
	out := make([]mcp.Tool, len(st.tools))
	copy(out, st.tools)
	return out
}

// ListTools implements ToolsCapability.
func (st *ToolsContainer) ListTools(_ context.Context, cursor *string) (Page[mcp.Tool], error) {
	st.mu.RLock()
	all := make([]mcp.Tool, len(st.tools))
	copy(all, st.tools)
	pageSize := st.pageSize
	st.mu.RUnlock()
	return pageSlice(all, pageSize, cursor), nil
}

// CallTool implements ToolsCapability by exact-name dispatch. An unknown name
// yields ErrUnknownTool.
func (st *ToolsContainer) CallTool(ctx context.Context, req *mcp.CallToolRequestReceived) (*mcp.CallToolResult, error) {
	if req == nil || req.Name == "" {
		return nil, fmt.Errorf("%w: missing name", ErrUnknownTool)
	}
	st.mu.RLock()
	h := st.handlers[req.Name]
	st.mu.RUnlock()
	if h == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, req.Name)
	}
	return h(ctx, req)
}

// TextResult is a small helper to build a text CallToolResult.
func TextResult(s string) *mcp.CallToolResult {
	return &mcp.CallToolResult{Content: []mcp.ContentBlock{{Type: mcp.ContentTypeText, Text: s}}}
}

// Errorf returns an error CallToolResult with a single text block and IsError=true.
func Errorf(format string, a ...any) *mcp.CallToolResult {
	msg := fmt.Sprintf(format, a...)
	return &mcp.CallToolResult{Content: []mcp.ContentBlock{{Type: mcp.ContentTypeText, Text: msg}}, IsError: true}
}
