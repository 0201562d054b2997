package mcpservice

import (
	"context"

	"github.com/motebus/Ultra-MCP-Servers/mcp"
)

// ServerCapabilities is what the engine needs from a server variant: its
// identity and the capability containers it exposes.
//
// Capability discovery methods return (cap, ok). A false ok means the
// capability is not advertised during initialize and its methods answer
// "method not found".
type ServerCapabilities interface {
	// GetServerInfo returns the name and version surfaced in the initialize
	// result.
	GetServerInfo() mcp.ImplementationInfo

	// GetInstructions returns optional human-readable instructions for the
	// initialize result.
	GetInstructions() (instructions string, ok bool)

	GetToolsCapability() (cap ToolsCapability, ok bool)
	GetPromptsCapability() (cap PromptsCapability, ok bool)
	GetResourcesCapability() (cap ResourcesCapability, ok bool)
	GetLoggingCapability() (cap LoggingCapability, ok bool)
}

// ToolsCapability lists and calls tools. CallTool returns ErrUnknownTool
// (wrapped) for unregistered names; every other problem is reported inside
// the result.
type ToolsCapability interface {
	ListTools(ctx context.Context, cursor *string) (Page[mcp.Tool], error)
	CallTool(ctx context.Context, req *mcp.CallToolRequestReceived) (*mcp.CallToolResult, error)
}

// PromptsCapability lists and renders prompts. GetPrompt returns
// ErrUnknownPrompt or a *MissingArgumentError for caller mistakes.
type PromptsCapability interface {
	ListPrompts(ctx context.Context, cursor *string) (Page[mcp.Prompt], error)
	GetPrompt(ctx context.Context, req *mcp.GetPromptRequestReceived) (*mcp.GetPromptResult, error)
}

// ResourcesCapability lists and reads resources. If the value also
// implements ChangeSubscriber, listChanged is advertised and the engine
// forwards its signals.
type ResourcesCapability interface {
	ListResources(ctx context.Context, cursor *string) (Page[mcp.Resource], error)
	ReadResource(ctx context.Context, uri string) ([]mcp.ResourceContents, error)
}

// LoggingCapability handles logging/setLevel.
type LoggingCapability interface {
	SetLevel(ctx context.Context, level mcp.LoggingLevel) error
}
