package mcpservice

import (
	"github.com/motebus/Ultra-MCP-Servers/mcp"
)

// ServerOption configures a concrete ServerCapabilities implementation.
type ServerOption func(*server)

type server struct {
	info         mcp.ImplementationInfo
	instructions *string

	toolsCap     ToolsCapability
	promptsCap   PromptsCapability
	resourcesCap ResourcesCapability
	loggingCap   LoggingCapability
}

// NewServer builds a ServerCapabilities using functional options.
func NewServer(opts ...ServerOption) ServerCapabilities {
	s := &server{}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// WithServerInfo sets the server name and version.
func WithServerInfo(info mcp.ImplementationInfo) ServerOption {
	return func(s *server) { s.info = info }
}

// WithInstructions sets static human-readable instructions returned during initialize.
func WithInstructions(instr string) ServerOption {
	return func(s *server) { s.instructions = &instr }
}

// WithToolsCapability sets the tools capability.
func WithToolsCapability(c ToolsCapability) ServerOption {
	return func(s *server) { s.toolsCap = c }
}

// WithPromptsCapability sets the prompts capability.
func WithPromptsCapability(c PromptsCapability) ServerOption {
	return func(s *server) { s.promptsCap = c }
}

// WithResourcesCapability sets the resources capability.
func WithResourcesCapability(c ResourcesCapability) ServerOption {
	return func(s *server) { s.resourcesCap = c }
}

// WithLoggingCapability sets the logging capability.
func WithLoggingCapability(c LoggingCapability) ServerOption {
	return func(s *server) { s.loggingCap = c }
}

func (s *server) GetServerInfo() mcp.ImplementationInfo { return s.info }

func (s *server) GetInstructions() (string, bool) {
	if s.instructions == nil {
		return "", false
	}
	return *s.instructions, true
}

func (s *server) GetToolsCapability() (ToolsCapability, bool) {
	return s.toolsCap, s.toolsCap != nil
}

func (s *server) GetPromptsCapability() (PromptsCapability, bool) {
	return s.promptsCap, s.promptsCap != nil
}

func (s *server) GetResourcesCapability() (ResourcesCapability, bool) {
	return s.resourcesCap, s.resourcesCap != nil
}

func (s *server) GetLoggingCapability() (LoggingCapability, bool) {
	return s.loggingCap, s.loggingCap != nil
}
