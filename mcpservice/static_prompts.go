package mcpservice

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/motebus/Ultra-MCP-Servers/mcp"
)

// PromptHandler handles a prompt get request to produce messages. Required
// arguments have already been checked when it runs.
type PromptHandler func(ctx context.Context, req *mcp.GetPromptRequestReceived) (*mcp.GetPromptResult, error)

// StaticPrompt pairs a prompt descriptor with a handler that can materialize it.
type StaticPrompt struct {
	Descriptor mcp.Prompt
	Handler    PromptHandler
}

// StaticPrompts owns a threadsafe set of prompt descriptors and handlers.
// Prompt names live in their own namespace; a prompt may share a name with
// a tool.
type StaticPrompts struct {
	mu       sync.RWMutex
	prompts  []mcp.Prompt
	handlers map[string]PromptHandler // name -> handler
}

// NewStaticPrompts constructs a new StaticPrompts container with the given
// definitions. A later definition replaces an earlier one of the same name.
func NewStaticPrompts(defs ...StaticPrompt) *StaticPrompts {
	sp := &StaticPrompts{handlers: make(map[string]PromptHandler)}
	for _, d := range defs {
		if err := sp.Register(d); err != nil {
			panic(fmt.Sprintf("mcpservice: %v", err))
		}
	}
	return sp
}

// Register adds def, replacing any prompt of the same name.
func (sp *StaticPrompts) Register(def StaticPrompt) error {
	name := def.Descriptor.Name
	if name == "" {
		return errors.New("prompt name is required")
	}
	if def.Handler == nil {
		return fmt.Errorf("prompt %q has no handler", name)
	}
	sp.mu.Lock()
	defer sp.mu.Unlock()
	if _, exists := sp.handlers[name]; exists {
		for i, p := range sp.prompts {
			if p.Name == name {
				sp.prompts[i] = def.Descriptor
				break
			}
		}
	} else {
		sp.prompts = append(sp.prompts, def.Descriptor)
	}
	sp.handlers[name] = def.Handler
	return nil
}

// Snapshot returns a copy of the current prompt descriptors.
func (sp *StaticPrompts) Snapshot() []mcp.Prompt {
	sp.mu.RLock()
	defer sp.mu.RUnlock()
	out := make([]mcp.Prompt, len(sp.prompts))
	copy(out, sp.prompts)
	return out
}

// ListPrompts implements PromptsCapability.
func (sp *StaticPrompts) ListPrompts(_ context.Context, cursor *string) (Page[mcp.Prompt], error) {
	return pageSlice(sp.Snapshot(), defaultPageSize, cursor), nil
}

// GetPrompt implements PromptsCapability. An unknown name yields
// ErrUnknownPrompt; an absent or empty required argument yields a
// *MissingArgumentError.
func (sp *StaticPrompts) GetPrompt(ctx context.Context, req *mcp.GetPromptRequestReceived) (*mcp.GetPromptResult, error) {
	if req == nil || req.Name == "" {
		return nil, fmt.Errorf("%w: missing name", ErrUnknownPrompt)
	}
	sp.mu.RLock()
	h := sp.handlers[req.Name]
	var desc mcp.Prompt
	for _, p := range sp.prompts {
		if p.Name == req.Name {
			desc = p
			break
		}
	}
	sp.mu.RUnlock()
	if h == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPrompt, req.Name)
	}
	for _, arg := range desc.Arguments {
		if arg.Required && req.Arguments[arg.Name] == "" {
			return nil, &MissingArgumentError{Prompt: req.Name, Argument: arg.Name}
		}
	}
	return h(ctx, req)
}

// UserText builds a single-message prompt result with a user text message.
func UserText(description, text string) *mcp.GetPromptResult {
	return &mcp.GetPromptResult{
		Description: description,
		Messages: []mcp.PromptMessage{{
			Role:    mcp.RoleUser,
			Content: mcp.ContentBlock{Type: mcp.ContentTypeText, Text: text},
		}},
	}
}
