// Package storeres exposes the entries of a storage.Store as MCP resources
// and renders them into summarize prompts. The notes, Scout and LangFlow
// servers share it.
package storeres

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/motebus/Ultra-MCP-Servers/mcp"
	"github.com/motebus/Ultra-MCP-Servers/mcpservice"
	"github.com/motebus/Ultra-MCP-Servers/storage"
)

// Scheme describes how entries of one store appear as resources: the URI
// is {Scheme}://{Host}/{name}.
type Scheme struct {
	Scheme            string
	Host              string
	Kind              string // reported in NotFoundError
	NameFormat        string // e.g. "Note: %s"
	DescriptionFormat string // e.g. "A simple note named %s"
	MimeType          string // defaults to text/plain
}

// NoteScheme is the note://internal/{name} scheme.
var NoteScheme = Scheme{
	Scheme:            "note",
	Host:              "internal",
	Kind:              "note",
	NameFormat:        "Note: %s",
	DescriptionFormat: "A simple note named %s",
}

// URI returns the resource URI of the entry called name.
func (s Scheme) URI(name string) string {
	u := url.URL{Scheme: s.Scheme, Host: s.Host, Path: "/" + name}
	return u.String()
}

func (s Scheme) mimeType() string {
	if s.MimeType == "" {
		return "text/plain"
	}
	return s.MimeType
}

type handler struct {
	store  storage.Store
	scheme Scheme
}

// Handler returns a SchemeHandler listing and reading the entries of store.
func Handler(store storage.Store, scheme Scheme) mcpservice.SchemeHandler {
	return &handler{store: store, scheme: scheme}
}

func (h *handler) ListResources(ctx context.Context) ([]mcp.Resource, error) {
	entries, err := h.store.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]mcp.Resource, 0, len(entries))
	for _, e := range entries {
		out = append(out, mcp.Resource{
			URI:         h.scheme.URI(e.Name),
			Name:        fmt.Sprintf(h.scheme.NameFormat, e.Name),
			Description: fmt.Sprintf(h.scheme.DescriptionFormat, e.Name),
			MimeType:    h.scheme.mimeType(),
		})
	}
	return out, nil
}

func (h *handler) ReadResource(ctx context.Context, uri *url.URL) ([]mcp.ResourceContents, error) {
	name := strings.TrimPrefix(uri.Path, "/")
	if uri.Host != h.scheme.Host || name == "" {
		return nil, &mcpservice.NotFoundError{Kind: h.scheme.Kind, Name: uri.String()}
	}
	content, err := h.store.Get(ctx, name)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, &mcpservice.NotFoundError{Kind: h.scheme.Kind, Name: name}
		}
		return nil, fmt.Errorf("read %s %q: %w", h.scheme.Kind, name, err)
	}
	return []mcp.ResourceContents{{
		URI:      uri.String(),
		MimeType: h.scheme.mimeType(),
		Text:     content,
	}}, nil
}

// Summary configures a summarize prompt.
type Summary struct {
	Name              string // prompt name, e.g. "summarize-notes"
	Description       string // listing description
	ResultDescription string // description of the rendered prompt
	Header            string // e.g. "Here are the current notes to summarize:"
}

// StyleArgument is the optional style argument every summarize prompt takes.
var StyleArgument = mcp.PromptArgument{
	Name:        "style",
	Description: "Style of the summary (brief/detailed)",
}

// DetailClause is appended to the header for the detailed style.
const DetailClause = " Give extensive details."

// SummaryPrompt returns a prompt that renders every entry of store as a
// "- name: content" line below the header.
func SummaryPrompt(store storage.Store, s Summary) mcpservice.StaticPrompt {
	return mcpservice.StaticPrompt{
		Descriptor: mcp.Prompt{
			Name:        s.Name,
			Description: s.Description,
			Arguments:   []mcp.PromptArgument{StyleArgument},
		},
		Handler: func(ctx context.Context, req *mcp.GetPromptRequestReceived) (*mcp.GetPromptResult, error) {
			entries, err := store.List(ctx)
			if err != nil {
				return nil, fmt.Errorf("list entries: %w", err)
			}
			return mcpservice.UserText(s.ResultDescription, RenderSummary(s.Header, req.Arguments["style"], entries)), nil
		},
	}
}

// RenderSummary renders the summarize prompt text.
func RenderSummary(header, style string, entries []storage.Entry) string {
	var b strings.Builder
	b.WriteString(header)
	if style == "detailed" {
		b.WriteString(DetailClause)
	}
	b.WriteString("\n\n")
	for i, e := range entries {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "- %s: %s", e.Name, e.Content)
	}
	return b.String()
}
