// Package scout implements the Scout server: web searches answered by an
// OpenAI chat model and kept as named search results.
package scout

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/motebus/Ultra-MCP-Servers/internal/config"
	"github.com/motebus/Ultra-MCP-Servers/internal/llm"
	"github.com/motebus/Ultra-MCP-Servers/internal/servers/storeres"
	"github.com/motebus/Ultra-MCP-Servers/mcp"
	"github.com/motebus/Ultra-MCP-Servers/mcpservice"
	"github.com/motebus/Ultra-MCP-Servers/storage"
	"github.com/motebus/Ultra-MCP-Servers/storage/memory"
)

const (
	serverName    = "Scout"
	serverVersion = "0.1.0"

	searchMaxTokens = 1000
)

// SearchScheme is the search://result/{name} scheme.
var SearchScheme = storeres.Scheme{
	Scheme:            "search",
	Host:              "result",
	Kind:              "search result",
	NameFormat:        "Search: %s",
	DescriptionFormat: "Web search result for query '%s'",
}

// OpenAIConfig loads OpenAI credentials. *config.Desktop satisfies it.
type OpenAIConfig interface {
	OpenAI() (config.OpenAI, error)
}

// Deps are the collaborators of the Scout server.
type Deps struct {
	Config    OpenAIConfig
	Completer llm.Completer

	// Searches holds search results by name. Notes backs the note://
	// scheme. Nil stores are replaced by empty in-memory ones.
	Searches storage.Store
	Notes    storage.Store

	Log          *slog.Logger
	LoggingLevel *slog.LevelVar
}

type server struct {
	cfg       OpenAIConfig
	completer llm.Completer
	searches  storage.Store
	log       *slog.Logger
}

// New builds the Scout server.
func New(deps Deps) mcpservice.ServerCapabilities {
	log := deps.Log
	if log == nil {
		log = slog.Default()
	}
	searches, notes := deps.Searches, deps.Notes
	if searches == nil {
		searches = memory.New()
	}
	if notes == nil {
		notes = memory.New()
	}
	completer := deps.Completer
	if completer == nil {
		completer = llm.OpenAI{}
	}

	resources := mcpservice.NewResourcesContainer(log)
	s := &server{
		cfg:       deps.Config,
		completer: completer,
		searches:  storage.WithNotifier(searches, resources.Notifier()),
		log:       log,
	}
	notes = storage.WithNotifier(notes, resources.Notifier())
	resources.Handle(storeres.NoteScheme.Scheme, storeres.Handler(notes, storeres.NoteScheme))
	resources.Handle(SearchScheme.Scheme, storeres.Handler(s.searches, SearchScheme))

	tools := mcpservice.NewToolsContainer(
		mcpservice.NewTool("web-search", s.webSearch,
			mcpservice.WithToolDescription("Perform a web search using OpenAI's API")),
	)
	prompts := mcpservice.NewStaticPrompts(storeres.SummaryPrompt(s.searches, storeres.Summary{
		Name:              "summarize-search",
		Description:       "Creates a summary of search results",
		ResultDescription: "Summarize the current search results",
		Header:            "Here are the current search results to summarize:",
	}))

	opts := []mcpservice.ServerOption{
		mcpservice.WithServerInfo(mcp.ImplementationInfo{Name: serverName, Version: serverVersion}),
		mcpservice.WithToolsCapability(tools),
		mcpservice.WithPromptsCapability(prompts),
		mcpservice.WithResourcesCapability(resources),
	}
	if deps.LoggingLevel != nil {
		opts = append(opts, mcpservice.WithLoggingCapability(mcpservice.NewSlogLevelVarLogging(deps.LoggingLevel)))
	}
	return mcpservice.NewServer(opts...)
}

type webSearchArgs struct {
	Query      string `json:"query" jsonschema:"description=Search query"`
	Name       string `json:"name" jsonschema:"description=Name to save the search result"`
	MaxResults int    `json:"max_results,omitempty" jsonschema:"description=Maximum number of search results,minimum=1,maximum=10,default=5"`
}

func (s *server) webSearch(ctx context.Context, w mcpservice.ToolResponseWriter, r *mcpservice.ToolRequest[webSearchArgs]) error {
	a := r.Args()
	if s.cfg == nil {
		return mcpservice.NewConfigError("no OpenAI configuration source")
	}
	cfg, err := s.cfg.OpenAI()
	if err != nil {
		s.log.ErrorContext(ctx, "scout.config.fail", slog.String("err", err.Error()))
		return &mcpservice.ConfigError{Err: err}
	}

	content, err := s.completer.Complete(ctx, llm.Request{
		APIKey:    cfg.APIKey,
		BaseURL:   cfg.BaseURL,
		Model:     cfg.Model,
		Prompt:    SearchPrompt(a.Query, a.MaxResults),
		MaxTokens: searchMaxTokens,
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("OpenAI API error: %w", err)
	}

	if err := s.searches.Put(ctx, a.Name, content); err != nil {
		return fmt.Errorf("save search result: %w", err)
	}
	return w.AppendText(fmt.Sprintf("Saved search results for '%s': %s", a.Name, content))
}

// SearchPrompt is the user message sent for a web search.
func SearchPrompt(query string, maxResults int) string {
	return fmt.Sprintf("Web search results for: %s. Provide %d concise, relevant results.", query, maxResults)
}
