package main

import (
	"context"

	"github.com/motebus/Ultra-MCP-Servers/internal/config"
	"github.com/motebus/Ultra-MCP-Servers/internal/servers/langflow"
	"github.com/motebus/Ultra-MCP-Servers/internal/servers/notes"
	"github.com/motebus/Ultra-MCP-Servers/internal/servers/qdrant"
	"github.com/motebus/Ultra-MCP-Servers/internal/servers/s3"
	"github.com/motebus/Ultra-MCP-Servers/internal/servers/scout"
	"github.com/motebus/Ultra-MCP-Servers/mcpservice"
)

type serverDef struct {
	name  string
	short string
	build func(ctx context.Context, a *app) (mcpservice.ServerCapabilities, error)
}

var serverDefs = []serverDef{
	{name: "notes", short: "Notes with YouTube transcript import", build: buildNotes},
	{name: "scout", short: "Web search through an OpenAI model (Scout)", build: buildScout},
	{name: "qdrant", short: "Qdrant collection management (Son)", build: buildQdrant},
	{name: "s3", short: "MinIO bucket and object management", build: buildS3},
	{name: "langflow", short: "LangFlow flow management and component generation", build: buildLangFlow},
}

func buildNotes(ctx context.Context, a *app) (mcpservice.ServerCapabilities, error) {
	st, err := a.Store(ctx, "notes")
	if err != nil {
		return nil, err
	}
	return notes.New(notes.Deps{
		Store:        st,
		Log:          a.log.With("server", "notes"),
		LoggingLevel: a.level,
	}), nil
}

func buildScout(ctx context.Context, a *app) (mcpservice.ServerCapabilities, error) {
	searches, err := a.Store(ctx, "scout:search")
	if err != nil {
		return nil, err
	}
	noteStore, err := a.Store(ctx, "scout:notes")
	if err != nil {
		return nil, err
	}
	return scout.New(scout.Deps{
		Config:       a.desktop,
		Searches:     searches,
		Notes:        noteStore,
		Log:          a.log.With("server", "scout"),
		LoggingLevel: a.level,
	}), nil
}

func buildQdrant(_ context.Context, a *app) (mcpservice.ServerCapabilities, error) {
	return qdrant.New(qdrant.Deps{
		Connect: func(ctx context.Context) (qdrant.Collections, error) {
			cfg, err := config.QdrantFromEnv()
			if err != nil {
				return nil, err
			}
			return qdrant.Dial(cfg)(ctx)
		},
		Log:          a.log.With("server", "qdrant"),
		LoggingLevel: a.level,
	}), nil
}

func buildS3(_ context.Context, a *app) (mcpservice.ServerCapabilities, error) {
	return s3.New(s3.Deps{
		Connect:      s3.Dial(a.desktop),
		Log:          a.log.With("server", "s3"),
		LoggingLevel: a.level,
	}), nil
}

func buildLangFlow(ctx context.Context, a *app) (mcpservice.ServerCapabilities, error) {
	noteStore, err := a.Store(ctx, "langflow:notes")
	if err != nil {
		return nil, err
	}
	return langflow.New(langflow.Deps{
		Config:       config.LangFlowFromEnv,
		Notes:        noteStore,
		Log:          a.log.With("server", "langflow"),
		LoggingLevel: a.level,
	}), nil
}
