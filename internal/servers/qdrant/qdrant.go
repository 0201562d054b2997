// Package qdrant implements the Son server: management of Qdrant vector
// collections over gRPC.
package qdrant

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"

	"github.com/qdrant/go-client/qdrant"

	"github.com/motebus/Ultra-MCP-Servers/internal/config"
	"github.com/motebus/Ultra-MCP-Servers/mcp"
	"github.com/motebus/Ultra-MCP-Servers/mcpservice"
)

const (
	serverName    = "Son"
	serverVersion = "0.1.0"
)

// Collections is the subset of *qdrant.Client the server uses.
type Collections interface {
	CollectionExists(ctx context.Context, name string) (bool, error)
	GetCollectionInfo(ctx context.Context, name string) (*qdrant.CollectionInfo, error)
	ListCollections(ctx context.Context) ([]string, error)
	CreateCollection(ctx context.Context, req *qdrant.CreateCollection) error
	DeleteCollection(ctx context.Context, name string) error
}

// Connector opens a Collections client.
type Connector func(ctx context.Context) (Collections, error)

// Dial returns a Connector for the gRPC endpoint described by cfg.
func Dial(cfg config.Qdrant) Connector {
	return func(ctx context.Context) (Collections, error) {
		client, err := qdrant.NewClient(&qdrant.Config{
			Host:   cfg.Host,
			Port:   cfg.Port,
			APIKey: cfg.APIKey,
			UseTLS: cfg.UseTLS,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to Qdrant at %s:%d: %w", cfg.Host, cfg.Port, err)
		}
		return client, nil
	}
}

// Deps are the collaborators of the Son server.
type Deps struct {
	Connect      Connector
	Log          *slog.Logger
	LoggingLevel *slog.LevelVar
}

type server struct {
	connect Connector
	log     *slog.Logger

	mu     sync.Mutex
	client Collections
}

// New builds the Son server. No connection is made until a tool, prompt or
// resource needs one; a failed attempt is retried on the next call.
func New(deps Deps) mcpservice.ServerCapabilities {
	log := deps.Log
	if log == nil {
		log = slog.Default()
	}
	s := &server{connect: deps.Connect, log: log}

	tools := mcpservice.NewToolsContainer(
		mcpservice.NewTool("qdrant-write-collection", s.writeCollection,
			mcpservice.WithToolDescription("Create a new Qdrant collection"),
			mcpservice.WithToolErrorPrefix("Error creating collection: ")),
		mcpservice.NewTool("qdrant-read-collection", s.readCollection,
			mcpservice.WithToolDescription("Read information about a Qdrant collection"),
			mcpservice.WithToolErrorPrefix("")),
		mcpservice.NewTool("qdrant-delete-collection", s.deleteCollection,
			mcpservice.WithToolDescription("Delete a Qdrant collection"),
			mcpservice.WithToolErrorPrefix("")),
		mcpservice.NewTool("qdrant-list-collections", s.listCollections,
			mcpservice.WithToolDescription("List all available Qdrant collections"),
			mcpservice.WithToolErrorPrefix("Error listing collections: ")),
	)
	prompts := mcpservice.NewStaticPrompts(mcpservice.StaticPrompt{
		Descriptor: mcp.Prompt{
			Name:        "qdrant-system",
			Description: "Manage and analyze Qdrant vector collections",
			Arguments: []mcp.PromptArgument{
				{Name: "action", Description: "Action to perform (create/read/delete/analyze)", Required: true},
				{Name: "collection_name", Description: "Name of the collection to work with", Required: true},
				{Name: "detail_level", Description: "Level of detail in analysis (brief/detailed)"},
			},
		},
		Handler: s.systemPrompt,
	})
	resources := mcpservice.NewResourcesContainer(log)
	resources.Handle("qdrant", mcpservice.SchemeFuncs{List: s.listResources, Read: s.readResource})

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

func (s *server) collections(ctx context.Context) (Collections, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client != nil {
		return s.client, nil
	}
	if s.connect == nil {
		return nil, mcpservice.NewConfigError("no Qdrant connection configured")
	}
	client, err := s.connect(ctx)
	if err != nil {
		s.log.ErrorContext(ctx, "qdrant.connect.fail", slog.String("err", err.Error()))
		return nil, &mcpservice.ConfigError{Err: err}
	}
	s.client = client
	return client, nil
}

var distances = map[string]qdrant.Distance{
	"Cosine":    qdrant.Distance_Cosine,
	"Euclidean": qdrant.Distance_Euclid,
	"Dot":       qdrant.Distance_Dot,
}

type writeArgs struct {
	CollectionName string `json:"collection_name"`
	VectorSize     int    `json:"vector_size,omitempty" jsonschema:"minimum=1,default=384"`
	Distance       string `json:"distance,omitempty" jsonschema:"enum=Cosine,enum=Euclidean,enum=Dot,default=Cosine"`
}

func (s *server) writeCollection(ctx context.Context, w mcpservice.ToolResponseWriter, r *mcpservice.ToolRequest[writeArgs]) error {
	a := r.Args()
	c, err := s.collections(ctx)
	if err != nil {
		return err
	}
	exists, err := c.CollectionExists(ctx, a.CollectionName)
	if err != nil {
		return err
	}
	if exists {
		return w.AppendText(fmt.Sprintf("Collection '%s' already exists. No changes were made.", a.CollectionName))
	}
	err = c.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: a.CollectionName,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(a.VectorSize),
			Distance: distances[a.Distance],
		}),
	})
	if err != nil {
		return err
	}
	s.log.InfoContext(ctx, "qdrant.collection.created", slog.String("collection", a.CollectionName))
	return w.AppendText(fmt.Sprintf("Created collection '%s' with vector size %d and %s distance", a.CollectionName, a.VectorSize, a.Distance))
}

type collectionArgs struct {
	CollectionName string `json:"collection_name"`
}

func (s *server) readCollection(ctx context.Context, w mcpservice.ToolResponseWriter, r *mcpservice.ToolRequest[collectionArgs]) error {
	name := r.Args().CollectionName
	c, err := s.collections(ctx)
	if err != nil {
		return err
	}
	info, err := c.GetCollectionInfo(ctx, name)
	if err != nil {
		return fmt.Errorf("Error reading collection '%s': %w", name, err)
	}
	d := describe(name, info)
	return w.AppendText(fmt.Sprintf("Collection Details:\nName: %s\nStatus: %s\nVectors Count: %d\nPoints Count: %d\nSegments Count: %d\nOptimization Status: %s\nVector Configuration: size=%d distance=%s",
		d.Name, d.Status, d.VectorsCount, d.PointsCount, d.SegmentsCount, d.OptimizerStatus, d.VectorConfig.Size, d.VectorConfig.Distance))
}

func (s *server) deleteCollection(ctx context.Context, w mcpservice.ToolResponseWriter, r *mcpservice.ToolRequest[collectionArgs]) error {
	name := r.Args().CollectionName
	c, err := s.collections(ctx)
	if err != nil {
		return err
	}
	exists, err := c.CollectionExists(ctx, name)
	if err != nil {
		return fmt.Errorf("Error deleting collection '%s': %w", name, err)
	}
	if !exists {
		return w.AppendText(fmt.Sprintf("Collection '%s' does not exist. Nothing to delete.", name))
	}
	if err := c.DeleteCollection(ctx, name); err != nil {
		return fmt.Errorf("Error deleting collection '%s': %w", name, err)
	}
	s.log.InfoContext(ctx, "qdrant.collection.deleted", slog.String("collection", name))
	return w.AppendText(fmt.Sprintf("Successfully deleted collection '%s'", name))
}

type listArgs struct{}

func (s *server) listCollections(ctx context.Context, w mcpservice.ToolResponseWriter, _ *mcpservice.ToolRequest[listArgs]) error {
	c, err := s.collections(ctx)
	if err != nil {
		return err
	}
	names, err := c.ListCollections(ctx)
	if err != nil {
		return err
	}
	if len(names) == 0 {
		return w.AppendText("No collections currently exist.")
	}
	return w.AppendText("Available collections:\n" + strings.Join(names, ", "))
}

func (s *server) systemPrompt(ctx context.Context, req *mcp.GetPromptRequestReceived) (*mcp.GetPromptResult, error) {
	action := req.Arguments["action"]
	name := req.Arguments["collection_name"]
	if action != "analyze" {
		return mcpservice.UserText(
			fmt.Sprintf("Manage Qdrant collection: %s", name),
			fmt.Sprintf("Please help me %s the Qdrant collection named '%s'.", action, name),
		), nil
	}

	c, err := s.collections(ctx)
	if err != nil {
		return nil, fmt.Errorf("Error analyzing collection: %w", err)
	}
	info, err := c.GetCollectionInfo(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("Error analyzing collection: %w", err)
	}
	d := describe(name, info)
	detail := ""
	if req.Arguments["detail_level"] == "detailed" {
		detail = " Provide extensive analysis."
	}
	return mcpservice.UserText(
		fmt.Sprintf("Analyze Qdrant collection: %s", name),
		fmt.Sprintf("Please analyze this Qdrant collection:%s\n\nCollection: %s\nStatus: %s\nVectors: %d\nPoints: %d\nSegments: %d\nVector Size: %d\nDistance: %s",
			detail, d.Name, d.Status, d.VectorsCount, d.PointsCount, d.SegmentsCount, d.VectorConfig.Size, d.VectorConfig.Distance),
	), nil
}

func (s *server) listResources(ctx context.Context) ([]mcp.Resource, error) {
	c, err := s.collections(ctx)
	if err != nil {
		return nil, err
	}
	names, err := c.ListCollections(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]mcp.Resource, 0, len(names))
	for _, name := range names {
		out = append(out, mcp.Resource{
			URI:         collectionURI(name),
			Name:        "Collection: " + name,
			Description: "Qdrant vector collection: " + name,
			MimeType:    "application/json",
		})
	}
	return out, nil
}

func (s *server) readResource(ctx context.Context, uri *url.URL) ([]mcp.ResourceContents, error) {
	name := strings.TrimPrefix(uri.Path, "/")
	if uri.Host != "collection" || name == "" {
		return nil, &mcpservice.NotFoundError{Kind: "collection", Name: uri.String()}
	}
	c, err := s.collections(ctx)
	if err != nil {
		return nil, err
	}
	exists, err := c.CollectionExists(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("Error reading collection: %w", err)
	}
	if !exists {
		return nil, &mcpservice.NotFoundError{Kind: "collection", Name: name}
	}
	info, err := c.GetCollectionInfo(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("Error reading collection: %w", err)
	}
	body, err := json.MarshalIndent(describe(name, info), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode collection: %w", err)
	}
	return []mcp.ResourceContents{{URI: uri.String(), MimeType: "application/json", Text: string(body)}}, nil
}

func collectionURI(name string) string {
	u := url.URL{Scheme: "qdrant", Host: "collection", Path: "/" + name}
	return u.String()
}

// Description is the JSON document served for a collection resource.
type Description struct {
	Name            string       `json:"name"`
	Status          string       `json:"status"`
	VectorsCount    uint64       `json:"vectors_count"`
	PointsCount     uint64       `json:"points_count"`
	SegmentsCount   uint64       `json:"segments_count"`
	OptimizerStatus string       `json:"optimizer_status"`
	VectorConfig    VectorConfig `json:"vector_config"`
}

type VectorConfig struct {
	Size     uint64 `json:"size"`
	Distance string `json:"distance"`
}

func describe(name string, info *qdrant.CollectionInfo) Description {
	d := Description{
		Name:            name,
		Status:          strings.ToLower(info.GetStatus().String()),
		VectorsCount:    info.GetIndexedVectorsCount(),
		PointsCount:     info.GetPointsCount(),
		SegmentsCount:   info.GetSegmentsCount(),
		OptimizerStatus: optimizerStatus(info.GetOptimizerStatus()),
	}
	if p := vectorParams(info); p != nil {
		d.VectorConfig = VectorConfig{Size: p.GetSize(), Distance: p.GetDistance().String()}
	}
	return d
}

func optimizerStatus(st *qdrant.OptimizerStatus) string {
	switch {
	case st == nil:
		return "unknown"
	case st.GetOk():
		return "ok"
	default:
		return st.GetError()
	}
}

// vectorParams returns the unnamed vector parameters, or those of the
// alphabetically first named vector.
func vectorParams(info *qdrant.CollectionInfo) *qdrant.VectorParams {
	vc := info.GetConfig().GetParams().GetVectorsConfig()
	if p := vc.GetParams(); p != nil {
		return p
	}
	m := vc.GetParamsMap().GetMap()
	var first string
	for k := range m {
		if first == "" || k < first {
			first = k
		}
	}
	if first == "" {
		return nil
	}
	return m[first]
}
