// Package langflow implements the LangFlow server: flow management over the
// LangFlow REST API and generation of custom components with two chat
// models, one writing the Python source and one the component definition.
package langflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/motebus/Ultra-MCP-Servers/internal/config"
	"github.com/motebus/Ultra-MCP-Servers/internal/llm"
	"github.com/motebus/Ultra-MCP-Servers/internal/servers/storeres"
	"github.com/motebus/Ultra-MCP-Servers/mcp"
	"github.com/motebus/Ultra-MCP-Servers/mcpservice"
	"github.com/motebus/Ultra-MCP-Servers/storage"
	"github.com/motebus/Ultra-MCP-Servers/storage/memory"
)

const (
	serverName    = "langflow"
	serverVersion = "0.1.0"

	errorPrefix     = "Error in flow operation: "
	timestampLayout = "2006-01-02 15:04:05"
)

// ConfigSource loads the LangFlow settings at call time.
type ConfigSource func() (config.LangFlow, error)

// Deps are the collaborators of the LangFlow server.
type Deps struct {
	// Config defaults to config.LangFlowFromEnv.
	Config     ConfigSource
	HTTPClient *http.Client
	Completer  llm.Completer

	// Notes backs the note:// scheme and the summarize-notes prompt.
	Notes storage.Store

	// NewID returns the random part of new node ids; Now stamps replies.
	NewID func() string
	Now   func() time.Time

	Log          *slog.Logger
	LoggingLevel *slog.LevelVar
}

type server struct {
	cfg       ConfigSource
	hc        *http.Client
	completer llm.Completer
	newID     func() string
	now       func() time.Time
	log       *slog.Logger
}

// New builds the LangFlow server.
func New(deps Deps) mcpservice.ServerCapabilities {
	s := &server{
		cfg:       deps.Config,
		hc:        deps.HTTPClient,
		completer: deps.Completer,
		newID:     deps.NewID,
		now:       deps.Now,
		log:       deps.Log,
	}
	if s.cfg == nil {
		s.cfg = config.LangFlowFromEnv
	}
	if s.completer == nil {
		s.completer = llm.OpenAI{}
	}
	if s.newID == nil {
		s.newID = func() string { return uuid.NewString()[:6] }
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	notes := deps.Notes
	if notes == nil {
		notes = memory.New()
	}

	resources := mcpservice.NewResourcesContainer(s.log)
	notes = storage.WithNotifier(notes, resources.Notifier())
	resources.Handle(storeres.NoteScheme.Scheme, storeres.Handler(notes, storeres.NoteScheme))

	prefix := mcpservice.WithToolErrorPrefix(errorPrefix)
	tools := mcpservice.NewToolsContainer(
		mcpservice.NewTool("list-flows", s.listFlows, prefix,
			mcpservice.WithToolDescription("List available flows")),
		mcpservice.NewTool("create-flow", s.createFlow, prefix,
			mcpservice.WithToolDescription("Create a new flow")),
		mcpservice.NewTool("delete-flow", s.deleteFlow, prefix,
			mcpservice.WithToolDescription("Delete a specific flow by ID")),
		mcpservice.NewTool("upload-saved-component", s.uploadSavedComponent, prefix,
			mcpservice.WithToolDescription("Upload a saved flow component from JSON file")),
		mcpservice.NewTool("add-component-to-flow", s.addComponentToFlow, prefix,
			mcpservice.WithToolDescription("Add a component to an existing flow")),
		mcpservice.NewTool("generate-component", s.generateComponent, prefix,
			mcpservice.WithToolDescription("Generate a new LangFlow custom component")),
	)
	prompts := mcpservice.NewStaticPrompts(storeres.SummaryPrompt(notes, storeres.Summary{
		Name:              "summarize-notes",
		Description:       "Creates a summary of all notes",
		ResultDescription: "Summarize the current notes",
		Header:            "Here are the current notes to summarize:",
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

func (s *server) settings(ctx context.Context) (config.LangFlow, error) {
	cfg, err := s.cfg()
	if err != nil {
		s.log.ErrorContext(ctx, "langflow.config.fail", slog.String("err", err.Error()))
		return config.LangFlow{}, &mcpservice.ConfigError{Err: err}
	}
	return cfg, nil
}

func (s *server) client(ctx context.Context) (*Client, error) {
	cfg, err := s.settings(ctx)
	if err != nil {
		return nil, err
	}
	return NewClient(cfg.APIURL, s.hc), nil
}

func (s *server) stamp(what string, body []byte) (string, error) {
	lines, err := keyValueLines(body)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s successfully at %s\n%s", what, s.now().Format(timestampLayout), lines), nil
}

type listFlowsArgs struct {
	FilterName string `json:"filter_name,omitempty" jsonschema:"description=Optional flow name to filter"`
}

func (s *server) listFlows(ctx context.Context, w mcpservice.ToolResponseWriter, r *mcpservice.ToolRequest[listFlowsArgs]) error {
	c, err := s.client(ctx)
	if err != nil {
		return err
	}
	flows, err := c.ListFlows(ctx)
	if err != nil {
		return err
	}
	filter := r.Args().FilterName
	var lines []string
	for _, f := range flows {
		if filter != "" && f.Name != filter {
			continue
		}
		lines = append(lines, fmt.Sprintf("ID: %s, Name: %s", f.ID, f.Name))
	}
	if len(lines) == 0 {
		return w.AppendText("No flows found.")
	}
	return w.AppendText(strings.Join(lines, "\n"))
}

type createFlowArgs struct {
	Name        string `json:"name" jsonschema:"description=Name of the new flow"`
	Description string `json:"description,omitempty" jsonschema:"description=Description of the flow"`
}

type flowGraph struct {
	Nodes []any `json:"nodes"`
	Edges []any `json:"edges"`
}

type newFlow struct {
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Data        flowGraph `json:"data"`
}

func (s *server) createFlow(ctx context.Context, w mcpservice.ToolResponseWriter, r *mcpservice.ToolRequest[createFlowArgs]) error {
	a := r.Args()
	c, err := s.client(ctx)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(newFlow{
		Name:        a.Name,
		Description: a.Description,
		Data:        flowGraph{Nodes: []any{}, Edges: []any{}},
	})
	if err != nil {
		return fmt.Errorf("encode flow: %w", err)
	}
	body, err := c.CreateFlow(ctx, payload)
	if err != nil {
		return err
	}
	s.log.InfoContext(ctx, "langflow.flow.created", slog.String("name", a.Name))
	return w.AppendText("Flow created successfully: " + string(body))
}

type deleteFlowArgs struct {
	FlowID string `json:"flow_id" jsonschema:"description=ID of the flow to delete"`
}

func (s *server) deleteFlow(ctx context.Context, w mcpservice.ToolResponseWriter, r *mcpservice.ToolRequest[deleteFlowArgs]) error {
	c, err := s.client(ctx)
	if err != nil {
		return err
	}
	body, err := c.DeleteFlow(ctx, r.Args().FlowID)
	if err != nil {
		return err
	}
	s.log.InfoContext(ctx, "langflow.flow.deleted", slog.String("flow_id", r.Args().FlowID))
	return w.AppendText("Flow deleted successfully: " + string(body))
}

type uploadArgs struct {
	JSONFilePath string `json:"json_file_path" jsonschema:"description=Full path to the JSON flow file"`
}

func (s *server) uploadSavedComponent(ctx context.Context, w mcpservice.ToolResponseWriter, r *mcpservice.ToolRequest[uploadArgs]) error {
	path := r.Args().JSONFilePath
	c, err := s.client(ctx)
	if err != nil {
		return err
	}
	doc, err := readJSONFile(path)
	if err != nil {
		return err
	}
	body, err := c.CreateFlow(ctx, doc)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("Error making the request to Langflow API: %w", err)
	}
	text, err := s.stamp("Flow uploaded", body)
	if err != nil {
		return err
	}
	return w.AppendText(text)
}

// readJSONFile returns the contents of path after checking they are JSON.
func readJSONFile(path string) ([]byte, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("The file %s was not found.", path)
		}
		return nil, err
	}
	if !json.Valid(b) {
		return nil, fmt.Errorf("The file %s is not a valid JSON file.", path)
	}
	return b, nil
}

type addComponentArgs struct {
	ComponentPath string `json:"component_path" jsonschema:"description=Full path to the component JSON file"`
	FlowID        string `json:"flow_id" jsonschema:"description=ID of the flow to add the component to"`
	X             int    `json:"x,omitempty" jsonschema:"description=X coordinate for component placement,default=100"`
	Y             int    `json:"y,omitempty" jsonschema:"description=Y coordinate for component placement,default=100"`
}

func (s *server) addComponentToFlow(ctx context.Context, w mcpservice.ToolResponseWriter, r *mcpservice.ToolRequest[addComponentArgs]) error {
	a := r.Args()
	c, err := s.client(ctx)
	if err != nil {
		return err
	}
	flow, err := c.GetFlow(ctx, a.FlowID)
	if err != nil {
		return err
	}

	raw, err := readJSONFile(a.ComponentPath)
	if err != nil {
		return err
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return errNoComponent
	}
	comp, err := extractComponent(doc)
	if err != nil {
		return err
	}

	id := comp.Type + "-" + s.newID()
	if err := appendNode(flow, newNode(comp, id, a.X, a.Y)); err != nil {
		return err
	}
	body, err := c.PatchFlow(ctx, a.FlowID, flow)
	if err != nil {
		return err
	}
	s.log.InfoContext(ctx, "langflow.component.added", slog.String("flow_id", a.FlowID), slog.String("node_id", id))
	text, err := s.stamp("Component added", body)
	if err != nil {
		return err
	}
	return w.AppendText(text)
}

type generateArgs struct {
	Description string `json:"description" jsonschema:"description=Detailed description of the component functionality"`
	OutputPath  string `json:"output_path" jsonschema:"description=Path where to save the generated component"`
}

const generateSteps = 4

func (s *server) generateComponent(ctx context.Context, w mcpservice.ToolResponseWriter, r *mcpservice.ToolRequest[generateArgs]) error {
	a := r.Args()
	cfg, err := s.settings(ctx)
	if err != nil {
		return err
	}
	if strings.TrimSpace(cfg.OpenAIAPIKey) == "" {
		return mcpservice.NewConfigError("OPENAI_API_KEY is not set")
	}
	log := s.log.With(slog.String("output", a.OutputPath))

	reply, err := s.completer.Complete(ctx, llm.Request{
		APIKey:  cfg.OpenAIAPIKey,
		BaseURL: cfg.OpenAIBaseURL,
		Model:   cfg.PythonModel,
		Prompt:  CodePrompt(a.Description),
	})
	if err != nil {
		return s.modelError(ctx, err)
	}
	code, ok := ExtractPython(reply)
	if !ok {
		log.WarnContext(ctx, "langflow.generate.no_code", slog.Int("reply_len", len(reply)))
		return errors.New("Failed to generate valid Python code")
	}
	if err := w.SendProgress(1, generateSteps); err != nil {
		return err
	}

	reply, err = s.completer.Complete(ctx, llm.Request{
		APIKey:  cfg.OpenAIAPIKey,
		BaseURL: cfg.OpenAIBaseURL,
		Model:   cfg.JSONModel,
		Prompt:  DefinitionPrompt(StringLiteral(code), LastSentence(a.Description)),
	})
	if err != nil {
		return s.modelError(ctx, err)
	}
	definition, err := InjectCode(ExtractFenced(reply), code)
	if err != nil {
		log.WarnContext(ctx, "langflow.generate.bad_json", slog.String("err", err.Error()))
		return fmt.Errorf("Failed to parse generated JSON: %w", err)
	}
	if err := w.SendProgress(2, generateSteps); err != nil {
		return err
	}

	base := strings.TrimRight(a.OutputPath, "/")
	pyPath, jsonPath := base+"_component.py", base+"_component.json"
	if err := os.WriteFile(pyPath, []byte(code), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", pyPath, err)
	}
	if err := w.SendProgress(3, generateSteps); err != nil {
		return err
	}
	if err := os.WriteFile(jsonPath, definition, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", jsonPath, err)
	}
	if err := w.SendProgress(generateSteps, generateSteps); err != nil {
		return err
	}
	log.InfoContext(ctx, "langflow.generate.ok", slog.Int("code_bytes", len(code)), slog.Int("json_bytes", len(definition)))
	return w.AppendText(fmt.Sprintf("Component generated successfully!\nPython file: %s\nJSON file: %s", pyPath, jsonPath))
}

func (s *server) modelError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return fmt.Errorf("OpenAI API error: %w", err)
}
