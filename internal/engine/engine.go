package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/motebus/Ultra-MCP-Servers/internal/jsonrpc"
	"github.com/motebus/Ultra-MCP-Servers/internal/logctx"
	"github.com/motebus/Ultra-MCP-Servers/mcp"
	"github.com/motebus/Ultra-MCP-Servers/mcpservice"
)

var (
	ErrNotInitialized     = errors.New("server not initialized")
	ErrAlreadyInitialized = errors.New("server already initialized")
	ErrClosed             = errors.New("session closed")
)

// Engine is the protocol core of a single MCP session. It owns the
// Uninitialized -> Negotiating -> Ready -> Closed lifecycle, routes requests
// to the server's capabilities and maps their errors onto JSON-RPC codes.
// It is transport-agnostic: a transport decodes messages, hands them to
// Handle, and writes the returned responses.
type Engine struct {
	srv     mcpservice.ServerCapabilities
	out     MessageWriter
	log     *slog.Logger
	metrics *mcpservice.Metrics
	sess    *Session

	name string // server name used as a metrics label
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets a custom logger for the Engine.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithMetrics records request and tool call metrics.
func WithMetrics(m *mcpservice.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithMessageWriter sets the sink for server-initiated notifications.
func WithMessageWriter(w MessageWriter) Option {
	return func(e *Engine) {
		if w != nil {
			e.out = w
		}
	}
}

// WithSessionIdentity overrides the generated session id and sets the user
// id attached to log records.
func WithSessionIdentity(sessionID, userID string) Option {
	return func(e *Engine) {
		if sessionID == "" {
			sessionID = e.sess.id
		}
		e.sess = newSession(sessionID, userID)
	}
}

func NewEngine(srv mcpservice.ServerCapabilities, opts ...Option) *Engine {
	e := &Engine{
		srv:  srv,
		out:  discardWriter{},
		log:  slog.Default(),
		sess: newSession(uuid.NewString(), ""),
		name: srv.GetServerInfo().Name,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// Session returns the session served by e.
func (e *Engine) Session() *Session { return e.sess }

// WithSessionContext decorates ctx with the session's log attributes.
func (e *Engine) WithSessionContext(ctx context.Context) context.Context {
	return logctx.WithSessionData(ctx, &logctx.SessionData{
		SessionID:       e.sess.SessionID(),
		UserID:          e.sess.UserID(),
		Server:          e.name,
		ProtocolVersion: e.sess.ProtocolVersion(),
	})
}

// Run forwards resource list changes as notifications until ctx is done.
// Signals that arrive before initialize are dropped. Run returns nil when
// the resources capability cannot change.
func (e *Engine) Run(ctx context.Context) error {
	resCap, ok := e.srv.GetResourcesCapability()
	if !ok {
		return nil
	}
	sub, ok := resCap.(mcpservice.ChangeSubscriber)
	if !ok {
		return nil
	}
	ch := sub.Subscriber()
	if u, ok := resCap.(interface{ Unsubscribe(<-chan struct{}) }); ok {
		defer u.Unsubscribe(ch)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case _, open := <-ch:
			if !open {
				return nil
			}
			switch e.sess.State() {
			case StateNegotiating, StateReady:
			default:
				continue
			}
			if err := e.notify(ctx, string(mcp.ResourcesListChangedNotificationMethod), nil); err != nil {
				e.log.WarnContext(ctx, "engine.emitter.publish.fail", slog.String("err", err.Error()))
				continue
			}
			e.metrics.ObserveListChanged()
		}
	}
}

// Close moves the session to Closed. Later requests are rejected.
func (e *Engine) Close() {
	e.sess.close()
}

func (e *Engine) notify(ctx context.Context, method string, params any) error {
	note, err := jsonrpc.NewNotification(method, params)
	if err != nil {
		return err
	}
	b, err := json.Marshal(note)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}
	return e.out.WriteMessage(ctx, b)
}

// Handle processes one decoded message. It returns the response to write,
// or nil for notifications and client responses.
func (e *Engine) Handle(ctx context.Context, msg *jsonrpc.AnyMessage) *jsonrpc.Response {
	switch msg.Type() {
	case "request":
		req := msg.AsRequest()
		ctx = logctx.WithRPCMessage(ctx, &logctx.RPCMessage{Method: req.Method, ID: req.ID.String(), Type: "request"})
		start := time.Now()
		res := e.HandleRequest(ctx, req)
		var err error
		if res.Error != nil {
			err = errors.New(res.Error.Message)
		}
		e.metrics.ObserveRequest(e.name, req.Method, time.Since(start), err)
		return res
	case "notification":
		note := msg.AsRequest()
		ctx = logctx.WithRPCMessage(ctx, &logctx.RPCMessage{Method: note.Method, Type: "notification"})
		e.HandleNotification(ctx, note)
		return nil
	default:
		// The servers never send requests, so there is nothing to correlate.
		e.log.DebugContext(ctx, "engine.handle_response.ignored")
		return nil
	}
}

// HandleRequest enforces the session lifecycle and routes req by method.
func (e *Engine) HandleRequest(ctx context.Context, req *jsonrpc.Request) *jsonrpc.Response {
	switch e.sess.State() {
	case StateClosed:
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidRequest, ErrClosed.Error(), nil)
	case StateUninitialized:
		switch req.Method {
		case string(mcp.InitializeMethod), string(mcp.PingMethod):
		default:
			e.log.InfoContext(ctx, "engine.handle_request.not_initialized")
			return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidRequest, ErrNotInitialized.Error(), nil)
		}
	case StateNegotiating:
		// The first regular request implies the client finished the handshake.
		if req.Method != string(mcp.InitializeMethod) && req.Method != string(mcp.PingMethod) && e.sess.markReady() {
			e.log.InfoContext(ctx, "engine.session.ready", slog.String("via", "implicit"))
		}
	}

	switch req.Method {
	case string(mcp.InitializeMethod):
		return e.handleInitialize(ctx, req)
	case string(mcp.PingMethod):
		return e.result(ctx, req, mcp.EmptyResult{})
	case string(mcp.ToolsListMethod):
		return e.handleToolsList(ctx, req)
	case string(mcp.ToolsCallMethod):
		return e.handleToolCall(ctx, req)
	case string(mcp.ResourcesListMethod):
		return e.handleResourcesList(ctx, req)
	case string(mcp.ResourcesReadMethod):
		return e.handleResourcesRead(ctx, req)
	case string(mcp.PromptsListMethod):
		return e.handlePromptsList(ctx, req)
	case string(mcp.PromptsGetMethod):
		return e.handlePromptsGet(ctx, req)
	case string(mcp.LoggingSetLevelMethod):
		return e.handleSetLoggingLevel(ctx, req)
	}

	e.log.InfoContext(ctx, "engine.handle_request.unknown_method")
	return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeMethodNotFound, fmt.Sprintf("method not found: %s", req.Method), nil)
}

// HandleNotification processes a client notification. Unknown
// notifications are ignored.
func (e *Engine) HandleNotification(ctx context.Context, note *jsonrpc.Request) {
	switch note.Method {
	case string(mcp.InitializedNotificationMethod):
		if e.sess.markReady() {
			e.log.InfoContext(ctx, "engine.session.ready", slog.String("via", "initialized"))
			return
		}
		e.log.InfoContext(ctx, "engine.handle_notification.unexpected", slog.String("state", e.sess.State().String()))
	case string(mcp.CancelledNotificationMethod):
		// Requests run one at a time, so by the time a cancellation is read
		// the request it names has already been answered.
		e.log.DebugContext(ctx, "engine.handle_notification.cancelled")
	default:
		e.log.DebugContext(ctx, "engine.handle_notification.ignored")
	}
}

func (e *Engine) result(ctx context.Context, req *jsonrpc.Request, v any) *jsonrpc.Response {
	res, err := jsonrpc.NewResultResponse(req.ID, v)
	if err != nil {
		e.log.ErrorContext(ctx, "engine.handle_request.encode.fail", slog.String("err", err.Error()))
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInternalError, "internal error", nil)
	}
	return res
}

func (e *Engine) handleInitialize(ctx context.Context, req *jsonrpc.Request) *jsonrpc.Response {
	start := time.Now()
	log := e.log.With(slog.String("method", req.Method))

	var params mcp.InitializeRequest
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			log.InfoContext(ctx, "engine.handle_request.invalid", slog.String("err", err.Error()), slog.Int64("dur_ms", time.Since(start).Milliseconds()))
			return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidParams, "invalid params", nil)
		}
	}

	version := params.ProtocolVersion
	if !mcp.IsSupportedProtocolVersion(version) {
		version = mcp.LatestProtocolVersion
	}

	if !e.sess.negotiate(version, params.ClientInfo) {
		log.InfoContext(ctx, "engine.handle_request.invalid", slog.String("err", ErrAlreadyInitialized.Error()), slog.Int64("dur_ms", time.Since(start).Milliseconds()))
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidRequest, ErrAlreadyInitialized.Error(), nil)
	}

	res := &mcp.InitializeResult{
		ProtocolVersion: version,
		Capabilities:    e.capabilities(),
		ServerInfo:      e.srv.GetServerInfo(),
	}
	if instr, ok := e.srv.GetInstructions(); ok {
		res.Instructions = instr
	}

	log.InfoContext(e.WithSessionContext(ctx), "engine.session.initialize.ok",
		slog.String("requested_version", params.ProtocolVersion),
		slog.String("client", params.ClientInfo.Name),
		slog.Int64("dur_ms", time.Since(start).Milliseconds()),
	)
	return e.result(ctx, req, res)
}

func (e *Engine) capabilities() mcp.ServerCapabilities {
	var caps mcp.ServerCapabilities
	if _, ok := e.srv.GetToolsCapability(); ok {
		caps.Tools = &mcp.ListChangedCapability{}
	}
	if _, ok := e.srv.GetPromptsCapability(); ok {
		caps.Prompts = &mcp.ListChangedCapability{}
	}
	if resCap, ok := e.srv.GetResourcesCapability(); ok {
		_, canChange := resCap.(mcpservice.ChangeSubscriber)
		caps.Resources = &struct {
			ListChanged bool `json:"listChanged"`
			Subscribe   bool `json:"subscribe"`
		}{ListChanged: canChange}
	}
	if _, ok := e.srv.GetLoggingCapability(); ok {
		caps.Logging = &struct{}{}
	}
	return caps
}

func (e *Engine) handleSetLoggingLevel(ctx context.Context, req *jsonrpc.Request) *jsonrpc.Response {
	start := time.Now()
	log := e.log.With(slog.String("method", req.Method))

	var params mcp.SetLevelRequest
	if err := json.Unmarshal(req.Params, &params); err != nil {
		log.InfoContext(ctx, "engine.handle_request.invalid", slog.String("err", err.Error()), slog.Int64("dur_ms", time.Since(start).Milliseconds()))
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidParams, "invalid params", nil)
	}

	cap, ok := e.srv.GetLoggingCapability()
	if !ok {
		log.InfoContext(ctx, "engine.handle_request.unsupported", slog.Int64("dur_ms", time.Since(start).Milliseconds()))
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeMethodNotFound, "logging capability not supported", nil)
	}

	if err := cap.SetLevel(ctx, params.Level); err != nil {
		if errors.Is(err, mcpservice.ErrInvalidLoggingLevel) {
			log.InfoContext(ctx, "engine.handle_request.invalid", slog.String("err", err.Error()), slog.Int64("dur_ms", time.Since(start).Milliseconds()))
			return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidParams, fmt.Sprintf("invalid logging level: %q", params.Level), nil)
		}
		log.ErrorContext(ctx, "engine.handle_request.fail", slog.String("err", err.Error()))
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInternalError, "internal error", nil)
	}

	log.InfoContext(ctx, "engine.handle_request.ok", slog.String("level", string(params.Level)), slog.Int64("dur_ms", time.Since(start).Milliseconds()))
	return e.result(ctx, req, mcp.EmptyResult{})
}

func (e *Engine) handleToolsList(ctx context.Context, req *jsonrpc.Request) *jsonrpc.Response {
	start := time.Now()
	log := e.log.With(slog.String("method", req.Method))

	var params mcp.ListToolsRequest
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			log.InfoContext(ctx, "engine.handle_request.invalid", slog.String("err", err.Error()), slog.Int64("dur_ms", time.Since(start).Milliseconds()))
			return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidParams, "invalid params", nil)
		}
	}

	cap, ok := e.srv.GetToolsCapability()
	if !ok {
		log.InfoContext(ctx, "engine.handle_request.unsupported", slog.Int64("dur_ms", time.Since(start).Milliseconds()))
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeMethodNotFound, "tools capability not supported", nil)
	}

	page, err := cap.ListTools(ctx, cursorOf(params.Cursor))
	if err != nil {
		log.ErrorContext(ctx, "engine.handle_request.fail", slog.String("err", err.Error()))
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInternalError, "internal error", nil)
	}

	result := &mcp.ListToolsResult{Tools: page.Items}
	if page.NextCursor != nil {
		result.NextCursor = *page.NextCursor
	}

	log.InfoContext(ctx, "engine.handle_request.ok", slog.Int64("dur_ms", time.Since(start).Milliseconds()), slog.Int("tool_count", len(page.Items)))
	return e.result(ctx, req, result)
}

func (e *Engine) handleToolCall(ctx context.Context, req *jsonrpc.Request) *jsonrpc.Response {
	start := time.Now()
	log := e.log.With(slog.String("method", req.Method))

	var params mcp.CallToolRequestReceived
	if err := json.Unmarshal(req.Params, &params); err != nil {
		log.InfoContext(ctx, "engine.handle_request.invalid", slog.String("err", err.Error()), slog.Int64("dur_ms", time.Since(start).Milliseconds()))
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidParams, "invalid params", nil)
	}
	if params.Name == "" {
		log.InfoContext(ctx, "engine.handle_request.invalid", slog.String("err", "missing tool name"), slog.Int64("dur_ms", time.Since(start).Milliseconds()))
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidParams, "invalid params: missing tool name", nil)
	}

	ctx = logctx.WithToolCallData(ctx, &logctx.ToolCallData{ToolName: params.Name})

	cap, ok := e.srv.GetToolsCapability()
	if !ok {
		log.InfoContext(ctx, "engine.handle_request.unsupported", slog.Int64("dur_ms", time.Since(start).Milliseconds()))
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeMethodNotFound, "tools capability not supported", nil)
	}

	if params.Meta != nil && params.Meta.ProgressToken != nil {
		ctx = mcpservice.WithProgressReporter(ctx, e.progressReporter(params.Meta.ProgressToken))
	}

	res, err := cap.CallTool(ctx, &params)
	if err != nil {
		e.metrics.ObserveToolCall(e.name, params.Name, "protocol_error", time.Since(start))
		if mcpservice.IsProtocolError(err) {
			log.InfoContext(ctx, "engine.handle_request.invalid", slog.String("err", err.Error()), slog.Int64("dur_ms", time.Since(start).Milliseconds()))
			return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidParams, err.Error(), nil)
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			log.InfoContext(ctx, "engine.handle_request.cancelled", slog.Int64("dur_ms", time.Since(start).Milliseconds()))
			return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInternalError, "cancelled", nil)
		}
		log.ErrorContext(ctx, "engine.handle_request.fail", slog.String("err", err.Error()), slog.Int64("dur_ms", time.Since(start).Milliseconds()))
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInternalError, "internal error", nil)
	}

	outcome := "ok"
	if res.IsError {
		outcome = "tool_error"
	}
	e.metrics.ObserveToolCall(e.name, params.Name, outcome, time.Since(start))

	log.InfoContext(ctx, "engine.handle_request.ok", slog.Bool("is_error", res.IsError), slog.Int64("dur_ms", time.Since(start).Milliseconds()))
	return e.result(ctx, req, res)
}

func (e *Engine) progressReporter(token mcp.ProgressToken) mcpservice.ProgressReporter {
	return mcpservice.ProgressReporterFunc(func(ctx context.Context, progress, total float64) error {
		return e.notify(ctx, string(mcp.ProgressNotificationMethod), mcp.ProgressNotificationParams{
			ProgressToken: token,
			Progress:      progress,
			Total:         total,
		})
	})
}

func (e *Engine) handleResourcesList(ctx context.Context, req *jsonrpc.Request) *jsonrpc.Response {
	start := time.Now()
	log := e.log.With(slog.String("method", req.Method))

	var params mcp.ListResourcesRequest
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			log.InfoContext(ctx, "engine.handle_request.invalid", slog.String("err", err.Error()), slog.Int64("dur_ms", time.Since(start).Milliseconds()))
			return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidParams, "invalid params", nil)
		}
	}

	cap, ok := e.srv.GetResourcesCapability()
	if !ok {
		log.InfoContext(ctx, "engine.handle_request.unsupported", slog.Int64("dur_ms", time.Since(start).Milliseconds()))
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeMethodNotFound, "resources capability not supported", nil)
	}

	page, err := cap.ListResources(ctx, cursorOf(params.Cursor))
	if err != nil {
		log.ErrorContext(ctx, "engine.handle_request.fail", slog.String("err", err.Error()))
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInternalError, "internal error", nil)
	}

	result := &mcp.ListResourcesResult{Resources: page.Items}
	if page.NextCursor != nil {
		result.NextCursor = *page.NextCursor
	}

	log.InfoContext(ctx, "engine.handle_request.ok", slog.Int64("dur_ms", time.Since(start).Milliseconds()), slog.Int("resource_count", len(page.Items)))
	return e.result(ctx, req, result)
}

func (e *Engine) handleResourcesRead(ctx context.Context, req *jsonrpc.Request) *jsonrpc.Response {
	start := time.Now()
	log := e.log.With(slog.String("method", req.Method))

	var params mcp.ReadResourceRequest
	if err := json.Unmarshal(req.Params, &params); err != nil {
		log.InfoContext(ctx, "engine.handle_request.invalid", slog.String("err", err.Error()), slog.Int64("dur_ms", time.Since(start).Milliseconds()))
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidParams, "invalid params", nil)
	}
	if params.URI == "" {
		log.InfoContext(ctx, "engine.handle_request.invalid", slog.String("err", "missing uri"), slog.Int64("dur_ms", time.Since(start).Milliseconds()))
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidParams, "invalid params: missing uri", nil)
	}

	cap, ok := e.srv.GetResourcesCapability()
	if !ok {
		log.InfoContext(ctx, "engine.handle_request.unsupported", slog.Int64("dur_ms", time.Since(start).Milliseconds()))
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeMethodNotFound, "resources capability not supported", nil)
	}

	contents, err := cap.ReadResource(ctx, params.URI)
	if err != nil {
		var nf *mcpservice.NotFoundError
		switch {
		case mcpservice.IsProtocolError(err):
			log.InfoContext(ctx, "engine.handle_request.invalid", slog.String("err", err.Error()), slog.Int64("dur_ms", time.Since(start).Milliseconds()))
			return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidParams, err.Error(), nil)
		case errors.As(err, &nf):
			log.InfoContext(ctx, "engine.handle_request.not_found", slog.String("uri", params.URI), slog.Int64("dur_ms", time.Since(start).Milliseconds()))
			return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeResourceNotFound, err.Error(), map[string]string{"uri": params.URI})
		}
		log.ErrorContext(ctx, "engine.handle_request.fail", slog.String("err", err.Error()), slog.Int64("dur_ms", time.Since(start).Milliseconds()))
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInternalError, err.Error(), nil)
	}

	res := &mcp.ReadResourceResult{Contents: contents}
	log.InfoContext(ctx, "engine.handle_request.ok", slog.Int64("dur_ms", time.Since(start).Milliseconds()), slog.Int("content_count", len(contents)))
	return e.result(ctx, req, res)
}

func (e *Engine) handlePromptsList(ctx context.Context, req *jsonrpc.Request) *jsonrpc.Response {
	start := time.Now()
	log := e.log.With(slog.String("method", req.Method))

	var params mcp.ListPromptsRequest
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			log.InfoContext(ctx, "engine.handle_request.invalid", slog.String("err", err.Error()), slog.Int64("dur_ms", time.Since(start).Milliseconds()))
			return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidParams, "invalid params", nil)
		}
	}

	cap, ok := e.srv.GetPromptsCapability()
	if !ok {
		log.InfoContext(ctx, "engine.handle_request.unsupported", slog.Int64("dur_ms", time.Since(start).Milliseconds()))
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeMethodNotFound, "prompts capability not supported", nil)
	}

	page, err := cap.ListPrompts(ctx, cursorOf(params.Cursor))
	if err != nil {
		log.ErrorContext(ctx, "engine.handle_request.fail", slog.String("err", err.Error()))
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInternalError, "internal error", nil)
	}

	result := &mcp.ListPromptsResult{Prompts: page.Items}
	if page.NextCursor != nil {
		result.NextCursor = *page.NextCursor
	}

	log.InfoContext(ctx, "engine.handle_request.ok", slog.Int64("dur_ms", time.Since(start).Milliseconds()), slog.Int("prompt_count", len(page.Items)))
	return e.result(ctx, req, result)
}

func (e *Engine) handlePromptsGet(ctx context.Context, req *jsonrpc.Request) *jsonrpc.Response {
	start := time.Now()
	log := e.log.With(slog.String("method", req.Method))

	var params mcp.GetPromptRequestReceived
	if err := json.Unmarshal(req.Params, &params); err != nil {
		log.InfoContext(ctx, "engine.handle_request.invalid", slog.String("err", err.Error()), slog.Int64("dur_ms", time.Since(start).Milliseconds()))
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidParams, "invalid params", nil)
	}

	cap, ok := e.srv.GetPromptsCapability()
	if !ok {
		log.InfoContext(ctx, "engine.handle_request.unsupported", slog.Int64("dur_ms", time.Since(start).Milliseconds()))
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeMethodNotFound, "prompts capability not supported", nil)
	}

	res, err := cap.GetPrompt(ctx, &params)
	if err != nil {
		if mcpservice.IsProtocolError(err) {
			log.InfoContext(ctx, "engine.handle_request.invalid", slog.String("err", err.Error()), slog.Int64("dur_ms", time.Since(start).Milliseconds()))
			return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidParams, err.Error(), nil)
		}
		log.ErrorContext(ctx, "engine.handle_request.fail", slog.String("err", err.Error()), slog.Int64("dur_ms", time.Since(start).Milliseconds()))
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInternalError, err.Error(), nil)
	}

	log.InfoContext(ctx, "engine.handle_request.ok", slog.Int64("dur_ms", time.Since(start).Milliseconds()), slog.Int("message_count", len(res.Messages)))
	return e.result(ctx, req, res)
}

func cursorOf(c string) *string {
	if c == "" {
		return nil
	}
	return &c
}
