package stdio

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/motebus/Ultra-MCP-Servers/internal/engine"
	"github.com/motebus/Ultra-MCP-Servers/internal/jsonrpc"
	"github.com/motebus/Ultra-MCP-Servers/mcpservice"
)

// Handler is a single-connection stdio transport that reads JSON-RPC messages
// from an io.Reader and writes responses to an io.Writer. By default, it uses
// os.Stdin and os.Stdout. It identifies the peer using a UserProvider, which
// defaults to the current OS user.
//
// The handler is transport-only; it delegates all MCP semantics to an
// engine built around the provided mcpservice.ServerCapabilities.
type Handler struct {
	srv          mcpservice.ServerCapabilities
	r            io.Reader
	w            io.Writer
	l            *slog.Logger
	userProvider UserProvider
	metrics      *mcpservice.Metrics
}

// NewHandler constructs a stdio Handler with defaults and applies options.
func NewHandler(srv mcpservice.ServerCapabilities, opts ...Option) *Handler {
	h := &Handler{
		srv:          srv,
		r:            os.Stdin,
		w:            os.Stdout,
		l:            slog.Default(),
		userProvider: OSUserProvider{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Serve runs the stdio event loop until EOF on the reader or the context is
// canceled; both end the session and return nil. It is safe to call at most
// once per Handler. Serve is responsible for:
//   - JSON-RPC message framing (newline-delimited)
//   - answering undecodable lines with parse or invalid request errors
//   - handing every message to the engine, one at a time
//   - writing responses and notifications to the writer
//
// A trailing line without a newline at EOF is dropped.
func (h *Handler) Serve(ctx context.Context) error {
	start := time.Now()

	userID, err := h.userProvider.CurrentUserID()
	if err != nil {
		h.l.WarnContext(ctx, "stdio.user.fail", slog.String("err", err.Error()))
	}

	out := &writeMux{w: h.w}
	eng := engine.NewEngine(h.srv,
		engine.WithLogger(h.l),
		engine.WithMetrics(h.metrics),
		engine.WithMessageWriter(out),
		engine.WithSessionIdentity("", userID),
	)
	ctx = eng.WithSessionContext(ctx)

	runCtx, cancel := context.WithCancel(ctx)
	emitterDone := make(chan struct{})
	go func() {
		defer close(emitterDone)
		if err := eng.Run(runCtx); err != nil {
			h.l.ErrorContext(runCtx, "stdio.emitter.fail", slog.String("err", err.Error()))
		}
	}()
	defer func() {
		eng.Close()
		cancel()
		<-emitterDone
	}()

	lines := make(chan []byte)
	readErr := make(chan error, 1)
	go h.readLines(runCtx, lines, readErr)

	h.l.InfoContext(ctx, "stdio.serve.start")

	for {
		select {
		case <-ctx.Done():
			h.l.InfoContext(ctx, "stdio.serve.stop", slog.String("reason", ctx.Err().Error()), slog.Int64("dur_ms", time.Since(start).Milliseconds()))
			return nil
		case err := <-readErr:
			if errors.Is(err, io.EOF) {
				h.l.InfoContext(ctx, "stdio.serve.eof", slog.Int64("dur_ms", time.Since(start).Milliseconds()))
				return nil
			}
			h.l.ErrorContext(ctx, "stdio.serve.read.fail", slog.String("err", err.Error()))
			return fmt.Errorf("failed to read message: %w", err)
		case line := <-lines:
			if err := h.handleLine(ctx, eng, out, line); err != nil {
				h.l.ErrorContext(ctx, "stdio.serve.write.fail", slog.String("err", err.Error()))
				return fmt.Errorf("failed to write response: %w", err)
			}
		}
	}
}

// readLines feeds complete newline-terminated lines to lines. It stops on
// the first read error, which it reports on errc.
func (h *Handler) readLines(ctx context.Context, lines chan<- []byte, errc chan<- error) {
	br := bufio.NewReader(h.r)
	for {
		line, err := br.ReadBytes('\n')
		if err != nil {
			if len(line) > 0 {
				h.l.DebugContext(ctx, "stdio.read.partial_dropped", slog.Int("bytes", len(line)))
			}
			errc <- err
			return
		}
		select {
		case lines <- line:
		case <-ctx.Done():
			return
		}
	}
}

func (h *Handler) handleLine(ctx context.Context, eng *engine.Engine, out *writeMux, line []byte) error {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return nil
	}

	if !json.Valid(line) {
		h.l.InfoContext(ctx, "stdio.decode.fail", slog.String("err", "invalid json"))
		return out.writeJSONRPC(jsonrpc.NewErrorResponse(nil, jsonrpc.ErrorCodeParseError, "parse error", nil))
	}

	var msg jsonrpc.AnyMessage
	if err := json.Unmarshal(line, &msg); err != nil {
		h.l.InfoContext(ctx, "stdio.decode.fail", slog.String("err", err.Error()))
		return out.writeJSONRPC(jsonrpc.NewErrorResponse(peekID(line), jsonrpc.ErrorCodeInvalidRequest, "invalid request", nil))
	}

	res := eng.Handle(ctx, &msg)
	if res == nil {
		return nil
	}
	return out.writeJSONRPC(res)
}

// peekID recovers the id of a well-formed JSON object that is not a valid
// JSON-RPC message, so the error can still be correlated.
func peekID(line []byte) *jsonrpc.RequestID {
	var probe struct {
		ID *jsonrpc.RequestID `json:"id"`
	}
	if json.Unmarshal(line, &probe) != nil {
		return nil
	}
	return probe.ID
}

// writeMux serializes writes of whole lines to the underlying writer so that
// notifications emitted by background work never split a response.
type writeMux struct {
	mu sync.Mutex
	w  io.Writer
}

func (m *writeMux) writeJSONRPC(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	return m.writeLine(b)
}

// WriteMessage implements engine.MessageWriter.
func (m *writeMux) WriteMessage(_ context.Context, msg jsonrpc.Message) error {
	return m.writeLine(msg)
}

func (m *writeMux) writeLine(b []byte) error {
	buf := make([]byte, 0, len(b)+1)
	buf = append(buf, b...)
	buf = append(buf, '\n')

	m.mu.Lock()
	defer m.mu.Unlock()
	_, err := m.w.Write(buf)
	return err
}
