package engine

import (
	"context"

	"github.com/motebus/Ultra-MCP-Servers/internal/jsonrpc"
)

// MessageWriter delivers server-initiated messages (notifications) to the
// peer. Transports serialize its writes with their own responses.
type MessageWriter interface {
	WriteMessage(ctx context.Context, msg jsonrpc.Message) error
}

type MessageWriterFunc func(ctx context.Context, msg jsonrpc.Message) error

func (f MessageWriterFunc) WriteMessage(ctx context.Context, msg jsonrpc.Message) error {
	return f(ctx, msg)
}

type discardWriter struct{}

func (discardWriter) WriteMessage(context.Context, jsonrpc.Message) error { return nil }
