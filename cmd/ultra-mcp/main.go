// Command ultra-mcp runs one of the Ultra MCP servers over stdio.
//
//	ultra-mcp notes
//	ultra-mcp --state redis --redis-addr localhost:6379 scout
//	ultra-mcp --metrics-addr :9464 qdrant
//
// Logs go to stderr; stdout carries the protocol.
package main

import (
	"context"
	"os"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
