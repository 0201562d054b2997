// Package stdio implements a single-connection MCP transport over
// stdin/stdout. Every server in this repository is launched by a desktop
// client as a subprocess and spoken to through this transport.
//
// Characteristics
//
//	Connection model : 1 process <-> 1 client
//	Auth             : OS user (lightweight implicit principal)
//	Sessions         : Ephemeral, one per Serve call
//	Framing          : Newline-delimited JSON-RPC 2.0
//	Ordering         : Requests handled one at a time, answered in order
//
// Server-initiated notifications (resource list changes, progress) are
// interleaved with responses on the same writer. Logs never go to stdout.
//
// Example:
//
//	srv := mcpservice.NewServer(
//	    mcpservice.WithServerInfo(mcp.ImplementationInfo{Name: "notes", Version: "0.1.0"}),
//	    mcpservice.WithToolsCapability(tools),
//	)
//	h := stdio.NewHandler(srv, stdio.WithLogger(logger))
//	if err := h.Serve(ctx); err != nil { log.Fatal(err) }
package stdio
