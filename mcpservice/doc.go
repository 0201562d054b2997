// Package mcpservice provides the capability containers the Ultra MCP
// servers are assembled from: a tool registry with schema validation, a
// prompt registry, a scheme-keyed resource resolver and the change
// notifications that tie state stores to resources/list_changed.
//
// Quick start:
//
//	type EchoArgs struct {
//	    Message string `json:"message" jsonschema:"description=Text to echo"`
//	}
//	tools := mcpservice.NewToolsContainer(
//	    mcpservice.NewTool[EchoArgs]("echo",
//	        func(ctx context.Context, w mcpservice.ToolResponseWriter, r *mcpservice.ToolRequest[EchoArgs]) error {
//	            return w.AppendText("you said: " + r.Args().Message)
//	        },
//	        mcpservice.WithToolDescription("Echo a message back to the caller"),
//	    ),
//	)
//	resources := mcpservice.NewResourcesContainer(logger)
//	resources.Handle("note", mcpservice.SchemeFuncs{List: listNotes, Read: readNote})
//
//	srv := mcpservice.NewServer(
//	    mcpservice.WithServerInfo(mcp.ImplementationInfo{Name: "example", Version: "1.0.0"}),
//	    mcpservice.WithToolsCapability(tools),
//	    mcpservice.WithResourcesCapability(resources),
//	)
//
// # Errors
//
// Tool handlers report data problems (bad arguments, missing notes, upstream
// failures) as text results with isError set. Caller mistakes (an unknown
// tool or prompt, a missing prompt argument, an unsupported URI scheme) are
// returned as errors so that the engine can answer with a JSON-RPC error.
package mcpservice
