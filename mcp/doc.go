// Package mcp contains the protocol data types and constants shared by the
// transport, the engine and the server capability containers. It mirrors the
// wire representation of the Model Context Protocol subset spoken by the
// Ultra MCP servers: initialization, tools, resources, prompts, logging and
// progress.
//
// The package is free of transport logic. The stdio transport and the
// engine import these types but implement their own framing and session
// handling.
//
// # Method Names
//
// JSON-RPC method and notification names are enumerated as Method constants
// (e.g. ToolsListMethod).
//
// # Protocol Versions
//
// SupportedProtocolVersions lists the revisions a server accepts verbatim
// during initialize. Any other requested version is answered with
// LatestProtocolVersion.
//
// Example (tool result construction):
//
//	res := &mcp.CallToolResult{
//	    Content: []mcp.ContentBlock{{Type: mcp.ContentTypeText, Text: "hello"}},
//	}
package mcp

// ContentTypeText is the only content block type the servers produce.
const ContentTypeText = "text"
