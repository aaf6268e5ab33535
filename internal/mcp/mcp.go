// Package mcp provides the script console MCP server, registering all tools
// and publishing model instructions.
package mcp

import (
	_ "embed"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/deixis/scriptconsole"
	"github.com/deixis/scriptconsole/internal/workflow"
)

//go:embed instructions.md
var Instructions string

// handler holds shared dependencies for all tool handlers.
type handler struct {
	engine *workflow.Engine
}

// NewServer creates an MCP server with all console tools registered.
func NewServer(e *workflow.Engine) *mcp.Server {
	h := &handler{engine: e}

	s := mcp.NewServer(&mcp.Implementation{Name: "scriptconsole", Version: scriptconsole.Version}, &mcp.ServerOptions{
		Instructions: Instructions,
		Capabilities: &mcp.ServerCapabilities{
			Tools: &mcp.ToolCapabilities{ListChanged: false},
		},
	})

	mcp.AddTool(s, &mcp.Tool{
		Name: "console_execute",
		Description: `Run a JavaScript script against the repository and return its printed output.

The script runs in the given space (company home by default), optionally as another
user and inside a transaction. Conflicting transactions are retried; the output of a
retried attempt is discarded. Pass result_channel to poll progress with console_output.`,
	}, h.executeHandler)

	mcp.AddTool(s, &mcp.Tool{
		Name:        "console_result",
		Description: "Return the outcome last published to a result channel by console_execute.",
	}, h.resultHandler)

	mcp.AddTool(s, &mcp.Tool{
		Name:        "console_output",
		Description: "Return the lines printed so far by a run on a result channel.",
	}, h.outputHandler)

	mcp.AddTool(s, &mcp.Tool{
		Name:        "console_info",
		Description: "Describe the console: version, timeout, cache backend and script wrapping.",
	}, h.infoHandler)

	return s
}

// textResult is a helper to build a text-only tool result.
func textResult(text string) (*mcp.CallToolResult, any, error) {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}, nil, nil
}

// errorResult is a helper to build an error tool result.
func errorResult(text string) (*mcp.CallToolResult, any, error) {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
		IsError: true,
	}, nil, nil
}
