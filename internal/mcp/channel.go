package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/deixis/scriptconsole/internal/workflow"
)

type channelParams struct {
	Channel string `json:"channel" jsonschema:"the result_channel passed to console_execute"`
}

func (h *handler) resultHandler(ctx context.Context, req *mcp.CallToolRequest, params channelParams) (*mcp.CallToolResult, any, error) {
	if params.Channel == "" {
		return errorResult("channel is required")
	}

	entry, err := h.engine.Result(ctx, params.Channel)
	if errors.Is(err, workflow.ErrNoResult) {
		return textResult(fmt.Sprintf("No result on channel %s yet. The run may still be executing; poll console_output for progress.", params.Channel))
	}
	if err != nil {
		return errorResult(fmt.Sprintf("Failed to read channel %s: %v", params.Channel, err))
	}
	if entry.Failed {
		return textResult(fmt.Sprintf("Status: FAILED\nChannel: %s\n\nThe run failed; its error was returned to the caller of console_execute.\n", params.Channel))
	}

	var b strings.Builder
	res := entry.Result
	fmt.Fprintln(&b, "Status: OK")
	fmt.Fprintf(&b, "Channel: %s\n", params.Channel)
	fmt.Fprintf(&b, "Space: %s (%s)\n", res.SpacePath, res.SpaceRef)
	fmt.Fprintln(&b)
	writeLines(&b, "Output", res.PrintOutput)
	if res.TemplateRendered {
		fmt.Fprintln(&b)
		fmt.Fprintln(&b, "Template:")
		fmt.Fprintln(&b, res.RenderedTemplate)
	}
	return textResult(b.String())
}

func (h *handler) outputHandler(ctx context.Context, req *mcp.CallToolRequest, params channelParams) (*mcp.CallToolResult, any, error) {
	if params.Channel == "" {
		return errorResult("channel is required")
	}

	lines, err := h.engine.Output(ctx, params.Channel)
	if err != nil {
		return errorResult(fmt.Sprintf("Failed to read output of channel %s: %v", params.Channel, err))
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Channel: %s\n", params.Channel)
	writeLines(&b, "Output", lines)
	return textResult(b.String())
}
