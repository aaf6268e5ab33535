package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/deixis/scriptconsole/internal/console"
	"github.com/deixis/scriptconsole/internal/workflow"
)

type executeParams struct {
	Script              string            `json:"script" jsonschema:"the JavaScript source to run"`
	Template            string            `json:"template,omitempty" jsonschema:"Go text/template rendered with the script model after the script returns"`
	SpaceRef            string            `json:"space_ref,omitempty" jsonschema:"reference of the space the script runs in. Defaults to company home."`
	DocumentRef         string            `json:"document_ref,omitempty" jsonschema:"reference of the document bound as document and dumped after the run"`
	Args                map[string]string `json:"args,omitempty" jsonschema:"arguments bound as args"`
	RunAs               string            `json:"run_as,omitempty" jsonschema:"principal to impersonate"`
	UseTransaction      bool              `json:"use_transaction,omitempty" jsonschema:"run inside a transaction, retried on conflict"`
	TransactionReadOnly bool              `json:"transaction_read_only,omitempty" jsonschema:"make the transaction read-only"`
	ResultChannel       string            `json:"result_channel,omitempty" jsonschema:"channel to publish output and outcome to, for console_output and console_result"`
}

func (p executeParams) request() (console.Request, error) {
	return console.Request{
		Script:      p.Script,
		Template:    p.Template,
		SpaceRef:    p.SpaceRef,
		DocumentRef: p.DocumentRef,
		URLArgs:     p.Args,
		RunAs:       p.RunAs,
		Mode:        console.ModeOf(p.UseTransaction, p.TransactionReadOnly),
		Channel:     p.ResultChannel,
	}.Normalize()
}

func (h *handler) executeHandler(ctx context.Context, req *mcp.CallToolRequest, params executeParams) (*mcp.CallToolResult, any, error) {
	r, err := params.request()
	if err != nil {
		return errorResult(err.Error())
	}

	out := h.engine.Execute(ctx, r)
	if out.Error != nil {
		return errorResult(formatFailure(out))
	}
	return textResult(formatSuccess(out))
}

func formatSuccess(out workflow.Outcome) string {
	var b strings.Builder
	res := out.Result

	fmt.Fprintf(&b, "Status: OK (%d)\n", out.StatusCode())
	fmt.Fprintf(&b, "Run: %s\n", out.RunID)
	fmt.Fprintf(&b, "Space: %s (%s)\n", res.SpacePath, res.SpaceRef)
	fmt.Fprintf(&b, "Time: %dms total, %dms script", res.WebscriptTime.Milliseconds(), res.ScriptTime.Milliseconds())
	if res.TemplateRendered {
		fmt.Fprintf(&b, ", %dms template", res.TemplateTime.Milliseconds())
	}
	fmt.Fprintln(&b)
	if res.Status != nil && res.Status.Redirect {
		fmt.Fprintf(&b, "Redirect: %s\n", res.Status.Location)
	}
	fmt.Fprintln(&b)

	writeLines(&b, "Output", res.PrintOutput)
	if res.TemplateRendered {
		fmt.Fprintln(&b)
		fmt.Fprintln(&b, "Template:")
		fmt.Fprintln(&b, res.RenderedTemplate)
	}
	for _, d := range res.DumpOutput {
		fmt.Fprintln(&b)
		fmt.Fprintf(&b, "Dump of %s:\n", d.NodeRef)
		fmt.Fprintln(&b, d.JSON)
	}
	return b.String()
}

func formatFailure(out workflow.Outcome) string {
	var b strings.Builder
	p := out.Error

	fmt.Fprintf(&b, "Status: FAILED (%d %s)\n", p.Status.Code, p.Status.Name)
	if out.RunID != "" {
		fmt.Fprintf(&b, "Run: %s\n", out.RunID)
	}
	fmt.Fprintf(&b, "Message: %s\n", p.Message)
	if p.ScriptOffset != 0 {
		fmt.Fprintf(&b, "Script offset: %d (add to reported line numbers)\n", p.ScriptOffset)
	}
	fmt.Fprintln(&b)
	fmt.Fprintln(&b, "Callstack:")
	fmt.Fprint(&b, p.Callstack)
	if p.Result != "" {
		fmt.Fprintln(&b)
		fmt.Fprintln(&b, "Partial result:")
		fmt.Fprintln(&b, p.Result)
	}
	return b.String()
}

func writeLines(b *strings.Builder, title string, lines []string) {
	if len(lines) == 0 {
		fmt.Fprintf(b, "%s: (none)\n", title)
		return
	}
	fmt.Fprintf(b, "%s (%d lines):\n", title, len(lines))
	for _, line := range lines {
		fmt.Fprintf(b, "  %s\n", line)
	}
}

