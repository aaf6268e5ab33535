package mcp

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/deixis/scriptconsole/internal/config"
	"github.com/deixis/scriptconsole/internal/workflow"
)

// setup creates a full console MCP server + client over in-memory transports.
func setup(t *testing.T, cfg *config.Config) *mcp.ClientSession {
	t.Helper()
	ctx := context.Background()

	if cfg == nil {
		cfg = &config.Config{}
	}
	engine, svc, err := workflow.New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("workflow.New: %v", err)
	}

	server := NewServer(engine)

	ct, st := mcp.NewInMemoryTransports()
	ss, err := server.Connect(ctx, st, nil)
	if err != nil {
		t.Fatalf("server.Connect: %v", err)
	}

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "v0.0.1"}, nil)
	cs, err := client.Connect(ctx, ct, nil)
	if err != nil {
		t.Fatalf("client.Connect: %v", err)
	}

	t.Cleanup(func() {
		_ = cs.Close()
		_ = ss.Wait()
		_ = svc.Close()
	})

	return cs
}

func callTool(t *testing.T, cs *mcp.ClientSession, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	res, err := cs.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		t.Fatalf("CallTool(%s): %v", name, err)
	}
	return res
}

func resultText(r *mcp.CallToolResult) string {
	var parts []string
	for _, c := range r.Content {
		if tc, ok := c.(*mcp.TextContent); ok {
			parts = append(parts, tc.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// --- console_execute ---

func TestConsoleExecute_Output(t *testing.T) {
	cs := setup(t, nil)
	res := callTool(t, cs, "console_execute", map[string]any{
		"script": "jsconsole.print('a'); jsconsole.print('b');",
	})
	text := resultText(res)
	if res.IsError {
		t.Fatalf("unexpected error: %s", text)
	}
	for _, want := range []string{"Status: OK (200)", "Run: ", "Space: /Company Home", "Output (2 lines):\n  a\n  b\n"} {
		if !strings.Contains(text, want) {
			t.Errorf("expected %q in output, got:\n%s", want, text)
		}
	}
}

func TestConsoleExecute_Template(t *testing.T) {
	cs := setup(t, nil)
	res := callTool(t, cs, "console_execute", map[string]any{
		"script":   "model.name = 'world';",
		"template": "hello {{.name}}",
	})
	text := resultText(res)
	if res.IsError {
		t.Fatalf("unexpected error: %s", text)
	}
	if !strings.Contains(text, "Template:\nhello world") {
		t.Errorf("expected rendered template, got:\n%s", text)
	}
}

func TestConsoleExecute_ScriptError(t *testing.T) {
	cs := setup(t, nil)
	res := callTool(t, cs, "console_execute", map[string]any{
		"script": "jsconsole.print('before');\nthrow new Error('kaput');",
	})
	text := resultText(res)
	if !res.IsError {
		t.Fatalf("expected IsError, got:\n%s", text)
	}
	for _, want := range []string{"Status: FAILED (500 Internal Error)", "kaput", "Script offset: -10", "Partial result:"} {
		if !strings.Contains(text, want) {
			t.Errorf("expected %q in output, got:\n%s", want, text)
		}
	}
}

func TestConsoleExecute_BlankScript(t *testing.T) {
	cs := setup(t, nil)
	res := callTool(t, cs, "console_execute", map[string]any{"script": "   "})
	text := resultText(res)
	if !res.IsError {
		t.Errorf("expected IsError for blank script, got:\n%s", text)
	}
	if !strings.Contains(text, "script is required") {
		t.Errorf("expected rejection reason, got:\n%s", text)
	}
}

func TestConsoleExecute_MissingScript(t *testing.T) {
	cs := setup(t, nil)
	_, err := cs.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "console_execute",
		Arguments: map[string]any{"template": "x"},
	})
	if err == nil {
		t.Error("expected error for missing script")
	}
}

// --- console_result / console_output ---

func TestConsoleChannel_AfterExecute(t *testing.T) {
	cs := setup(t, nil)
	res := callTool(t, cs, "console_execute", map[string]any{
		"script":         "for (var i = 0; i < 7; i++) { jsconsole.print('n' + i); }",
		"result_channel": "ch",
	})
	if res.IsError {
		t.Fatalf("unexpected error: %s", resultText(res))
	}

	out := resultText(callTool(t, cs, "console_output", map[string]any{"channel": "ch"}))
	if !strings.Contains(out, "Output (7 lines):") || !strings.Contains(out, "  n6\n") {
		t.Errorf("unexpected console_output:\n%s", out)
	}

	result := resultText(callTool(t, cs, "console_result", map[string]any{"channel": "ch"}))
	if !strings.Contains(result, "Status: OK") || !strings.Contains(result, "  n0\n") {
		t.Errorf("unexpected console_result:\n%s", result)
	}
}

func TestConsoleChannel_Failed(t *testing.T) {
	cs := setup(t, nil)
	callTool(t, cs, "console_execute", map[string]any{
		"script":         "throw 'x';",
		"result_channel": "bad",
	})
	text := resultText(callTool(t, cs, "console_result", map[string]any{"channel": "bad"}))
	if !strings.Contains(text, "Status: FAILED") {
		t.Errorf("expected failed entry, got:\n%s", text)
	}
}

func TestConsoleResult_Unknown(t *testing.T) {
	cs := setup(t, nil)
	res := callTool(t, cs, "console_result", map[string]any{"channel": "nope"})
	text := resultText(res)
	if res.IsError {
		t.Fatalf("unexpected error: %s", text)
	}
	if !strings.Contains(text, "No result on channel nope") {
		t.Errorf("unexpected output:\n%s", text)
	}
}

func TestConsoleOutput_EmptyChannel(t *testing.T) {
	cs := setup(t, nil)
	res := callTool(t, cs, "console_output", map[string]any{"channel": ""})
	if !res.IsError {
		t.Error("expected IsError for empty channel")
	}
}

// --- console_info ---

func TestConsoleInfo(t *testing.T) {
	cs := setup(t, &config.Config{RawTimeout: "30s", Users: []string{"alice"}})
	res := callTool(t, cs, "console_info", nil)
	text := resultText(res)
	if res.IsError {
		t.Fatalf("unexpected error: %s", text)
	}
	for _, want := range []string{"Version: v", "Timeout: 30s", "Cache: memory", "pre-roll jsconsole-preroll.js", "Users: alice"} {
		if !strings.Contains(text, want) {
			t.Errorf("expected %q in output, got:\n%s", want, text)
		}
	}
}
