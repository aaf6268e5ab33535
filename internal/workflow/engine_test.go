package workflow

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"testing"

	"github.com/deixis/scriptconsole/internal/config"
	"github.com/deixis/scriptconsole/internal/console"
	"github.com/deixis/scriptconsole/internal/repo"
)

// preRollLines is the line count of the embedded pre-roll script.
const preRollLines = 10

func newTestEngine(t *testing.T, cfg *config.Config) (*Engine, *Services) {
	t.Helper()
	if cfg == nil {
		cfg = &config.Config{}
	}
	e, svc, err := New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = svc.Close() })
	return e, svc
}

var reportedLine = regexp.MustCompile(`\(line (\d+), column \d+\)`)

func TestExecuteJSON_PrintOutput(t *testing.T) {
	e, _ := newTestEngine(t, nil)

	out := e.ExecuteJSON(context.Background(),
		[]byte(`{"script":"jsconsole.print('a'); jsconsole.print('b');"}`), nil)
	if out.Error != nil {
		t.Fatalf("unexpected error payload: %+v", out.Error)
	}
	if want := []string{"a", "b"}; !reflect.DeepEqual(out.Result.PrintOutput, want) {
		t.Errorf("PrintOutput = %q, want %q", out.Result.PrintOutput, want)
	}
	if out.Result.ScriptOffset != -preRollLines {
		t.Errorf("ScriptOffset = %d, want %d", out.Result.ScriptOffset, -preRollLines)
	}
	if out.Result.SpacePath != "/Company Home" {
		t.Errorf("SpacePath = %q, want /Company Home", out.Result.SpacePath)
	}
	if out.RunID == "" {
		t.Error("RunID is empty")
	}
	if out.StatusCode() != 200 {
		t.Errorf("StatusCode = %d, want 200", out.StatusCode())
	}
}

func TestExecuteJSON_PreRollHelpers(t *testing.T) {
	e, _ := newTestEngine(t, nil)

	out := e.ExecuteJSON(context.Background(), []byte(`{"script":"print(1 + 1);"}`), nil)
	if out.Error != nil {
		t.Fatalf("unexpected error payload: %+v", out.Error)
	}
	if len(out.Result.PrintOutput) != 1 || out.Result.PrintOutput[0] != "2" {
		t.Errorf("PrintOutput = %q, want [2]", out.Result.PrintOutput)
	}
}

func TestExecuteJSON_ErrorLineMapsToUserScript(t *testing.T) {
	e, _ := newTestEngine(t, nil)

	script := `jsconsole.print('one');\nvar x = 1;\nthrow new Error('boom');`
	out := e.ExecuteJSON(context.Background(), []byte(`{"script":"`+script+`"}`), nil)
	if out.Error == nil {
		t.Fatal("expected error payload")
	}
	if out.StatusCode() != 500 {
		t.Errorf("StatusCode = %d, want 500", out.StatusCode())
	}
	if !strings.Contains(out.Error.Message, "boom") {
		t.Errorf("Message = %q, want it to mention boom", out.Error.Message)
	}
	m := reportedLine.FindStringSubmatch(out.Error.Callstack)
	if m == nil {
		t.Fatalf("no line in callstack:\n%s", out.Error.Callstack)
	}
	line, _ := strconv.Atoi(m[1])
	if got := line + out.Error.ScriptOffset; got != 3 {
		t.Errorf("user line = %d (reported %d, offset %d), want 3", got, line, out.Error.ScriptOffset)
	}
	if !strings.Contains(out.Error.Result, `"printOutput":["one"]`) {
		t.Errorf("partial result = %s, want printed line", out.Error.Result)
	}
}

func TestExecuteJSON_InvalidRequest(t *testing.T) {
	e, _ := newTestEngine(t, nil)

	for _, body := range []string{`{`, `{"script":"  "}`} {
		out := e.ExecuteJSON(context.Background(), []byte(body), nil)
		if out.Error == nil || out.StatusCode() != 400 {
			t.Errorf("body %s: outcome = %+v, want 400 payload", body, out)
		}
		if out.RunID != "" {
			t.Errorf("body %s: run started for invalid request", body)
		}
		if out.Error != nil && !strings.HasPrefix(out.Error.Message, "invalid request: ") {
			t.Errorf("body %s: message = %q, want the rejection reason", body, out.Error.Message)
		}
	}
}

func TestExecuteJSON_TransportArgs(t *testing.T) {
	e, _ := newTestEngine(t, nil)

	body := `{"script":"jsconsole.print(args.a + args.b);","urlargs":{"b":"2"}}`
	out := e.ExecuteJSON(context.Background(), []byte(body), map[string]string{"a": "1", "b": "x"})
	if out.Error != nil {
		t.Fatalf("unexpected error payload: %+v", out.Error)
	}
	if got := out.Result.PrintOutput; len(got) != 1 || got[0] != "12" {
		t.Errorf("PrintOutput = %q, want [12]", got)
	}
}

func TestExecute_ChannelPublishesResultAndOutput(t *testing.T) {
	e, _ := newTestEngine(t, &config.Config{Output: config.OutputConfig{ChunkSize: 2}})
	ctx := context.Background()

	body := `{"script":"for (var i = 0; i < 5; i++) { jsconsole.print('line ' + i); }","resultChannel":"c1"}`
	out := e.ExecuteJSON(ctx, []byte(body), nil)
	if out.Error != nil {
		t.Fatalf("unexpected error payload: %+v", out.Error)
	}

	lines, err := e.Output(ctx, "c1")
	if err != nil {
		t.Fatalf("Output: %v", err)
	}
	want := []string{"line 0", "line 1", "line 2", "line 3", "line 4"}
	if !reflect.DeepEqual(lines, want) {
		t.Errorf("Output = %q, want %q", lines, want)
	}

	entry, err := e.Result(ctx, "c1")
	if err != nil {
		t.Fatalf("Result: %v", err)
	}
	if entry.Failed {
		t.Error("entry marked failed")
	}
	if !reflect.DeepEqual(entry.Result.PrintOutput, want) {
		t.Errorf("published PrintOutput = %q, want %q", entry.Result.PrintOutput, want)
	}
	if entry.Result.Status != nil {
		t.Error("published result carries status")
	}
}

func TestExecute_ChannelPublishesFailure(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	ctx := context.Background()

	out := e.ExecuteJSON(ctx, []byte(`{"script":"throw 'nope';","resultChannel":"c2"}`), nil)
	if out.Error == nil {
		t.Fatal("expected error payload")
	}
	entry, err := e.Result(ctx, "c2")
	if err != nil {
		t.Fatalf("Result: %v", err)
	}
	if !entry.Failed {
		t.Error("entry not marked failed")
	}
}

func TestResult_UnknownChannel(t *testing.T) {
	e, _ := newTestEngine(t, nil)

	if _, err := e.Result(context.Background(), "missing"); !errors.Is(err, ErrNoResult) {
		t.Errorf("err = %v, want ErrNoResult", err)
	}
	lines, err := e.Output(context.Background(), "missing")
	if err != nil || len(lines) != 0 {
		t.Errorf("Output = %q, %v, want empty", lines, err)
	}
}

func TestExecute_ConflictRetriesWithFreshOutput(t *testing.T) {
	e, svc := newTestEngine(t, nil)
	ctx := context.Background()
	home, err := svc.Repository.CompanyHome(ctx)
	if err != nil {
		t.Fatal(err)
	}

	attempts := 0
	bindings := e.Console.Bindings
	e.Console.Bindings = func(ctx context.Context) map[string]any {
		m := bindings(ctx)
		m["interfere"] = func() {
			attempts++
			if attempts == 1 {
				// A concurrent writer commits outside the script's transaction.
				if _, err := svc.Repository.CreateNode(context.Background(), home.Ref, "other", repo.TypeFolder); err != nil {
					panic(err)
				}
			}
		}
		return m
	}

	body := `{"script":"jsconsole.print('attempt'); repo.createFolder(companyhome.ref, 'mine'); interfere();","useTransaction":true,"resultChannel":"c3"}`
	out := e.ExecuteJSON(ctx, []byte(body), nil)
	if out.Error != nil {
		t.Fatalf("unexpected error payload: %+v", out.Error)
	}
	if attempts != 2 {
		t.Errorf("attempts = %d, want 2", attempts)
	}
	if want := []string{"attempt"}; !reflect.DeepEqual(out.Result.PrintOutput, want) {
		t.Errorf("PrintOutput = %q, want %q", out.Result.PrintOutput, want)
	}
	lines, err := e.Output(ctx, "c3")
	if err != nil || !reflect.DeepEqual(lines, []string{"attempt"}) {
		t.Errorf("channel output = %q, %v, want [attempt]", lines, err)
	}
	if _, err := svc.Repository.ChildByName(ctx, home.Ref, "mine"); err != nil {
		t.Errorf("folder created by script not committed: %v", err)
	}
}

func TestExecute_Timeout(t *testing.T) {
	e, _ := newTestEngine(t, &config.Config{RawTimeout: "50ms"})

	out := e.ExecuteJSON(context.Background(), []byte(`{"script":"while (true) {}"}`), nil)
	if out.Error == nil {
		t.Fatal("expected error payload")
	}
	if !strings.Contains(out.Error.Callstack, "interrupted") {
		t.Errorf("callstack = %q, want interruption", out.Error.Callstack)
	}
}

func TestExecute_RunAsUnknownUser(t *testing.T) {
	e, _ := newTestEngine(t, &config.Config{Users: []string{"alice"}})

	out := e.ExecuteJSON(context.Background(), []byte(`{"script":"jsconsole.print(repo.whoami());","runAs":"alice"}`), nil)
	if out.Error != nil {
		t.Fatalf("unexpected error payload: %+v", out.Error)
	}
	if got := out.Result.PrintOutput; len(got) != 1 || got[0] != "alice" {
		t.Errorf("PrintOutput = %q, want [alice]", got)
	}

	out = e.ExecuteJSON(context.Background(), []byte(`{"script":"1;","runAs":"mallory"}`), nil)
	if out.Error == nil {
		t.Fatal("expected error payload for unknown principal")
	}
}

func TestExecute_Template(t *testing.T) {
	e, _ := newTestEngine(t, nil)

	body := `{"script":"model.greeting = 'hi';","template":"{{.greeting}} {{.status.Code}}"}`
	out := e.ExecuteJSON(context.Background(), []byte(body), nil)
	if out.Error != nil {
		t.Fatalf("unexpected error payload: %+v", out.Error)
	}
	if !out.Result.TemplateRendered || out.Result.RenderedTemplate != "hi 200" {
		t.Errorf("RenderedTemplate = %q (rendered %v), want %q",
			out.Result.RenderedTemplate, out.Result.TemplateRendered, "hi 200")
	}
}

func TestNew_MissingScriptsDir(t *testing.T) {
	cfg := &config.Config{Scripts: config.ScriptsConfig{Dir: t.TempDir()}}
	if _, _, err := New(cfg, nil); err == nil {
		t.Error("expected error for scripts dir without pre-roll")
	}
}

func TestExecute_DocumentDumpAndSetSpace(t *testing.T) {
	e, svc := newTestEngine(t, nil)
	ctx := context.Background()
	home, err := svc.Repository.CompanyHome(ctx)
	if err != nil {
		t.Fatal(err)
	}
	folder, err := svc.Repository.CreateNode(ctx, home.Ref, "Reports", repo.TypeFolder)
	if err != nil {
		t.Fatal(err)
	}
	doc, err := svc.Repository.CreateNode(ctx, folder.Ref, "q1.txt", repo.TypeContent)
	if err != nil {
		t.Fatal(err)
	}

	body := `{"script":"jsconsole.print(document.name); space = repo.node('` + folder.Ref + `');","documentRef":"` + doc.Ref + `"}`
	out := e.ExecuteJSON(ctx, []byte(body), nil)
	if out.Error != nil {
		t.Fatalf("unexpected error payload: %+v", out.Error)
	}
	if got := out.Result.PrintOutput; len(got) != 1 || got[0] != "q1.txt" {
		t.Errorf("PrintOutput = %q, want [q1.txt]", got)
	}
	if out.Result.SpaceRef != folder.Ref || out.Result.SpacePath != "/Company Home/Reports" {
		t.Errorf("space = %s %q, want %s /Company Home/Reports", out.Result.SpaceRef, out.Result.SpacePath, folder.Ref)
	}
	if len(out.Result.DumpOutput) != 1 || out.Result.DumpOutput[0].NodeRef != doc.Ref {
		t.Fatalf("DumpOutput = %+v", out.Result.DumpOutput)
	}
	if !strings.Contains(out.Result.DumpOutput[0].JSON, `"displayPath": "/Company Home/Reports/q1.txt"`) {
		t.Errorf("dump = %s", out.Result.DumpOutput[0].JSON)
	}
}

func TestOutcome_StatusCode(t *testing.T) {
	tests := []struct {
		name string
		code int
		want int
	}{
		{"unset", 0, 200},
		{"created", 201, 201},
		{"redirect", 302, 302},
		{"below range", 42, 200},
		{"negative", -1, 200},
		{"above range", 1000, 200},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := Outcome{Result: &console.Result{Status: &console.Status{Code: tt.code}}}
			if got := out.StatusCode(); got != tt.want {
				t.Errorf("StatusCode() = %d, want %d", got, tt.want)
			}
		})
	}
}
