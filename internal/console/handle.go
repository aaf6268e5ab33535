package console

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"github.com/deixis/scriptconsole/internal/output"
)

// Console is the handle scripts reach as "jsconsole". It appends printed
// values to the run's output buffer and tracks the current space.
type Console struct {
	ctx    context.Context
	buf    output.Buffer
	store  ObjectStore
	logger *slog.Logger

	mu    sync.Mutex
	space *Node
}

func newConsole(ctx context.Context, buf output.Buffer, store ObjectStore, space *Node, logger *slog.Logger) *Console {
	return &Console{ctx: ctx, buf: buf, store: store, space: space, logger: logger}
}

// Print appends v to the output as one line.
func (c *Console) Print(v any) {
	if err := c.buf.Append(formatValue(v)); err != nil {
		// The line is still kept locally; only pollers miss it.
		c.logger.Warn("output chunk write failed", "err", err)
	}
}

// GetSpace returns the current space.
func (c *Console) GetSpace() *Node {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.space
}

// SetSpace changes the current space. v is a node, a node ref, or an
// object carrying a "ref" property.
func (c *Console) SetSpace(v any) error {
	var ref string
	switch s := v.(type) {
	case *Node:
		if s == nil {
			return errors.New("setSpace: nil node")
		}
		ref = s.Ref
	case string:
		ref = s
	case map[string]any:
		ref, _ = s["ref"].(string)
	}
	if ref == "" {
		return fmt.Errorf("setSpace: cannot use %T as a space", v)
	}

	node, err := c.store.Node(c.ctx, ref)
	if err != nil {
		return fmt.Errorf("setSpace: %w", err)
	}
	c.mu.Lock()
	c.space = node
	c.mu.Unlock()
	return nil
}

func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "null"
	case string:
		return x
	case fmt.Stringer:
		return x.String()
	case error:
		return x.Error()
	case bool:
		return strconv.FormatBool(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case *Node:
		return x.Ref
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}

// ScriptLogger is the "logger" object scripts log through. Messages go to
// the process log and, prefixed with their level, to the console output.
type ScriptLogger struct {
	console *Console
	logger  *slog.Logger
}

func (l *ScriptLogger) enabled(level slog.Level) bool {
	return l.logger.Enabled(l.console.ctx, level)
}

func (l *ScriptLogger) IsLoggingEnabled() bool      { return l.enabled(slog.LevelDebug) }
func (l *ScriptLogger) IsDebugLoggingEnabled() bool { return l.enabled(slog.LevelDebug) }
func (l *ScriptLogger) IsInfoLoggingEnabled() bool  { return l.enabled(slog.LevelInfo) }
func (l *ScriptLogger) IsWarnLoggingEnabled() bool  { return l.enabled(slog.LevelWarn) }
func (l *ScriptLogger) IsErrorLoggingEnabled() bool { return l.enabled(slog.LevelError) }

// Log is an alias of Debug.
func (l *ScriptLogger) Log(msg string) { l.Debug(msg) }

func (l *ScriptLogger) Debug(msg string) {
	l.logger.Debug(msg)
	l.console.Print("DEBUG - " + msg)
}

func (l *ScriptLogger) Info(msg string) {
	l.logger.Info(msg)
	l.console.Print(msg)
}

func (l *ScriptLogger) Warn(msg string) {
	l.logger.Warn(msg)
	l.console.Print("WARN - " + msg)
}

func (l *ScriptLogger) Error(msg string) {
	l.logger.Error(msg)
	l.console.Print("ERROR - " + msg)
}

// MergeModel copies the script's return model into the template model,
// unwrapping engine values when the engine knows how.
func MergeModel(engine ScriptEngine, returnModel, templateModel map[string]any) {
	u, _ := engine.(ValueUnwrapper)
	for k, v := range returnModel {
		if u != nil {
			v = u.UnwrapValue(v)
		}
		templateModel[k] = v
	}
}

// SpacePath returns the display path of node including its own name. A
// node the current principal cannot see is reported as "/".
func SpacePath(ctx context.Context, store ObjectStore, node *Node) (string, error) {
	p, err := store.DisplayPath(ctx, node.Ref)
	if errors.Is(err, ErrAccessDenied) {
		return "/", nil
	}
	if err != nil {
		return "", err
	}
	return p + "/" + node.Name, nil
}
