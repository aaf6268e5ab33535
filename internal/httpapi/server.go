// Package httpapi exposes the console over HTTP: script execution, result
// channel polling and the MCP streamable endpoint.
package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/deixis/scriptconsole/internal/console"
	"github.com/deixis/scriptconsole/internal/workflow"
)

// MaxBodyBytes bounds the size of an execute request.
const MaxBodyBytes = 8 << 20

// Server serves the console API.
type Server struct {
	Engine *workflow.Engine
	MCP    *mcpsdk.Server // mounted at /mcp when set
	Logger *slog.Logger
}

func (s *Server) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

// Handler returns the routes of s.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/execute", s.handleExecute)
	mux.HandleFunc("GET /api/result/{channel}", s.handleResult)
	mux.HandleFunc("GET /api/output/{channel}", s.handleOutput)
	if s.MCP != nil {
		mux.Handle("/mcp", mcpsdk.NewStreamableHTTPHandler(
			func(_ *http.Request) *mcpsdk.Server { return s.MCP },
			nil,
		))
	}
	return s.logRequests(mux)
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "reading request body: "+err.Error())
		return
	}

	out := s.Engine.ExecuteJSON(r.Context(), body, queryArgs(r))
	if out.Error != nil {
		writeJSON(w, out.StatusCode(), out.Error)
		return
	}

	res := out.Result
	if res.Status != nil && res.Status.Location != "" {
		w.Header().Set("Location", res.Status.Location)
	}
	if res.CacheControl != nil {
		applyCacheControl(w.Header(), res.CacheControl)
	}
	writeJSON(w, out.StatusCode(), res)
}

func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	channel := r.PathValue("channel")
	entry, err := s.Engine.Result(r.Context(), channel)
	if errors.Is(err, workflow.ErrNoResult) {
		writeError(w, http.StatusNotFound, "no result for channel "+channel)
		return
	}
	if err != nil {
		s.logger().Error("reading result channel", "channel", channel, "err", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

type outputBody struct {
	Channel     string   `json:"channel"`
	PrintOutput []string `json:"printOutput"`
}

func (s *Server) handleOutput(w http.ResponseWriter, r *http.Request) {
	channel := r.PathValue("channel")
	lines, err := s.Engine.Output(r.Context(), channel)
	if err != nil {
		s.logger().Error("reading output channel", "channel", channel, "err", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if lines == nil {
		lines = []string{}
	}
	writeJSON(w, http.StatusOK, outputBody{Channel: channel, PrintOutput: lines})
}

// queryArgs takes the first value of every query parameter.
func queryArgs(r *http.Request) map[string]string {
	q := r.URL.Query()
	if len(q) == 0 {
		return nil
	}
	args := make(map[string]string, len(q))
	for k, v := range q {
		if len(v) > 0 {
			args[k] = v[0]
		}
	}
	return args
}

func applyCacheControl(h http.Header, cc *console.CacheControl) {
	if cc.NeverCache {
		h.Set("Cache-Control", "no-cache")
		h.Set("Pragma", "no-cache")
		return
	}
	var parts []string
	if cc.IsPublic {
		parts = append(parts, "public")
	} else {
		parts = append(parts, "private")
	}
	if cc.MaxAge > 0 {
		parts = append(parts, "max-age="+strconv.Itoa(cc.MaxAge))
	}
	if cc.MustRevalidate {
		parts = append(parts, "must-revalidate")
	}
	h.Set("Cache-Control", strings.Join(parts, ", "))
}

type errorBody struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, errorBody{Error: msg})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger().Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.code,
			"duration_ms", time.Since(start).Milliseconds())
	})
}
