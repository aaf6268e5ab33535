package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/deixis/scriptconsole"
	"github.com/deixis/scriptconsole/internal/source"
)

type infoParams struct{}

func (h *handler) infoHandler(ctx context.Context, req *mcp.CallToolRequest, _ infoParams) (*mcp.CallToolResult, any, error) {
	cfg := h.engine.Config

	preRoll, postRoll := cfg.Scripts.PreRoll, cfg.Scripts.PostRoll
	if preRoll == "" {
		preRoll = source.DefaultPreRoll
	}
	if postRoll == "" {
		postRoll = source.DefaultPostRoll
	}
	scripts := "embedded"
	if cfg.Scripts.Dir != "" {
		scripts = cfg.Scripts.Dir
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Version: %s\n", scriptconsole.Version)
	fmt.Fprintf(&b, "Timeout: %s\n", cfg.Timeout())
	fmt.Fprintf(&b, "Cache: %s (ttl %s)\n", cfg.CacheBackend(), cfg.CacheTTL())
	fmt.Fprintf(&b, "Output chunk size: %d lines\n", cfg.ChunkSize())
	fmt.Fprintf(&b, "Transaction attempts: %d (backoff %s)\n", cfg.MaxAttempts(), cfg.Backoff())
	fmt.Fprintf(&b, "Scripts: %s (pre-roll %s, post-roll %s)\n", scripts, preRoll, postRoll)
	if len(cfg.Users) > 0 {
		fmt.Fprintf(&b, "Users: %s\n", strings.Join(cfg.Users, ", "))
	}
	return textResult(b.String())
}
