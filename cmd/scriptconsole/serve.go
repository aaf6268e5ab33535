package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/deixis/scriptconsole/internal/httpapi"
	"github.com/deixis/scriptconsole/internal/mcp"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the console HTTP API and the MCP endpoint",
		Long: `Serve the console over HTTP:

  POST /api/execute            run a script
  GET  /api/result/{channel}   outcome published to a result channel
  GET  /api/output/{channel}   lines printed so far on a result channel
       /mcp                    MCP streamable transport`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}
	cmd.Flags().String("addr", "", "listen address (default: http.addr from config)")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	engine, logger, closeFn, err := setup(cmd)
	if err != nil {
		return err
	}
	defer closeFn()

	addr, err := cmd.Flags().GetString("addr")
	if err != nil {
		return err
	}
	if addr == "" {
		addr = engine.Config.HTTPAddr()
	}

	s := &httpapi.Server{Engine: engine, MCP: mcp.NewServer(engine), Logger: logger}
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx := cmd.Context()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	logger.Info("listening", "addr", addr)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}
