// Command scriptconsole runs JavaScript against a content repository and
// serves the console over HTTP and MCP.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/deixis/scriptconsole/internal/config"
	"github.com/deixis/scriptconsole/internal/workflow"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "scriptconsole: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "scriptconsole",
		Short:         "Run scripts against the content repository",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("config", "", "path to a .scriptconsole file (default: search upward from the working directory)")
	root.PersistentFlags().String("log-level", "", "override log.level (debug, info, warn, error)")

	root.AddCommand(newServeCmd(), newMCPCmd(), newExecCmd(), newPollCmd(), newVersionCmd())
	return root
}

// loadConfig reads the file named by --config, or the nearest
// .scriptconsole above the working directory.
func loadConfig(cmd *cobra.Command) (*config.LoadResult, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	var loaded *config.LoadResult
	if path != "" {
		loaded, err = config.LoadFile(path)
	} else {
		var wd string
		if wd, err = os.Getwd(); err != nil {
			return nil, fmt.Errorf("determining working directory: %w", err)
		}
		loaded, err = config.Load(wd)
	}
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	level, err := cmd.Flags().GetString("log-level")
	if err != nil {
		return nil, err
	}
	if level != "" {
		loaded.Config.Log.Level = level
	}
	return loaded, nil
}

// newLogger builds the process logger. Logs go to stderr so stdout stays
// free for results and the MCP stdio transport.
func newLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel()}
	if strings.EqualFold(cfg.Log.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// setup loads configuration and wires the engine. The returned close
// function releases the engine's connections.
func setup(cmd *cobra.Command) (*workflow.Engine, *slog.Logger, func(), error) {
	loaded, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, nil, err
	}
	logger := newLogger(loaded.Config, cmd.ErrOrStderr())
	if loaded.Path != "" {
		logger.Debug("loaded configuration", "path", loaded.Path)
	}

	engine, svc, err := workflow.New(loaded.Config, logger)
	if err != nil {
		return nil, nil, nil, err
	}
	closeFn := func() {
		if err := svc.Close(); err != nil {
			logger.Warn("closing services", "err", err)
		}
	}
	return engine, logger, closeFn, nil
}
