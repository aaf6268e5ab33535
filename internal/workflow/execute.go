package workflow

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/deixis/scriptconsole/internal/console"
	"github.com/deixis/scriptconsole/internal/output"
	"github.com/deixis/scriptconsole/internal/report"
)

// Outcome is what a transport returns for one request: a result on
// success, an error payload otherwise.
type Outcome struct {
	RunID  string
	Result *console.Result
	Error  *report.ErrorPayload
}

// StatusCode is the transport status of the outcome. A status code set by
// the script is used only when it is a valid three-digit HTTP code.
func (o Outcome) StatusCode() int {
	switch {
	case o.Error != nil:
		return o.Error.Status.Code
	case o.Result != nil && o.Result.Status != nil && validStatus(o.Result.Status.Code):
		return o.Result.Status.Code
	default:
		return 200
	}
}

func validStatus(code int) bool { return code >= 100 && code <= 999 }

// ExecuteJSON parses body and executes it. transportArgs are merged under
// the request's own arguments. A body that does not parse yields a 400
// payload and touches no cache.
func (e *Engine) ExecuteJSON(ctx context.Context, body []byte, transportArgs map[string]string) Outcome {
	req, err := console.ParseRequest(body)
	if err != nil {
		e.logger().Debug("rejected request", "err", err)
		payload := report.NewErrorPayload(err)
		return Outcome{Error: &payload}
	}
	req.TransportArgs = transportArgs
	return e.Execute(ctx, req)
}

// Execute runs req. When the request names a channel, output is mirrored
// to the output cache while the script runs and the outcome is published
// to the channel when it ends.
func (e *Engine) Execute(ctx context.Context, req console.Request) Outcome {
	runID := uuid.New().String()
	logger := e.logger().With("run_id", runID)
	if req.Channel != "" {
		logger = logger.With("channel", req.Channel)
	}
	logger.Info("executing script",
		"transaction", req.Mode.String(),
		"run_as", req.RunAs,
		"template", req.Template != "")

	// Cache writes outlive the run's deadline so a timed-out run still
	// publishes its failure.
	storeCtx := context.WithoutCancel(ctx)
	ctx, cancel := context.WithTimeout(ctx, e.Config.Timeout())
	defer cancel()

	script := e.Rewriter.Rewrite(req.Script)
	var buf output.Buffer = output.NewMemory()
	if req.Channel != "" {
		buf = output.NewChunked(storeCtx, e.Outputs, req.Channel, e.Config.ChunkSize())
	}

	orch := *e.Console
	orch.Logger = logger
	res, err := orch.Run(ctx, req, script, buf)
	e.publish(storeCtx, logger, req.Channel, res, err)

	if err != nil {
		logger.Warn("script failed", "err", err)
		payload := report.NewErrorPayload(err)
		return Outcome{RunID: runID, Error: &payload}
	}
	logger.Info("script completed",
		"lines", len(res.PrintOutput),
		"webscript_ms", res.WebscriptTime.Milliseconds())
	return Outcome{RunID: runID, Result: res}
}

func (e *Engine) publish(ctx context.Context, logger *slog.Logger, channel string, res *console.Result, runErr error) {
	if channel == "" {
		return
	}
	var err error
	if runErr != nil {
		err = e.Channels.PublishFailure(ctx, channel)
	} else {
		err = e.Channels.Publish(ctx, channel, res)
	}
	if err != nil {
		logger.Error("publishing result", "err", err)
	}
}

// ErrNoResult is returned by Result for a channel with no entry.
var ErrNoResult = errors.New("no result published for channel")

// Result returns the entry last published to channel.
func (e *Engine) Result(ctx context.Context, channel string) (report.Entry, error) {
	entry, ok, err := e.Channels.Take(ctx, channel)
	if err != nil {
		return report.Entry{}, err
	}
	if !ok {
		return report.Entry{}, ErrNoResult
	}
	return entry, nil
}

// Output returns the lines a run on channel has printed so far.
func (e *Engine) Output(ctx context.Context, channel string) ([]string, error) {
	return output.Snapshot(ctx, e.Outputs, channel, e.Config.ChunkSize())
}
