package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/deixis/scriptconsole/internal/console"
	"github.com/deixis/scriptconsole/internal/workflow"
)

func newExecCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "exec [file]",
		Short: "Run a script file (or stdin) and print the result",
		Long: `Run a script and print the JSON result, or the error payload when the
script fails. With --text only the printed lines (or the error message) are
written. Reads the script from stdin when no file or "-" is given.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runExec,
	}
	f := cmd.Flags()
	f.String("template", "", "template rendered with the script model")
	f.String("space", "", "reference of the space to run in")
	f.String("document", "", "reference of the document to bind and dump")
	f.String("run-as", "", "principal to impersonate")
	f.Bool("tx", false, "run inside a transaction")
	f.Bool("read-only", false, "make the transaction read-only")
	f.String("channel", "", "result channel to publish to")
	f.StringToString("arg", nil, "script argument as key=value (repeatable)")
	f.Bool("text", false, "print only output lines")
	return cmd
}

func runExec(cmd *cobra.Command, args []string) error {
	script, err := readScript(cmd, args)
	if err != nil {
		return err
	}
	req, err := execRequest(cmd, script)
	if err != nil {
		return err
	}
	text, err := cmd.Flags().GetBool("text")
	if err != nil {
		return err
	}

	engine, _, closeFn, err := setup(cmd)
	if err != nil {
		return err
	}
	defer closeFn()

	out := engine.Execute(cmd.Context(), req)
	return writeOutcome(cmd.OutOrStdout(), out, text)
}

func readScript(cmd *cobra.Command, args []string) (string, error) {
	var (
		data []byte
		err  error
	)
	if len(args) == 0 || args[0] == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(args[0])
	}
	if err != nil {
		return "", fmt.Errorf("reading script: %w", err)
	}
	return string(data), nil
}

func execRequest(cmd *cobra.Command, script string) (console.Request, error) {
	f := cmd.Flags()
	req := console.Request{Script: script}

	var err error
	get := func(name string, dst *string) {
		if err == nil {
			*dst, err = f.GetString(name)
		}
	}
	get("template", &req.Template)
	get("space", &req.SpaceRef)
	get("document", &req.DocumentRef)
	get("run-as", &req.RunAs)
	get("channel", &req.Channel)
	if err != nil {
		return console.Request{}, err
	}
	if req.URLArgs, err = f.GetStringToString("arg"); err != nil {
		return console.Request{}, err
	}

	tx, err := f.GetBool("tx")
	if err != nil {
		return console.Request{}, err
	}
	readOnly, err := f.GetBool("read-only")
	if err != nil {
		return console.Request{}, err
	}
	if readOnly && !tx {
		return console.Request{}, &console.RequestError{Reason: "--read-only requires --tx"}
	}
	req.Mode = console.ModeOf(tx, readOnly)
	return req.Normalize()
}

// writeOutcome prints out and reports a failed run as an error.
func writeOutcome(w io.Writer, out workflow.Outcome, text bool) error {
	if text {
		if out.Error != nil {
			fmt.Fprint(w, out.Error.Callstack)
		} else {
			for _, line := range out.Result.PrintOutput {
				fmt.Fprintln(w, line)
			}
			if out.Result.TemplateRendered {
				fmt.Fprintln(w, out.Result.RenderedTemplate)
			}
		}
	} else {
		var v any = out.Result
		if out.Error != nil {
			v = out.Error
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("writing result: %w", err)
		}
	}

	if out.Error != nil {
		return fmt.Errorf("script failed (%d): %s", out.Error.Status.Code, out.Error.Message)
	}
	return nil
}
