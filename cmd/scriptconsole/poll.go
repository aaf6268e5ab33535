package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newPollCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "poll <channel>",
		Short: "Print the output or result of a run on a result channel",
		Long: `Print the lines a run has printed so far on a result channel, or with
--result the outcome it published. Channels are shared between processes
only with the redis cache backend.`,
		Args: cobra.ExactArgs(1),
		RunE: runPoll,
	}
	cmd.Flags().Bool("result", false, "print the published result instead of the output")
	return cmd
}

func runPoll(cmd *cobra.Command, args []string) error {
	channel := args[0]
	wantResult, err := cmd.Flags().GetBool("result")
	if err != nil {
		return err
	}

	engine, _, closeFn, err := setup(cmd)
	if err != nil {
		return err
	}
	defer closeFn()

	w := cmd.OutOrStdout()
	if !wantResult {
		lines, err := engine.Output(cmd.Context(), channel)
		if err != nil {
			return fmt.Errorf("reading output of %s: %w", channel, err)
		}
		for _, line := range lines {
			fmt.Fprintln(w, line)
		}
		return nil
	}

	entry, err := engine.Result(cmd.Context(), channel)
	if err != nil {
		return fmt.Errorf("reading result of %s: %w", channel, err)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(entry)
}
