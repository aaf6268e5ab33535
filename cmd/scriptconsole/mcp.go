package main

import (
	"fmt"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"github.com/deixis/scriptconsole/internal/mcp"
)

func newMCPCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Start the MCP server on stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			instructions, err := cmd.Flags().GetBool("instructions")
			if err != nil {
				return err
			}
			if instructions {
				fmt.Fprint(cmd.OutOrStdout(), mcp.Instructions)
				return nil
			}

			engine, _, closeFn, err := setup(cmd)
			if err != nil {
				return err
			}
			defer closeFn()
			return mcp.NewServer(engine).Run(cmd.Context(), &mcpsdk.StdioTransport{})
		},
	}
	cmd.Flags().Bool("instructions", false, "print model instructions and exit")
	return cmd
}
