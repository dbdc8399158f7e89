package cmd

import (
	"github.com/spf13/cobra"

	"github.com/speccyhq/speccy/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start the MCP server on stdio",
	Long:  "Expose speccy sessions as MCP tools over stdio so agent tooling can list interviews and drive turns.",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := getStore()
		if err != nil {
			return err
		}

		orch := buildOrchestrator(s)
		srv := mcp.NewServer(s, orch)
		return srv.ServeStdio(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
