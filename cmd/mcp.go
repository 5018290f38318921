package main

import (
	"github.com/armchr/testgen/internal/bootstrap"
	"github.com/armchr/testgen/internal/mcpserver"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve generation tools over MCP on stdio",
	Long: `Start a Model Context Protocol server on stdin/stdout exposing the
generate_test, resolve_type and get_statistics tools. Logs go to stderr and
testgen.log in the workdir.`,
	RunE: runMCP,
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func runMCP(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	return withContainer(ctx, "stderr", bootstrap.Options{}, func(sc *bootstrap.ServiceContainer, logger *zap.Logger) error {
		return mcpserver.New(sc.Service, logger).Run(ctx)
	})
}
