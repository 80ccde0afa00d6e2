package main

import (
	"fmt"

	"github.com/aretw0/tutorgraph"
	"github.com/aretw0/tutorgraph/internal/cli"
	"github.com/aretw0/tutorgraph/pkg/adapters/mcp"
	"github.com/spf13/cobra"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run the Model Context Protocol (MCP) server",
	Long: `Exposes the tutoring graph as MCP tools (run_conversation, get_graph) and
the graph resource tutorgraph://graph.

Supported Transports:
- stdio (default): Uses Standard Input/Output. Ideal for local process integration.
- sse: Uses Server-Sent Events over HTTP. Ideal for remote agents or debuggers.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		transport, _ := cmd.Flags().GetString("transport")
		port, _ := cmd.Flags().GetInt("port")
		offline, _ := cmd.Flags().GetBool("offline")

		// Logs go to stderr so they never corrupt JSON-RPC on stdout.
		logger := newLogger(cfg)

		sigCtx := cli.NewSignalContext(cmd.Context())
		defer sigCtx.Cancel()

		stack, err := cli.Build(sigCtx, cfg, cli.Options{
			Offline: offline,
			Logger:  logger,
			Version: tutorgraph.Version,
		})
		if err != nil {
			return err
		}
		defer stack.Close()

		srv := mcp.NewServer(stack.Engine, mcp.WithVersion(tutorgraph.Version), mcp.WithLogger(logger))

		switch transport {
		case "stdio":
			logger.Info("starting MCP server", "transport", "stdio")
			return srv.ServeStdio()
		case "sse":
			logger.Info("starting MCP server", "transport", "sse", "port", port)
			return srv.ServeSSE(sigCtx, port)
		default:
			return fmt.Errorf("unknown transport %q (supported: stdio, sse)", transport)
		}
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)

	mcpCmd.Flags().String("transport", "stdio", "Transport protocol to use: 'stdio' or 'sse'")
	mcpCmd.Flags().Int("port", 8080, "Port to listen on (only for SSE)")
	mcpCmd.Flags().Bool("offline", false, "Use the keyword rules instead of the model")
}
