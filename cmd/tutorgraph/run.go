package main

import (
	"fmt"
	"os"

	"github.com/aretw0/tutorgraph"
	"github.com/aretw0/tutorgraph/internal/cli"
	"github.com/aretw0/tutorgraph/internal/presentation/tui"
	"github.com/aretw0/tutorgraph/pkg/domain"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start an interactive tutoring session",
	Long: `Reads one student turn per line from stdin and prints the agents' replies.
Type 'quit' or press Ctrl+C to leave. With --session the conversation is saved and resumed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if !cmd.Flags().Changed("log-level") {
			// Keep info logs out of the conversation.
			cfg.Log.Level = "warn"
		}
		offline, _ := cmd.Flags().GetBool("offline")
		jsonMode, _ := cmd.Flags().GetBool("json")
		role, _ := cmd.Flags().GetString("role")
		sessionID, _ := cmd.Flags().GetString("session")

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

		opts := cli.ChatOptions{
			In:        os.Stdin,
			Out:       os.Stdout,
			SessionID: sessionID,
			Role:      domain.Role(role),
			JSON:      jsonMode,
			Logger:    logger,
		}
		if !jsonMode && tui.IsTerminal(os.Stdout) {
			tui.PrintBanner(os.Stdout, tutorgraph.Version)
			render, err := tui.NewRenderer(tui.TerminalWidth(os.Stdout))
			if err != nil {
				return err
			}
			opts.Render = render
		}

		err = cli.Chat(sigCtx, stack.Engine, stack.Sessions, opts)
		if sigCtx.Signal() != nil && !jsonMode {
			fmt.Println()
		}
		return cli.HandleExecutionError(err)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().Bool("offline", false, "Use the keyword rules instead of the model (no API keys needed)")
	runCmd.Flags().Bool("json", false, "Print one NDJSON record per turn")
	runCmd.Flags().String("role", string(domain.RoleStudent), "Who is talking: student or teacher")
	runCmd.Flags().StringP("session", "s", "", "Session ID to save and resume the conversation")
}
