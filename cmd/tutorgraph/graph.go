package main

import (
	"fmt"

	"github.com/aretw0/tutorgraph/internal/cli"
	"github.com/aretw0/tutorgraph/internal/presentation/graph"
	"github.com/aretw0/tutorgraph/internal/runtime"
	"github.com/spf13/cobra"
)

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Export the routing graph as a Mermaid diagram",
	Long: `Outputs a Mermaid flowchart (graph TD) of the supervisors, agents and routes.
With --session the nodes that took part in that conversation are highlighted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		var overlay *graph.GraphOverlay
		if sessionID, _ := cmd.Flags().GetString("session"); sessionID != "" {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			sessions, closeStore, err := cli.NewSessions(cfg.Session, nil, newLogger(cfg))
			if err != nil {
				return err
			}
			if closeStore != nil {
				defer closeStore()
			}
			state, err := sessions.Load(cmd.Context(), sessionID)
			if err != nil {
				return fmt.Errorf("error loading session '%s': %w", sessionID, err)
			}
			overlay = graph.OverlayFromState(state)
		}

		fmt.Print(graph.GenerateMermaid(runtime.Edges(), overlay))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(graphCmd)
	graphCmd.Flags().StringP("session", "s", "", "Highlight the nodes visited by this session")
}
