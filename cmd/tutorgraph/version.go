package main

import (
	"fmt"
	"strings"

	"github.com/aretw0/tutorgraph"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of tutorgraph",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("tutorgraph version %s\n", strings.TrimSpace(tutorgraph.Version))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
