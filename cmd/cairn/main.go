// cmd/cairn/main.go
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	flagProjectRoot string
	flagCairnHome   string
	flagConfig      string
)

func main() {
	root := &cobra.Command{
		Use:           "cairn",
		Short:         "Agent orchestrator with overlay workspaces and human review",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&flagProjectRoot, "project-root", ".", "Project root directory")
	root.PersistentFlags().StringVar(&flagCairnHome, "cairn-home", "", "Cairn home directory (default ~/.cairn)")
	root.PersistentFlags().StringVar(&flagConfig, "config", "", "Path to cairn.yaml")

	root.AddCommand(
		newUpCmd(),
		newSpawnCmd(),
		newQueueCmd(),
		newAcceptCmd(),
		newRejectCmd(),
		newStatusCmd(),
		newListAgentsCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
