package commands

import (
	"github.com/agentsight/agentsight/internal/config"
	"github.com/spf13/cobra"
)

var cfgFile string

// loadConfigOrDefaults reads the --config file, falling back to built-in
// defaults when it does not exist. One-shot commands never hard-fail on a
// missing config the way serve validation does.
func loadConfigOrDefaults() *config.Config {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return config.Defaults()
	}
	return cfg
}

func NewRoot() *cobra.Command {
	root := &cobra.Command{
		Use:   "agentsight",
		Short: "Security timeline for multi-agent AI sessions",
		Long:  "Agentsight — Imports agent session snapshots, correlates them into security timelines, and reconstructs who talked to whom. No LLM. Single binary.",
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "agentsight.yaml", "config file path")

	root.AddCommand(
		newServeCmd(),
		newImportCmd(),
		newSessionsCmd(),
		newReplayCmd(),
		newFlowCmd(),
		newScanCmd(),
		newCheckCmd(),
		newMCPCmd(),
		newInitCmd(),
		newVersionCmd(),
	)

	return root
}
