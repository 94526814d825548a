package commands

import (
	"fmt"
	"os"

	"github.com/agentsight/agentsight/internal/config"
	"github.com/spf13/cobra"
)

func newInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(cfgFile); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", cfgFile)
			}

			cfg := config.Defaults()
			if err := cfg.Save(cfgFile); err != nil {
				return err
			}

			fmt.Printf("Wrote %s\n", cfgFile)
			fmt.Println()
			fmt.Println("Next steps:")
			fmt.Println("  agentsight serve                start the dashboard server")
			fmt.Println("  agentsight import session.json  import a session snapshot")
			fmt.Println("  agentsight check                audit this config")
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config")
	return cmd
}
