package commands

import (
	"os"

	"github.com/agentsight/agentsight/internal/replay"
	"github.com/spf13/cobra"
)

func newFlowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "flow <session-id|file>",
		Short: "Show who talked to whom in a session",
		Example: `  agentsight flow sess-8f2f91
  agentsight flow ./incoming/session.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, _, fl, err := loadSession(args[0])
			if err != nil {
				return err
			}
			replay.NewRenderer(os.Stdout, false).RenderFlow(fl)
			return nil
		},
	}
}
