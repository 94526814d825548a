package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/agentsight/agentsight/internal/engine"
	mcpserver "github.com/agentsight/agentsight/internal/mcp"
	"github.com/agentsight/agentsight/internal/names"
	"github.com/spf13/cobra"
)

func newMCPCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Start agentsight as an MCP server (stdio)",
		Long: `Exposes agentsight as an MCP tool server. Add to your MCP client config:

  {
    "mcpServers": {
      "agentsight": {
        "command": "agentsight",
        "args": ["mcp", "--config", "./agentsight.yaml"]
      }
    }
  }

Tools: list_sessions, get_timeline, get_flow, scan_content`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfigOrDefaults()
			logger := errLogger()

			store, err := openStore(logger)
			if err != nil {
				return fmt.Errorf("opening session store: %w", err)
			}
			defer func() { _ = store.Close() }()

			scanner := engine.NewScanner(cfg.CustomRulesDir)
			defer scanner.Close()

			resolver := names.NewStoreResolver(store, logger)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			s := mcpserver.New(store, scanner, resolver, version, logger)
			return s.Run(ctx)
		},
	}
}
