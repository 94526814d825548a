package commands

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/agentsight/agentsight/internal/session"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func newSessionsCmd() *cobra.Command {
	var severity, source, since string
	var withDetections bool
	var limit int

	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List stored sessions",
		Example: `  agentsight sessions
  agentsight sessions --severity high
  agentsight sessions --with-detections
  agentsight sessions --since 24h`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := errLogger()

			store, err := openStore(logger)
			if err != nil {
				return fmt.Errorf("opening session store: %w", err)
			}
			defer func() { _ = store.Close() }()

			opts := session.QueryOpts{
				Severity:       severity,
				Source:         source,
				WithDetections: withDetections,
				Limit:          limit,
			}
			if since != "" {
				dur, err := time.ParseDuration(since)
				if err != nil {
					return fmt.Errorf("invalid duration %q: %w", since, err)
				}
				opts.Since = time.Now().Add(-dur).UTC().Format(time.RFC3339)
			}

			records, err := store.List(opts)
			if err != nil {
				return err
			}

			if len(records) == 0 {
				fmt.Println("No sessions found.")
				return nil
			}

			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintf(tw, "ID\tIMPORTED\tSOURCE\tLABEL\tMSGS\tDETECTIONS\tSEVERITY\n") //nolint:errcheck // CLI output
			for _, r := range records {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%s\n", //nolint:errcheck // CLI output
					r.ID,
					r.ImportedAt.Local().Format("2006-01-02 15:04"),
					orDash(r.Source),
					orDash(r.Label),
					r.MessageCount,
					r.DetectionCount,
					coloredSeverity(r.MaxSeverity))
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVar(&severity, "severity", "", "filter by max severity (critical, high, medium, low)")
	cmd.Flags().StringVar(&source, "source", "", "filter by import source (watch, api, cli)")
	cmd.Flags().BoolVar(&withDetections, "with-detections", false, "show only sessions with detections")
	cmd.Flags().StringVar(&since, "since", "", "show sessions imported since duration (e.g. 1h, 30m)")
	cmd.Flags().IntVar(&limit, "limit", 50, "max sessions to return")
	return cmd
}

// errLogger is the quiet logger for CLI store access: errors only, to
// stderr, so table output stays clean.
func errLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// openStore opens the session store named by the config file, falling
// back to defaults when no config exists.
func openStore(logger *slog.Logger) (session.Store, error) {
	cfg := loadConfigOrDefaults()
	return session.Open(cfg.Storage.Driver, storageDSN(cfg), logger)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// coloredSeverity renders a severity word in its alert color. Kept in
// the last table column so the escape codes cannot skew tab stops.
func coloredSeverity(sev string) string {
	if sev == "" {
		return "-"
	}
	return severityColor(sev).Sprint(sev)
}

func severityColor(sev string) *color.Color {
	switch strings.ToLower(sev) {
	case "critical":
		return color.New(color.FgRed, color.Bold)
	case "high":
		return color.New(color.FgRed)
	case "medium":
		return color.New(color.FgYellow)
	case "low":
		return color.New(color.FgCyan)
	default:
		return color.New(color.FgWhite)
	}
}
