package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/agentsight/agentsight/internal/engine"
	"github.com/agentsight/agentsight/internal/ingest"
	"github.com/spf13/cobra"
)

func newImportCmd() *cobra.Command {
	var noScan bool

	cmd := &cobra.Command{
		Use:   "import <file|dir>...",
		Short: "Import session snapshot files",
		Long:  "Imports one or more snapshot files into the session store. Directory arguments import every .json snapshot inside them.",
		Example: `  agentsight import session.json
  agentsight import ./incoming
  agentsight import a.json b.json --no-scan`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfigOrDefaults()
			logger := errLogger()

			store, err := openStore(logger)
			if err != nil {
				return fmt.Errorf("opening session store: %w", err)
			}
			defer func() { _ = store.Close() }()

			var opts []ingest.Option
			if cfg.Ingest.ScanOnImport && !noScan {
				scanner := engine.NewScanner(cfg.CustomRulesDir)
				defer scanner.Close()
				opts = append(opts, ingest.WithScanner(scanner))
			}
			importer := ingest.NewImporter(store, logger, opts...)

			importOne := func(path string) error {
				rec, err := importer.ImportFile(cmd.Context(), path, "cli")
				if err != nil {
					return err
				}
				fmt.Printf("  %s  %d messages, %d detections  (%s)\n",
					rec.ID, rec.MessageCount, rec.DetectionCount, filepath.Base(path))
				return nil
			}

			var imported, failed int
			for _, arg := range args {
				info, err := os.Stat(arg)
				if err != nil {
					return err
				}

				if !info.IsDir() {
					if err := importOne(arg); err != nil {
						return fmt.Errorf("importing %s: %w", arg, err)
					}
					imported++
					continue
				}

				if err := ingest.ScanExisting(arg, func(path string) {
					if err := importOne(path); err != nil {
						fmt.Fprintf(os.Stderr, "  skip %s: %v\n", filepath.Base(path), err)
						failed++
						return
					}
					imported++
				}); err != nil {
					return err
				}
			}

			fmt.Printf("\nImported %d session(s).\n", imported)
			if failed > 0 {
				return fmt.Errorf("%d snapshot(s) failed to import", failed)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&noScan, "no-scan", false, "skip detection scanning on import")
	return cmd
}
