package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/agentsight/agentsight/internal/config"
	"github.com/agentsight/agentsight/internal/dashboard"
	"github.com/agentsight/agentsight/internal/engine"
	"github.com/agentsight/agentsight/internal/ingest"
	"github.com/agentsight/agentsight/internal/names"
	"github.com/agentsight/agentsight/internal/session"
	"github.com/agentsight/agentsight/internal/telemetry"
	"github.com/agentsight/agentsight/internal/timeline"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func newServeCmd() *cobra.Command {
	var port int
	var bind string
	var noAuth bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the agentsight dashboard server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				// Fall back to defaults if no config file
				cfg = config.Defaults()
			}

			if port != 0 {
				cfg.Server.Port = port
			}
			if bind != "" {
				cfg.Server.Bind = bind
			}
			if noAuth {
				cfg.Server.DisableAuth = true
			}

			if err := cfg.Validate(); err != nil {
				return err
			}

			level := slog.LevelInfo
			switch cfg.Server.LogLevel {
			case "debug":
				level = slog.LevelDebug
			case "warn":
				level = slog.LevelWarn
			case "error":
				level = slog.LevelError
			}

			logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

			// Graceful shutdown on SIGINT/SIGTERM
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if cfg.Telemetry.Enabled {
				shutdown, err := telemetry.InitTracer("agentsight", version, logger)
				if err != nil {
					return fmt.Errorf("initializing tracing: %w", err)
				}
				defer func() {
					flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					_ = shutdown(flushCtx)
				}()
			}

			store, err := session.Open(cfg.Storage.Driver, storageDSN(cfg), logger)
			if err != nil {
				return fmt.Errorf("opening session store: %w", err)
			}
			defer func() { _ = store.Close() }()

			if len(cfg.Agents) > 0 {
				if err := store.SaveAgents(cfg.Agents); err != nil {
					logger.Warn("seeding agent names", "error", err)
				}
			}

			resolver := buildResolver(cfg, store, logger)

			scanner := engine.NewScanner(cfg.CustomRulesDir)
			defer scanner.Close()

			var importerOpts []ingest.Option
			if cfg.Ingest.ScanOnImport {
				importerOpts = append(importerOpts, ingest.WithScanner(scanner))
			}
			if cfg.Ingest.ArchiveDir != "" {
				importerOpts = append(importerOpts, ingest.WithArchiveDir(cfg.Ingest.ArchiveDir))
			}
			importer := ingest.NewImporter(store, logger, importerOpts...)

			var dashOpts []dashboard.Option
			if cfg.Server.DisableAuth {
				dashOpts = append(dashOpts, dashboard.WithoutAuth())
			}
			srv := dashboard.NewServer(store, importer, scanner, resolver, version, logger, dashOpts...)

			var handler http.Handler = srv.Handler()
			if cfg.Telemetry.Enabled {
				handler = otelhttp.NewHandler(handler, "dashboard")
			}

			if cfg.Ingest.WatchDir != "" {
				startWatcher(ctx, cfg.Ingest.WatchDir, importer, logger)
			}
			if cfg.Storage.RetentionDays > 0 {
				go retentionLoop(ctx, store, cfg.Storage.RetentionDays, logger)
			}

			bindAddr := cfg.Server.Bind
			if bindAddr == "" {
				bindAddr = "127.0.0.1"
			}
			httpSrv := &http.Server{
				Addr:              fmt.Sprintf("%s:%d", bindAddr, cfg.Server.Port),
				Handler:           handler,
				ReadHeaderTimeout: 10 * time.Second,
			}

			// Print startup banner with API access code
			printBanner(cfg, srv.AccessCode())

			errCh := make(chan error, 1)
			go func() {
				err := httpSrv.ListenAndServe()
				if err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
					return
				}
				errCh <- nil
			}()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				return httpSrv.Shutdown(shutdownCtx)
			}
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "override server port")
	cmd.Flags().StringVar(&bind, "bind", "", "address to bind (default: 127.0.0.1)")
	cmd.Flags().BoolVar(&noAuth, "no-auth", false, "serve the API without the access code (local dev only)")
	return cmd
}

// storageDSN picks the store DSN for the configured driver. SQLite takes
// the database file path.
func storageDSN(cfg *config.Config) string {
	if cfg.Storage.Driver == "postgres" {
		return cfg.Storage.DSN
	}
	return cfg.Storage.Path
}

// buildResolver wires display-name resolution: the store-backed resolver,
// wrapped in the Redis cache when one is configured.
func buildResolver(cfg *config.Config, store session.Store, logger *slog.Logger) timeline.NameResolver {
	resolver := names.NewStoreResolver(store, logger)
	if !cfg.Redis.Enabled {
		return resolver
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	ttl := time.Duration(cfg.Redis.NameTTLMinutes) * time.Minute
	return names.NewRedisCache(client, resolver, ttl, logger)
}

// startWatcher imports snapshots already sitting in the drop directory,
// then watches it for new ones until ctx is cancelled.
func startWatcher(ctx context.Context, dir string, importer *ingest.Importer, logger *slog.Logger) {
	handle := func(path string) {
		if _, err := importer.ImportFile(ctx, path, "watch"); err != nil {
			logger.Error("importing snapshot", "path", path, "error", err)
		}
	}

	if err := ingest.ScanExisting(dir, handle); err != nil {
		logger.Warn("scanning watch dir", "dir", dir, "error", err)
	}

	w := ingest.NewWatcher(dir, handle, logger)
	go func() {
		if err := w.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error("watcher stopped", "error", err)
		}
	}()
}

// retentionLoop purges sessions older than the retention window, once at
// startup and then hourly.
func retentionLoop(ctx context.Context, store session.Store, days int, logger *slog.Logger) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		purged, err := store.Purge(time.Now().UTC().AddDate(0, 0, -days))
		if err != nil {
			logger.Error("purging expired sessions", "error", err)
		} else if purged > 0 {
			logger.Info("purged expired sessions", "count", purged, "retention_days", days)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func printBanner(cfg *config.Config, accessCode string) {
	bindAddr := cfg.Server.Bind
	if bindAddr == "" {
		bindAddr = "127.0.0.1"
	}

	fmt.Println()
	fmt.Println("  agentsight")
	fmt.Println("  ────────────────────────────────────────")
	fmt.Printf("  API:        http://%s:%d/api/sessions\n", bindAddr, cfg.Server.Port)
	fmt.Printf("  Health:     http://%s:%d/healthz\n", bindAddr, cfg.Server.Port)
	fmt.Printf("  Metrics:    http://%s:%d/metrics\n", bindAddr, cfg.Server.Port)
	fmt.Println("  ────────────────────────────────────────")
	if accessCode == "" {
		fmt.Println("  Auth:         disabled")
	} else {
		fmt.Printf("  Access code:  %s\n", accessCode)
	}
	fmt.Println("  ────────────────────────────────────────")
	fmt.Printf("  Store: %s  |  Agents: %d\n", cfg.Storage.Driver, len(cfg.Agents))
	if cfg.Ingest.WatchDir != "" {
		fmt.Printf("  Watching: %s\n", cfg.Ingest.WatchDir)
	}
	fmt.Println()
	if accessCode != "" {
		fmt.Println("  POST the access code to /api/login to get a token.")
	}
	fmt.Println("  Press Ctrl+C to stop.")
	fmt.Println()
}
