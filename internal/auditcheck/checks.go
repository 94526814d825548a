package auditcheck

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/agentsight/agentsight/internal/config"
)

func checkNetworkExposure(cfg *config.Config, _ string) []Finding {
	bind := cfg.Server.Bind
	if bind == "0.0.0.0" || bind == "::" {
		return []Finding{{
			Severity:    Critical,
			CheckID:     "NET-001",
			Title:       "Dashboard exposed to all network interfaces",
			Detail:      fmt.Sprintf("server.bind is %q — any host on the network can read session transcripts. Set server.bind: 127.0.0.1.", bind),
			Remediation: `Set server.bind: "127.0.0.1"`,
		}}
	}
	return nil
}

func checkAuthDisabled(cfg *config.Config, _ string) []Finding {
	if cfg.Server.DisableAuth {
		return []Finding{{
			Severity:    Critical,
			CheckID:     "AUTH-001",
			Title:       "API authentication disabled",
			Detail:      "disable_auth is true — anyone who can reach the port can list, read and delete sessions. Remove server.disable_auth.",
			Remediation: "Remove server.disable_auth",
		}}
	}
	return nil
}

func checkRedisUnprotected(cfg *config.Config, _ string) []Finding {
	if !cfg.Redis.Enabled || cfg.Redis.Password != "" {
		return nil
	}
	host := cfg.Redis.Addr
	if i := strings.LastIndex(host, ":"); i >= 0 {
		host = host[:i]
	}
	switch host {
	case "", "127.0.0.1", "localhost", "::1", "[::1]":
		return nil
	}
	return []Finding{{
		Severity:    Medium,
		CheckID:     "NET-002",
		Title:       "Remote Redis cache has no password",
		Detail:      fmt.Sprintf("redis.addr %q is not local and redis.password is empty. Agent display names can be read or poisoned by anyone who can reach it.", cfg.Redis.Addr),
		Remediation: "Set redis.password",
	}}
}

func checkScanOnImportOff(cfg *config.Config, _ string) []Finding {
	if !cfg.Ingest.ScanOnImport {
		return []Finding{{
			Severity:    High,
			CheckID:     "SCAN-001",
			Title:       "Imported snapshots are not scanned",
			Detail:      "scan_on_import is false — sessions only show the detections their producer shipped, and timelines carry no scanner violations. Set ingest.scan_on_import: true.",
			Remediation: "Set ingest.scan_on_import: true",
		}}
	}
	return nil
}

func checkNoCustomRules(cfg *config.Config, _ string) []Finding {
	if cfg.CustomRulesDir == "" {
		return []Finding{{
			Severity:    Medium,
			CheckID:     "SCAN-002",
			Title:       "No custom rules directory",
			Detail:      "Only default Aguara rules are applied. Set custom_rules_dir for environment-specific detections.",
			Remediation: "Set custom_rules_dir: ./custom-rules",
		}}
	}
	return nil
}

func checkRetentionUnlimited(cfg *config.Config, _ string) []Finding {
	if cfg.Storage.RetentionDays == 0 {
		return []Finding{{
			Severity:    Medium,
			CheckID:     "RET-001",
			Title:       "Session retention is unlimited",
			Detail:      "storage.retention_days is 0 — imported transcripts accumulate forever. Set storage.retention_days.",
			Remediation: "Set storage.retention_days: 90",
		}}
	}
	return nil
}

func checkNoArchiveDir(cfg *config.Config, _ string) []Finding {
	if cfg.Ingest.WatchDir != "" && cfg.Ingest.ArchiveDir == "" {
		return []Finding{{
			Severity:    Low,
			CheckID:     "RET-002",
			Title:       "Imported snapshots are not archived",
			Detail:      "Processed files stay in watch_dir and are re-imported on every restart. Set ingest.archive_dir.",
			Remediation: "Set ingest.archive_dir: ./archive",
		}}
	}
	return nil
}

func checkWatchDirMissing(cfg *config.Config, configDir string) []Finding {
	dir := cfg.Ingest.WatchDir
	if dir == "" {
		return nil
	}
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(configDir, dir)
	}
	if _, err := os.Stat(dir); err != nil {
		return []Finding{{
			Severity:    Low,
			CheckID:     "ING-001",
			Title:       "Watch directory does not exist",
			Detail:      fmt.Sprintf("ingest.watch_dir %q is missing — the snapshot watcher will fail to start.", cfg.Ingest.WatchDir),
			Remediation: fmt.Sprintf("mkdir -p %s", dir),
		}}
	}
	return nil
}

func checkStoreDatabase(cfg *config.Config, configDir string) []Finding {
	if cfg.Storage.Driver != "" && cfg.Storage.Driver != "sqlite" {
		return nil
	}
	dbPath := cfg.Storage.Path
	if dbPath == "" {
		dbPath = "agentsight.db"
	}
	if !filepath.IsAbs(dbPath) {
		dbPath = filepath.Join(configDir, dbPath)
	}

	info, err := os.Stat(dbPath)
	if err != nil {
		return []Finding{{
			Severity: Info,
			CheckID:  "DB-001",
			Title:    "Session store not created yet",
			Detail:   fmt.Sprintf("No database at %s — the server has not run yet or uses a different path.", dbPath),
		}}
	}
	sizeMB := float64(info.Size()) / (1024 * 1024)
	return []Finding{{
		Severity: Info,
		CheckID:  "DB-001",
		Title:    "Session store present",
		Detail:   fmt.Sprintf("%s exists (%.1f MB).", filepath.Base(dbPath), sizeMB),
	}}
}
