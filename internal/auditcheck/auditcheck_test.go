package auditcheck

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentsight/agentsight/internal/config"
)

func secureBaseline() *config.Config {
	return &config.Config{
		Version: "1",
		Server: config.ServerConfig{
			Port:     8080,
			Bind:     "127.0.0.1",
			LogLevel: "info",
		},
		Storage: config.StorageConfig{
			Driver:        "sqlite",
			Path:          "./agentsight.db",
			RetentionDays: 90,
		},
		Redis: config.RedisConfig{
			Enabled:        true,
			Addr:           "127.0.0.1:6379",
			NameTTLMinutes: 60,
		},
		Ingest: config.IngestConfig{
			WatchDir:     "./incoming",
			ArchiveDir:   "./archive",
			ScanOnImport: true,
		},
		CustomRulesDir: "./rules",
	}
}

// --- NET-001 ---

func TestCheckNetworkExposure_Exposed(t *testing.T) {
	for _, bind := range []string{"0.0.0.0", "::"} {
		cfg := secureBaseline()
		cfg.Server.Bind = bind
		findings := checkNetworkExposure(cfg, "")
		require.Len(t, findings, 1, "bind=%s", bind)
		assert.Equal(t, "NET-001", findings[0].CheckID)
		assert.Equal(t, Critical, findings[0].Severity)
	}
}

func TestCheckNetworkExposure_Localhost(t *testing.T) {
	cfg := secureBaseline()
	findings := checkNetworkExposure(cfg, "")
	assert.Empty(t, findings)
}

// --- AUTH-001 ---

func TestCheckAuthDisabled(t *testing.T) {
	cfg := secureBaseline()
	cfg.Server.DisableAuth = true
	findings := checkAuthDisabled(cfg, "")
	require.Len(t, findings, 1)
	assert.Equal(t, "AUTH-001", findings[0].CheckID)
	assert.Equal(t, Critical, findings[0].Severity)
}

func TestCheckAuthEnabled(t *testing.T) {
	cfg := secureBaseline()
	findings := checkAuthDisabled(cfg, "")
	assert.Empty(t, findings)
}

// --- NET-002 ---

func TestCheckRedisUnprotected_Remote(t *testing.T) {
	cfg := secureBaseline()
	cfg.Redis.Addr = "cache.internal:6379"
	findings := checkRedisUnprotected(cfg, "")
	require.Len(t, findings, 1)
	assert.Equal(t, "NET-002", findings[0].CheckID)
	assert.Equal(t, Medium, findings[0].Severity)
}

func TestCheckRedisUnprotected_Clean(t *testing.T) {
	// local addr without password
	cfg := secureBaseline()
	assert.Empty(t, checkRedisUnprotected(cfg, ""))

	// remote addr with password
	cfg = secureBaseline()
	cfg.Redis.Addr = "cache.internal:6379"
	cfg.Redis.Password = "s3cret"
	assert.Empty(t, checkRedisUnprotected(cfg, ""))

	// disabled entirely
	cfg = secureBaseline()
	cfg.Redis.Enabled = false
	cfg.Redis.Addr = "cache.internal:6379"
	assert.Empty(t, checkRedisUnprotected(cfg, ""))
}

// --- SCAN-001 ---

func TestCheckScanOnImportOff(t *testing.T) {
	cfg := secureBaseline()
	cfg.Ingest.ScanOnImport = false
	findings := checkScanOnImportOff(cfg, "")
	require.Len(t, findings, 1)
	assert.Equal(t, "SCAN-001", findings[0].CheckID)
	assert.Equal(t, High, findings[0].Severity)
}

func TestCheckScanOnImportOn(t *testing.T) {
	cfg := secureBaseline()
	findings := checkScanOnImportOff(cfg, "")
	assert.Empty(t, findings)
}

// --- SCAN-002 ---

func TestCheckNoCustomRules(t *testing.T) {
	cfg := secureBaseline()
	cfg.CustomRulesDir = ""
	findings := checkNoCustomRules(cfg, "")
	require.Len(t, findings, 1)
	assert.Equal(t, "SCAN-002", findings[0].CheckID)
	assert.Equal(t, Medium, findings[0].Severity)
}

func TestCheckCustomRulesConfigured(t *testing.T) {
	cfg := secureBaseline()
	findings := checkNoCustomRules(cfg, "")
	assert.Empty(t, findings)
}

// --- RET-001 ---

func TestCheckRetentionUnlimited(t *testing.T) {
	cfg := secureBaseline()
	cfg.Storage.RetentionDays = 0
	findings := checkRetentionUnlimited(cfg, "")
	require.Len(t, findings, 1)
	assert.Equal(t, "RET-001", findings[0].CheckID)
	assert.Equal(t, Medium, findings[0].Severity)
}

func TestCheckRetentionConfigured(t *testing.T) {
	cfg := secureBaseline()
	findings := checkRetentionUnlimited(cfg, "")
	assert.Empty(t, findings)
}

// --- RET-002 ---

func TestCheckNoArchiveDir(t *testing.T) {
	cfg := secureBaseline()
	cfg.Ingest.ArchiveDir = ""
	findings := checkNoArchiveDir(cfg, "")
	require.Len(t, findings, 1)
	assert.Equal(t, "RET-002", findings[0].CheckID)
	assert.Equal(t, Low, findings[0].Severity)
}

func TestCheckNoArchiveDir_NoWatcher(t *testing.T) {
	cfg := secureBaseline()
	cfg.Ingest.WatchDir = ""
	cfg.Ingest.ArchiveDir = ""
	findings := checkNoArchiveDir(cfg, "")
	assert.Empty(t, findings)
}

// --- ING-001 ---

func TestCheckWatchDirMissing(t *testing.T) {
	dir := t.TempDir()
	cfg := secureBaseline()
	cfg.Ingest.WatchDir = "./incoming"

	findings := checkWatchDirMissing(cfg, dir)
	require.Len(t, findings, 1)
	assert.Equal(t, "ING-001", findings[0].CheckID)
	assert.Equal(t, Low, findings[0].Severity)

	require.NoError(t, os.Mkdir(filepath.Join(dir, "incoming"), 0o755))
	assert.Empty(t, checkWatchDirMissing(cfg, dir))
}

func TestCheckWatchDirUnset(t *testing.T) {
	cfg := secureBaseline()
	cfg.Ingest.WatchDir = ""
	findings := checkWatchDirMissing(cfg, t.TempDir())
	assert.Empty(t, findings)
}

// --- DB-001 ---

func TestCheckStoreDatabase_Missing(t *testing.T) {
	cfg := secureBaseline()
	findings := checkStoreDatabase(cfg, t.TempDir())
	require.Len(t, findings, 1)
	assert.Equal(t, "DB-001", findings[0].CheckID)
	assert.Equal(t, Info, findings[0].Severity)
	assert.Contains(t, findings[0].Title, "not created")
}

func TestCheckStoreDatabase_Present(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "agentsight.db"), []byte("x"), 0o644))

	cfg := secureBaseline()
	findings := checkStoreDatabase(cfg, dir)
	require.Len(t, findings, 1)
	assert.Equal(t, Info, findings[0].Severity)
	assert.Contains(t, findings[0].Detail, "MB")
}

func TestCheckStoreDatabase_Postgres(t *testing.T) {
	cfg := secureBaseline()
	cfg.Storage.Driver = "postgres"
	cfg.Storage.DSN = "postgres://localhost/agentsight"
	findings := checkStoreDatabase(cfg, t.TempDir())
	assert.Empty(t, findings)
}

// --- RunChecks ---

func TestRunChecks_SecureConfig(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "incoming"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "agentsight.db"), []byte("x"), 0o644))

	cfg := secureBaseline()
	findings := RunChecks(cfg, dir)

	// only the informational DB-001 remains
	require.Len(t, findings, 1)
	assert.Equal(t, "DB-001", findings[0].CheckID)
	assert.Equal(t, filepath.Join(dir, "agentsight.yaml"), findings[0].ConfigPath)
}

func TestRunChecks_DefaultConfig(t *testing.T) {
	cfg := config.Defaults()
	findings := RunChecks(cfg, t.TempDir())

	ids := make(map[string]bool)
	for _, f := range findings {
		ids[f.CheckID] = true
	}
	// defaults keep sessions forever, ship no custom rules and have no
	// directories on disk yet
	for _, want := range []string{"RET-001", "SCAN-002", "ING-001", "DB-001"} {
		assert.True(t, ids[want], "expected finding %s, got %v", want, ids)
	}
	assert.False(t, ids["NET-001"], "default bind should not be exposed")
	assert.False(t, ids["AUTH-001"])
}

// --- scoring ---

func TestComputeHealthScore(t *testing.T) {
	score, grade := ComputeHealthScore(nil)
	assert.Equal(t, 100, score)
	assert.Equal(t, "A", grade)

	score, grade = ComputeHealthScore([]Finding{
		{Severity: Critical},
		{Severity: High},
	})
	assert.Equal(t, 60, score)
	assert.Equal(t, "C", grade)

	score, grade = ComputeHealthScore([]Finding{
		{Severity: Critical}, {Severity: Critical},
		{Severity: Critical}, {Severity: Critical},
		{Severity: High},
	})
	assert.Equal(t, 0, score)
	assert.Equal(t, "F", grade)
}

func TestSummarize(t *testing.T) {
	s := Summarize([]Finding{
		{Severity: Critical},
		{Severity: High},
		{Severity: High},
		{Severity: Medium},
		{Severity: Low},
		{Severity: Info},
	})
	assert.Equal(t, Summary{Critical: 1, High: 2, Medium: 1, Low: 1, Info: 1}, s)
}

func TestSeverityString(t *testing.T) {
	cases := map[Severity]string{
		Info:         "INFO",
		Low:          "LOW",
		Medium:       "MEDIUM",
		High:         "HIGH",
		Critical:     "CRITICAL",
		Severity(99): "UNKNOWN",
	}
	for sev, want := range cases {
		assert.Equal(t, want, sev.String())
	}
}
