// Package auditcheck runs configuration self-audit checks against an
// agentsight deployment. Both the check command and the dashboard
// import this package.
package auditcheck

import (
	"path/filepath"

	"github.com/agentsight/agentsight/internal/config"
)

// Severity represents the severity of an audit finding.
type Severity int

const (
	Info Severity = iota
	Low
	Medium
	High
	Critical
)

func (s Severity) String() string {
	switch s {
	case Info:
		return "INFO"
	case Low:
		return "LOW"
	case Medium:
		return "MEDIUM"
	case High:
		return "HIGH"
	case Critical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// Finding is a single issue found during the audit.
type Finding struct {
	Severity    Severity `json:"severity"`
	CheckID     string   `json:"check_id"`
	Title       string   `json:"title"`
	Detail      string   `json:"detail"`
	ConfigPath  string   `json:"config_path,omitempty"`
	Remediation string   `json:"remediation,omitempty"`
}

// Summary holds aggregate counts by severity level.
type Summary struct {
	Critical int `json:"critical"`
	High     int `json:"high"`
	Medium   int `json:"medium"`
	Low      int `json:"low"`
	Info     int `json:"info"`
}

type checkFunc func(*config.Config, string) []Finding

// RunChecks executes all audit checks against the given config.
// configDir anchors relative paths from the config file.
func RunChecks(cfg *config.Config, configDir string) []Finding {
	checks := []checkFunc{
		checkNetworkExposure,
		checkAuthDisabled,
		checkRedisUnprotected,
		checkScanOnImportOff,
		checkNoCustomRules,
		checkRetentionUnlimited,
		checkNoArchiveDir,
		checkWatchDirMissing,
		checkStoreDatabase,
	}

	var findings []Finding
	for _, check := range checks {
		findings = append(findings, check(cfg, configDir)...)
	}

	configPath := filepath.Join(configDir, "agentsight.yaml")
	for i := range findings {
		if findings[i].ConfigPath == "" {
			findings[i].ConfigPath = configPath
		}
	}

	return findings
}

// ComputeHealthScore calculates a 0-100 score from audit findings.
// Penalties: critical=-25, high=-15, medium=-5, low=-2, info=0.
func ComputeHealthScore(findings []Finding) (int, string) {
	score := 100
	for _, f := range findings {
		switch f.Severity {
		case Critical:
			score -= 25
		case High:
			score -= 15
		case Medium:
			score -= 5
		case Low:
			score -= 2
		}
	}
	if score < 0 {
		score = 0
	}

	var grade string
	switch {
	case score >= 90:
		grade = "A"
	case score >= 75:
		grade = "B"
	case score >= 60:
		grade = "C"
	case score >= 40:
		grade = "D"
	default:
		grade = "F"
	}
	return score, grade
}

// Summarize returns aggregate severity counts for a slice of findings.
func Summarize(findings []Finding) Summary {
	var s Summary
	for _, f := range findings {
		switch f.Severity {
		case Critical:
			s.Critical++
		case High:
			s.High++
		case Medium:
			s.Medium++
		case Low:
			s.Low++
		case Info:
			s.Info++
		}
	}
	return s
}
