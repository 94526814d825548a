package engine

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/garagon/aguara"

	"github.com/agentsight/agentsight/internal/timeline"
	"github.com/agentsight/agentsight/rules"
)

// ScanVerdict summarizes the worst finding of a scan.
type ScanVerdict string

const (
	VerdictClean      ScanVerdict = "clean"
	VerdictBlock      ScanVerdict = "block"
	VerdictQuarantine ScanVerdict = "quarantine"
	VerdictFlag       ScanVerdict = "flag"
)

// ScanOutcome holds the result of content scanning.
type ScanOutcome struct {
	Verdict  ScanVerdict      `json:"verdict"`
	Findings []FindingSummary `json:"findings,omitempty"`
}

// FindingSummary is a simplified finding for display and API responses.
type FindingSummary struct {
	RuleID   string `json:"rule_id"`
	Name     string `json:"name"`
	Severity string `json:"severity"`
	Match    string `json:"match,omitempty"`
}

// detectionTypes maps built-in transcript rules to the detection type
// recorded on synthesized findings. Rules outside this table (Aguara
// built-ins, custom rules) fall back to policy_violation.
var detectionTypes = map[string]string{
	"TRS-001": "prompt_injection",
	"TRS-002": "jailbreak",
	"TRS-003": "secrets",
	"TRS-004": "pii_leak",
	"TRS-005": "data_exfiltration",
	"TRS-006": "privilege_escalation",
}

// Scanner wraps the Aguara engine for in-process transcript scanning.
type Scanner struct {
	opts    []aguara.Option
	tempDir string // temp dir for embedded transcript rules
}

// NewScanner creates a scanner with the embedded transcript rules + Aguara's
// built-in rules. If customRulesDir is non-empty, rules from that directory
// are also loaded.
func NewScanner(customRulesDir string, extraOpts ...aguara.Option) *Scanner {
	s := &Scanner{}

	// Extract embedded rules to a temp directory
	dir, err := ExtractRulesDir()
	if err == nil && dir != "" {
		s.tempDir = dir
		s.opts = append(s.opts, aguara.WithCustomRules(dir))
	}

	if customRulesDir != "" {
		s.opts = append(s.opts, aguara.WithCustomRules(customRulesDir))
	}

	s.opts = append(s.opts, extraOpts...)
	return s
}

// ScanContent scans conversation content and returns a verdict.
func (s *Scanner) ScanContent(ctx context.Context, content string) (*ScanOutcome, error) {
	return s.ScanContentAs(ctx, content, "message.md")
}

// ScanContentAs scans content under a specific filename so file-targeted
// rules apply.
func (s *Scanner) ScanContentAs(ctx context.Context, content, filename string) (*ScanOutcome, error) {
	result, err := aguara.ScanContent(ctx, content, filename, s.opts...)
	if err != nil {
		return nil, fmt.Errorf("aguara scan: %w", err)
	}

	outcome := &ScanOutcome{
		Verdict: VerdictClean,
	}

	for _, f := range result.Findings {
		summary := FindingSummary{
			RuleID:   f.RuleID,
			Name:     f.RuleName,
			Severity: f.Severity.String(),
			Match:    truncate(f.MatchedText, 200),
		}
		outcome.Findings = append(outcome.Findings, summary)

		// Escalate verdict based on severity
		switch {
		case f.Severity >= aguara.SeverityCritical && outcome.Verdict != VerdictBlock:
			outcome.Verdict = VerdictBlock
		case f.Severity >= aguara.SeverityHigh && outcome.Verdict == VerdictClean:
			outcome.Verdict = VerdictQuarantine
		case f.Severity >= aguara.SeverityMedium && outcome.Verdict == VerdictClean:
			outcome.Verdict = VerdictFlag
		}
	}

	return outcome, nil
}

// ScanMessage scans one transcript message and maps findings to detections.
// Identifier linkage (message id, index) is the caller's job; the scanner
// only knows content.
func (s *Scanner) ScanMessage(ctx context.Context, content string) ([]timeline.Detection, error) {
	result, err := aguara.ScanContent(ctx, content, "message.md", s.opts...)
	if err != nil {
		return nil, fmt.Errorf("aguara scan: %w", err)
	}

	var detections []timeline.Detection
	for _, f := range result.Findings {
		detections = append(detections, timeline.Detection{
			Severity:      strings.ToLower(f.Severity.String()),
			DetectionType: detectionType(f.RuleID),
			Context:       f.RuleName,
			Matches:       []string{truncate(f.MatchedText, 200)},
		})
	}
	return detections, nil
}

// Close cleans up temporary files.
func (s *Scanner) Close() {
	if s.tempDir != "" {
		_ = os.RemoveAll(s.tempDir) //nolint:errcheck // best-effort cleanup
	}
}

// RulesCount returns the total number of loaded rules.
func (s *Scanner) RulesCount(ctx context.Context) int {
	result, err := aguara.ScanContent(ctx, "test", "test.md", s.opts...)
	if err != nil {
		return 0
	}
	return result.RulesLoaded
}

// ListRules returns metadata for all loaded rules (built-in + custom).
func (s *Scanner) ListRules() []aguara.RuleInfo {
	return aguara.ListRules(s.opts...)
}

// ExplainRule returns detailed information about a specific rule by ID.
func (s *Scanner) ExplainRule(id string) (*aguara.RuleDetail, error) {
	return aguara.ExplainRule(id, s.opts...)
}

// ExtractRulesDir writes the embedded rule YAMLs to a temp directory and
// returns its path. The caller removes it when done.
func ExtractRulesDir() (string, error) {
	dir, err := os.MkdirTemp("", "agentsight-rules-*")
	if err != nil {
		return "", err
	}

	embedded := rules.FS()
	err = fs.WalkDir(embedded, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		ext := filepath.Ext(path)
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}
		data, err := fs.ReadFile(embedded, path)
		if err != nil {
			return err
		}
		return os.WriteFile(filepath.Join(dir, filepath.Base(path)), data, 0o644)
	})
	if err != nil {
		_ = os.RemoveAll(dir) //nolint:errcheck // best-effort cleanup
		return "", err
	}
	return dir, nil
}

func detectionType(ruleID string) string {
	if t, ok := detectionTypes[ruleID]; ok {
		return t
	}
	return "policy_violation"
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
