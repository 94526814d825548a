package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/agentsight/agentsight/internal/engine"
	"github.com/agentsight/agentsight/internal/safefile"
	"github.com/agentsight/agentsight/internal/timeline"
	"github.com/spf13/cobra"
)

// scanItem is one scanned unit of a snapshot: a chat message or an
// agent response.
type scanItem struct {
	Ref      string                  `json:"ref"`
	Verdict  engine.ScanVerdict      `json:"verdict"`
	Findings []engine.FindingSummary `json:"findings,omitempty"`
}

type scanReport struct {
	File     string             `json:"file"`
	Verdict  engine.ScanVerdict `json:"verdict"`
	Scanned  int                `json:"scanned"`
	Findings int                `json:"findings"`
	Items    []scanItem         `json:"items,omitempty"`
}

func newScanCmd() *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "scan <file>",
		Short: "Scan a snapshot or text file for detections",
		Long:  "Parses the file as a session snapshot and scans each message and response through the detection rules. Files that are not snapshots are scanned as raw content.",
		Example: `  agentsight scan session.json
  agentsight scan prompt.txt
  agentsight scan session.json --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfigOrDefaults()

			scanner := engine.NewScanner(cfg.CustomRulesDir)
			defer scanner.Close()

			data, err := safefile.ReadFileMax(args[0], maxSnapshotBytes)
			if err != nil {
				return fmt.Errorf("reading %s: %w", args[0], err)
			}

			ctx := cmd.Context()

			var t timeline.Transcript
			if err := json.Unmarshal(data, &t); err == nil && (len(t.ChatMessages) > 0 || len(t.AgentResponses) > 0) {
				report, err := scanTranscript(ctx, scanner, &t, args[0])
				if err != nil {
					return err
				}
				return printScanReport(report, jsonOut)
			}

			outcome, err := scanner.ScanContent(ctx, string(data))
			if err != nil {
				return fmt.Errorf("scanning %s: %w", args[0], err)
			}
			report := &scanReport{
				File:     args[0],
				Verdict:  outcome.Verdict,
				Scanned:  1,
				Findings: len(outcome.Findings),
			}
			if len(outcome.Findings) > 0 {
				report.Items = []scanItem{{Ref: "content", Verdict: outcome.Verdict, Findings: outcome.Findings}}
			}
			return printScanReport(report, jsonOut)
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "output as JSON")
	return cmd
}

func scanTranscript(ctx context.Context, scanner *engine.Scanner, t *timeline.Transcript, file string) (*scanReport, error) {
	report := &scanReport{File: file, Verdict: engine.VerdictClean}

	scanOne := func(ref, content string) error {
		outcome, err := scanner.ScanContent(ctx, content)
		if err != nil {
			return fmt.Errorf("scanning %s: %w", ref, err)
		}
		report.Scanned++
		report.Findings += len(outcome.Findings)
		report.Verdict = worstVerdict(report.Verdict, outcome.Verdict)
		if len(outcome.Findings) > 0 {
			report.Items = append(report.Items, scanItem{Ref: ref, Verdict: outcome.Verdict, Findings: outcome.Findings})
		}
		return nil
	}

	for i, m := range t.ChatMessages {
		ref := fmt.Sprintf("message %s (%s)", orIndex(m.MessageID, i), m.Role)
		if err := scanOne(ref, m.Content); err != nil {
			return nil, err
		}
	}
	for i, r := range t.AgentResponses {
		ref := fmt.Sprintf("response %s (%s)", orIndex(r.ResponseID, i), r.AgentID)
		if err := scanOne(ref, r.Response); err != nil {
			return nil, err
		}
	}
	return report, nil
}

func printScanReport(report *scanReport, jsonOut bool) error {
	if jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	fmt.Printf("Scanning %s\n\n", report.File)

	for _, item := range report.Items {
		fmt.Printf("  %s  %d finding(s)\n", item.Ref, len(item.Findings))
		for _, f := range item.Findings {
			sev := severityColor(f.Severity).Sprintf("%-10s", strings.ToUpper(f.Severity))
			fmt.Printf("    %-12s %s %s\n", f.RuleID, sev, f.Name)
		}
		fmt.Println()
	}

	fmt.Println(strings.Repeat("─", 60))
	fmt.Printf("\nSummary:\n")
	fmt.Printf("  Items scanned:  %d\n", report.Scanned)
	fmt.Printf("  Findings:       %d\n", report.Findings)
	fmt.Printf("  Verdict:        %s\n", report.Verdict)

	if report.Verdict != engine.VerdictClean {
		fmt.Println("\n  Import this snapshot to attach the findings to its timeline.")
	}
	return nil
}

// worstVerdict keeps the more severe of two scan verdicts.
func worstVerdict(a, b engine.ScanVerdict) engine.ScanVerdict {
	if verdictRank(b) > verdictRank(a) {
		return b
	}
	return a
}

func verdictRank(v engine.ScanVerdict) int {
	switch v {
	case engine.VerdictBlock:
		return 3
	case engine.VerdictQuarantine:
		return 2
	case engine.VerdictFlag:
		return 1
	default:
		return 0
	}
}

func orIndex(id string, i int) string {
	if id != "" {
		return id
	}
	return fmt.Sprintf("#%d", i+1)
}
