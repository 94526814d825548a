package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/agentsight/agentsight/internal/auditcheck"
	"github.com/agentsight/agentsight/internal/config"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func newCheckCmd() *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check deployment security configuration",
		Long:  "Analyzes the agentsight configuration file and filesystem state, producing a security report with actionable findings.",
		Example: `  agentsight check
  agentsight check --json
  agentsight check --config /path/to/agentsight.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			configDir := filepath.Dir(cfgFile)
			if configDir == "." {
				if wd, err := os.Getwd(); err == nil {
					configDir = wd
				}
			}

			findings := auditcheck.RunChecks(cfg, configDir)
			score, grade := auditcheck.ComputeHealthScore(findings)
			summary := auditcheck.Summarize(findings)

			if jsonOut {
				return printCheckJSON(cfgFile, findings, score, grade, summary)
			}
			printCheckTerminal(cfgFile, findings, score, grade, summary)

			if summary.Critical > 0 || summary.High > 0 {
				os.Exit(1)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "output as JSON")
	return cmd
}

func printCheckTerminal(configPath string, findings []auditcheck.Finding, score int, grade string, sum auditcheck.Summary) {
	fmt.Println()
	fmt.Println("  agentsight check")
	fmt.Println("  ────────────────────────────────────────")
	fmt.Printf("  Config:  %s\n", configPath)
	fmt.Printf("  Health:  %d/100 (%s)\n", score, gradeColor(grade).Sprint(grade))
	fmt.Println()

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "  SEVERITY\tCHECK\tTITLE\n") //nolint:errcheck // CLI output
	for _, f := range findings {
		fmt.Fprintf(tw, "  %s\t%s\t%s\n", f.Severity, f.CheckID, f.Title) //nolint:errcheck // CLI output
	}
	_ = tw.Flush()

	printed := false
	for _, f := range findings {
		if f.Remediation == "" {
			continue
		}
		if !printed {
			fmt.Println()
			printed = true
		}
		fmt.Printf("  [%s] %s\n", f.CheckID, f.Detail)
		fmt.Printf("         fix: %s\n", f.Remediation)
	}

	fmt.Println()
	fmt.Println("  ────────────────────────────────────────")
	fmt.Printf("  Findings: %d critical, %d high, %d medium, %d low, %d info\n",
		sum.Critical, sum.High, sum.Medium, sum.Low, sum.Info)
	fmt.Println()
}

func printCheckJSON(configPath string, findings []auditcheck.Finding, score int, grade string, sum auditcheck.Summary) error {
	type jsonFinding struct {
		Severity    string `json:"severity"`
		CheckID     string `json:"check_id"`
		Title       string `json:"title"`
		Detail      string `json:"detail"`
		ConfigPath  string `json:"config_path,omitempty"`
		Remediation string `json:"remediation,omitempty"`
	}
	report := struct {
		ConfigPath string             `json:"config_path"`
		Score      int                `json:"score"`
		Grade      string             `json:"grade"`
		Findings   []jsonFinding      `json:"findings"`
		Summary    auditcheck.Summary `json:"summary"`
	}{
		ConfigPath: configPath,
		Score:      score,
		Grade:      grade,
		Findings:   []jsonFinding{},
		Summary:    sum,
	}

	for _, f := range findings {
		report.Findings = append(report.Findings, jsonFinding{
			Severity:    f.Severity.String(),
			CheckID:     f.CheckID,
			Title:       f.Title,
			Detail:      f.Detail,
			ConfigPath:  f.ConfigPath,
			Remediation: f.Remediation,
		})
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

func gradeColor(grade string) *color.Color {
	switch grade {
	case "A", "B":
		return color.New(color.FgGreen)
	case "C":
		return color.New(color.FgYellow)
	default:
		return color.New(color.FgRed, color.Bold)
	}
}
