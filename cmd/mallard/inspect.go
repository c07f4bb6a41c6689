package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jward/mallard"
	"github.com/jward/mallard/internal/inspection"
)

var (
	flagMinSeverity string
	flagFailOn      string
	flagPersist     bool
)

var inspectCmd = &cobra.Command{
	Use:   "inspect [path]",
	Short: "Run inspections and print findings",
	Long:  "Parses and resolves the project, runs the built-in and scripted inspections, and prints the findings ordered by module and position.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runInspect,
}

func init() {
	inspectCmd.Flags().StringVar(&flagMinSeverity, "min-severity", "Hint", "hide findings below this severity")
	inspectCmd.Flags().StringVar(&flagFailOn, "fail-on", "", "exit non-zero when a finding has at least this severity")
	inspectCmd.Flags().BoolVar(&flagPersist, "persist", false, "also write the snapshot to the database")
}

func runInspect(cmd *cobra.Command, args []string) error {
	minSeverity, err := inspection.ParseSeverity(flagMinSeverity)
	if err != nil {
		return outputError(cmd, "inspect", err)
	}
	var failOn *inspection.Severity
	if flagFailOn != "" {
		s, err := inspection.ParseSeverity(flagFailOn)
		if err != nil {
			return outputError(cmd, "inspect", err)
		}
		failOn = &s
	}

	p, err := loadProject(args)
	if err != nil {
		return outputError(cmd, "inspect", err)
	}
	e, err := openEngine(p)
	if err != nil {
		return outputError(cmd, "inspect", err)
	}
	defer e.Close()

	ctx := cmd.Context()
	if err := analyze(ctx, e, p); err != nil {
		return outputError(cmd, "inspect", err)
	}
	results, err := e.Inspect(ctx)
	if err != nil {
		return outputError(cmd, "inspect", err)
	}
	if flagPersist {
		if _, err := e.Persist(ctx); err != nil {
			return outputError(cmd, "inspect", fmt.Errorf("persisting: %w", err))
		}
	}

	findings, failing := findingsToCLI(e, results, minSeverity, failOn)
	if err := outputResult(cmd, CLIResult{Command: "inspect", Results: findings}); err != nil {
		return err
	}
	if failing > 0 {
		return fmt.Errorf("%d finding(s) at or above %s", failing, *failOn)
	}
	return nil
}

// findingsToCLI converts results at or above minSeverity, counting those at or
// above failOn.
func findingsToCLI(e *mallard.Engine, results []inspection.Result, minSeverity inspection.Severity, failOn *inspection.Severity) ([]CLIFinding, int) {
	findings := []CLIFinding{}
	failing := 0
	for _, r := range results {
		if r.Severity < minSeverity {
			continue
		}
		if failOn != nil && r.Severity >= *failOn {
			failing++
		}
		f := CLIFinding{
			Inspection:  r.Inspection,
			Severity:    r.Severity.String(),
			Description: r.Description,
			Module:      r.Module.String(),
			Line:        r.Line,
			Col:         r.Col,
		}
		if path, ok := e.ModulePath(r.Module); ok {
			f.File = path
		}
		if !r.Target.IsZero() {
			f.Target = r.Target.String()
		}
		findings = append(findings, f)
	}
	return findings, failing
}
