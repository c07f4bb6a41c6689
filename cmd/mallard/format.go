package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// severityColor picks the color a finding's severity is printed in.
func severityColor(severity string) *color.Color {
	switch strings.ToLower(severity) {
	case "error":
		return color.New(color.FgRed, color.Bold)
	case "warning":
		return color.New(color.FgYellow)
	case "suggestion":
		return color.New(color.FgCyan)
	default:
		return color.New(color.Faint)
	}
}

// formatFindingsText prints findings as "file:line:col severity name: text".
func formatFindingsText(w io.Writer, findings []CLIFinding) {
	for _, f := range findings {
		where := f.File
		if where == "" {
			where = f.Module
		}
		fmt.Fprintf(w, "%s:%d:%d %s %s: %s\n",
			where, f.Line, f.Col,
			severityColor(f.Severity).Sprint(f.Severity),
			f.Inspection, f.Description)
	}
}

func formatLocationsText(w io.Writer, locs []CLILocation) {
	for _, loc := range locs {
		where := loc.File
		if where == "" {
			where = loc.Module
		}
		fmt.Fprintf(w, "%s:%d:%d\n", where, loc.StartLine, loc.StartCol)
	}
}

func formatDeclarationsText(w io.Writer, decls []CLIDeclaration) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tKIND\tACCESS\tLINE\tREFS")
	for _, d := range decls {
		refs := "-"
		if d.RefCount != nil {
			refs = fmt.Sprint(*d.RefCount)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\n",
			d.ID, d.QualifiedName, d.Kind, d.Accessibility, d.StartLine, refs)
	}
	tw.Flush()
}

func formatEditsText(w io.Writer, edits []CLIEdit) {
	for _, e := range edits {
		status := color.GreenString("written")
		if !e.Written {
			status = color.YellowString("dry-run")
		}
		fmt.Fprintf(w, "%s %s (%s)\n", status, e.Module, e.File)
		if e.Text != "" {
			fmt.Fprintln(w, strings.Repeat("-", 40))
			fmt.Fprint(w, e.Text)
			if !strings.HasSuffix(e.Text, "\n") {
				fmt.Fprintln(w)
			}
			fmt.Fprintln(w, strings.Repeat("-", 40))
		}
	}
}

func formatGraphText(w io.Writer, g CLIDependencyGraph) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "MODULE\tTYPE\tDECLARATIONS")
	for _, m := range g.Modules {
		fmt.Fprintf(tw, "%s\t%s\t%d\n", m.Name, m.ComponentType, m.Declarations)
	}
	tw.Flush()
	if len(g.Edges) > 0 {
		fmt.Fprintln(w)
		for _, e := range g.Edges {
			fmt.Fprintf(w, "%s -> %s (%d)\n", e.From, e.To, e.References)
		}
	}
}

func formatIndexStatsText(w io.Writer, s CLIIndexStats) {
	fmt.Fprintf(w, "Modules:  %d\n", s.Modules)
	fmt.Fprintf(w, "Written:  %d\n", s.Written)
	fmt.Fprintf(w, "Skipped:  %d\n", s.Skipped)
	fmt.Fprintf(w, "Removed:  %d\n", s.Removed)
	fmt.Fprintf(w, "Findings: %d\n", s.Findings)
}

// outputResultText dispatches to the text formatter for the result type.
func outputResultText(w io.Writer, result CLIResult) error {
	switch v := result.Results.(type) {
	case []CLIFinding:
		formatFindingsText(w, v)
	case []CLILocation:
		formatLocationsText(w, v)
	case []CLIDeclaration:
		formatDeclarationsText(w, v)
	case CLIDeclaration:
		formatDeclarationsText(w, []CLIDeclaration{v})
	case []CLIEdit:
		formatEditsText(w, v)
	case CLIDependencyGraph:
		formatGraphText(w, v)
	case [][]string:
		for _, cycle := range v {
			fmt.Fprintln(w, strings.Join(cycle, " -> "))
		}
	case CLIIndexStats:
		formatIndexStatsText(w, v)
	case nil:
	default:
		return fmt.Errorf("unsupported result type for text format: %T", v)
	}

	if result.TotalCount != nil {
		count := *result.TotalCount
		if shown := resultLen(result.Results); shown < count {
			fmt.Fprintf(w, "\nShowing %d of %d results\n", shown, count)
		}
	}
	return nil
}

// resultLen returns the length of a result slice, or 1 for a single value.
func resultLen(v any) int {
	switch r := v.(type) {
	case []CLIFinding:
		return len(r)
	case []CLILocation:
		return len(r)
	case []CLIDeclaration:
		return len(r)
	case []CLIEdit:
		return len(r)
	case [][]string:
		return len(r)
	case nil:
		return 0
	default:
		return 1
	}
}

// outputResult writes result to the command's stdout in the selected format.
func outputResult(cmd *cobra.Command, result CLIResult) error {
	if flagFormat == "text" {
		return outputResultText(cmd.OutOrStdout(), result)
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

// outputError writes an error in the selected format and returns it so RunE
// can propagate it to Cobra. In JSON mode the error is written to stdout as a
// CLIResult envelope. In text mode it goes to stderr.
func outputError(cmd *cobra.Command, command string, err error) error {
	errorHandled = true
	if flagFormat == "text" {
		fmt.Fprintf(cmd.ErrOrStderr(), "Error: %s\n", err)
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	_ = enc.Encode(CLIResult{Command: command, Error: err.Error()})
	return err
}

// validFormats lists accepted values for --format.
var validFormats = []string{"json", "text"}

// validateFormat checks that the --format flag value is recognized.
func validateFormat(format string) error {
	for _, f := range validFormats {
		if format == f {
			return nil
		}
	}
	return fmt.Errorf("invalid format %q: must be %s", format, strings.Join(validFormats, " or "))
}
