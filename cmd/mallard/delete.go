package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jward/mallard"
	"github.com/jward/mallard/internal/symbols"
)

var (
	flagTargets []string
	flagDryRun  bool
)

var deleteCmd = &cobra.Command{
	Use:   "delete [path] --target <name|id>...",
	Short: "Delete declarations from their modules",
	Long: `Deletes the given declarations with their attached annotations and
owned comments, keeping the surrounding layout intact. Targets are qualified
names (VBAProject.Module1.Helper), unique member names, or declaration IDs
(VBAProject.Module1#3). Every target is validated before any file changes.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runDelete,
}

func init() {
	deleteCmd.Flags().StringArrayVarP(&flagTargets, "target", "t", nil, "declaration to delete (repeatable)")
	deleteCmd.Flags().BoolVar(&flagDryRun, "dry-run", false, "print the rewritten modules without writing them")
	_ = deleteCmd.MarkFlagRequired("target")
}

func runDelete(cmd *cobra.Command, args []string) error {
	p, err := loadProject(args)
	if err != nil {
		return outputError(cmd, "delete", err)
	}
	e, err := openEngine(p)
	if err != nil {
		return outputError(cmd, "delete", err)
	}
	defer e.Close()

	ctx := cmd.Context()
	if err := analyze(ctx, e, p); err != nil {
		return outputError(cmd, "delete", err)
	}

	ids := make([]symbols.ID, 0, len(flagTargets))
	for _, t := range flagTargets {
		id, err := resolveTarget(e, t)
		if err != nil {
			return outputError(cmd, "delete", err)
		}
		ids = append(ids, id)
	}

	edits, err := e.DeleteDeclarations(ctx, ids)
	if err != nil {
		return outputError(cmd, "delete", err)
	}

	out := make([]CLIEdit, 0, len(edits))
	for _, ed := range edits {
		ce := CLIEdit{Module: ed.Module.String(), File: ed.Path}
		switch {
		case flagDryRun:
			ce.Text = ed.Text
		case ed.Path == "":
			return outputError(cmd, "delete", fmt.Errorf("module %s has no file", ed.Module))
		default:
			if err := writeModuleFile(ed.Path, ed.Text); err != nil {
				return outputError(cmd, "delete", err)
			}
			ce.Written = true
		}
		out = append(out, ce)
	}

	if !flagDryRun && len(edits) > 0 {
		if err := e.Resolve(ctx); err != nil {
			return outputError(cmd, "delete", fmt.Errorf("resolving: %w", err))
		}
		if _, err := e.Inspect(ctx); err != nil {
			return outputError(cmd, "delete", err)
		}
		if _, err := e.Persist(ctx); err != nil {
			return outputError(cmd, "delete", fmt.Errorf("persisting: %w", err))
		}
	}
	return outputResult(cmd, CLIResult{Command: "delete", Results: out})
}

// resolveTarget maps a --target value to a declaration ID.
func resolveTarget(e *mallard.Engine, target string) (symbols.ID, error) {
	if strings.Contains(target, "#") {
		return symbols.ParseID(target)
	}
	matches := e.DeclarationsNamed(target)
	var exact []*symbols.Declaration
	for _, d := range matches {
		if strings.EqualFold(d.QualifiedName, target) {
			exact = append(exact, d)
		}
	}
	if len(exact) == 1 {
		return exact[0].ID, nil
	}
	switch len(matches) {
	case 0:
		return symbols.ID{}, fmt.Errorf("no declaration named %q", target)
	case 1:
		return matches[0].ID, nil
	}
	names := make([]string, 0, len(matches))
	for _, d := range matches {
		names = append(names, d.QualifiedName+" ("+d.ID.String()+")")
	}
	return symbols.ID{}, fmt.Errorf("%q is ambiguous: %s", target, strings.Join(names, ", "))
}

// writeModuleFile replaces path's content, keeping its permissions.
func writeModuleFile(path, text string) error {
	mode := os.FileMode(0o644)
	if info, err := os.Stat(path); err == nil {
		mode = info.Mode().Perm()
	}
	if err := os.WriteFile(path, []byte(text), mode); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
