package runtime

import (
	"context"
	"fmt"
	"io/fs"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/jward/mallard/internal/inspection"
)

// ScriptInspection is an inspection implemented by a Risor script. The
// script reads the snapshot through the declarations, references_to and
// statement_count globals and emits findings with report.
type ScriptInspection struct {
	rt       *Runtime
	name     string
	path     string
	severity inspection.Severity
}

// NewScriptInspection returns the inspection running the script at path.
func NewScriptInspection(rt *Runtime, name, path string) *ScriptInspection {
	return &ScriptInspection{rt: rt, name: name, path: path, severity: inspection.Suggestion}
}

func (s *ScriptInspection) Name() string                        { return s.name }
func (s *ScriptInspection) Severity() inspection.Severity       { return s.severity }
func (s *ScriptInspection) SetSeverity(sev inspection.Severity) { s.severity = sev }

// Inspect implements inspection.Inspection.
func (s *ScriptInspection) Inspect(ctx context.Context, snap *inspection.Snapshot) ([]inspection.Result, error) {
	var (
		mu      sync.Mutex
		results []inspection.Result
	)
	globals := map[string]any{
		"declarations":    makeDeclarationsFn(snap),
		"references_to":   makeReferencesToFn(snap),
		"statement_count": makeStatementCountFn(snap),
		"report": makeReportFn(snap, s, func(r inspection.Result) {
			mu.Lock()
			results = append(results, r)
			mu.Unlock()
		}),
	}
	if err := s.rt.RunScript(ctx, s.path, globals); err != nil {
		return nil, err
	}
	return results, nil
}

// ScriptInspections returns one inspection per inspect/*.risor script
// under the runtime's script root, sorted by name.
func (r *Runtime) ScriptInspections() ([]*ScriptInspection, error) {
	var files []string
	switch {
	case r.fsys != nil:
		matches, err := fs.Glob(r.fsys, path.Join("inspect", "*.risor"))
		if err != nil {
			return nil, fmt.Errorf("runtime: listing scripts: %w", err)
		}
		files = matches
	case r.scriptsDir != "":
		matches, err := filepath.Glob(filepath.Join(r.scriptsDir, "inspect", "*.risor"))
		if err != nil {
			return nil, fmt.Errorf("runtime: listing scripts: %w", err)
		}
		for _, m := range matches {
			rel, err := filepath.Rel(r.scriptsDir, m)
			if err != nil {
				return nil, fmt.Errorf("runtime: listing scripts: %w", err)
			}
			files = append(files, rel)
		}
	default:
		return nil, nil
	}
	sort.Strings(files)

	out := make([]*ScriptInspection, 0, len(files))
	for _, f := range files {
		out = append(out, NewScriptInspection(r, InspectionName(f), f))
	}
	return out, nil
}

// InspectionName derives an inspection name from a script file name:
// "inspect/empty_procedure.risor" becomes "EmptyProcedure".
func InspectionName(file string) string {
	base := strings.TrimSuffix(filepath.Base(file), filepath.Ext(file))
	var b strings.Builder
	for _, part := range strings.FieldsFunc(base, func(r rune) bool { return r == '_' || r == '-' }) {
		runes := []rune(part)
		runes[0] = unicode.ToUpper(runes[0])
		b.WriteString(string(runes))
	}
	return b.String()
}
