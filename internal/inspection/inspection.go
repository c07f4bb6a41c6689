// Package inspection runs code inspections over resolved declarations and
// identifier references and reports their findings.
package inspection

import (
	"context"
	"fmt"
	"strings"

	"github.com/jward/mallard/internal/project"
	"github.com/jward/mallard/internal/symbols"
	"github.com/jward/mallard/internal/syntax"
)

// Severity ranks a finding. DoNotShow disables an inspection.
type Severity int

const (
	DoNotShow Severity = iota
	Hint
	Suggestion
	Warning
	Error
)

var severityNames = [...]string{"DoNotShow", "Hint", "Suggestion", "Warning", "Error"}

func (s Severity) String() string {
	if s < 0 || int(s) >= len(severityNames) {
		return fmt.Sprintf("Severity(%d)", int(s))
	}
	return severityNames[s]
}

// ParseSeverity parses a severity name, ignoring case.
func ParseSeverity(s string) (Severity, error) {
	for i, name := range severityNames {
		if strings.EqualFold(name, s) {
			return Severity(i), nil
		}
	}
	return DoNotShow, fmt.Errorf("inspection: unknown severity %q", s)
}

// Result is one finding.
type Result struct {
	Inspection  string
	Description string
	Severity    Severity
	Module      project.ModuleName
	Line        int
	Col         int
	// Target is the declaration the finding is about.
	Target symbols.ID
	// Node is the syntax the finding points at. Annotations attached to any
	// statement enclosing it can suppress the finding.
	Node *syntax.Node
}

// TreeSource provides parse trees by module.
type TreeSource interface {
	ParseTree(module project.ModuleName) (*syntax.Tree, bool)
}

// Snapshot is the resolved state an inspection run reads. It must not
// change while inspections run.
type Snapshot struct {
	Trees      TreeSource
	Table      *symbols.Table
	References *symbols.References
	Finder     *symbols.Finder
}

// NewSnapshot returns a snapshot over the given state.
func NewSnapshot(trees TreeSource, table *symbols.Table, refs *symbols.References) *Snapshot {
	return &Snapshot{Trees: trees, Table: table, References: refs, Finder: symbols.NewFinder(table)}
}

// Inspection is a named rule producing findings of one kind.
type Inspection interface {
	Name() string
	Severity() Severity
	SetSeverity(Severity)
	Inspect(ctx context.Context, s *Snapshot) ([]Result, error)
}

// base holds the name and configured severity of an inspection.
type base struct {
	name     string
	severity Severity
}

func (b *base) Name() string           { return b.name }
func (b *base) Severity() Severity     { return b.severity }
func (b *base) SetSeverity(s Severity) { b.severity = s }

func (b *base) result(d *symbols.Declaration, node *syntax.Node, span syntax.Span, module project.ModuleName, description string) Result {
	r := Result{
		Inspection:  b.name,
		Description: description,
		Severity:    b.severity,
		Module:      module,
		Line:        span.StartLine,
		Col:         span.StartCol,
		Node:        node,
	}
	if d != nil {
		r.Target = d.ID
	}
	return r
}
