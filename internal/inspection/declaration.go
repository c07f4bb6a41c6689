package inspection

import (
	"context"
	"fmt"
	"strings"

	"github.com/jward/mallard/internal/project"
	"github.com/jward/mallard/internal/symbols"
)

// DeclarationRule decides, one declaration at a time, whether a
// declaration is a finding.
type DeclarationRule interface {
	IsResultDeclaration(d *symbols.Declaration, s *Snapshot) bool
	ResultDescription(d *symbols.Declaration) string
}

// DeclarationInspection runs a DeclarationRule over every declaration.
type DeclarationInspection struct {
	base
	rule DeclarationRule
}

// NewDeclarationInspection returns an inspection named name evaluating rule.
func NewDeclarationInspection(name string, severity Severity, rule DeclarationRule) *DeclarationInspection {
	return &DeclarationInspection{base: base{name: name, severity: severity}, rule: rule}
}

// Inspect implements Inspection.
func (i *DeclarationInspection) Inspect(ctx context.Context, s *Snapshot) ([]Result, error) {
	var out []Result
	for n, d := range s.Table.All() {
		if n%256 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if i.rule.IsResultDeclaration(d, s) {
			out = append(out, i.result(d, d.Node, d.NameSpan, d.Module(), i.rule.ResultDescription(d)))
		}
	}
	return out, nil
}

// ProcedureNotUsed finds Subs and Functions nothing calls.
type ProcedureNotUsed struct{}

// NewProcedureNotUsed returns the inspection.
func NewProcedureNotUsed() *DeclarationInspection {
	return NewDeclarationInspection("ProcedureNotUsed", Suggestion, ProcedureNotUsed{})
}

// IsResultDeclaration implements DeclarationRule. Event handlers, interface
// implementations, test methods and public parameterless Subs of standard
// modules (macros) are entry points and never reported.
func (ProcedureNotUsed) IsResultDeclaration(d *symbols.Declaration, s *Snapshot) bool {
	if d.Kind != symbols.Procedure && d.Kind != symbols.Function {
		return false
	}
	if d.HasAnnotation("TestMethod") || d.HasAnnotation("EntryPoint") {
		return false
	}
	if d.ComponentType != project.StandardModule && strings.Contains(d.Name, "_") {
		return false
	}
	if d.ComponentType == project.StandardModule && d.Kind == symbols.Procedure && d.Accessibility.IsPublic() && !hasParameters(d, s) {
		return false
	}
	for _, ref := range s.References.To(d.ID) {
		if ref.Scope != d.ID {
			return false
		}
	}
	return true
}

// ResultDescription implements DeclarationRule.
func (ProcedureNotUsed) ResultDescription(d *symbols.Declaration) string {
	return fmt.Sprintf("Procedure '%s' is not used.", d.QualifiedName)
}

func hasParameters(d *symbols.Declaration, s *Snapshot) bool {
	for _, c := range s.Finder.Children(d.ID) {
		if c.Kind == symbols.Parameter {
			return true
		}
	}
	return false
}
