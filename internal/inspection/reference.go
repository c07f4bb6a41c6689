package inspection

import (
	"context"
	"fmt"

	"github.com/jward/mallard/internal/symbols"
	"github.com/jward/mallard/internal/syntax"
)

// ReferenceRule decides, one identifier reference at a time, whether a
// reference is a finding.
type ReferenceRule interface {
	IsResultReference(ref *symbols.IdentifierReference, s *Snapshot) bool
	ResultDescription(ref *symbols.IdentifierReference, target *symbols.Declaration) string
}

// ReferenceInspection runs a ReferenceRule over every reference.
type ReferenceInspection struct {
	base
	rule ReferenceRule
}

// NewReferenceInspection returns an inspection named name evaluating rule.
func NewReferenceInspection(name string, severity Severity, rule ReferenceRule) *ReferenceInspection {
	return &ReferenceInspection{base: base{name: name, severity: severity}, rule: rule}
}

// Inspect implements Inspection.
func (i *ReferenceInspection) Inspect(ctx context.Context, s *Snapshot) ([]Result, error) {
	var out []Result
	for n, ref := range s.References.All() {
		if n%256 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if !i.rule.IsResultReference(ref, s) {
			continue
		}
		target, ok := s.Table.Get(ref.Declaration)
		if !ok {
			continue
		}
		out = append(out, i.result(target, ref.Node, ref.Span, ref.Module, i.rule.ResultDescription(ref, target)))
	}
	return out, nil
}

// FunctionReturnValueNotUsed finds calls to functions whose return value is
// discarded because the call is a statement of its own.
type FunctionReturnValueNotUsed struct{}

// NewFunctionReturnValueNotUsed returns the inspection.
func NewFunctionReturnValueNotUsed() *ReferenceInspection {
	return NewReferenceInspection("FunctionReturnValueNotUsed", Warning, FunctionReturnValueNotUsed{})
}

// IsResultReference implements ReferenceRule.
func (FunctionReturnValueNotUsed) IsResultReference(ref *symbols.IdentifierReference, s *Snapshot) bool {
	target, ok := s.Table.Get(ref.Declaration)
	if !ok || target.Kind != symbols.Function {
		return false
	}
	if ref.IsAssignment() || ref.IsArrayAccess() || ref.IsInnerRecursiveDefaultMemberAccess() {
		return false
	}
	return isBareCall(ref.Node)
}

// ResultDescription implements ReferenceRule.
func (FunctionReturnValueNotUsed) ResultDescription(_ *symbols.IdentifierReference, target *symbols.Declaration) string {
	return fmt.Sprintf("Return value of function '%s' is not used.", target.QualifiedName)
}

// isBareCall reports whether the identifier id names the procedure called
// by a call statement, rather than a value consumed by an argument list or
// the left side of a member access.
func isBareCall(id *syntax.Node) bool {
	if id == nil || id.Parent == nil {
		return false
	}
	call := syntax.Ancestor(id, syntax.KindCallStmt)
	if call == nil {
		return false
	}
	inArgs := syntax.AncestorFunc(id, func(n *syntax.Node) bool {
		return n == call || n.Kind == syntax.KindArgumentList
	})
	if inArgs.Kind == syntax.KindArgumentList {
		return false
	}
	own := id.Parent
	return syntax.Ancestor(own.Parent, syntax.KindMemberAccessExpr) == nil
}
