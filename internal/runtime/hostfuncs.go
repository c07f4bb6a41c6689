package runtime

import (
	"context"

	"github.com/risor-io/risor/object"

	"github.com/jward/mallard/internal/inspection"
	"github.com/jward/mallard/internal/symbols"
	"github.com/jward/mallard/internal/syntax"
)

// Host functions read the inspection snapshot. Risor scripts work with
// maps of primitive values, so declarations and references are converted
// Go-side and declaration IDs travel as "Project.Module#ordinal" strings.

func makeDeclarationsFn(snap *inspection.Snapshot) *object.Builtin {
	return object.NewBuiltin("declarations", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) > 1 {
			return object.Errorf("declarations: expected at most 1 argument, got %d", len(args))
		}
		kind := ""
		if len(args) == 1 {
			s, err := toString(args[0])
			if err != nil {
				return object.Errorf("declarations: %v", err)
			}
			kind = s
		}
		results := []object.Object{}
		for _, d := range snap.Table.All() {
			if kind == "" || d.Kind.String() == kind {
				results = append(results, declarationToObject(d))
			}
		}
		return object.NewList(results)
	})
}

func makeReferencesToFn(snap *inspection.Snapshot) *object.Builtin {
	return object.NewBuiltin("references_to", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("references_to", 1, len(args))
		}
		id, err := idArg(args[0])
		if err != nil {
			return object.Errorf("references_to: %v", err)
		}
		results := []object.Object{}
		for _, ref := range snap.References.To(id) {
			results = append(results, object.NewMap(map[string]object.Object{
				"module":     object.NewString(ref.Module.String()),
				"name":       object.NewString(ref.Name),
				"scope":      object.NewString(ref.Scope.String()),
				"flags":      object.NewString(ref.Flags.String()),
				"assignment": object.NewBool(ref.IsAssignment()),
				"line":       object.NewInt(int64(ref.Span.StartLine)),
				"col":        object.NewInt(int64(ref.Span.StartCol)),
			}))
		}
		return object.NewList(results)
	})
}

// makeStatementCountFn counts the statements directly inside a procedure,
// Type or Enum body.
func makeStatementCountFn(snap *inspection.Snapshot) *object.Builtin {
	return object.NewBuiltin("statement_count", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("statement_count", 1, len(args))
		}
		id, err := idArg(args[0])
		if err != nil {
			return object.Errorf("statement_count: %v", err)
		}
		d, ok := snap.Table.Get(id)
		if !ok {
			return object.Errorf("statement_count: unknown declaration %s", id)
		}
		if d.Node == nil {
			return object.NewInt(0)
		}
		return object.NewInt(int64(len(syntax.Statements(syntax.Body(d.Node)))))
	})
}

// makeReportFn records a finding. The map needs "target" and
// "description"; "line" and "col" default to the target's name.
func makeReportFn(snap *inspection.Snapshot, insp inspection.Inspection, emit func(inspection.Result)) *object.Builtin {
	return object.NewBuiltin("report", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("report", 1, len(args))
		}
		m, err := extractMap(args[0])
		if err != nil {
			return object.Errorf("report: %v", err)
		}
		target, ok := m["target"]
		if !ok {
			return object.Errorf("report: missing target")
		}
		id, err := idArg(target)
		if err != nil {
			return object.Errorf("report: %v", err)
		}
		d, ok := snap.Table.Get(id)
		if !ok {
			return object.Errorf("report: unknown declaration %s", id)
		}
		line, col := getInt(m, "line"), getInt(m, "col")
		if line == 0 {
			line, col = d.NameSpan.StartLine, d.NameSpan.StartCol
		}
		emit(inspection.Result{
			Inspection:  insp.Name(),
			Description: getString(m, "description"),
			Severity:    insp.Severity(),
			Module:      d.Module(),
			Line:        line,
			Col:         col,
			Target:      d.ID,
			Node:        d.Node,
		})
		return object.Nil
	})
}

func declarationToObject(d *symbols.Declaration) object.Object {
	annotations := make([]object.Object, 0, len(d.Annotations))
	for _, a := range d.Annotations {
		annotations = append(annotations, object.NewString(a.Name))
	}
	return object.NewMap(map[string]object.Object{
		"id":             object.NewString(d.ID.String()),
		"parent_id":      object.NewString(d.ParentID.String()),
		"name":           object.NewString(d.Name),
		"qualified_name": object.NewString(d.QualifiedName),
		"kind":           object.NewString(d.Kind.String()),
		"accessibility":  object.NewString(d.Accessibility.String()),
		"as_type":        object.NewString(d.AsType),
		"is_array":       object.NewBool(d.IsArray),
		"module":         object.NewString(d.Module().String()),
		"component_type": object.NewString(d.ComponentType.String()),
		"line":           object.NewInt(int64(d.NameSpan.StartLine)),
		"col":            object.NewInt(int64(d.NameSpan.StartCol)),
		"annotations":    object.NewList(annotations),
	})
}

func idArg(obj object.Object) (symbols.ID, error) {
	s, err := toString(obj)
	if err != nil {
		return symbols.ID{}, err
	}
	return symbols.ParseID(s)
}
