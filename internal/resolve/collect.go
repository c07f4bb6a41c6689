package resolve

import (
	"context"

	"github.com/jward/mallard/internal/project"
	"github.com/jward/mallard/internal/symbols"
	"github.com/jward/mallard/internal/syntax"
)

// cancelCheckInterval is how many statements are collected between
// cancellation checks.
const cancelCheckInterval = 64

var procedureKinds = map[syntax.Kind]symbols.Kind{
	syntax.KindSubStmt:         symbols.Procedure,
	syntax.KindFunctionStmt:    symbols.Function,
	syntax.KindPropertyGetStmt: symbols.PropertyGet,
	syntax.KindPropertyLetStmt: symbols.PropertyLet,
	syntax.KindPropertySetStmt: symbols.PropertySet,
}

// Collect builds the declaration partition of one module. The module
// declaration takes ordinal 0, module-level declarations follow in source
// order, then the parameters and locals of each procedure. Keeping locals
// last means body edits never shift the ordinals other modules refer to.
func Collect(ctx context.Context, tree *syntax.Tree, proj *symbols.Declaration) ([]*symbols.Declaration, error) {
	c := &collector{tree: tree, module: tree.Module}

	kind := symbols.ProceduralModule
	if tree.Type != project.StandardModule {
		kind = symbols.ClassModule
	}
	mod := c.add(&symbols.Declaration{
		ParentID:      proj.ID,
		Name:          tree.Module.Component,
		QualifiedName: tree.Module.String(),
		Kind:          kind,
		Accessibility: symbols.Public,
		Node:          tree.Root,
		Annotations:   annotations(syntax.ModuleAnnotations(tree.Root)),
	})

	var procs []*symbols.Declaration
	for i, stmt := range syntax.Statements(tree.Root) {
		if i%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if p := c.member(stmt, mod); p != nil {
			procs = append(procs, p)
		}
	}
	for _, p := range procs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		c.locals(p)
	}
	return c.decls, nil
}

type collector struct {
	tree   *syntax.Tree
	module project.ModuleName
	decls  []*symbols.Declaration
}

func (c *collector) add(d *symbols.Declaration) *symbols.Declaration {
	d.ID = symbols.ID{Module: c.module, Ordinal: len(c.decls)}
	d.ComponentType = c.tree.Type
	if d.Span == (syntax.Span{}) {
		d.Span = c.tree.Span(d.Node)
	}
	d.NameSpan = d.Span
	if d.Node != nil {
		if id := d.Node.Child(syntax.KindIdentifier); id != nil {
			d.NameSpan = c.tree.Span(id)
		}
	}
	c.decls = append(c.decls, d)
	return d
}

// child declares name under parent.
func (c *collector) child(parent *symbols.Declaration, node *syntax.Node, kind symbols.Kind, access symbols.Accessibility) *symbols.Declaration {
	name := node.Name()
	return c.add(&symbols.Declaration{
		ParentID:      parent.ID,
		Name:          name,
		QualifiedName: parent.QualifiedName + "." + name,
		Kind:          kind,
		Accessibility: access,
		AsType:        node.AsType,
		IsArray:       node.Array,
		Node:          node,
	})
}

// member declares a module-level statement and returns the procedure
// declaration if stmt is one.
func (c *collector) member(stmt *syntax.Node, mod *symbols.Declaration) *symbols.Declaration {
	attached := annotations(annotationNodes(syntax.AttachedAnnotations(stmt)))
	access := symbols.ParseAccessibility(stmt.Value)
	if access == symbols.Implicit && (stmt.Kind == syntax.KindVariableStmt || stmt.Kind == syntax.KindConstStmt) {
		access = symbols.Private
	}

	switch stmt.Kind {
	case syntax.KindVariableStmt:
		for _, decl := range stmt.ChildrenOf(syntax.KindVariableDecl) {
			c.child(mod, decl, symbols.Variable, access).Annotations = attached
		}
	case syntax.KindConstStmt:
		for _, decl := range stmt.ChildrenOf(syntax.KindConstDecl) {
			c.child(mod, decl, symbols.Constant, access).Annotations = attached
		}
	case syntax.KindTypeStmt, syntax.KindEnumStmt:
		kind, memberKind := symbols.UserDefinedType, symbols.UserDefinedTypeMember
		if stmt.Kind == syntax.KindEnumStmt {
			kind, memberKind = symbols.Enumeration, symbols.EnumerationMember
		}
		parent := c.child(mod, stmt, kind, access)
		parent.Annotations = attached
		for _, m := range syntax.Statements(syntax.Body(stmt)) {
			if m.Kind == syntax.KindTypeMember || m.Kind == syntax.KindEnumMember {
				c.child(parent, m, memberKind, access)
			}
		}
	default:
		kind, ok := procedureKinds[stmt.Kind]
		if !ok || stmt.Name() == "" {
			return nil
		}
		p := c.child(mod, stmt, kind, access)
		p.Annotations = attached
		return p
	}
	return nil
}

// locals declares the parameters and local variables and constants of a
// procedure.
func (c *collector) locals(proc *symbols.Declaration) {
	if params := proc.Node.Child(syntax.KindParameterList); params != nil {
		for _, param := range params.ChildrenOf(syntax.KindParameter) {
			if param.Name() != "" {
				c.child(proc, param, symbols.Parameter, symbols.Implicit)
			}
		}
	}
	syntax.Walk(syntax.Body(proc.Node), func(n *syntax.Node) bool {
		switch n.Kind {
		case syntax.KindVariableStmt:
			for _, decl := range n.ChildrenOf(syntax.KindVariableDecl) {
				c.child(proc, decl, symbols.Variable, symbols.Implicit)
			}
			return false
		case syntax.KindConstStmt:
			for _, decl := range n.ChildrenOf(syntax.KindConstDecl) {
				c.child(proc, decl, symbols.Constant, symbols.Implicit)
			}
			return false
		}
		return true
	})
}

func annotationNodes(separators []*syntax.Node) []*syntax.Node {
	out := make([]*syntax.Node, 0, len(separators))
	for _, sep := range separators {
		if a := syntax.SeparatorComment(sep); a != nil {
			out = append(out, a)
		}
	}
	return out
}

func annotations(nodes []*syntax.Node) []symbols.Annotation {
	if len(nodes) == 0 {
		return nil
	}
	out := make([]symbols.Annotation, len(nodes))
	for i, n := range nodes {
		out[i] = symbols.Annotation{Name: n.Value, Args: n.Args, Node: n}
	}
	return out
}
