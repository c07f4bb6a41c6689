package binding

import (
	"context"
	"strings"

	"github.com/jward/mallard/internal/project"
	"github.com/jward/mallard/internal/symbols"
	"github.com/jward/mallard/internal/syntax"
)

// moduleBinder walks one module's tree. It is used by a single goroutine.
type moduleBinder struct {
	finder *symbols.Finder
	tree   *syntax.Tree
	mod    *symbols.Declaration
	byNode map[*syntax.Node]*symbols.Declaration

	proc *symbols.Declaration
	with []*symbols.Declaration
	refs []*symbols.IdentifierReference
}

func newModuleBinder(finder *symbols.Finder, tree *syntax.Tree, mod *symbols.Declaration, decls []*symbols.Declaration) *moduleBinder {
	byNode := make(map[*syntax.Node]*symbols.Declaration, len(decls))
	for _, d := range decls {
		if d.Node != nil {
			byNode[d.Node] = d
		}
	}
	return &moduleBinder{finder: finder, tree: tree, mod: mod, byNode: byNode}
}

func (b *moduleBinder) bind(ctx context.Context) error {
	for _, stmt := range syntax.Statements(b.tree.Root) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if stmt.Kind.IsProcedure() {
			b.proc = b.byNode[stmt]
			b.children(stmt)
			b.proc = nil
			continue
		}
		b.stmt(stmt)
	}
	return nil
}

func (b *moduleBinder) scope() symbols.ID {
	if b.proc != nil {
		return b.proc.ID
	}
	return b.mod.ID
}

// stmt binds one statement.
func (b *moduleBinder) stmt(n *syntax.Node) {
	switch n.Kind {
	case syntax.KindOptionStmt, syntax.KindAttributeStmt, syntax.KindOtherStmt, syntax.KindEndOfStatement:
		return
	case syntax.KindCallStmt:
		var flags symbols.UsageFlags
		if n.Value != "" {
			flags = symbols.ExplicitCall
		}
		for i, c := range n.Children {
			if i == 0 {
				b.expr(c, flags)
				continue
			}
			b.expr(c, 0)
		}
	case syntax.KindLetStmt, syntax.KindSetStmt:
		flags := symbols.Assignment
		if n.Kind == syntax.KindSetStmt {
			flags |= symbols.SetAssignment
		}
		for i, c := range n.Children {
			if i == 0 {
				b.expr(c, flags)
				continue
			}
			b.expr(c, 0)
		}
	case syntax.KindForStmt, syntax.KindForEachStmt:
		for i, c := range n.Children {
			if i == 0 {
				b.expr(c, symbols.Assignment)
				continue
			}
			b.node(c)
		}
	case syntax.KindWithStmt:
		var target *symbols.Declaration
		if len(n.Children) > 0 {
			target = b.typeOf(b.expr(n.Children[0], 0))
		}
		b.with = append(b.with, target)
		for _, c := range n.Children[1:] {
			b.node(c)
		}
		b.with = b.with[:len(b.with)-1]
	default:
		b.children(n)
	}
}

// node binds any child of a statement.
func (b *moduleBinder) node(n *syntax.Node) {
	switch n.Kind {
	case syntax.KindBlock:
		for _, s := range syntax.Statements(n) {
			b.stmt(s)
		}
	case syntax.KindEndOfStatement, syntax.KindIdentifier:
	case syntax.KindParameterList, syntax.KindParameter:
		b.children(n)
	case syntax.KindSimpleNameExpr, syntax.KindMemberAccessExpr, syntax.KindWithMemberAccessExpr,
		syntax.KindIndexExpr, syntax.KindArgumentList, syntax.KindArgument, syntax.KindLiteralExpr,
		syntax.KindParenExpr, syntax.KindUnaryExpr, syntax.KindBinaryExpr, syntax.KindNewExpr:
		b.expr(n, 0)
	default:
		b.stmt(n)
	}
}

func (b *moduleBinder) children(n *syntax.Node) {
	for _, c := range n.Children {
		b.node(c)
	}
}

// expr binds an expression and returns the declaration it denotes, if any.
// flags apply to the reference that is the target of the expression.
func (b *moduleBinder) expr(n *syntax.Node, flags symbols.UsageFlags) *symbols.Declaration {
	if n == nil {
		return nil
	}
	switch n.Kind {
	case syntax.KindSimpleNameExpr:
		id := n.Child(syntax.KindIdentifier)
		if id == nil {
			return nil
		}
		d := b.resolveName(id.Value, flags)
		b.reference(id, d, flags)
		return d
	case syntax.KindMemberAccessExpr:
		if len(n.Children) < 2 {
			return nil
		}
		left := b.expr(n.Children[0], 0)
		member := n.Children[1]
		d := b.resolveMember(left, member.Value, flags)
		b.reference(member, d, flags)
		return d
	case syntax.KindWithMemberAccessExpr:
		id := n.Child(syntax.KindIdentifier)
		if id == nil || len(b.with) == 0 {
			return nil
		}
		d := b.memberOfType(b.with[len(b.with)-1], id.Value, flags)
		b.reference(id, d, flags|symbols.WithMemberAccess)
		return d
	case syntax.KindIndexExpr:
		if len(n.Children) == 0 {
			return nil
		}
		d := b.expr(n.Children[0], flags)
		for _, c := range n.Children[1:] {
			b.expr(c, 0)
		}
		return d
	case syntax.KindLiteralExpr:
		if strings.EqualFold(n.Value, "Me") {
			return b.mod
		}
		return nil
	case syntax.KindNewExpr:
		if len(n.Children) == 0 {
			return nil
		}
		return b.typeOf(b.expr(n.Children[0], 0))
	default:
		for _, c := range n.Children {
			b.expr(c, 0)
		}
		return nil
	}
}

// reference records a use of d at id, adding the flags implied by the
// expression's position.
func (b *moduleBinder) reference(id *syntax.Node, d *symbols.Declaration, flags symbols.UsageFlags) {
	if d == nil || id == nil {
		return
	}
	if own := indexedCallee(id); own != nil {
		index := own.Parent
		if isArrayLike(d) {
			flags |= symbols.ArrayAccess
		}
		if index.Parent != nil && index.Parent.Kind == syntax.KindIndexExpr && index.Parent.Children[0] == index {
			flags |= symbols.InnerRecursiveDefaultMemberAccess
		}
	}
	b.refs = append(b.refs, &symbols.IdentifierReference{
		Declaration: d.ID,
		Module:      b.tree.Module,
		Node:        id,
		Name:        id.Value,
		Scope:       b.scope(),
		Span:        b.tree.Span(id),
		Flags:       flags,
	})
}

// indexedCallee returns the expression naming id when that expression is
// the callee of an index expression, or nil.
func indexedCallee(id *syntax.Node) *syntax.Node {
	own := id.Parent
	if own == nil {
		return nil
	}
	if own.Parent != nil && own.Parent.Kind == syntax.KindIndexExpr && own.Parent.Children[0] == own {
		return own
	}
	return nil
}

func isArrayLike(d *symbols.Declaration) bool {
	switch d.Kind {
	case symbols.Variable, symbols.Parameter, symbols.UserDefinedTypeMember, symbols.Constant:
		return d.IsArray
	}
	return false
}

// resolveName finds the declaration a simple name denotes: procedure
// locals and parameters, then module members, then public members of
// standard modules and module and project names in the same project.
func (b *moduleBinder) resolveName(name string, flags symbols.UsageFlags) *symbols.Declaration {
	if b.proc != nil {
		if d := pick(b.finder.ChildrenNamed(b.proc.ID, name), flags); d != nil {
			return d
		}
		// Inside a function or getter its own name is the return value.
		if (b.proc.Kind == symbols.Function || b.proc.Kind == symbols.PropertyGet) && strings.EqualFold(b.proc.Name, name) {
			return b.proc
		}
	}
	if d := pick(b.finder.ChildrenNamed(b.mod.ID, name), flags); d != nil {
		return d
	}
	for _, child := range b.finder.Children(b.mod.ID) {
		if child.Kind == symbols.Enumeration {
			if d := pick(b.finder.ChildrenNamed(child.ID, name), flags); d != nil {
				return d
			}
		}
	}

	proj := b.tree.Module.Project
	var global []*symbols.Declaration
	for _, d := range b.finder.Named(name) {
		if !strings.EqualFold(d.ID.Module.Project, proj) {
			continue
		}
		switch {
		case d.Kind.IsModule(), d.Kind == symbols.Project:
			return d
		case b.visibleFromStandardModule(d):
			global = append(global, d)
		}
	}
	return pick(global, flags)
}

// visibleFromStandardModule reports whether d is a public member (or public
// enum member) of a standard module other than this one.
func (b *moduleBinder) visibleFromStandardModule(d *symbols.Declaration) bool {
	if d.Module() == b.tree.Module {
		return false
	}
	parent, ok := b.finder.Get(d.ParentID)
	if !ok {
		return false
	}
	if parent.Kind == symbols.Enumeration {
		if !parent.Accessibility.IsPublic() {
			return false
		}
		parent, ok = b.finder.Get(parent.ParentID)
		if !ok {
			return false
		}
	} else if !d.Accessibility.IsPublic() {
		return false
	}
	return parent.Kind == symbols.ProceduralModule
}

// resolveMember finds name as a member of the declaration left denotes.
func (b *moduleBinder) resolveMember(left *symbols.Declaration, name string, flags symbols.UsageFlags) *symbols.Declaration {
	if left == nil {
		return nil
	}
	switch {
	case left.Kind == symbols.Project:
		if mods := b.finder.ModulesNamed(left.Name, name); len(mods) > 0 {
			return mods[0]
		}
		return nil
	case left.Kind.IsModule(), left.Kind == symbols.Enumeration, left.Kind == symbols.UserDefinedType:
		return b.memberOfType(left, name, flags)
	}
	return b.memberOfType(b.typeOf(left), name, flags)
}

// memberOfType finds name among the members of a module, enum or
// user-defined type. Private members are only visible from their own module.
func (b *moduleBinder) memberOfType(typ *symbols.Declaration, name string, flags symbols.UsageFlags) *symbols.Declaration {
	if typ == nil {
		return nil
	}
	var out []*symbols.Declaration
	for _, d := range b.finder.ChildrenNamed(typ.ID, name) {
		if d.Module() != b.tree.Module && !d.Accessibility.IsPublic() && typ.Kind.IsModule() {
			continue
		}
		out = append(out, d)
	}
	return pick(out, flags)
}

// typeOf returns the class module or user-defined type that values of d
// have, or nil.
func (b *moduleBinder) typeOf(d *symbols.Declaration) *symbols.Declaration {
	if d == nil {
		return nil
	}
	if d.Kind == symbols.ClassModule || d.Kind == symbols.UserDefinedType {
		return d
	}
	if d.AsType == "" {
		return nil
	}
	typeName := d.AsType
	if _, after, ok := strings.Cut(typeName, "."); ok {
		typeName = after
	}
	for _, m := range b.finder.ModulesNamed(b.tree.Module.Project, typeName) {
		if m.ComponentType != project.StandardModule {
			return m
		}
	}
	for _, t := range b.finder.Named(typeName) {
		if t.Kind != symbols.UserDefinedType {
			continue
		}
		if t.Module() == b.tree.Module || t.Accessibility.IsPublic() {
			return t
		}
	}
	return nil
}

// pick chooses among same-named candidates. Property accessors are chosen
// by usage: Set for Set assignments, Let for other assignments, Get
// otherwise.
func pick(cands []*symbols.Declaration, flags symbols.UsageFlags) *symbols.Declaration {
	if len(cands) <= 1 {
		if len(cands) == 1 {
			return cands[0]
		}
		return nil
	}
	want := []symbols.Kind{symbols.PropertyGet}
	switch {
	case flags.Has(symbols.SetAssignment):
		want = []symbols.Kind{symbols.PropertySet, symbols.PropertyLet}
	case flags.Has(symbols.Assignment):
		want = []symbols.Kind{symbols.PropertyLet, symbols.PropertySet}
	}
	for _, k := range want {
		for _, d := range cands {
			if d.Kind == k {
				return d
			}
		}
	}
	return cands[0]
}
