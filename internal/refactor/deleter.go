package refactor

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"

	"github.com/jward/mallard/internal/project"
	"github.com/jward/mallard/internal/resolve"
	"github.com/jward/mallard/internal/rewrite"
	"github.com/jward/mallard/internal/symbols"
	"github.com/jward/mallard/internal/syntax"
)

var (
	// ErrUnsupportedTarget is returned for declarations that cannot be
	// deleted on their own: projects, modules and parameters.
	ErrUnsupportedTarget = errors.New("unsupported deletion target")
	// ErrForeignTarget is returned when a target does not belong to the
	// module being rewritten.
	ErrForeignTarget = errors.New("target belongs to another module")
)

// DefaultMemberPolicy decides what happens to a '@DefaultMember annotation
// when the Property Get carrying it is deleted.
type DefaultMemberPolicy int

const (
	// RetainInPlace deletes the annotation together with its member.
	RetainInPlace DefaultMemberPolicy = iota
	// Migrate moves the annotation to a surviving accessor of the same
	// property.
	Migrate
)

func (p DefaultMemberPolicy) String() string {
	if p == Migrate {
		return "migrate"
	}
	return "retain"
}

// ParseDefaultMemberPolicy parses "retain" or "migrate".
func ParseDefaultMemberPolicy(s string) (DefaultMemberPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "retain":
		return RetainInPlace, nil
	case "migrate":
		return Migrate, nil
	}
	return RetainInPlace, fmt.Errorf("refactor: unknown default member policy %q", s)
}

// Option configures a Deleter.
type Option func(*Deleter)

// WithDefaultMemberPolicy sets the '@DefaultMember policy.
func WithDefaultMemberPolicy(p DefaultMemberPolicy) Option {
	return func(d *Deleter) { d.policy = p }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Deleter) { d.logger = l }
}

// Deleter removes declarations from module source text. Comments and
// annotations that belong to a deleted declaration go with it; everything
// else is kept byte for byte.
type Deleter struct {
	policy DefaultMemberPolicy
	logger *slog.Logger
}

// NewDeleter returns a Deleter.
func NewDeleter(opts ...Option) *Deleter {
	d := &Deleter{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Delete stages the removal of targets in session. All targets are
// validated before any edit is queued.
func (d *Deleter) Delete(targets []*symbols.Declaration, session *rewrite.Session) error {
	if session == nil {
		return ErrNilRewriter
	}
	if len(targets) == 0 {
		return nil
	}

	byModule := make(map[project.ModuleName][]*symbols.Declaration)
	for _, t := range targets {
		if err := supported(t); err != nil {
			return err
		}
		byModule[t.Module()] = append(byModule[t.Module()], t)
	}
	modules := make([]project.ModuleName, 0, len(byModule))
	for m := range byModule {
		modules = append(modules, m)
	}
	slices.SortFunc(modules, func(a, b project.ModuleName) int {
		return cmp.Compare(a.String(), b.String())
	})

	rewriters := make([]*rewrite.ModuleRewriter, len(modules))
	for i, m := range modules {
		rw, err := session.Rewriter(m)
		if err != nil {
			return fmt.Errorf("refactor: delete: %w", err)
		}
		if err := validate(byModule[m], rw); err != nil {
			return err
		}
		rewriters[i] = rw
	}

	checkpoints := make([]rewrite.Checkpoint, len(rewriters))
	for i, rw := range rewriters {
		checkpoints[i] = rw.Checkpoint()
	}
	for i, m := range modules {
		if err := d.deleteInModule(byModule[m], rewriters[i]); err != nil {
			for j, rw := range rewriters {
				rw.Rollback(checkpoints[j])
			}
			return fmt.Errorf("refactor: delete in %s: %w", m, err)
		}
	}
	return nil
}

// DeleteInModule stages the removal of targets, all declared in the module
// rw rewrites.
func (d *Deleter) DeleteInModule(targets []*symbols.Declaration, rw *rewrite.ModuleRewriter) error {
	if rw == nil {
		return ErrNilRewriter
	}
	if len(targets) == 0 {
		return nil
	}
	for _, t := range targets {
		if err := supported(t); err != nil {
			return err
		}
	}
	if err := validate(targets, rw); err != nil {
		return err
	}
	cp := rw.Checkpoint()
	if err := d.deleteInModule(targets, rw); err != nil {
		rw.Rollback(cp)
		return err
	}
	return nil
}

func supported(t *symbols.Declaration) error {
	if t == nil || t.Node == nil {
		return fmt.Errorf("%w: declaration has no syntax", ErrUnsupportedTarget)
	}
	switch t.Kind {
	case symbols.Project, symbols.ProceduralModule, symbols.ClassModule, symbols.Parameter:
		return fmt.Errorf("%w: %s %s", ErrUnsupportedTarget, t.Kind, t.QualifiedName)
	}
	return nil
}

func validate(targets []*symbols.Declaration, rw *rewrite.ModuleRewriter) error {
	tree := rw.Tree()
	for _, t := range targets {
		if t.Module() != tree.Module {
			return fmt.Errorf("%w: %s in %s", ErrForeignTarget, t.QualifiedName, tree.Module)
		}
		if syntax.Ancestor(t.Node, syntax.KindModule) != tree.Root {
			return fmt.Errorf("%w: %s is not part of the current parse tree", ErrForeignTarget, t.QualifiedName)
		}
	}
	return nil
}

// plan is the set of edits for one module.
type plan struct {
	statements  map[*syntax.Node]bool
	declarators map[*syntax.Node][]*syntax.Node
}

func (d *Deleter) deleteInModule(targets []*symbols.Declaration, rw *rewrite.ModuleRewriter) error {
	p := plan{
		statements:  make(map[*syntax.Node]bool),
		declarators: make(map[*syntax.Node][]*syntax.Node),
	}
	for _, t := range targets {
		switch t.Kind {
		case symbols.Variable, symbols.Constant:
			stmt := t.Node.Parent
			if !slices.Contains(p.declarators[stmt], t.Node) {
				p.declarators[stmt] = append(p.declarators[stmt], t.Node)
			}
		default:
			p.statements[t.Node] = true
		}
	}
	for stmt, decls := range p.declarators {
		all := len(stmt.ChildrenOf(syntax.KindVariableDecl)) + len(stmt.ChildrenOf(syntax.KindConstDecl))
		if len(decls) == all {
			p.statements[stmt] = true
			delete(p.declarators, stmt)
		}
	}
	// Targets nested in another deleted statement go with it.
	for stmt := range p.statements {
		if p.deletedAncestor(stmt) {
			delete(p.statements, stmt)
		}
	}
	for stmt := range p.declarators {
		if p.deletedAncestor(stmt) {
			delete(p.declarators, stmt)
		}
	}

	containers := make(map[*syntax.Node]bool)
	for stmt := range p.statements {
		containers[stmt.Parent] = true
	}
	for _, c := range sortedNodes(containers) {
		for _, run := range runs(c, p.statements) {
			if err := deleteRun(run, rw); err != nil {
				return err
			}
		}
	}

	stmts := make(map[*syntax.Node]bool, len(p.declarators))
	for stmt := range p.declarators {
		stmts[stmt] = true
	}
	for _, stmt := range sortedNodes(stmts) {
		if err := removeDeclarators(stmt, p.declarators[stmt], rw); err != nil {
			return err
		}
	}

	if d.policy == Migrate {
		for _, t := range targets {
			if t.Kind == symbols.PropertyGet && t.HasAnnotation("DefaultMember") {
				if err := d.migrateDefaultMember(t, p, rw); err != nil {
					return err
				}
			}
		}
	}
	d.logger.Debug("staged deletions", "module", rw.Tree().Module, "targets", len(targets))
	return nil
}

func (p plan) deletedAncestor(n *syntax.Node) bool {
	return syntax.AncestorFunc(n.Parent, func(a *syntax.Node) bool { return p.statements[a] }) != nil
}

// runs returns the maximal runs of consecutive deleted statements of a
// container.
func runs(container *syntax.Node, deleted map[*syntax.Node]bool) [][]*syntax.Node {
	var out [][]*syntax.Node
	var cur []*syntax.Node
	for _, stmt := range syntax.Statements(container) {
		if deleted[stmt] {
			cur = append(cur, stmt)
			continue
		}
		if len(cur) > 0 {
			out = append(out, cur)
			cur = nil
		}
	}
	if len(cur) > 0 {
		out = append(out, cur)
	}
	return out
}

// deleteRun replaces a run of statements, from the end-of-statement before
// the first through the one after the last, with the stitched text of the
// comments and layout that survive.
func deleteRun(run []*syntax.Node, rw *rewrite.ModuleRewriter) error {
	first, last := run[0], run[len(run)-1]
	for _, stmt := range run {
		for _, sep := range syntax.AttachedAnnotations(stmt) {
			if err := rw.RemoveNode(sep); err != nil {
				return err
			}
		}
		if err := removeLineComment(syntax.FollowingEOS(stmt), rw); err != nil {
			return err
		}
	}

	prev, err := NewEOSContent(syntax.PrecedingEOS(first), rw)
	if err != nil {
		return err
	}
	acc := prev.ModifiedContent()
	// Nothing precedes the module's leading end-of-statement, so there is
	// no line for a trailing separation to terminate.
	leading := syntax.PrecedingEOS(first) == nil || syntax.StartsOnOwnLine(syntax.PrecedingEOS(first))
	followed := last.NextSibling() != nil && last.NextSibling().NextSibling() != nil
	for i, stmt := range run {
		tc, err := NewEOSContent(syntax.FollowingEOS(stmt), rw)
		if err != nil {
			return err
		}
		retained := tc.ModifiedContent()
		switch {
		case hasRetainedContent(retained):
			prior, sep, _ := splitContent(acc)
			if prior == "" {
				// The retained lines carry their own indentation.
				acc = sep + trimStartingNewlines(retained)
			} else {
				acc = prior + retained
			}
		case i == len(run)-1 && !followed:
			prior, _, _ := splitContent(acc)
			if prior == "" && leading {
				acc = ""
				break
			}
			_, sep, indent := splitContent(retained)
			acc = prior + sep + indent
		}
	}

	start := first.Start
	if eos := syntax.PrecedingEOS(first); eos != nil {
		start = eos.Start
	}
	stop := last.Stop
	if eos := syntax.FollowingEOS(last); eos != nil {
		stop = max(stop, eos.Stop)
	}
	return rw.Replace(start, stop, acc)
}

// removeLineComment removes the comment on the logical line of the
// statement eos terminates, keeping the newline after it.
func removeLineComment(eos *syntax.Node, rw *rewrite.ModuleRewriter) error {
	if eos == nil {
		return nil
	}
	c, err := NewEOSContent(eos, rw)
	if err != nil {
		return err
	}
	sep := c.DeclarationLogicalLineComment()
	if sep == nil {
		return nil
	}
	return rw.Remove(sep.Start, syntax.SeparatorComment(sep).Stop)
}

// removeDeclarators rewrites a declaration statement without the given
// declarators, keeping the original text between the survivors.
func removeDeclarators(stmt *syntax.Node, remove []*syntax.Node, rw *rewrite.ModuleRewriter) error {
	tree := rw.Tree()
	var all []*syntax.Node
	for _, c := range stmt.Children {
		if c.Kind == syntax.KindVariableDecl || c.Kind == syntax.KindConstDecl {
			all = append(all, c)
		}
	}
	var b strings.Builder
	kept := 0
	for i, decl := range all {
		if slices.Contains(remove, decl) {
			continue
		}
		if kept > 0 {
			b.WriteString(tree.TextRange(all[i-1].Stop+1, decl.Start-1))
		}
		b.WriteString(tree.Text(decl))
		kept++
	}
	return rw.Replace(all[0].Start, all[len(all)-1].Stop, b.String())
}

// migrateDefaultMember re-inserts the '@DefaultMember annotation above a
// surviving Let or Set accessor of the deleted property.
func (d *Deleter) migrateDefaultMember(get *symbols.Declaration, p plan, rw *rewrite.ModuleRewriter) error {
	container := get.Node.Parent
	for _, stmt := range syntax.Statements(container) {
		if p.statements[stmt] || !strings.EqualFold(stmt.Name(), get.Name) {
			continue
		}
		if stmt.Kind != syntax.KindPropertyLetStmt && stmt.Kind != syntax.KindPropertySetStmt {
			continue
		}
		for _, sep := range syntax.AttachedAnnotations(stmt) {
			if a := syntax.SeparatorComment(sep); strings.EqualFold(a.Value, "DefaultMember") {
				return nil
			}
		}
		indent := ""
		if eos := syntax.PrecedingEOS(stmt); eos != nil {
			_, _, indent = splitContent(rw.Tree().Text(eos))
		}
		ann, _ := get.Annotation("DefaultMember")
		text := rw.Tree().Text(ann.Node)
		d.logger.Debug("migrating default member", "property", get.QualifiedName)
		return rw.InsertBefore(stmt.Start, text+rw.Tree().Newline()+indent)
	}
	return nil
}

func sortedNodes(set map[*syntax.Node]bool) []*syntax.Node {
	out := make([]*syntax.Node, 0, len(set))
	for n := range set {
		out = append(out, n)
	}
	slices.SortFunc(out, func(a, b *syntax.Node) int { return cmp.Compare(a.Start, b.Start) })
	return out
}

// DeleteFromSource parses src, deletes the module-level declarations with
// the given qualified or simple names and returns the rewritten text.
func DeleteFromSource(ctx context.Context, module project.ModuleName, ctype project.ComponentType, src string, names []string, opts ...Option) (string, error) {
	tree := syntax.Parse(module, ctype, src)
	proj := symbols.NewTable().EnsureProject(module.Project)
	decls, err := resolve.Collect(ctx, tree, proj)
	if err != nil {
		return "", err
	}
	var targets []*symbols.Declaration
	for _, name := range names {
		found := false
		for _, decl := range decls {
			if strings.EqualFold(decl.QualifiedName, name) || strings.EqualFold(decl.QualifiedName, module.String()+"."+name) {
				targets = append(targets, decl)
				found = true
			}
		}
		if !found {
			return "", fmt.Errorf("refactor: no declaration named %q in %s", name, module)
		}
	}
	rw := rewrite.NewModuleRewriter(tree)
	if err := NewDeleter(opts...).DeleteInModule(targets, rw); err != nil {
		return "", err
	}
	return rw.Render(), nil
}
