// Package binding resolves identifier uses in parse trees to declarations
// in the declaration table and records them as identifier references.
package binding

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/sourcegraph/conc/pool"

	"github.com/jward/mallard/internal/parsestate"
	"github.com/jward/mallard/internal/project"
	"github.com/jward/mallard/internal/resolve"
	"github.com/jward/mallard/internal/symbols"
)

// ErrDeclarationsNotResolved is returned when a module to bind has not
// finished declaration resolution.
var ErrDeclarationsNotResolved = errors.New("declarations not resolved")

// Binder binds references module by module.
type Binder struct {
	trees  resolve.TreeSource
	table  *symbols.Table
	refs   *symbols.References
	states *parsestate.Manager
	logger *slog.Logger
}

// Option configures a Binder.
type Option func(*Binder)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Binder) { b.logger = l }
}

// New returns a Binder writing into refs.
func New(trees resolve.TreeSource, table *symbols.Table, refs *symbols.References, states *parsestate.Manager, opts ...Option) *Binder {
	b := &Binder{
		trees:  trees,
		table:  table,
		refs:   refs,
		states: states,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

type moduleRefs struct {
	module project.ModuleName
	refs   []*symbols.IdentifierReference
}

// Bind replaces the references of modules. Every module must be in
// ResolvedDeclarations or later; on success they move to Ready.
func (b *Binder) Bind(ctx context.Context, modules []project.ModuleName) error {
	if len(modules) == 0 {
		return nil
	}
	for _, m := range modules {
		st, ok := b.states.ModuleState(m)
		if !ok || st.IsError() || st < parsestate.ResolvedDeclarations {
			return fmt.Errorf("binding: %s is %s: %w", m, st, ErrDeclarationsNotResolved)
		}
	}
	if err := b.states.SetModuleStates(ctx, modules, parsestate.ResolvingReferences); err != nil {
		return err
	}

	finder := symbols.NewFinder(b.table)
	p := pool.NewWithResults[moduleRefs]().WithContext(ctx)
	for _, m := range modules {
		p.Go(func(ctx context.Context) (moduleRefs, error) {
			refs, err := b.bindModule(ctx, finder, m)
			return moduleRefs{module: m, refs: refs}, err
		})
	}
	results, err := p.Wait()
	if err != nil {
		if resolve.IsCancellation(err) {
			return ctx.Err()
		}
		if serr := b.states.SetStatusAndFireStateChanged(context.WithoutCancel(ctx), "binding", parsestate.ResolverError); serr != nil {
			b.logger.Error("forcing resolver error state", "error", serr)
		}
		return fmt.Errorf("binding: %w", err)
	}

	total := 0
	for _, r := range results {
		b.refs.Replace(r.module, r.refs)
		total += len(r.refs)
	}
	b.logger.Debug("bound references", "modules", len(modules), "references", total)
	return b.states.SetModuleStates(ctx, modules, parsestate.Ready)
}

func (b *Binder) bindModule(ctx context.Context, finder *symbols.Finder, module project.ModuleName) ([]*symbols.IdentifierReference, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	tree, ok := b.trees.ParseTree(module)
	if !ok {
		return nil, fmt.Errorf("%s: %w", module, resolve.ErrMissingParseTree)
	}
	mod, ok := finder.ModuleDeclaration(module)
	if !ok {
		return nil, fmt.Errorf("%s: %w", module, ErrDeclarationsNotResolved)
	}
	mb := newModuleBinder(finder, tree, mod, b.table.Module(module))
	if err := mb.bind(ctx); err != nil {
		return nil, err
	}
	return mb.refs, nil
}
