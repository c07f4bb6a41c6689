// Package resolve builds the declaration table from module parse trees.
// Two strategies are provided: Parallel fans out one task per module,
// Sequential resolves modules in caller order on the calling goroutine.
// Both produce the same table for the same input.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/jward/mallard/internal/parsestate"
	"github.com/jward/mallard/internal/project"
	"github.com/jward/mallard/internal/symbols"
	"github.com/jward/mallard/internal/syntax"
)

// ErrMissingParseTree is returned for a module that has no parse tree.
var ErrMissingParseTree = errors.New("missing parse tree")

// TreeSource supplies parse trees by module.
type TreeSource interface {
	ParseTree(module project.ModuleName) (*syntax.Tree, bool)
}

// Resolver builds declarations for a set of modules.
type Resolver interface {
	ResolveDeclarations(ctx context.Context, modules []project.ModuleName) error
}

// ModuleError is a failure to resolve one module.
type ModuleError struct {
	Module project.ModuleName
	Err    error
}

func (e *ModuleError) Error() string {
	return fmt.Sprintf("resolve: %s: %v", e.Module, e.Err)
}

func (e *ModuleError) Unwrap() error { return e.Err }

// ResolutionError collects the module failures of a parallel pass.
type ResolutionError struct {
	Causes []*ModuleError
}

func (e *ResolutionError) Error() string {
	msgs := make([]string, len(e.Causes))
	for i, c := range e.Causes {
		msgs[i] = c.Error()
	}
	return fmt.Sprintf("resolve: had %d error(s): %s", len(e.Causes), strings.Join(msgs, "; "))
}

func (e *ResolutionError) Unwrap() []error {
	errs := make([]error, len(e.Causes))
	for i, c := range e.Causes {
		errs[i] = c
	}
	return errs
}

// Option configures a resolver.
type Option func(*base)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *base) { b.logger = l }
}

// base holds what both strategies share.
type base struct {
	trees  TreeSource
	table  *symbols.Table
	states *parsestate.Manager
	logger *slog.Logger
}

func newBase(trees TreeSource, table *symbols.Table, states *parsestate.Manager, opts []Option) base {
	b := base{
		trees:  trees,
		table:  table,
		states: states,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(&b)
	}
	return b
}

// prepare runs the steps shared by both strategies before any module task:
// mark the modules as resolving and clear project-scope declarations, with
// a cancellation check before and after clearing shared state.
func (b *base) prepare(ctx context.Context, modules []project.ModuleName) error {
	if err := b.states.SetModuleStates(ctx, modules, parsestate.ResolvingDeclarations); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	b.table.ClearProjectDeclarations()
	return ctx.Err()
}

// resolveModule builds and publishes one module's declarations.
func (b *base) resolveModule(ctx context.Context, module project.ModuleName) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tree, ok := b.trees.ParseTree(module)
	if !ok {
		return ErrMissingParseTree
	}
	decls, err := Collect(ctx, tree, b.table.EnsureProject(module.Project))
	if err != nil {
		return err
	}
	b.table.Publish(module, decls)
	return b.states.SetModuleStates(ctx, []project.ModuleName{module}, parsestate.ResolvedDeclarations)
}

// fail forces the aggregate state into ResolverError. The transition is
// made even if ctx has been cancelled by a sibling failure.
func (b *base) fail(ctx context.Context, source string, err error) {
	b.logger.Error("declaration resolution failed", "strategy", source, "error", err)
	if serr := b.states.SetStatusAndFireStateChanged(context.WithoutCancel(ctx), source, parsestate.ResolverError); serr != nil {
		b.logger.Error("forcing resolver error state", "error", serr)
	}
}

// IsCancellation reports whether err is a context cancellation or deadline.
func IsCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
