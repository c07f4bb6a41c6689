package resolve

import (
	"context"

	"github.com/jward/mallard/internal/parsestate"
	"github.com/jward/mallard/internal/project"
	"github.com/jward/mallard/internal/symbols"
)

// Sequential resolves modules one at a time in the order given. It suits
// small incremental passes where fan-out costs more than it saves.
type Sequential struct {
	base
}

// NewSequential returns a sequential resolver.
func NewSequential(trees TreeSource, table *symbols.Table, states *parsestate.Manager, opts ...Option) *Sequential {
	return &Sequential{base: newBase(trees, table, states, opts)}
}

// ResolveDeclarations resolves modules in order and stops at the first
// failure. Cancellation is returned as is; any other failure forces the
// aggregate state to ResolverError and is returned as a *ModuleError.
func (r *Sequential) ResolveDeclarations(ctx context.Context, modules []project.ModuleName) error {
	if len(modules) == 0 {
		return nil
	}
	if err := r.prepare(ctx, modules); err != nil {
		return err
	}
	r.logger.Debug("resolving declarations", "strategy", "sequential", "modules", len(modules))

	for _, module := range modules {
		err := r.resolveModule(ctx, module)
		if err == nil {
			continue
		}
		if IsCancellation(err) {
			return err
		}
		merr := &ModuleError{Module: module, Err: err}
		r.fail(ctx, "sequential", merr)
		return merr
	}
	return nil
}
