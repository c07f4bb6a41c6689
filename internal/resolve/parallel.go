package resolve

import (
	"context"
	"slices"
	"sync"

	"github.com/sourcegraph/conc/pool"

	"github.com/jward/mallard/internal/parsestate"
	"github.com/jward/mallard/internal/project"
	"github.com/jward/mallard/internal/symbols"
)

// Parallel resolves every module concurrently with no cap on fan-out.
type Parallel struct {
	base
}

// NewParallel returns a parallel resolver.
func NewParallel(trees TreeSource, table *symbols.Table, states *parsestate.Manager, opts ...Option) *Parallel {
	return &Parallel{base: newBase(trees, table, states, opts)}
}

// ResolveDeclarations resolves modules in parallel. If every failure is a
// cancellation, the first one is returned as is. Otherwise the aggregate
// state is forced to ResolverError and a *ResolutionError is returned.
func (r *Parallel) ResolveDeclarations(ctx context.Context, modules []project.ModuleName) error {
	if len(modules) == 0 {
		return nil
	}
	if err := r.prepare(ctx, modules); err != nil {
		return err
	}
	r.logger.Debug("resolving declarations", "strategy", "parallel", "modules", len(modules))

	var (
		mu       sync.Mutex
		failures []*ModuleError
	)
	p := pool.New()
	for _, module := range modules {
		p.Go(func() {
			if err := r.resolveModule(ctx, module); err != nil {
				mu.Lock()
				failures = append(failures, &ModuleError{Module: module, Err: err})
				mu.Unlock()
			}
		})
	}
	p.Wait()

	if len(failures) == 0 {
		return nil
	}
	slices.SortFunc(failures, func(a, b *ModuleError) int {
		switch {
		case a.Module.Less(b.Module):
			return -1
		case b.Module.Less(a.Module):
			return 1
		}
		return 0
	})
	if allCancelled(failures) {
		return failures[0].Err
	}
	err := &ResolutionError{Causes: failures}
	r.fail(ctx, "parallel", err)
	return err
}

func allCancelled(failures []*ModuleError) bool {
	for _, f := range failures {
		if !IsCancellation(f.Err) {
			return false
		}
	}
	return true
}
