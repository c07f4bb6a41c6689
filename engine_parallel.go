package mallard

import (
	"context"
	"fmt"
	"os"
	goruntime "runtime"

	"github.com/sourcegraph/conc/pool"

	"github.com/jward/mallard/internal/parsestate"
	"github.com/jward/mallard/internal/project"
	"github.com/jward/mallard/internal/store"
	"github.com/jward/mallard/internal/syntax"
)

// workItem holds everything a parse worker needs.
type workItem struct {
	path   string
	src    string
	hash   string
	module project.ModuleName
	ctype  project.ComponentType
	tree   *syntax.Tree
}

// LoadModules loads module files using a three-phase pipeline:
//
//	Phase A (serial):   Read, hash check, mark modules Parsing.
//	Phase B (parallel): Parse via a bounded worker pool.
//	Phase C (serial):   Publish trees, mark modules Parsed.
//
// Errors on individual files are collected; the other files still load.
func (e *Engine) LoadModules(ctx context.Context, paths []string) error {
	// ---- Phase A: Serial preparation ----
	var (
		items []*workItem
		errs  []error
	)
	for _, path := range paths {
		content, err := os.ReadFile(path)
		if err != nil {
			errs = append(errs, fmt.Errorf("read %s: %w", path, err))
			continue
		}
		item, skip, err := e.prepareSource(ctx, path, string(content))
		if err != nil {
			return fmt.Errorf("mallard: prepare %s: %w", path, err)
		}
		if !skip {
			items = append(items, item)
		}
	}

	if len(items) > 0 {
		// ---- Phase B: Parallel parse ----
		p := pool.New().WithContext(ctx).WithMaxGoroutines(max(1, min(goruntime.NumCPU(), len(items))))
		for _, item := range items {
			p.Go(func(ctx context.Context) error {
				if err := ctx.Err(); err != nil {
					return err
				}
				item.tree = syntax.Parse(item.module, item.ctype, item.src)
				return nil
			})
		}
		if err := p.Wait(); err != nil {
			return err
		}

		// ---- Phase C: Serial commit ----
		for _, item := range items {
			if err := e.commitTree(ctx, item); err != nil {
				errs = append(errs, fmt.Errorf("commit %s: %w", item.path, err))
			}
		}
		e.logger.Info("modules loaded", "parsed", len(items), "skipped", len(paths)-len(items)-len(errs))
	}

	if len(errs) > 0 {
		return fmt.Errorf("mallard: loading had %d error(s): %w", len(errs), errs[0])
	}
	return nil
}

// prepareSource does Phase A work for one file. skip=true means the module
// text is unchanged.
func (e *Engine) prepareSource(ctx context.Context, path, src string) (*workItem, bool, error) {
	ctype, _ := project.ComponentTypeForFile(path)
	module := project.NewModuleName(e.projectName, componentName(path, src))
	return e.prepareModule(ctx, module, ctype, path, src)
}

func (e *Engine) prepareModule(ctx context.Context, module project.ModuleName, ctype project.ComponentType, path, src string) (*workItem, bool, error) {
	hash := store.ContentHash(src)
	e.mu.Lock()
	existing := e.modules[module]
	e.mu.Unlock()
	if existing != nil && existing.contentHash == hash {
		return nil, true, nil
	}

	ms := []project.ModuleName{module}
	if err := e.states.ResetModules(ctx, ms); err != nil {
		return nil, false, err
	}
	if err := e.states.SetModuleStates(ctx, ms, parsestate.Parsing); err != nil {
		return nil, false, err
	}
	return &workItem{path: path, src: src, hash: hash, module: module, ctype: ctype}, false, nil
}

// commitTree publishes a parsed tree and queues its module for resolution.
func (e *Engine) commitTree(ctx context.Context, item *workItem) error {
	e.trees.Put(item.tree)
	e.mu.Lock()
	e.modules[item.module] = &moduleInfo{path: item.path, ctype: item.ctype, contentHash: item.hash}
	if e.pending != nil {
		e.pending[item.module] = true
	}
	e.mu.Unlock()
	return e.states.SetModuleStates(ctx, []project.ModuleName{item.module}, parsestate.Parsed)
}
