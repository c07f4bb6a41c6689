package mallard

import (
	"context"
	"fmt"
	goruntime "runtime"
	"strings"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/jward/mallard/internal/project"
	"github.com/jward/mallard/internal/store"
	"github.com/jward/mallard/internal/symbols"
)

// PersistStats summarizes one Persist call.
type PersistStats struct {
	Written  int
	Skipped  int
	Removed  int
	Findings int
}

// persistItem is one module's snapshot on its way to SQLite.
type persistItem struct {
	module project.ModuleName
	row    *store.Module
	batch  *store.BatchedStore
}

// Persist writes the in-memory snapshot to SQLite.
//
// A module is rewritten when its content hash or signature hash differs
// from the stored row, or when it references a module whose signature
// changed or that was removed (blast radius). Everything else is skipped.
//
//	Phase A (serial):   Diff against stored rows, upsert module rows.
//	Phase B (parallel): Serialize declarations and references into batches.
//	Phase C (serial):   Commit batches, replace findings.
func (e *Engine) Persist(ctx context.Context) (*PersistStats, error) {
	stats := &PersistStats{}

	// ---- Phase A: Serial diff ----
	stored, err := e.store.Modules()
	if err != nil {
		return nil, fmt.Errorf("mallard: persist: %w", err)
	}
	storedByKey := make(map[string]*store.Module, len(stored))
	for _, m := range stored {
		storedByKey[strings.ToLower(m.Key())] = m
	}

	modules := e.trees.Modules()
	live := make(map[string]bool, len(modules))
	rows := make(map[project.ModuleName]*store.Module, len(modules))
	rewrite := make(map[project.ModuleName]bool)
	var sigChanged []string
	for _, m := range modules {
		key := strings.ToLower(m.String())
		live[key] = true
		row := e.moduleRow(m)
		rows[m] = row
		old := storedByKey[key]
		if old == nil || old.ContentHash != row.ContentHash || old.SignatureHash != row.SignatureHash {
			rewrite[m] = true
		}
		if old == nil || old.SignatureHash != row.SignatureHash {
			sigChanged = append(sigChanged, m.String())
		}
	}

	for _, m := range stored {
		if !strings.EqualFold(m.Project, e.projectName) || live[strings.ToLower(m.Key())] {
			continue
		}
		sigChanged = append(sigChanged, m.Key())
	}
	dependents, err := e.store.ModulesReferencing(sigChanged)
	if err != nil {
		return nil, fmt.Errorf("mallard: persist: %w", err)
	}
	liveByKey := make(map[string]project.ModuleName, len(modules))
	for _, m := range modules {
		liveByKey[strings.ToLower(m.String())] = m
	}
	for _, id := range dependents {
		for _, row := range stored {
			if row.ID != id {
				continue
			}
			if m, ok := liveByKey[strings.ToLower(row.Key())]; ok {
				rewrite[m] = true
			}
		}
	}

	for _, m := range stored {
		if !strings.EqualFold(m.Project, e.projectName) || live[strings.ToLower(m.Key())] {
			continue
		}
		if err := e.store.DeleteModule(m.ID); err != nil {
			return nil, fmt.Errorf("mallard: persist: %w", err)
		}
		stats.Removed++
	}

	var items []*persistItem
	for _, m := range modules {
		if !rewrite[m] {
			stats.Skipped++
			continue
		}
		row := rows[m]
		if _, err := e.store.UpsertModule(row); err != nil {
			return nil, fmt.Errorf("mallard: persist %s: %w", m, err)
		}
		items = append(items, &persistItem{module: m, row: row, batch: store.NewBatchedStore(e.store)})
	}
	// Rows are upserted first so references can point at any module.
	ids, err := e.moduleIDs()
	if err != nil {
		return nil, fmt.Errorf("mallard: persist: %w", err)
	}

	// ---- Phase B: Parallel serialization ----
	p := pool.New().WithContext(ctx).WithMaxGoroutines(max(1, goruntime.NumCPU()))
	for _, item := range items {
		p.Go(func(ctx context.Context) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return e.writeModule(item.batch, item.row.ID, item.module)
		})
	}
	if err := p.Wait(); err != nil {
		return nil, fmt.Errorf("mallard: persist: %w", err)
	}

	// ---- Phase C: Serial commit ----
	for _, item := range items {
		if err := e.store.CommitBatch(item.batch); err != nil {
			return nil, fmt.Errorf("mallard: persist %s: %w", item.module, err)
		}
		stats.Written++
	}

	findings := e.findingRows(ids)
	if err := e.store.ReplaceFindings(findings); err != nil {
		return nil, fmt.Errorf("mallard: persist: %w", err)
	}
	stats.Findings = len(findings)
	if err := e.store.SetMetadata("persisted_at", time.Now().UTC().Format(time.RFC3339)); err != nil {
		return nil, fmt.Errorf("mallard: persist: %w", err)
	}

	e.logger.Info("snapshot persisted", "written", stats.Written, "skipped", stats.Skipped,
		"removed", stats.Removed, "findings", stats.Findings)
	return stats, nil
}

func (e *Engine) moduleRow(m project.ModuleName) *store.Module {
	e.mu.Lock()
	info := e.modules[m]
	e.mu.Unlock()
	row := &store.Module{
		Project:       m.Project,
		Component:     m.Component,
		SignatureHash: store.FormatHash(symbols.SignatureHash(e.table.Module(m))),
		LastIndexed:   time.Now().UTC().Truncate(time.Second),
	}
	if info != nil {
		row.ComponentType = info.ctype.String()
		row.Path = info.path
		row.ContentHash = info.contentHash
	}
	return row
}

// moduleIDs maps lower-cased "Project.Component" keys to stored row IDs.
func (e *Engine) moduleIDs() (map[string]int64, error) {
	stored, err := e.store.Modules()
	if err != nil {
		return nil, err
	}
	ids := make(map[string]int64, len(stored))
	for _, m := range stored {
		ids[strings.ToLower(m.Key())] = m.ID
	}
	return ids, nil
}

// writeModule serializes one module partition and its references into ds.
func (e *Engine) writeModule(ds store.DataStore, moduleID int64, m project.ModuleName) error {
	if b, ok := ds.(*store.BatchedStore); ok {
		b.ReplaceModule(moduleID)
	}
	for _, d := range e.table.Module(m) {
		row := &store.Declaration{
			ModuleID:      moduleID,
			Key:           d.ID.String(),
			Name:          d.Name,
			QualifiedName: d.QualifiedName,
			Kind:          d.Kind.String(),
			Accessibility: d.Accessibility.String(),
			AsType:        d.AsType,
			IsArray:       d.IsArray,
			StartLine:     d.Span.StartLine,
			StartCol:      d.Span.StartCol,
			EndLine:       d.Span.EndLine,
			EndCol:        d.Span.EndCol,
			NameLine:      d.NameSpan.StartLine,
			NameCol:       d.NameSpan.StartCol,
		}
		if !d.ParentID.IsZero() {
			row.ParentKey = d.ParentID.String()
		}
		declID, err := ds.InsertDeclaration(row)
		if err != nil {
			return fmt.Errorf("%s: %w", d.QualifiedName, err)
		}
		for _, a := range d.Annotations {
			if _, err := ds.InsertAnnotation(&store.Annotation{DeclarationID: declID, Name: a.Name, Arguments: a.Args}); err != nil {
				return fmt.Errorf("%s: @%s: %w", d.QualifiedName, a.Name, err)
			}
		}
	}
	for _, r := range e.refs.In(m) {
		row := &store.Reference{
			ModuleID:  moduleID,
			TargetKey: r.Declaration.String(),
			Name:      r.Name,
			Flags:     r.Flags.String(),
			StartLine: r.Span.StartLine,
			StartCol:  r.Span.StartCol,
			EndLine:   r.Span.EndLine,
			EndCol:    r.Span.EndCol,
		}
		if !r.Scope.IsZero() {
			row.ScopeKey = r.Scope.String()
		}
		if _, err := ds.InsertReference(row); err != nil {
			return fmt.Errorf("reference %s: %w", r.Name, err)
		}
	}
	return nil
}

func (e *Engine) findingRows(ids map[string]int64) []*store.Finding {
	results := e.Results()
	out := make([]*store.Finding, 0, len(results))
	for _, r := range results {
		id, ok := ids[strings.ToLower(r.Module.String())]
		if !ok {
			continue
		}
		f := &store.Finding{
			ModuleID:    id,
			Inspection:  r.Inspection,
			Severity:    r.Severity.String(),
			Description: r.Description,
			Line:        r.Line,
			Col:         r.Col,
		}
		if !r.Target.IsZero() {
			f.TargetKey = r.Target.String()
		}
		out = append(out, f)
	}
	return out
}
