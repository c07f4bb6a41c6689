package mallard

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"sync"

	"github.com/jward/mallard/internal/binding"
	"github.com/jward/mallard/internal/config"
	"github.com/jward/mallard/internal/inspection"
	"github.com/jward/mallard/internal/parsestate"
	"github.com/jward/mallard/internal/project"
	"github.com/jward/mallard/internal/refactor"
	"github.com/jward/mallard/internal/resolve"
	"github.com/jward/mallard/internal/rewrite"
	"github.com/jward/mallard/internal/runtime"
	"github.com/jward/mallard/internal/store"
	"github.com/jward/mallard/internal/symbols"
	"github.com/jward/mallard/internal/syntax"
	"github.com/jward/mallard/scripts"
)

var (
	// ErrNotReady is returned by Inspect before every module is bound.
	ErrNotReady = errors.New("modules are not ready")
	// ErrUnknownDeclaration is returned for a declaration ID not in the table.
	ErrUnknownDeclaration = errors.New("unknown declaration")
)

// Engine orchestrates the mallard pipeline: module loading, change
// detection, declaration resolution, binding, inspection, refactoring and
// snapshot persistence.
type Engine struct {
	store   *store.Store
	builtin *runtime.Runtime // embedded inspection scripts
	user    *runtime.Runtime // scripts under scriptsDir, nil if none

	trees  *syntax.Store
	table  *symbols.Table
	refs   *symbols.References
	states *parsestate.Manager

	logger      *slog.Logger
	projectName string
	useParallel bool
	policy      refactor.DefaultMemberPolicy
	settings    inspection.Settings
	filter      *config.ModuleFilter
	scriptsDir  string
	scriptsFS   fs.FS

	mu      sync.Mutex
	modules map[project.ModuleName]*moduleInfo
	// pending holds modules needing resolution. nil means "resolve
	// everything" (nothing resolved yet).
	pending map[project.ModuleName]bool
	results []inspection.Result
}

type moduleInfo struct {
	path        string
	ctype       project.ComponentType
	contentHash string
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger shared by every component.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithProject names the project loaded modules belong to.
func WithProject(name string) Option {
	return func(e *Engine) { e.projectName = name }
}

// WithParallel selects the parallel declaration resolver for passes over
// more than one module. Single-module passes are always sequential.
func WithParallel(parallel bool) Option {
	return func(e *Engine) { e.useParallel = parallel }
}

// WithDefaultMemberPolicy sets how deletions treat @DefaultMember.
func WithDefaultMemberPolicy(p refactor.DefaultMemberPolicy) Option {
	return func(e *Engine) { e.policy = p }
}

// WithInspectionSettings sets severity overrides and disabled inspections.
func WithInspectionSettings(s inspection.Settings) Option {
	return func(e *Engine) { e.settings = s }
}

// WithModuleFilter restricts which files LoadDirectory picks up.
func WithModuleFilter(f *config.ModuleFilter) Option {
	return func(e *Engine) { e.filter = f }
}

// WithScriptsDir adds the inspect/*.risor scripts under dir.
func WithScriptsDir(dir string) Option {
	return func(e *Engine) { e.scriptsDir = dir }
}

// WithScriptsFS replaces the embedded inspection scripts.
func WithScriptsFS(fsys fs.FS) Option {
	return func(e *Engine) { e.scriptsFS = fsys }
}

// WithConfig applies a loaded configuration. Relative paths are anchored
// at root.
func WithConfig(cfg *config.Config, root string) Option {
	return func(e *Engine) {
		e.projectName = cfg.Project
		e.useParallel = cfg.Resolve.Parallel
		e.settings = cfg.InspectionSettings()
		if p, err := cfg.DefaultMemberPolicy(); err == nil {
			e.policy = p
		}
		if f, err := cfg.ModuleFilter(); err == nil {
			e.filter = f
		}
		if cfg.Inspections.ScriptsDir != "" {
			e.scriptsDir = config.ResolvePath(root, cfg.Inspections.ScriptsDir)
		}
	}
}

// New creates an Engine backed by a SQLite database at dbPath.
func New(dbPath string, opts ...Option) (*Engine, error) {
	s, err := store.NewStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("mallard: create store: %w", err)
	}
	if err := s.Migrate(); err != nil {
		s.Close()
		return nil, fmt.Errorf("mallard: migrate: %w", err)
	}

	e := &Engine{
		store:       s,
		trees:       syntax.NewStore(),
		table:       symbols.NewTable(),
		refs:        symbols.NewReferences(),
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		projectName: "VBAProject",
		useParallel: true,
		scriptsFS:   scripts.FS,
		modules:     make(map[project.ModuleName]*moduleInfo),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.states = parsestate.NewManager(parsestate.WithLogger(e.logger))
	e.builtin = runtime.NewRuntime(s, "", runtime.WithRuntimeFS(e.scriptsFS), runtime.WithRuntimeLogger(e.logger))
	if e.scriptsDir != "" {
		if fi, err := os.Stat(e.scriptsDir); err == nil && fi.IsDir() {
			e.user = runtime.NewRuntime(s, e.scriptsDir, runtime.WithRuntimeLogger(e.logger))
		}
	}
	return e, nil
}

// Close releases the Engine's database resources.
func (e *Engine) Close() error {
	return e.store.Close()
}

// Store returns the underlying Store for direct access.
func (e *Engine) Store() *Store {
	return e.store
}

// States returns the module lifecycle manager.
func (e *Engine) States() *parsestate.Manager {
	return e.states
}

// Table returns the declaration table.
func (e *Engine) Table() *symbols.Table {
	return e.table
}

// References returns the bound identifier references.
func (e *Engine) References() *symbols.References {
	return e.refs
}

// Project returns the project name.
func (e *Engine) Project() string {
	return e.projectName
}

// Modules returns the loaded modules, sorted.
func (e *Engine) Modules() []project.ModuleName {
	return e.trees.Modules()
}

// ModulePath returns the file a module was loaded from, if any.
func (e *Engine) ModulePath(m project.ModuleName) (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	info, ok := e.modules[m]
	if !ok || info.path == "" {
		return "", false
	}
	return info.path, true
}

// ModuleForPath returns the module loaded from path.
func (e *Engine) ModuleForPath(path string) (project.ModuleName, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for m, info := range e.modules {
		if info.path == path {
			return m, true
		}
	}
	return project.ModuleName{}, false
}

// Source returns the current text of a loaded module.
func (e *Engine) Source(m project.ModuleName) (string, bool) {
	tree, ok := e.trees.ParseTree(m)
	if !ok {
		return "", false
	}
	return tree.Source(), true
}

var vbName = regexp.MustCompile(`(?mi)^Attribute[ \t]+VB_Name[ \t]*=[ \t]*"([^"]+)"`)

// componentName prefers the exported VB_Name attribute over the file name.
func componentName(path, src string) string {
	if m := vbName.FindStringSubmatch(src); m != nil {
		return m[1]
	}
	return project.ComponentNameForFile(path)
}

// LoadSource parses src as the module exported to path. Unchanged text
// (same content hash) is skipped. It reports whether the module changed.
func (e *Engine) LoadSource(ctx context.Context, path, src string) (bool, error) {
	item, skip, err := e.prepareSource(ctx, path, src)
	if err != nil || skip {
		return false, err
	}
	item.tree = syntax.Parse(item.module, item.ctype, src)
	if err := e.commitTree(ctx, item); err != nil {
		return false, err
	}
	return true, nil
}

// LoadDirectory walks root and loads every module file the module filter
// admits.
func (e *Engine) LoadDirectory(ctx context.Context, root string) error {
	paths, err := e.listModules(root)
	if err != nil {
		return err
	}
	return e.LoadModules(ctx, paths)
}

func (e *Engine) listModules(root string) ([]string, error) {
	filter := e.filter
	if filter == nil {
		f, err := config.DefaultConfig().ModuleFilter()
		if err != nil {
			return nil, err
		}
		filter = f
	}
	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if d.IsDir() {
			if rel != "." && filter.SkipDir(rel) {
				return filepath.SkipDir
			}
			return nil
		}
		if filter.Match(rel) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("mallard: walk directory: %w", err)
	}
	return paths, nil
}

// RemoveModule forgets a module. Modules that referenced it are resolved
// and bound again on the next Resolve.
func (e *Engine) RemoveModule(m project.ModuleName) {
	dependents := e.refs.ReferencingModules([]project.ModuleName{m})
	e.trees.Remove(m)
	e.table.RemoveModule(m)
	e.refs.Remove(m)
	e.states.RemoveModules([]project.ModuleName{m})

	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.modules, m)
	if e.pending != nil {
		delete(e.pending, m)
		for _, d := range dependents {
			e.pending[d] = true
		}
	}
	e.logger.Info("module removed", "module", m.String(), "dependents", len(dependents))
}

// Pending returns the modules the next Resolve will process, sorted.
func (e *Engine) Pending() []project.ModuleName {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pending == nil {
		return e.trees.Modules()
	}
	out := make([]project.ModuleName, 0, len(e.pending))
	for m := range e.pending {
		out = append(out, m)
	}
	sortModules(out)
	return out
}

func sortModules(ms []project.ModuleName) {
	slices.SortFunc(ms, func(a, b project.ModuleName) int {
		switch {
		case a.Less(b):
			return -1
		case b.Less(a):
			return 1
		}
		return 0
	})
}

func (e *Engine) resolver(n int) resolve.Resolver {
	opts := []resolve.Option{resolve.WithLogger(e.logger)}
	if e.useParallel && n > 1 {
		return resolve.NewParallel(e.trees, e.table, e.states, opts...)
	}
	return resolve.NewSequential(e.trees, e.table, e.states, opts...)
}

// rewind moves modules that already went through a cycle back to Parsed,
// keeping their trees.
func (e *Engine) rewind(ctx context.Context, modules []project.ModuleName) error {
	var stale []project.ModuleName
	for _, m := range modules {
		if st, ok := e.states.ModuleState(m); !ok || st != parsestate.Parsed {
			stale = append(stale, m)
		}
	}
	if len(stale) == 0 {
		return nil
	}
	if err := e.states.ResetModules(ctx, stale); err != nil {
		return err
	}
	if err := e.states.SetModuleStates(ctx, stale, parsestate.Parsing); err != nil {
		return err
	}
	return e.states.SetModuleStates(ctx, stale, parsestate.Parsed)
}

// resolveAndPublish resolves modules with the strategy for their count and
// keeps every project declaration present afterwards.
func (e *Engine) resolveAndPublish(ctx context.Context, modules []project.ModuleName) error {
	if len(modules) == 0 {
		return nil
	}
	if err := e.rewind(ctx, modules); err != nil {
		return err
	}
	if err := e.resolver(len(modules)).ResolveDeclarations(ctx, modules); err != nil {
		return err
	}
	for _, m := range e.trees.Modules() {
		e.table.EnsureProject(m.Project)
	}
	return nil
}

// Resolve resolves declarations of every pending module, widens the set by
// blast radius, and binds references for the whole affected set.
//
// A module whose declaration signature changed pulls in the modules that
// reference it. A module that is new or gained declaration names pulls in
// every module, since a name that was unresolved elsewhere may now bind.
func (e *Engine) Resolve(ctx context.Context) error {
	e.mu.Lock()
	full := e.pending == nil
	e.mu.Unlock()
	pending := e.Pending()
	if len(pending) == 0 {
		return nil
	}

	type before struct {
		sig   uint64
		names map[string]bool
	}
	old := make(map[project.ModuleName]before, len(pending))
	for _, m := range pending {
		if decls := e.table.Module(m); decls != nil {
			old[m] = before{sig: symbols.SignatureHash(decls), names: nameSet(decls)}
		}
	}

	e.logger.Info("resolving", "modules", len(pending), "full", full)
	if err := e.resolveAndPublish(ctx, pending); err != nil {
		return fmt.Errorf("mallard: resolve: %w", err)
	}

	affected := make(map[project.ModuleName]bool, len(pending))
	for _, m := range pending {
		affected[m] = true
	}
	if !full {
		var changed []project.ModuleName
		widen := false
		for _, m := range pending {
			decls := e.table.Module(m)
			prev, ok := old[m]
			switch {
			case !ok:
				widen = true
			case prev.sig != symbols.SignatureHash(decls):
				changed = append(changed, m)
				if gainedNames(prev.names, decls) {
					widen = true
				}
			}
		}
		var blast []project.ModuleName
		if widen {
			blast = e.trees.Modules()
		} else {
			blast = e.refs.ReferencingModules(changed)
		}
		var extra []project.ModuleName
		for _, m := range blast {
			if !affected[m] {
				affected[m] = true
				extra = append(extra, m)
			}
		}
		if len(extra) > 0 {
			e.logger.Debug("blast radius", "changed", len(changed), "extra", len(extra), "widen", widen)
			if err := e.resolveAndPublish(ctx, extra); err != nil {
				return fmt.Errorf("mallard: resolve dependents: %w", err)
			}
		}
	}

	bind := make([]project.ModuleName, 0, len(affected))
	for m := range affected {
		bind = append(bind, m)
	}
	sortModules(bind)
	binder := binding.New(e.trees, e.table, e.refs, e.states, binding.WithLogger(e.logger))
	if err := binder.Bind(ctx, bind); err != nil {
		return fmt.Errorf("mallard: bind: %w", err)
	}

	e.mu.Lock()
	e.pending = make(map[project.ModuleName]bool)
	e.mu.Unlock()
	return nil
}

func nameSet(decls []*symbols.Declaration) map[string]bool {
	out := make(map[string]bool, len(decls))
	for _, d := range decls {
		out[strings.ToLower(d.Name)] = true
	}
	return out
}

func gainedNames(old map[string]bool, decls []*symbols.Declaration) bool {
	for _, d := range decls {
		if !old[strings.ToLower(d.Name)] {
			return true
		}
	}
	return false
}

// Inspect runs the built-in and scripted inspections over the bound
// modules. Results are kept for Persist.
func (e *Engine) Inspect(ctx context.Context) ([]inspection.Result, error) {
	if len(e.trees.Modules()) == 0 {
		return nil, nil
	}
	if st := e.states.Status(); st != parsestate.Ready {
		return nil, fmt.Errorf("mallard: inspect: state is %s: %w", st, ErrNotReady)
	}
	insps, err := e.Inspections()
	if err != nil {
		return nil, err
	}
	runner := inspection.NewRunner(insps, inspection.WithLogger(e.logger))
	results, err := runner.Run(ctx, inspection.NewSnapshot(e.trees, e.table, e.refs))
	if err != nil {
		return nil, fmt.Errorf("mallard: inspect: %w", err)
	}
	e.mu.Lock()
	e.results = results
	e.mu.Unlock()
	return results, nil
}

// Inspections builds the configured inspection set. Directory scripts
// override embedded scripts of the same name.
func (e *Engine) Inspections() ([]inspection.Inspection, error) {
	var scripted []inspection.Inspection
	seen := make(map[string]int)
	for _, rt := range []*runtime.Runtime{e.builtin, e.user} {
		if rt == nil {
			continue
		}
		list, err := rt.ScriptInspections()
		if err != nil {
			return nil, fmt.Errorf("mallard: inspections: %w", err)
		}
		for _, s := range list {
			key := strings.ToLower(s.Name())
			if i, ok := seen[key]; ok {
				scripted[i] = s
				continue
			}
			seen[key] = len(scripted)
			scripted = append(scripted, s)
		}
	}
	settings := e.settings
	settings.Logger = e.logger
	insps, err := inspection.Builtin().Build(settings, scripted...)
	if err != nil {
		return nil, fmt.Errorf("mallard: inspections: %w", err)
	}
	return insps, nil
}

// Results returns the findings of the last Inspect.
func (e *Engine) Results() []inspection.Result {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.results)
}

// Edit is the new text of one module after a refactoring.
type Edit struct {
	Module project.ModuleName
	Path   string
	Text   string
}

// DeleteDeclarations removes the declarations with ids from their modules.
// Every target is validated before any edit. The edited modules are
// reloaded and pending resolution; writing them back is up to the caller.
func (e *Engine) DeleteDeclarations(ctx context.Context, ids []symbols.ID) ([]Edit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	targets := make([]*symbols.Declaration, 0, len(ids))
	for _, id := range ids {
		d, ok := e.table.Get(id)
		if !ok {
			return nil, fmt.Errorf("mallard: delete %s: %w", id, ErrUnknownDeclaration)
		}
		targets = append(targets, d)
	}

	session := rewrite.NewSession(e.trees, rewrite.WithLogger(e.logger))
	deleter := refactor.NewDeleter(refactor.WithDefaultMemberPolicy(e.policy), refactor.WithLogger(e.logger))
	if err := deleter.Delete(targets, session); err != nil {
		return nil, fmt.Errorf("mallard: delete: %w", err)
	}

	var edits []Edit
	err := session.Commit(func(m project.ModuleName, text string) error {
		path, _ := e.ModulePath(m)
		edits = append(edits, Edit{Module: m, Path: path, Text: text})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("mallard: delete: %w", err)
	}

	for _, ed := range edits {
		ctype := project.StandardModule
		e.mu.Lock()
		if info := e.modules[ed.Module]; info != nil {
			ctype = info.ctype
		}
		e.mu.Unlock()
		item, skip, err := e.prepareModule(ctx, ed.Module, ctype, ed.Path, ed.Text)
		if err != nil {
			return nil, err
		}
		if skip {
			continue
		}
		item.tree = syntax.Parse(item.module, item.ctype, ed.Text)
		if err := e.commitTree(ctx, item); err != nil {
			return nil, err
		}
	}
	return edits, nil
}

// DeclarationsNamed returns in-memory declarations whose name or
// qualified name matches, case-insensitively.
func (e *Engine) DeclarationsNamed(name string) []*symbols.Declaration {
	var out []*symbols.Declaration
	for _, d := range e.table.All() {
		if strings.EqualFold(d.Name, name) || strings.EqualFold(d.QualifiedName, name) {
			out = append(out, d)
		}
	}
	return out
}
