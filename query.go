package mallard

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jward/mallard/internal/store"
	"github.com/jward/mallard/internal/symbols"
)

// ErrUnknownKind is returned when a declaration kind filter names no kind.
var ErrUnknownKind = errors.New("mallard: unknown declaration kind")

// QueryBuilder answers questions about the last persisted snapshot.
type QueryBuilder struct {
	store *store.Store
}

// NewQueryBuilder returns a QueryBuilder over an existing store.
func NewQueryBuilder(s *Store) *QueryBuilder {
	return &QueryBuilder{store: s}
}

// Query returns a QueryBuilder over the engine's store. Results reflect
// the snapshot written by the most recent Persist.
func (e *Engine) Query() *QueryBuilder {
	return &QueryBuilder{store: e.store}
}

// Location is a source range inside a module.
type Location struct {
	Module    string
	Path      string
	StartLine int
	StartCol  int
	EndLine   int
	EndCol    int
}

// Modules lists the stored modules ordered by project and component.
func (q *QueryBuilder) Modules() ([]*Module, error) {
	mods, err := q.store.Modules()
	if err != nil {
		return nil, fmt.Errorf("modules: %w", err)
	}
	return mods, nil
}

// Declarations lists declarations of the given kind, or all declarations
// when kind is empty. Kind names match case-insensitively.
func (q *QueryBuilder) Declarations(kind string) ([]*Declaration, error) {
	if kind != "" {
		k, ok := symbols.ParseKind(kind)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
		}
		kind = k.String()
	}
	decls, err := q.store.DeclarationsByKind(kind)
	if err != nil {
		return nil, fmt.Errorf("declarations: %w", err)
	}
	return decls, nil
}

// DeclarationsNamed lists declarations whose name equals name, ignoring case.
func (q *QueryBuilder) DeclarationsNamed(name string) ([]*Declaration, error) {
	decls, err := q.store.DeclarationsByName(name)
	if err != nil {
		return nil, fmt.Errorf("declarations named: %w", err)
	}
	return decls, nil
}

// Declaration returns the declaration stored under id, or nil.
func (q *QueryBuilder) Declaration(id symbols.ID) (*Declaration, error) {
	d, err := q.store.DeclarationByKey(id.String())
	if err != nil {
		return nil, fmt.Errorf("declaration %s: %w", id, err)
	}
	return d, nil
}

// Annotations lists the annotations attached to a stored declaration.
func (q *QueryBuilder) Annotations(id symbols.ID) ([]*Annotation, error) {
	d, err := q.Declaration(id)
	if err != nil || d == nil {
		return nil, err
	}
	anns, err := q.store.AnnotationsByDeclaration(d.ID)
	if err != nil {
		return nil, fmt.Errorf("annotations %s: %w", id, err)
	}
	return anns, nil
}

// ReferencesTo returns the locations of every bound reference to id.
func (q *QueryBuilder) ReferencesTo(id symbols.ID) ([]Location, error) {
	refs, err := q.store.ReferencesTo(id.String())
	if err != nil {
		return nil, fmt.Errorf("references to %s: %w", id, err)
	}
	mods, err := q.moduleIndex()
	if err != nil {
		return nil, fmt.Errorf("references to %s: %w", id, err)
	}
	locations := make([]Location, 0, len(refs))
	for _, r := range refs {
		loc := Location{StartLine: r.StartLine, StartCol: r.StartCol, EndLine: r.EndLine, EndCol: r.EndCol}
		if m, ok := mods[r.ModuleID]; ok {
			loc.Module = m.Key()
			loc.Path = m.Path
		}
		locations = append(locations, loc)
	}
	return locations, nil
}

// DeclarationAt returns the innermost declaration whose span contains the
// 1-based position in module ("Project.Component" or a bare component
// name). It returns nil when nothing is declared there.
func (q *QueryBuilder) DeclarationAt(module string, line, col int) (*Declaration, error) {
	m, err := q.lookupModule(module)
	if err != nil {
		return nil, fmt.Errorf("declaration at: %w", err)
	}
	if m == nil {
		return nil, nil
	}
	d, err := q.store.DeclarationAt(m.ID, line, col)
	if err != nil {
		return nil, fmt.Errorf("declaration at: %w", err)
	}
	return d, nil
}

// DefinitionAt returns the location of the declaration a reference at the
// given position binds to. It returns nil when no reference covers it.
func (q *QueryBuilder) DefinitionAt(module string, line, col int) (*Location, error) {
	m, err := q.lookupModule(module)
	if err != nil {
		return nil, fmt.Errorf("definition at: %w", err)
	}
	if m == nil {
		return nil, nil
	}

	var targetKey string
	err = q.store.DB().QueryRow(
		`SELECT target_key FROM references_
		 WHERE module_id = ? AND start_line <= ? AND end_line >= ?
		   AND (start_line < ? OR (start_line = ? AND start_col <= ?))
		   AND (end_line > ? OR (end_line = ? AND end_col > ?))
		 ORDER BY (end_line - start_line), start_col DESC
		 LIMIT 1`,
		m.ID, line, line,
		line, line, col,
		line, line, col,
	).Scan(&targetKey)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("definition at: %w", err)
	}
	return q.declarationLocation(targetKey)
}

// Findings lists every stored finding ordered by module and position.
func (q *QueryBuilder) Findings() ([]*Finding, error) {
	fs, err := q.store.Findings(0)
	if err != nil {
		return nil, fmt.Errorf("findings: %w", err)
	}
	return fs, nil
}

// FindingsIn lists the stored findings for one module.
func (q *QueryBuilder) FindingsIn(module string) ([]*Finding, error) {
	m, err := q.lookupModule(module)
	if err != nil {
		return nil, fmt.Errorf("findings in: %w", err)
	}
	if m == nil {
		return nil, nil
	}
	fs, err := q.store.Findings(m.ID)
	if err != nil {
		return nil, fmt.Errorf("findings in: %w", err)
	}
	return fs, nil
}

// Location returns where the declaration stored under id is declared.
func (q *QueryBuilder) Location(id symbols.ID) (*Location, error) {
	return q.declarationLocation(id.String())
}

func (q *QueryBuilder) declarationLocation(key string) (*Location, error) {
	d, err := q.store.DeclarationByKey(key)
	if err != nil {
		return nil, fmt.Errorf("declaration location %s: %w", key, err)
	}
	if d == nil {
		return nil, nil
	}
	mods, err := q.moduleIndex()
	if err != nil {
		return nil, fmt.Errorf("declaration location %s: %w", key, err)
	}
	loc := &Location{StartLine: d.StartLine, StartCol: d.StartCol, EndLine: d.EndLine, EndCol: d.EndCol}
	if m, ok := mods[d.ModuleID]; ok {
		loc.Module = m.Key()
		loc.Path = m.Path
	}
	return loc, nil
}

// lookupModule accepts "Project.Component" or a component name. A bare
// component name must be unambiguous across projects.
func (q *QueryBuilder) lookupModule(name string) (*Module, error) {
	if proj, comp, ok := strings.Cut(name, "."); ok {
		return q.store.ModuleByName(proj, comp)
	}
	mods, err := q.store.Modules()
	if err != nil {
		return nil, err
	}
	var found *Module
	for _, m := range mods {
		if !strings.EqualFold(m.Component, name) {
			continue
		}
		if found != nil {
			return nil, fmt.Errorf("module %q is ambiguous: %s and %s", name, found.Key(), m.Key())
		}
		found = m
	}
	return found, nil
}

func (q *QueryBuilder) moduleIndex() (map[int64]*Module, error) {
	mods, err := q.store.Modules()
	if err != nil {
		return nil, err
	}
	idx := make(map[int64]*Module, len(mods))
	for _, m := range mods {
		idx[m.ID] = m
	}
	return idx, nil
}
