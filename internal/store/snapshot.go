package store

import (
	"database/sql"
	"fmt"
	"strings"
)

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

// --- Module operations ---

// UpsertModule inserts m or updates the row with the same project and
// component, setting m.ID either way.
func (s *Store) UpsertModule(m *Module) (int64, error) {
	_, err := s.db.Exec(
		`INSERT INTO modules (project, component, component_type, path, content_hash, signature_hash, last_indexed)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (project, component) DO UPDATE SET
		   component_type = excluded.component_type,
		   path = excluded.path,
		   content_hash = excluded.content_hash,
		   signature_hash = excluded.signature_hash,
		   last_indexed = excluded.last_indexed`,
		m.Project, m.Component, m.ComponentType, m.Path, m.ContentHash, m.SignatureHash, m.LastIndexed,
	)
	if err != nil {
		return 0, fmt.Errorf("upsert module: %w", err)
	}
	var id int64
	err = s.db.QueryRow(
		"SELECT id FROM modules WHERE project = ? AND component = ?", m.Project, m.Component,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert module: id: %w", err)
	}
	m.ID = id
	return id, nil
}

const moduleCols = `id, project, component, component_type, COALESCE(path, ''),
	COALESCE(content_hash, ''), COALESCE(signature_hash, ''), last_indexed`

func scanModule(scanner interface{ Scan(...any) error }) (*Module, error) {
	m := &Module{}
	var indexed sql.NullTime
	err := scanner.Scan(&m.ID, &m.Project, &m.Component, &m.ComponentType, &m.Path,
		&m.ContentHash, &m.SignatureHash, &indexed)
	if err != nil {
		return nil, err
	}
	m.LastIndexed = indexed.Time
	return m, nil
}

// ModuleByName returns nil, nil when the module is not stored. Names match
// case-insensitively.
func (s *Store) ModuleByName(projectName, component string) (*Module, error) {
	m, err := scanModule(s.db.QueryRow(
		"SELECT "+moduleCols+" FROM modules WHERE project = ? COLLATE NOCASE AND component = ? COLLATE NOCASE",
		projectName, component,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("module by name: %w", err)
	}
	return m, nil
}

// Modules returns every stored module ordered by project and component.
func (s *Store) Modules() ([]*Module, error) {
	rows, err := s.db.Query("SELECT " + moduleCols + " FROM modules ORDER BY project, component")
	if err != nil {
		return nil, fmt.Errorf("modules: %w", err)
	}
	defer rows.Close()
	var mods []*Module
	for rows.Next() {
		m, err := scanModule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan module: %w", err)
		}
		mods = append(mods, m)
	}
	return mods, rows.Err()
}

// DeleteModule removes a module and, by cascade, everything recorded for it.
func (s *Store) DeleteModule(id int64) error {
	if _, err := s.db.Exec("DELETE FROM modules WHERE id = ?", id); err != nil {
		return fmt.Errorf("delete module: %w", err)
	}
	return nil
}

// --- Declaration operations ---

func (s *Store) InsertDeclaration(d *Declaration) (int64, error) {
	id, err := insertDeclarationTx(s.db, d)
	if err != nil {
		return 0, fmt.Errorf("insert declaration: %w", err)
	}
	return id, nil
}

func insertDeclarationTx(ex execer, d *Declaration) (int64, error) {
	res, err := ex.Exec(
		`INSERT INTO declarations (module_id, key, parent_key, name, qualified_name, kind,
			accessibility, as_type, is_array, start_line, start_col, end_line, end_col, name_line, name_col)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ModuleID, d.Key, d.ParentKey, d.Name, d.QualifiedName, d.Kind,
		d.Accessibility, d.AsType, d.IsArray, d.StartLine, d.StartCol, d.EndLine, d.EndCol, d.NameLine, d.NameCol,
	)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	d.ID = id
	return id, nil
}

// DeclarationCols is the column list for declaration queries.
const DeclarationCols = `id, module_id, key, COALESCE(parent_key, ''), name, qualified_name, kind,
	COALESCE(accessibility, ''), COALESCE(as_type, ''), is_array,
	start_line, start_col, end_line, end_col, name_line, name_col`

func scanDeclaration(scanner interface{ Scan(...any) error }) (*Declaration, error) {
	d := &Declaration{}
	err := scanner.Scan(
		&d.ID, &d.ModuleID, &d.Key, &d.ParentKey, &d.Name, &d.QualifiedName, &d.Kind,
		&d.Accessibility, &d.AsType, &d.IsArray,
		&d.StartLine, &d.StartCol, &d.EndLine, &d.EndCol, &d.NameLine, &d.NameCol,
	)
	if err != nil {
		return nil, err
	}
	return d, nil
}

func (s *Store) queryDeclarations(query string, args ...any) ([]*Declaration, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var decls []*Declaration
	for rows.Next() {
		d, err := scanDeclaration(rows)
		if err != nil {
			return nil, fmt.Errorf("scan declaration: %w", err)
		}
		decls = append(decls, d)
	}
	return decls, rows.Err()
}

func (s *Store) DeclarationsByModule(moduleID int64) ([]*Declaration, error) {
	return s.queryDeclarations("SELECT "+DeclarationCols+" FROM declarations WHERE module_id = ? ORDER BY id", moduleID)
}

// DeclarationsByName matches names case-insensitively.
func (s *Store) DeclarationsByName(name string) ([]*Declaration, error) {
	return s.queryDeclarations("SELECT "+DeclarationCols+" FROM declarations WHERE name = ? COLLATE NOCASE ORDER BY id", name)
}

// DeclarationsByKind returns every declaration of kind, or every
// declaration when kind is empty.
func (s *Store) DeclarationsByKind(kind string) ([]*Declaration, error) {
	if kind == "" {
		return s.queryDeclarations("SELECT " + DeclarationCols + " FROM declarations ORDER BY id")
	}
	return s.queryDeclarations("SELECT "+DeclarationCols+" FROM declarations WHERE kind = ? ORDER BY id", kind)
}

// DeclarationByKey returns nil, nil when no declaration has key.
func (s *Store) DeclarationByKey(key string) (*Declaration, error) {
	d, err := scanDeclaration(s.db.QueryRow("SELECT "+DeclarationCols+" FROM declarations WHERE key = ?", key))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("declaration by key: %w", err)
	}
	return d, nil
}

// DeclarationAt returns the innermost declaration of the module whose span
// contains line:col, or nil when none does. Spans are 1-based and
// end-inclusive.
func (s *Store) DeclarationAt(moduleID int64, line, col int) (*Declaration, error) {
	d, err := scanDeclaration(s.db.QueryRow(
		"SELECT "+DeclarationCols+` FROM declarations
		 WHERE module_id = ?
		   AND (start_line < ? OR (start_line = ? AND start_col <= ?))
		   AND (end_line > ? OR (end_line = ? AND end_col >= ?))
		 ORDER BY (end_line - start_line) ASC, start_line DESC, start_col DESC, (end_col - start_col) ASC
		 LIMIT 1`,
		moduleID, line, line, col, line, line, col,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("declaration at: %w", err)
	}
	return d, nil
}

// --- Annotation operations ---

func (s *Store) InsertAnnotation(a *Annotation) (int64, error) {
	id, err := insertAnnotationTx(s.db, a)
	if err != nil {
		return 0, fmt.Errorf("insert annotation: %w", err)
	}
	return id, nil
}

func insertAnnotationTx(ex execer, a *Annotation) (int64, error) {
	res, err := ex.Exec(
		"INSERT INTO annotations (declaration_id, name, arguments) VALUES (?, ?, ?)",
		a.DeclarationID, a.Name, marshalArguments(a.Arguments),
	)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	a.ID = id
	return id, nil
}

func (s *Store) AnnotationsByDeclaration(declarationID int64) ([]*Annotation, error) {
	rows, err := s.db.Query(
		"SELECT id, declaration_id, name, COALESCE(arguments, '') FROM annotations WHERE declaration_id = ? ORDER BY id",
		declarationID,
	)
	if err != nil {
		return nil, fmt.Errorf("annotations by declaration: %w", err)
	}
	defer rows.Close()
	var anns []*Annotation
	for rows.Next() {
		a := &Annotation{}
		var args string
		if err := rows.Scan(&a.ID, &a.DeclarationID, &a.Name, &args); err != nil {
			return nil, fmt.Errorf("scan annotation: %w", err)
		}
		a.Arguments = unmarshalArguments(args)
		anns = append(anns, a)
	}
	return anns, rows.Err()
}

// --- Reference operations ---

func (s *Store) InsertReference(r *Reference) (int64, error) {
	id, err := insertReferenceTx(s.db, r)
	if err != nil {
		return 0, fmt.Errorf("insert reference: %w", err)
	}
	return id, nil
}

func insertReferenceTx(ex execer, r *Reference) (int64, error) {
	r.TargetModule = keyModule(r.TargetKey)
	res, err := ex.Exec(
		`INSERT INTO references_ (module_id, target_module, target_key, scope_key, name, flags,
			start_line, start_col, end_line, end_col)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ModuleID, r.TargetModule, r.TargetKey, r.ScopeKey, r.Name, r.Flags,
		r.StartLine, r.StartCol, r.EndLine, r.EndCol,
	)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	r.ID = id
	return id, nil
}

const referenceCols = `id, module_id, target_module, target_key, COALESCE(scope_key, ''), name,
	COALESCE(flags, ''), start_line, start_col, end_line, end_col`

func (s *Store) queryReferences(query string, args ...any) ([]*Reference, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var refs []*Reference
	for rows.Next() {
		r := &Reference{}
		if err := rows.Scan(&r.ID, &r.ModuleID, &r.TargetModule, &r.TargetKey, &r.ScopeKey, &r.Name,
			&r.Flags, &r.StartLine, &r.StartCol, &r.EndLine, &r.EndCol); err != nil {
			return nil, fmt.Errorf("scan reference: %w", err)
		}
		refs = append(refs, r)
	}
	return refs, rows.Err()
}

// ReferencesTo returns the references bound to the declaration with key.
func (s *Store) ReferencesTo(targetKey string) ([]*Reference, error) {
	refs, err := s.queryReferences(
		"SELECT "+referenceCols+" FROM references_ WHERE target_key = ? ORDER BY module_id, start_line, start_col",
		targetKey,
	)
	if err != nil {
		return nil, fmt.Errorf("references to: %w", err)
	}
	return refs, nil
}

func (s *Store) ReferencesByModule(moduleID int64) ([]*Reference, error) {
	refs, err := s.queryReferences(
		"SELECT "+referenceCols+" FROM references_ WHERE module_id = ? ORDER BY start_line, start_col",
		moduleID,
	)
	if err != nil {
		return nil, fmt.Errorf("references by module: %w", err)
	}
	return refs, nil
}

// keyModule returns the "Project.Component" part of a declaration key.
func keyModule(key string) string {
	m, _, _ := strings.Cut(key, "#")
	return m
}

// --- Finding operations ---

func (s *Store) InsertFinding(f *Finding) (int64, error) {
	id, err := insertFindingTx(s.db, f)
	if err != nil {
		return 0, fmt.Errorf("insert finding: %w", err)
	}
	return id, nil
}

func insertFindingTx(ex execer, f *Finding) (int64, error) {
	res, err := ex.Exec(
		`INSERT INTO findings (module_id, inspection, severity, description, target_key, line, col)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		f.ModuleID, f.Inspection, f.Severity, f.Description, f.TargetKey, f.Line, f.Col,
	)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	f.ID = id
	return id, nil
}

// ReplaceFindings swaps the whole findings table for findings in one
// transaction.
func (s *Store) ReplaceFindings(findings []*Finding) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("replace findings: begin: %w", err)
	}
	defer tx.Rollback()
	if _, err := tx.Exec("DELETE FROM findings"); err != nil {
		return fmt.Errorf("replace findings: clear: %w", err)
	}
	for _, f := range findings {
		if _, err := insertFindingTx(tx, f); err != nil {
			return fmt.Errorf("replace findings: %s: %w", f.Inspection, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("replace findings: commit: %w", err)
	}
	return nil
}

// Findings returns stored findings in module, line, column order. A
// non-zero moduleID restricts them to one module.
func (s *Store) Findings(moduleID int64) ([]*Finding, error) {
	query := `SELECT f.id, f.module_id, f.inspection, f.severity, f.description,
		COALESCE(f.target_key, ''), f.line, f.col
		FROM findings f JOIN modules m ON m.id = f.module_id`
	var args []any
	if moduleID != 0 {
		query += " WHERE f.module_id = ?"
		args = append(args, moduleID)
	}
	query += " ORDER BY m.project, m.component, f.line, f.col, f.inspection"
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("findings: %w", err)
	}
	defer rows.Close()
	var out []*Finding
	for rows.Next() {
		f := &Finding{}
		if err := rows.Scan(&f.ID, &f.ModuleID, &f.Inspection, &f.Severity, &f.Description,
			&f.TargetKey, &f.Line, &f.Col); err != nil {
			return nil, fmt.Errorf("scan finding: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// --- Metadata ---

func (s *Store) SetMetadata(key, value string) error {
	_, err := s.db.Exec(
		"INSERT INTO metadata (key, value) VALUES (?, ?) ON CONFLICT (key) DO UPDATE SET value = excluded.value",
		key, value,
	)
	if err != nil {
		return fmt.Errorf("set metadata %s: %w", key, err)
	}
	return nil
}

// Metadata returns "", false, nil for a missing key.
func (s *Store) Metadata(key string) (string, bool, error) {
	var v string
	err := s.db.QueryRow("SELECT value FROM metadata WHERE key = ?", key).Scan(&v)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("metadata %s: %w", key, err)
	}
	return v, true, nil
}
