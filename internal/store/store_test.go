package store

import (
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := NewStore(dbPath)
	require.NoError(t, err)
	require.NoError(t, s.Migrate())
	t.Cleanup(func() { s.Close() })
	return s
}

// insertTestModule upserts a standard module and returns it with ID set.
func insertTestModule(t *testing.T, s *Store, projectName, component string) *Module {
	t.Helper()
	m := &Module{
		Project: projectName, Component: component, ComponentType: "StandardModule",
		ContentHash: "abc123", LastIndexed: time.Now().Truncate(time.Second),
	}
	id, err := s.UpsertModule(m)
	require.NoError(t, err)
	require.Positive(t, id)
	return m
}

// insertTestDeclaration inserts a declaration with minimal required fields.
func insertTestDeclaration(t *testing.T, s *Store, m *Module, ordinal int, name, kind string) *Declaration {
	t.Helper()
	d := &Declaration{
		ModuleID: m.ID, Key: m.Key() + "#" + strconv.Itoa(ordinal), ParentKey: m.Key() + "#0",
		Name: name, QualifiedName: m.Key() + "." + name, Kind: kind, Accessibility: "Public",
		StartLine: 1, StartCol: 1, EndLine: 3, EndCol: 7, NameLine: 1, NameCol: 12,
	}
	id, err := s.InsertDeclaration(d)
	require.NoError(t, err)
	require.Positive(t, id)
	return d
}

// =============================================================================
// Schema & Lifecycle
// =============================================================================

func TestMigrate_AllTablesExist(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	expectedTables := []string{
		"modules", "declarations", "annotations", "references_", "findings", "metadata",
	}
	for _, table := range expectedTables {
		var name string
		err := s.db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		require.NoError(t, err, "table %s should exist", table)
		assert.Equal(t, table, name)
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	require.NoError(t, s.Migrate())
}

func TestMigrate_WALMode(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	var mode string
	err := s.db.QueryRow("PRAGMA journal_mode").Scan(&mode)
	require.NoError(t, err)
	assert.Equal(t, "wal", mode)
}

// =============================================================================
// Module operations
// =============================================================================

func TestModule_UpsertAndRetrieve(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	m := insertTestModule(t, s, "VBAProject", "Module1")

	got, err := s.ModuleByName("vbaproject", "MODULE1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, m.ID, got.ID)
	assert.Equal(t, "StandardModule", got.ComponentType)
	assert.Equal(t, "abc123", got.ContentHash)
	assert.Equal(t, "VBAProject.Module1", got.Key())
}

func TestModule_UpsertUpdatesInPlace(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	m := insertTestModule(t, s, "P", "Module1")

	again := &Module{Project: "P", Component: "Module1", ComponentType: "ClassModule", ContentHash: "def456"}
	id, err := s.UpsertModule(again)
	require.NoError(t, err)
	assert.Equal(t, m.ID, id)

	got, err := s.ModuleByName("P", "Module1")
	require.NoError(t, err)
	assert.Equal(t, "ClassModule", got.ComponentType)
	assert.Equal(t, "def456", got.ContentHash)
}

func TestModule_ByNameNotFound(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	got, err := s.ModuleByName("P", "Missing")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestModule_ListOrdered(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	insertTestModule(t, s, "P", "Zeta")
	insertTestModule(t, s, "P", "Alpha")

	mods, err := s.Modules()
	require.NoError(t, err)
	require.Len(t, mods, 2)
	assert.Equal(t, "Alpha", mods[0].Component)
	assert.Equal(t, "Zeta", mods[1].Component)
}

func TestModule_DeleteCascades(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	m := insertTestModule(t, s, "P", "Module1")
	d := insertTestDeclaration(t, s, m, 1, "Foo", "Procedure")
	_, err := s.InsertAnnotation(&Annotation{DeclarationID: d.ID, Name: "Ignore"})
	require.NoError(t, err)

	require.NoError(t, s.DeleteModule(m.ID))

	decls, err := s.DeclarationsByModule(m.ID)
	require.NoError(t, err)
	assert.Empty(t, decls)
	anns, err := s.AnnotationsByDeclaration(d.ID)
	require.NoError(t, err)
	assert.Empty(t, anns)
}

// =============================================================================
// Declaration operations
// =============================================================================

func TestDeclaration_InsertAndQueryByModule(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	m := insertTestModule(t, s, "P", "Module1")

	d := &Declaration{
		ModuleID: m.ID, Key: "P.Module1#1", ParentKey: "P.Module1#0",
		Name: "Items", QualifiedName: "P.Module1.Items", Kind: "Function",
		Accessibility: "Private", AsType: "Collection", IsArray: true,
		StartLine: 4, StartCol: 1, EndLine: 9, EndCol: 12, NameLine: 4, NameCol: 18,
	}
	_, err := s.InsertDeclaration(d)
	require.NoError(t, err)

	decls, err := s.DeclarationsByModule(m.ID)
	require.NoError(t, err)
	require.Len(t, decls, 1)
	assert.Equal(t, *d, *decls[0])
}

func TestDeclaration_QueryByNameIgnoresCase(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	m := insertTestModule(t, s, "P", "Module1")
	insertTestDeclaration(t, s, m, 1, "Foo", "Procedure")
	insertTestDeclaration(t, s, m, 2, "Bar", "Procedure")

	decls, err := s.DeclarationsByName("FOO")
	require.NoError(t, err)
	require.Len(t, decls, 1)
	assert.Equal(t, "Foo", decls[0].Name)
}

func TestDeclaration_QueryByKind(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	m := insertTestModule(t, s, "P", "Module1")
	insertTestDeclaration(t, s, m, 1, "Foo", "Procedure")
	insertTestDeclaration(t, s, m, 2, "Answer", "Function")

	decls, err := s.DeclarationsByKind("Function")
	require.NoError(t, err)
	require.Len(t, decls, 1)
	assert.Equal(t, "Answer", decls[0].Name)

	all, err := s.DeclarationsByKind("")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestDeclaration_ByKey(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	m := insertTestModule(t, s, "P", "Module1")
	insertTestDeclaration(t, s, m, 3, "Foo", "Procedure")

	got, err := s.DeclarationByKey("P.Module1#3")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Foo", got.Name)

	missing, err := s.DeclarationByKey("P.Module1#9")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestDeclaration_KeyIsUnique(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	m := insertTestModule(t, s, "P", "Module1")
	insertTestDeclaration(t, s, m, 1, "Foo", "Procedure")

	_, err := s.InsertDeclaration(&Declaration{ModuleID: m.ID, Key: "P.Module1#1", Name: "Dup", QualifiedName: "Dup", Kind: "Procedure"})
	require.Error(t, err)
}

func TestDeclaration_AtPicksInnermost(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	m := insertTestModule(t, s, "P", "Module1")

	decls := []*Declaration{
		{Key: "P.Module1#0", Name: "Module1", Kind: "ProceduralModule", StartLine: 1, StartCol: 1, EndLine: 20, EndCol: 1},
		{Key: "P.Module1#1", Name: "Foo", Kind: "Procedure", StartLine: 3, StartCol: 1, EndLine: 8, EndCol: 7},
		{Key: "P.Module1#2", Name: "x", Kind: "Variable", StartLine: 4, StartCol: 9, EndLine: 4, EndCol: 9},
	}
	for _, d := range decls {
		d.ModuleID = m.ID
		d.QualifiedName = "P.Module1." + d.Name
		_, err := s.InsertDeclaration(d)
		require.NoError(t, err)
	}

	tests := []struct {
		line, col int
		want      string
	}{
		{4, 9, "x"},
		{4, 5, "Foo"},
		{8, 7, "Foo"},
		{8, 8, "Module1"},
		{12, 1, "Module1"},
	}
	for _, tt := range tests {
		got, err := s.DeclarationAt(m.ID, tt.line, tt.col)
		require.NoError(t, err)
		require.NotNil(t, got, "%d:%d", tt.line, tt.col)
		assert.Equal(t, tt.want, got.Name, "%d:%d", tt.line, tt.col)
	}

	none, err := s.DeclarationAt(m.ID, 30, 1)
	require.NoError(t, err)
	assert.Nil(t, none)
}

// =============================================================================
// Annotation operations
// =============================================================================

func TestAnnotation_RoundTripsArguments(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	m := insertTestModule(t, s, "P", "Module1")
	d := insertTestDeclaration(t, s, m, 1, "Foo", "Procedure")

	_, err := s.InsertAnnotation(&Annotation{DeclarationID: d.ID, Name: "Ignore", Arguments: []string{"ProcedureNotUsed", "FunctionReturnValueNotUsed"}})
	require.NoError(t, err)
	_, err = s.InsertAnnotation(&Annotation{DeclarationID: d.ID, Name: "TestMethod"})
	require.NoError(t, err)

	anns, err := s.AnnotationsByDeclaration(d.ID)
	require.NoError(t, err)
	require.Len(t, anns, 2)
	assert.Equal(t, "Ignore", anns[0].Name)
	assert.Equal(t, []string{"ProcedureNotUsed", "FunctionReturnValueNotUsed"}, anns[0].Arguments)
	assert.Nil(t, anns[1].Arguments)
}

// =============================================================================
// Reference operations
// =============================================================================

func TestReference_InsertAndQuery(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	m1 := insertTestModule(t, s, "P", "Module1")
	m2 := insertTestModule(t, s, "P", "Module2")
	insertTestDeclaration(t, s, m1, 1, "Foo", "Function")

	r := &Reference{
		ModuleID: m2.ID, TargetKey: "P.Module1#1", ScopeKey: "P.Module2#1", Name: "Foo",
		Flags: "call", StartLine: 5, StartCol: 5, EndLine: 5, EndCol: 7,
	}
	_, err := s.InsertReference(r)
	require.NoError(t, err)
	assert.Equal(t, "P.Module1", r.TargetModule)

	refs, err := s.ReferencesTo("P.Module1#1")
	require.NoError(t, err)
	require.Len(t, refs, 1)
	assert.Equal(t, *r, *refs[0])

	byModule, err := s.ReferencesByModule(m2.ID)
	require.NoError(t, err)
	assert.Len(t, byModule, 1)

	none, err := s.ReferencesByModule(m1.ID)
	require.NoError(t, err)
	assert.Empty(t, none)
}

// =============================================================================
// Findings & metadata
// =============================================================================

func TestFindings_ReplaceAndOrder(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	m1 := insertTestModule(t, s, "P", "Module1")
	m2 := insertTestModule(t, s, "P", "Module2")

	require.NoError(t, s.ReplaceFindings([]*Finding{
		{ModuleID: m2.ID, Inspection: "ProcedureNotUsed", Severity: "Suggestion", Description: "b", Line: 1, Col: 1},
		{ModuleID: m1.ID, Inspection: "FunctionReturnValueNotUsed", Severity: "Warning", Description: "a2", Line: 9, Col: 5},
		{ModuleID: m1.ID, Inspection: "ProcedureNotUsed", Severity: "Suggestion", Description: "a1", Line: 2, Col: 5},
	}))

	all, err := s.Findings(0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"a1", "a2", "b"}, []string{all[0].Description, all[1].Description, all[2].Description})

	only, err := s.Findings(m2.ID)
	require.NoError(t, err)
	require.Len(t, only, 1)

	require.NoError(t, s.ReplaceFindings(nil))
	all, err = s.Findings(0)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestMetadata_SetAndGet(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	_, ok, err := s.Metadata("resolved_at")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.SetMetadata("resolved_at", "1"))
	require.NoError(t, s.SetMetadata("resolved_at", "2"))
	v, ok, err := s.Metadata("resolved_at")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "2", v)
}

// =============================================================================
// Blast radius
// =============================================================================

func TestModulesReferencing(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	m1 := insertTestModule(t, s, "P", "Module1")
	m2 := insertTestModule(t, s, "P", "Module2")
	m3 := insertTestModule(t, s, "P", "Module3")
	insertTestDeclaration(t, s, m1, 1, "Foo", "Function")

	for _, r := range []*Reference{
		{ModuleID: m1.ID, TargetKey: "P.Module1#1", Name: "Foo"},
		{ModuleID: m2.ID, TargetKey: "P.Module1#1", Name: "Foo"},
		{ModuleID: m3.ID, TargetKey: "P.Module2#4", Name: "Bar"},
	} {
		_, err := s.InsertReference(r)
		require.NoError(t, err)
	}

	ids, err := s.ModulesReferencing([]string{"P.Module1"})
	require.NoError(t, err)
	assert.Equal(t, []int64{m2.ID}, ids)

	ids, err = s.ModulesReferencing([]string{"P.Module1", "P.Module2"})
	require.NoError(t, err)
	assert.Equal(t, []int64{m3.ID}, ids)

	ids, err = s.ModulesReferencing(nil)
	require.NoError(t, err)
	assert.Nil(t, ids)
}

func TestDeleteModuleData_KeepsModuleRow(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	m := insertTestModule(t, s, "P", "Module1")
	insertTestDeclaration(t, s, m, 1, "Foo", "Procedure")
	_, err := s.InsertReference(&Reference{ModuleID: m.ID, TargetKey: "P.Module1#1", Name: "Foo"})
	require.NoError(t, err)

	require.NoError(t, s.DeleteModuleData([]int64{m.ID}))

	decls, err := s.DeclarationsByModule(m.ID)
	require.NoError(t, err)
	assert.Empty(t, decls)
	refs, err := s.ReferencesByModule(m.ID)
	require.NoError(t, err)
	assert.Empty(t, refs)
	got, err := s.ModuleByName("P", "Module1")
	require.NoError(t, err)
	assert.NotNil(t, got)
}

func TestContentHash(t *testing.T) {
	t.Parallel()
	a := ContentHash("Sub Foo()\nEnd Sub\n")
	assert.Len(t, a, 16)
	assert.Equal(t, a, ContentHash("Sub Foo()\nEnd Sub\n"))
	assert.NotEqual(t, a, ContentHash("Sub Foo()\r\nEnd Sub\r\n"))
	assert.Equal(t, "0000000000000001", FormatHash(1))
}
