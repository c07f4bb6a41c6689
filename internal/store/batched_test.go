package store

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBatchedStore_DeclarationsByModule_ReturnsBufferedDeclarations(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	// The module row is real before workers start buffering.
	m := insertTestModule(t, s, "P", "Module1")
	batch := NewBatchedStore(s)

	id1, err := batch.InsertDeclaration(&Declaration{ModuleID: m.ID, Key: "P.Module1#1", Name: "Foo", Kind: "Procedure"})
	require.NoError(t, err)
	assert.Negative(t, id1, "batched IDs should be negative")

	id2, err := batch.InsertDeclaration(&Declaration{ModuleID: m.ID, Key: "P.Module1#2", Name: "Bar", Kind: "Function"})
	require.NoError(t, err)
	assert.Negative(t, id2)
	assert.NotEqual(t, id1, id2)

	decls, err := batch.DeclarationsByModule(m.ID)
	require.NoError(t, err)
	require.Len(t, decls, 2)
	assert.ElementsMatch(t, []string{"Foo", "Bar"}, []string{decls[0].Name, decls[1].Name})
}

func TestBatchedStore_DeclarationsByModule_MergesWithDatabase(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	m := insertTestModule(t, s, "P", "Module1")
	insertTestDeclaration(t, s, m, 1, "Existing", "Procedure")

	batch := NewBatchedStore(s)
	_, err := batch.InsertDeclaration(&Declaration{ModuleID: m.ID, Key: "P.Module1#2", Name: "New", Kind: "Procedure"})
	require.NoError(t, err)

	decls, err := batch.DeclarationsByModule(m.ID)
	require.NoError(t, err)
	require.Len(t, decls, 2)
	assert.ElementsMatch(t, []string{"Existing", "New"}, []string{decls[0].Name, decls[1].Name})
}

func TestBatchedStore_DeclarationsByModule_HidesReplacedRows(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	m := insertTestModule(t, s, "P", "Module1")
	insertTestDeclaration(t, s, m, 1, "Stale", "Procedure")

	batch := NewBatchedStore(s)
	batch.ReplaceModule(m.ID)
	batch.ReplaceModule(m.ID)
	_, err := batch.InsertDeclaration(&Declaration{ModuleID: m.ID, Key: "P.Module1#1", Name: "Fresh", Kind: "Procedure"})
	require.NoError(t, err)

	decls, err := batch.DeclarationsByModule(m.ID)
	require.NoError(t, err)
	require.Len(t, decls, 1)
	assert.Equal(t, "Fresh", decls[0].Name)
	assert.Equal(t, []int64{m.ID}, batch.Replace)
}

func TestBatchedStore_ConcurrentInsertsGetDistinctIDs(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	m := insertTestModule(t, s, "P", "Module1")
	batch := NewBatchedStore(s)

	var wg sync.WaitGroup
	ids := make([]int64, 50)
	for i := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := batch.InsertReference(&Reference{ModuleID: m.ID, TargetKey: "P.Module1#1", Name: "Foo"})
			assert.NoError(t, err)
			ids[i] = id
		}()
	}
	wg.Wait()

	seen := make(map[int64]bool)
	for _, id := range ids {
		assert.Negative(t, id)
		assert.False(t, seen[id], "duplicate fake id %d", id)
		seen[id] = true
	}
	assert.Len(t, batch.References, 50)
}

func TestCommitBatch_RemapsAnnotationsAndReplacesRows(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	m := insertTestModule(t, s, "P", "Module1")
	other := insertTestModule(t, s, "P", "Module2")
	insertTestDeclaration(t, s, m, 1, "Stale", "Procedure")
	_, err := s.InsertReference(&Reference{ModuleID: m.ID, TargetKey: "P.Module2#1", Name: "Old"})
	require.NoError(t, err)

	batch := NewBatchedStore(s)
	batch.ReplaceModule(m.ID)
	fooID, err := batch.InsertDeclaration(&Declaration{ModuleID: m.ID, Key: "P.Module1#1", Name: "Foo", QualifiedName: "P.Module1.Foo", Kind: "Procedure"})
	require.NoError(t, err)
	_, err = batch.InsertAnnotation(&Annotation{DeclarationID: fooID, Name: "Ignore", Arguments: []string{"ProcedureNotUsed"}})
	require.NoError(t, err)
	_, err = batch.InsertReference(&Reference{ModuleID: other.ID, TargetKey: "P.Module1#1", Name: "Foo", Flags: "call"})
	require.NoError(t, err)

	require.NoError(t, s.CommitBatch(batch))

	decls, err := s.DeclarationsByModule(m.ID)
	require.NoError(t, err)
	require.Len(t, decls, 1)
	assert.Equal(t, "Foo", decls[0].Name)
	assert.Positive(t, decls[0].ID)

	anns, err := s.AnnotationsByDeclaration(decls[0].ID)
	require.NoError(t, err)
	require.Len(t, anns, 1)
	assert.Equal(t, []string{"ProcedureNotUsed"}, anns[0].Arguments)

	refs, err := s.ReferencesByModule(m.ID)
	require.NoError(t, err)
	assert.Empty(t, refs, "replaced module's old references are gone")

	refs, err = s.ReferencesTo("P.Module1#1")
	require.NoError(t, err)
	require.Len(t, refs, 1)
	assert.Equal(t, other.ID, refs[0].ModuleID)
	assert.Equal(t, "P.Module1", refs[0].TargetModule)
}

func TestCommitBatch_RollsBackOnFailure(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	m := insertTestModule(t, s, "P", "Module1")

	batch := NewBatchedStore(s)
	_, err := batch.InsertDeclaration(&Declaration{ModuleID: m.ID, Key: "P.Module1#1", Name: "Foo", QualifiedName: "Foo", Kind: "Procedure"})
	require.NoError(t, err)
	_, err = batch.InsertDeclaration(&Declaration{ModuleID: m.ID, Key: "P.Module1#1", Name: "Dup", QualifiedName: "Dup", Kind: "Procedure"})
	require.NoError(t, err)

	require.Error(t, s.CommitBatch(batch))

	decls, err := s.DeclarationsByModule(m.ID)
	require.NoError(t, err)
	assert.Empty(t, decls)
}

func TestCommitBatch_UnknownAnnotationTarget(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	batch := NewBatchedStore(s)
	_, err := batch.InsertAnnotation(&Annotation{DeclarationID: -42, Name: "Ignore"})
	require.NoError(t, err)
	require.ErrorContains(t, s.CommitBatch(batch), "unknown declaration")
}
