package symbols

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/mallard/internal/project"
)

func partition(module project.ModuleName, names ...string) []*Declaration {
	moduleDecl := &Declaration{
		ID:   ID{Module: module},
		Name: module.Component,
		Kind: ProceduralModule,
	}
	decls := []*Declaration{moduleDecl}
	for i, name := range names {
		decls = append(decls, &Declaration{
			ID:       ID{Module: module, Ordinal: i + 1},
			ParentID: moduleDecl.ID,
			Name:     name,
			Kind:     Procedure,
		})
	}
	return decls
}

func TestTable_PublishAndGet(t *testing.T) {
	t.Parallel()
	tbl := NewTable()
	mod := project.NewModuleName("P", "Module1")
	tbl.Publish(mod, partition(mod, "Foo", "Bar"))

	d, ok := tbl.Get(ID{Module: mod, Ordinal: 2})
	require.True(t, ok)
	assert.Equal(t, "Bar", d.Name)

	_, ok = tbl.Get(ID{Module: mod, Ordinal: 3})
	assert.False(t, ok)
	_, ok = tbl.Get(ID{})
	assert.False(t, ok)

	assert.Len(t, tbl.Module(mod), 3)
	assert.Equal(t, 3, tbl.Len())

	tbl.Publish(mod, partition(mod, "Baz"))
	assert.Len(t, tbl.Module(mod), 2, "publishing replaces the partition")

	tbl.RemoveModule(mod)
	assert.False(t, tbl.HasModule(mod))
}

func TestTable_EnsureProjectOnce(t *testing.T) {
	t.Parallel()
	tbl := NewTable()

	var wg sync.WaitGroup
	got := make([]*Declaration, 20)
	for i := range got {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got[i] = tbl.EnsureProject("VBAProject")
		}()
	}
	wg.Wait()
	for _, d := range got {
		assert.Same(t, got[0], d)
	}
	assert.Equal(t, Project, got[0].Kind)

	d, ok := tbl.Get(got[0].ID)
	require.True(t, ok)
	assert.Same(t, got[0], d)

	tbl.ClearProjectDeclarations()
	assert.Empty(t, tbl.Projects())
}

func TestTable_ConcurrentPublish(t *testing.T) {
	t.Parallel()
	tbl := NewTable()

	var wg sync.WaitGroup
	for i := range 64 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			mod := project.NewModuleName("P", fmt.Sprintf("Module%d", i))
			tbl.Publish(mod, partition(mod, "A", "B"))
			_ = tbl.All()
		}()
	}
	wg.Wait()

	assert.Len(t, tbl.Modules(), 64)
	assert.Equal(t, 64*3, tbl.Len())
	for _, m := range tbl.Modules() {
		assert.Len(t, tbl.Module(m), 3, "partition %s is complete", m)
	}
}

func TestParseID(t *testing.T) {
	t.Parallel()
	ids := []ID{
		{Module: project.NewModuleName("P", "Module1"), Ordinal: 4},
		{Module: project.ModuleName{Project: "P"}},
	}
	for _, id := range ids {
		got, err := ParseID(id.String())
		require.NoError(t, err)
		assert.Equal(t, id, got)
	}

	_, err := ParseID("P.Module1")
	require.Error(t, err)
	_, err = ParseID("#1")
	require.Error(t, err)
}

func TestReferences_ReplaceAndRemove(t *testing.T) {
	t.Parallel()
	a := project.NewModuleName("P", "A")
	b := project.NewModuleName("P", "B")
	target := ID{Module: a, Ordinal: 1}

	refs := NewReferences()
	refs.Replace(a, []*IdentifierReference{{Declaration: target, Module: a, Name: "Foo"}})
	refs.Replace(b, []*IdentifierReference{
		{Declaration: target, Module: b, Name: "Foo", Flags: Assignment},
		{Declaration: ID{Module: b, Ordinal: 2}, Module: b, Name: "Bar"},
	})

	assert.Len(t, refs.To(target), 2)
	assert.Equal(t, 3, refs.Len())
	assert.Equal(t, []project.ModuleName{b}, refs.ReferencingModules([]project.ModuleName{a}))

	refs.Replace(b, nil)
	assert.Len(t, refs.To(target), 1)
	assert.Empty(t, refs.In(b))

	refs.Remove(a)
	assert.Empty(t, refs.To(target))
	assert.Zero(t, refs.Len())
}

func TestUsageFlags(t *testing.T) {
	t.Parallel()
	f := Assignment | ArrayAccess
	assert.True(t, f.Has(Assignment))
	assert.False(t, f.Has(SetAssignment))
	assert.Equal(t, "assignment,array", f.String())

	ref := &IdentifierReference{Flags: f}
	assert.True(t, ref.IsAssignment())
	assert.True(t, ref.IsArrayAccess())
	assert.False(t, ref.IsInnerRecursiveDefaultMemberAccess())
}

func TestFinder(t *testing.T) {
	t.Parallel()
	tbl := NewTable()
	mod := project.NewModuleName("P", "Module1")
	tbl.EnsureProject("P")
	tbl.Publish(mod, partition(mod, "Foo", "foo2"))

	f := NewFinder(tbl)
	md, ok := f.ModuleDeclaration(mod)
	require.True(t, ok)
	assert.Len(t, f.Children(md.ID), 2)
	assert.Len(t, f.ChildrenNamed(md.ID, "FOO"), 1)
	assert.Len(t, f.Named("foo"), 1)
	assert.Len(t, f.ModulesNamed("p", "module1"), 1)
	assert.Empty(t, f.ModulesNamed("Other", "Module1"))
	_, ok = f.Project("P")
	assert.True(t, ok)
}

func TestSignatureHash_IgnoresBodies(t *testing.T) {
	t.Parallel()
	mod := project.NewModuleName("P", "Module1")
	base := partition(mod, "Foo")
	withLocal := append(partition(mod, "Foo"), &Declaration{
		ID:       ID{Module: mod, Ordinal: 2},
		ParentID: ID{Module: mod, Ordinal: 1},
		Name:     "tmp",
		Kind:     Variable,
	})
	renamed := partition(mod, "Bar")

	assert.Equal(t, SignatureHash(base), SignatureHash(withLocal))
	assert.NotEqual(t, SignatureHash(base), SignatureHash(renamed))
}
