package rewrite

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/mallard/internal/project"
	"github.com/jward/mallard/internal/syntax"
)

var module1 = project.NewModuleName("P", "Module1")

// "a b c d" lexes to a, ws, b, ws, c, ws, d, EOF.
func newRewriter(t *testing.T) *ModuleRewriter {
	t.Helper()
	return NewModuleRewriter(syntax.Parse(module1, project.StandardModule, "a b c d"))
}

func TestRewriter_NoEditsRendersOriginal(t *testing.T) {
	t.Parallel()
	r := newRewriter(t)
	assert.False(t, r.IsDirty())
	assert.Equal(t, "a b c d", r.Render())

	text, ok := r.Text(2, 4)
	require.True(t, ok)
	assert.Equal(t, "b c", text)

	text, ok = r.Text(3, 2)
	require.True(t, ok)
	assert.Empty(t, text, "empty range")

	_, ok = r.Text(5, 2)
	assert.False(t, ok)
}

func TestRewriter_ReplaceAndRemove(t *testing.T) {
	t.Parallel()
	r := newRewriter(t)
	require.NoError(t, r.Replace(2, 2, "B"))
	require.NoError(t, r.Remove(5, 6))
	assert.True(t, r.IsDirty())
	assert.Equal(t, "a B c", r.Render())

	text, ok := r.Text(2, 4)
	require.True(t, ok)
	assert.Equal(t, "B c", text)
}

func TestRewriter_ContainingReplaceSupersedes(t *testing.T) {
	t.Parallel()
	r := newRewriter(t)
	require.NoError(t, r.Replace(2, 2, "B"))
	require.NoError(t, r.InsertBefore(4, "<"))
	require.NoError(t, r.Replace(1, 5, "-"))
	assert.Equal(t, "a-d", r.Render())
}

func TestRewriter_PartialOverlapRejected(t *testing.T) {
	t.Parallel()
	r := newRewriter(t)
	require.NoError(t, r.Replace(2, 4, "X"))

	err := r.Replace(4, 6, "Y")
	require.ErrorIs(t, err, ErrOverlappingEdit)
	err = r.InsertBefore(3, "Z")
	require.ErrorIs(t, err, ErrOverlappingEdit)
	assert.Equal(t, "a X d", r.Render(), "rejected edits leave no trace")
}

func TestRewriter_InsertBefore(t *testing.T) {
	t.Parallel()
	r := newRewriter(t)
	require.NoError(t, r.InsertBefore(0, ">"))
	require.NoError(t, r.Replace(2, 2, "B"))
	require.NoError(t, r.InsertBefore(2, "["))
	require.NoError(t, r.InsertBefore(7, "!"))
	assert.Equal(t, ">a [B c d!", r.Render())
}

func TestRewriter_InvalidRange(t *testing.T) {
	t.Parallel()
	r := newRewriter(t)
	for _, rng := range [][2]int{{-1, 0}, {3, 2}, {0, 7}} {
		err := r.Replace(rng[0], rng[1], "")
		assert.ErrorIs(t, err, ErrInvalidRange, "range %v", rng)
	}
	assert.ErrorIs(t, r.InsertBefore(9, ""), ErrInvalidRange)
	assert.ErrorIs(t, r.RemoveNode(nil), ErrInvalidRange)
}

type treeMap map[project.ModuleName]*syntax.Tree

func (m treeMap) ParseTree(name project.ModuleName) (*syntax.Tree, bool) {
	t, ok := m[name]
	return t, ok
}

func TestSession(t *testing.T) {
	t.Parallel()
	module2 := project.NewModuleName("P", "Module2")
	trees := treeMap{
		module1: syntax.Parse(module1, project.StandardModule, "x = 1\n"),
		module2: syntax.Parse(module2, project.StandardModule, "y = 2\n"),
	}
	s := NewSession(trees)
	assert.NotEqual(t, [16]byte{}, [16]byte(s.ID()))

	r1, err := s.Rewriter(module1)
	require.NoError(t, err)
	again, err := s.Rewriter(module1)
	require.NoError(t, err)
	assert.Same(t, r1, again)
	require.NoError(t, r1.Replace(0, 0, "z"))

	_, err = s.Rewriter(module2)
	require.NoError(t, err)
	assert.Equal(t, []project.ModuleName{module1}, s.Modules(), "untouched rewriters are not dirty")

	text, err := s.Render(module2)
	require.NoError(t, err)
	assert.Equal(t, "y = 2\n", text)

	_, err = s.Rewriter(project.NewModuleName("P", "Missing"))
	require.ErrorIs(t, err, ErrUnknownModule)

	committed := map[project.ModuleName]string{}
	require.NoError(t, s.Commit(func(m project.ModuleName, text string) error {
		committed[m] = text
		return nil
	}))
	assert.Equal(t, map[project.ModuleName]string{module1: "z = 1\n"}, committed)

	boom := errors.New("boom")
	err = s.Commit(func(project.ModuleName, string) error { return boom })
	require.ErrorIs(t, err, boom)
}

func TestRewriter_Rollback(t *testing.T) {
	t.Parallel()
	r := newRewriter(t)
	require.NoError(t, r.Replace(2, 2, "B"))
	require.NoError(t, r.InsertBefore(6, "<"))
	cp := r.Checkpoint()

	require.NoError(t, r.InsertBefore(6, ">"))
	require.NoError(t, r.Replace(3, 5, "_"))
	require.Error(t, r.Replace(5, 6, "x"))
	assert.Equal(t, "a B_<>d", r.Render())

	r.Rollback(cp)
	assert.Equal(t, "a B c <d", r.Render())

	r.Rollback(NewModuleRewriter(r.Tree()).Checkpoint())
	assert.False(t, r.IsDirty())
	require.NoError(t, r.InsertBefore(0, "^"))
	assert.Equal(t, "^a b c d", r.Render())
}
