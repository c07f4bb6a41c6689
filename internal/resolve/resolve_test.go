package resolve

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/mallard/internal/parsestate"
	"github.com/jward/mallard/internal/project"
	"github.com/jward/mallard/internal/symbols"
	"github.com/jward/mallard/internal/syntax"
)

const moduleSrc = `Option Explicit

'@Ignore ProcedureNotUsed
Private Sub Helper(ByVal count As Long)
    Dim i As Long, total As Long
    Const LIMIT = 10
End Sub

Public Function Answer() As Long
    Answer = 42
End Function

Public Enum Color
    Red
    Green
End Enum
`

type fixture struct {
	trees   *syntax.Store
	table   *symbols.Table
	states  *parsestate.Manager
	modules []project.ModuleName
}

func newFixture(t *testing.T, n int) *fixture {
	t.Helper()
	f := &fixture{
		trees:  syntax.NewStore(),
		table:  symbols.NewTable(),
		states: parsestate.NewManager(),
	}
	for i := range n {
		m := project.NewModuleName("VBAProject", fmt.Sprintf("Module%d", i))
		f.trees.Put(syntax.Parse(m, project.StandardModule, moduleSrc))
		f.modules = append(f.modules, m)
	}
	require.NoError(t, f.states.SetModuleStates(context.Background(), f.modules, parsestate.Parsed))
	return f
}

type declSummary struct {
	ID, Parent, Qualified, Kind string
}

func summarize(tbl *symbols.Table) []declSummary {
	var out []declSummary
	for _, d := range tbl.All() {
		out = append(out, declSummary{d.ID.String(), d.ParentID.String(), d.QualifiedName, d.Kind.String()})
	}
	return out
}

func TestResolve_EmptyInputIsNoop(t *testing.T) {
	t.Parallel()
	for _, strategy := range []string{"parallel", "sequential"} {
		t.Run(strategy, func(t *testing.T) {
			f := newFixture(t, 0)
			events := 0
			f.states.Subscribe(func(parsestate.Event) { events++ })
			f.table.EnsureProject("VBAProject")

			var r Resolver = NewParallel(f.trees, f.table, f.states)
			if strategy == "sequential" {
				r = NewSequential(f.trees, f.table, f.states)
			}
			require.NoError(t, r.ResolveDeclarations(context.Background(), nil))
			assert.Zero(t, events)
			assert.Equal(t, 1, f.table.Len(), "project declarations are not cleared")
			assert.Equal(t, parsestate.Pending, f.states.Status())
		})
	}
}

func TestResolve_StrategiesAgree(t *testing.T) {
	t.Parallel()
	par := newFixture(t, 12)
	seq := newFixture(t, 12)

	require.NoError(t, NewParallel(par.trees, par.table, par.states).ResolveDeclarations(context.Background(), par.modules))
	require.NoError(t, NewSequential(seq.trees, seq.table, seq.states).ResolveDeclarations(context.Background(), seq.modules))

	assert.Equal(t, summarize(seq.table), summarize(par.table))
	assert.Equal(t, parsestate.ResolvedDeclarations, par.states.Status())
	assert.Equal(t, parsestate.ResolvedDeclarations, seq.states.Status())
}

func TestCollect_OrdinalsAndAnnotations(t *testing.T) {
	t.Parallel()
	f := newFixture(t, 1)
	require.NoError(t, NewSequential(f.trees, f.table, f.states).ResolveDeclarations(context.Background(), f.modules))

	decls := f.table.Module(f.modules[0])
	var names []string
	for i, d := range decls {
		assert.Equal(t, i, d.ID.Ordinal)
		names = append(names, d.Kind.String()+":"+d.Name)
	}
	assert.Equal(t, []string{
		"ProceduralModule:Module0",
		"Procedure:Helper",
		"Function:Answer",
		"Enumeration:Color",
		"EnumerationMember:Red",
		"EnumerationMember:Green",
		"Parameter:count",
		"Variable:i",
		"Variable:total",
		"Constant:LIMIT",
	}, names)

	helper := decls[1]
	assert.Equal(t, symbols.Private, helper.Accessibility)
	require.Len(t, helper.Annotations, 1)
	assert.Equal(t, "Ignore", helper.Annotations[0].Name)
	assert.Equal(t, []string{"ProcedureNotUsed"}, helper.Annotations[0].Args)
	assert.Equal(t, 4, helper.NameSpan.StartLine)

	assert.Equal(t, "VBAProject.Module0.Answer", decls[2].QualifiedName)
	assert.Equal(t, "Long", decls[2].AsType)
	assert.Equal(t, helper.ID, decls[7].ParentID)
	assert.Equal(t, "VBAProject.Module0.Helper.i", decls[7].QualifiedName)

	proj, ok := f.table.Get(decls[0].ParentID)
	require.True(t, ok)
	assert.Equal(t, symbols.Project, proj.Kind)
}

func TestParallel_MissingTreeForcesResolverError(t *testing.T) {
	t.Parallel()
	f := newFixture(t, 3)
	missing := project.NewModuleName("VBAProject", "Ghost")
	modules := append(f.modules, missing)

	err := NewParallel(f.trees, f.table, f.states).ResolveDeclarations(context.Background(), modules)
	require.Error(t, err)

	var rerr *ResolutionError
	require.ErrorAs(t, err, &rerr)
	require.Len(t, rerr.Causes, 1)
	assert.Equal(t, missing, rerr.Causes[0].Module)
	assert.ErrorIs(t, err, ErrMissingParseTree)
	assert.Equal(t, parsestate.ResolverError, f.states.Status())
	assert.Contains(t, err.Error(), "had 1 error(s)")

	// The healthy modules were still published.
	for _, m := range f.modules {
		assert.True(t, f.table.HasModule(m))
	}
}

func TestSequential_MissingTreeStopsAtFailure(t *testing.T) {
	t.Parallel()
	f := newFixture(t, 2)
	missing := project.NewModuleName("VBAProject", "Ghost")
	modules := []project.ModuleName{f.modules[0], missing, f.modules[1]}

	err := NewSequential(f.trees, f.table, f.states).ResolveDeclarations(context.Background(), modules)
	var merr *ModuleError
	require.ErrorAs(t, err, &merr)
	assert.Equal(t, missing, merr.Module)
	assert.ErrorIs(t, err, ErrMissingParseTree)
	assert.Equal(t, parsestate.ResolverError, f.states.Status())
	assert.True(t, f.table.HasModule(f.modules[0]))
	assert.False(t, f.table.HasModule(f.modules[1]))
}

func TestResolve_CancelledBeforeStart(t *testing.T) {
	t.Parallel()
	for _, strategy := range []string{"parallel", "sequential"} {
		t.Run(strategy, func(t *testing.T) {
			f := newFixture(t, 2)
			ctx, cancel := context.WithCancel(context.Background())
			cancel()

			var r Resolver = NewParallel(f.trees, f.table, f.states)
			if strategy == "sequential" {
				r = NewSequential(f.trees, f.table, f.states)
			}
			err := r.ResolveDeclarations(ctx, f.modules)
			require.ErrorIs(t, err, context.Canceled)
			assert.Equal(t, parsestate.Parsed, f.states.Status(), "no transition on cancellation")
		})
	}
}

// cancellingSource cancels the pass the first time a tree is requested.
type cancellingSource struct {
	TreeSource
	cancel context.CancelFunc
}

func (c cancellingSource) ParseTree(m project.ModuleName) (*syntax.Tree, bool) {
	c.cancel()
	return c.TreeSource.ParseTree(m)
}

func TestResolve_CancelledDuringPass(t *testing.T) {
	t.Parallel()
	for _, strategy := range []string{"parallel", "sequential"} {
		t.Run(strategy, func(t *testing.T) {
			f := newFixture(t, 4)
			ctx, cancel := context.WithCancel(context.Background())
			src := cancellingSource{TreeSource: f.trees, cancel: cancel}

			var r Resolver = NewParallel(src, f.table, f.states)
			if strategy == "sequential" {
				r = NewSequential(src, f.table, f.states)
			}
			err := r.ResolveDeclarations(ctx, f.modules)
			require.True(t, errors.Is(err, context.Canceled), "got %v", err)

			var rerr *ResolutionError
			assert.False(t, errors.As(err, &rerr), "pure cancellation is not wrapped")
			assert.NotEqual(t, parsestate.ResolverError, f.states.Status())
		})
	}
}
