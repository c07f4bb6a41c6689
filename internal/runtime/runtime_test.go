package runtime

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/mallard/internal/binding"
	"github.com/jward/mallard/internal/inspection"
	"github.com/jward/mallard/internal/parsestate"
	"github.com/jward/mallard/internal/project"
	"github.com/jward/mallard/internal/resolve"
	"github.com/jward/mallard/internal/store"
	"github.com/jward/mallard/internal/symbols"
	"github.com/jward/mallard/internal/syntax"
	"github.com/jward/mallard/scripts"
)

const moduleSource = `Option Explicit

Public Function Answer() As Long
    Answer = 42
End Function

Public Function Broken() As Long
End Function

Public Sub Idle()
End Sub
`

// newSnapshot parses, resolves and binds moduleSource as Module1.
func newSnapshot(t *testing.T) *inspection.Snapshot {
	t.Helper()
	ctx := context.Background()
	m := project.NewModuleName("VBAProject", "Module1")
	trees := syntax.NewStore()
	trees.Put(syntax.Parse(m, project.StandardModule, moduleSource))
	table := symbols.NewTable()
	refs := symbols.NewReferences()
	states := parsestate.NewManager()
	modules := []project.ModuleName{m}
	require.NoError(t, states.SetModuleStates(ctx, modules, parsestate.Parsed))
	require.NoError(t, resolve.NewSequential(trees, table, states).ResolveDeclarations(ctx, modules))
	require.NoError(t, binding.New(trees, table, refs, states).Bind(ctx, modules))
	return inspection.NewSnapshot(trees, table, refs)
}

func descriptions(results []inspection.Result) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.Description
	}
	return out
}

// --- Script loading ---

func TestRunScript_FromDir(t *testing.T) {
	dir := t.TempDir()
	scriptPath := filepath.Join(dir, "test.risor")
	require.NoError(t, os.WriteFile(scriptPath, []byte(`result := 1 + 1`), 0644))

	rt := NewRuntime(nil, dir)
	require.NoError(t, rt.RunScript(context.Background(), "test.risor", nil))
}

func TestRunScript_Missing(t *testing.T) {
	rt := NewRuntime(nil, t.TempDir())
	err := rt.RunScript(context.Background(), "nonexistent.risor", nil)
	assert.Error(t, err)
}

func TestRunSource_ExtraGlobals(t *testing.T) {
	rt := NewRuntime(nil, "")
	script := `
assert(answer == 42, 'expected 42, got {answer}')
log.Info("checked")
`
	require.NoError(t, rt.RunSource(context.Background(), script, map[string]any{"answer": 42}))
}

func TestRunSource_Error(t *testing.T) {
	rt := NewRuntime(nil, "")
	err := rt.RunSource(context.Background(), `assert(false, "boom")`, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "runtime: script <inline>")
}

func TestInspectionScriptPath(t *testing.T) {
	t.Parallel()
	assert.Equal(t, filepath.Join("inspect", "empty_procedure.risor"), InspectionScriptPath("empty_procedure"))
}

func TestLoadScript_FS(t *testing.T) {
	t.Parallel()
	mapFS := fstest.MapFS{
		"inspect/x.risor": &fstest.MapFile{Data: []byte(`y := 99`)},
	}
	rt := NewRuntime(nil, "", WithRuntimeFS(mapFS))

	got, err := rt.LoadScript("/inspect/x.risor")
	require.NoError(t, err)
	assert.Equal(t, `y := 99`, got)

	_, err = rt.LoadScript("nonexistent.risor")
	assert.Error(t, err)
}

func TestImport_FSImporter(t *testing.T) {
	mapFS := fstest.MapFS{
		"lib_helpers.risor": &fstest.MapFile{Data: []byte(`
func greet(name) {
	return "hello " + name
}
`)},
	}
	rt := NewRuntime(nil, "", WithRuntimeFS(mapFS))

	script := `
import lib_helpers

msg := lib_helpers.greet("world")
assert(msg == "hello world", 'expected "hello world", got ' + msg)
`
	require.NoError(t, rt.RunSource(context.Background(), script, nil))
}

func TestImport_LocalImporter(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "math_utils.risor"), []byte(`
func double(x) {
	return x * 2
}
`), 0644))
	rt := NewRuntime(nil, dir)

	script := `
import math_utils

result := math_utils.double(21)
assert(result == 42, 'expected 42, got {result}')
`
	require.NoError(t, rt.RunSource(context.Background(), script, nil))
}

// --- Snapshot host functions ---

func TestHostFunctions(t *testing.T) {
	snap := newSnapshot(t)
	rt := NewRuntime(nil, "")
	var reported []inspection.Result
	insp := NewScriptInspection(rt, "Probe", "probe.risor")

	script := `
fns := declarations("Function")
assert(len(fns) == 2, 'expected 2 functions, got {len(fns)}')
assert(fns[0]["qualified_name"] == "VBAProject.Module1.Answer", fns[0]["qualified_name"])
assert(fns[0]["accessibility"] == "Public")

refs := references_to(fns[0]["id"])
assert(len(refs) == 1, 'expected 1 reference, got {len(refs)}')
assert(refs[0]["assignment"])
assert(refs[0]["scope"] == fns[0]["id"])

assert(statement_count(fns[0]["id"]) == 1)
assert(statement_count(fns[1]["id"]) == 0)

report({"target": fns[1]["id"], "description": "probe"})
`
	err := rt.RunSource(context.Background(), script, map[string]any{
		"declarations":    makeDeclarationsFn(snap),
		"references_to":   makeReferencesToFn(snap),
		"statement_count": makeStatementCountFn(snap),
		"report": makeReportFn(snap, insp, func(r inspection.Result) {
			reported = append(reported, r)
		}),
	})
	require.NoError(t, err)
	require.Len(t, reported, 1)
	assert.Equal(t, "Probe", reported[0].Inspection)
	assert.Equal(t, "probe", reported[0].Description)
	assert.Equal(t, 7, reported[0].Line)
	assert.Equal(t, inspection.Suggestion, reported[0].Severity)
}

func TestHostFunctions_ReportErrors(t *testing.T) {
	snap := newSnapshot(t)
	rt := NewRuntime(nil, "")
	insp := NewScriptInspection(rt, "Probe", "probe.risor")
	globals := map[string]any{
		"report": makeReportFn(snap, insp, func(inspection.Result) {}),
	}

	assert.Error(t, rt.RunSource(context.Background(), `report({"description": "x"})`, globals))
	assert.Error(t, rt.RunSource(context.Background(), `report({"target": "VBAProject.Module1#99"})`, globals))
	assert.Error(t, rt.RunSource(context.Background(), `report({"target": "bogus"})`, globals))
}

// --- Script inspections ---

func TestInspectionName(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "EmptyProcedure", InspectionName("inspect/empty_procedure.risor"))
	assert.Equal(t, "NonReturningFunction", InspectionName("non-returning_function.risor"))
}

func TestScriptInspections_Embedded(t *testing.T) {
	rt := NewRuntime(nil, "", WithRuntimeFS(scripts.FS))
	scripted, err := rt.ScriptInspections()
	require.NoError(t, err)
	require.Len(t, scripted, 2)
	assert.Equal(t, "EmptyProcedure", scripted[0].Name())
	assert.Equal(t, "NonReturningFunction", scripted[1].Name())

	snap := newSnapshot(t)
	results, err := scripted[0].Inspect(context.Background(), snap)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		"Procedure 'VBAProject.Module1.Broken' is empty.",
		"Procedure 'VBAProject.Module1.Idle' is empty.",
	}, descriptions(results))

	results, err = scripted[1].Inspect(context.Background(), snap)
	require.NoError(t, err)
	assert.Equal(t, []string{"Return value of 'VBAProject.Module1.Broken' is never assigned."}, descriptions(results))
}

func TestScriptInspections_Dir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "inspect"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "inspect", "all_functions.risor"), []byte(`
fns := declarations("Function")
for i := 0; i < len(fns); i++ {
    report({"target": fns[i]["id"], "description": fns[i]["name"]})
}
`), 0644))

	rt := NewRuntime(nil, dir)
	scripted, err := rt.ScriptInspections()
	require.NoError(t, err)
	require.Len(t, scripted, 1)
	assert.Equal(t, "AllFunctions", scripted[0].Name())

	scripted[0].SetSeverity(inspection.Error)
	runner := inspection.NewRunner([]inspection.Inspection{scripted[0]})
	results, err := runner.Run(context.Background(), newSnapshot(t))
	require.NoError(t, err)
	assert.Equal(t, []string{"Answer", "Broken"}, descriptions(results))
	for _, r := range results {
		assert.Equal(t, inspection.Error, r.Severity)
	}
}

func TestScriptInspections_NoSource(t *testing.T) {
	t.Parallel()
	scripted, err := NewRuntime(nil, "").ScriptInspections()
	require.NoError(t, err)
	assert.Empty(t, scripted)
}

func TestDBQuery(t *testing.T) {
	s, err := store.NewStore(filepath.Join(t.TempDir(), "mallard.db"))
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.Migrate())

	rt := NewRuntime(s, "")
	script := `
rows := db_query("SELECT 1 AS one, ? AS two", "b")
assert(len(rows) == 1)
assert(rows[0]["one"] == 1)
assert(rows[0]["two"] == "b")
`
	require.NoError(t, rt.RunSource(context.Background(), script, nil))
	assert.Error(t, rt.RunSource(context.Background(), `db_query("DELETE FROM modules")`, nil))
}
