package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/mallard/internal/config"
)

func TestFindRepoRoot_DirectGitDir(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, ".git"), 0o755))

	assert.Equal(t, root, findRepoRoot(root))
}

func TestFindRepoRoot_NestedSubdirectory(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, ".git"), 0o755))
	deep := filepath.Join(root, "src", "modules")
	require.NoError(t, os.MkdirAll(deep, 0o755))

	assert.Equal(t, root, findRepoRoot(deep))
}

func TestFindRepoRoot_ConfigFile(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "mallard.toml"), []byte("project = \"Ledger\"\n"), 0o644))
	deep := filepath.Join(root, "export")
	require.NoError(t, os.Mkdir(deep, 0o755))

	assert.Equal(t, root, findRepoRoot(deep))
}

func TestFindRepoRoot_NoAncestor(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	assert.Equal(t, dir, findRepoRoot(dir))
}

func TestValidateFormat(t *testing.T) {
	t.Parallel()
	assert.NoError(t, validateFormat("json"))
	assert.NoError(t, validateFormat("text"))
	assert.ErrorContains(t, validateFormat("yaml"), `invalid format "yaml"`)
}

func TestParsePositionArgs(t *testing.T) {
	t.Parallel()
	line, col, err := parsePositionArgs("12", "5")
	require.NoError(t, err)
	assert.Equal(t, 12, line)
	assert.Equal(t, 5, col)

	_, _, err = parsePositionArgs("0", "5")
	assert.ErrorContains(t, err, "at least 1")
	_, _, err = parsePositionArgs("3", "x")
	assert.ErrorContains(t, err, "invalid col")
}

func TestOutputResultText_Footer(t *testing.T) {
	t.Parallel()
	total := 5
	var buf bytes.Buffer
	require.NoError(t, outputResultText(&buf, CLIResult{
		Results:    []CLILocation{{Module: "VBAProject.Calc", StartLine: 3, StartCol: 1}},
		TotalCount: &total,
	}))
	assert.Equal(t, "VBAProject.Calc:3:1\n\nShowing 1 of 5 results\n", buf.String())

	err := outputResultText(&buf, CLIResult{Results: 42})
	assert.ErrorContains(t, err, "unsupported result type")
}

func TestFormatFindingsText(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	formatFindingsText(&buf, []CLIFinding{{
		Inspection: "ProcedureNotUsed", Severity: "Suggestion",
		Description: "Procedure 'VBAProject.Calc.Helper' is not used.",
		Module:      "VBAProject.Calc", File: "src/Calc.bas", Line: 10, Col: 13,
	}})
	assert.Contains(t, buf.String(), "src/Calc.bas:10:13 ")
	assert.Contains(t, buf.String(), "ProcedureNotUsed: Procedure 'VBAProject.Calc.Helper' is not used.")
}

func TestModuleWatcher_Debounce(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	filter, err := config.DefaultConfig().ModuleFilter()
	require.NoError(t, err)
	w := newModuleWatcher(root, filter, 100*time.Millisecond)

	t0 := time.Now()
	calc := filepath.Join(root, "Calc.bas")
	old := filepath.Join(root, "Old.cls")
	w.handle(fsnotify.Event{Name: calc, Op: fsnotify.Write}, t0)
	w.handle(fsnotify.Event{Name: old, Op: fsnotify.Remove}, t0)
	w.handle(fsnotify.Event{Name: filepath.Join(root, "notes.txt"), Op: fsnotify.Write}, t0)
	w.handle(fsnotify.Event{Name: filepath.Join(root, ".git", "Index.bas"), Op: fsnotify.Write}, t0)

	changed, removed := w.ready(t0.Add(50 * time.Millisecond))
	assert.Empty(t, changed)
	assert.Empty(t, removed)

	// A later write restarts the quiet period.
	w.handle(fsnotify.Event{Name: calc, Op: fsnotify.Write}, t0.Add(80*time.Millisecond))
	changed, removed = w.ready(t0.Add(120 * time.Millisecond))
	assert.Empty(t, changed)
	assert.Equal(t, []string{old}, removed)

	changed, removed = w.ready(t0.Add(200 * time.Millisecond))
	assert.Equal(t, []string{calc}, changed)
	assert.Empty(t, removed)

	changed, removed = w.ready(t0.Add(time.Second))
	assert.Empty(t, changed)
	assert.Empty(t, removed)
}

func TestModuleWatcher_RecreatedFileIsChanged(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	filter, err := config.DefaultConfig().ModuleFilter()
	require.NoError(t, err)
	w := newModuleWatcher(root, filter, time.Millisecond)

	t0 := time.Now()
	calc := filepath.Join(root, "Calc.bas")
	w.handle(fsnotify.Event{Name: calc, Op: fsnotify.Rename}, t0)
	w.handle(fsnotify.Event{Name: calc, Op: fsnotify.Create}, t0)

	changed, removed := w.ready(t0.Add(time.Second))
	assert.Equal(t, []string{calc}, changed)
	assert.Empty(t, removed)
}
