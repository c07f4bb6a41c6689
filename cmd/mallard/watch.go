package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/jward/mallard"
	"github.com/jward/mallard/internal/config"
	"github.com/jward/mallard/internal/inspection"
)

var flagDebounce time.Duration

var watchCmd = &cobra.Command{
	Use:   "watch [path]",
	Short: "Re-analyze modules as their files change",
	Long:  "Indexes the project, then watches it: changed modules are re-parsed and re-resolved together with the modules affected by them, and findings are printed after every batch.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runWatch,
}

func init() {
	watchCmd.Flags().DurationVar(&flagDebounce, "debounce", 300*time.Millisecond, "wait this long after the last change before re-analyzing")
}

// moduleWatcher batches filesystem events on module files. A path is
// flushed once it has been quiet for the debounce period.
type moduleWatcher struct {
	root     string
	filter   *config.ModuleFilter
	debounce time.Duration

	mu      sync.Mutex
	changed map[string]time.Time
	removed map[string]time.Time
}

func newModuleWatcher(root string, filter *config.ModuleFilter, debounce time.Duration) *moduleWatcher {
	if debounce <= 0 {
		debounce = 300 * time.Millisecond
	}
	return &moduleWatcher{
		root:     root,
		filter:   filter,
		debounce: debounce,
		changed:  make(map[string]time.Time),
		removed:  make(map[string]time.Time),
	}
}

// handle records ev if it concerns a module file.
func (w *moduleWatcher) handle(ev fsnotify.Event, now time.Time) {
	rel, err := filepath.Rel(w.root, ev.Name)
	if err != nil || !w.filter.Match(rel) {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	switch {
	case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		delete(w.changed, ev.Name)
		w.removed[ev.Name] = now
	case ev.Op&(fsnotify.Write|fsnotify.Create) != 0:
		delete(w.removed, ev.Name)
		w.changed[ev.Name] = now
	}
}

// ready removes and returns the paths quiet since now-debounce, sorted.
func (w *moduleWatcher) ready(now time.Time) (changed, removed []string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	take := func(pending map[string]time.Time) []string {
		var out []string
		for path, last := range pending {
			if now.Sub(last) >= w.debounce {
				out = append(out, path)
				delete(pending, path)
			}
		}
		slices.Sort(out)
		return out
	}
	return take(w.changed), take(w.removed)
}

// addDirs registers root and every directory below it the filter keeps.
func (w *moduleWatcher) addDirs(fw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if rel, err := filepath.Rel(w.root, path); err == nil && rel != "." && w.filter.SkipDir(rel) {
			return filepath.SkipDir
		}
		return fw.Add(path)
	})
}

// apply feeds a flushed batch to the engine and re-analyzes.
func apply(ctx context.Context, e *mallard.Engine, changed, removed []string) ([]inspection.Result, error) {
	for _, path := range removed {
		if m, ok := e.ModuleForPath(path); ok {
			e.RemoveModule(m)
		}
	}
	var existing []string
	for _, path := range changed {
		if _, err := os.Stat(path); err == nil {
			existing = append(existing, path)
		}
	}
	if err := e.LoadModules(ctx, existing); err != nil {
		return nil, err
	}
	if err := e.Resolve(ctx); err != nil {
		return nil, err
	}
	results, err := e.Inspect(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := e.Persist(ctx); err != nil {
		return nil, err
	}
	return results, nil
}

func runWatch(cmd *cobra.Command, args []string) error {
	p, err := loadProject(args)
	if err != nil {
		return outputError(cmd, "watch", err)
	}
	filter, err := p.cfg.ModuleFilter()
	if err != nil {
		return outputError(cmd, "watch", err)
	}
	e, err := openEngine(p)
	if err != nil {
		return outputError(cmd, "watch", err)
	}
	defer e.Close()

	ctx := cmd.Context()
	if err := analyze(ctx, e, p); err != nil {
		return outputError(cmd, "watch", err)
	}
	report := func(results []inspection.Result) error {
		findings, _ := findingsToCLI(e, results, inspection.Hint, nil)
		return outputResult(cmd, CLIResult{Command: "watch", Results: findings})
	}
	results, err := e.Inspect(ctx)
	if err != nil {
		return outputError(cmd, "watch", err)
	}
	if _, err := e.Persist(ctx); err != nil {
		return outputError(cmd, "watch", err)
	}
	if err := report(results); err != nil {
		return err
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return outputError(cmd, "watch", err)
	}
	defer fw.Close()

	w := newModuleWatcher(p.target, filter, flagDebounce)
	if err := w.addDirs(fw, p.target); err != nil {
		return outputError(cmd, "watch", err)
	}
	stderr := cmd.ErrOrStderr()
	fmt.Fprintln(stderr, color.CyanString("Watching for changes in %s...", p.target))

	ticker := time.NewTicker(w.debounce / 3)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if ev.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					if err := w.addDirs(fw, ev.Name); err != nil {
						fmt.Fprintln(stderr, color.RedString("Watch error: %v", err))
					}
					continue
				}
			}
			w.handle(ev, time.Now())

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			fmt.Fprintln(stderr, color.RedString("Watch error: %v", err))

		case now := <-ticker.C:
			changed, removed := w.ready(now)
			if len(changed) == 0 && len(removed) == 0 {
				continue
			}
			fmt.Fprintln(stderr, color.YellowString("Changed: %d, removed: %d", len(changed), len(removed)))
			results, err := apply(ctx, e, changed, removed)
			if err != nil {
				fmt.Fprintln(stderr, color.RedString("Analysis failed: %v", err))
				continue
			}
			if err := report(results); err != nil {
				return err
			}
		}
	}
}
