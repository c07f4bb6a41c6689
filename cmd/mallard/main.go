package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/jward/mallard"
	"github.com/jward/mallard/internal/config"
)

var (
	flagDB      string
	flagConfig  string
	flagFormat  string
	flagVerbose bool
)

// errorHandled is set by outputError so main() doesn't double-print.
var errorHandled bool

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if !errorHandled {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		}
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "mallard",
	Short:         "Semantic analysis and refactoring for exported VBA projects",
	Long:          "Mallard parses exported VBA components, resolves declarations and references, runs inspections and writes a SQLite snapshot for queries.",
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return validateFormat(flagFormat)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagDB, "db", "", "database path (default: store.path from config, relative to the project root)")
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "config file (default: mallard.toml, .mallard.yaml, ... in the project root)")
	rootCmd.PersistentFlags().StringVar(&flagFormat, "format", "json", "output format: json|text")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "log debug output to stderr")

	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(watchCmd)
}

// newLogger returns the stderr logger. Without --verbose only warnings
// and errors are shown.
func newLogger(w io.Writer) *slog.Logger {
	level := slog.LevelWarn
	if flagVerbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// project is the resolved working context of a command.
type project struct {
	root   string
	target string
	dbPath string
	cfg    *config.Config
}

// loadProject resolves the target directory, project root, config and
// database path from args and flags.
func loadProject(args []string) (*project, error) {
	target, err := resolveTargetDir(args)
	if err != nil {
		return nil, err
	}
	root := findRepoRoot(target)

	var cfg *config.Config
	if flagConfig != "" {
		cfg, err = config.Load(flagConfig)
	} else {
		cfg, _, err = config.Discover(root)
	}
	if err != nil {
		return nil, err
	}
	return &project{root: root, target: target, dbPath: resolveDBPath(root, cfg), cfg: cfg}, nil
}

// openEngine creates the engine for p, creating the database directory.
func openEngine(p *project) (*mallard.Engine, error) {
	if err := os.MkdirAll(filepath.Dir(p.dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("creating %s: %w", filepath.Dir(p.dbPath), err)
	}
	e, err := mallard.New(p.dbPath,
		mallard.WithConfig(p.cfg, p.root),
		mallard.WithLogger(newLogger(os.Stderr)),
	)
	if err != nil {
		return nil, fmt.Errorf("creating engine: %w", err)
	}
	return e, nil
}

// analyze loads every module under p.target and resolves it.
func analyze(ctx context.Context, e *mallard.Engine, p *project) error {
	if err := e.LoadDirectory(ctx, p.target); err != nil {
		return fmt.Errorf("loading: %w", err)
	}
	if err := e.Resolve(ctx); err != nil {
		return fmt.Errorf("resolving: %w", err)
	}
	return nil
}

var flagForce bool

var indexCmd = &cobra.Command{
	Use:   "index [path]",
	Short: "Index an exported VBA project",
	Long:  "Parses every module, resolves declarations and references, runs inspections, and writes the snapshot to the SQLite database.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runIndex,
}

func init() {
	indexCmd.Flags().BoolVar(&flagForce, "force", false, "delete database and reindex from scratch")
}

func runIndex(cmd *cobra.Command, args []string) error {
	start := time.Now()
	p, err := loadProject(args)
	if err != nil {
		return outputError(cmd, "index", err)
	}

	if flagForce {
		if err := os.Remove(p.dbPath); err != nil && !os.IsNotExist(err) {
			return outputError(cmd, "index", fmt.Errorf("removing database for --force: %w", err))
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Cleared database: %s\n", p.dbPath)
	}

	e, err := openEngine(p)
	if err != nil {
		return outputError(cmd, "index", err)
	}
	defer e.Close()

	ctx := cmd.Context()
	if err := analyze(ctx, e, p); err != nil {
		return outputError(cmd, "index", err)
	}
	resolved := time.Since(start)

	results, err := e.Inspect(ctx)
	if err != nil {
		return outputError(cmd, "index", err)
	}
	stats, err := e.Persist(ctx)
	if err != nil {
		return outputError(cmd, "index", fmt.Errorf("persisting: %w", err))
	}

	fmt.Fprintf(cmd.ErrOrStderr(), "Indexed %s in %s (resolve: %s)\n",
		p.target, time.Since(start).Round(time.Millisecond), resolved.Round(time.Millisecond))
	fmt.Fprintf(cmd.ErrOrStderr(), "Database: %s\n", p.dbPath)

	return outputResult(cmd, CLIResult{
		Command: "index",
		Results: CLIIndexStats{
			Modules:  len(e.Modules()),
			Written:  stats.Written,
			Skipped:  stats.Skipped,
			Removed:  stats.Removed,
			Findings: len(results),
		},
	})
}

// resolveTargetDir returns the absolute path of the directory to analyze.
func resolveTargetDir(args []string) (string, error) {
	dir := "."
	if len(args) > 0 {
		dir = args[0]
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolving path %q: %w", dir, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("directory not found: %s", abs)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("not a directory: %s", abs)
	}
	return abs, nil
}

// findRepoRoot walks up from startDir looking for a .git directory or a
// mallard config file. Returns startDir if neither is found.
func findRepoRoot(startDir string) string {
	dir := startDir
	for {
		if info, err := os.Stat(filepath.Join(dir, ".git")); err == nil && info.IsDir() {
			return dir
		}
		for _, name := range config.FileNames {
			if _, err := os.Stat(filepath.Join(dir, name)); err == nil {
				return dir
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return startDir
		}
		dir = parent
	}
}

// resolveDBPath returns the database path from the --db flag or the config.
func resolveDBPath(root string, cfg *config.Config) string {
	if flagDB != "" {
		return config.ResolvePath(root, flagDB)
	}
	return config.ResolvePath(root, cfg.Store.Path)
}
