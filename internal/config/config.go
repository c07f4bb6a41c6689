// Package config loads mallard.toml (or .yaml/.json) project settings.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"
	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/jward/mallard/internal/inspection"
	"github.com/jward/mallard/internal/project"
	"github.com/jward/mallard/internal/refactor"
)

// Config holds all configuration options for mallard.
type Config struct {
	// Project names the project every loaded module belongs to.
	Project     string            `koanf:"project"`
	Resolve     ResolveConfig     `koanf:"resolve"`
	Inspections InspectionsConfig `koanf:"inspections"`
	Modules     ModulesConfig     `koanf:"modules"`
	Refactor    RefactorConfig    `koanf:"refactor"`
	Store       StoreConfig       `koanf:"store"`
}

// ResolveConfig selects the resolution strategy for full passes.
type ResolveConfig struct {
	Parallel bool `koanf:"parallel"`
}

// InspectionsConfig tunes the inspection registry.
type InspectionsConfig struct {
	Severities map[string]string `koanf:"severities"`
	Disabled   []string          `koanf:"disabled"`
	// ScriptsDir holds inspect/*.risor scripts, relative to the project root.
	ScriptsDir string `koanf:"scripts_dir"`
}

// ModulesConfig filters module files by slash-separated path relative to
// the project root. An empty Include admits every module file.
type ModulesConfig struct {
	Include []string `koanf:"include"`
	Exclude []string `koanf:"exclude"`
}

type RefactorConfig struct {
	DefaultMemberPolicy string `koanf:"default_member_policy"`
}

type StoreConfig struct {
	Path string `koanf:"path"`
}

// alwaysExcluded is prepended to modules.exclude.
var alwaysExcluded = []string{".git/**", ".mallard/**"}

// FileNames are searched, in order, by Discover.
var FileNames = []string{
	"mallard.toml",
	"mallard.yaml",
	"mallard.yml",
	"mallard.json",
	".mallard.toml",
	".mallard.yaml",
	".mallard.yml",
	".mallard.json",
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Project: "VBAProject",
		Resolve: ResolveConfig{Parallel: true},
		Inspections: InspectionsConfig{
			Severities: map[string]string{},
			ScriptsDir: ".mallard/scripts",
		},
		Refactor: RefactorConfig{DefaultMemberPolicy: "retain"},
		Store:    StoreConfig{Path: ".mallard/mallard.db"},
	}
}

// Load loads configuration from a file, layered over DefaultConfig.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	cfg := DefaultConfig()

	var parser koanf.Parser
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		parser = toml.Parser()
	}

	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, fmt.Errorf("config: load %s: %w", path, err)
	}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// Discover loads the first config file found in root or root/.mallard. It
// returns the defaults and an empty path when there is none.
func Discover(root string) (*Config, string, error) {
	for _, dir := range []string{root, filepath.Join(root, ".mallard")} {
		for _, name := range FileNames {
			path := filepath.Join(dir, name)
			if _, err := os.Stat(path); err != nil {
				continue
			}
			cfg, err := Load(path)
			if err != nil {
				return nil, path, err
			}
			return cfg, path, nil
		}
	}
	return DefaultConfig(), "", nil
}

// Validate checks the fields that are parsed later on.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Project) == "" {
		errs = append(errs, errors.New("project name is empty"))
	}
	for name, sev := range c.Inspections.Severities {
		if _, err := inspection.ParseSeverity(sev); err != nil {
			errs = append(errs, fmt.Errorf("inspections.severities.%s: %w", name, err))
		}
	}
	if _, err := refactor.ParseDefaultMemberPolicy(c.Refactor.DefaultMemberPolicy); err != nil {
		errs = append(errs, fmt.Errorf("refactor.default_member_policy: %w", err))
	}
	if _, err := c.ModuleFilter(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// InspectionSettings converts the inspections section for the registry.
func (c *Config) InspectionSettings() inspection.Settings {
	return inspection.Settings{
		Severities: c.Inspections.Severities,
		Disabled:   c.Inspections.Disabled,
	}
}

// DefaultMemberPolicy parses refactor.default_member_policy.
func (c *Config) DefaultMemberPolicy() (refactor.DefaultMemberPolicy, error) {
	return refactor.ParseDefaultMemberPolicy(c.Refactor.DefaultMemberPolicy)
}

// ResolvePath anchors a configured path at root unless it is absolute.
func ResolvePath(root, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(root, path)
}

// ModuleFilter decides which files under the project root are modules.
type ModuleFilter struct {
	include []glob.Glob
	exclude []glob.Glob
}

// ModuleFilter compiles the modules section.
func (c *Config) ModuleFilter() (*ModuleFilter, error) {
	f := &ModuleFilter{}
	var err error
	if f.include, err = compileGlobs("include", c.Modules.Include); err != nil {
		return nil, err
	}
	exclude := append(append([]string{}, alwaysExcluded...), c.Modules.Exclude...)
	if f.exclude, err = compileGlobs("exclude", exclude); err != nil {
		return nil, err
	}
	return f, nil
}

func compileGlobs(section string, patterns []string) ([]glob.Glob, error) {
	globs := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, fmt.Errorf("invalid modules.%s pattern %q: %w", section, p, err)
		}
		globs = append(globs, g)
	}
	return globs, nil
}

// Match reports whether rel, a path relative to the project root, names a
// module file that passes the include and exclude patterns.
func (f *ModuleFilter) Match(rel string) bool {
	if _, ok := project.ComponentTypeForFile(rel); !ok {
		return false
	}
	rel = filepath.ToSlash(rel)
	for _, g := range f.exclude {
		if g.Match(rel) {
			return false
		}
	}
	if len(f.include) == 0 {
		return true
	}
	for _, g := range f.include {
		if g.Match(rel) || g.Match(filepath.Base(rel)) {
			return true
		}
	}
	return false
}

// SkipDir reports whether a directory, relative to the project root, is
// excluded outright.
func (f *ModuleFilter) SkipDir(rel string) bool {
	rel = filepath.ToSlash(rel)
	for _, g := range f.exclude {
		if g.Match(rel) || g.Match(rel+"/") {
			return true
		}
	}
	return false
}
