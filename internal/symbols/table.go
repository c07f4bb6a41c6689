package symbols

import (
	"slices"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/jward/mallard/internal/project"
)

const shardCount = 16

type shard struct {
	mu      sync.RWMutex
	modules map[project.ModuleName][]*Declaration
}

// Table is the cross-module declaration table. Each module's declarations
// form a partition that is published in one step, so readers never observe
// a partially built module. Partitions are spread over shards so concurrent
// publishers of different modules rarely contend.
type Table struct {
	shards [shardCount]shard

	projMu   sync.RWMutex
	projects map[string]*Declaration
}

// NewTable returns an empty Table.
func NewTable() *Table {
	t := &Table{projects: make(map[string]*Declaration)}
	for i := range t.shards {
		t.shards[i].modules = make(map[project.ModuleName][]*Declaration)
	}
	return t
}

func (t *Table) shard(m project.ModuleName) *shard {
	h := xxhash.Sum64String(strings.ToLower(m.Project) + "\x00" + strings.ToLower(m.Component))
	return &t.shards[h%shardCount]
}

// Publish replaces the partition of module with decls. Each declaration's
// ordinal must equal its index in decls.
func (t *Table) Publish(module project.ModuleName, decls []*Declaration) {
	s := t.shard(module)
	part := slices.Clone(decls)
	s.mu.Lock()
	s.modules[module] = part
	s.mu.Unlock()
}

// RemoveModule drops the partition of module.
func (t *Table) RemoveModule(module project.ModuleName) {
	s := t.shard(module)
	s.mu.Lock()
	delete(s.modules, module)
	s.mu.Unlock()
}

// Module returns the declarations of module in ordinal order.
func (t *Table) Module(module project.ModuleName) []*Declaration {
	s := t.shard(module)
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.modules[module])
}

// HasModule reports whether module has a published partition.
func (t *Table) HasModule(module project.ModuleName) bool {
	s := t.shard(module)
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.modules[module]
	return ok
}

// Get returns the declaration with id.
func (t *Table) Get(id ID) (*Declaration, bool) {
	if id.IsZero() {
		return nil, false
	}
	if id.Module.IsProject() {
		t.projMu.RLock()
		defer t.projMu.RUnlock()
		d, ok := t.projects[strings.ToLower(id.Module.Project)]
		return d, ok
	}
	s := t.shard(id.Module)
	s.mu.RLock()
	defer s.mu.RUnlock()
	part := s.modules[id.Module]
	if id.Ordinal < 0 || id.Ordinal >= len(part) {
		return nil, false
	}
	return part[id.Ordinal], true
}

// ClearProjectDeclarations removes every project-scope declaration.
func (t *Table) ClearProjectDeclarations() {
	t.projMu.Lock()
	defer t.projMu.Unlock()
	clear(t.projects)
}

// EnsureProject returns the declaration for the project named name,
// creating it if no module has done so yet in this pass.
func (t *Table) EnsureProject(name string) *Declaration {
	key := strings.ToLower(name)
	t.projMu.RLock()
	d, ok := t.projects[key]
	t.projMu.RUnlock()
	if ok {
		return d
	}

	t.projMu.Lock()
	defer t.projMu.Unlock()
	if d, ok := t.projects[key]; ok {
		return d
	}
	d = &Declaration{
		ID:            ID{Module: project.ModuleName{Project: name}},
		Name:          name,
		QualifiedName: name,
		Kind:          Project,
		Accessibility: Public,
	}
	t.projects[key] = d
	return d
}

// Projects returns the project declarations sorted by name.
func (t *Table) Projects() []*Declaration {
	t.projMu.RLock()
	defer t.projMu.RUnlock()
	out := make([]*Declaration, 0, len(t.projects))
	for _, d := range t.projects {
		out = append(out, d)
	}
	slices.SortFunc(out, func(a, b *Declaration) int {
		return strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name))
	})
	return out
}

// Modules returns every module with a partition, sorted.
func (t *Table) Modules() []project.ModuleName {
	var out []project.ModuleName
	for i := range t.shards {
		s := &t.shards[i]
		s.mu.RLock()
		for m := range s.modules {
			out = append(out, m)
		}
		s.mu.RUnlock()
	}
	slices.SortFunc(out, compareModules)
	return out
}

// All returns project declarations followed by every module partition in
// module order.
func (t *Table) All() []*Declaration {
	out := t.Projects()
	for _, m := range t.Modules() {
		out = append(out, t.Module(m)...)
	}
	return out
}

// Len returns the number of declarations in the table.
func (t *Table) Len() int {
	t.projMu.RLock()
	n := len(t.projects)
	t.projMu.RUnlock()
	for i := range t.shards {
		s := &t.shards[i]
		s.mu.RLock()
		for _, part := range s.modules {
			n += len(part)
		}
		s.mu.RUnlock()
	}
	return n
}

func compareModules(a, b project.ModuleName) int {
	switch {
	case a.Less(b):
		return -1
	case b.Less(a):
		return 1
	}
	return 0
}
