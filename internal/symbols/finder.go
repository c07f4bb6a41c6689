package symbols

import (
	"strings"

	"github.com/jward/mallard/internal/project"
)

// Finder is a read-only lookup view over a Table taken after declaration
// resolution. It indexes declarations by name and by parent scope.
type Finder struct {
	table    *Table
	byName   map[string][]*Declaration
	children map[ID][]*Declaration
	modules  map[string][]*Declaration
}

// NewFinder indexes the current contents of table.
func NewFinder(table *Table) *Finder {
	f := &Finder{
		table:    table,
		byName:   make(map[string][]*Declaration),
		children: make(map[ID][]*Declaration),
		modules:  make(map[string][]*Declaration),
	}
	for _, d := range table.All() {
		key := strings.ToLower(d.Name)
		f.byName[key] = append(f.byName[key], d)
		if !d.ParentID.IsZero() {
			f.children[d.ParentID] = append(f.children[d.ParentID], d)
		}
		if d.Kind.IsModule() {
			f.modules[key] = append(f.modules[key], d)
		}
	}
	return f
}

// Get returns the declaration with id.
func (f *Finder) Get(id ID) (*Declaration, bool) {
	return f.table.Get(id)
}

// Named returns every declaration called name, case-insensitively.
func (f *Finder) Named(name string) []*Declaration {
	return f.byName[strings.ToLower(name)]
}

// Children returns the declarations whose parent scope is parent.
func (f *Finder) Children(parent ID) []*Declaration {
	return f.children[parent]
}

// ChildrenNamed returns the children of parent called name.
func (f *Finder) ChildrenNamed(parent ID, name string) []*Declaration {
	var out []*Declaration
	for _, d := range f.children[parent] {
		if strings.EqualFold(d.Name, name) {
			out = append(out, d)
		}
	}
	return out
}

// ModuleDeclaration returns the declaration of module itself.
func (f *Finder) ModuleDeclaration(module project.ModuleName) (*Declaration, bool) {
	d, ok := f.table.Get(ID{Module: module})
	if !ok || !d.Kind.IsModule() {
		return nil, false
	}
	return d, true
}

// ModulesNamed returns module declarations called name, optionally limited
// to one project.
func (f *Finder) ModulesNamed(projectName, name string) []*Declaration {
	var out []*Declaration
	for _, d := range f.modules[strings.ToLower(name)] {
		if projectName == "" || strings.EqualFold(d.ID.Module.Project, projectName) {
			out = append(out, d)
		}
	}
	return out
}

// Project returns the project declaration called name.
func (f *Finder) Project(name string) (*Declaration, bool) {
	return f.table.Get(ID{Module: project.ModuleName{Project: name}})
}
