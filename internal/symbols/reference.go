package symbols

import (
	"slices"
	"strings"
	"sync"

	"github.com/jward/mallard/internal/project"
	"github.com/jward/mallard/internal/syntax"
)

// UsageFlags describe how an identifier is used at a reference site.
type UsageFlags uint16

const (
	Assignment UsageFlags = 1 << iota
	SetAssignment
	ArrayAccess
	InnerRecursiveDefaultMemberAccess
	ExplicitCall
	WithMemberAccess
)

var usageFlagNames = []struct {
	flag UsageFlags
	name string
}{
	{Assignment, "assignment"},
	{SetAssignment, "set"},
	{ArrayAccess, "array"},
	{InnerRecursiveDefaultMemberAccess, "inner-default-member"},
	{ExplicitCall, "call"},
	{WithMemberAccess, "with"},
}

// Has reports whether every bit in flag is set.
func (f UsageFlags) Has(flag UsageFlags) bool {
	return f&flag == flag
}

func (f UsageFlags) String() string {
	var parts []string
	for _, n := range usageFlagNames {
		if f.Has(n.flag) {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, ",")
}

// IdentifierReference is one resolved use of a declaration.
type IdentifierReference struct {
	Declaration ID
	Module      project.ModuleName
	Node        *syntax.Node
	Name        string
	Scope       ID
	Span        syntax.Span
	Flags       UsageFlags
}

// IsAssignment reports whether the reference is the target of Let or Set.
func (r *IdentifierReference) IsAssignment() bool {
	return r.Flags.Has(Assignment)
}

// IsArrayAccess reports whether the reference indexes an array.
func (r *IdentifierReference) IsArrayAccess() bool {
	return r.Flags.Has(ArrayAccess)
}

// IsInnerRecursiveDefaultMemberAccess reports whether the reference is the
// callee of an index expression that is itself indexed.
func (r *IdentifierReference) IsInnerRecursiveDefaultMemberAccess() bool {
	return r.Flags.Has(InnerRecursiveDefaultMemberAccess)
}

// References indexes identifier references by module and by target. A
// module's references are replaced as a unit when it is rebound.
type References struct {
	mu       sync.RWMutex
	byModule map[project.ModuleName][]*IdentifierReference
	byTarget map[ID][]*IdentifierReference
}

// NewReferences returns an empty index.
func NewReferences() *References {
	return &References{
		byModule: make(map[project.ModuleName][]*IdentifierReference),
		byTarget: make(map[ID][]*IdentifierReference),
	}
}

// Replace sets the references found in module.
func (r *References) Replace(module project.ModuleName, refs []*IdentifierReference) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeLocked(module)
	if len(refs) == 0 {
		return
	}
	r.byModule[module] = slices.Clone(refs)
	for _, ref := range refs {
		r.byTarget[ref.Declaration] = append(r.byTarget[ref.Declaration], ref)
	}
}

// Remove drops the references found in module.
func (r *References) Remove(module project.ModuleName) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeLocked(module)
}

func (r *References) removeLocked(module project.ModuleName) {
	old, ok := r.byModule[module]
	if !ok {
		return
	}
	delete(r.byModule, module)
	targets := make(map[ID]bool)
	for _, ref := range old {
		targets[ref.Declaration] = true
	}
	for id := range targets {
		kept := slices.DeleteFunc(r.byTarget[id], func(ref *IdentifierReference) bool {
			return ref.Module == module
		})
		if len(kept) == 0 {
			delete(r.byTarget, id)
		} else {
			r.byTarget[id] = kept
		}
	}
}

// To returns the references to the declaration with id.
func (r *References) To(id ID) []*IdentifierReference {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.byTarget[id])
}

// In returns the references found in module, in source order.
func (r *References) In(module project.ModuleName) []*IdentifierReference {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.byModule[module])
}

// ReferencingModules returns the modules holding a reference into any of
// targets, excluding the target modules themselves.
func (r *References) ReferencingModules(targets []project.ModuleName) []project.ModuleName {
	want := make(map[project.ModuleName]bool, len(targets))
	for _, m := range targets {
		want[m] = true
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []project.ModuleName
	for m, refs := range r.byModule {
		if want[m] {
			continue
		}
		for _, ref := range refs {
			if want[ref.Declaration.Module] {
				out = append(out, m)
				break
			}
		}
	}
	slices.SortFunc(out, compareModules)
	return out
}

// All returns every reference ordered by module.
func (r *References) All() []*IdentifierReference {
	r.mu.RLock()
	defer r.mu.RUnlock()
	mods := make([]project.ModuleName, 0, len(r.byModule))
	for m := range r.byModule {
		mods = append(mods, m)
	}
	slices.SortFunc(mods, compareModules)
	var out []*IdentifierReference
	for _, m := range mods {
		out = append(out, r.byModule[m]...)
	}
	return out
}

// Len returns the number of references.
func (r *References) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, refs := range r.byModule {
		n += len(refs)
	}
	return n
}
