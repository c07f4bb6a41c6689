// Package symbols holds declarations, the module-partitioned declaration
// table and identifier references.
package symbols

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/jward/mallard/internal/project"
	"github.com/jward/mallard/internal/syntax"
)

// Kind is the kind of a declaration.
type Kind int

const (
	Project Kind = iota
	ProceduralModule
	ClassModule
	Procedure
	Function
	PropertyGet
	PropertyLet
	PropertySet
	Parameter
	Variable
	Constant
	UserDefinedType
	UserDefinedTypeMember
	Enumeration
	EnumerationMember
)

var kindNames = [...]string{
	Project:               "Project",
	ProceduralModule:      "ProceduralModule",
	ClassModule:           "ClassModule",
	Procedure:             "Procedure",
	Function:              "Function",
	PropertyGet:           "PropertyGet",
	PropertyLet:           "PropertyLet",
	PropertySet:           "PropertySet",
	Parameter:             "Parameter",
	Variable:              "Variable",
	Constant:              "Constant",
	UserDefinedType:       "UserDefinedType",
	UserDefinedTypeMember: "UserDefinedTypeMember",
	Enumeration:           "Enumeration",
	EnumerationMember:     "EnumerationMember",
}

func (k Kind) String() string {
	if k >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "Unknown"
}

// ParseKind returns the Kind named s, case-insensitively.
func ParseKind(s string) (Kind, bool) {
	for i, name := range kindNames {
		if strings.EqualFold(name, s) {
			return Kind(i), true
		}
	}
	return 0, false
}

// IsModule reports whether k is a module kind.
func (k Kind) IsModule() bool {
	return k == ProceduralModule || k == ClassModule
}

// IsMember reports whether k is a procedure or property.
func (k Kind) IsMember() bool {
	return k >= Procedure && k <= PropertySet
}

// IsProperty reports whether k is a property accessor.
func (k Kind) IsProperty() bool {
	return k >= PropertyGet && k <= PropertySet
}

// Accessibility is the declared visibility of a declaration.
type Accessibility int

const (
	Implicit Accessibility = iota
	Private
	Public
	Friend
	Global
)

var accessibilityNames = [...]string{"Implicit", "Private", "Public", "Friend", "Global"}

func (a Accessibility) String() string {
	if a >= 0 && int(a) < len(accessibilityNames) {
		return accessibilityNames[a]
	}
	return "Unknown"
}

// ParseAccessibility maps a declaring keyword to an Accessibility. Dim,
// Static and the empty string are Implicit.
func ParseAccessibility(keyword string) Accessibility {
	switch strings.ToLower(keyword) {
	case "private":
		return Private
	case "public":
		return Public
	case "friend":
		return Friend
	case "global":
		return Global
	}
	return Implicit
}

// IsPublic reports whether the declaration is visible outside its module
// when declared at module level. Members without a modifier are public.
func (a Accessibility) IsPublic() bool {
	return a != Private
}

// ID identifies a declaration by its owning module partition and its
// ordinal within that partition. Project declarations use a project-only
// ModuleName and ordinal 0.
type ID struct {
	Module  project.ModuleName
	Ordinal int
}

// IsZero reports whether id is unset.
func (id ID) IsZero() bool {
	return id.Module.IsZero()
}

func (id ID) String() string {
	return id.Module.String() + "#" + strconv.Itoa(id.Ordinal)
}

// ParseID parses the String form of an ID.
func ParseID(s string) (ID, error) {
	name, ord, ok := strings.Cut(s, "#")
	if !ok {
		return ID{}, fmt.Errorf("symbols: parse id %q: missing ordinal", s)
	}
	n, err := strconv.Atoi(ord)
	if err != nil {
		return ID{}, fmt.Errorf("symbols: parse id %q: %w", s, err)
	}
	proj, comp, _ := strings.Cut(name, ".")
	if proj == "" {
		return ID{}, fmt.Errorf("symbols: parse id %q: missing project", s)
	}
	return ID{Module: project.NewModuleName(proj, comp), Ordinal: n}, nil
}

// Annotation is an '@Name(args) comment attached to a declaration.
type Annotation struct {
	Name string
	Args []string
	Node *syntax.Node
}

// Declaration is a named entity. Declarations are created once per
// resolution pass and are read-only afterwards.
type Declaration struct {
	ID            ID
	ParentID      ID
	Name          string
	QualifiedName string
	Kind          Kind
	Accessibility Accessibility
	AsType        string
	IsArray       bool
	Node          *syntax.Node
	Annotations   []Annotation
	// Span covers the whole declaring construct; NameSpan just the name.
	Span          syntax.Span
	NameSpan      syntax.Span
	ComponentType project.ComponentType
}

// Module returns the module that owns d.
func (d *Declaration) Module() project.ModuleName {
	return d.ID.Module
}

// Annotation returns the first attached annotation named name.
func (d *Declaration) Annotation(name string) (Annotation, bool) {
	for _, a := range d.Annotations {
		if strings.EqualFold(a.Name, name) {
			return a, true
		}
	}
	return Annotation{}, false
}

// HasAnnotation reports whether an annotation named name is attached.
func (d *Declaration) HasAnnotation(name string) bool {
	_, ok := d.Annotation(name)
	return ok
}

func (d *Declaration) String() string {
	return fmt.Sprintf("%s %s", d.Kind, d.QualifiedName)
}
