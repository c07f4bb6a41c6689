// Package project defines module identity for VBA projects.
package project

import (
	"path/filepath"
	"strings"
)

// ModuleName identifies a component within a project. It is comparable and
// used directly as a map key; equality is by value.
type ModuleName struct {
	Project   string
	Component string
}

// NewModuleName returns the identity of component in project.
func NewModuleName(project, component string) ModuleName {
	return ModuleName{Project: project, Component: component}
}

// IsZero reports whether m is the zero ModuleName.
func (m ModuleName) IsZero() bool {
	return m.Project == "" && m.Component == ""
}

// IsProject reports whether m names a project rather than a component.
func (m ModuleName) IsProject() bool {
	return m.Project != "" && m.Component == ""
}

func (m ModuleName) String() string {
	if m.Component == "" {
		return m.Project
	}
	return m.Project + "." + m.Component
}

// Less orders module names by project then component, case-insensitively.
func (m ModuleName) Less(other ModuleName) bool {
	a, b := strings.ToLower(m.Project), strings.ToLower(other.Project)
	if a != b {
		return a < b
	}
	return strings.ToLower(m.Component) < strings.ToLower(other.Component)
}

// ComponentType is the kind of code module a component holds.
type ComponentType int

const (
	StandardModule ComponentType = iota
	ClassModule
	DocumentModule
	UserForm
)

var componentTypeNames = [...]string{
	StandardModule: "StandardModule",
	ClassModule:    "ClassModule",
	DocumentModule: "DocumentModule",
	UserForm:       "UserForm",
}

func (c ComponentType) String() string {
	if int(c) < len(componentTypeNames) {
		return componentTypeNames[c]
	}
	return "Unknown"
}

// extToComponentType maps exported component file extensions to their type.
var extToComponentType = map[string]ComponentType{
	".bas":    StandardModule,
	".cls":    ClassModule,
	".doccls": DocumentModule,
	".frm":    UserForm,
}

// ComponentTypeForFile returns the component type for a file path based on
// its extension. Returns (StandardModule, false) if the extension is not a
// recognized module export.
func ComponentTypeForFile(path string) (ComponentType, bool) {
	ext := strings.ToLower(filepath.Ext(path))
	ct, ok := extToComponentType[ext]
	return ct, ok
}

// ComponentNameForFile returns the component name implied by a file path.
func ComponentNameForFile(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
