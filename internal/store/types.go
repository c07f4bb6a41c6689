package store

import "time"

// Module is one row per parsed module.
type Module struct {
	ID            int64
	Project       string
	Component     string
	ComponentType string
	Path          string
	ContentHash   string
	SignatureHash string
	LastIndexed   time.Time
}

// Key returns the "Project.Component" form used by declaration keys.
func (m *Module) Key() string {
	return m.Project + "." + m.Component
}

// Declaration is a persisted declaration. Key is the declaration ID in its
// "Project.Component#ordinal" string form.
type Declaration struct {
	ID            int64
	ModuleID      int64
	Key           string
	ParentKey     string
	Name          string
	QualifiedName string
	Kind          string
	Accessibility string
	AsType        string
	IsArray       bool
	StartLine     int
	StartCol      int
	EndLine       int
	EndCol        int
	NameLine      int
	NameCol       int
}

type Annotation struct {
	ID            int64
	DeclarationID int64
	Name          string
	Arguments     []string
}

// Reference is a bound identifier use. TargetModule is derived from
// TargetKey on insert.
type Reference struct {
	ID           int64
	ModuleID     int64
	TargetModule string
	TargetKey    string
	ScopeKey     string
	Name         string
	Flags        string
	StartLine    int
	StartCol     int
	EndLine      int
	EndCol       int
}

type Finding struct {
	ID          int64
	ModuleID    int64
	Inspection  string
	Severity    string
	Description string
	TargetKey   string
	Line        int
	Col         int
}
