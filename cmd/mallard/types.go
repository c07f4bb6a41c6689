package main

// CLIResult is the top-level JSON envelope for every command.
type CLIResult struct {
	Command    string `json:"command"`
	Results    any    `json:"results"`
	TotalCount *int   `json:"total_count,omitempty"`
	Error      string `json:"error,omitempty"`
}

// CLIDeclaration is a JSON-friendly declaration representation. ID is the
// "Project.Component#n" key accepted by other commands.
type CLIDeclaration struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	QualifiedName    string `json:"qualified_name"`
	Kind             string `json:"kind"`
	Accessibility    string `json:"accessibility,omitempty"`
	AsType           string `json:"as_type,omitempty"`
	Module           string `json:"module,omitempty"`
	StartLine        int    `json:"start_line"`
	StartCol         int    `json:"start_col"`
	EndLine          int    `json:"end_line"`
	EndCol           int    `json:"end_col"`
	RefCount         *int   `json:"ref_count,omitempty"`
	ExternalRefCount *int   `json:"external_ref_count,omitempty"`
}

// CLILocation is a source range.
type CLILocation struct {
	Module    string `json:"module"`
	File      string `json:"file,omitempty"`
	StartLine int    `json:"start_line"`
	StartCol  int    `json:"start_col"`
	EndLine   int    `json:"end_line"`
	EndCol    int    `json:"end_col"`
}

// CLIFinding is a JSON-friendly inspection result.
type CLIFinding struct {
	Inspection  string `json:"inspection"`
	Severity    string `json:"severity"`
	Description string `json:"description"`
	Module      string `json:"module"`
	File        string `json:"file,omitempty"`
	Line        int    `json:"line"`
	Col         int    `json:"col"`
	Target      string `json:"target,omitempty"`
}

// CLIEdit is one module rewritten by delete.
type CLIEdit struct {
	Module  string `json:"module"`
	File    string `json:"file,omitempty"`
	Written bool   `json:"written"`
	Text    string `json:"text,omitempty"`
}

// CLIModule is a JSON-friendly module row.
type CLIModule struct {
	Name          string `json:"name"`
	ComponentType string `json:"component_type"`
	File          string `json:"file,omitempty"`
	Declarations  int    `json:"declarations"`
}

// CLIDependencyEdge is an edge of the module dependency graph.
type CLIDependencyEdge struct {
	From       string `json:"from"`
	To         string `json:"to"`
	References int    `json:"references"`
}

// CLIDependencyGraph is the module dependency graph.
type CLIDependencyGraph struct {
	Modules []CLIModule         `json:"modules"`
	Edges   []CLIDependencyEdge `json:"edges"`
}

// CLIIndexStats summarizes an index run.
type CLIIndexStats struct {
	Modules  int `json:"modules"`
	Written  int `json:"written"`
	Skipped  int `json:"skipped"`
	Removed  int `json:"removed"`
	Findings int `json:"findings"`
}
