package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jward/mallard"
	"github.com/jward/mallard/internal/store"
	"github.com/jward/mallard/internal/symbols"
)

var (
	flagLimit        int
	flagOffset       int
	flagSort         string
	flagOrder        string
	flagKind         string
	flagModule       string
	flagUnreferenced bool
	flagInspection   string
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Query the indexed snapshot",
	Long:  "Run queries against the database written by 'mallard index'. Line and column numbers are 1-based.",
}

func init() {
	queryCmd.PersistentFlags().IntVar(&flagLimit, "limit", 50, "pagination limit (max 500)")
	queryCmd.PersistentFlags().IntVar(&flagOffset, "offset", 0, "pagination offset")
	queryCmd.PersistentFlags().StringVar(&flagSort, "sort", "", "sort field: name|kind|module|ref_count|external_ref_count")
	queryCmd.PersistentFlags().StringVar(&flagOrder, "order", "asc", "sort order: asc|desc")

	declarationsCmd.Flags().StringVar(&flagKind, "kind", "", "declaration kind (Function, Procedure, Variable, ...)")
	declarationsCmd.Flags().StringVar(&flagModule, "module", "", "restrict to one module (Project.Component)")
	declarationsCmd.Flags().BoolVar(&flagUnreferenced, "unreferenced", false, "only declarations nothing references")
	findingsCmd.Flags().StringVar(&flagModule, "module", "", "restrict to one module")
	findingsCmd.Flags().StringVar(&flagInspection, "inspection", "", "restrict to one inspection")

	queryCmd.AddCommand(declarationsCmd)
	queryCmd.AddCommand(referencesCmd)
	queryCmd.AddCommand(findingsCmd)
	queryCmd.AddCommand(definitionCmd)
	queryCmd.AddCommand(declarationAtCmd)
	queryCmd.AddCommand(depsCmd)
	queryCmd.AddCommand(cyclesCmd)
}

// --- Helpers ---

// openStore opens the database of the project containing the working
// directory.
func openStore() (*store.Store, error) {
	p, err := loadProject(nil)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(p.dbPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("database not found: %s (run 'mallard index' first)", p.dbPath)
	}
	return store.NewStore(p.dbPath)
}

// parsePositionArgs parses <line> <col> positional arguments.
func parsePositionArgs(lineArg, colArg string) (int, int, error) {
	line, err := parsePositiveInt(lineArg, "line")
	if err != nil {
		return 0, 0, err
	}
	col, err := parsePositiveInt(colArg, "col")
	if err != nil {
		return 0, 0, err
	}
	return line, col, nil
}

func parsePositiveInt(value, name string) (int, error) {
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: must be a positive integer", name, value)
	}
	if n < 1 {
		return 0, fmt.Errorf("invalid %s %q: must be at least 1", name, value)
	}
	return n, nil
}

func buildPagination() mallard.Pagination {
	return mallard.Pagination{Limit: flagLimit, Offset: flagOffset}
}

func buildSort() mallard.Sort {
	field := mallard.SortByName
	switch flagSort {
	case "kind":
		field = mallard.SortByKind
	case "module":
		field = mallard.SortByModule
	case "ref_count":
		field = mallard.SortByRefCount
	case "external_ref_count":
		field = mallard.SortByExternalRefCount
	}
	order := mallard.Asc
	if flagOrder == "desc" {
		order = mallard.Desc
	}
	return mallard.Sort{Field: field, Order: order}
}

// resolveStoredTarget maps a declaration ID or a (qualified) name to the
// stored declaration.
func resolveStoredTarget(q *mallard.QueryBuilder, target string) (*mallard.Declaration, error) {
	if strings.Contains(target, "#") {
		id, err := symbols.ParseID(target)
		if err != nil {
			return nil, err
		}
		d, err := q.Declaration(id)
		if err != nil {
			return nil, err
		}
		if d == nil {
			return nil, fmt.Errorf("no declaration %s", target)
		}
		return d, nil
	}
	name := target
	if i := strings.LastIndex(target, "."); i >= 0 {
		name = target[i+1:]
	}
	decls, err := q.DeclarationsNamed(name)
	if err != nil {
		return nil, err
	}
	var matches []*mallard.Declaration
	for _, d := range decls {
		if strings.EqualFold(d.QualifiedName, target) || strings.EqualFold(d.Name, target) {
			matches = append(matches, d)
		}
	}
	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("no declaration named %q", target)
	case 1:
		return matches[0], nil
	}
	keys := make([]string, 0, len(matches))
	for _, d := range matches {
		keys = append(keys, d.QualifiedName+" ("+d.Key+")")
	}
	return nil, fmt.Errorf("%q is ambiguous: %s", target, strings.Join(keys, ", "))
}

func declarationToCLI(d *mallard.Declaration, module string) CLIDeclaration {
	return CLIDeclaration{
		ID:            d.Key,
		Name:          d.Name,
		QualifiedName: d.QualifiedName,
		Kind:          d.Kind,
		Accessibility: d.Accessibility,
		AsType:        d.AsType,
		Module:        module,
		StartLine:     d.StartLine,
		StartCol:      d.StartCol,
		EndLine:       d.EndLine,
		EndCol:        d.EndCol,
	}
}

func locationToCLI(loc mallard.Location) CLILocation {
	return CLILocation{
		Module:    loc.Module,
		File:      loc.Path,
		StartLine: loc.StartLine,
		StartCol:  loc.StartCol,
		EndLine:   loc.EndLine,
		EndCol:    loc.EndCol,
	}
}

// --- Commands ---

var declarationsCmd = &cobra.Command{
	Use:   "declarations [pattern]",
	Short: "List or search declarations ('*' is a wildcard)",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runDeclarations,
}

func runDeclarations(cmd *cobra.Command, args []string) error {
	filter := mallard.DeclarationFilter{Module: flagModule, Unreferenced: flagUnreferenced}
	if flagKind != "" {
		kind, ok := symbols.ParseKind(flagKind)
		if !ok {
			return outputError(cmd, "declarations", fmt.Errorf("%w: %q", mallard.ErrUnknownKind, flagKind))
		}
		filter.Kinds = []string{kind.String()}
	}
	pattern := ""
	if len(args) > 0 {
		pattern = args[0]
	}

	s, err := openStore()
	if err != nil {
		return outputError(cmd, "declarations", err)
	}
	defer s.Close()

	res, err := mallard.NewQueryBuilder(s).SearchDeclarations(pattern, filter, buildSort(), buildPagination())
	if err != nil {
		return outputError(cmd, "declarations", err)
	}
	items := make([]CLIDeclaration, 0, len(res.Items))
	for _, r := range res.Items {
		d := declarationToCLI(&r.Declaration, r.Module)
		d.RefCount = &r.RefCount
		d.ExternalRefCount = &r.ExternalRefCount
		items = append(items, d)
	}
	return outputResult(cmd, CLIResult{Command: "declarations", Results: items, TotalCount: &res.TotalCount})
}

var referencesCmd = &cobra.Command{
	Use:   "references <name|id>",
	Short: "Find every reference to a declaration",
	Args:  cobra.ExactArgs(1),
	RunE:  runReferences,
}

func runReferences(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return outputError(cmd, "references", err)
	}
	defer s.Close()

	q := mallard.NewQueryBuilder(s)
	d, err := resolveStoredTarget(q, args[0])
	if err != nil {
		return outputError(cmd, "references", err)
	}
	id, err := symbols.ParseID(d.Key)
	if err != nil {
		return outputError(cmd, "references", err)
	}
	locs, err := q.ReferencesTo(id)
	if err != nil {
		return outputError(cmd, "references", err)
	}
	out := make([]CLILocation, 0, len(locs))
	for _, l := range locs {
		out = append(out, locationToCLI(l))
	}
	return outputResult(cmd, CLIResult{Command: "references", Results: out})
}

var findingsCmd = &cobra.Command{
	Use:   "findings",
	Short: "List stored inspection findings",
	Args:  cobra.NoArgs,
	RunE:  runFindings,
}

func runFindings(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return outputError(cmd, "findings", err)
	}
	defer s.Close()

	q := mallard.NewQueryBuilder(s)
	var found []*mallard.Finding
	if flagModule != "" {
		found, err = q.FindingsIn(flagModule)
	} else {
		found, err = q.Findings()
	}
	if err != nil {
		return outputError(cmd, "findings", err)
	}
	mods, err := q.Modules()
	if err != nil {
		return outputError(cmd, "findings", err)
	}
	byID := make(map[int64]*mallard.Module, len(mods))
	for _, m := range mods {
		byID[m.ID] = m
	}

	out := []CLIFinding{}
	for _, f := range found {
		if flagInspection != "" && !strings.EqualFold(f.Inspection, flagInspection) {
			continue
		}
		cf := CLIFinding{
			Inspection:  f.Inspection,
			Severity:    f.Severity,
			Description: f.Description,
			Line:        f.Line,
			Col:         f.Col,
			Target:      f.TargetKey,
		}
		if m, ok := byID[f.ModuleID]; ok {
			cf.Module = m.Key()
			cf.File = m.Path
		}
		out = append(out, cf)
	}
	return outputResult(cmd, CLIResult{Command: "findings", Results: out})
}

var definitionCmd = &cobra.Command{
	Use:   "definition <module> <line> <col>",
	Short: "Go to the declaration a reference at a position binds to",
	Args:  cobra.ExactArgs(3),
	RunE:  runDefinition,
}

func runDefinition(cmd *cobra.Command, args []string) error {
	line, col, err := parsePositionArgs(args[1], args[2])
	if err != nil {
		return outputError(cmd, "definition", err)
	}
	s, err := openStore()
	if err != nil {
		return outputError(cmd, "definition", err)
	}
	defer s.Close()

	loc, err := mallard.NewQueryBuilder(s).DefinitionAt(args[0], line, col)
	if err != nil {
		return outputError(cmd, "definition", err)
	}
	out := []CLILocation{}
	if loc != nil {
		out = append(out, locationToCLI(*loc))
	}
	return outputResult(cmd, CLIResult{Command: "definition", Results: out})
}

var declarationAtCmd = &cobra.Command{
	Use:   "declaration-at <module> <line> <col>",
	Short: "Find the innermost declaration containing a position",
	Args:  cobra.ExactArgs(3),
	RunE:  runDeclarationAt,
}

func runDeclarationAt(cmd *cobra.Command, args []string) error {
	line, col, err := parsePositionArgs(args[1], args[2])
	if err != nil {
		return outputError(cmd, "declaration-at", err)
	}
	s, err := openStore()
	if err != nil {
		return outputError(cmd, "declaration-at", err)
	}
	defer s.Close()

	d, err := mallard.NewQueryBuilder(s).DeclarationAt(args[0], line, col)
	if err != nil {
		return outputError(cmd, "declaration-at", err)
	}
	if d == nil {
		return outputResult(cmd, CLIResult{Command: "declaration-at", Results: nil})
	}
	module, _, _ := strings.Cut(d.Key, "#")
	return outputResult(cmd, CLIResult{Command: "declaration-at", Results: declarationToCLI(d, module)})
}

var depsCmd = &cobra.Command{
	Use:   "deps",
	Short: "Show the module dependency graph",
	Args:  cobra.NoArgs,
	RunE:  runDeps,
}

func runDeps(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return outputError(cmd, "deps", err)
	}
	defer s.Close()

	g, err := mallard.NewQueryBuilder(s).ModuleDependencyGraph()
	if err != nil {
		return outputError(cmd, "deps", err)
	}
	out := CLIDependencyGraph{Modules: []CLIModule{}, Edges: []CLIDependencyEdge{}}
	for _, m := range g.Modules {
		out.Modules = append(out.Modules, CLIModule{Name: m.Name, ComponentType: m.ComponentType, Declarations: m.DeclarationCount})
	}
	for _, e := range g.Edges {
		out.Edges = append(out.Edges, CLIDependencyEdge{From: e.From, To: e.To, References: e.ReferenceCount})
	}
	return outputResult(cmd, CLIResult{Command: "deps", Results: out})
}

var cyclesCmd = &cobra.Command{
	Use:   "cycles",
	Short: "List circular module dependencies",
	Args:  cobra.NoArgs,
	RunE:  runCycles,
}

func runCycles(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return outputError(cmd, "cycles", err)
	}
	defer s.Close()

	cycles, err := mallard.NewQueryBuilder(s).CircularDependencies()
	if err != nil {
		return outputError(cmd, "cycles", err)
	}
	return outputResult(cmd, CLIResult{Command: "cycles", Results: cycles})
}
