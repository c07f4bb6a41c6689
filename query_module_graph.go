package mallard

import (
	"fmt"
	"sort"
)

// DependencyGraph is the module-to-module graph, aggregated from bound
// references.
type DependencyGraph struct {
	Modules []ModuleNode
	Edges   []DependencyEdge
}

// ModuleNode is a module in the dependency graph.
type ModuleNode struct {
	Name             string // "Project.Component"
	ComponentType    string
	DeclarationCount int
}

// DependencyEdge counts the references From holds into To.
type DependencyEdge struct {
	From           string
	To             string
	ReferenceCount int
}

// ModuleDependencyGraph returns the module-to-module dependency graph.
// References into project declarations and references a module holds into
// itself do not produce edges.
func (q *QueryBuilder) ModuleDependencyGraph() (*DependencyGraph, error) {
	rows, err := q.store.DB().Query(
		`SELECT m.project || '.' || m.component, m.component_type,
		        (SELECT COUNT(*) FROM declarations d WHERE d.module_id = m.id)
		 FROM modules m
		 ORDER BY m.project, m.component`,
	)
	if err != nil {
		return nil, fmt.Errorf("module dependency graph: query modules: %w", err)
	}
	defer rows.Close()

	modules := []ModuleNode{}
	known := map[string]bool{}
	for rows.Next() {
		var n ModuleNode
		if err := rows.Scan(&n.Name, &n.ComponentType, &n.DeclarationCount); err != nil {
			return nil, fmt.Errorf("module dependency graph: scan module: %w", err)
		}
		modules = append(modules, n)
		known[n.Name] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("module dependency graph: module rows: %w", err)
	}

	edgeRows, err := q.store.DB().Query(
		`SELECT m.project || '.' || m.component AS source, r.target_module, COUNT(*)
		 FROM references_ r
		 JOIN modules m ON m.id = r.module_id
		 WHERE r.target_module != (m.project || '.' || m.component)
		 GROUP BY source, r.target_module`,
	)
	if err != nil {
		return nil, fmt.Errorf("module dependency graph: query edges: %w", err)
	}
	defer edgeRows.Close()

	edges := []DependencyEdge{}
	for edgeRows.Next() {
		var e DependencyEdge
		if err := edgeRows.Scan(&e.From, &e.To, &e.ReferenceCount); err != nil {
			return nil, fmt.Errorf("module dependency graph: scan edge: %w", err)
		}
		if !known[e.To] {
			continue
		}
		edges = append(edges, e)
	}
	if err := edgeRows.Err(); err != nil {
		return nil, fmt.Errorf("module dependency graph: edge rows: %w", err)
	}

	sort.Slice(edges, func(i, j int) bool {
		if edges[i].From != edges[j].From {
			return edges[i].From < edges[j].From
		}
		return edges[i].To < edges[j].To
	})
	return &DependencyGraph{Modules: modules, Edges: edges}, nil
}

// CircularDependencies detects cycles in the module dependency graph using
// Tarjan's strongly connected components algorithm. Each cycle lists its
// modules with the first repeated at the end. Returns an empty list (not
// nil) for acyclic graphs.
func (q *QueryBuilder) CircularDependencies() ([][]string, error) {
	graph, err := q.ModuleDependencyGraph()
	if err != nil {
		return nil, fmt.Errorf("circular dependencies: %w", err)
	}

	adj := map[string][]string{}
	for _, edge := range graph.Edges {
		adj[edge.From] = append(adj[edge.From], edge.To)
	}

	type nodeInfo struct {
		index   int
		lowlink int
		onStack bool
	}
	info := map[string]*nodeInfo{}
	index := 0
	var stack []string
	result := [][]string{}

	var strongconnect func(v string)
	strongconnect = func(v string) {
		ni := &nodeInfo{index: index, lowlink: index, onStack: true}
		info[v] = ni
		index++
		stack = append(stack, v)

		for _, w := range adj[v] {
			wInfo, visited := info[w]
			if !visited {
				strongconnect(w)
				ni.lowlink = min(ni.lowlink, info[w].lowlink)
			} else if wInfo.onStack {
				ni.lowlink = min(ni.lowlink, wInfo.index)
			}
		}

		if ni.lowlink != ni.index {
			return
		}
		var scc []string
		for {
			w := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			info[w].onStack = false
			scc = append(scc, w)
			if w == v {
				break
			}
		}
		// Self references never become edges, so only multi-module SCCs
		// are cycles.
		if len(scc) > 1 {
			for i, j := 0, len(scc)-1; i < j; i, j = i+1, j-1 {
				scc[i], scc[j] = scc[j], scc[i]
			}
			result = append(result, append(scc, scc[0]))
		}
	}

	for _, m := range graph.Modules {
		if _, visited := info[m.Name]; !visited {
			strongconnect(m.Name)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i][0] < result[j][0]
	})
	return result, nil
}
