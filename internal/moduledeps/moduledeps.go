// Package moduledeps orders a set of parsed modules by their `extends`/
// `imports` metadata (spec §9 Open Question (c)): these names are kept as
// unresolved strings on mtlast.Module, and this package turns that
// metadata into a dependency graph, detects cycles in it, and produces a
// load order with dependencies before dependents — the same graph
// construction and Kahn's-algorithm sort the teacher uses for package
// build ordering, re-targeted from Go package imports to module
// extends/imports names.
package moduledeps

import "fmt"

// Graph is the dependency graph over a set of named modules.
type Graph struct {
	Nodes map[string]*Node
}

// Node is one module's position in the graph.
type Node struct {
	Name         string
	Dependencies []string
	Dependents   []string
}

// ModuleInfo is the subset of a parsed module's metadata moduledeps needs:
// its name and its extends/imports references.
type ModuleInfo struct {
	Name    string
	Parent  string
	Imports []string
}

// Build constructs the dependency graph over modules. A reference to a
// module not present in modules is ignored (it names an external or
// not-yet-loaded module, spec §9 OQ (c): "no cross-module symbol
// resolution is implemented").
func Build(modules []ModuleInfo) *Graph {
	g := &Graph{Nodes: make(map[string]*Node, len(modules))}
	for _, m := range modules {
		g.Nodes[m.Name] = &Node{Name: m.Name}
	}
	for _, m := range modules {
		node := g.Nodes[m.Name]
		refs := m.Imports
		if m.Parent != "" {
			refs = append(append([]string{}, refs...), m.Parent)
		}
		for _, dep := range refs {
			depNode, ok := g.Nodes[dep]
			if !ok {
				continue
			}
			node.Dependencies = append(node.Dependencies, dep)
			depNode.Dependents = append(depNode.Dependents, m.Name)
		}
	}
	return g
}

// Cycle is one detected circular extends/imports chain, named start to
// end (the last entry repeats the first to close the loop).
type Cycle []string

// DetectCycles runs a depth-first search over g and returns every cycle
// found.
func DetectCycles(g *Graph) []Cycle {
	var cycles []Cycle
	visited := map[string]bool{}
	onStack := map[string]bool{}
	var path []string

	var visit func(name string)
	visit = func(name string) {
		visited[name] = true
		onStack[name] = true
		path = append(path, name)

		if node, ok := g.Nodes[name]; ok {
			for _, dep := range node.Dependencies {
				if !visited[dep] {
					visit(dep)
				} else if onStack[dep] {
					start := 0
					for i, p := range path {
						if p == dep {
							start = i
							break
						}
					}
					cycle := append([]string{}, path[start:]...)
					cycle = append(cycle, dep)
					cycles = append(cycles, cycle)
				}
			}
		}

		path = path[:len(path)-1]
		onStack[name] = false
	}

	for name := range g.Nodes {
		if !visited[name] {
			visit(name)
		}
	}
	return cycles
}

// Order returns modules topologically sorted, dependencies before
// dependents (Kahn's algorithm). Returns an error if g contains a cycle.
func Order(g *Graph) ([]string, error) {
	inDegree := make(map[string]int, len(g.Nodes))
	for _, node := range g.Nodes {
		inDegree[node.Name] = len(node.Dependencies)
	}

	var queue []string
	for name, degree := range inDegree {
		if degree == 0 {
			queue = append(queue, name)
		}
	}

	result := make([]string, 0, len(g.Nodes))
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		result = append(result, current)

		if node, ok := g.Nodes[current]; ok {
			for _, dependent := range node.Dependents {
				inDegree[dependent]--
				if inDegree[dependent] == 0 {
					queue = append(queue, dependent)
				}
			}
		}
	}

	if len(result) != len(g.Nodes) {
		return nil, fmt.Errorf("moduledeps: extends/imports cycle detected among %d module(s)", len(g.Nodes)-len(result))
	}
	return result, nil
}
