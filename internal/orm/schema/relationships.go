package schema

import (
	"fmt"
	"sort"
	"strings"
)

// RelationshipGraph represents the write-dependency graph between resources. An edge
// A -> B means A stores a foreign key to B, so B must be written before A.
type RelationshipGraph struct {
	nodes map[string]*ResourceSchema
	edges map[string][]string
}

// NewRelationshipGraph creates a new relationship graph
func NewRelationshipGraph(schemas map[string]*ResourceSchema) *RelationshipGraph {
	graph := &RelationshipGraph{
		nodes: schemas,
		edges: make(map[string][]string),
	}

	for _, name := range sortedNames(schemas) {
		schema := schemas[name]
		for _, relName := range sortedRelationships(schema) {
			rel := schema.Relationships[relName]
			switch rel.Type {
			case RelationshipBelongsTo:
				graph.edges[name] = appendUnique(graph.edges[name], rel.TargetResource)
			case RelationshipHasOne, RelationshipHasMany:
				graph.edges[rel.TargetResource] = appendUnique(graph.edges[rel.TargetResource], name)
			}
		}
	}

	return graph
}

// DetectCycles detects circular write dependencies in the relationship graph.
// Self-references (a comment replying to a comment) are reported as one-node cycles.
func (g *RelationshipGraph) DetectCycles() [][]string {
	var cycles [][]string
	visited := make(map[string]bool)
	recursionStack := make(map[string]bool)

	var dfs func(node string, path []string)
	dfs = func(node string, path []string) {
		visited[node] = true
		recursionStack[node] = true
		path = append(path, node)

		for _, neighbor := range g.edges[node] {
			if !visited[neighbor] {
				dfs(neighbor, path)
			} else if recursionStack[neighbor] {
				for i, n := range path {
					if n == neighbor {
						cycle := make([]string, len(path)-i)
						copy(cycle, path[i:])
						cycles = append(cycles, cycle)
						break
					}
				}
			}
		}

		recursionStack[node] = false
	}

	for _, node := range sortedNames(g.nodes) {
		if !visited[node] {
			dfs(node, []string{})
		}
	}

	return cycles
}

// TopologicalSort returns resources in write order (dependencies first)
func (g *RelationshipGraph) TopologicalSort() ([]string, error) {
	outDegree := make(map[string]int)
	for node := range g.nodes {
		outDegree[node] = len(g.edges[node])
	}

	reverseEdges := make(map[string][]string)
	for _, source := range sortedKeys(g.edges) {
		for _, target := range g.edges[source] {
			reverseEdges[target] = append(reverseEdges[target], source)
		}
	}

	queue := []string{}
	for _, node := range sortedNames(g.nodes) {
		if outDegree[node] == 0 {
			queue = append(queue, node)
		}
	}

	result := []string{}
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		result = append(result, node)

		for _, dependent := range reverseEdges[node] {
			outDegree[dependent]--
			if outDegree[dependent] == 0 {
				queue = append(queue, dependent)
			}
		}
	}

	if len(result) != len(g.nodes) {
		cycles := g.DetectCycles()
		if len(cycles) > 0 {
			return nil, fmt.Errorf("circular dependency detected: %s", formatCycles(cycles))
		}
		return nil, fmt.Errorf("circular dependency detected")
	}

	return result, nil
}

// GetDependencies returns all direct dependencies of a resource
func (g *RelationshipGraph) GetDependencies(resource string) []string {
	deps, exists := g.edges[resource]
	if !exists {
		return []string{}
	}
	return deps
}

// ValidateGraph checks that every relationship points at a registered resource and
// that foreign keys live on declared columns.
func (g *RelationshipGraph) ValidateGraph() error {
	var errs []string

	for _, name := range sortedNames(g.nodes) {
		schema := g.nodes[name]
		for _, relName := range sortedRelationships(schema) {
			rel := schema.Relationships[relName]
			target, exists := g.nodes[rel.TargetResource]
			if !exists {
				errs = append(errs, fmt.Sprintf("resource %s references unknown resource %s in relationship %s",
					schema.Name, rel.TargetResource, rel.FieldName))
				continue
			}
			if (rel.Type == RelationshipHasOne || rel.Type == RelationshipHasMany) && !target.IsColumn(rel.ForeignKey) {
				errs = append(errs, fmt.Sprintf("resource %s relationship %s: foreign key %s is not a field of %s",
					schema.Name, rel.FieldName, rel.ForeignKey, target.Name))
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "\n"))
	}
	return nil
}

// formatCycles formats cycle information for error messages
func formatCycles(cycles [][]string) string {
	var b strings.Builder
	for i, cycle := range cycles {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(fmt.Sprintf("  Cycle %d: %s -> %s",
			i+1,
			strings.Join(cycle, " -> "),
			cycle[0]))
	}
	return b.String()
}

// DependencyReport contains the results of dependency analysis
type DependencyReport struct {
	TotalResources   int
	Dependencies     map[string][]string
	CircularDeps     [][]string
	HasCycles        bool
	TopologicalOrder []string
}

// Analyze performs dependency analysis over the graph
func (g *RelationshipGraph) Analyze() *DependencyReport {
	report := &DependencyReport{
		TotalResources: len(g.nodes),
		Dependencies:   make(map[string][]string),
	}

	for name := range g.nodes {
		report.Dependencies[name] = g.GetDependencies(name)
	}

	report.CircularDeps = g.DetectCycles()
	report.HasCycles = len(report.CircularDeps) > 0

	if order, err := g.TopologicalSort(); err == nil {
		report.TopologicalOrder = order
	}

	return report
}

// String formats the dependency report
func (r *DependencyReport) String() string {
	var b strings.Builder

	b.WriteString("Dependency Analysis Report\n")
	b.WriteString(fmt.Sprintf("Total Resources: %d\n\n", r.TotalResources))

	if r.HasCycles {
		b.WriteString("Circular write dependencies (nested writes must break them with nullable keys):\n")
		b.WriteString(formatCycles(r.CircularDeps))
		b.WriteString("\n\n")
	}

	if len(r.TopologicalOrder) > 0 {
		b.WriteString("Write order:\n")
		for i, resource := range r.TopologicalOrder {
			deps := r.Dependencies[resource]
			if len(deps) > 0 {
				b.WriteString(fmt.Sprintf("  %d. %s (after: %s)\n",
					i+1, resource, strings.Join(deps, ", ")))
			} else {
				b.WriteString(fmt.Sprintf("  %d. %s\n", i+1, resource))
			}
		}
	}

	return b.String()
}

func appendUnique(list []string, value string) []string {
	for _, v := range list {
		if v == value {
			return list
		}
	}
	return append(list, value)
}

func sortedNames(schemas map[string]*ResourceSchema) []string {
	names := make([]string, 0, len(schemas))
	for name := range schemas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func sortedKeys(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedRelationships(schema *ResourceSchema) []string {
	names := make([]string, 0, len(schema.Relationships))
	for name := range schema.Relationships {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
