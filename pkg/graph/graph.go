package graph

import (
	"fmt"
	"sort"

	"github.com/davidthor/scdctl/pkg/errors"
	"github.com/davidthor/scdctl/pkg/schema/catalog"
)

// Graph represents the dependency graph of a product catalog.
type Graph struct {
	// All nodes in the graph
	Nodes map[string]*Node
}

// NewGraph creates a new empty graph.
func NewGraph() *Graph {
	return &Graph{Nodes: make(map[string]*Node)}
}

// AddNode adds a node to the graph.
func (g *Graph) AddNode(node *Node) error {
	if _, exists := g.Nodes[node.ID]; exists {
		return fmt.Errorf("node %s already exists", node.ID)
	}
	g.Nodes[node.ID] = node
	return nil
}

// GetNode returns a node by ID.
func (g *Graph) GetNode(id string) *Node {
	return g.Nodes[id]
}

// AddEdge adds a dependency edge from dependent to dependency.
func (g *Graph) AddEdge(dependentID, dependencyID string) error {
	dependent := g.GetNode(dependentID)
	if dependent == nil {
		return fmt.Errorf("dependent node %s not found", dependentID)
	}

	dependency := g.GetNode(dependencyID)
	if dependency == nil {
		return fmt.Errorf("dependency node %s not found", dependencyID)
	}

	dependent.AddDependency(dependencyID)
	dependency.AddDependent(dependentID)

	return nil
}

// Names returns every node ID in sorted order.
func (g *Graph) Names() []string {
	names := make([]string, 0, len(g.Nodes))
	for id := range g.Nodes {
		names = append(names, id)
	}
	sort.Strings(names)
	return names
}

// Roots returns the nodes without dependencies, sorted.
func (g *Graph) Roots() []string {
	var roots []string
	for _, id := range g.Names() {
		if len(g.Nodes[id].DependsOn) == 0 {
			roots = append(roots, id)
		}
	}
	return roots
}

// Validate checks the whole graph: no cycle among any products, every
// dependency declared, and every parameter mapping well formed. It is pure.
func (g *Graph) Validate() error {
	if err := g.DetectCycle(); err != nil {
		return err
	}
	if err := g.ValidateDependencies(); err != nil {
		return err
	}
	return g.ValidateMappings()
}

const (
	unvisited = iota
	inProgress
	done
)

type frame struct {
	id   string
	next int
}

// DetectCycle runs a depth-first traversal with three-colour marking over
// every product. Reaching a node that is still in progress means a cycle;
// the error names that node. The traversal keeps an explicit stack instead of
// recursing.
func (g *Graph) DetectCycle() error {
	color := make(map[string]int, len(g.Nodes))

	for _, root := range g.Names() {
		if color[root] != unvisited {
			continue
		}

		color[root] = inProgress
		stack := []frame{{id: root}}

		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			deps := g.Nodes[top.id].DependsOn

			if top.next == len(deps) {
				color[top.id] = done
				stack = stack[:len(stack)-1]
				continue
			}

			dep := deps[top.next]
			top.next++

			if _, ok := g.Nodes[dep]; !ok {
				continue
			}
			switch color[dep] {
			case inProgress:
				return errors.CycleError(dep)
			case unvisited:
				color[dep] = inProgress
				stack = append(stack, frame{id: dep})
			}
		}
	}

	return nil
}

// ValidateDependencies rejects dependencies on undeclared products.
func (g *Graph) ValidateDependencies() error {
	for _, id := range g.Names() {
		for _, dep := range g.Nodes[id].DependsOn {
			if _, ok := g.Nodes[dep]; !ok {
				return errors.DanglingDependencyError(id, dep)
			}
		}
	}
	return nil
}

// ValidateMappings checks that every parameter mapping reference splits
// into one "<dependency>.<output>" pair, that the dependency is listed by the
// same product, and that the dependency declares the output.
func (g *Graph) ValidateMappings() error {
	for _, id := range g.Names() {
		node := g.Nodes[id]

		params := make([]string, 0, len(node.Mappings))
		for p := range node.Mappings {
			params = append(params, p)
		}
		sort.Strings(params)

		for _, param := range params {
			ref := node.Mappings[param]
			dep, output, ok := catalog.SplitReference(ref)
			if !ok {
				return errors.MappingError(id, param, ref, "expected <dependency>.<output>")
			}
			if !node.DependsOnNode(dep) {
				return errors.MappingError(id, param, ref, fmt.Sprintf("%q is not listed in dependencies", dep))
			}
			depNode, ok := g.Nodes[dep]
			if !ok {
				return errors.MappingError(id, param, ref, fmt.Sprintf("unknown dependency %q", dep))
			}
			if !depNode.DeclaresOutput(output) {
				return errors.MappingError(id, param, ref, fmt.Sprintf("output %q is not declared by %q", output, dep))
			}
		}
	}
	return nil
}

// Order returns the products of subset so that every product follows its
// in-subset dependencies. An empty subset means every product. When several
// products are ready at once the lexicographically smallest goes first, so
// identical input always yields the same plan.
func (g *Graph) Order(subset []string) ([]string, error) {
	members := make(map[string]bool)
	if len(subset) == 0 {
		for id := range g.Nodes {
			members[id] = true
		}
	}
	for _, id := range subset {
		if _, ok := g.Nodes[id]; !ok {
			return nil, errors.UnknownProductError(id)
		}
		members[id] = true
	}

	// Kahn's algorithm
	inDegree := make(map[string]int, len(members))
	for id := range members {
		for _, dep := range g.Nodes[id].DependsOn {
			if members[dep] {
				inDegree[id]++
			}
		}
	}

	var queue []string
	for id := range members {
		if inDegree[id] == 0 {
			queue = append(queue, id)
		}
	}
	sort.Strings(queue)

	result := make([]string, 0, len(members))
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		result = append(result, id)

		for _, dependent := range g.Nodes[id].DependedOnBy {
			if !members[dependent] {
				continue
			}
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				queue = append(queue, dependent)
				// Re-sort for determinism
				sort.Strings(queue)
			}
		}
	}

	if len(result) != len(members) {
		placed := make(map[string]bool, len(result))
		for _, id := range result {
			placed[id] = true
		}
		var stuck []string
		for id := range members {
			if !placed[id] {
				stuck = append(stuck, id)
			}
		}
		sort.Strings(stuck)
		return nil, errors.SubsetCycleError(stuck)
	}

	return result, nil
}

// TopologicalSort returns every node in dependency order.
func (g *Graph) TopologicalSort() ([]*Node, error) {
	order, err := g.Order(nil)
	if err != nil {
		return nil, err
	}
	nodes := make([]*Node, len(order))
	for i, id := range order {
		nodes[i] = g.Nodes[id]
	}
	return nodes, nil
}
