// Package graph provides the catalog dependency graph: construction from the
// product catalog, validation and deterministic ordering.
package graph

// Node is one product in the catalog graph.
type Node struct {
	// Product name, unique within the catalog
	ID string

	// Portfolio key the product is published through, if any
	Portfolio string

	// Dependencies - product names this node depends on, in declared order.
	// Names the catalog does not declare are kept so validation can report
	// them.
	DependsOn []string

	// Dependents - IDs of nodes that depend on this node
	DependedOnBy []string

	// Parameter name to "<dependency>.<output>" reference
	Mappings map[string]string

	// Output names the product declares
	Outputs []string
}

// NewNode creates a new graph node for a product.
func NewNode(id string) *Node {
	return &Node{
		ID:           id,
		DependsOn:    []string{},
		DependedOnBy: []string{},
		Mappings:     make(map[string]string),
	}
}

// AddDependency adds a dependency to this node.
func (n *Node) AddDependency(nodeID string) {
	for _, dep := range n.DependsOn {
		if dep == nodeID {
			return // Already exists
		}
	}
	n.DependsOn = append(n.DependsOn, nodeID)
}

// AddDependent adds a dependent to this node.
func (n *Node) AddDependent(nodeID string) {
	for _, dep := range n.DependedOnBy {
		if dep == nodeID {
			return // Already exists
		}
	}
	n.DependedOnBy = append(n.DependedOnBy, nodeID)
}

// DependsOnNode reports whether id is a declared dependency.
func (n *Node) DependsOnNode(id string) bool {
	for _, dep := range n.DependsOn {
		if dep == id {
			return true
		}
	}
	return false
}

// DeclaresOutput reports whether the product declares the named output.
func (n *Node) DeclaresOutput(name string) bool {
	for _, o := range n.Outputs {
		if o == name {
			return true
		}
	}
	return false
}
