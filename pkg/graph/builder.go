package graph

import (
	"github.com/davidthor/scdctl/pkg/schema/catalog"
)

// FromCatalog builds the graph of every product in the catalog. Edges are
// added only between declared products; a dependency on an undeclared
// product stays in DependsOn for Validate to report.
func FromCatalog(c *catalog.CatalogFile) *Graph {
	g := NewGraph()

	for _, name := range c.ProductNames() {
		spec := c.Products[name]
		node := NewNode(name)
		node.Portfolio = spec.Portfolio
		node.Outputs = append(node.Outputs, spec.Outputs...)
		for param, ref := range spec.ParameterMapping {
			node.Mappings[param] = ref
		}
		_ = g.AddNode(node)
	}

	for _, name := range c.ProductNames() {
		node := g.Nodes[name]
		for _, dep := range c.Products[name].Dependencies {
			if err := g.AddEdge(name, dep); err != nil {
				node.AddDependency(dep)
			}
		}
	}

	return g
}
