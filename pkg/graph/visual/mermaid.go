// Package visual renders the catalog graph for humans: Mermaid flowcharts,
// PNG images through mermaid-cli and the plain-text dependency tree.
package visual

import (
	"fmt"
	"sort"
	"strings"

	"github.com/davidthor/scdctl/pkg/graph"
)

// MermaidOptions controls how a graph is rendered to a Mermaid flowchart.
type MermaidOptions struct {
	// GroupByPortfolio uses subgraphs to group products by portfolio.
	// Products without a portfolio are rendered outside any subgraph.
	GroupByPortfolio bool

	// Direction is the flowchart direction: "TD" (top-down) or "LR" (left-right).
	// Defaults to "TD" if empty.
	Direction string

	// Title is an optional diagram title rendered as front matter.
	Title string
}

// ImageOptions extends MermaidOptions with image rendering settings.
type ImageOptions struct {
	MermaidOptions

	// Format is png, svg or pdf. Defaults to png.
	Format string

	// Width is the image width in pixels. 0 means auto.
	Width int

	// Height is the image height in pixels. 0 means auto.
	Height int

	// Background is the background colour (e.g., "white", "transparent").
	Background string

	// Theme is the Mermaid theme (default, dark, forest, neutral).
	// Defaults to "default" if empty.
	Theme string
}

// RenderMermaid generates a Mermaid flowchart from the catalog graph. Edges
// point from a dependency to the products that consume it. The graph must be
// acyclic.
func RenderMermaid(g *graph.Graph, opts MermaidOptions) (string, error) {
	if g == nil {
		return "", fmt.Errorf("graph is nil")
	}

	direction := opts.Direction
	if direction == "" {
		direction = "TD"
	}

	sorted, err := g.TopologicalSort()
	if err != nil {
		return "", fmt.Errorf("failed to sort graph: %w", err)
	}

	var b strings.Builder

	if opts.Title != "" {
		b.WriteString(fmt.Sprintf("---\ntitle: %s\n---\n", opts.Title))
	}

	b.WriteString(fmt.Sprintf("flowchart %s\n", direction))

	displayIDs := make(map[string]string, len(sorted))
	for _, node := range sorted {
		displayIDs[node.ID] = sanitizeMermaidID(node.ID)
	}

	if opts.GroupByPortfolio {
		renderGrouped(&b, sorted, displayIDs)
	} else {
		renderFlat(&b, sorted, displayIDs)
	}

	renderEdges(&b, sorted, displayIDs)

	return b.String(), nil
}

func renderFlat(b *strings.Builder, sorted []*graph.Node, displayIDs map[string]string) {
	for _, node := range sorted {
		b.WriteString(fmt.Sprintf("    %s[\"%s\"]\n", displayIDs[node.ID], escapeMermaidLabel(node.ID)))
	}
	b.WriteString("\n")
}

// renderGrouped renders products grouped by portfolio using Mermaid subgraphs.
func renderGrouped(b *strings.Builder, sorted []*graph.Node, displayIDs map[string]string) {
	byPortfolio := make(map[string][]*graph.Node)
	var order []string
	for _, node := range sorted {
		if _, seen := byPortfolio[node.Portfolio]; !seen {
			order = append(order, node.Portfolio)
		}
		byPortfolio[node.Portfolio] = append(byPortfolio[node.Portfolio], node)
	}

	for _, portfolio := range order {
		nodes := byPortfolio[portfolio]
		if portfolio == "" {
			for _, node := range nodes {
				b.WriteString(fmt.Sprintf("    %s[\"%s\"]\n", displayIDs[node.ID], escapeMermaidLabel(node.ID)))
			}
			b.WriteString("\n")
			continue
		}

		b.WriteString(fmt.Sprintf("    subgraph %s [\"%s\"]\n", sanitizeSubgraphID(portfolio), escapeMermaidLabel(portfolio)))
		for _, node := range nodes {
			b.WriteString(fmt.Sprintf("        %s[\"%s\"]\n", displayIDs[node.ID], escapeMermaidLabel(node.ID)))
		}
		b.WriteString("    end\n\n")
	}
}

func renderEdges(b *strings.Builder, sorted []*graph.Node, displayIDs map[string]string) {
	for _, node := range sorted {
		deps := make([]string, len(node.DependsOn))
		copy(deps, node.DependsOn)
		sort.Strings(deps)

		for _, dep := range deps {
			if depID, ok := displayIDs[dep]; ok {
				b.WriteString(fmt.Sprintf("    %s --> %s\n", depID, displayIDs[node.ID]))
			}
		}
	}
}

// sanitizeMermaidID turns a product name into a Mermaid-safe identifier.
// Mermaid reserves "end" and chokes on dashes and dots in bare identifiers.
func sanitizeMermaidID(id string) string {
	r := strings.NewReplacer("-", "_", ".", "_", " ", "_", "/", "_")
	return "p_" + r.Replace(id)
}

func sanitizeSubgraphID(portfolio string) string {
	r := strings.NewReplacer("/", "_", "-", "_", ".", "_", " ", "_")
	return "sg_" + r.Replace(portfolio)
}

// escapeMermaidLabel escapes characters that have special meaning in Mermaid labels.
func escapeMermaidLabel(s string) string {
	return strings.ReplaceAll(s, `"`, `#quot;`)
}
