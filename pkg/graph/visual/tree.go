package visual

import (
	"fmt"
	"io"
	"sort"

	"github.com/davidthor/scdctl/pkg/graph"
)

// RenderTree writes the catalog as an indented tree starting from the
// products without dependencies. Each product's children are the products
// that depend on it, in name order. A product reached again while it is
// still on the current path is printed with a "(cycle)" marker and not
// expanded, so cyclic catalogs still render.
func RenderTree(w io.Writer, g *graph.Graph) error {
	if g == nil {
		return fmt.Errorf("graph is nil")
	}
	if len(g.Nodes) == 0 {
		_, err := fmt.Fprintln(w, "(no products configured)")
		return err
	}

	t := &treeWriter{w: w, g: g, visiting: make(map[string]bool)}
	roots := g.Roots()
	for i, root := range roots {
		t.write(root, "", i == len(roots)-1)
	}
	return t.err
}

type treeWriter struct {
	w        io.Writer
	g        *graph.Graph
	visiting map[string]bool
	err      error
}

func (t *treeWriter) write(id, prefix string, last bool) {
	if t.err != nil {
		return
	}

	connector := "├── "
	if last {
		connector = "└── "
	}

	if t.visiting[id] {
		_, t.err = fmt.Fprintf(t.w, "%s%s%s (cycle)\n", prefix, connector, id)
		return
	}
	if _, t.err = fmt.Fprintf(t.w, "%s%s%s\n", prefix, connector, id); t.err != nil {
		return
	}

	t.visiting[id] = true
	defer delete(t.visiting, id)

	children := append([]string(nil), t.g.Nodes[id].DependedOnBy...)
	sort.Strings(children)

	childPrefix := prefix + "│   "
	if last {
		childPrefix = prefix + "    "
	}
	for i, child := range children {
		t.write(child, childPrefix, i == len(children)-1)
	}
}
