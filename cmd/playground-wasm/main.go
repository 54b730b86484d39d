//go:build js && wasm

package main

import (
	"encoding/json"
	"strings"
	"syscall/js"

	"github.com/davidthor/scdctl/pkg/graph"
	"github.com/davidthor/scdctl/pkg/graph/visual"
	"github.com/davidthor/scdctl/pkg/schema/catalog"
)

type result struct {
	Mermaid string   `json:"mermaid,omitempty"`
	Order   []string `json:"order,omitempty"`
	Nodes   int      `json:"nodes"`
	Edges   int      `json:"edges"`
	Errors  []string `json:"errors,omitempty"`
}

// parseCatalog takes catalog YAML and an optional comma-separated product
// subset. It reports every validation problem, and still draws the graph
// when the only problems are in mappings or dependencies.
func parseCatalog(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return toJS(result{Errors: []string{"missing yaml argument"}})
	}

	c, err := catalog.ParseCatalog([]byte(args[0].String()), "catalog.yaml")
	if err != nil {
		return toJS(result{Errors: []string{err.Error()}})
	}
	g := graph.FromCatalog(c)

	r := result{Nodes: len(g.Nodes)}
	for _, n := range g.Nodes {
		r.Edges += len(n.DependsOn)
	}

	if err := g.DetectCycle(); err != nil {
		r.Errors = append(r.Errors, err.Error())
		return toJS(r)
	}
	for _, check := range []func() error{g.ValidateDependencies, g.ValidateMappings} {
		if err := check(); err != nil {
			r.Errors = append(r.Errors, err.Error())
		}
	}

	r.Mermaid, err = visual.RenderMermaid(g, visual.MermaidOptions{GroupByPortfolio: true, Direction: "TD"})
	if err != nil {
		r.Errors = append(r.Errors, err.Error())
	}

	var subset []string
	if len(args) > 1 {
		for _, name := range strings.Split(args[1].String(), ",") {
			if name = strings.TrimSpace(name); name != "" {
				subset = append(subset, name)
			}
		}
	}
	if r.Order, err = g.Order(subset); err != nil {
		r.Errors = append(r.Errors, err.Error())
	}
	return toJS(r)
}

func toJS(r result) interface{} {
	data, _ := json.Marshal(r)
	return js.ValueOf(string(data))
}

func main() {
	js.Global().Set("scdctlParseCatalog", js.FuncOf(parseCatalog))
	// Signal that the module is ready
	if cb := js.Global().Get("_scdctlReady"); !cb.IsUndefined() && !cb.IsNull() {
		cb.Invoke()
	}
	// Block forever
	select {}
}
