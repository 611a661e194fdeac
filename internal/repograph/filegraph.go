// Package repograph builds per-file code graphs and composes them into a
// repository-wide graph.
package repograph

import (
	"sort"

	"github.com/phobologic/repograph/internal/extract"
	"github.com/phobologic/repograph/internal/graph"
	"github.com/phobologic/repograph/internal/model"
)

// BuildFileGraph turns the entities of one file into a graph: class,
// function and method nodes, class→method contains edges, weighted calls
// edges from usage, and class→base inherit edges. Bases need not exist in
// the graph. Calling it twice on the same result yields equal graphs.
func BuildFileGraph(path string, res *extract.Result) *graph.Graph {
	g := graph.New()
	if res == nil {
		return g
	}

	for _, name := range res.ClassOrder {
		c := res.Classes[name]
		g.AddNode(name, graph.Attrs{Type: model.NodeClass, FilePath: path})
		for _, base := range c.Bases {
			g.AddEdge(name, base, model.Inherit)
		}
		for _, m := range res.Methods(name) {
			id := m.Key.String()
			g.AddNode(id, graph.Attrs{Type: model.NodeMethod, FilePath: path})
			g.AddEdge(name, id, model.Contains)
			addUsage(g, id, m.Usage)
		}
	}

	for _, f := range res.TopLevel() {
		id := f.Key.String()
		g.AddNode(id, graph.Attrs{Type: model.NodeFunction, FilePath: path})
		addUsage(g, id, f.Usage)
	}
	return g
}

// addUsage emits calls edges in callee order so the edge order does not
// depend on map iteration.
func addUsage(g *graph.Graph, caller string, usage map[string]int) {
	callees := make([]string, 0, len(usage))
	for callee := range usage {
		callees = append(callees, callee)
	}
	sort.Strings(callees)
	for _, callee := range callees {
		g.AddCall(caller, callee, usage[callee])
	}
}

// StampSize sets the size bucket on every node of g.
func StampSize(g *graph.Graph, size model.Size) {
	for _, n := range g.Nodes() {
		g.AddNode(n.ID, graph.Attrs{Size: size})
	}
}
