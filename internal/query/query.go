// Package query answers questions over repository and commit graphs.
package query

import (
	"sort"
	"strings"

	"github.com/phobologic/repograph/internal/graph"
	"github.com/phobologic/repograph/internal/history"
	"github.com/phobologic/repograph/internal/model"
	"github.com/phobologic/repograph/internal/repograph"
)

// ByModule returns the subgraph of nodes whose file path contains substr,
// with the edges between them. Attributes are preserved.
func ByModule(g *graph.Graph, substr string) *graph.Graph {
	return g.Subgraph(func(n graph.Node) bool {
		return strings.Contains(n.FilePath, substr)
	})
}

// Descendants returns every node reachable from id, sorted. An unknown id
// yields an error wrapping graph.ErrNodeNotFound.
func Descendants(g *graph.Graph, id string) ([]string, error) {
	ids, err := g.Descendants(id)
	if err != nil {
		return nil, err
	}
	sort.Strings(ids)
	return ids, nil
}

// TopModules returns the k modules with the most nodes.
func TopModules(counts []repograph.ModuleCount, k int) []repograph.ModuleCount {
	return repograph.TopModules(counts, k)
}

// Central returns the k entities with the highest PageRank over calls edges,
// weighted by call count. k <= 0 returns every node.
func Central(g *graph.Graph, k int) []graph.Ranked {
	ranked := graph.Rank(g, model.Calls)
	if k > 0 && k < len(ranked) {
		ranked = ranked[:k]
	}
	return ranked
}

// Hotspots returns the class and method nodes of a commit graph modified
// more than threshold times.
func Hotspots(g *graph.Graph, threshold int) []history.Hotspot {
	return history.Hotspots(g, threshold)
}

// Related returns the subgraph around the entities whose id contains substr
// (case-insensitive): the matches, their direct callers and callees, and the
// edges touching a match whose endpoints are both kept.
func Related(g *graph.Graph, substr string) *graph.Graph {
	lower := strings.ToLower(substr)

	matched := make(map[string]struct{})
	for _, n := range g.Nodes() {
		if n.Type == model.NodeFile || n.Type == model.NodeCommit {
			continue
		}
		if strings.Contains(strings.ToLower(n.ID), lower) {
			matched[n.ID] = struct{}{}
		}
	}

	keep := make(map[string]struct{}, len(matched))
	for id := range matched {
		keep[id] = struct{}{}
	}
	for _, e := range g.Edges() {
		if e.Type != model.Calls {
			continue
		}
		if _, ok := matched[e.Source]; ok {
			keep[e.Target] = struct{}{}
		}
		if _, ok := matched[e.Target]; ok {
			keep[e.Source] = struct{}{}
		}
	}

	sub := g.Subgraph(func(n graph.Node) bool {
		_, ok := keep[n.ID]
		return ok
	})
	out := graph.New()
	for _, n := range sub.Nodes() {
		out.SetNode(n.ID, n.Attrs)
	}
	for _, e := range sub.Edges() {
		_, srcOK := matched[e.Source]
		_, tgtOK := matched[e.Target]
		if !srcOK && !tgtOK {
			continue
		}
		if e.Type == model.Calls {
			out.AddCall(e.Source, e.Target, e.Weight)
		} else {
			out.AddEdge(e.Source, e.Target, e.Type)
		}
	}
	return out
}
