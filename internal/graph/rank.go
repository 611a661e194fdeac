package graph

import (
	"math"
	"sort"

	"github.com/phobologic/repograph/internal/model"
)

// Ranked is a node id with its PageRank score.
type Ranked struct {
	ID   string  `json:"id"`
	Rank float64 `json:"rank"`
}

// Rank applies PageRank over edges of type typ, treating each edge's weight
// (at least 1) as its multiplicity. Edges whose endpoints are not nodes of g
// are ignored. The result is sorted by rank descending, then id.
func Rank(g *Graph, typ model.EdgeType) []Ranked {
	if g.Len() == 0 {
		return nil
	}

	nodes := make(map[string]struct{}, g.Len())
	for _, id := range g.nodeOrder {
		nodes[id] = struct{}{}
	}

	outEdges := make(map[string]map[string]int)
	outDegree := make(map[string]int)
	for _, k := range g.edgeOrder {
		if k.Type != typ || !g.HasNode(k.Source) || !g.HasNode(k.Target) {
			continue
		}
		w := max(g.edges[k].Weight, 1)
		if outEdges[k.Source] == nil {
			outEdges[k.Source] = make(map[string]int)
		}
		outEdges[k.Source][k.Target] += w
		outDegree[k.Source] += w
	}

	ranks := pageRank(nodes, outEdges, outDegree, 0.85, 100, 1e-6)

	out := make([]Ranked, 0, len(ranks))
	for id, r := range ranks {
		out = append(out, Ranked{ID: id, Rank: r})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Rank != out[j].Rank {
			return out[i].Rank > out[j].Rank
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func pageRank(
	nodes map[string]struct{},
	outEdges map[string]map[string]int,
	outDegree map[string]int,
	alpha float64,
	maxIter int,
	tol float64,
) map[string]float64 {
	n := len(nodes)
	if n == 0 {
		return nil
	}

	rank := make(map[string]float64, n)
	initial := 1.0 / float64(n)
	for node := range nodes {
		rank[node] = initial
	}

	teleport := (1.0 - alpha) / float64(n)

	for iter := 0; iter < maxIter; iter++ {
		newRank := make(map[string]float64, n)

		// Nodes without outgoing edges spread their rank uniformly.
		var danglingSum float64
		for node := range nodes {
			if outDegree[node] == 0 {
				danglingSum += rank[node]
			}
		}
		danglingContrib := alpha * danglingSum / float64(n)

		for node := range nodes {
			newRank[node] = teleport + danglingContrib
		}

		for src, targets := range outEdges {
			deg := float64(outDegree[src])
			for tgt, w := range targets {
				newRank[tgt] += alpha * rank[src] * float64(w) / deg
			}
		}

		var diff float64
		for node := range nodes {
			diff += math.Abs(newRank[node] - rank[node])
		}

		rank = newRank

		if diff < tol {
			break
		}
	}

	return rank
}
