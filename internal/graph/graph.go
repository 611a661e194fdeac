// Package graph implements the directed, typed multigraph shared by the
// repository and commit graphs: string-keyed nodes with attributes and at
// most one edge per (source, target, type).
package graph

import (
	"errors"
	"fmt"

	"github.com/phobologic/repograph/internal/model"
)

var (
	// ErrNodeNotFound is returned by queries that start from an unknown node.
	ErrNodeNotFound = errors.New("node not found")
	// ErrNodeCollision is returned by a Strict merge when both graphs
	// define the same node identity.
	ErrNodeCollision = errors.New("node identity collision")
)

// Attrs are the node attributes. Zero values mean "unset".
type Attrs struct {
	Type              model.NodeType `json:"type"`
	FilePath          string         `json:"file_path,omitempty"`
	Size              model.Size     `json:"size,omitempty"`
	Author            string         `json:"author,omitempty"`
	Date              string         `json:"date,omitempty"`
	Message           string         `json:"message,omitempty"`
	ModificationCount int            `json:"modification_count,omitempty"`
}

// update overwrites the attributes that are set in other.
func (a *Attrs) update(other Attrs) {
	if other.Type != "" {
		a.Type = other.Type
	}
	if other.FilePath != "" {
		a.FilePath = other.FilePath
	}
	if other.Size != "" {
		a.Size = other.Size
	}
	if other.Author != "" {
		a.Author = other.Author
	}
	if other.Date != "" {
		a.Date = other.Date
	}
	if other.Message != "" {
		a.Message = other.Message
	}
	if other.ModificationCount != 0 {
		a.ModificationCount = other.ModificationCount
	}
}

// Node is a graph vertex.
type Node struct {
	ID string `json:"id"`
	Attrs
}

// EdgeKey is the identity of an edge.
type EdgeKey struct {
	Source string
	Target string
	Type   model.EdgeType
}

// Edge is a directed, typed connection. Weight is only meaningful for
// model.Calls edges.
type Edge struct {
	Source string         `json:"source"`
	Target string         `json:"target"`
	Type   model.EdgeType `json:"type"`
	Weight int            `json:"weight,omitempty"`
}

// Key returns the identity of e.
func (e Edge) Key() EdgeKey {
	return EdgeKey{Source: e.Source, Target: e.Target, Type: e.Type}
}

// Graph is an insertion-ordered directed graph. Edges may reference nodes
// that are not in the graph (e.g. a base class defined elsewhere); adding an
// edge never creates its endpoints. Not safe for concurrent mutation.
type Graph struct {
	nodes     map[string]*Node
	nodeOrder []string
	edges     map[EdgeKey]*Edge
	edgeOrder []EdgeKey
	out       map[string][]EdgeKey
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{
		nodes: make(map[string]*Node),
		edges: make(map[EdgeKey]*Edge),
		out:   make(map[string][]EdgeKey),
	}
}

// AddNode inserts a node or, when it exists, overwrites the attributes set
// in attrs and keeps the rest.
func (g *Graph) AddNode(id string, attrs Attrs) *Node {
	if n, ok := g.nodes[id]; ok {
		n.update(attrs)
		return n
	}
	n := &Node{ID: id, Attrs: attrs}
	g.nodes[id] = n
	g.nodeOrder = append(g.nodeOrder, id)
	return n
}

// SetNode inserts a node or replaces all of its attributes.
func (g *Graph) SetNode(id string, attrs Attrs) *Node {
	n := g.AddNode(id, Attrs{})
	n.Attrs = attrs
	return n
}

// Node returns the node with the given id.
func (g *Graph) Node(id string) (*Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// HasNode reports whether id is a node of g.
func (g *Graph) HasNode(id string) bool {
	_, ok := g.nodes[id]
	return ok
}

// Nodes returns copies of all nodes in insertion order.
func (g *Graph) Nodes() []Node {
	out := make([]Node, 0, len(g.nodeOrder))
	for _, id := range g.nodeOrder {
		out = append(out, *g.nodes[id])
	}
	return out
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	return len(g.nodeOrder)
}

// AddEdge inserts an unweighted edge. Adding an existing edge is a no-op.
func (g *Graph) AddEdge(source, target string, typ model.EdgeType) *Edge {
	key := EdgeKey{Source: source, Target: target, Type: typ}
	if e, ok := g.edges[key]; ok {
		return e
	}
	e := &Edge{Source: source, Target: target, Type: typ}
	g.edges[key] = e
	g.edgeOrder = append(g.edgeOrder, key)
	g.out[source] = append(g.out[source], key)
	return e
}

// AddCall records count observed calls from caller to callee. Repeated
// observations of the same pair add to the weight of a single edge.
func (g *Graph) AddCall(caller, callee string, count int) *Edge {
	e := g.AddEdge(caller, callee, model.Calls)
	e.Weight += count
	return e
}

// Edge returns the edge with the given identity.
func (g *Graph) Edge(source, target string, typ model.EdgeType) (*Edge, bool) {
	e, ok := g.edges[EdgeKey{Source: source, Target: target, Type: typ}]
	return e, ok
}

// Edges returns copies of all edges in insertion order.
func (g *Graph) Edges() []Edge {
	out := make([]Edge, 0, len(g.edgeOrder))
	for _, k := range g.edgeOrder {
		out = append(out, *g.edges[k])
	}
	return out
}

// EdgeCount returns the number of edges.
func (g *Graph) EdgeCount() int {
	return len(g.edgeOrder)
}

// OutEdges returns copies of the edges leaving id in insertion order.
func (g *Graph) OutEdges(id string) []Edge {
	keys := g.out[id]
	out := make([]Edge, 0, len(keys))
	for _, k := range keys {
		out = append(out, *g.edges[k])
	}
	return out
}

// InEdges returns copies of the edges entering id in insertion order.
func (g *Graph) InEdges(id string) []Edge {
	var in []Edge
	for _, k := range g.edgeOrder {
		if k.Target == id {
			in = append(in, *g.edges[k])
		}
	}
	return in
}

// Successors returns the distinct targets of edges leaving id, in insertion
// order.
func (g *Graph) Successors(id string) []string {
	seen := make(map[string]struct{})
	var succ []string
	for _, k := range g.out[id] {
		if _, dup := seen[k.Target]; dup {
			continue
		}
		seen[k.Target] = struct{}{}
		succ = append(succ, k.Target)
	}
	return succ
}

// Descendants returns every node id reachable from id by a directed path of
// length at least one, in breadth-first discovery order. id itself is only
// included when it lies on a cycle. Dangling edge targets are included since
// they are reachable references.
func (g *Graph) Descendants(id string) ([]string, error) {
	if !g.HasNode(id) {
		return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}
	seen := map[string]struct{}{}
	var out []string
	queue := []string{id}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, next := range g.Successors(cur) {
			if _, ok := seen[next]; ok {
				continue
			}
			seen[next] = struct{}{}
			out = append(out, next)
			queue = append(queue, next)
		}
	}
	return out, nil
}

// Subgraph returns a new graph with the nodes accepted by keep (attributes
// copied) and the edges whose endpoints are both kept.
func (g *Graph) Subgraph(keep func(Node) bool) *Graph {
	sub := New()
	for _, id := range g.nodeOrder {
		if n := g.nodes[id]; keep(*n) {
			sub.SetNode(id, n.Attrs)
		}
	}
	for _, k := range g.edgeOrder {
		if sub.HasNode(k.Source) && sub.HasNode(k.Target) {
			e := *g.edges[k]
			sub.putEdge(e)
		}
	}
	return sub
}

// Clone returns a deep copy of g.
func (g *Graph) Clone() *Graph {
	c := New()
	for _, id := range g.nodeOrder {
		c.SetNode(id, g.nodes[id].Attrs)
	}
	for _, k := range g.edgeOrder {
		c.putEdge(*g.edges[k])
	}
	return c
}

// putEdge inserts e or overwrites the weight of the existing edge.
func (g *Graph) putEdge(e Edge) {
	stored := g.AddEdge(e.Source, e.Target, e.Type)
	stored.Weight = e.Weight
}
