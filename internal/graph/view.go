package graph

import (
	"encoding/json"
)

// View is the flat node and edge listing handed to visualization and
// persistence collaborators.
type View struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// View returns the node and edge lists of g in insertion order.
func (g *Graph) View() View {
	return View{Nodes: g.Nodes(), Edges: g.Edges()}
}

// FromView rebuilds a graph from its listing.
func FromView(v View) *Graph {
	g := New()
	for _, n := range v.Nodes {
		g.SetNode(n.ID, n.Attrs)
	}
	for _, e := range v.Edges {
		g.putEdge(e)
	}
	return g
}

// MarshalJSON encodes g as its View.
func (g *Graph) MarshalJSON() ([]byte, error) {
	return json.Marshal(g.View())
}

// UnmarshalJSON replaces g with the graph encoded as a View.
func (g *Graph) UnmarshalJSON(data []byte) error {
	var v View
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*g = *FromView(v)
	return nil
}
