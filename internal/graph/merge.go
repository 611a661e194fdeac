package graph

import (
	"fmt"
)

// MergePolicy decides what happens when two graphs being merged share a
// node identity.
type MergePolicy string

const (
	// LastWriterWins updates the existing node with the incoming node's set
	// attributes and takes the incoming weight of shared edges. This is the
	// reference behavior: same-named entities from different files collapse
	// into one node.
	LastWriterWins MergePolicy = "last-writer-wins"
	// FirstWriterWins keeps existing attributes and weights untouched.
	FirstWriterWins MergePolicy = "first-writer-wins"
	// Strict refuses to merge graphs that share a node identity.
	Strict MergePolicy = "strict"
)

// ParseMergePolicy validates a policy name. The empty string selects
// LastWriterWins.
func ParseMergePolicy(s string) (MergePolicy, error) {
	switch MergePolicy(s) {
	case "":
		return LastWriterWins, nil
	case LastWriterWins, FirstWriterWins, Strict:
		return MergePolicy(s), nil
	}
	return "", fmt.Errorf("unknown merge policy %q", s)
}

// Merge folds other into g according to policy. Under Strict, g is left
// unchanged when a collision is found.
func (g *Graph) Merge(other *Graph, policy MergePolicy) error {
	if policy == Strict {
		for _, id := range other.nodeOrder {
			if g.HasNode(id) {
				return fmt.Errorf("%w: %s", ErrNodeCollision, id)
			}
		}
	}

	for _, id := range other.nodeOrder {
		incoming := other.nodes[id].Attrs
		existing, ok := g.nodes[id]
		switch {
		case !ok:
			g.SetNode(id, incoming)
		case policy == FirstWriterWins:
		default:
			existing.update(incoming)
		}
	}

	for _, k := range other.edgeOrder {
		incoming := *other.edges[k]
		if _, ok := g.edges[k]; ok && policy == FirstWriterWins {
			continue
		}
		g.putEdge(incoming)
	}
	return nil
}

// Compose reduces an ordered sequence of graphs into a new graph, merging
// them in the given order.
func Compose(policy MergePolicy, graphs ...*Graph) (*Graph, error) {
	out := New()
	for _, part := range graphs {
		if part == nil {
			continue
		}
		if err := out.Merge(part, policy); err != nil {
			return nil, err
		}
	}
	return out, nil
}
