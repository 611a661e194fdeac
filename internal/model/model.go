// Package model defines core data structures for repograph.
package model

// NodeType identifies the kind of entity a graph vertex stands for.
type NodeType string

const (
	NodeClass    NodeType = "class"
	NodeFunction NodeType = "function"
	NodeMethod   NodeType = "method"
	NodeFile     NodeType = "file"
	NodeCommit   NodeType = "commit"
)

// EdgeType identifies the relationship a directed edge encodes.
type EdgeType string

const (
	// Contains is structural containment (class → method, file → class).
	Contains EdgeType = "contains"
	// Calls is usage; the edge carries the observed call count as its weight.
	Calls EdgeType = "calls"
	// Inherit points from a subclass to a declared base.
	Inherit EdgeType = "inherit"
	// Modifies points from a commit to a file it touched.
	Modifies EdgeType = "modifies"
)

// Size is a coarse classification of a file's content length.
// The zero value means the size has not been assigned.
type Size string

const (
	SizeSmall  Size = "small"
	SizeMedium Size = "medium"
	SizeLarge  Size = "large"
)

var sizeOrder = map[Size]int{SizeSmall: 1, SizeMedium: 2, SizeLarge: 3}

// Rank returns the ordinal of the bucket (0 when unset), so buckets compare
// with <.
func (s Size) Rank() int {
	return sizeOrder[s]
}

// Weight returns the presentation weight a dashboard uses to draw the node.
func (s Size) Weight() int {
	switch s {
	case SizeSmall:
		return 2
	case SizeMedium:
		return 10
	case SizeLarge:
		return 15
	}
	return 0
}

// Thresholds are the two content-length boundaries between size buckets.
type Thresholds struct {
	Small  int // lengths below this are small
	Medium int // lengths below this (and >= Small) are medium
}

// DefaultThresholds are the reference boundaries.
var DefaultThresholds = Thresholds{Small: 100, Medium: 200}

// Bucket classifies a content length.
func Bucket(length int, t Thresholds) Size {
	switch {
	case length < t.Small:
		return SizeSmall
	case length < t.Medium:
		return SizeMedium
	default:
		return SizeLarge
	}
}

// Kind is the entity kind of a retrieval record.
type Kind string

const (
	KindClass    Kind = "class"
	KindFunction Kind = "function"
	KindMethod   Kind = "method"
	KindModule   Kind = "module"
)

// Record is the per-entity handoff to a retrieval/indexing collaborator.
type Record struct {
	Name      string `json:"name" yaml:"name"`
	Kind      Kind   `json:"kind" yaml:"kind"`
	Docstring string `json:"docstring,omitempty" yaml:"docstring,omitempty"`
	Signature string `json:"signature,omitempty" yaml:"signature,omitempty"`
	Code      string `json:"code" yaml:"code"`
	File      string `json:"file" yaml:"file"`
	Module    string `json:"module" yaml:"module"`
	Parent    string `json:"parent,omitempty" yaml:"parent,omitempty"`
	Line      int    `json:"line,omitempty" yaml:"line,omitempty"`
}
