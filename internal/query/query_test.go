package query

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phobologic/repograph/internal/graph"
	"github.com/phobologic/repograph/internal/model"
	"github.com/phobologic/repograph/internal/repograph"
)

func makeGraph() *graph.Graph {
	g := graph.New()
	g.AddNode("Store", graph.Attrs{Type: model.NodeClass, FilePath: "app/db/store.py", Size: model.SizeLarge})
	g.AddNode("Store.get", graph.Attrs{Type: model.NodeMethod, FilePath: "app/db/store.py"})
	g.AddNode("Store.put", graph.Attrs{Type: model.NodeMethod, FilePath: "app/db/store.py"})
	g.AddNode("handler", graph.Attrs{Type: model.NodeFunction, FilePath: "app/web/views.py"})
	g.AddNode("render", graph.Attrs{Type: model.NodeFunction, FilePath: "app/web/views.py"})

	g.AddEdge("Store", "Store.get", model.Contains)
	g.AddEdge("Store", "Store.put", model.Contains)
	g.AddEdge("Store", "Base", model.Inherit)
	g.AddCall("Store.put", "Store.get", 1)
	g.AddCall("handler", "Store.get", 3)
	g.AddCall("handler", "render", 1)
	return g
}

func TestByModule(t *testing.T) {
	t.Parallel()

	sub := ByModule(makeGraph(), "app/db")

	ids := make([]string, 0, sub.Len())
	for _, n := range sub.Nodes() {
		ids = append(ids, n.ID)
	}
	assert.Equal(t, []string{"Store", "Store.get", "Store.put"}, ids)

	// Edges leaving the module and dangling edges are dropped.
	assert.Equal(t, 3, sub.EdgeCount())
	_, ok := sub.Edge("handler", "Store.get", model.Calls)
	assert.False(t, ok)
	_, ok = sub.Edge("Store", "Base", model.Inherit)
	assert.False(t, ok)

	n, _ := sub.Node("Store")
	assert.Equal(t, model.SizeLarge, n.Size)
}

func TestByModuleNoMatch(t *testing.T) {
	t.Parallel()

	sub := ByModule(makeGraph(), "nothing/here")
	assert.Equal(t, 0, sub.Len())
	assert.Equal(t, 0, sub.EdgeCount())
}

func TestDescendantsSorted(t *testing.T) {
	t.Parallel()

	got, err := Descendants(makeGraph(), "Store")
	require.NoError(t, err)
	assert.Equal(t, []string{"Base", "Store.get", "Store.put"}, got)

	leaf, err := Descendants(makeGraph(), "render")
	require.NoError(t, err)
	assert.Empty(t, leaf)
}

func TestDescendantsUnknown(t *testing.T) {
	t.Parallel()

	_, err := Descendants(makeGraph(), "missing")
	assert.True(t, errors.Is(err, graph.ErrNodeNotFound))
}

func TestTopModules(t *testing.T) {
	t.Parallel()

	counts := []repograph.ModuleCount{{Module: "db", Nodes: 3}, {Module: "web", Nodes: 5}, {Module: "api", Nodes: 3}}
	assert.Equal(t, []repograph.ModuleCount{{Module: "web", Nodes: 5}, {Module: "db", Nodes: 3}}, TopModules(counts, 2))
	assert.Len(t, TopModules(counts, 0), 3)
}

func TestCentral(t *testing.T) {
	t.Parallel()

	got := Central(makeGraph(), 2)
	require.Len(t, got, 2)
	assert.Equal(t, "Store.get", got[0].ID)
	assert.Greater(t, got[0].Rank, got[1].Rank)

	all := Central(makeGraph(), 0)
	assert.Len(t, all, 5)
	assert.Empty(t, Central(graph.New(), 3))
}

func TestHotspots(t *testing.T) {
	t.Parallel()

	g := graph.New()
	g.AddNode("class_a.py_A", graph.Attrs{Type: model.NodeClass, FilePath: "a.py", ModificationCount: 4})
	g.AddNode("class_b.py_B", graph.Attrs{Type: model.NodeClass, FilePath: "b.py", ModificationCount: 1})
	g.AddNode("file_a.py", graph.Attrs{Type: model.NodeFile, FilePath: "a.py"})

	got := Hotspots(g, 1)
	require.Len(t, got, 1)
	assert.Equal(t, "class_a.py_A", got[0].ID)
	assert.Equal(t, 4, got[0].Count)
}

func TestRelated(t *testing.T) {
	t.Parallel()

	sub := Related(makeGraph(), "GET")

	ids := make([]string, 0, sub.Len())
	for _, n := range sub.Nodes() {
		ids = append(ids, n.ID)
	}
	assert.Equal(t, []string{"Store.get", "Store.put", "handler"}, ids)

	e, ok := sub.Edge("handler", "Store.get", model.Calls)
	require.True(t, ok)
	assert.Equal(t, 3, e.Weight)
	// Callers of the match are kept, but not their other edges.
	_, ok = sub.Edge("handler", "render", model.Calls)
	assert.False(t, ok)
}
