package dag

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func buildDiamond(t *testing.T) *Graph {
	t.Helper()
	g := New()
	for _, id := range []string{"root", "a", "b", "leaf"} {
		g.AddNode(id)
	}
	require.NoError(t, g.AddEdge("root", "a"))
	require.NoError(t, g.AddEdge("root", "b"))
	require.NoError(t, g.AddEdge("a", "leaf"))
	require.NoError(t, g.AddEdge("b", "leaf"))
	return g
}

func TestGraph_RootsAndNeighbors(t *testing.T) {
	t.Parallel()
	g := buildDiamond(t)

	require.Equal(t, []string{"root"}, g.Roots())

	deps, err := g.Dependencies("leaf")
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, deps)

	dependents, err := g.Dependents("root")
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, dependents)
}

func TestGraph_AddEdgeErrors(t *testing.T) {
	t.Parallel()
	g := New()
	g.AddNode("a")

	require.Error(t, g.AddEdge("a", "a"))
	require.Error(t, g.AddEdge("a", "missing"))
	require.Error(t, g.AddEdge("missing", "a"))
}

func TestGraph_DetectCycles(t *testing.T) {
	t.Parallel()

	g := buildDiamond(t)
	require.NoError(t, g.DetectCycles())

	require.NoError(t, g.AddEdge("leaf", "root"))
	require.Error(t, g.DetectCycles())
}

func TestGraph_TopoOrder(t *testing.T) {
	t.Parallel()
	g := buildDiamond(t)

	order := g.TopoOrder()
	require.Len(t, order, 4)

	pos := map[string]int{}
	for i, id := range order {
		pos[id] = i
	}
	require.Less(t, pos["root"], pos["a"])
	require.Less(t, pos["root"], pos["b"])
	require.Less(t, pos["a"], pos["leaf"])
	require.Less(t, pos["b"], pos["leaf"])
}
