package analyser

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGraph_AddEdge_DependenciesAndDependents(t *testing.T) {
	g := NewGraph()
	g.AddEdge(2, 1)
	g.AddEdge(3, 1)

	assert.ElementsMatch(t, []int64{1}, g.GetDependencies(2))
	assert.ElementsMatch(t, []int64{2, 3}, g.GetDependents(1))
}

func TestGraph_GetAllDependencies_TransitiveClosure(t *testing.T) {
	g := NewGraph()
	g.AddEdge(3, 2)
	g.AddEdge(2, 1)

	assert.ElementsMatch(t, []int64{1, 2}, g.GetAllDependencies(3))
}

func TestGraph_WouldCreateCycle(t *testing.T) {
	g := NewGraph()
	g.AddEdge(2, 1)
	assert.True(t, g.WouldCreateCycle(1, 2), "1->2 would close a cycle since 2 already depends on 1")
	assert.False(t, g.WouldCreateCycle(3, 1))
}

func TestGraph_FindPath(t *testing.T) {
	g := NewGraph()
	g.AddEdge(3, 2)
	g.AddEdge(2, 1)

	path := g.FindPath(3, 1)
	assert.Equal(t, []int64{3, 2, 1}, path)
	assert.Nil(t, g.FindPath(1, 3))
}

func TestGraph_RemoveNode_ClearsEdgesBothWays(t *testing.T) {
	g := NewGraph()
	g.AddEdge(2, 1)
	g.RemoveNode(1)

	assert.Empty(t, g.GetDependencies(2))
	assert.Empty(t, g.GetDependents(1))
}
