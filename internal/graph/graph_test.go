package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phobologic/deptree/internal/model"
)

func rec(key string, deps ...*model.FunctionRecord) *model.FunctionRecord {
	if deps == nil {
		deps = []*model.FunctionRecord{}
	}
	return &model.FunctionRecord{Name: key, Key: "m.py:" + key, Dependencies: deps}
}

func TestCallEdges(t *testing.T) {
	t.Parallel()

	// main calls a and b; both call leaf; a also calls itself.
	leaf := rec("leaf")
	tree := rec("main",
		rec("a", rec("leaf"), rec("a")),
		rec("b", leaf),
	)

	edges := CallEdges(tree)
	want := []model.CallEdge{
		{Caller: "m.py:a", Callee: "m.py:a"},
		{Caller: "m.py:a", Callee: "m.py:leaf"},
		{Caller: "m.py:b", Callee: "m.py:leaf"},
		{Caller: "m.py:main", Callee: "m.py:a"},
		{Caller: "m.py:main", Callee: "m.py:b"},
	}
	assert.Equal(t, want, edges)
}

func TestCallEdgesDedupAcrossTrees(t *testing.T) {
	t.Parallel()

	edges := CallEdges(rec("a", rec("b")), rec("a", rec("b")))
	assert.Len(t, edges, 1)
}

func TestNodeIDFallsBackToName(t *testing.T) {
	t.Parallel()

	r := &model.FunctionRecord{Name: "f"}
	assert.Equal(t, "f", NodeID(r))
}

func TestRankUniformWithoutEdges(t *testing.T) {
	t.Parallel()

	ranks := Rank(rec("a"), rec("b"))
	require.Len(t, ranks, 2)
	for node, r := range ranks {
		assert.InDelta(t, 0.5, r, 1e-9, node)
	}
}

func TestRankFavorsSharedCallee(t *testing.T) {
	t.Parallel()

	tree := rec("main",
		rec("a", rec("leaf")),
		rec("b", rec("leaf")),
	)
	ranks := Rank(tree)

	var sum float64
	for _, r := range ranks {
		sum += r
	}
	assert.InDelta(t, 1.0, sum, 1e-3)
	assert.Greater(t, ranks["m.py:leaf"], ranks["m.py:a"])
	assert.Greater(t, ranks["m.py:a"], ranks["m.py:main"])
}

func TestRankEmpty(t *testing.T) {
	t.Parallel()

	assert.Empty(t, Rank())
}
