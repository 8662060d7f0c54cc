// Package graph derives call edges from dependency trees and computes
// PageRank over them.
package graph

import (
	"math"
	"sort"

	"github.com/phobologic/deptree/internal/model"
)

// NodeID returns the identifier a record contributes to the call graph: its
// key, or its name for records built without one.
func NodeID(rec *model.FunctionRecord) string {
	if rec.Key != "" {
		return rec.Key
	}
	return rec.Name
}

// CallEdges returns the unique caller → callee edges found in the given
// trees. Self-calls are kept. Edges are sorted by caller, then callee.
func CallEdges(roots ...*model.FunctionRecord) []model.CallEdge {
	seen := make(map[model.CallEdge]struct{})
	var edges []model.CallEdge

	for _, root := range roots {
		root.Walk(func(rec, parent *model.FunctionRecord, _ int) {
			if parent == nil {
				return
			}
			e := model.CallEdge{Caller: NodeID(parent), Callee: NodeID(rec)}
			if _, dup := seen[e]; dup {
				return
			}
			seen[e] = struct{}{}
			edges = append(edges, e)
		})
	}

	sort.Slice(edges, func(i, j int) bool {
		if edges[i].Caller != edges[j].Caller {
			return edges[i].Caller < edges[j].Caller
		}
		return edges[i].Callee < edges[j].Callee
	})

	return edges
}

// Rank applies PageRank to every function in the given trees. An edge from
// caller to callee passes rank to the callee, so widely used helpers rank
// highest. Without edges every function gets the same rank.
func Rank(roots ...*model.FunctionRecord) map[string]float64 {
	nodes := make(map[string]struct{})
	for _, root := range roots {
		root.Walk(func(rec, _ *model.FunctionRecord, _ int) {
			nodes[NodeID(rec)] = struct{}{}
		})
	}
	if len(nodes) == 0 {
		return map[string]float64{}
	}

	edges := CallEdges(roots...)
	if len(edges) == 0 {
		uniform := 1.0 / float64(len(nodes))
		ranks := make(map[string]float64, len(nodes))
		for node := range nodes {
			ranks[node] = uniform
		}
		return ranks
	}

	outEdges := make(map[string][]string)
	outDegree := make(map[string]int)
	for _, e := range edges {
		outEdges[e.Caller] = append(outEdges[e.Caller], e.Callee)
		outDegree[e.Caller]++
	}

	return pageRank(nodes, outEdges, outDegree, 0.85, 100, 1e-6)
}

func pageRank(
	nodes map[string]struct{},
	outEdges map[string][]string,
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

		// Dangling nodes spread their rank evenly.
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
			contrib := alpha * rank[src] / float64(outDegree[src])
			for _, tgt := range targets {
				newRank[tgt] += contrib
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
