// Package tree constructs the aggregation overlay.
/*
 * Copyright (c) 2024-2025, CFN-Agg Authors. All rights reserved.
 */
package tree_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cfnagg/cfnagg/tree"
)

// ring of 6 leaves with unit link costs between neighbors; distance is the
// hop count around the ring
func ringCost(leaves []string) tree.CostFunc {
	idx := map[string]int{}
	for i, l := range leaves {
		idx[l] = i
	}
	n := len(leaves)
	return func(a, b string) int64 {
		if a == b {
			return 0
		}
		ia, oka := idx[a]
		ib, okb := idx[b]
		if !oka || !okb {
			return 0 // root and aggregators: flat cost
		}
		d := ia - ib
		if d < 0 {
			d = -d
		}
		if n-d < d {
			d = n - d
		}
		return int64(d)
	}
}

func TestRingConvergence(t *testing.T) {
	leaves := []string{"p0", "p1", "p2", "p3", "p4", "p5"}
	cost := ringCost(leaves)
	aggs := []string{"agg0", "agg1"}

	built, err := tree.Build("con0", leaves, aggs, 3, cost)
	require.NoError(t, err)

	require.Len(t, built.Rounds, 1, "6 leaves at C=3 fit the main tree")
	heads := built.RoundChildren(0)
	require.Len(t, heads, 2, "exactly two clusters of size 3")

	seen := map[string]bool{}
	for _, h := range heads {
		members := built.Rounds[0][h]
		assert.Len(t, members, 3)
		for _, m := range members {
			assert.False(t, seen[m], "leaf %s assigned twice", m)
			seen[m] = true
		}
	}
	assert.Len(t, seen, 6)

	// fixed point: building again from the same inputs yields the same partition
	again, err := tree.Build("con0", leaves, aggs, 3, cost)
	require.NoError(t, err)
	assert.Equal(t, built.Rounds, again.Rounds)
	assert.Equal(t, built.Broadcast, again.Broadcast)
}

func TestSubtreeResidue(t *testing.T) {
	leaves := []string{"p0", "p1", "p2", "p3"}
	// only one aggregator for two clusters: the second cluster becomes a
	// root-served sub-tree round
	built, err := tree.Build("con0", leaves, []string{"agg0"}, 2, func(a, b string) int64 {
		if a == b {
			return 0
		}
		return 1
	})
	require.NoError(t, err)
	require.Len(t, built.Rounds, 2)
	assert.Equal(t, []string{"agg0"}, built.RoundChildren(0))
	assert.Len(t, built.RoundChildren(1), 2, "residue cluster served directly by the root")
	assert.Equal(t, []string{"agg0"}, built.Broadcast)
}

func TestUnreachableLeaf(t *testing.T) {
	_, err := tree.Build("con0", []string{"p0", "p1"}, []string{"agg0"}, 2, func(a, b string) int64 {
		if a == "con0" && b == "p1" {
			return -1
		}
		return 1
	})
	var inf *tree.ErrInfeasible
	require.ErrorAs(t, err, &inf)
}

func TestUnreachableLeafPair(t *testing.T) {
	_, err := tree.Build("con0", []string{"p0", "p1", "p2", "p3"}, []string{"agg0", "agg1"}, 2,
		func(a, b string) int64 {
			if a == b || a == "con0" || b == "con0" {
				return 0
			}
			if (a == "p0" && b == "p3") || (a == "p3" && b == "p0") {
				return -1
			}
			return 1
		})
	require.Error(t, err)
}

func TestInitNameDescriptor(t *testing.T) {
	leaves := []string{"p0", "p1"}
	built, err := tree.Build("con0", leaves, []string{"agg0"}, 2, func(a, b string) int64 { return 1 })
	require.NoError(t, err)

	name := built.InitName("agg0")
	assert.Equal(t, "/agg0/p0.p0/p1.p1/initialization", name.String())
	assert.Equal(t, []string{"p0", "p1"}, built.LeafDescendants(0, "agg0"))
}

func TestInfeasibleInputs(t *testing.T) {
	flat := func(a, b string) int64 { return 1 }
	_, err := tree.Build("con0", nil, nil, 2, flat)
	assert.Error(t, err)
	_, err = tree.Build("con0", []string{"p0"}, nil, 0, flat)
	assert.Error(t, err)
}
