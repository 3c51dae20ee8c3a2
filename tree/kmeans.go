// Package tree constructs the aggregation overlay.
/*
 * Copyright (c) 2024-2025, CFN-Agg Authors. All rights reserved.
 */
package tree

import (
	"sort"

	"github.com/cfnagg/cfnagg/cmn/debug"
)

// kmeans iteration bound; on non-convergence the best current partition is
// returned rather than failing the run.
const maxKMeansIters = 64

// CostFunc returns the link cost between two nodes; negative means
// unreachable.
type CostFunc func(a, b string) int64

// balancedKMeans partitions leaves into ⌈N/C⌉ clusters of size ≤ C.
// Assignment is refined by solving, at every iteration, a one-to-one matching
// between leaves and cluster slots on the average-cost matrix; membership
// fixed point terminates the loop.
func balancedKMeans(leaves []string, fanout int, cost CostFunc) ([][]string, error) {
	n := len(leaves)
	debug.Assert(fanout > 0)
	sorted := make([]string, n)
	copy(sorted, leaves)
	sort.Strings(sorted) // lexicographic tie-break

	numClusters := (n + fanout - 1) / fanout
	// initial assignment: contiguous chunks of the sorted leaf list
	clusters := make([][]string, numClusters)
	slotOwner := make([]int, n) // slot i belongs to cluster slotOwner[i]
	for i, leaf := range sorted {
		c := i / fanout
		clusters[c] = append(clusters[c], leaf)
		slotOwner[i] = c
	}
	if numClusters <= 1 {
		return clusters, nil
	}

	for iter := 0; iter < maxKMeansIters; iter++ {
		// rows: cluster slots (|cluster| identical rows per cluster);
		// cols: leaves; entry = average cost from leaf to cluster members.
		w := make([][]int64, n)
		for i := 0; i < n; i++ {
			members := clusters[slotOwner[i]]
			row := make([]int64, n)
			for j, leaf := range sorted {
				var total int64
				for _, m := range members {
					c := cost(leaf, m)
					if c < 0 {
						return nil, &ErrUnreachableLink{A: leaf, B: m}
					}
					total += c
				}
				// negate: Hungarian maximizes, we want min average cost
				row[j] = -(total / int64(len(members)))
			}
			w[i] = row
		}

		match := assign(w)
		next := make([][]string, numClusters)
		for i := 0; i < n; i++ {
			c := slotOwner[i]
			next[c] = append(next[c], sorted[match[i]])
		}
		for _, cl := range next {
			sort.Strings(cl)
		}
		if sameClusters(clusters, next) {
			return next, nil
		}
		clusters = next
	}
	return clusters, nil
}

// sameClusters compares partitions as families of sets.
func sameClusters(a, b [][]string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		x, y := append([]string(nil), a[i]...), b[i]
		sort.Strings(x)
		if len(x) != len(y) {
			return false
		}
		for j := range x {
			if x[j] != y[j] {
				return false
			}
		}
	}
	return true
}
