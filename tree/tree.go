// Package tree constructs the aggregation overlay.
/*
 * Copyright (c) 2024-2025, CFN-Agg Authors. All rights reserved.
 */
package tree

import (
	"sort"
	"strings"

	"github.com/cfnagg/cfnagg/wire"
)

// Tree is the constructed aggregation overlay: an ordered list of round maps
// (parent -> children), round 0 being the main tree rooted at the consumer.
// Clusters that could not be assigned a head aggregator become later rounds
// that the root serves directly.
type Tree struct {
	Root      string
	Rounds    []map[string][]string
	Broadcast []string // aggregators that must ack the initialization round
}

// Build clusters the leaves under the fan-out constraint and binds every
// cluster to a head aggregator by minimum average link cost. leaves and
// aggregators must be disjoint; cost must be defined for every pair it is
// asked about (-1 = unreachable).
func Build(root string, leaves, aggregators []string, fanout int, cost CostFunc) (*Tree, error) {
	if len(leaves) == 0 {
		return nil, &ErrInfeasible{Reason: "no leaves"}
	}
	if fanout <= 0 {
		return nil, &ErrInfeasible{Reason: "non-positive fan-out constraint"}
	}
	for _, leaf := range leaves {
		if cost(root, leaf) < 0 {
			return nil, &ErrInfeasible{Reason: (&ErrUnreachableLink{A: root, B: leaf}).Error()}
		}
	}

	clusters, err := balancedKMeans(leaves, fanout, cost)
	if err != nil {
		if ul, ok := err.(*ErrUnreachableLink); ok {
			return nil, &ErrInfeasible{Reason: ul.Error()}
		}
		return nil, err
	}

	// bind each cluster to an unused aggregator with minimum total cost
	var (
		main     = map[string][]string{}
		used     = map[string]bool{}
		heads    []string
		subtrees [][]string
	)
	for _, members := range clusters {
		head, ok := pickHead(members, aggregators, used, cost)
		if !ok {
			subtrees = append(subtrees, members)
			continue
		}
		used[head] = true
		heads = append(heads, head)
		main[head] = append([]string(nil), members...)
	}
	if len(heads) == 0 && len(subtrees) == 0 {
		return nil, &ErrInfeasible{Reason: "empty partition"}
	}
	main[root] = heads

	t := &Tree{Root: root, Rounds: []map[string][]string{main}, Broadcast: heads}
	for _, members := range subtrees {
		round := map[string][]string{}
		for k, v := range main {
			round[k] = v
		}
		round[root] = members
		t.Rounds = append(t.Rounds, round)
	}
	return t, nil
}

func pickHead(members, aggregators []string, used map[string]bool, cost CostFunc) (string, bool) {
	var (
		best      string
		bestTotal int64 = -1
	)
	for _, agg := range aggregators {
		if used[agg] {
			continue
		}
		var total int64
		reachable := true
		for _, m := range members {
			c := cost(agg, m)
			if c < 0 {
				reachable = false
				break
			}
			total += c
		}
		if !reachable {
			continue
		}
		if bestTotal < 0 || total < bestTotal || (total == bestTotal && agg < best) {
			best, bestTotal = agg, total
		}
	}
	return best, bestTotal >= 0
}

// RoundChildren returns the root's children in the given round, sorted.
func (t *Tree) RoundChildren(round int) []string {
	children := append([]string(nil), t.Rounds[round][t.Root]...)
	sort.Strings(children)
	return children
}

// LeafDescendants returns the producer leaves below node in the given round.
// A node with no children is its own leaf.
func (t *Tree) LeafDescendants(round int, node string) []string {
	children := t.Rounds[round][node]
	if len(children) == 0 {
		return []string{node}
	}
	var leaves []string
	for _, c := range children {
		leaves = append(leaves, t.LeafDescendants(round, c)...)
	}
	sort.Strings(leaves)
	return leaves
}

// InitName builds the initialization-round broadcast name for an aggregator:
// one component per child carrying "child.leaf1.leaf2...", then the type.
// The caller appends the sequence number.
func (t *Tree) InitName(parent string) wire.Name {
	comps := []string{parent}
	children := append([]string(nil), t.Rounds[0][parent]...)
	sort.Strings(children)
	for _, child := range children {
		parts := append([]string{child}, t.LeafDescendants(0, child)...)
		comps = append(comps, strings.Join(parts, "."))
	}
	comps = append(comps, wire.TypeInit)
	return wire.NewName(comps...)
}
