// Package node implements the event-driven roles of the aggregation overlay.
/*
 * Copyright (c) 2024-2025, CFN-Agg Authors. All rights reserved.
 */
package node

import (
	"sort"

	"github.com/cfnagg/cfnagg/wire"
)

type (
	// queued sub-interest: iteration, whether it opens the iteration at this
	// node (starts the aggregation-time clock), and the full name
	queueItem struct {
		name  wire.Name
		seq   uint32
		first bool
	}

	interestQueue struct {
		items []queueItem
	}

	// dupFIFO is the bounded list of recently timed-out interest names used
	// to drop replayed downstream retransmissions.
	dupFIFO struct {
		names []string
		cap   int
	}
)

//
// interestQueue
//

func (q *interestQueue) push(it queueItem) { q.items = append(q.items, it) }

func (q *interestQueue) peek() (queueItem, bool) {
	if len(q.items) == 0 {
		return queueItem{}, false
	}
	return q.items[0], true
}

func (q *interestQueue) pop() (queueItem, bool) {
	if len(q.items) == 0 {
		return queueItem{}, false
	}
	it := q.items[0]
	q.items = q.items[1:]
	return it, true
}

func (q *interestQueue) len() int { return len(q.items) }

//
// dupFIFO
//

func newDupFIFO(capacity int) *dupFIFO { return &dupFIFO{cap: capacity} }

func (d *dupFIFO) push(name string) {
	if len(d.names) == d.cap {
		d.names = d.names[1:]
	}
	d.names = append(d.names, name)
}

func (d *dupFIFO) contains(name string) bool {
	for _, n := range d.names {
		if n == name {
			return true
		}
	}
	return false
}

//
// splitting
//

// split partitions an upstream leaf list across the child->leaves map:
// one sub-interest per child owning at least one requested leaf. Children
// iterate in sorted order so the result is deterministic.
func split(upstream []string, aggMap map[string][]string, seq uint32) []queueItem {
	want := make(map[string]bool, len(upstream))
	for _, leaf := range upstream {
		want[leaf] = true
	}
	children := make([]string, 0, len(aggMap))
	for c := range aggMap {
		children = append(children, c)
	}
	sort.Strings(children)

	var (
		items []queueItem
		first = true
	)
	for _, child := range children {
		var covered []string
		for _, leaf := range aggMap[child] {
			if want[leaf] {
				covered = append(covered, leaf)
			}
		}
		if len(covered) == 0 {
			continue
		}
		items = append(items, queueItem{
			name:  wire.DataName(child, covered).AppendSeq(seq),
			seq:   seq,
			first: first,
		})
		first = false
	}
	return items
}
