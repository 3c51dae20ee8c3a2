// Package tree constructs the aggregation overlay: balanced k-means
// clustering of the leaves with Hungarian re-assignment, cluster-head
// selection under the fan-out constraint, and the broadcast descriptors the
// consumer disseminates during the initialization round.
/*
 * Copyright (c) 2024-2025, CFN-Agg Authors. All rights reserved.
 */
package tree

// maximum-weight perfect matching on an n x n integer matrix (Kuhn-Munkres).
// Callers that want a minimum-cost assignment negate the matrix first.
type hungarian struct {
	n        int
	cost     [][]int64
	lx, ly   []int64
	xy, yx   []int
	s, t     []bool
	slack    []int64
	slackx   []int
	prev     []int
	maxMatch int
}

const hungInf = int64(1) << 60

// assign solves the assignment problem for weight matrix w and returns
// match[x] = y for every row x.
func assign(w [][]int64) []int {
	n := len(w)
	h := &hungarian{
		n:      n,
		cost:   w,
		lx:     make([]int64, n),
		ly:     make([]int64, n),
		xy:     make([]int, n),
		yx:     make([]int, n),
		s:      make([]bool, n),
		t:      make([]bool, n),
		slack:  make([]int64, n),
		slackx: make([]int, n),
		prev:   make([]int, n),
	}
	for i := 0; i < n; i++ {
		h.xy[i], h.yx[i] = -1, -1
	}
	h.initLabels()
	for h.maxMatch < n {
		h.augment()
	}
	return h.xy
}

func (h *hungarian) initLabels() {
	for x := 0; x < h.n; x++ {
		for y := 0; y < h.n; y++ {
			if h.cost[x][y] > h.lx[x] {
				h.lx[x] = h.cost[x][y]
			}
		}
	}
}

func (h *hungarian) updateLabels() {
	delta := hungInf
	for y := 0; y < h.n; y++ {
		if !h.t[y] && h.slack[y] < delta {
			delta = h.slack[y]
		}
	}
	for x := 0; x < h.n; x++ {
		if h.s[x] {
			h.lx[x] -= delta
		}
	}
	for y := 0; y < h.n; y++ {
		if h.t[y] {
			h.ly[y] += delta
		} else {
			h.slack[y] -= delta
		}
	}
}

func (h *hungarian) addToTree(x, prevx int) {
	h.s[x] = true
	h.prev[x] = prevx
	for y := 0; y < h.n; y++ {
		if gap := h.lx[x] + h.ly[y] - h.cost[x][y]; gap < h.slack[y] {
			h.slack[y] = gap
			h.slackx[y] = x
		}
	}
}

// one BFS phase: grow the alternating tree until an augmenting path is found,
// then flip it. Iterative on purpose (the textbook version recurses).
func (h *hungarian) augment() {
	n := h.n
	for i := 0; i < n; i++ {
		h.s[i], h.t[i] = false, false
		h.prev[i] = -1
	}
	queue := make([]int, 0, n)
	var root int
	for x := 0; x < n; x++ {
		if h.xy[x] == -1 {
			root = x
			break
		}
	}
	queue = append(queue, root)
	h.prev[root] = -2
	h.s[root] = true
	for y := 0; y < n; y++ {
		h.slack[y] = h.lx[root] + h.ly[y] - h.cost[root][y]
		h.slackx[y] = root
	}

	var fx, fy int // endpoints of the augmenting path, when found
	for {
		found := false
		for len(queue) > 0 && !found {
			x := queue[0]
			queue = queue[1:]
			for y := 0; y < n; y++ {
				if h.cost[x][y] == h.lx[x]+h.ly[y] && !h.t[y] {
					if h.yx[y] == -1 {
						fx, fy = x, y
						found = true
						break
					}
					h.t[y] = true
					queue = append(queue, h.yx[y])
					h.addToTree(h.yx[y], x)
				}
			}
		}
		if found {
			break
		}
		h.updateLabels()
		queue = queue[:0]
		for y := 0; y < n; y++ {
			if !h.t[y] && h.slack[y] == 0 {
				if h.yx[y] == -1 {
					fx, fy = h.slackx[y], y
					found = true
					break
				}
				h.t[y] = true
				if !h.s[h.yx[y]] {
					queue = append(queue, h.yx[y])
					h.addToTree(h.yx[y], h.slackx[y])
				}
			}
		}
		if found {
			break
		}
	}

	h.maxMatch++
	for cx, cy := fx, fy; cx != -2; {
		ty := h.xy[cx]
		h.yx[cy] = cx
		h.xy[cx] = cy
		cx, cy = h.prev[cx], ty
	}
}
