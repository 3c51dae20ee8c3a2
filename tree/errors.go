// Package tree constructs the aggregation overlay.
/*
 * Copyright (c) 2024-2025, CFN-Agg Authors. All rights reserved.
 */
package tree

import "fmt"

type (
	// ErrUnreachableLink: a required pair of nodes has link cost -1.
	ErrUnreachableLink struct {
		A, B string
	}
	// ErrInfeasible: no tree satisfying the fan-out constraint exists.
	ErrInfeasible struct {
		Reason string
	}
)

func (e *ErrUnreachableLink) Error() string {
	return fmt.Sprintf("tree: link %s-%s is unreachable", e.A, e.B)
}

func (e *ErrInfeasible) Error() string { return "tree: infeasible: " + e.Reason }
