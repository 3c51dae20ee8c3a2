// Package cos provides common low-level types and utilities for all cfnagg packages
/*
 * Copyright (c) 2024-2025, CFN-Agg Authors. All rights reserved.
 */
package cos

import (
	"fmt"
	"os"

	"github.com/cfnagg/cfnagg/cmn/nlog"
)

type (
	ErrNotFound struct {
		what string
	}
	// ErrInvariant is a fatal protocol-state violation: unknown data name,
	// negative in-flight, missing aggregation tree, and the like.
	ErrInvariant struct {
		node string
		what string
	}
)

// ErrNotFound

func NewErrNotFound(format string, a ...any) *ErrNotFound {
	return &ErrNotFound{fmt.Sprintf(format, a...)}
}

func (e *ErrNotFound) Error() string { return e.what + " does not exist" }

func IsErrNotFound(err error) bool {
	_, ok := err.(*ErrNotFound)
	return ok
}

// ErrInvariant

func NewErrInvariant(node, format string, a ...any) *ErrInvariant {
	return &ErrInvariant{node: node, what: fmt.Sprintf(format, a...)}
}

func (e *ErrInvariant) Error() string { return e.node + ": invariant violated: " + e.what }

func IsErrInvariant(err error) bool {
	_, ok := err.(*ErrInvariant)
	return ok
}

//
// abnormal termination
//

const fatalPrefix = "FATAL ERROR: "

func Exitf(f string, a ...any) {
	msg := fmt.Sprintf(fatalPrefix+f, a...)
	_exit(msg)
}

// +log
func ExitLogf(f string, a ...any) {
	msg := fmt.Sprintf(fatalPrefix+f, a...)
	nlog.ErrorDepth(1, msg)
	nlog.Flush(true)
	_exit(msg)
}

func _exit(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(1)
}
