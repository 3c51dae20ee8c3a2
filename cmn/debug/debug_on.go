//go:build debug

// Package debug provides debug utilities
/*
 * Copyright (c) 2024-2025, CFN-Agg Authors. All rights reserved.
 */
package debug

import (
	"fmt"

	"github.com/cfnagg/cfnagg/cmn/nlog"
)

func ON() bool { return true }

func Infof(format string, a ...any) { nlog.InfoDepth(1, fmt.Sprintf(format, a...)) }

func Assert(cond bool, a ...any) {
	if !cond {
		msg := "DEBUG PANIC"
		if len(a) > 0 {
			msg += ": " + fmt.Sprint(a...)
		}
		nlog.Flush(true)
		panic(msg)
	}
}

func AssertFunc(f func() bool, a ...any) { Assert(f(), a...) }

func AssertNoErr(err error) {
	if err != nil {
		nlog.Flush(true)
		panic(err)
	}
}

func Assertf(cond bool, format string, a ...any) {
	if !cond {
		nlog.Flush(true)
		panic("DEBUG PANIC: " + fmt.Sprintf(format, a...))
	}
}
