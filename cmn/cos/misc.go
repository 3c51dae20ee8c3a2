// Package cos provides common low-level types and utilities for all cfnagg packages
/*
 * Copyright (c) 2024-2025, CFN-Agg Authors. All rights reserved.
 */
package cos

import (
	"os"
	"time"
)

func Plural(num int) (s string) {
	if num != 1 {
		s = "s"
	}
	return
}

// CreateDir creates the directory (and intermediates) unless it already exists.
func CreateDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil && !os.IsExist(err) {
		return err
	}
	return nil
}

// Micros formats a virtual timestamp as integer microseconds (log-file unit).
func Micros(d time.Duration) int64 { return d.Microseconds() }
