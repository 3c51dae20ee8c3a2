// Package fname contains filename constants and patterns for the persisted
// measurement logs
/*
 * Copyright (c) 2024-2025, CFN-Agg Authors. All rights reserved.
 */
package fname

import "fmt"

// Per-node, per-flow logs; created empty at initialization synchronization.
const (
	Throughput = "throughput.txt"

	aggTimeFmt = "%s_aggregationTime.txt" // node
	rtoFmt     = "%s_RTO_%s.txt"          // node, flow
	rttFmt     = "%s_RTT_%s.txt"          // node, flow
	windowFmt  = "%s_window_%s.txt"       // node, flow
)

func AggTime(node string) string      { return fmt.Sprintf(aggTimeFmt, node) }
func RTO(node, flow string) string    { return fmt.Sprintf(rtoFmt, node, flow) }
func RTT(node, flow string) string    { return fmt.Sprintf(rttFmt, node, flow) }
func Window(node, flow string) string { return fmt.Sprintf(windowFmt, node, flow) }
