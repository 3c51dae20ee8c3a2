// Package node implements the event-driven roles of the aggregation overlay.
/*
 * Copyright (c) 2024-2025, CFN-Agg Authors. All rights reserved.
 */
package node

import (
	"time"

	"github.com/cfnagg/cfnagg/wire"
)

// outEntry tracks one outstanding interest: which flow it charges and when
// it was (re)sent. Every outstanding interest has exactly one entry.
type outEntry struct {
	name   wire.Name
	flow   string
	sentAt time.Duration
	isInit bool
}

type outTable struct {
	entries map[string]*outEntry
}

func newOutTable() *outTable { return &outTable{entries: make(map[string]*outEntry, 32)} }

func (t *outTable) add(name wire.Name, flow string, now time.Duration, isInit bool) {
	t.entries[name.String()] = &outEntry{name: name, flow: flow, sentAt: now, isInit: isInit}
}

func (t *outTable) remove(name string) (*outEntry, bool) {
	e, ok := t.entries[name]
	if ok {
		delete(t.entries, name)
	}
	return e, ok
}

func (t *outTable) len() int { return len(t.entries) }

// expired collects entries older than the per-flow threshold and removes
// them from the table; the caller fires the timeout handling.
func (t *outTable) expired(now time.Duration, threshold func(e *outEntry) time.Duration) []*outEntry {
	var out []*outEntry
	for key, e := range t.entries {
		if now-e.sentAt > threshold(e) {
			delete(t.entries, key)
			out = append(out, e)
		}
	}
	return out
}
