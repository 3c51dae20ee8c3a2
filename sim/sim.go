// Package sim implements the single-threaded discrete-event loop that hosts
// every node of the aggregation overlay: a virtual clock, a cancellable event
// heap ordered by (time, insertion), and graceful/fatal stop semantics.
/*
 * Copyright (c) 2024-2025, CFN-Agg Authors. All rights reserved.
 */
package sim

import (
	"container/heap"
	"time"

	"github.com/cfnagg/cfnagg/cmn/debug"
)

type (
	Callback func()

	// Event is an opaque handle returned by Schedule; usable with Cancel.
	Event struct {
		fn        Callback
		at        time.Duration
		seq       uint64 // FIFO tie-break at equal virtual time
		cancelled bool
	}

	eventHeap []*Event

	Loop struct {
		pq      eventHeap
		now     time.Duration
		seq     uint64
		stopped bool
		err     error
	}
)

func NewLoop() *Loop { return &Loop{pq: make(eventHeap, 0, 256)} }

// Now returns virtual time elapsed since simulation start.
func (l *Loop) Now() time.Duration { return l.now }

// Schedule enqueues fn to run at now+delay. A zero delay runs fn after the
// current callback returns, never preempting it.
func (l *Loop) Schedule(delay time.Duration, fn Callback) *Event {
	debug.Assert(delay >= 0)
	ev := &Event{fn: fn, at: l.now + delay, seq: l.seq}
	l.seq++
	heap.Push(&l.pq, ev)
	return ev
}

// Cancel is idempotent and safe on fired events.
func (*Loop) Cancel(ev *Event) {
	if ev != nil {
		ev.cancelled = true
	}
}

// Stop ends the run after the current callback returns.
func (l *Loop) Stop() { l.stopped = true }

// Fail stops the run and records a fatal error.
func (l *Loop) Fail(err error) {
	l.stopped = true
	if l.err == nil {
		l.err = err
	}
}

func (l *Loop) Err() error { return l.err }

// Run drains the event queue until it is empty, Stop/Fail is called, or
// virtual time would pass `until` (0 = no horizon).
func (l *Loop) Run(until time.Duration) error {
	for !l.stopped && l.pq.Len() > 0 {
		ev := heap.Pop(&l.pq).(*Event)
		if ev.cancelled {
			continue
		}
		if until > 0 && ev.at > until {
			break
		}
		debug.Assert(ev.at >= l.now)
		l.now = ev.at
		ev.fn()
	}
	return l.err
}

//
// heap interface
//

func (h eventHeap) Len() int { return len(h) }

func (h eventHeap) Less(i, j int) bool {
	if h[i].at != h[j].at {
		return h[i].at < h[j].at
	}
	return h[i].seq < h[j].seq
}

func (h eventHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *eventHeap) Push(x any) { *h = append(*h, x.(*Event)) }

func (h *eventHeap) Pop() any {
	old := *h
	n := len(old)
	ev := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return ev
}
