// Package sim implements the single-threaded discrete-event loop.
/*
 * Copyright (c) 2024-2025, CFN-Agg Authors. All rights reserved.
 */
package sim_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cfnagg/cfnagg/sim"
)

func TestEventOrdering(t *testing.T) {
	loop := sim.NewLoop()
	var order []int
	loop.Schedule(20*time.Millisecond, func() { order = append(order, 3) })
	loop.Schedule(10*time.Millisecond, func() { order = append(order, 1) })
	loop.Schedule(10*time.Millisecond, func() { order = append(order, 2) }) // FIFO at equal time
	require.NoError(t, loop.Run(0))
	assert.Equal(t, []int{1, 2, 3}, order)
	assert.Equal(t, 20*time.Millisecond, loop.Now())
}

func TestScheduleNowRunsAfterCurrentCallback(t *testing.T) {
	loop := sim.NewLoop()
	var order []string
	loop.Schedule(time.Millisecond, func() {
		loop.Schedule(0, func() { order = append(order, "nested") })
		order = append(order, "outer")
	})
	require.NoError(t, loop.Run(0))
	assert.Equal(t, []string{"outer", "nested"}, order)
	assert.Equal(t, time.Millisecond, loop.Now(), "zero delay must not advance time")
}

func TestCancel(t *testing.T) {
	loop := sim.NewLoop()
	fired := false
	ev := loop.Schedule(time.Millisecond, func() { fired = true })
	loop.Cancel(ev)
	loop.Cancel(ev) // idempotent
	loop.Cancel(nil)
	require.NoError(t, loop.Run(0))
	assert.False(t, fired)
}

func TestStopAndFail(t *testing.T) {
	loop := sim.NewLoop()
	var count int
	var tick func()
	tick = func() {
		count++
		if count == 3 {
			loop.Stop()
			return
		}
		loop.Schedule(time.Millisecond, tick)
	}
	loop.Schedule(time.Millisecond, tick)
	require.NoError(t, loop.Run(0))
	assert.Equal(t, 3, count)

	loop2 := sim.NewLoop()
	boom := errors.New("boom")
	loop2.Schedule(time.Millisecond, func() { loop2.Fail(boom) })
	loop2.Schedule(2*time.Millisecond, func() { t.Fatal("must not run after Fail") })
	assert.ErrorIs(t, loop2.Run(0), boom)
}

func TestHorizon(t *testing.T) {
	loop := sim.NewLoop()
	var last time.Duration
	var tick func()
	tick = func() {
		last = loop.Now()
		loop.Schedule(10*time.Millisecond, tick)
	}
	loop.Schedule(0, tick)
	require.NoError(t, loop.Run(45*time.Millisecond))
	assert.Equal(t, 40*time.Millisecond, last)
}
