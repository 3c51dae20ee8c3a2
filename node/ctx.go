// Package node implements the event-driven roles of the aggregation overlay:
// the consumer that drives iterations over the constructed tree and the
// aggregators that split interests, sum returned vectors, and relay them
// upstream - each with per-peer flow control, retransmission sweeps, and the
// interest pipeline in between.
/*
 * Copyright (c) 2024-2025, CFN-Agg Authors. All rights reserved.
 */
package node

import (
	"encoding/binary"
	"time"

	"github.com/OneOfOne/xxhash"

	"github.com/cfnagg/cfnagg/sim"
	"github.com/cfnagg/cfnagg/stats"
	"github.com/cfnagg/cfnagg/topo"
	"github.com/cfnagg/cfnagg/transport"
	"github.com/cfnagg/cfnagg/wire"
)

const (
	dfltRetxTick         = 50 * time.Millisecond
	dfltInterestLifetime = 4 * time.Second
	dupFIFOCap           = 100
)

// Ctx is the explicit per-node context: the event loop, the face capability,
// recorders, and tunables. It replaces what the protocol state machine would
// otherwise reach for through globals.
type Ctx struct {
	Name     string
	Loop     *sim.Loop
	Face     transport.Face
	Rec      *stats.Recorder
	Metrics  *stats.Metrics
	Cfg      *topo.Config
	RetxTick time.Duration
	Lifetime time.Duration
}

func (c *Ctx) tick() time.Duration {
	if c.RetxTick > 0 {
		return c.RetxTick
	}
	return dfltRetxTick
}

func (c *Ctx) lifetime() time.Duration {
	if c.Lifetime > 0 {
		return c.Lifetime
	}
	return dfltInterestLifetime
}

// zero-window backoff: min(500ms, 6*retx_tick)
func (c *Ctx) stalledBackoff() time.Duration {
	d := 6 * c.tick()
	if d > 500*time.Millisecond {
		d = 500 * time.Millisecond
	}
	return d
}

// nonce derives the interest nonce from the name and the virtual send time.
func (c *Ctx) nonce(name wire.Name) uint32 {
	h := xxhash.New32()
	h.WriteString(name.String())
	var ts [8]byte
	binary.LittleEndian.PutUint64(ts[:], uint64(c.Loop.Now()))
	h.Write(ts[:])
	return h.Sum32()
}

func (c *Ctx) sendInterest(name wire.Name) {
	in := &wire.Interest{Name: name, Nonce: c.nonce(name), Lifetime: c.lifetime()}
	c.Face.SendInterest(in)
	if c.Metrics != nil {
		c.Metrics.InterestsSent.WithLabelValues(c.Name).Inc()
		c.Metrics.BytesOut.WithLabelValues(c.Name).Add(float64(len(name.String())))
	}
}

func (c *Ctx) sendData(name wire.Name, payload []byte) {
	c.Face.SendData(&wire.Data{Name: name, Payload: payload})
	if c.Metrics != nil {
		c.Metrics.BytesOut.WithLabelValues(c.Name).Add(float64(len(name.String()) + len(payload)))
	}
}
