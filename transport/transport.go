// Package transport provides the face abstraction the overlay nodes consume
// and an in-memory named-data fabric that connects the simulated nodes:
// interest forwarding by destination prefix, a PIT-style reverse path for
// data, and per-link propagation delays taken from the topology.
/*
 * Copyright (c) 2024-2025, CFN-Agg Authors. All rights reserved.
 */
package transport

import (
	"time"

	"github.com/cfnagg/cfnagg/cmn/debug"
	"github.com/cfnagg/cfnagg/cmn/nlog"
	"github.com/cfnagg/cfnagg/sim"
	"github.com/cfnagg/cfnagg/wire"
)

type (
	// Handler is the packet-arrival side of a node.
	Handler interface {
		OnInterest(*wire.Interest)
		OnData(*wire.Data)
		OnNack(*wire.Nack)
	}

	// Face is the capability a node holds to reach the network; the node
	// owns its face handle, never the reverse.
	Face interface {
		SendInterest(*wire.Interest)
		SendData(*wire.Data)
	}

	// Delayer yields one-way propagation delays (topo.Topology implements it).
	Delayer interface {
		Delay(a, b string) time.Duration
	}

	// InterestHook and DataHook let tests and the driver inject loss and
	// latency. Return drop=true to discard the packet.
	InterestHook func(from string, in *wire.Interest) (drop bool, extra time.Duration)
	DataHook     func(from string, d *wire.Data) (drop bool, extra time.Duration)

	Fabric struct {
		loop   *sim.Loop
		delays Delayer
		eps    map[string]*endpoint
		pit    map[string][]string // interest name -> requester nodes
		ihook  InterestHook
		dhook  DataHook
	}

	endpoint struct {
		fab  *Fabric
		name string
		h    Handler
	}
)

// interface guard
var _ Face = (*endpoint)(nil)

func NewFabric(loop *sim.Loop, delays Delayer) *Fabric {
	return &Fabric{
		loop:   loop,
		delays: delays,
		eps:    make(map[string]*endpoint, 16),
		pit:    make(map[string][]string, 64),
	}
}

// Attach registers a node and returns its face.
func (f *Fabric) Attach(name string, h Handler) Face {
	debug.Assert(f.eps[name] == nil, name)
	ep := &endpoint{fab: f, name: name, h: h}
	f.eps[name] = ep
	return ep
}

func (f *Fabric) SetInterestHook(h InterestHook) { f.ihook = h }
func (f *Fabric) SetDataHook(h DataHook)         { f.dhook = h }

func (ep *endpoint) SendInterest(in *wire.Interest) {
	f := ep.fab
	dst := in.Name.Prefix()
	to, ok := f.eps[dst]
	if !ok {
		nlog.Warningf("%s: interest %s: no such destination", ep.name, in.Name)
		return
	}
	var extra time.Duration
	if f.ihook != nil {
		drop, d := f.ihook(ep.name, in)
		if drop {
			nlog.Infof("%s: interest %s dropped by hook", ep.name, in.Name)
			return
		}
		extra = d
	}
	key := in.Name.String()
	f.pit[key] = append(f.pit[key], ep.name)
	pkt := *in
	f.loop.Schedule(f.delays.Delay(ep.name, dst)+extra, func() { to.h.OnInterest(&pkt) })
}

func (ep *endpoint) SendData(d *wire.Data) {
	f := ep.fab
	key := d.Name.String()
	waiters := f.pit[key]
	if len(waiters) == 0 {
		nlog.Infof("%s: data %s: no pending interest, dropped", ep.name, d.Name)
		return
	}
	delete(f.pit, key)
	var extra time.Duration
	if f.dhook != nil {
		drop, xd := f.dhook(ep.name, d)
		if drop {
			nlog.Infof("%s: data %s dropped by hook", ep.name, d.Name)
			return
		}
		extra = xd
	}
	for _, w := range waiters {
		to, ok := f.eps[w]
		if !ok {
			continue
		}
		pkt := *d
		f.loop.Schedule(f.delays.Delay(ep.name, w)+extra, func() { to.h.OnData(&pkt) })
	}
}
