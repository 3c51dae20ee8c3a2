// Package node implements the event-driven roles of the aggregation overlay.
/*
 * Copyright (c) 2024-2025, CFN-Agg Authors. All rights reserved.
 */
package node

import (
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/cfnagg/cfnagg/sim"
	"github.com/cfnagg/cfnagg/stats"
	"github.com/cfnagg/cfnagg/topo"
	"github.com/cfnagg/cfnagg/transport"
	"github.com/cfnagg/cfnagg/tree"
)

// Cluster wires one complete simulation: event loop, fabric, and one node
// per topology entry. Producers answer with the vectors given (or a constant
// per-producer vector when absent).
type Cluster struct {
	Loop        *sim.Loop
	Fabric      *transport.Fabric
	Tree        *tree.Tree
	Consumer    *Consumer
	Aggregators map[string]*Aggregator
	Producers   map[string]*Producer

	recorders []*stats.Recorder
}

func NewCluster(cfg *topo.Config, t *topo.Topology, vectors map[string][]float32) (*Cluster, error) {
	root, err := t.Consumer()
	if err != nil {
		return nil, err
	}
	producers := t.ByRole(topo.RoleProducer)
	aggregators := t.ByRole(topo.RoleAggregator)
	if len(producers) == 0 {
		return nil, errors.New("topology has no producers")
	}

	at, err := tree.Build(root, producers, aggregators, cfg.Constraint, t.LinkCost)
	if err != nil {
		return nil, err
	}

	var (
		loop    = sim.NewLoop()
		fabric  = transport.NewFabric(loop, t)
		metrics = stats.NewMetrics(prometheus.NewRegistry())
		cl      = &Cluster{
			Loop:        loop,
			Fabric:      fabric,
			Tree:        at,
			Aggregators: make(map[string]*Aggregator, len(aggregators)),
			Producers:   make(map[string]*Producer, len(producers)),
		}
	)
	ctx := func(name string) *Ctx {
		rec := stats.NewRecorder(cfg.LogDir, name)
		cl.recorders = append(cl.recorders, rec)
		return &Ctx{Name: name, Loop: loop, Rec: rec, Metrics: metrics, Cfg: cfg}
	}

	cctx := ctx(root)
	cl.Consumer = NewConsumer(cctx, at, len(producers))
	cctx.Face = fabric.Attach(root, cl.Consumer)

	for _, name := range aggregators {
		actx := ctx(name)
		agg := NewAggregator(actx)
		actx.Face = fabric.Attach(name, agg)
		cl.Aggregators[name] = agg
	}
	for i, name := range producers {
		vec := vectors[name]
		if vec == nil {
			vec = make([]float32, cfg.VectorSize)
			for j := range vec {
				vec[j] = float32(i + 1)
			}
		}
		pctx := ctx(name)
		p := NewProducer(pctx, vec)
		pctx.Face = fabric.Attach(name, p)
		cl.Producers[name] = p
	}
	return cl, nil
}

// Run starts the consumer and drains the event loop.
func (cl *Cluster) Run() error { return cl.RunUntil(0) }

// RunUntil bounds the run by virtual time (tests); 0 means no horizon.
func (cl *Cluster) RunUntil(horizon time.Duration) error {
	cl.Loop.Schedule(0, cl.Consumer.Start)
	return cl.Loop.Run(horizon)
}

// Close flushes every node's log files.
func (cl *Cluster) Close() (err error) {
	for _, rec := range cl.recorders {
		if e := rec.Flush(); e != nil && err == nil {
			err = e
		}
	}
	return
}
