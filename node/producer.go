// Package node implements the event-driven roles of the aggregation overlay.
/*
 * Copyright (c) 2024-2025, CFN-Agg Authors. All rights reserved.
 */
package node

import (
	"github.com/cfnagg/cfnagg/cmn/nlog"
	"github.com/cfnagg/cfnagg/wire"
)

// Producer is the leaf harness: it answers every data interest with a fixed
// parameter vector. Real producer behavior (training) is outside this
// repository; the simulation and the tests only need a deterministic source.
type Producer struct {
	ctx    *Ctx
	vector []float32
}

func NewProducer(ctx *Ctx, vector []float32) *Producer {
	return &Producer{ctx: ctx, vector: vector}
}

func (p *Producer) OnInterest(in *wire.Interest) {
	if in.Name.Type() != wire.TypeData {
		nlog.Infof("%s: interest %s ignored", p.ctx.Name, in.Name)
		return
	}
	payload := wire.Serialize(&wire.ModelData{Parameters: p.vector})
	p.ctx.sendData(in.Name, payload)
}

func (p *Producer) OnData(d *wire.Data) {
	nlog.Infof("%s: unexpected data %s, dropped", p.ctx.Name, d.Name)
}

func (p *Producer) OnNack(n *wire.Nack) {
	nlog.Infof("%s: nack for %s: %s", p.ctx.Name, n.Interest.Name, n.Reason)
}
