// Package node implements the event-driven roles of the aggregation overlay.
/*
 * Copyright (c) 2024-2025, CFN-Agg Authors. All rights reserved.
 */
package node

import (
	"strconv"
	"time"

	"github.com/cfnagg/cfnagg/cmn/cos"
	"github.com/cfnagg/cfnagg/cmn/nlog"
	"github.com/cfnagg/cfnagg/flow"
	"github.com/cfnagg/cfnagg/sim"
	"github.com/cfnagg/cfnagg/tree"
	"github.com/cfnagg/cfnagg/wire"
)

// Consumer is the root of the overlay: it broadcasts the constructed tree,
// generates per-iteration interests for every round, accumulates the final
// sums, and stops the simulation when the last iteration completes. One flow
// per round.
type Consumer struct {
	ctx *Ctx

	t             *tree.Tree
	rounds        []*roundState
	roundOf       map[string]int // child prefix -> round index
	producerCount int

	broadcast     map[string]struct{}
	broadcastSync bool
	globalSeq     uint32

	queue interestQueue
	out   *outTable
	iters map[uint32]*conIter

	// terminal artifacts
	Means map[uint32][]float32

	sendEv *sim.Event
	retxEv *sim.Event

	iterationCount int
	suspicious     int

	interestBytes, dataBytes int64
	throughputStart          time.Duration
	throughputDone           bool
}

type roundState struct {
	id       string // flow id in the persisted logs
	children []string
	fc       *flow.Controller
}

type conIter struct {
	sum         []float32
	outstanding map[string]struct{}
	start       time.Duration
	started     bool
}

func NewConsumer(ctx *Ctx, t *tree.Tree, producerCount int) *Consumer {
	c := &Consumer{
		ctx:           ctx,
		t:             t,
		roundOf:       make(map[string]int),
		producerCount: producerCount,
		broadcast:     make(map[string]struct{}, len(t.Broadcast)),
		out:           newOutTable(),
		iters:         make(map[uint32]*conIter, 8),
		Means:         make(map[uint32][]float32),
	}
	for r := range t.Rounds {
		children := t.RoundChildren(r)
		tun := flow.Defaults(len(children))
		tun.RTOMultiplier = 2
		tun.ThresholdBeta = 1.2
		c.applyConfig(&tun)
		rs := &roundState{id: "round" + strconv.Itoa(r), children: children, fc: flow.NewController(tun)}
		c.rounds = append(c.rounds, rs)
		for _, child := range children {
			c.roundOf[child] = r
		}
	}
	return c
}

func (c *Consumer) applyConfig(tun *flow.Tunables) {
	cfg := c.ctx.Cfg
	tun.AlphaTimeout = cfg.Alpha
	tun.BetaLocal = cfg.Beta
	tun.GammaRemote = cfg.Gamma
	tun.EWMAFactor = cfg.EWMAFactor
	tun.ThresholdBeta = cfg.ThresholdFactor
	tun.UseCWA = cfg.UseCwa
	if cfg.Window > 0 {
		tun.InitialWindow = float64(cfg.Window)
	}
}

// Start broadcasts the initialization round and begins generating interests.
// Iteration sequence numbers run 1..Iteration; the broadcast uses seq 0.
func (c *Consumer) Start() {
	now := c.ctx.Loop.Now()
	c.throughputStart = now
	for _, agg := range c.t.Broadcast {
		name := c.t.InitName(agg).AppendSeq(0)
		c.broadcast[agg] = struct{}{}
		c.out.add(name, "init", now, true)
		c.sendInterest(name)
	}
	c.globalSeq = 1
	c.generate()
	if len(c.broadcast) == 0 {
		c.synced()
	}
	c.retxEv = c.ctx.Loop.Schedule(c.ctx.tick(), c.sweep)
	c.scheduleSend()
}

// generate refills the interest queue up to capacity, one full iteration
// (all rounds) at a time.
func (c *Consumer) generate() {
	for c.queue.len() < c.ctx.Cfg.InterestQueue && c.globalSeq <= uint32(c.ctx.Cfg.Iteration) {
		seq := c.globalSeq
		iter := &conIter{
			sum:         make([]float32, c.ctx.Cfg.VectorSize),
			outstanding: make(map[string]struct{}),
		}
		first := true
		for r, rs := range c.rounds {
			for _, child := range rs.children {
				name := wire.DataName(child, c.t.LeafDescendants(r, child)).AppendSeq(seq)
				iter.outstanding[name.String()] = struct{}{}
				c.queue.push(queueItem{name: name, seq: seq, first: first})
				first = false
			}
		}
		c.iters[seq] = iter
		c.globalSeq++
	}
}

//
// send path
//

func (c *Consumer) scheduleSend() {
	if c.sendEv != nil {
		c.ctx.Loop.Cancel(c.sendEv)
		c.sendEv = nil
	}
	if !c.broadcastSync {
		return
	}
	head, ok := c.queue.peek()
	if !ok {
		return
	}
	fc := c.flowOf(head.name.Prefix())
	if fc == nil {
		c.ctx.Loop.Fail(cos.NewErrInvariant(c.ctx.Name, "no round for child %s", head.name.Prefix()))
		return
	}
	if fc.Window() == 0 {
		c.sendEv = c.ctx.Loop.Schedule(c.ctx.stalledBackoff(), c.sendPacket)
		return
	}
	if !fc.HasRoom() {
		return
	}
	c.sendEv = c.ctx.Loop.Schedule(0, c.sendPacket)
}

func (c *Consumer) sendPacket() {
	c.sendEv = nil
	it, ok := c.queue.pop()
	if !ok {
		return
	}
	if it.first {
		if iter := c.iters[it.seq]; iter != nil && !iter.started {
			iter.started = true
			iter.start = c.ctx.Loop.Now()
		}
	}
	name := it.name
	c.out.add(name, "", c.ctx.Loop.Now(), false)
	c.flowOf(name.Prefix()).Sent()
	c.sendInterest(name)
	c.scheduleSend()
}

func (c *Consumer) sendInterest(name wire.Name) {
	c.interestBytes += int64(len(name.String()))
	c.ctx.sendInterest(name)
}

func (c *Consumer) flowOf(prefix string) *flow.Controller {
	r, ok := c.roundOf[prefix]
	if !ok {
		return nil
	}
	return c.rounds[r].fc
}

//
// timeout sweep
//

func (c *Consumer) sweep() {
	now := c.ctx.Loop.Now()
	expired := c.out.expired(now, func(e *outEntry) time.Duration {
		if e.isInit {
			return 3 * c.ctx.tick()
		}
		if fc := c.flowOf(e.name.Prefix()); fc != nil {
			return fc.RTO()
		}
		return 3 * c.ctx.tick()
	})
	for _, e := range expired {
		c.onTimeout(e)
	}
	c.retxEv = c.ctx.Loop.Schedule(c.ctx.tick(), c.sweep)
}

func (c *Consumer) onTimeout(e *outEntry) {
	now := c.ctx.Loop.Now()
	c.suspicious++
	if c.ctx.Metrics != nil {
		c.ctx.Metrics.Timeouts.WithLabelValues(c.ctx.Name).Inc()
	}
	if e.isInit {
		nlog.Infof("%s: initialization for %s timed out, resending", c.ctx.Name, e.name.Prefix())
		c.out.add(e.name, "init", now, true)
		c.sendInterest(e.name)
		return
	}
	r := c.roundOf[e.name.Prefix()]
	rs := c.rounds[r]
	rs.fc.Decrease(now, flow.Timeout)
	if c.ctx.Metrics != nil {
		c.ctx.Metrics.WindowDecreases.WithLabelValues(c.ctx.Name, string(flow.Timeout)).Inc()
	}
	c.recordWindow(rs)
	rs.fc.Acked()
	nlog.Infof("%s: timeout %s, resending", c.ctx.Name, e.name)
	c.out.add(e.name, "", now, false)
	rs.fc.Sent()
	c.sendInterest(e.name)
	c.scheduleSend()
}

//
// receive path
//

func (c *Consumer) OnData(d *wire.Data) {
	switch d.Name.Type() {
	case wire.TypeInit:
		c.onInitAck(d)
	case wire.TypeData:
		c.onModelData(d)
	default:
		nlog.Warningf("%s: data %s: unknown type, dropped", c.ctx.Name, d.Name)
	}
}

func (c *Consumer) onInitAck(d *wire.Data) {
	c.out.remove(d.Name.String())
	sender := d.Name.Prefix()
	if _, ok := c.broadcast[sender]; !ok {
		nlog.Infof("%s: late initialization reply from %s, dropped", c.ctx.Name, sender)
		return
	}
	delete(c.broadcast, sender)
	nlog.Infof("%s: %s acked the aggregation tree", c.ctx.Name, sender)
	if len(c.broadcast) == 0 {
		c.synced()
	}
}

// synced flips broadcastSync and creates the (empty) per-flow log files;
// ordinary traffic may flow from here on.
func (c *Consumer) synced() {
	c.broadcastSync = true
	for _, rs := range c.rounds {
		if err := c.ctx.Rec.OpenFlow(rs.id); err != nil {
			nlog.Errorf("%s: log files for %s: %v", c.ctx.Name, rs.id, err)
		}
		c.recordWindow(rs)
	}
	nlog.Infof("%s: tree broadcast synchronized, starting iterations", c.ctx.Name)
	c.scheduleSend()
}

func (c *Consumer) onModelData(d *wire.Data) {
	now := c.ctx.Loop.Now()
	if c.ctx.Metrics != nil {
		c.ctx.Metrics.DataReceived.WithLabelValues(c.ctx.Name).Inc()
	}
	c.dataBytes += int64(len(d.Payload))
	seq, err := d.Name.Seq()
	if err != nil {
		nlog.Warningf("%s: %v, dropped", c.ctx.Name, err)
		return
	}
	nameStr := d.Name.String()
	entry, hadEntry := c.out.remove(nameStr)

	r, ok := c.roundOf[d.Name.Prefix()]
	if !ok {
		c.ctx.Loop.Fail(cos.NewErrInvariant(c.ctx.Name, "data %s from unknown child", d.Name))
		return
	}
	rs := c.rounds[r]

	iter := c.iters[seq]
	if iter == nil {
		nlog.Infof("%s: data %s: no iteration state for seq %d, dropped as duplicate", c.ctx.Name, d.Name, seq)
		c.ackLate(rs, hadEntry)
		return
	}
	if _, ok := iter.outstanding[nameStr]; !ok {
		nlog.Infof("%s: data %s already aggregated, dropped as duplicate", c.ctx.Name, d.Name)
		c.ackLate(rs, hadEntry)
		return
	}

	var ecnLocal bool
	if hadEntry {
		rtt := now - entry.sentAt
		rs.fc.OnRTTSample(rtt)
		ecnLocal = rs.fc.Congested(rtt)
		c.ctx.Rec.RTO(now, rs.id, rs.fc.RTO())
		c.ctx.Rec.RTT(now, rs.id, seq, ecnLocal, rs.fc.Threshold(), rtt)
	}

	md, err := wire.Deserialize(d.Payload, c.ctx.Cfg.VectorSize)
	if err != nil {
		c.ctx.Loop.Fail(err)
		return
	}
	for i, v := range md.Parameters {
		iter.sum[i] += v
	}
	delete(iter.outstanding, nameStr)
	ecnRemote := len(md.CongestedNodes) > 0
	if ecnRemote {
		nlog.Infof("%s: congested nodes reported on %s: %v", c.ctx.Name, d.Name, md.CongestedNodes)
	}

	switch {
	case d.CongestionMark > 0:
		nlog.Infof("%s: congestion mark %d on %s", c.ctx.Name, d.CongestionMark, d.Name)
	case ecnLocal:
		c.decrease(rs, flow.LocalCongestion)
	case ecnRemote:
		c.decrease(rs, flow.RemoteCongestion)
	default:
		rs.fc.Increase()
		c.recordWindow(rs)
	}
	if hadEntry {
		rs.fc.Acked()
	}

	if len(iter.outstanding) == 0 {
		c.finishIteration(seq, iter)
	}
	c.generate()
	c.scheduleSend()
}

func (c *Consumer) decrease(rs *roundState, ev flow.DecreaseEvent) {
	now := c.ctx.Loop.Now()
	if rs.fc.Decrease(now, ev) {
		if c.ctx.Metrics != nil {
			c.ctx.Metrics.WindowDecreases.WithLabelValues(c.ctx.Name, string(ev)).Inc()
		}
		c.recordWindow(rs)
	} else {
		if c.ctx.Metrics != nil {
			c.ctx.Metrics.Suppressed.WithLabelValues(c.ctx.Name).Inc()
		}
		nlog.Infof("%s: %s decrease on flow %s suppressed", c.ctx.Name, ev, rs.id)
	}
}

// ackLate keeps the in-flight accounting right for data that is dropped as
// duplicate or late but still had an outstanding-table entry.
func (c *Consumer) ackLate(rs *roundState, hadEntry bool) {
	if hadEntry {
		rs.fc.Acked()
		c.scheduleSend()
	}
}

// finishIteration computes the terminal mean for the sequence and, after the
// final iteration, records throughput and stops the simulation.
func (c *Consumer) finishIteration(seq uint32, iter *conIter) {
	now := c.ctx.Loop.Now()
	mean := make([]float32, len(iter.sum))
	for i, v := range iter.sum {
		mean[i] = v / float32(c.producerCount)
	}
	c.Means[seq] = mean
	delete(c.iters, seq)
	c.iterationCount++
	if iter.started {
		c.ctx.Rec.AggTime(now, now-iter.start)
	}
	nlog.Infof("%s: iteration %d complete (%d/%d)", c.ctx.Name, seq, c.iterationCount, c.ctx.Cfg.Iteration)

	if c.iterationCount == c.ctx.Cfg.Iteration {
		c.finish(now)
	}
}

func (c *Consumer) finish(now time.Duration) {
	if c.throughputDone {
		return
	}
	c.throughputDone = true
	fanIn := 0
	for _, rs := range c.rounds {
		fanIn += len(rs.children)
	}
	c.ctx.Rec.Throughput(c.interestBytes, c.dataBytes, fanIn, c.throughputStart, now)
	nlog.Infof("%s: reached %d iterations, %d timeout suspicion%s, stopping",
		c.ctx.Name, c.iterationCount, c.suspicious, cos.Plural(c.suspicious))
	c.ctx.Loop.Stop()
}

func (c *Consumer) OnInterest(in *wire.Interest) {
	nlog.Warningf("%s: unexpected interest %s", c.ctx.Name, in.Name)
}

func (c *Consumer) OnNack(n *wire.Nack) {
	nlog.Infof("%s: nack for %s: %s", c.ctx.Name, n.Interest.Name, n.Reason)
}

//
// introspection (tests, driver teardown)
//

func (c *Consumer) Synced() bool     { return c.broadcastSync }
func (c *Consumer) Iterations() int  { return c.iterationCount }
func (c *Consumer) Suspicious() int  { return c.suspicious }
func (c *Consumer) Outstanding() int { return c.out.len() }
func (c *Consumer) OpenIters() int   { return len(c.iters) }
func (c *Consumer) QueueLen() int    { return c.queue.len() }

func (c *Consumer) InFlight() (n int) {
	for _, rs := range c.rounds {
		n += rs.fc.InFlight()
	}
	return
}

func (c *Consumer) RoundFlow(r int) *flow.Controller { return c.rounds[r].fc }

func (c *Consumer) recordWindow(rs *roundState) {
	c.ctx.Rec.Window(c.ctx.Loop.Now(), rs.id, rs.fc.Window())
}
