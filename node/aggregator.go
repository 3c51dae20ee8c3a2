// Package node implements the event-driven roles of the aggregation overlay.
/*
 * Copyright (c) 2024-2025, CFN-Agg Authors. All rights reserved.
 */
package node

import (
	"sort"
	"strings"
	"time"

	"github.com/cfnagg/cfnagg/cmn/cos"
	"github.com/cfnagg/cfnagg/cmn/nlog"
	"github.com/cfnagg/cfnagg/flow"
	"github.com/cfnagg/cfnagg/sim"
	"github.com/cfnagg/cfnagg/wire"
)

// Aggregator is an intermediate node: it learns its child->leaves map from
// the initialization broadcast, splits upstream interests across its
// children, sums the returned vectors per iteration, and replies upstream
// under the original name. One flow per child.
type Aggregator struct {
	ctx *Ctx

	treeSync bool
	aggMap   map[string][]string // child -> sorted leaves
	flows    map[string]*flow.Controller

	queue interestQueue
	out   *outTable
	dup   *dupFIFO
	iters map[uint32]*aggIter

	sendEv *sim.Event
	retxEv *sim.Event

	suspicious int
}

// per-iteration aggregation state, created on the first arriving interest of
// a sequence and destroyed when the aggregated data has been sent upstream
type aggIter struct {
	sum           []float32
	congested     []string
	outstanding   map[string]struct{}
	upstream      wire.Name
	start         time.Duration
	started       bool
	selfCongested bool
}

func NewAggregator(ctx *Ctx) *Aggregator {
	return &Aggregator{
		ctx:   ctx,
		out:   newOutTable(),
		dup:   newDupFIFO(dupFIFOCap),
		iters: make(map[uint32]*aggIter, 8),
	}
}

func (a *Aggregator) OnInterest(in *wire.Interest) {
	switch in.Name.Type() {
	case wire.TypeInit:
		a.handleInit(in)
	case wire.TypeData:
		a.handleUpstream(in)
	default:
		nlog.Warningf("%s: interest %s: unknown type", a.ctx.Name, in.Name)
	}
}

// handleInit parses the broadcast descriptor ("child.leaf1.leaf2..." per
// component), sets up the per-child flows and log files, and acks with an
// empty data packet right away.
func (a *Aggregator) handleInit(in *wire.Interest) {
	a.aggMap = make(map[string][]string)
	for i := 1; i < in.Name.Len()-2; i++ {
		segs := strings.Split(in.Name.Component(i), ".")
		if len(segs) < 2 {
			continue
		}
		child := segs[0]
		leaves := append(a.aggMap[child], segs[1:]...)
		sort.Strings(leaves)
		a.aggMap[child] = leaves
	}
	a.treeSync = true

	numChild := len(a.aggMap)
	a.flows = make(map[string]*flow.Controller, numChild)
	for child := range a.aggMap {
		tun := flow.Defaults(numChild)
		tun.RTOMultiplier = 4
		tun.ThresholdBeta = 1.0
		a.applyConfig(&tun)
		a.flows[child] = flow.NewController(tun)
		if err := a.ctx.Rec.OpenFlow(child); err != nil {
			nlog.Errorf("%s: log files for flow %s: %v", a.ctx.Name, child, err)
		}
		a.recordWindow(child)
	}
	nlog.Infof("%s: aggregation map received, %d child%s", a.ctx.Name, numChild, cos.Plural(numChild))

	if a.retxEv == nil {
		a.retxEv = a.ctx.Loop.Schedule(a.ctx.tick(), a.sweep)
	}
	a.ctx.sendData(in.Name, nil)
}

func (a *Aggregator) applyConfig(tun *flow.Tunables) {
	cfg := a.ctx.Cfg
	if cfg == nil {
		return
	}
	tun.AlphaTimeout = cfg.Alpha
	tun.BetaLocal = cfg.Beta
	tun.GammaRemote = cfg.Gamma
	tun.EWMAFactor = cfg.EWMAFactor
	tun.UseCWA = cfg.UseCwa
	if cfg.Window > 0 {
		tun.InitialWindow = float64(cfg.Window)
	}
}

// handleUpstream splits one upstream interest into per-child sub-interests
// and queues them. A sub-interest name found in the duplicate-suppression
// FIFO drops the whole upstream interest.
func (a *Aggregator) handleUpstream(in *wire.Interest) {
	if !a.treeSync {
		a.ctx.Loop.Fail(cos.NewErrInvariant(a.ctx.Name, "data interest %s before initialization", in.Name))
		return
	}
	seq, err := in.Name.Seq()
	if err != nil {
		nlog.Warningf("%s: %v, dropped", a.ctx.Name, err)
		return
	}
	items := split(in.Name.Leaves(), a.aggMap, seq)
	if len(items) == 0 {
		nlog.Infof("%s: interest %s covers none of our leaves", a.ctx.Name, in.Name)
		return
	}
	for _, it := range items {
		if a.dup.contains(it.name.String()) {
			if a.ctx.Metrics != nil {
				a.ctx.Metrics.DuplicatesDrop.WithLabelValues(a.ctx.Name).Inc()
			}
			nlog.Infof("%s: %s is a replayed retransmission, dropping upstream interest %s",
				a.ctx.Name, it.name, in.Name)
			return
		}
	}

	if _, ok := a.iters[seq]; !ok {
		iter := &aggIter{
			sum:         make([]float32, a.ctx.Cfg.VectorSize),
			outstanding: make(map[string]struct{}, len(items)),
			upstream:    in.Name,
		}
		for _, it := range items {
			iter.outstanding[it.name.String()] = struct{}{}
		}
		a.iters[seq] = iter
	}
	for _, it := range items {
		a.queue.push(it)
	}
	a.scheduleSend()
}

//
// send path
//

func (a *Aggregator) scheduleSend() {
	if a.sendEv != nil {
		a.ctx.Loop.Cancel(a.sendEv)
		a.sendEv = nil
	}
	if !a.treeSync {
		return
	}
	head, ok := a.queue.peek()
	if !ok {
		return
	}
	fc := a.flows[head.name.Prefix()]
	if fc == nil {
		a.ctx.Loop.Fail(cos.NewErrInvariant(a.ctx.Name, "no flow for child %s", head.name.Prefix()))
		return
	}
	if fc.Window() == 0 {
		a.sendEv = a.ctx.Loop.Schedule(a.ctx.stalledBackoff(), a.sendPacket)
		return
	}
	if !fc.HasRoom() {
		return // re-armed when a reply or timeout frees the window
	}
	a.sendEv = a.ctx.Loop.Schedule(0, a.sendPacket)
}

func (a *Aggregator) sendPacket() {
	a.sendEv = nil
	it, ok := a.queue.pop()
	if !ok {
		return
	}
	if it.first {
		if iter := a.iters[it.seq]; iter != nil && !iter.started {
			iter.started = true
			iter.start = a.ctx.Loop.Now()
		}
	}
	a.send(it.name)
	a.scheduleSend()
}

func (a *Aggregator) send(name wire.Name) {
	child := name.Prefix()
	a.ctx.sendInterest(name)
	a.out.add(name, child, a.ctx.Loop.Now(), false)
	a.flows[child].Sent()
}

//
// timeout sweep
//

func (a *Aggregator) sweep() {
	now := a.ctx.Loop.Now()
	expired := a.out.expired(now, func(e *outEntry) time.Duration {
		return a.flows[e.flow].RTO()
	})
	for _, e := range expired {
		a.onTimeout(e)
	}
	a.retxEv = a.ctx.Loop.Schedule(a.ctx.tick(), a.sweep)
}

func (a *Aggregator) onTimeout(e *outEntry) {
	now := a.ctx.Loop.Now()
	a.suspicious++
	if a.ctx.Metrics != nil {
		a.ctx.Metrics.Timeouts.WithLabelValues(a.ctx.Name).Inc()
	}
	fc := a.flows[e.flow]
	fc.Decrease(now, flow.Timeout) // never suppressed
	if a.ctx.Metrics != nil {
		a.ctx.Metrics.WindowDecreases.WithLabelValues(a.ctx.Name, string(flow.Timeout)).Inc()
	}
	a.recordWindow(e.flow)
	fc.Acked()
	a.dup.push(e.name.String())
	nlog.Infof("%s: timeout %s, resending", a.ctx.Name, e.name)
	a.send(e.name)
	a.scheduleSend()
}

//
// receive path
//

func (a *Aggregator) OnData(d *wire.Data) {
	now := a.ctx.Loop.Now()
	if a.ctx.Metrics != nil {
		a.ctx.Metrics.DataReceived.WithLabelValues(a.ctx.Name).Inc()
		a.ctx.Metrics.BytesIn.WithLabelValues(a.ctx.Name).Add(float64(len(d.Payload)))
	}
	seq, err := d.Name.Seq()
	if err != nil {
		nlog.Warningf("%s: %v, dropped", a.ctx.Name, err)
		return
	}
	nameStr := d.Name.String()
	entry, hadEntry := a.out.remove(nameStr)

	child := d.Name.Prefix()
	fc := a.flows[child]
	if fc == nil {
		a.ctx.Loop.Fail(cos.NewErrInvariant(a.ctx.Name, "data %s from unknown child", d.Name))
		return
	}

	iter := a.iters[seq]
	if iter == nil {
		nlog.Infof("%s: data %s: no aggregation state for seq %d, dropped as duplicate", a.ctx.Name, d.Name, seq)
		a.ackLate(fc, hadEntry)
		return
	}
	if _, ok := iter.outstanding[nameStr]; !ok {
		nlog.Infof("%s: data %s already aggregated, dropped as duplicate", a.ctx.Name, d.Name)
		a.ackLate(fc, hadEntry)
		return
	}

	var ecnLocal bool
	if hadEntry {
		rtt := now - entry.sentAt
		fc.OnRTTSample(rtt)
		ecnLocal = fc.Congested(rtt)
		a.ctx.Rec.RTO(now, child, fc.RTO())
		a.ctx.Rec.RTT(now, child, seq, ecnLocal, fc.Threshold(), rtt)
	}

	md, err := wire.Deserialize(d.Payload, a.ctx.Cfg.VectorSize)
	if err != nil {
		a.ctx.Loop.Fail(err)
		return
	}
	for i, v := range md.Parameters {
		iter.sum[i] += v
	}
	iter.congested = append(iter.congested, md.CongestedNodes...)
	delete(iter.outstanding, nameStr)
	ecnRemote := len(md.CongestedNodes) > 0

	switch {
	case d.CongestionMark > 0:
		nlog.Infof("%s: congestion mark %d on %s", a.ctx.Name, d.CongestionMark, d.Name)
	case ecnLocal:
		iter.selfCongested = true
		a.decrease(fc, child, flow.LocalCongestion)
	case ecnRemote:
		a.decrease(fc, child, flow.RemoteCongestion)
	default:
		fc.Increase()
		a.recordWindow(child)
	}
	if hadEntry {
		fc.Acked()
	}
	a.scheduleSend()

	if len(iter.outstanding) == 0 {
		a.finishIteration(seq, iter)
	}
}

// ackLate keeps the in-flight accounting right for data that is dropped as
// duplicate or late but still had an outstanding-table entry.
func (a *Aggregator) ackLate(fc *flow.Controller, hadEntry bool) {
	if hadEntry {
		fc.Acked()
		a.scheduleSend()
	}
}

func (a *Aggregator) decrease(fc *flow.Controller, child string, ev flow.DecreaseEvent) {
	now := a.ctx.Loop.Now()
	if fc.Decrease(now, ev) {
		if a.ctx.Metrics != nil {
			a.ctx.Metrics.WindowDecreases.WithLabelValues(a.ctx.Name, string(ev)).Inc()
		}
		a.recordWindow(child)
	} else {
		if a.ctx.Metrics != nil {
			a.ctx.Metrics.Suppressed.WithLabelValues(a.ctx.Name).Inc()
		}
		nlog.Infof("%s: %s decrease on flow %s suppressed", a.ctx.Name, ev, child)
	}
}

// finishIteration sends the per-iteration sum upstream unmodified (the root
// computes the mean), appending our own prefix to the congestion list when
// local congestion was seen during the iteration.
func (a *Aggregator) finishIteration(seq uint32, iter *aggIter) {
	now := a.ctx.Loop.Now()
	if iter.started {
		a.ctx.Rec.AggTime(now, now-iter.start)
	}
	congested := iter.congested
	if iter.selfCongested {
		congested = append(congested, a.ctx.Name)
	}
	payload := wire.Serialize(&wire.ModelData{Parameters: iter.sum, CongestedNodes: congested})
	a.ctx.sendData(iter.upstream, payload)
	delete(a.iters, seq)
	nlog.Infof("%s: iteration %d aggregated and sent upstream", a.ctx.Name, seq)
}

func (a *Aggregator) OnNack(n *wire.Nack) {
	nlog.Infof("%s: nack for %s: %s", a.ctx.Name, n.Interest.Name, n.Reason)
}

//
// introspection (tests, driver teardown)
//

func (a *Aggregator) TreeSync() bool   { return a.treeSync }
func (a *Aggregator) Outstanding() int { return a.out.len() }
func (a *Aggregator) OpenIters() int   { return len(a.iters) }
func (a *Aggregator) Suspicious() int  { return a.suspicious }

func (a *Aggregator) InFlight() (n int) {
	for _, fc := range a.flows {
		n += fc.InFlight()
	}
	return
}

func (a *Aggregator) Flow(child string) *flow.Controller { return a.flows[child] }

func (a *Aggregator) recordWindow(child string) {
	a.ctx.Rec.Window(a.ctx.Loop.Now(), child, a.flows[child].Window())
}
