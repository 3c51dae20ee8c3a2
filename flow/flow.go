// Package flow implements the per-peer congestion context: Jacobson/Karn
// RTT and RTO estimation, the EWMA-learned RTT threshold that drives the
// local-ECN decision, and AIMD window control with Conservative Window
// Adaptation.
/*
 * Copyright (c) 2024-2025, CFN-Agg Authors. All rights reserved.
 */
package flow

import (
	"math"
	"time"

	"github.com/cfnagg/cfnagg/cmn/debug"
)

// DecreaseEvent names the cause of a multiplicative decrease.
type DecreaseEvent string

const (
	Timeout          DecreaseEvent = "timeout"
	LocalCongestion  DecreaseEvent = "LocalCongestion"
	RemoteCongestion DecreaseEvent = "RemoteCongestion"
)

// Tunables for one flow. Defaults returns a fully populated set.
type Tunables struct {
	RTOMultiplier int64         // k in rto = k*(srtt + 4*rttvar); 2 at the root, 4 at aggregators
	EWMAFactor    float64       // alpha for the RTT EWMA
	ThresholdBeta float64       // rtt_threshold = beta * ewma_rtt
	AlphaTimeout  float64       // window factor on timeout
	BetaLocal     float64       // window factor on local congestion
	GammaRemote   float64       // window factor on remote congestion
	InitialWindow float64
	UseCWA        bool
	Children      int           // fan-in of this flow; threshold activates after 3x samples
	InitRTO       time.Duration // rto before the first sample
}

func Defaults(children int) Tunables {
	return Tunables{
		RTOMultiplier: 4,
		EWMAFactor:    0.3,
		ThresholdBeta: 1.0,
		AlphaTimeout:  0.5,
		BetaLocal:     0.6,
		GammaRemote:   0.7,
		InitialWindow: 1,
		UseCWA:        true,
		Children:      children,
		InitRTO:       300 * time.Millisecond,
	}
}

// Controller is the per-flow state machine. All methods run on the owning
// node's event loop; there is no locking by design.
type Controller struct {
	tun Tunables

	// RTT/RTO (units: microseconds, matching the persisted logs)
	srtt    int64
	rttvar  int64
	rto     time.Duration
	initRTO bool

	// EWMA threshold
	ewmaRTT      float64
	rttThreshold time.Duration
	rttSamples   int

	// AIMD
	cwnd     float64
	ssthresh float64
	inFlight int

	lastDecrease  time.Duration
	everDecreased bool
}

func NewController(tun Tunables) *Controller {
	debug.Assert(tun.InitialWindow >= 1)
	return &Controller{
		tun:      tun,
		rto:      tun.InitRTO,
		ssthresh: 1 << 30, // effectively unbounded until the first decrease
		cwnd:     tun.InitialWindow,
	}
}

//
// RTT / RTO
//

// OnRTTSample folds one response-time sample into srtt/rttvar/rto and the
// EWMA threshold. Standard constants: g=1/8, h=1/4, K=4.
func (c *Controller) OnRTTSample(rtt time.Duration) {
	r := rtt.Microseconds()
	if !c.initRTO {
		c.rttvar = r / 2
		c.srtt = r
		c.initRTO = true
	} else {
		d := c.srtt - r
		if d < 0 {
			d = -d
		}
		c.rttvar = (3*c.rttvar + d) / 4
		c.srtt = (7*c.srtt + r) / 8
	}
	c.rto = time.Duration(c.tun.RTOMultiplier*(c.srtt+4*c.rttvar)) * time.Microsecond

	if c.rttSamples == 0 {
		c.ewmaRTT = float64(r)
	} else {
		c.ewmaRTT = c.tun.EWMAFactor*float64(r) + (1-c.tun.EWMAFactor)*c.ewmaRTT
	}
	// rounded so that a constant-RTT flow sits exactly on, not under, the
	// threshold (strictly-greater is the congestion test)
	c.rttThreshold = time.Duration(math.Round(c.tun.ThresholdBeta*c.ewmaRTT)) * time.Microsecond
	c.rttSamples++
}

func (c *Controller) RTO() time.Duration       { return c.rto }
func (c *Controller) SRTT() time.Duration      { return time.Duration(c.srtt) * time.Microsecond }
func (c *Controller) Threshold() time.Duration { return c.rttThreshold }
func (c *Controller) Samples() int             { return c.rttSamples }

// ThresholdActive: no local-ECN decision before 3 full fan-in rounds of
// samples have been folded in.
func (c *Controller) ThresholdActive() bool {
	return c.tun.Children > 0 && c.rttSamples >= 3*c.tun.Children && c.rttThreshold > 0
}

// Congested reports the local-ECN decision for one sample.
func (c *Controller) Congested(rtt time.Duration) bool {
	return c.ThresholdActive() && rtt > c.rttThreshold
}

//
// AIMD window
//

func (c *Controller) Window() float64 { return c.cwnd }
func (c *Controller) InFlight() int   { return c.inFlight }

func (c *Controller) Sent() { c.inFlight++ }

func (c *Controller) Acked() {
	debug.Assert(c.inFlight > 0)
	if c.inFlight > 0 {
		c.inFlight--
	}
}

// HasRoom is the send-scheduling gate.
func (c *Controller) HasRoom() bool { return float64(c.inFlight) < c.cwnd }

// Increase: slow start below ssthresh, congestion avoidance above.
func (c *Controller) Increase() {
	if c.cwnd < c.ssthresh {
		c.cwnd++
	} else {
		c.cwnd += 1 / c.cwnd
	}
}

// Decrease applies a multiplicative decrease for the given event and reports
// whether it was applied. Local-congestion decreases are suppressed under CWA
// when the previous decrease was less than one rtt_threshold ago; timeout
// decreases are never suppressed.
func (c *Controller) Decrease(now time.Duration, ev DecreaseEvent) (applied bool) {
	if ev != Timeout && c.tun.UseCWA && c.everDecreased &&
		now-c.lastDecrease < c.rttThreshold {
		return false
	}
	var f float64
	switch ev {
	case Timeout:
		f = c.tun.AlphaTimeout
	case LocalCongestion:
		f = c.tun.BetaLocal
	case RemoteCongestion:
		f = c.tun.GammaRemote
	}
	c.ssthresh = c.cwnd * f
	if c.ssthresh < c.tun.InitialWindow {
		c.ssthresh = c.tun.InitialWindow
	}
	c.cwnd = c.ssthresh
	c.lastDecrease = now
	c.everDecreased = true
	return true
}
