// Package node implements the event-driven roles of the aggregation overlay.
/*
 * Copyright (c) 2024-2025, CFN-Agg Authors. All rights reserved.
 */
package node_test

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/cfnagg/cfnagg/node"
	"github.com/cfnagg/cfnagg/topo"
	"github.com/cfnagg/cfnagg/wire"
)

const horizon = 5 * time.Minute // virtual-time safety bound

func smallTopology(aggs int, producersPerAgg int) *topo.Topology {
	nodes := []topo.Node{{Name: "con0", Role: topo.RoleConsumer}}
	var links []topo.Link
	p := 0
	for a := 0; a < aggs; a++ {
		agg := "agg" + string(rune('0'+a))
		nodes = append(nodes, topo.Node{Name: agg, Role: topo.RoleAggregator})
		links = append(links, topo.Link{A: "con0", B: agg, Cost: 1})
		for i := 0; i < producersPerAgg; i++ {
			name := "p" + string(rune('0'+p))
			p++
			nodes = append(nodes, topo.Node{Name: name, Role: topo.RoleProducer})
			links = append(links, topo.Link{A: agg, B: name, Cost: 1})
		}
	}
	t, err := topo.New(nodes, links)
	Expect(err).NotTo(HaveOccurred())
	return t
}

func expectNoLeak(cl *node.Cluster) {
	Expect(cl.Consumer.Outstanding()).To(BeZero())
	Expect(cl.Consumer.InFlight()).To(BeZero())
	Expect(cl.Consumer.OpenIters()).To(BeZero())
	for name, agg := range cl.Aggregators {
		Expect(agg.Outstanding()).To(BeZero(), "aggregator %s outstanding", name)
		Expect(agg.InFlight()).To(BeZero(), "aggregator %s in-flight", name)
		Expect(agg.OpenIters()).To(BeZero(), "aggregator %s open iterations", name)
	}
}

var _ = Describe("Cluster", func() {
	It("aggregates two producers through one aggregator", func() {
		logDir, err := os.MkdirTemp("", "cfnagg-e2e")
		Expect(err).NotTo(HaveOccurred())
		defer os.RemoveAll(logDir)

		cfg := &topo.Config{Constraint: 2, Window: 1, Iteration: 1, VectorSize: 3, LogDir: logDir}
		Expect(cfg.Validate()).To(Succeed())
		cl, err := node.NewCluster(cfg, smallTopology(1, 2), map[string][]float32{
			"p0": {1, 2, 3},
			"p1": {4, 5, 6},
		})
		Expect(err).NotTo(HaveOccurred())

		Expect(cl.RunUntil(horizon)).To(Succeed())
		Expect(cl.Close()).To(Succeed())

		Expect(cl.Consumer.Iterations()).To(Equal(1))
		Expect(cl.Consumer.Means[1]).To(Equal([]float32{2.5, 3.5, 4.5}))
		Expect(cl.Consumer.Suspicious()).To(BeZero(), "no timeouts in a lossless run")
		expectNoLeak(cl)

		// one aggregation-time entry, no timeout noise in the logs
		aggTimes, err := os.ReadFile(filepath.Join(logDir, "con0_aggregationTime.txt"))
		Expect(err).NotTo(HaveOccurred())
		Expect(strings.Count(string(aggTimes), "\n")).To(Equal(1))
	})

	It("recovers a dropped data packet via timeout and retransmit", func() {
		cfg := &topo.Config{Constraint: 2, Window: 4, Iteration: 1, VectorSize: 3}
		Expect(cfg.Validate()).To(Succeed())
		cl, err := node.NewCluster(cfg, smallTopology(1, 2), map[string][]float32{
			"p0": {1, 2, 3},
			"p1": {4, 5, 6},
		})
		Expect(err).NotTo(HaveOccurred())

		dropped := false
		cl.Fabric.SetDataHook(func(from string, d *wire.Data) (bool, time.Duration) {
			if from == "p0" && !dropped {
				dropped = true
				return true, 0
			}
			return false, 0
		})

		Expect(cl.RunUntil(horizon)).To(Succeed())
		Expect(dropped).To(BeTrue())

		Expect(cl.Consumer.Means[1]).To(Equal([]float32{2.5, 3.5, 4.5}), "mean unchanged by the retransmit")
		agg := cl.Aggregators["agg0"]
		Expect(agg.Suspicious()).To(Equal(1), "exactly one timeout at the aggregator")
		// window 4 halved to 2, then one congestion-avoidance increase on the recovery
		Expect(agg.Flow("p0").Window()).To(BeNumerically("~", 2.5, 1e-9))
		Expect(agg.Flow("p1").Window()).To(BeNumerically("==", 5), "sibling flow kept slow-starting")
		expectNoLeak(cl)
	})

	It("drops a replayed downstream interest without state growth", func() {
		cfg := &topo.Config{Constraint: 2, Window: 1, Iteration: 1, VectorSize: 3}
		Expect(cfg.Validate()).To(Succeed())
		cl, err := node.NewCluster(cfg, smallTopology(1, 2), nil)
		Expect(err).NotTo(HaveOccurred())

		// lose p0's data twice so the aggregator's dup FIFO holds the name
		drops := 0
		cl.Fabric.SetDataHook(func(from string, d *wire.Data) (bool, time.Duration) {
			if from == "p0" && drops < 2 {
				drops++
				return true, 0
			}
			return false, 0
		})

		Expect(cl.RunUntil(horizon)).To(Succeed())
		Expect(cl.Consumer.Iterations()).To(Equal(1))
		Expect(cl.Aggregators["agg0"].Suspicious()).To(BeNumerically(">=", 2))
		expectNoLeak(cl)
	})

	It("triggers a local-ECN decrease on the congested flow only", func() {
		cfg := &topo.Config{Constraint: 2, Window: 4, Iteration: 20, VectorSize: 2, UseCwa: true}
		Expect(cfg.Validate()).To(Succeed())
		cl, err := node.NewCluster(cfg, smallTopology(2, 2), nil)
		Expect(err).NotTo(HaveOccurred())

		// after 10 replies from p0, spike its RTT 3x once
		var fromP0 int
		cl.Fabric.SetDataHook(func(from string, d *wire.Data) (bool, time.Duration) {
			if from == "p0" {
				fromP0++
				if fromP0 == 11 {
					return false, 4 * time.Millisecond
				}
			}
			return false, 0
		})

		Expect(cl.RunUntil(horizon)).To(Succeed())
		Expect(cl.Consumer.Iterations()).To(Equal(20))

		agg := cl.Aggregators["agg0"]
		Expect(agg.Flow("p0").Samples()).To(BeNumerically(">=", 6), "threshold active before the spike")
		// p0's flow took a LocalCongestion decrease; without it cwnd would
		// have kept growing past the sibling's
		Expect(agg.Flow("p0").Window()).To(BeNumerically("<", agg.Flow("p1").Window()))
		expectNoLeak(cl)
	})

	It("completes 50 iterations over 8 producers and emits one throughput record", func() {
		logDir, err := os.MkdirTemp("", "cfnagg-e2e")
		Expect(err).NotTo(HaveOccurred())
		defer os.RemoveAll(logDir)

		cfg := &topo.Config{Constraint: 4, Window: 2, Iteration: 50, VectorSize: 4, LogDir: logDir}
		Expect(cfg.Validate()).To(Succeed())
		cl, err := node.NewCluster(cfg, smallTopology(2, 4), nil)
		Expect(err).NotTo(HaveOccurred())

		Expect(cl.RunUntil(horizon)).To(Succeed())
		Expect(cl.Close()).To(Succeed())

		Expect(cl.Consumer.Iterations()).To(Equal(50))
		// default producer vectors are constant i+1: mean = (1+...+8)/8
		Expect(cl.Consumer.Means[50]).To(Equal([]float32{4.5, 4.5, 4.5, 4.5}))
		expectNoLeak(cl)

		tput, err := os.ReadFile(filepath.Join(logDir, "throughput.txt"))
		Expect(err).NotTo(HaveOccurred())
		Expect(strings.Count(string(tput), "\n")).To(Equal(1), "throughput emitted exactly once")
		Expect(strings.Fields(string(tput))).To(HaveLen(5))
	})

	It("serves leaves directly when no aggregator is available", func() {
		nodes := []topo.Node{
			{Name: "con0", Role: topo.RoleConsumer},
			{Name: "p0", Role: topo.RoleProducer},
			{Name: "p1", Role: topo.RoleProducer},
		}
		links := []topo.Link{
			{A: "con0", B: "p0", Cost: 1},
			{A: "con0", B: "p1", Cost: 1},
		}
		tp, err := topo.New(nodes, links)
		Expect(err).NotTo(HaveOccurred())

		cfg := &topo.Config{Constraint: 2, Window: 1, Iteration: 2, VectorSize: 2}
		Expect(cfg.Validate()).To(Succeed())
		cl, err := node.NewCluster(cfg, tp, map[string][]float32{
			"p0": {2, 2},
			"p1": {4, 4},
		})
		Expect(err).NotTo(HaveOccurred())

		Expect(cl.RunUntil(horizon)).To(Succeed())
		Expect(cl.Consumer.Iterations()).To(Equal(2))
		Expect(cl.Consumer.Means[2]).To(Equal([]float32{3, 3}))
		expectNoLeak(cl)
	})
})
