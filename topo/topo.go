// Package topo loads the simulated network: node roles, link costs and
// delays, and the run configuration consumed by the driver.
/*
 * Copyright (c) 2024-2025, CFN-Agg Authors. All rights reserved.
 */
package topo

import (
	"os"
	"sort"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

type Role string

const (
	RoleConsumer   Role = "consumer"
	RoleAggregator Role = "aggregator"
	RoleProducer   Role = "producer"
)

const Unreachable = int64(-1)

type (
	Node struct {
		Name string `yaml:"name"`
		Role Role   `yaml:"role"`
	}
	Link struct {
		A       string `yaml:"a"`
		B       string `yaml:"b"`
		Cost    int64  `yaml:"cost"`
		DelayUs int64  `yaml:"delay_us"` // optional; default derives from cost
	}
	Topology struct {
		Nodes []Node `yaml:"nodes"`
		Links []Link `yaml:"links"`

		index map[string]int
		cost  [][]int64 // all-pairs, -1 unreachable
		delay [][]time.Duration
	}
)

// default per-cost-unit one-way propagation delay when delay_us is omitted
const delayPerCostUnit = time.Millisecond

// New builds a topology in code (tests, generators).
func New(nodes []Node, links []Link) (*Topology, error) {
	t := &Topology{Nodes: nodes, Links: links}
	if err := t.init(); err != nil {
		return nil, err
	}
	return t, nil
}

func Load(path string) (*Topology, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "topology")
	}
	defer f.Close()
	var t Topology
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&t); err != nil {
		return nil, errors.Wrapf(err, "topology %s", path)
	}
	if err := t.init(); err != nil {
		return nil, errors.Wrapf(err, "topology %s", path)
	}
	return &t, nil
}

func (t *Topology) init() error {
	n := len(t.Nodes)
	if n == 0 {
		return errors.New("no nodes")
	}
	t.index = make(map[string]int, n)
	for i, nd := range t.Nodes {
		if nd.Name == "" {
			return errors.Errorf("node %d: empty name", i)
		}
		switch nd.Role {
		case RoleConsumer, RoleAggregator, RoleProducer:
		default:
			return errors.Errorf("node %s: unknown role %q", nd.Name, nd.Role)
		}
		if _, ok := t.index[nd.Name]; ok {
			return errors.Errorf("duplicate node %s", nd.Name)
		}
		t.index[nd.Name] = i
	}

	t.cost = make([][]int64, n)
	t.delay = make([][]time.Duration, n)
	for i := range t.cost {
		t.cost[i] = make([]int64, n)
		t.delay[i] = make([]time.Duration, n)
		for j := range t.cost[i] {
			if i != j {
				t.cost[i][j] = Unreachable
			}
		}
	}
	for _, l := range t.Links {
		i, ok := t.index[l.A]
		if !ok {
			return errors.Errorf("link references unknown node %s", l.A)
		}
		j, ok := t.index[l.B]
		if !ok {
			return errors.Errorf("link references unknown node %s", l.B)
		}
		if l.Cost < 0 {
			return errors.Errorf("link %s-%s: negative cost", l.A, l.B)
		}
		d := time.Duration(l.DelayUs) * time.Microsecond
		if l.DelayUs == 0 {
			d = time.Duration(l.Cost) * delayPerCostUnit
		}
		t.cost[i][j], t.cost[j][i] = l.Cost, l.Cost
		t.delay[i][j], t.delay[j][i] = d, d
	}

	// all-pairs shortest paths (Floyd-Warshall) so that any two overlay
	// nodes have a defined cost/delay even without a direct link
	for k := 0; k < n; k++ {
		for i := 0; i < n; i++ {
			if t.cost[i][k] == Unreachable {
				continue
			}
			for j := 0; j < n; j++ {
				if t.cost[k][j] == Unreachable {
					continue
				}
				via := t.cost[i][k] + t.cost[k][j]
				if t.cost[i][j] == Unreachable || via < t.cost[i][j] {
					t.cost[i][j] = via
					t.delay[i][j] = t.delay[i][k] + t.delay[k][j]
				}
			}
		}
	}
	return nil
}

// LinkCost returns the (shortest-path) cost between two nodes, -1 if
// unreachable or unknown.
func (t *Topology) LinkCost(a, b string) int64 {
	i, ok := t.index[a]
	if !ok {
		return Unreachable
	}
	j, ok := t.index[b]
	if !ok {
		return Unreachable
	}
	return t.cost[i][j]
}

// Delay returns the one-way propagation delay between two nodes.
func (t *Topology) Delay(a, b string) time.Duration {
	i, ok := t.index[a]
	if !ok {
		return 0
	}
	j, ok := t.index[b]
	if !ok {
		return 0
	}
	return t.delay[i][j]
}

func (t *Topology) ByRole(role Role) (names []string) {
	for _, nd := range t.Nodes {
		if nd.Role == role {
			names = append(names, nd.Name)
		}
	}
	sort.Strings(names)
	return
}

// Consumer returns the single consumer node.
func (t *Topology) Consumer() (string, error) {
	cons := t.ByRole(RoleConsumer)
	if len(cons) != 1 {
		return "", errors.Errorf("want exactly one consumer, have %d", len(cons))
	}
	return cons[0], nil
}
