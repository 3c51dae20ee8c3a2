// Package topo loads the simulated network and run configuration.
/*
 * Copyright (c) 2024-2025, CFN-Agg Authors. All rights reserved.
 */
package topo_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cfnagg/cfnagg/topo"
)

func write(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "f.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadTopology(t *testing.T) {
	path := write(t, `
nodes:
  - {name: con0, role: consumer}
  - {name: agg0, role: aggregator}
  - {name: p0, role: producer}
  - {name: p1, role: producer}
links:
  - {a: con0, b: agg0, cost: 1}
  - {a: agg0, b: p0, cost: 2}
  - {a: agg0, b: p1, cost: 2, delay_us: 500}
`)
	tp, err := topo.Load(path)
	require.NoError(t, err)

	root, err := tp.Consumer()
	require.NoError(t, err)
	assert.Equal(t, "con0", root)
	assert.Equal(t, []string{"p0", "p1"}, tp.ByRole(topo.RoleProducer))

	assert.EqualValues(t, 1, tp.LinkCost("con0", "agg0"))
	assert.EqualValues(t, 3, tp.LinkCost("con0", "p0"), "shortest path via agg0")
	assert.EqualValues(t, 4, tp.LinkCost("p0", "p1"))
	assert.EqualValues(t, topo.Unreachable, tp.LinkCost("con0", "nope"))

	assert.Equal(t, 2*time.Millisecond, tp.Delay("agg0", "p0"), "delay defaults to cost units")
	assert.Equal(t, 500*time.Microsecond, tp.Delay("agg0", "p1"))
}

func TestLoadTopologyErrors(t *testing.T) {
	tests := []struct {
		name, yml string
	}{
		{"unknown role", "nodes: [{name: x, role: router}]"},
		{"duplicate node", "nodes: [{name: x, role: producer}, {name: x, role: producer}]"},
		{"unknown link endpoint", "nodes: [{name: x, role: producer}]\nlinks: [{a: x, b: y, cost: 1}]"},
		{"negative cost", "nodes: [{name: x, role: producer}, {name: y, role: producer}]\nlinks: [{a: x, b: y, cost: -2}]"},
		{"unknown key", "nodes: [{name: x, role: producer}]\nrouters: []"},
		{"empty", ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := topo.Load(write(t, tc.yml))
			assert.Error(t, err)
		})
	}
}

func TestLoadConfig(t *testing.T) {
	path := write(t, `
Constraint: 4
Window: 2
Iteration: 50
UseCwa: true
Beta: 0.55
`)
	cfg, err := topo.LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Constraint)
	assert.Equal(t, 2, cfg.Window)
	assert.Equal(t, 50, cfg.Iteration)
	assert.True(t, cfg.UseCwa)
	assert.Equal(t, 0.55, cfg.Beta)
	// defaults
	assert.Equal(t, 0.5, cfg.Alpha)
	assert.Equal(t, 0.7, cfg.Gamma)
	assert.Equal(t, 0.3, cfg.EWMAFactor)
	assert.Equal(t, 1.2, cfg.ThresholdFactor)
	assert.Equal(t, 300, cfg.InterestQueue)
	assert.Equal(t, 3000, cfg.VectorSize)
}

func TestLoadConfigErrors(t *testing.T) {
	tests := []struct {
		name, yml string
	}{
		{"unknown key", "Constraint: 2\nWindow: 1\nIteration: 1\nBogus: 7"},
		{"missing constraint", "Window: 1\nIteration: 1"},
		{"missing window", "Constraint: 2\nIteration: 1"},
		{"missing iteration", "Constraint: 2\nWindow: 1"},
		{"ewma out of range", "Constraint: 2\nWindow: 1\nIteration: 1\nEWMAFactor: 0.9"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := topo.LoadConfig(write(t, tc.yml))
			assert.Error(t, err)
		})
	}
}
