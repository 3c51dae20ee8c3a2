// Package topo loads the simulated network and run configuration.
/*
 * Copyright (c) 2024-2025, CFN-Agg Authors. All rights reserved.
 */
package topo

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config is the key/value run configuration. The key set is closed: unknown
// keys fail the load, as do missing required keys.
type Config struct {
	Constraint      int     `yaml:"Constraint"`      // fan-out C (required)
	Window          int     `yaml:"Window"`          // initial cwnd (required)
	Alpha           float64 `yaml:"Alpha"`           // AIMD factor on timeout
	Beta            float64 `yaml:"Beta"`            // AIMD factor on local congestion
	Gamma           float64 `yaml:"Gamma"`           // AIMD factor on remote congestion
	EWMAFactor      float64 `yaml:"EWMAFactor"`      // RTT EWMA alpha
	ThresholdFactor float64 `yaml:"ThresholdFactor"` // rtt_threshold beta (consumer)
	UseCwa          bool    `yaml:"UseCwa"`
	InterestQueue   int     `yaml:"InterestQueue"` // consumer queue capacity
	QueueSize       int     `yaml:"QueueSize"`     // aggregator queue capacity; accepted but not enforced (the aggregator queue is unbounded)
	Iteration       int     `yaml:"Iteration"`     // N_iter (required)

	// not part of the closed key set above; filled by the driver
	VectorSize int    `yaml:"-"` // P, parameter width
	LogDir     string `yaml:"-"`
}

const (
	dfltEWMAFactor      = 0.3
	dfltThresholdFactor = 1.2
	dfltAlphaTimeout    = 0.5
	dfltBetaLocal       = 0.6
	dfltGammaRemote     = 0.7
	dfltInterestQueue   = 300
	dfltVectorSize      = 3000
)

func LoadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "config")
	}
	defer f.Close()
	var c Config
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil {
		return nil, errors.Wrapf(err, "config %s", path)
	}
	if err := c.Validate(); err != nil {
		return nil, errors.Wrapf(err, "config %s", path)
	}
	return &c, nil
}

func (c *Config) Validate() error {
	switch {
	case c.Constraint <= 0:
		return errors.New("Constraint is required and must be positive")
	case c.Window <= 0:
		return errors.New("Window is required and must be positive")
	case c.Iteration <= 0:
		return errors.New("Iteration is required and must be positive")
	}
	if c.Alpha == 0 {
		c.Alpha = dfltAlphaTimeout
	}
	if c.Beta == 0 {
		c.Beta = dfltBetaLocal
	}
	if c.Gamma == 0 {
		c.Gamma = dfltGammaRemote
	}
	if c.EWMAFactor == 0 {
		c.EWMAFactor = dfltEWMAFactor
	}
	if c.EWMAFactor < 0.1 || c.EWMAFactor > 0.3 {
		return errors.Errorf("EWMAFactor %g out of range [0.1, 0.3]", c.EWMAFactor)
	}
	if c.ThresholdFactor == 0 {
		c.ThresholdFactor = dfltThresholdFactor
	}
	if c.InterestQueue == 0 {
		c.InterestQueue = dfltInterestQueue
	}
	if c.VectorSize == 0 {
		c.VectorSize = dfltVectorSize
	}
	return nil
}
