// Package main is the cfnagg simulation driver: it loads the run
// configuration and the topology, assembles the overlay, and drives the
// discrete-event loop to completion.
/*
 * Copyright (c) 2024-2025, CFN-Agg Authors. All rights reserved.
 */
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cfnagg/cfnagg/cmn/cos"
	"github.com/cfnagg/cfnagg/cmn/nlog"
	"github.com/cfnagg/cfnagg/node"
	"github.com/cfnagg/cfnagg/topo"
)

var (
	build     string
	buildtime string
)

var (
	configPath string
	topoPath   string
	logDir     string
	vectorSize int
	toStderr   bool
)

func main() {
	root := &cobra.Command{
		Use:           "cfnagg",
		Short:         "in-network aggregation simulation over a named-data overlay",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	run := &cobra.Command{
		Use:   "run",
		Short: "run one simulation to completion",
		RunE:  runSim,
	}
	run.Flags().StringVar(&configPath, "config", "", "run configuration (yaml, required)")
	run.Flags().StringVar(&topoPath, "topology", "", "topology file (yaml, required)")
	run.Flags().StringVar(&logDir, "logdir", "logs", "directory for per-flow measurement logs")
	run.Flags().IntVar(&vectorSize, "vector-size", 0, "parameter vector width P (default 3000)")
	run.Flags().BoolVar(&toStderr, "alsologtostderr", false, "duplicate logs to stderr")
	run.MarkFlagRequired("config")
	run.MarkFlagRequired("topology")

	version := &cobra.Command{
		Use:   "version",
		Short: "print version and exit",
		Run: func(*cobra.Command, []string) {
			fmt.Printf("cfnagg %s (%s)\n", build, buildtime)
		},
	}

	root.AddCommand(run, version)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runSim(*cobra.Command, []string) error {
	cfg, err := topo.LoadConfig(configPath)
	if err != nil {
		return err
	}
	cfg.LogDir = logDir
	if vectorSize > 0 {
		cfg.VectorSize = vectorSize
	}
	topology, err := topo.Load(topoPath)
	if err != nil {
		return err
	}

	nlog.SetLogDir(logDir, "cfnagg")
	nlog.AlsoToStderr(toStderr)

	cl, err := node.NewCluster(cfg, topology, nil)
	if err != nil {
		return err
	}
	nlog.Infof("starting: %d iterations, fan-out %d, %d producer%s",
		cfg.Iteration, cfg.Constraint, len(cl.Producers), cos.Plural(len(cl.Producers)))

	runErr := cl.Run()
	if err := cl.Close(); err != nil {
		nlog.Errorf("flushing logs: %v", err)
	}
	if runErr != nil {
		cos.ExitLogf("simulation failed: %v", runErr)
	}
	nlog.Infof("simulation complete after %d iteration%s", cl.Consumer.Iterations(),
		cos.Plural(cl.Consumer.Iterations()))
	nlog.Flush(true)
	return nil
}
