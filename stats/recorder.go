// Package stats persists the per-node, per-flow measurement logs (RTO, RTT,
// window, aggregation time, throughput) and keeps the in-process counters.
/*
 * Copyright (c) 2024-2025, CFN-Agg Authors. All rights reserved.
 */
package stats

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cfnagg/cfnagg/cmn/cos"
	"github.com/cfnagg/cfnagg/cmn/fname"
	"github.com/cfnagg/cfnagg/cmn/nlog"
)

// Recorder owns one node's append-only log files. Files are created empty at
// initialization synchronization; missing directories are created.
type Recorder struct {
	dir   string
	node  string
	files map[string]*logFile
}

type logFile struct {
	f  *os.File
	bw *bufio.Writer
}

func NewRecorder(dir, node string) *Recorder {
	return &Recorder{dir: dir, node: node, files: make(map[string]*logFile, 8)}
}

// a Recorder with no directory discards everything (unit tests, producers)
func (r *Recorder) enabled() bool { return r.dir != "" }

func (r *Recorder) open(name string) (*logFile, error) {
	if lf, ok := r.files[name]; ok {
		return lf, nil
	}
	if err := cos.CreateDir(r.dir); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(filepath.Join(r.dir, name), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, err
	}
	lf := &logFile{f: f, bw: bufio.NewWriter(f)}
	r.files[name] = lf
	return lf, nil
}

// OpenFlow creates the (empty) RTO/RTT/window files for one flow.
func (r *Recorder) OpenFlow(flow string) error {
	if !r.enabled() {
		return nil
	}
	for _, name := range []string{
		fname.RTO(r.node, flow),
		fname.RTT(r.node, flow),
		fname.Window(r.node, flow),
	} {
		if _, err := r.open(name); err != nil {
			return err
		}
	}
	return nil
}

func (r *Recorder) line(name, format string, a ...any) {
	if !r.enabled() {
		return
	}
	lf, err := r.open(name)
	if err != nil {
		nlog.Errorf("recorder %s: %v", name, err)
		return
	}
	fmt.Fprintf(lf.bw, format, a...)
}

func (r *Recorder) RTO(t time.Duration, flow string, rto time.Duration) {
	r.line(fname.RTO(r.node, flow), "%d %d\n", cos.Micros(t), cos.Micros(rto))
}

func (r *Recorder) RTT(t time.Duration, flow string, seq uint32, ecn bool, threshold, rtt time.Duration) {
	e := 0
	if ecn {
		e = 1
	}
	r.line(fname.RTT(r.node, flow),
		"%d %d %d %d %d\n", cos.Micros(t), seq, e, cos.Micros(threshold), cos.Micros(rtt))
}

func (r *Recorder) Window(t time.Duration, flow string, cwnd float64) {
	r.line(fname.Window(r.node, flow), "%d %g\n", cos.Micros(t), cwnd)
}

func (r *Recorder) AggTime(t, aggTime time.Duration) {
	r.line(fname.AggTime(r.node), "%d %d\n", cos.Micros(t), cos.Micros(aggTime))
}

// Throughput is written once per simulation, by the consumer.
func (r *Recorder) Throughput(interestBytes, dataBytes int64, fanIn int, start, end time.Duration) {
	r.line(fname.Throughput, "%d %d %d %d %d\n",
		interestBytes, dataBytes, fanIn, cos.Micros(start), cos.Micros(end))
}

// Flush writes out the buffers of every open log file and closes it.
func (r *Recorder) Flush() error {
	g := &errgroup.Group{}
	for _, lf := range r.files {
		lf := lf
		g.Go(func() error {
			if err := lf.bw.Flush(); err != nil {
				return err
			}
			return lf.f.Close()
		})
	}
	err := g.Wait()
	r.files = make(map[string]*logFile)
	return err
}
