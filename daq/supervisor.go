// Copyright 2025 The go-daq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package daq

import (
	"log"
	"time"

	"golang.org/x/sync/errgroup"
)

const reportPeriod = 5 * time.Second

// Supervisor owns the readout workers of a run. It launches one OS
// thread per worker, reports live throughput while they run and
// collects their terminal errors: the first failure is returned after
// every worker has joined.
type Supervisor struct {
	msg     *log.Logger
	workers []*Readout
}

// NewSupervisor returns an empty supervisor logging to msg.
func NewSupervisor(msg *log.Logger) *Supervisor {
	if msg == nil {
		msg = log.New(log.Writer(), "daq: ", 0)
	}
	return &Supervisor{msg: msg}
}

// Add registers a worker.
func (sup *Supervisor) Add(rdo *Readout) {
	sup.workers = append(sup.workers, rdo)
}

// Stop requests a cooperative stop of every worker. A worker blocked
// in a hardware call exits on its next poll iteration.
func (sup *Supervisor) Stop() {
	for _, rdo := range sup.workers {
		rdo.Stop()
	}
}

// Run drives all workers for the given duration and reports aggregate
// throughput roughly every five seconds.
func (sup *Supervisor) Run(duration time.Duration) error {
	var grp errgroup.Group
	start := time.Now()
	for _, rdo := range sup.workers {
		rdo := rdo
		grp.Go(func() error {
			return rdo.Run(duration)
		})
	}

	done := make(chan struct{})
	go func() {
		tick := time.NewTicker(reportPeriod)
		defer tick.Stop()
		for {
			select {
			case <-done:
				return
			case <-tick.C:
				sup.report(start)
			}
		}
	}()

	err := grp.Wait()
	close(done)
	sup.report(start)
	if err != nil {
		return err
	}
	return nil
}

func (sup *Supervisor) report(start time.Time) {
	elapsed := time.Since(start).Seconds()
	if elapsed <= 0 {
		return
	}
	var total uint64
	for _, rdo := range sup.workers {
		n := rdo.Total()
		total += n
		sup.msg.Printf("module %d: %d bytes (%.1f kB/s)",
			rdo.Module().Number, 4*n, 4*float64(n)/elapsed/1e3,
		)
	}
	sup.msg.Printf("total: %d bytes (%.1f kB/s)",
		4*total, 4*float64(total)/elapsed/1e3,
	)
}
