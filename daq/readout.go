// Copyright 2025 The go-daq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package daq runs list-mode data acquisition: one readout worker per
// participating module draining the external FIFO through the shared
// buffer pool, and a supervisor collecting their fates.
package daq // import "github.com/go-daq/pixie16/daq"

import (
	"encoding/binary"
	"io"
	"sync/atomic"
	"time"

	"github.com/go-daq/pixie16/buffer"
	"github.com/go-daq/pixie16/crate"
	"github.com/go-daq/pixie16/errs"
)

const (
	// PollPeriod is the pause between FIFO polls when the previous
	// poll came back empty.
	PollPeriod = 500 * time.Microsecond

	// dspStartBudget bounds the wait for the DSP to report an active
	// run after a start request.
	dspStartBudget = 1 * time.Second
)

// Readout drains the list-mode FIFO of one module into an output sink.
type Readout struct {
	mod  *crate.Module
	pool *buffer.Pool
	w    io.Writer

	// RunTask selects whether this worker owns the run: it then
	// starts and ends list-mode on its module. Drain-only workers
	// never issue run requests.
	RunTask bool

	queue buffer.Queue
	total uint64
	stop  int32
}

// NewReadout builds a worker for mod writing to w, drawing event
// buffers from pool.
func NewReadout(mod *crate.Module, pool *buffer.Pool, w io.Writer) *Readout {
	return &Readout{mod: mod, pool: pool, w: w, RunTask: true}
}

// Total returns the words written out so far.
func (rdo *Readout) Total() uint64 { return atomic.LoadUint64(&rdo.total) }

// Stop requests a cooperative exit: the next poll iteration returns.
func (rdo *Readout) Stop() { atomic.StoreInt32(&rdo.stop, 1) }

func (rdo *Readout) stopped() bool { return atomic.LoadInt32(&rdo.stop) != 0 }

// Module returns the module this worker drains.
func (rdo *Readout) Module() *crate.Module { return rdo.mod }

// Run drives the acquisition until the deadline elapses or Stop is
// called, then performs the final drain and the statistics
// consistency check.
func (rdo *Readout) Run(duration time.Duration) error {
	if rdo.RunTask {
		err := rdo.mod.StartListMode(crate.NewRun)
		if err != nil {
			return err
		}
		// wait for the DSP to pick the run up before polling;
		// checking first and sleeping after produces a spurious
		// early exit on a slow DSP start.
		deadline := time.Now().Add(dspStartBudget)
		for {
			active, err := rdo.mod.ProbeRunActive()
			if err != nil {
				return err
			}
			if active || time.Now().After(deadline) {
				break
			}
			time.Sleep(PollPeriod)
		}
	}

	var (
		words    []uint32
		deadline = time.Now().Add(duration)
		err      error
	)
	for !rdo.stopped() && time.Now().Before(deadline) {
		words = words[:0]
		n, rerr := rdo.mod.ReadListMode(&words)
		if rerr != nil {
			err = rerr
			break
		}
		if n == 0 {
			time.Sleep(PollPeriod)
			continue
		}
		werr := rdo.spool(words)
		if werr != nil {
			err = werr
			break
		}
	}

	if rdo.RunTask {
		rerr := rdo.mod.RunEnd()
		if err == nil {
			err = rerr
		}
	}
	if err != nil {
		return err
	}
	return rdo.finalDrain()
}

// spool moves words through the buffer pool into the queue, writing
// the queue out as buffers fill.
func (rdo *Readout) spool(words []uint32) error {
	for len(words) > 0 {
		h, err := rdo.pool.Request()
		if err != nil {
			if errs.CodeOf(err) == errs.BufferPoolEmpty {
				// back-pressure: drain the queue to hand buffers back
				if rdo.queue.Size() == 0 {
					rdo.mod.AccountOverflow()
					return errs.Wrap(errs.BufferPoolEmpty, err,
						"daq: module %d: buffer pool exhausted", rdo.mod.Number,
					)
				}
				ferr := rdo.flush(rdo.queue.Size())
				if ferr != nil {
					return ferr
				}
				continue
			}
			return err
		}
		n := h.Buf().Append(words)
		words = words[n:]
		rdo.queue.Push(h)
	}
	return rdo.flushFull()
}

// flushFull writes out whole buffers, leaving the partial tail queued.
func (rdo *Readout) flushFull() error {
	rdo.queue.Compact()
	for rdo.queue.Count() > 1 {
		h := rdo.queue.Pop()
		err := rdo.write(h.Buf().Data())
		h.Release()
		if err != nil {
			return err
		}
	}
	return nil
}

func (rdo *Readout) flush(n int) error {
	if n == 0 {
		return nil
	}
	buf := make([]uint32, n)
	err := rdo.queue.Copy(buf)
	if err != nil {
		return err
	}
	return rdo.write(buf)
}

func (rdo *Readout) write(words []uint32) error {
	err := binary.Write(rdo.w, binary.LittleEndian, words)
	if err != nil {
		return errs.Wrap(errs.FileCreateFailure, err,
			"daq: module %d: could not write %d words", rdo.mod.Number, len(words),
		)
	}
	atomic.AddUint64(&rdo.total, uint64(len(words)))
	rdo.mod.AccountFifoOut(len(words))
	return nil
}

// finalDrain reads any residual FIFO words, flushes the queue and
// verifies the run statistics balance.
func (rdo *Readout) finalDrain() error {
	var words []uint32
	_, err := rdo.mod.ReadListMode(&words)
	if err != nil {
		return err
	}
	if len(words) > 0 {
		err = rdo.spool(words)
		if err != nil {
			return err
		}
	}
	err = rdo.flush(rdo.queue.Size())
	if err != nil {
		return err
	}

	st, err := rdo.mod.Stats()
	if err != nil {
		return err
	}
	if st.HwOverflows != 0 || st.Overflows != 0 || st.FifoIn != st.FifoOut {
		return errs.New(errs.ModuleInvalidOperation,
			"daq: module %d: fifo accounting mismatch (hw-ovfl=%d ovfl=%d in=%d out=%d)",
			rdo.mod.Number, st.HwOverflows, st.Overflows, st.FifoIn, st.FifoOut,
		)
	}
	return nil
}
