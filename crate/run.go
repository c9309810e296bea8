// Copyright 2025 The go-daq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package crate

import (
	"math"
	"time"

	"github.com/go-daq/pixie16/crate/internal/regs"
	"github.com/go-daq/pixie16/errs"
	"github.com/go-daq/pixie16/hwio"
	"github.com/go-daq/pixie16/param"
)

// RunMode selects how a data-acquisition run starts.
type RunMode int

const (
	NewRun RunMode = iota
	Resume
)

const (
	controlTaskTimeout = 5 * time.Second
	runEndTimeout      = 5 * time.Second
	runPoll            = 1 * time.Millisecond

	sysClockHz = 100e6 // FPGA system clock driving the run timers
)

// controlTask runs one DSP control task to completion.
func (mod *Module) controlTask(task uint32, timeout time.Duration) error {
	if err := mod.checkOnline(); err != nil {
		return err
	}
	err := mod.WriteModuleVar(param.RunTask, 0, regs.RUN_TASK_NOP)
	if err != nil {
		return err
	}
	err = mod.WriteModuleVar(param.ControlTask, 0, task)
	if err != nil {
		return err
	}
	err = mod.SyncVars()
	if err != nil {
		return err
	}

	guard := hwio.NewGuard(&mod.mu)
	defer guard.Release()

	csr, err := mod.drv.ReadWord(regs.CSR)
	if err != nil {
		return err
	}
	err = mod.drv.WriteWord(regs.CSR, csr|regs.CSR_RUNENA)
	if err != nil {
		return err
	}

	deadline := time.Now().Add(timeout)
	for {
		v, err := mod.drv.ReadWord(regs.CSR)
		if err != nil {
			return err
		}
		if v&regs.CSR_RUNACTIVE == 0 && v&regs.CSR_RUNENA == 0 {
			return nil
		}
		if time.Now().After(deadline) {
			return errs.New(errs.ModuleTaskTimeout,
				"module %d: control task 0x%x timeout", mod.Number, task,
			)
		}
		time.Sleep(runPoll)
	}
}

func (mod *Module) startRun(task uint32, mode RunMode) error {
	if err := mod.checkOnline(); err != nil {
		return err
	}
	if mod.RunActive() {
		return errs.New(errs.ModuleInvalidOperation,
			"module %d: run already active", mod.Number,
		)
	}
	if mod.test != TestOff {
		return errs.New(errs.ModuleInvalidOperation,
			"module %d: test in progress", mod.Number,
		)
	}
	resume := uint32(regs.RUN_MODE_NEW)
	if mode == Resume {
		resume = regs.RUN_MODE_RESUME
	}
	err := mod.WriteModuleVar(param.Resume, 0, resume)
	if err != nil {
		return err
	}
	err = mod.WriteModuleVar(param.ControlTask, 0, 0)
	if err != nil {
		return err
	}
	err = mod.WriteModuleVar(param.RunTask, 0, task)
	if err != nil {
		return err
	}
	err = mod.SyncVars()
	if err != nil {
		return err
	}

	guard := hwio.NewGuard(&mod.mu)
	defer guard.Release()

	csr, err := mod.drv.ReadWord(regs.CSR)
	if err != nil {
		return err
	}
	err = mod.drv.WriteWord(regs.CSR, csr|regs.CSR_RUNENA)
	if err != nil {
		return err
	}
	mod.setRunActive(true)
	return nil
}

// StartHistograms starts an MCA histogram run.
func (mod *Module) StartHistograms(mode RunMode) error {
	return mod.startRun(regs.RUN_TASK_MCA, mode)
}

// StartListMode starts a list-mode run.
func (mod *Module) StartListMode(mode RunMode) error {
	return mod.startRun(regs.RUN_TASK_LISTMODE, mode)
}

// RunEnd stops an active run and waits for the DSP to drain.
func (mod *Module) RunEnd() error {
	if err := mod.checkOnline(); err != nil {
		return err
	}
	guard := hwio.NewGuard(&mod.mu)
	defer guard.Release()

	csr, err := mod.drv.ReadWord(regs.CSR)
	if err != nil {
		return err
	}
	err = mod.drv.WriteWord(regs.CSR, csr&^uint32(regs.CSR_RUNENA))
	if err != nil {
		return err
	}
	deadline := time.Now().Add(runEndTimeout)
	for {
		v, err := mod.drv.ReadWord(regs.CSR)
		if err != nil {
			return err
		}
		if v&regs.CSR_RUNACTIVE == 0 {
			mod.setRunActive(false)
			return nil
		}
		if time.Now().After(deadline) {
			return errs.New(errs.ModuleTaskTimeout,
				"module %d: run did not stop", mod.Number,
			)
		}
		time.Sleep(runPoll)
	}
}

// ProbeRunActive reads the run state back from the CSR and refreshes
// the lock-free mirror RunActive reports.
func (mod *Module) ProbeRunActive() (bool, error) {
	if err := mod.checkOnline(); err != nil {
		return false, err
	}
	guard := hwio.NewGuard(&mod.mu)
	defer guard.Release()

	v, err := mod.drv.ReadWord(regs.CSR)
	if err != nil {
		return false, err
	}
	active := v&regs.CSR_RUNACTIVE != 0
	mod.setRunActive(active)
	return active, nil
}

// GetTraces captures raw ADC traces for all channels into the DSP I/O
// buffer.
func (mod *Module) GetTraces() error {
	return mod.controlTask(regs.CTRL_TASK_GET_TRACES, controlTaskTimeout)
}

// ReadADC copies the captured ADC trace of channel ch into out and
// returns the sample count. With resume set, the previous capture is
// read without re-running the control task.
func (mod *Module) ReadADC(ch int, out []uint32, resume bool) (int, error) {
	if err := mod.checkChannel(ch); err != nil {
		return 0, err
	}
	if len(out) > MaxADCTraceLength {
		out = out[:MaxADCTraceLength]
	}
	if !resume {
		err := mod.GetTraces()
		if err != nil {
			return 0, err
		}
	}
	guard := hwio.NewGuard(&mod.mu)
	defer guard.Release()

	addr := uint32(regs.IO_BUFFER + ch*MaxADCTraceLength)
	err := mod.drv.DMARead(addr, out)
	if err != nil {
		return 0, errs.Wrap(errs.DeviceDmaFailure, err,
			"module %d: could not read ADC trace of channel %d", mod.Number, ch,
		)
	}
	return len(out), nil
}

// AcquireBaselines captures baseline samples into the DSP I/O buffer.
func (mod *Module) AcquireBaselines() error {
	return mod.controlTask(regs.CTRL_TASK_GET_BASELINES, controlTaskTimeout)
}

// Baselines reads num baseline samples per channel from the last
// capture. The returned timestamps (microseconds) are those of channel 0,
// canonical for all channels of a module. Baseline values decode from
// the IEEE-float words the DSP writes.
func (mod *Module) Baselines(num int) (ts []float64, bl [][]float64, err error) {
	if err := mod.checkOnline(); err != nil {
		return nil, nil, err
	}
	if num <= 0 || num > MaxNumBaselines {
		num = MaxNumBaselines
	}
	rec := 1 + mod.NumChannels
	buf := make([]uint32, num*rec)

	guard := hwio.NewGuard(&mod.mu)
	err = mod.drv.DMARead(regs.IO_BUFFER, buf)
	guard.Release()
	if err != nil {
		return nil, nil, errs.Wrap(errs.DeviceDmaFailure, err,
			"module %d: could not read baselines", mod.Number,
		)
	}

	ts = make([]float64, num)
	bl = make([][]float64, mod.NumChannels)
	for ch := range bl {
		bl[ch] = make([]float64, num)
	}
	for i := 0; i < num; i++ {
		ts[i] = float64(buf[i*rec]) / sysClockHz * 1e6
		for ch := 0; ch < mod.NumChannels; ch++ {
			bl[ch][i] = float64(math.Float32frombits(buf[i*rec+1+ch]))
		}
	}
	return ts, bl, nil
}

// ReadHistogram copies the MCA spectrum of channel ch into out and
// returns the bin count.
func (mod *Module) ReadHistogram(ch int, out []uint32) (int, error) {
	if err := mod.checkOnline(); err != nil {
		return 0, err
	}
	if err := mod.checkChannel(ch); err != nil {
		return 0, err
	}
	if len(out) > MaxHistogramLength {
		out = out[:MaxHistogramLength]
	}
	guard := hwio.NewGuard(&mod.mu)
	defer guard.Release()

	addr := uint32(regs.HIST_MEMORY + ch*regs.HIST_CHAN_LEN)
	err := mod.drv.DMARead(addr, out)
	if err != nil {
		return 0, errs.Wrap(errs.DeviceDmaFailure, err,
			"module %d: could not read histogram of channel %d", mod.Number, ch,
		)
	}
	return len(out), nil
}

// ReadListModeLevel returns the words waiting in the external FIFO
// without draining them.
func (mod *Module) ReadListModeLevel() (int, error) {
	if err := mod.checkOnline(); err != nil {
		return 0, err
	}
	guard := hwio.NewGuard(&mod.mu)
	defer guard.Release()

	v, err := mod.drv.ReadWord(regs.EXT_FIFO_STATUS)
	if err != nil {
		return 0, errs.Wrap(errs.DeviceFifoFailure, err,
			"module %d: could not read FIFO level", mod.Number,
		)
	}
	return int(v), nil
}

// ReadListMode appends the available external FIFO words to out and
// returns the count. An empty FIFO reads as zero words and leaves the
// statistics untouched.
func (mod *Module) ReadListMode(out *[]uint32) (int, error) {
	if err := mod.checkOnline(); err != nil {
		return 0, err
	}
	guard := hwio.NewGuard(&mod.mu)
	defer guard.Release()

	lvl, err := mod.drv.ReadWord(regs.EXT_FIFO_STATUS)
	if err != nil {
		return 0, errs.Wrap(errs.DeviceFifoFailure, err,
			"module %d: could not read FIFO level", mod.Number,
		)
	}
	if lvl == 0 {
		return 0, nil
	}
	buf := make([]uint32, lvl)
	err = mod.drv.DMARead(regs.EXT_FIFO_MEM, buf)
	if err != nil {
		return 0, errs.Wrap(errs.DeviceDmaFailure, err,
			"module %d: could not drain FIFO (%d words)", mod.Number, lvl,
		)
	}
	*out = append(*out, buf...)

	mod.stats.mu.Lock()
	mod.stats.fifoIn += uint64(lvl)
	mod.stats.mu.Unlock()
	return int(lvl), nil
}

// AccountFifoOut advances the words-handed-out counter of the run
// statistics. The FIFO worker calls it after a successful write-out.
func (mod *Module) AccountFifoOut(n int) {
	mod.stats.mu.Lock()
	mod.stats.fifoOut += uint64(n)
	mod.stats.mu.Unlock()
}

// AccountOverflow counts a host-side drop (buffer pool exhausted).
func (mod *Module) AccountOverflow() {
	mod.stats.mu.Lock()
	mod.stats.overflows++
	mod.stats.mu.Unlock()
}

// Stats decodes the run statistics block from the DSP output
// variables together with the host-side FIFO accounting.
func (mod *Module) Stats() (RunStats, error) {
	var st RunStats
	if err := mod.checkOnline(); err != nil {
		return st, err
	}

	r := func(v param.ModuleVar) uint64 {
		w, err := mod.ReadModuleVar(v, 0)
		if err != nil {
			return 0
		}
		return uint64(w)
	}
	st.RealTime = float64(r(param.RealTimeA)<<32|r(param.RealTimeB)) / sysClockHz

	for ch := 0; ch < mod.NumChannels; ch++ {
		rc := func(v param.ChannelVar) uint64 {
			w, err := mod.ReadChannelVar(v, ch, 0)
			if err != nil {
				return 0
			}
			return uint64(w)
		}
		adcClock := float64(mod.ADCMsps) * 1e6
		if adcClock == 0 {
			adcClock = sysClockHz
		}
		live := float64(rc(param.LiveTimeA)<<32|rc(param.LiveTimeB)) / adcClock
		st.LiveTime[ch] = live
		fastPeaks := float64(rc(param.FastPeaksA)<<32 | rc(param.FastPeaksB))
		events := float64(rc(param.ChanEventsA)<<32 | rc(param.ChanEventsB))
		if live > 0 {
			st.InputCountRate[ch] = fastPeaks / live
		}
		if st.RealTime > 0 {
			st.OutputCountRate[ch] = events / st.RealTime
		}
	}

	guard := hwio.NewGuard(&mod.mu)
	ovfl, err := mod.drv.ReadWord(regs.EXT_FIFO_OVFL)
	guard.Release()
	if err != nil {
		return st, errs.Wrap(errs.DeviceFifoFailure, err,
			"module %d: could not read FIFO overflow count", mod.Number,
		)
	}
	st.HwOverflows = uint64(ovfl)

	mod.stats.mu.Lock()
	st.Overflows = mod.stats.overflows
	st.FifoIn = mod.stats.fifoIn
	st.FifoOut = mod.stats.fifoOut
	mod.stats.mu.Unlock()
	return st, nil
}

// AdjustOffsets binary-searches the per-channel offset DACs until the
// measured baseline sits at the configured baseline percentage of the
// ADC range. It converges within 16 iterations or fails.
func (mod *Module) AdjustOffsets() error {
	if err := mod.checkOnline(); err != nil {
		return err
	}
	adcMax := float64(uint32(1) << uint(mod.ADCBits))
	tol := adcMax / 100

	lo := make([]uint32, mod.NumChannels)
	hi := make([]uint32, mod.NumChannels)
	done := make([]bool, mod.NumChannels)
	target := make([]float64, mod.NumChannels)
	for ch := range hi {
		hi[ch] = 0xffff
		pct, err := mod.ReadChannelVar(param.VarBaselinePercent, ch, 0)
		if err != nil {
			return err
		}
		target[ch] = adcMax * float64(pct) / 100
	}

	const maxIter = 16
	for iter := 0; iter < maxIter; iter++ {
		for ch := 0; ch < mod.NumChannels; ch++ {
			if done[ch] {
				continue
			}
			dac := lo[ch] + (hi[ch]-lo[ch])/2
			err := mod.WriteChannelVar(param.OffsetDAC, ch, 0, dac)
			if err != nil {
				return err
			}
		}
		err := mod.SyncVars()
		if err != nil {
			return err
		}
		err = mod.controlTask(regs.CTRL_TASK_SET_DACS, controlTaskTimeout)
		if err != nil {
			return err
		}
		err = mod.AcquireBaselines()
		if err != nil {
			return err
		}
		_, bl, err := mod.Baselines(16)
		if err != nil {
			return err
		}

		allDone := true
		for ch := 0; ch < mod.NumChannels; ch++ {
			if done[ch] {
				continue
			}
			mean := 0.0
			for _, v := range bl[ch] {
				mean += v
			}
			mean /= float64(len(bl[ch]))
			dac, err := mod.ReadChannelVar(param.OffsetDAC, ch, 0)
			if err != nil {
				return err
			}
			switch {
			case math.Abs(mean-target[ch]) <= tol:
				done[ch] = true
				mod.offsets[ch] = dac
			case mean < target[ch]:
				lo[ch] = dac + 1
				allDone = false
			default:
				hi[ch] = dac - 1
				allDone = false
			}
			if lo[ch] > hi[ch] {
				// search exhausted, settle on the closest value
				done[ch] = true
				mod.offsets[ch] = dac
			}
		}
		if allDone {
			return nil
		}
	}
	return errs.New(errs.ModuleTaskTimeout,
		"module %d: offset adjustment did not converge", mod.Number,
	)
}
