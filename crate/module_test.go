// Copyright 2025 The go-daq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package crate

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-daq/pixie16/errs"
	"github.com/go-daq/pixie16/hwio"
	"github.com/go-daq/pixie16/param"
)

func newTestModule(t *testing.T, drv hwio.Driver) *Module {
	t.Helper()
	mod := NewModule(0, 2, drv, nil)
	mod.SetFirmware(SimFirmware())
	err := mod.Open()
	if err != nil {
		t.Fatalf("could not open module: %+v", err)
	}
	return mod
}

func TestBootPatterns(t *testing.T) {
	mod := newTestModule(t, NewSimDevice(0))

	// pattern 0 is a no-op
	err := mod.Boot(0)
	if err != nil {
		t.Fatalf("boot(0) failed: %+v", err)
	}
	if mod.Online() {
		t.Fatalf("module online after a no-op boot")
	}

	err = mod.Boot(BootAll)
	if err != nil {
		t.Fatalf("boot(0x7f) failed: %+v", err)
	}
	if !mod.Online() {
		t.Fatalf("module offline after a full boot")
	}

	// fast boot skips the FPGA and DSP-code stages
	err = mod.Boot(BootFast)
	if err != nil {
		t.Fatalf("boot(0x70) failed: %+v", err)
	}
	if !mod.Online() {
		t.Fatalf("module offline after a fast boot")
	}
}

func TestBootFailure(t *testing.T) {
	dev := NewSimDevice(0)
	mod := newTestModule(t, dev)

	dev.Fail = os.ErrInvalid
	err := mod.Boot(BootAll)
	if err == nil {
		t.Fatalf("expected a boot failure")
	}
	if mod.Online() {
		t.Fatalf("module online after a failed boot")
	}
}

func TestParamRoundTrip(t *testing.T) {
	crt, err := NewSimCrate(2, 1000)
	if err != nil {
		t.Fatalf("could not build crate: %+v", err)
	}
	defer crt.Close()

	mod := crt.Modules[0]
	err = mod.WriteChannelParam(param.TriggerThreshold, 0, 1234.5)
	if err != nil {
		t.Fatalf("could not write TRIGGER_THRESHOLD: %+v", err)
	}
	v, err := mod.ReadChannelParam(param.TriggerThreshold, 0)
	if err != nil {
		t.Fatalf("could not read TRIGGER_THRESHOLD: %+v", err)
	}
	if math.Abs(v-1234.5) > 1e-6 {
		t.Fatalf("invalid TRIGGER_THRESHOLD: got=%v, want=1234.5", v)
	}

	err = mod.WriteChannelParam(param.Tau, 3, 42.5)
	if err != nil {
		t.Fatalf("could not write TAU: %+v", err)
	}
	v, err = mod.ReadChannelParam(param.Tau, 3)
	if err != nil {
		t.Fatalf("could not read TAU: %+v", err)
	}
	if float32(v) != 42.5 {
		t.Fatalf("invalid TAU: got=%v, want=42.5", v)
	}

	// export/import keeps the cache bitwise identical
	dir := t.TempDir()
	fname := filepath.Join(dir, "c.json")
	err = crt.ExportConfig(fname)
	if err != nil {
		t.Fatalf("could not export config: %+v", err)
	}

	err = mod.WriteChannelParam(param.TriggerThreshold, 0, 777)
	if err != nil {
		t.Fatalf("could not overwrite TRIGGER_THRESHOLD: %+v", err)
	}

	_, err = crt.ImportConfig(fname)
	if err != nil {
		t.Fatalf("could not import config: %+v", err)
	}
	v, err = mod.ReadChannelParam(param.TriggerThreshold, 0)
	if err != nil {
		t.Fatalf("could not read TRIGGER_THRESHOLD: %+v", err)
	}
	if math.Abs(v-1234.5) > 1e-6 {
		t.Fatalf("import did not restore TRIGGER_THRESHOLD: got=%v", v)
	}
}

func TestModuleParamPolicy(t *testing.T) {
	crt, err := NewSimCrate(1, 1000)
	if err != nil {
		t.Fatalf("could not build crate: %+v", err)
	}
	defer crt.Close()

	mod := crt.Modules[0]

	// output variables reject writes
	err = mod.WriteModuleVar(param.RealTimeA, 0, 1)
	if errs.CodeOf(err) != errs.ModuleParamReadonly {
		t.Fatalf("read-only write: got=%v", errs.CodeOf(err))
	}
	err = mod.WriteChannelVar(param.LiveTimeA, 0, 0, 1)
	if errs.CodeOf(err) != errs.ChannelParamReadonly {
		t.Fatalf("read-only channel write: got=%v", errs.CodeOf(err))
	}

	// write-only variables reject reads
	_, err = mod.ReadModuleVar(param.HostIO, 0)
	if errs.CodeOf(err) != errs.ModuleParamWriteonly {
		t.Fatalf("write-only read: got=%v", errs.CodeOf(err))
	}

	// force a disabled descriptor
	mod.mdescs[param.U00].Enabled = false
	_, err = mod.ReadModuleVar(param.U00, 0)
	if errs.CodeOf(err) != errs.ModuleParamDisabled {
		t.Fatalf("disabled read: got=%v", errs.CodeOf(err))
	}

	_, err = mod.ReadChannelVar(param.FastThresh, 99, 0)
	if errs.CodeOf(err) != errs.ChannelNumberInvalid {
		t.Fatalf("invalid channel: got=%v", errs.CodeOf(err))
	}
}

// countingDriver counts block writes to DSP memory.
type countingDriver struct {
	hwio.Driver
	dmaWrites int
}

func (drv *countingDriver) DMAWrite(addr uint32, src []uint32) error {
	drv.dmaWrites++
	return drv.Driver.DMAWrite(addr, src)
}

func TestDirtyFlagSync(t *testing.T) {
	drv := &countingDriver{Driver: NewSimDevice(0)}
	mod := newTestModule(t, drv)
	err := mod.Probe()
	if err != nil {
		t.Fatalf("could not probe module: %+v", err)
	}
	mod.online = true

	err = mod.SyncVars()
	if err != nil {
		t.Fatalf("could not sync vars: %+v", err)
	}
	if mod.DirtyCount() != 0 {
		t.Fatalf("dirty cells after sync: %d", mod.DirtyCount())
	}

	// writing the current value again still dirties the cell and
	// causes exactly one DSP write on the next sync
	cur, err := mod.ReadModuleVar(param.ModCSRA, 0)
	if err != nil {
		t.Fatalf("could not read ModCSRA: %+v", err)
	}
	err = mod.WriteModuleVar(param.ModCSRA, 0, cur)
	if err != nil {
		t.Fatalf("could not write ModCSRA: %+v", err)
	}
	if mod.DirtyCount() != 1 {
		t.Fatalf("invalid dirty count: %d", mod.DirtyCount())
	}

	drv.dmaWrites = 0
	err = mod.SyncVars()
	if err != nil {
		t.Fatalf("could not sync vars: %+v", err)
	}
	if got, want := drv.dmaWrites, 1; got != want {
		t.Fatalf("invalid DSP write count: got=%d, want=%d", got, want)
	}
}

func TestDSPParsRoundTrip(t *testing.T) {
	crt, err := NewSimCrate(2, 1000)
	if err != nil {
		t.Fatalf("could not build crate: %+v", err)
	}
	defer crt.Close()

	mod := crt.Modules[1]
	err = mod.WriteChannelVar(param.FastThresh, 7, 0, 0xdead)
	if err != nil {
		t.Fatalf("could not write FastThresh: %+v", err)
	}
	err = mod.WriteModuleVar(param.ModCSRB, 0, 0x41)
	if err != nil {
		t.Fatalf("could not write ModCSRB: %+v", err)
	}

	dir := t.TempDir()
	fname := filepath.Join(dir, "pars.set")
	err = crt.SaveDSPParsFile(fname)
	if err != nil {
		t.Fatalf("could not save DSP parameters: %+v", err)
	}

	before, err := mod.SaveDSPPars()
	if err != nil {
		t.Fatalf("could not snapshot DSP parameters: %+v", err)
	}

	// scribble over the cache, then restore
	err = mod.WriteChannelVar(param.FastThresh, 7, 0, 0)
	if err != nil {
		t.Fatalf("could not clear FastThresh: %+v", err)
	}
	err = mod.WriteModuleVar(param.ModCSRB, 0, 0)
	if err != nil {
		t.Fatalf("could not clear ModCSRB: %+v", err)
	}

	err = crt.LoadDSPParsFile(fname)
	if err != nil {
		t.Fatalf("could not load DSP parameters: %+v", err)
	}

	after, err := mod.SaveDSPPars()
	if err != nil {
		t.Fatalf("could not snapshot DSP parameters: %+v", err)
	}
	if len(before) != len(after) {
		t.Fatalf("blob size changed: %d != %d", len(before), len(after))
	}
	for i := range before {
		if before[i] != after[i] {
			t.Fatalf("blob word %d differs: 0x%x != 0x%x", i, before[i], after[i])
		}
	}

	v, err := mod.ReadChannelVar(param.FastThresh, 7, 0)
	if err != nil {
		t.Fatalf("could not read FastThresh: %+v", err)
	}
	if v != 0xdead {
		t.Fatalf("invalid restored FastThresh: 0x%x", v)
	}
}

func TestAdjustOffsets(t *testing.T) {
	crt, err := NewSimCrate(1, 1000)
	if err != nil {
		t.Fatalf("could not build crate: %+v", err)
	}
	defer crt.Close()

	mod := crt.Modules[0]
	err = mod.AdjustOffsets()
	if err != nil {
		t.Fatalf("could not adjust offsets: %+v", err)
	}

	// the simulated baseline is linear in the offset DAC: check the
	// reached baseline sits at the configured percentage
	err = mod.AcquireBaselines()
	if err != nil {
		t.Fatalf("could not acquire baselines: %+v", err)
	}
	_, bl, err := mod.Baselines(4)
	if err != nil {
		t.Fatalf("could not read baselines: %+v", err)
	}
	var (
		adcMax = math.Pow(2, SimADCBits)
		target = adcMax * 10 / 100 // BaselinePercent default
		tol    = adcMax / 100
	)
	for ch := range bl {
		if math.Abs(bl[ch][0]-target) > tol {
			t.Fatalf("channel %d baseline off target: got=%v, want=%v +- %v",
				ch, bl[ch][0], target, tol,
			)
		}
	}
}

func TestTracesAndHistograms(t *testing.T) {
	crt, err := NewSimCrate(1, 1000)
	if err != nil {
		t.Fatalf("could not build crate: %+v", err)
	}
	defer crt.Close()

	mod := crt.Modules[0]
	out := make([]uint32, 256)
	n, err := mod.ReadADC(5, out, false)
	if err != nil {
		t.Fatalf("could not read ADC trace: %+v", err)
	}
	if n != len(out) {
		t.Fatalf("invalid trace length: got=%d, want=%d", n, len(out))
	}
	if out[0] != 5<<8 {
		t.Fatalf("invalid trace word: got=0x%x, want=0x%x", out[0], 5<<8)
	}

	hist := make([]uint32, 1024)
	n, err = mod.ReadHistogram(3, hist)
	if err != nil {
		t.Fatalf("could not read histogram: %+v", err)
	}
	if n != len(hist) {
		t.Fatalf("invalid histogram length: got=%d, want=%d", n, len(hist))
	}

	_, err = mod.ReadHistogram(99, hist)
	if errs.CodeOf(err) != errs.ChannelNumberInvalid {
		t.Fatalf("invalid channel: got=%v", errs.CodeOf(err))
	}
}

func TestRunLifecycle(t *testing.T) {
	crt, err := NewSimCrate(1, 1000)
	if err != nil {
		t.Fatalf("could not build crate: %+v", err)
	}
	defer crt.Close()

	mod := crt.Modules[0]
	if mod.RunActive() {
		t.Fatalf("fresh module claims an active run")
	}

	err = mod.StartListMode(NewRun)
	if err != nil {
		t.Fatalf("could not start list-mode: %+v", err)
	}
	active, err := mod.ProbeRunActive()
	if err != nil {
		t.Fatalf("could not probe run state: %+v", err)
	}
	if !active || !mod.RunActive() {
		t.Fatalf("run not active after start")
	}

	err = mod.StartListMode(NewRun)
	if errs.CodeOf(err) != errs.ModuleInvalidOperation {
		t.Fatalf("double start: got=%v", errs.CodeOf(err))
	}

	err = mod.RunEnd()
	if err != nil {
		t.Fatalf("could not end run: %+v", err)
	}
	if mod.RunActive() {
		t.Fatalf("run active after end")
	}

	// an idle FIFO reads as zero words and does not advance totals
	var words []uint32
	n, err := mod.ReadListMode(&words)
	if err != nil {
		t.Fatalf("could not read empty FIFO: %+v", err)
	}
	if n != 0 || len(words) != 0 {
		t.Fatalf("empty FIFO returned %d words", n)
	}
	st, err := mod.Stats()
	if err != nil {
		t.Fatalf("could not read stats: %+v", err)
	}
	if st.FifoIn != 0 {
		t.Fatalf("idle FIFO advanced totals: in=%d", st.FifoIn)
	}
}

func TestLMFifoTest(t *testing.T) {
	crt, err := NewSimCrate(1, 100000)
	if err != nil {
		t.Fatalf("could not build crate: %+v", err)
	}
	defer crt.Close()

	mod := crt.Modules[0]
	err = mod.StartTest(TestLMFifo)
	if err != nil {
		t.Fatalf("could not start lm-fifo test: %+v", err)
	}
	if mod.Test() != TestLMFifo {
		t.Fatalf("invalid test mode: %d", mod.Test())
	}

	err = mod.StartListMode(NewRun)
	if errs.CodeOf(err) != errs.ModuleInvalidOperation {
		t.Fatalf("run start during test: got=%v", errs.CodeOf(err))
	}

	err = mod.EndTest()
	if err != nil {
		t.Fatalf("could not end test: %+v", err)
	}
	if mod.Test() != TestOff {
		t.Fatalf("test still active after end")
	}
}

func TestCopyParametersAcrossChannels(t *testing.T) {
	crt, err := NewSimCrate(1, 1000)
	if err != nil {
		t.Fatalf("could not build crate: %+v", err)
	}
	defer crt.Close()

	mod := crt.Modules[0]
	err = mod.WriteChannelVar(param.FastThresh, 0, 0, 4242)
	if err != nil {
		t.Fatalf("could not write FastThresh: %+v", err)
	}

	err = mod.CopyParameters(param.TriggerMask, 0, 1<<3|1<<9)
	if err != nil {
		t.Fatalf("could not copy parameters: %+v", err)
	}
	for _, ch := range []int{3, 9} {
		v, err := mod.ReadChannelVar(param.FastThresh, ch, 0)
		if err != nil {
			t.Fatalf("could not read FastThresh of channel %d: %+v", ch, err)
		}
		if v != 4242 {
			t.Fatalf("channel %d FastThresh not copied: got=%d", ch, v)
		}
	}
	v, err := mod.ReadChannelVar(param.FastThresh, 5, 0)
	if err != nil {
		t.Fatalf("could not read FastThresh of channel 5: %+v", err)
	}
	if v == 4242 {
		t.Fatalf("channel 5 FastThresh copied without its mask bit")
	}
}

func TestLegacyConfig(t *testing.T) {
	const text = `2
2 3
syspixie16.bin
fippixie16.bin
trigpixie16.bin
Pixie16DSP.ldr
Pixie16DSP.var.par
Pixie16DSP.var
`
	cfg, err := ReadLegacyConfig(strings.NewReader(text))
	if err != nil {
		t.Fatalf("could not read legacy config: %+v", err)
	}
	if len(cfg) != 2 {
		t.Fatalf("invalid module count: %d", len(cfg))
	}
	if cfg[0].Slot != 2 || cfg[1].Slot != 3 {
		t.Fatalf("invalid slots: %d %d", cfg[0].Slot, cfg[1].Slot)
	}
	if cfg[1].DSP.Var != "Pixie16DSP.var" {
		t.Fatalf("invalid DSP var path: %q", cfg[1].DSP.Var)
	}
	if cfg[0].FPGA.Sys != "syspixie16.bin" {
		t.Fatalf("invalid sys path: %q", cfg[0].FPGA.Sys)
	}

	_, err = ReadLegacyConfig(strings.NewReader("3\n2 3"))
	if errs.CodeOf(err) != errs.ConfigInvalidParam {
		t.Fatalf("truncated config: got=%v", errs.CodeOf(err))
	}
	_, err = ReadLegacyConfig(strings.NewReader("0\n"))
	if errs.CodeOf(err) != errs.ConfigInvalidParam {
		t.Fatalf("zero modules: got=%v", errs.CodeOf(err))
	}
}

func TestSlotAssign(t *testing.T) {
	crt, err := NewSimCrate(3, 1000)
	if err != nil {
		t.Fatalf("could not build crate: %+v", err)
	}
	defer crt.Close()

	// reverse the slot order
	err = crt.Assign([]int{4, 3, 2})
	if err != nil {
		t.Fatalf("could not assign slots: %+v", err)
	}
	mod, err := crt.ModuleInSlot(4)
	if err != nil {
		t.Fatalf("could not find slot 4: %+v", err)
	}
	if mod.Number != 0 {
		t.Fatalf("invalid module number for slot 4: %d", mod.Number)
	}

	err = crt.Assign([]int{2, 2, 3})
	if errs.CodeOf(err) != errs.SlotMapInvalid {
		t.Fatalf("duplicate slot: got=%v", errs.CodeOf(err))
	}
	err = crt.Assign([]int{2, 3, 9})
	if errs.CodeOf(err) != errs.ModuleInvalidSlot {
		t.Fatalf("missing slot: got=%v", errs.CodeOf(err))
	}
}
