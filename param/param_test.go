// Copyright 2025 The go-daq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package param

import (
	"fmt"
	"strings"
	"testing"

	"github.com/go-daq/pixie16/errs"
)

// testVarStream lays the default descriptors out at consecutive
// addresses, the way the DSP linker emits its VAR file.
func testVarStream() (string, int, int) {
	var (
		buf    strings.Builder
		mdescs = ModuleVarDescs()
		cdescs = ChannelVarDescs()
		addr   = uint32(0x4a000)
		mwords int
		cwords int
	)
	emit := func(descs []Desc, mode func(Mode) bool) int {
		n := 0
		for i := range descs {
			if !mode(descs[i].Mode) {
				continue
			}
			fmt.Fprintf(&buf, "0x%06x  %s\n", addr, descs[i].Name)
			addr += uint32(descs[i].Size)
			n += descs[i].Size
		}
		return n
	}
	in := func(m Mode) bool { return m != RO }
	out := func(m Mode) bool { return m == RO }
	mwords += emit(mdescs, in)
	mwords += emit(mdescs, out)
	cwords += emit(cdescs, in)
	cwords += emit(cdescs, out)
	return buf.String(), mwords, cwords
}

func TestLoad(t *testing.T) {
	stream, _, _ := testVarStream()
	mdescs := ModuleVarDescs()
	cdescs := ChannelVarDescs()
	err := Load(strings.NewReader(stream), mdescs, cdescs)
	if err != nil {
		t.Fatalf("could not load VAR stream: %+v", err)
	}

	if !mdescs[ModCSRA].Enabled {
		t.Fatalf("ModCSRA disabled after load")
	}
	if mdescs[ModNum].Address != 0x4a000 {
		t.Fatalf("invalid ModNum address: 0x%x", mdescs[ModNum].Address)
	}
	if !cdescs[FastThresh].Enabled {
		t.Fatalf("FastThresh disabled after load")
	}

	// a VAR file without a symbol disables it, with no error
	partial := strings.Replace(stream, "Xavg", "XavgNew", 1)
	mdescs = ModuleVarDescs()
	cdescs = ChannelVarDescs()
	err = Load(strings.NewReader(partial), mdescs, cdescs)
	if err != nil {
		t.Fatalf("could not load partial VAR stream: %+v", err)
	}
	if cdescs[Xavg].Enabled {
		t.Fatalf("Xavg enabled with no symbol in the VAR stream")
	}

	err = Load(strings.NewReader("0x4a000 ModNum extra\n"), mdescs, cdescs)
	if err == nil {
		t.Fatalf("expected an error on a malformed VAR line")
	}
	err = Load(strings.NewReader("0xzz ModNum\n"), mdescs, cdescs)
	if err == nil {
		t.Fatalf("expected an error on a bad VAR address")
	}
}

func TestAddressMap(t *testing.T) {
	const numChans = 16
	stream, _, cwords := testVarStream()
	mdescs := ModuleVarDescs()
	cdescs := ChannelVarDescs()
	err := Load(strings.NewReader(stream), mdescs, cdescs)
	if err != nil {
		t.Fatalf("could not load VAR stream: %+v", err)
	}

	am, err := NewAddressMap(numChans, mdescs, cdescs)
	if err != nil {
		t.Fatalf("could not derive address map: %+v", err)
	}

	if got, want := am.VarsPerChannel, cwords; got != want {
		t.Fatalf("invalid vars-per-channel: got=%d, want=%d", got, want)
	}
	for ch := 0; ch < numChans-1; ch++ {
		if am.ChannelBase(ch+1)-am.ChannelBase(ch) != uint32(am.VarsPerChannel) {
			t.Fatalf("channel %d base stride mismatch", ch)
		}
	}
	for _, pair := range [][2]Range{
		{am.ModuleIn, am.ModuleOut},
		{am.ModuleIn, am.Channels},
		{am.ModuleOut, am.Channels},
	} {
		if pair[0].overlaps(pair[1]) {
			t.Fatalf("overlapping ranges: %+v %+v", pair[0], pair[1])
		}
	}

	// a gap in the channel block must be rejected
	gappy := strings.Replace(stream,
		fmt.Sprintf("0x%06x  ChanCSRb", cdescs[ChanCSRb].Address),
		fmt.Sprintf("0x%06x  ChanCSRb", cdescs[ChanCSRb].Address+2),
		1,
	)
	mdescs = ModuleVarDescs()
	cdescs = ChannelVarDescs()
	err = Load(strings.NewReader(gappy), mdescs, cdescs)
	if err != nil {
		t.Fatalf("could not load gappy VAR stream: %+v", err)
	}
	_, err = NewAddressMap(numChans, mdescs, cdescs)
	if err == nil {
		t.Fatalf("expected an error on a gappy channel block")
	}
}

func TestLookup(t *testing.T) {
	par, err := LookupChannelParam("TRIGGER_THRESHOLD")
	if err != nil {
		t.Fatalf("could not look up TRIGGER_THRESHOLD: %+v", err)
	}
	if par != TriggerThreshold {
		t.Fatalf("invalid parameter: got=%d", par)
	}

	_, err = LookupChannelParam("NOT_A_PARAM")
	if err == nil {
		t.Fatalf("expected an error on an unknown channel parameter")
	}
	if errs.CodeOf(err) != errs.ChannelInvalidParam {
		t.Fatalf("invalid error code: got=%v", errs.CodeOf(err))
	}

	_, err = LookupModuleParam("NOT_A_PARAM")
	if errs.CodeOf(err) != errs.ModuleInvalidParam {
		t.Fatalf("invalid error code: got=%v", errs.CodeOf(err))
	}

	if !IsModuleParam("SYNCH_WAIT") || IsModuleParam("TRIGGER_THRESHOLD") {
		t.Fatalf("invalid module parameter classification")
	}
}

func TestMapModuleParam(t *testing.T) {
	for _, tc := range []struct {
		par  ModuleParam
		want ModuleVar
		off  int
	}{
		{ModuleCSRA, ModCSRA, 0},
		{SynchWait, VarSynchWait, 0},
		{InSynch, VarInSynch, 0},
		{TrigConfig0, VarTrigConfig, 0},
		{TrigConfig2, VarTrigConfig, 2},
		{HostRTPreset, HostRunTimePreset, 0},
	} {
		v, off, err := MapModuleParam(tc.par)
		if err != nil {
			t.Fatalf("could not map parameter %d: %+v", tc.par, err)
		}
		if v != tc.want || off != tc.off {
			t.Fatalf("invalid mapping of %d: got=(%d,%d), want=(%d,%d)",
				tc.par, v, off, tc.want, tc.off,
			)
		}
	}

	_, _, err := MapModuleParam(ModuleParam(999))
	if err == nil {
		t.Fatalf("expected an error mapping an invalid parameter")
	}
}

func TestCopyParameters(t *testing.T) {
	stream, _, _ := testVarStream()
	mdescs := ModuleVarDescs()
	cdescs := ChannelVarDescs()
	err := Load(strings.NewReader(stream), mdescs, cdescs)
	if err != nil {
		t.Fatalf("could not load VAR stream: %+v", err)
	}

	src := NewVariables(cdescs)
	dst := NewVariables(cdescs)

	src[FastThresh].Data[0].Value = 12345
	src[SlowLength].Data[0].Value = 20
	src[VarQDCLen3].Data[0].Value = 77
	src[ChanCSRa].Data[0].Value = 0xff000001
	dst[ChanCSRa].Data[0].Value = 0x24000000

	err = CopyParameters(TriggerMask|QDCMask|ChannelCSRAMask, src, dst)
	if err != nil {
		t.Fatalf("could not copy parameters: %+v", err)
	}

	if got, want := dst[FastThresh].Data[0].Value, uint32(12345); got != want {
		t.Fatalf("trigger group not copied: got=%d, want=%d", got, want)
	}
	if !dst[FastThresh].Data[0].Dirty {
		t.Fatalf("copied variable not dirty")
	}
	if got, want := dst[VarQDCLen3].Data[0].Value, uint32(77); got != want {
		t.Fatalf("qdc group not copied: got=%d, want=%d", got, want)
	}
	if dst[SlowLength].Data[0].Value != 0 {
		t.Fatalf("energy group copied without its mask bit")
	}
	// the reserved ChanCSRa bits of the destination survive the copy
	if got, want := dst[ChanCSRa].Data[0].Value, uint32(0x24000001); got != want {
		t.Fatalf("invalid ChanCSRa copy: got=0x%x, want=0x%x", got, want)
	}

	err = CopyParameters(AllMask, src, dst[:10])
	if err == nil {
		t.Fatalf("expected an error copying across mismatched sets")
	}
}
