// Copyright 2025 The go-daq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package param

import (
	"fmt"
	"io"
	"sort"

	"github.com/go-daq/pixie16/errs"
)

// Range is a half-open span of DSP word addresses.
type Range struct {
	Start uint32
	End   uint32 // one past the last word
}

// Size returns the number of words the range covers.
func (r Range) Size() int { return int(r.End - r.Start) }

func (r Range) overlaps(o Range) bool {
	if r.Size() == 0 || o.Size() == 0 {
		return false
	}
	return r.Start < o.End && o.Start < r.End
}

// AddressMap is derived once per boot from the loaded variable
// descriptors. The channel ranges describe the block of the first
// channel; channel ch lives at ChannelBase(ch).
type AddressMap struct {
	Full Range

	Module    Range
	ModuleIn  Range
	ModuleOut Range

	Channels    Range // all channel blocks
	ChannelsIn  Range // first channel, input variables
	ChannelsOut Range // first channel, output variables

	NumChannels    int
	ModuleVars     int // module words
	ChannelVars    int // words of one channel block
	VarsPerChannel int
}

type descAddr struct {
	addr uint32
	size int
	mode Mode
}

func enabled(descs []Desc) []descAddr {
	var out []descAddr
	for i := range descs {
		if !descs[i].Enabled {
			continue
		}
		out = append(out, descAddr{
			addr: descs[i].Address,
			size: descs[i].Size,
			mode: descs[i].Mode,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].addr < out[j].addr })
	return out
}

func span(das []descAddr, mode func(Mode) bool) Range {
	var r Range
	first := true
	for _, da := range das {
		if !mode(da.mode) {
			continue
		}
		if first {
			r.Start = da.addr
			r.End = da.addr + uint32(da.size)
			first = false
			continue
		}
		if da.addr < r.Start {
			r.Start = da.addr
		}
		if end := da.addr + uint32(da.size); end > r.End {
			r.End = end
		}
	}
	return r
}

func isIn(m Mode) bool  { return m == RW || m == WR }
func isOut(m Mode) bool { return m == RO }
func isAny(m Mode) bool { return true }

// NewAddressMap derives the address map of a module with numChannels
// channels from its loaded descriptor tables.
func NewAddressMap(numChannels int, mdescs, cdescs []Desc) (*AddressMap, error) {
	mdas := enabled(mdescs)
	cdas := enabled(cdescs)
	if len(mdas) == 0 || len(cdas) == 0 {
		return nil, errs.New(errs.ModuleInvalidVar,
			"param: address map needs loaded descriptors (module=%d, channel=%d)",
			len(mdas), len(cdas),
		)
	}

	am := &AddressMap{NumChannels: numChannels}
	am.Module = span(mdas, isAny)
	am.ModuleIn = span(mdas, isIn)
	am.ModuleOut = span(mdas, isOut)
	am.ChannelsIn = span(cdas, isIn)
	am.ChannelsOut = span(cdas, isOut)

	for _, da := range mdas {
		am.ModuleVars += da.size
	}

	// The channel block of each channel must be contiguous: every
	// enabled variable starts where the previous one ends.
	for i := 1; i < len(cdas); i++ {
		want := cdas[i-1].addr + uint32(cdas[i-1].size)
		if cdas[i].addr != want {
			return nil, errs.New(errs.ModuleInvalidVar,
				"param: channel variable gap at 0x%x (want 0x%x)",
				cdas[i].addr, want,
			)
		}
	}
	am.ChannelVars = int(cdas[len(cdas)-1].addr + uint32(cdas[len(cdas)-1].size) - cdas[0].addr)
	am.VarsPerChannel = am.ChannelVars

	am.Channels = Range{
		Start: cdas[0].addr,
		End:   cdas[0].addr + uint32(numChannels*am.VarsPerChannel),
	}

	for _, pair := range [][2]Range{
		{am.ModuleIn, am.ModuleOut},
		{am.ModuleIn, am.Channels},
		{am.ModuleOut, am.Channels},
	} {
		if pair[0].overlaps(pair[1]) {
			return nil, errs.New(errs.ModuleInvalidVar,
				"param: overlapping address ranges [0x%x,0x%x) and [0x%x,0x%x)",
				pair[0].Start, pair[0].End, pair[1].Start, pair[1].End,
			)
		}
	}

	am.Full = Range{Start: am.Module.Start, End: am.Module.End}
	if am.Channels.Start < am.Full.Start {
		am.Full.Start = am.Channels.Start
	}
	if am.Channels.End > am.Full.End {
		am.Full.End = am.Channels.End
	}

	return am, nil
}

// ChannelBase returns the base address of channel ch's variable block.
func (am *AddressMap) ChannelBase(ch int) uint32 {
	return am.Channels.Start + uint32(ch*am.VarsPerChannel)
}

// ChannelAddr returns the address of the channel variable described by
// desc for channel ch.
func (am *AddressMap) ChannelAddr(desc *Desc, ch int) uint32 {
	return desc.Address + uint32(ch*am.VarsPerChannel)
}

// Output writes a human-readable dump of the address map.
func (am *AddressMap) Output(w io.Writer) {
	p := func(name string, r Range) {
		fmt.Fprintf(w, "  %-12s [0x%06x, 0x%06x) size=%d\n", name, r.Start, r.End, r.Size())
	}
	p("full", am.Full)
	p("module-in", am.ModuleIn)
	p("module-out", am.ModuleOut)
	p("channels-in", am.ChannelsIn)
	p("channels-out", am.ChannelsOut)
	fmt.Fprintf(w, "  vars/channel %d, channels %d\n", am.VarsPerChannel, am.NumChannels)
}
