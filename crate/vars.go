// Copyright 2025 The go-daq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package crate

import (
	"github.com/go-daq/pixie16/errs"
	"github.com/go-daq/pixie16/hwio"
	"github.com/go-daq/pixie16/param"
)

func (mod *Module) moduleVar(v param.ModuleVar) (*param.Variable, error) {
	if err := mod.checkProbed(); err != nil {
		return nil, err
	}
	if int(v) < 0 || int(v) >= len(mod.mvars) {
		return nil, errs.New(errs.ModuleInvalidVar,
			"module %d: invalid module variable %d", mod.Number, v,
		)
	}
	mv := &mod.mvars[v]
	if !mv.Desc.Enabled {
		return nil, errs.New(errs.ModuleParamDisabled,
			"module %d: variable %s disabled", mod.Number, mv.Desc.Name,
		)
	}
	return mv, nil
}

func (mod *Module) channelVar(v param.ChannelVar, ch int) (*param.Variable, error) {
	if err := mod.checkProbed(); err != nil {
		return nil, err
	}
	if err := mod.checkChannel(ch); err != nil {
		return nil, err
	}
	if int(v) < 0 || int(v) >= len(mod.cvars[ch]) {
		return nil, errs.New(errs.ChannelInvalidVar,
			"module %d: invalid channel variable %d", mod.Number, v,
		)
	}
	cv := &mod.cvars[ch][v]
	if !cv.Desc.Enabled {
		return nil, errs.New(errs.ChannelParamDisabled,
			"module %d: channel %d variable %s disabled", mod.Number, ch, cv.Desc.Name,
		)
	}
	return cv, nil
}

// ReadModuleVar returns word offset of module variable v. Input
// variables read from the host cache; output variables are fetched
// from DSP memory.
func (mod *Module) ReadModuleVar(v param.ModuleVar, offset int) (uint32, error) {
	mv, err := mod.moduleVar(v)
	if err != nil {
		return 0, err
	}
	if mv.Desc.Mode == param.WR {
		return 0, errs.New(errs.ModuleParamWriteonly,
			"module %d: variable %s is write-only", mod.Number, mv.Desc.Name,
		)
	}
	if offset < 0 || offset >= mv.Desc.Size {
		return 0, errs.New(errs.ModuleInvalidVar,
			"module %d: offset %d out of %s", mod.Number, offset, mv.Desc.Name,
		)
	}
	if mv.Desc.Mode == param.RO {
		err = mod.refreshVar(mv, 0)
		if err != nil {
			return 0, err
		}
	}
	return mv.Data[offset].Value, nil
}

// WriteModuleVar stores value into word offset of module variable v in
// the host cache and marks the cell dirty. The DSP is updated on the
// next SyncVars.
func (mod *Module) WriteModuleVar(v param.ModuleVar, offset int, value uint32) error {
	mv, err := mod.moduleVar(v)
	if err != nil {
		return err
	}
	if mv.Desc.Mode == param.RO {
		return errs.New(errs.ModuleParamReadonly,
			"module %d: variable %s is read-only", mod.Number, mv.Desc.Name,
		)
	}
	if offset < 0 || offset >= mv.Desc.Size {
		return errs.New(errs.ModuleInvalidVar,
			"module %d: offset %d out of %s", mod.Number, offset, mv.Desc.Name,
		)
	}
	if v == param.VarSynchWait && mod.crate != nil {
		err = mod.crate.Backplane.SyncWait(mod, value)
		if err != nil {
			return err
		}
	}
	mv.Data[offset].Value = value
	mv.Data[offset].Dirty = true
	return nil
}

// ReadChannelVar returns word offset of channel variable v of ch.
func (mod *Module) ReadChannelVar(v param.ChannelVar, ch, offset int) (uint32, error) {
	cv, err := mod.channelVar(v, ch)
	if err != nil {
		return 0, err
	}
	if cv.Desc.Mode == param.WR {
		return 0, errs.New(errs.ChannelParamWriteonly,
			"module %d: channel %d variable %s is write-only", mod.Number, ch, cv.Desc.Name,
		)
	}
	if offset < 0 || offset >= cv.Desc.Size {
		return 0, errs.New(errs.ChannelInvalidVar,
			"module %d: offset %d out of %s", mod.Number, offset, cv.Desc.Name,
		)
	}
	if cv.Desc.Mode == param.RO {
		err = mod.refreshVar(cv, ch)
		if err != nil {
			return 0, err
		}
	}
	return cv.Data[offset].Value, nil
}

// WriteChannelVar stores value into the host cache cell of channel
// variable v of ch and marks it dirty.
func (mod *Module) WriteChannelVar(v param.ChannelVar, ch, offset int, value uint32) error {
	cv, err := mod.channelVar(v, ch)
	if err != nil {
		return err
	}
	if cv.Desc.Mode == param.RO {
		return errs.New(errs.ChannelParamReadonly,
			"module %d: channel %d variable %s is read-only", mod.Number, ch, cv.Desc.Name,
		)
	}
	if offset < 0 || offset >= cv.Desc.Size {
		return errs.New(errs.ChannelInvalidVar,
			"module %d: offset %d out of %s", mod.Number, offset, cv.Desc.Name,
		)
	}
	cv.Data[offset].Value = value
	cv.Data[offset].Dirty = true
	return nil
}

func (mod *Module) varAddr(cv *param.Variable, ch int) uint32 {
	addr := cv.Desc.Address
	if mod.admap != nil && ch >= 0 && mod.admap.Channels.Start <= addr && addr < mod.admap.Channels.End {
		addr = mod.admap.ChannelAddr(cv.Desc, ch)
	}
	return addr
}

// refreshVar DMAs the variable's cells from DSP memory into the host
// cache. ch is ignored for module variables.
func (mod *Module) refreshVar(cv *param.Variable, ch int) error {
	guard := hwio.NewGuard(&mod.mu)
	defer guard.Release()

	buf := make([]uint32, cv.Desc.Size)
	err := mod.drv.DMARead(mod.varAddr(cv, ch), buf)
	if err != nil {
		return errs.Wrap(errs.DeviceDmaFailure, err,
			"module %d: could not read variable %s", mod.Number, cv.Desc.Name,
		)
	}
	for i, v := range buf {
		cv.Data[i].Value = v
		cv.Data[i].Dirty = false
	}
	return nil
}

func (mod *Module) flushVar(cv *param.Variable, ch int) error {
	dirty := false
	for i := range cv.Data {
		if cv.Data[i].Dirty {
			dirty = true
			break
		}
	}
	if !dirty {
		return nil
	}
	buf := make([]uint32, len(cv.Data))
	for i := range cv.Data {
		buf[i] = cv.Data[i].Value
	}
	err := mod.drv.DMAWrite(mod.varAddr(cv, ch), buf)
	if err != nil {
		return errs.Wrap(errs.DeviceDmaFailure, err,
			"module %d: could not write variable %s", mod.Number, cv.Desc.Name,
		)
	}
	for i := range cv.Data {
		cv.Data[i].Dirty = false
	}
	return nil
}

// SyncVars flushes all dirty host cells to DSP memory. Each variable
// with at least one dirty cell is written with a single block
// transfer.
func (mod *Module) SyncVars() error {
	if err := mod.checkProbed(); err != nil {
		return err
	}
	guard := hwio.NewGuard(&mod.mu)
	defer guard.Release()

	for i := range mod.mvars {
		mv := &mod.mvars[i]
		if !mv.Desc.Enabled || mv.Desc.Mode == param.RO {
			continue
		}
		err := mod.flushVar(mv, -1)
		if err != nil {
			return err
		}
	}
	for ch := range mod.cvars {
		for i := range mod.cvars[ch] {
			cv := &mod.cvars[ch][i]
			if !cv.Desc.Enabled || cv.Desc.Mode == param.RO {
				continue
			}
			err := mod.flushVar(cv, ch)
			if err != nil {
				return err
			}
		}
	}
	return nil
}

// SaveDSPPars serialises the parameter state as the opaque DSP-word
// blob matching the address map: the module input range followed by
// every channel block.
func (mod *Module) SaveDSPPars() ([]uint32, error) {
	if err := mod.checkProbed(); err != nil {
		return nil, err
	}
	am := mod.admap
	blob := make([]uint32, am.ModuleIn.Size()+am.Channels.Size())

	for i := range mod.mvars {
		mv := &mod.mvars[i]
		if !mv.Desc.Enabled || mv.Desc.Mode == param.RO {
			continue
		}
		base := mv.Desc.Address - am.ModuleIn.Start
		for j := range mv.Data {
			blob[base+uint32(j)] = mv.Data[j].Value
		}
	}
	coff := uint32(am.ModuleIn.Size())
	for ch := range mod.cvars {
		for i := range mod.cvars[ch] {
			cv := &mod.cvars[ch][i]
			if !cv.Desc.Enabled || cv.Desc.Mode == param.RO {
				continue
			}
			base := coff + mod.admap.ChannelAddr(cv.Desc, ch) - am.Channels.Start
			for j := range cv.Data {
				blob[base+uint32(j)] = cv.Data[j].Value
			}
		}
	}
	return blob, nil
}

// LoadDSPPars restores a blob produced by SaveDSPPars into the host
// cache, marking every restored cell dirty.
func (mod *Module) LoadDSPPars(blob []uint32) error {
	if err := mod.checkProbed(); err != nil {
		return err
	}
	am := mod.admap
	want := am.ModuleIn.Size() + am.Channels.Size()
	if len(blob) != want {
		return errs.New(errs.FileSizeInvalid,
			"module %d: DSP parameter blob size %d (want %d)",
			mod.Number, len(blob), want,
		)
	}
	for i := range mod.mvars {
		mv := &mod.mvars[i]
		if !mv.Desc.Enabled || mv.Desc.Mode == param.RO {
			continue
		}
		base := mv.Desc.Address - am.ModuleIn.Start
		for j := range mv.Data {
			mv.Data[j].Value = blob[base+uint32(j)]
			mv.Data[j].Dirty = true
		}
	}
	coff := uint32(am.ModuleIn.Size())
	for ch := range mod.cvars {
		for i := range mod.cvars[ch] {
			cv := &mod.cvars[ch][i]
			if !cv.Desc.Enabled || cv.Desc.Mode == param.RO {
				continue
			}
			base := coff + mod.admap.ChannelAddr(cv.Desc, ch) - am.Channels.Start
			for j := range cv.Data {
				cv.Data[j].Value = blob[base+uint32(j)]
				cv.Data[j].Dirty = true
			}
		}
	}
	return nil
}

// CopyParameters copies the channel variables selected by the filter
// mask from channel src to every channel set in dstMask.
func (mod *Module) CopyParameters(filter uint32, src int, dstMask uint32) error {
	if err := mod.checkProbed(); err != nil {
		return err
	}
	if err := mod.checkChannel(src); err != nil {
		return err
	}
	for ch := 0; ch < mod.NumChannels; ch++ {
		if ch == src || dstMask&(1<<uint(ch)) == 0 {
			continue
		}
		err := param.CopyParameters(filter, mod.cvars[src], mod.cvars[ch])
		if err != nil {
			return err
		}
	}
	return nil
}
