// Copyright 2025 The go-daq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package hwio

import (
	"log"
)

// Trace wraps a driver and logs every register access. It is switched
// in when the crate is initialized with register tracing.
type Trace struct {
	Drv  Driver
	Msg  *log.Logger
	Name int // slot the traced module sits in
}

func (t *Trace) ReadWord(off uint32) (uint32, error) {
	v, err := t.Drv.ReadWord(off)
	t.Msg.Printf("slot %d: rd 0x%03x -> 0x%08x (err=%v)", t.Name, off, v, err)
	return v, err
}

func (t *Trace) WriteWord(off uint32, v uint32) error {
	err := t.Drv.WriteWord(off, v)
	t.Msg.Printf("slot %d: wr 0x%03x <- 0x%08x (err=%v)", t.Name, off, v, err)
	return err
}

func (t *Trace) DMARead(addr uint32, dst []uint32) error {
	err := t.Drv.DMARead(addr, dst)
	t.Msg.Printf("slot %d: dma-rd 0x%06x n=%d (err=%v)", t.Name, addr, len(dst), err)
	return err
}

func (t *Trace) DMAWrite(addr uint32, src []uint32) error {
	err := t.Drv.DMAWrite(addr, src)
	t.Msg.Printf("slot %d: dma-wr 0x%06x n=%d (err=%v)", t.Name, addr, len(src), err)
	return err
}

func (t *Trace) Close() error { return t.Drv.Close() }

var _ Driver = (*Trace)(nil)
