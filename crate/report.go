// Copyright 2025 The go-daq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package crate

import (
	"bufio"
	"fmt"
	"io"

	"github.com/go-daq/pixie16/firmware"
)

// Report writes a human-readable dump of the crate, module and channel
// state.
func (crt *Crate) Report(w io.Writer) error {
	buf := bufio.NewWriter(w)
	defer buf.Flush()

	fmt.Fprintf(buf, "crate: modules=%d open=%v\n", len(crt.Modules), crt.open)
	if crt.Backplane != nil {
		fmt.Fprintf(buf, "backplane: wired-or=%d run=%d director=%d sync-waits=%d\n",
			crt.Backplane.WiredOrTriggers.Leader(),
			crt.Backplane.Run.Leader(),
			crt.Backplane.Director.Leader(),
			crt.Backplane.SyncWaits(),
		)
	}
	fmt.Fprintf(buf, "buffer pool: available=%d of %d\n",
		crt.Pool.Available(), crt.Pool.Number(),
	)

	for _, mod := range crt.Modules {
		fmt.Fprintf(buf, "\nmodule %d:\n", mod.Number)
		fmt.Fprintf(buf, "  slot=%d pci=%d/%d rev=%d serial=%d adc=%d bits %d MSPS\n",
			mod.Slot, mod.PCIBus, mod.PCISlot,
			mod.Revision, mod.Serial, mod.ADCBits, mod.ADCMsps,
		)
		fmt.Fprintf(buf, "  online=%v booted=%v probed=%v run-active=%v test=%d\n",
			mod.online, mod.booted, mod.probed, mod.RunActive(), mod.test,
		)
		for _, device := range []string{
			firmware.Sys, firmware.Fippi, firmware.DSP, firmware.Var,
		} {
			fw, err := firmware.Find(mod.fw, device, mod.Slot)
			if err != nil {
				fmt.Fprintf(buf, "  fw %-5s: none\n", device)
				continue
			}
			fmt.Fprintf(buf, "  fw %-5s: %s (%s)\n", device, fw.Version, fw.Filename)
		}
		if mod.admap != nil {
			fmt.Fprintf(buf, "  address map:\n")
			mod.admap.Output(buf)
			fmt.Fprintf(buf, "  dirty cells: %d\n", mod.DirtyCount())
		}
	}
	return buf.Flush()
}
