// Copyright 2025 The go-daq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package firmware manages the firmware images a Pixie-16 crate loads
// into the FPGAs and the DSP of its modules.
//
// A firmware is identified by the triple (version, module revision,
// device). The file name and the image bytes are site-specific metadata
// and do not take part in identity.
package firmware // import "github.com/go-daq/pixie16/firmware"

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/go-daq/pixie16/errs"
)

// Device tags of the images a module boots.
const (
	Sys   = "sys"   // system (Com) FPGA
	Fippi = "fippi" // signal-processing FPGA
	DSP   = "dsp"   // DSP code
	Var   = "var"   // DSP variable (VAR) file
)

// Firmware describes one firmware image.
type Firmware struct {
	Version     string
	ModRevision int
	Device      string
	Filename    string

	// Slots this firmware loads on. A generic firmware that can be
	// loaded in any slot has no slots listed.
	Slots []int

	raw   []byte
	words []uint32
}

// Module is the set of firmware references a module boots with.
type Module []*Firmware

// Crate maps a module revision to its firmware references. Firmware is
// managed independently of crates and modules.
type Crate map[int]Module

// Parse decodes a firmware descriptor string of the form
//
//	version<d>revision<d>device<d>filename
//
// with delimiter d. A space delimiter accepts any run of white space.
func Parse(desc string, delim byte) (*Firmware, error) {
	var toks []string
	switch delim {
	case ' ':
		toks = strings.Fields(desc)
	default:
		toks = strings.Split(desc, string(delim))
	}
	if len(toks) != 4 {
		return nil, errs.New(errs.ModuleInvalidFirmware,
			"firmware: invalid descriptor %q (got %d fields, want 4)", desc, len(toks),
		)
	}
	rev, err := strconv.Atoi(toks[1])
	if err != nil {
		return nil, errs.Wrap(errs.ModuleInvalidFirmware, err,
			"firmware: invalid module revision %q", toks[1],
		)
	}
	switch toks[2] {
	case Sys, Fippi, DSP, Var:
		// ok
	default:
		return nil, errs.New(errs.ModuleInvalidFirmware,
			"firmware: invalid device %q", toks[2],
		)
	}
	return &Firmware{
		Version:     toks[0],
		ModRevision: rev,
		Device:      toks[2],
		Filename:    toks[3],
	}, nil
}

// Equal reports whether fw and o describe the same firmware, comparing
// only the identity triple.
func (fw *Firmware) Equal(o *Firmware) bool {
	return fw.Version == o.Version &&
		fw.ModRevision == o.ModRevision &&
		fw.Device == o.Device
}

// Load reads the image file into memory. Load is lazy: an already
// loaded image is kept.
func (fw *Firmware) Load() error {
	if fw.raw != nil {
		return nil
	}
	f, err := os.Open(fw.Filename)
	if err != nil {
		return errs.Wrap(errs.FileOpenFailure, err,
			"firmware: could not open %q", fw.Filename,
		)
	}
	defer f.Close()

	raw, err := io.ReadAll(f)
	if err != nil {
		return errs.Wrap(errs.FileReadFailure, err,
			"firmware: could not read %q", fw.Filename,
		)
	}
	if len(raw) == 0 {
		return errs.New(errs.FileSizeInvalid,
			"firmware: empty image %q", fw.Filename,
		)
	}
	fw.raw = raw
	return nil
}

// Clear releases the image buffer. The identity triple remains.
func (fw *Firmware) Clear() {
	fw.raw = nil
	fw.words = nil
}

// SetImage installs raw as the image bytes, as if loaded from file.
func (fw *Firmware) SetImage(raw []byte) {
	fw.raw = raw
	fw.words = nil
}

// Bytes returns the raw image, loading it if needed. VAR files are
// text and only make sense as bytes.
func (fw *Firmware) Bytes() ([]byte, error) {
	err := fw.Load()
	if err != nil {
		return nil, err
	}
	return fw.raw, nil
}

// Words returns the image as little-endian 32b words, the unit the bus
// hardware loads, lazily loading the file.
func (fw *Firmware) Words() ([]uint32, error) {
	err := fw.Load()
	if err != nil {
		return nil, err
	}
	if fw.words != nil {
		return fw.words, nil
	}
	if len(fw.raw)%4 != 0 {
		return nil, errs.New(errs.FileSizeInvalid,
			"firmware: invalid image size %d for %q", len(fw.raw), fw.Filename,
		)
	}
	fw.words = make([]uint32, len(fw.raw)/4)
	for i := range fw.words {
		fw.words[i] = uint32(fw.raw[4*i]) |
			uint32(fw.raw[4*i+1])<<8 |
			uint32(fw.raw[4*i+2])<<16 |
			uint32(fw.raw[4*i+3])<<24
	}
	return fw.words, nil
}

func (fw *Firmware) String() string {
	return fmt.Sprintf("firmware: ver=%s, mod-rev=%d, dev=%s, file=%s",
		fw.Version, fw.ModRevision, fw.Device, fw.Filename,
	)
}

// Add registers fw with the crate firmware set. Adding a firmware whose
// triple is already present fails.
func Add(crate Crate, fw *Firmware) error {
	if Check(crate, fw) {
		return errs.New(errs.ModuleInvalidFirmware,
			"firmware: %s already registered", fw,
		)
	}
	crate[fw.ModRevision] = append(crate[fw.ModRevision], fw)
	return nil
}

// Check reports whether a firmware with the same triple as fw is
// already registered.
func Check(crate Crate, fw *Firmware) bool {
	for _, o := range crate[fw.ModRevision] {
		if fw.Equal(o) {
			return true
		}
	}
	return false
}

// Find selects the firmware for device in slot among the module
// firmware set. A firmware listing the slot explicitly is preferred
// over a default one with no slots.
func Find(mod Module, device string, slot int) (*Firmware, error) {
	var def *Firmware
	for _, fw := range mod {
		if fw.Device != device {
			continue
		}
		if len(fw.Slots) == 0 {
			if def == nil {
				def = fw
			}
			continue
		}
		for _, s := range fw.Slots {
			if s == slot {
				return fw, nil
			}
		}
	}
	if def != nil {
		return def, nil
	}
	return nil, errs.New(errs.FileNotFound,
		"firmware: no %q firmware for slot %d", device, slot,
	)
}

// Load loads all firmware images of the crate set.
func Load(crate Crate) error {
	for _, mod := range crate {
		for _, fw := range mod {
			err := fw.Load()
			if err != nil {
				return err
			}
		}
	}
	return nil
}

// Clear drops all loaded images of the crate set.
func Clear(crate Crate) {
	for _, mod := range crate {
		for _, fw := range mod {
			fw.Clear()
		}
	}
}
