// Copyright 2025 The go-daq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package param

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	"github.com/go-daq/pixie16/errs"
)

// Load populates the variable descriptor addresses from a DSP VAR
// stream: one symbol per line, a hex base address and a name.
//
// The VAR file is authoritative: variables it does not list are
// disabled rather than failed, so firmware revisions with a reduced
// symbol set stay usable. Unknown names are ignored.
func Load(r io.Reader, mdescs, cdescs []Desc) error {
	mvars := make(map[string]int, len(mdescs))
	for i := range mdescs {
		mdescs[i].Enabled = false
		mdescs[i].Address = 0
		mvars[mdescs[i].Name] = i
	}
	cvars := make(map[string]int, len(cdescs))
	for i := range cdescs {
		cdescs[i].Enabled = false
		cdescs[i].Address = 0
		cvars[cdescs[i].Name] = i
	}

	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		txt := strings.TrimSpace(sc.Text())
		if txt == "" || strings.HasPrefix(txt, "#") {
			continue
		}
		toks := strings.Fields(txt)
		if len(toks) != 2 {
			return errs.New(errs.ModuleInvalidVar,
				"param: invalid VAR line %d: %q", line, txt,
			)
		}
		// accept both "addr name" and "name addr" orders.
		addrTok, name := toks[0], toks[1]
		if !strings.HasPrefix(addrTok, "0x") && !strings.HasPrefix(addrTok, "0X") {
			addrTok, name = name, addrTok
		}
		addr, err := strconv.ParseUint(strings.TrimPrefix(strings.TrimPrefix(addrTok, "0x"), "0X"), 16, 32)
		if err != nil {
			return errs.Wrap(errs.ModuleInvalidVar, err,
				"param: invalid VAR address on line %d: %q", line, txt,
			)
		}
		if i, ok := mvars[name]; ok {
			mdescs[i].Enabled = true
			mdescs[i].Address = uint32(addr)
			continue
		}
		if i, ok := cvars[name]; ok {
			cdescs[i].Enabled = true
			cdescs[i].Address = uint32(addr)
			continue
		}
		// unknown symbol: firmware private scratch. skip.
	}
	err := sc.Err()
	if err != nil {
		return errs.Wrap(errs.FileReadFailure, err, "param: could not read VAR stream")
	}
	return nil
}

// Value is one DSP word cell together with its host-side dirty flag.
type Value struct {
	Value uint32
	Dirty bool // host change not yet flushed to the DSP
}

// Variable binds a descriptor with its value cells. A variable of size
// n occupies n consecutive cells.
type Variable struct {
	Desc *Desc
	Data []Value
}

// NewVariables allocates the value cells for a descriptor table.
func NewVariables(descs []Desc) []Variable {
	vars := make([]Variable, len(descs))
	for i := range descs {
		vars[i] = Variable{
			Desc: &descs[i],
			Data: make([]Value, descs[i].Size),
		}
	}
	return vars
}
