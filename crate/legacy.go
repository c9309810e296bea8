// Copyright 2025 The go-daq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package crate

import (
	"bufio"
	"io"
	"strconv"

	"github.com/go-daq/pixie16/errs"
)

// ReadLegacyConfig decodes the legacy fixed-order text configuration:
// whitespace-separated tokens in the order
//
//	num_modules slot[0..n-1] ComFPGA SPFPGA Trig DSPcode DSPpar DSPvar
//
// The trigger-FPGA field is accepted and carried even when the module
// revision has no separate trigger FPGA. The legacy and JSON formats
// stay separate; no merged form exists.
func ReadLegacyConfig(r io.Reader) ([]ModuleConfig, error) {
	sc := bufio.NewScanner(r)
	sc.Split(bufio.ScanWords)
	next := func() (string, error) {
		if !sc.Scan() {
			if err := sc.Err(); err != nil {
				return "", errs.Wrap(errs.FileReadFailure, err,
					"config: could not read legacy configuration",
				)
			}
			return "", errs.New(errs.ConfigInvalidParam,
				"config: truncated legacy configuration",
			)
		}
		return sc.Text(), nil
	}

	tok, err := next()
	if err != nil {
		return nil, err
	}
	n, err := strconv.Atoi(tok)
	if err != nil || n <= 0 || n > MaxNumModules {
		return nil, errs.New(errs.ConfigInvalidParam,
			"config: invalid legacy module count %q", tok,
		)
	}

	cfg := make([]ModuleConfig, n)
	for i := range cfg {
		tok, err := next()
		if err != nil {
			return nil, err
		}
		slot, err := strconv.Atoi(tok)
		if err != nil || slot <= 0 {
			return nil, errs.New(errs.ConfigInvalidParam,
				"config: invalid legacy slot %q", tok,
			)
		}
		cfg[i].Slot = slot
	}

	var (
		com, sp, trig, code, par, vars string
	)
	for _, dst := range []*string{&com, &sp, &trig, &code, &par, &vars} {
		*dst, err = next()
		if err != nil {
			return nil, err
		}
	}
	_ = trig // unused on revisions without a trigger FPGA

	for i := range cfg {
		cfg[i].FPGA.Sys = com
		cfg[i].FPGA.Fippi = sp
		cfg[i].DSP.Ldr = code
		cfg[i].DSP.Par = par
		cfg[i].DSP.Var = vars
	}
	return cfg, nil
}
