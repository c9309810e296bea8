// Copyright 2025 The go-daq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command pixie16-trace captures raw ADC traces and saves them as CSV.
package main // import "github.com/go-daq/pixie16/cmd/pixie16-trace"

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/go-daq/pixie16/crate"
	"github.com/go-daq/pixie16/daq"
	"github.com/go-daq/pixie16/internal/xcrate"
)

func main() {
	var (
		cfg    = flag.String("cfg", "", "JSON crate configuration")
		legacy = flag.String("lset", "", "legacy text crate configuration")
		sim    = flag.Int("sim", 0, "run with n simulated modules")
		mod    = flag.Int("mod", 0, "module number")
		n      = flag.Int("n", crate.MaxADCTraceLength, "samples per channel")
		out    = flag.String("o", "traces.csv", "output CSV file")
	)

	log.SetPrefix("pixie16-trace: ")
	log.SetFlags(0)

	flag.Parse()

	err := xmain(*cfg, *legacy, *sim, *mod, *n, *out)
	if err != nil {
		log.Printf("%+v", err)
		os.Exit(xcrate.ExitCode(err))
	}
}

func xmain(cfg, legacy string, sim, modNum, n int, out string) error {
	msg := log.New(os.Stdout, "pixie16-trace: ", 0)
	crt, err := xcrate.New(msg, xcrate.Options{Sim: sim, Config: cfg, Legacy: legacy})
	if err != nil {
		return err
	}
	defer crt.Close()

	mod, err := crt.Module(modNum)
	if err != nil {
		return err
	}

	err = mod.GetTraces()
	if err != nil {
		return err
	}
	traces := make([][]uint32, mod.NumChannels)
	for ch := range traces {
		traces[ch] = make([]uint32, n)
		_, err = mod.ReadADC(ch, traces[ch], true)
		if err != nil {
			return err
		}
	}

	f, err := os.Create(out)
	if err != nil {
		return fmt.Errorf("could not create %q: %w", out, err)
	}
	defer f.Close()
	err = daq.WriteTraceCSV(f, traces)
	if err != nil {
		return err
	}
	return f.Close()
}
