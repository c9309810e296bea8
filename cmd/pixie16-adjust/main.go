// Copyright 2025 The go-daq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command pixie16-adjust runs the offset-DAC adjustment and saves a
// baseline capture as CSV.
package main // import "github.com/go-daq/pixie16/cmd/pixie16-adjust"

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/go-daq/pixie16/daq"
	"github.com/go-daq/pixie16/internal/xcrate"
)

func main() {
	var (
		cfg    = flag.String("cfg", "", "JSON crate configuration")
		legacy = flag.String("lset", "", "legacy text crate configuration")
		sim    = flag.Int("sim", 0, "run with n simulated modules")
		mod    = flag.Int("mod", 0, "module number")
		n      = flag.Int("n", 256, "baseline samples")
		out    = flag.String("o", "baselines.csv", "output CSV file")
	)

	log.SetPrefix("pixie16-adjust: ")
	log.SetFlags(0)

	flag.Parse()

	err := xmain(*cfg, *legacy, *sim, *mod, *n, *out)
	if err != nil {
		log.Printf("%+v", err)
		os.Exit(xcrate.ExitCode(err))
	}
}

func xmain(cfg, legacy string, sim, modNum, n int, out string) error {
	msg := log.New(os.Stdout, "pixie16-adjust: ", 0)
	crt, err := xcrate.New(msg, xcrate.Options{Sim: sim, Config: cfg, Legacy: legacy})
	if err != nil {
		return err
	}
	defer crt.Close()

	mod, err := crt.Module(modNum)
	if err != nil {
		return err
	}

	err = mod.AdjustOffsets()
	if err != nil {
		return err
	}
	msg.Printf("module %d: offsets adjusted", mod.Number)

	err = mod.AcquireBaselines()
	if err != nil {
		return err
	}
	ts, bl, err := mod.Baselines(n)
	if err != nil {
		return err
	}

	f, err := os.Create(out)
	if err != nil {
		return fmt.Errorf("could not create %q: %w", out, err)
	}
	defer f.Close()
	err = daq.WriteBaselineCSV(f, ts, bl)
	if err != nil {
		return err
	}
	return f.Close()
}
