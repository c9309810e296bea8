// Copyright 2025 The go-daq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command pixie16-daq boots a Pixie-16 crate and runs list-mode data
// acquisition for a fixed duration, one raw output file per module.
package main // import "github.com/go-daq/pixie16/cmd/pixie16-daq"

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/go-daq/pixie16/daq"
	"github.com/go-daq/pixie16/internal/xcrate"
)

func main() {
	var (
		cfg    = flag.String("cfg", "", "JSON crate configuration")
		legacy = flag.String("lset", "", "legacy text crate configuration")
		sim    = flag.Int("sim", 0, "run with n simulated modules")
		rate   = flag.Float64("rate", 1000, "simulated FIFO rate (words/s)")
		dur    = flag.Duration("t", 10*time.Second, "run duration")
		odir   = flag.String("o", ".", "output directory")
		run    = flag.Int("run", 1, "run number")
	)

	log.SetPrefix("pixie16-daq: ")
	log.SetFlags(0)

	flag.Parse()

	err := xmain(*cfg, *legacy, *sim, *rate, *dur, *odir, *run)
	if err != nil {
		log.Printf("%+v", err)
		os.Exit(xcrate.ExitCode(err))
	}
}

func xmain(cfg, legacy string, sim int, rate float64, dur time.Duration, odir string, run int) error {
	msg := log.New(os.Stdout, "pixie16-daq: ", 0)
	crt, err := xcrate.New(msg, xcrate.Options{
		Sim: sim, Rate: rate, Config: cfg, Legacy: legacy,
	})
	if err != nil {
		return err
	}
	defer crt.Close()

	err = crt.Pool.Create(4*len(crt.Modules), 8192)
	if err != nil {
		return err
	}
	defer crt.Pool.Destroy()

	sup := daq.NewSupervisor(msg)
	var files []*os.File
	for _, mod := range crt.Modules {
		fname := filepath.Join(odir,
			fmt.Sprintf("run%04d_mod%02d.lmd", run, mod.Number),
		)
		f, err := os.Create(fname)
		if err != nil {
			return fmt.Errorf("could not create %q: %w", fname, err)
		}
		defer f.Close()
		files = append(files, f)
		sup.Add(daq.NewReadout(mod, crt.Pool, f))
	}

	err = sup.Run(dur)
	if err != nil {
		return err
	}

	for _, mod := range crt.Modules {
		st, err := mod.Stats()
		if err != nil {
			return err
		}
		fname := filepath.Join(odir,
			fmt.Sprintf("run%04d_mod%02d_stats.csv", run, mod.Number),
		)
		f, err := os.Create(fname)
		if err != nil {
			return fmt.Errorf("could not create %q: %w", fname, err)
		}
		err = daq.WriteStatsCSV(f, st, mod.NumChannels)
		if err != nil {
			return err
		}
		err = f.Close()
		if err != nil {
			return fmt.Errorf("could not close %q: %w", fname, err)
		}
	}

	for _, f := range files {
		err = f.Close()
		if err != nil {
			return fmt.Errorf("could not close %q: %w", f.Name(), err)
		}
	}
	return nil
}
