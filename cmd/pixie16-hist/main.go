// Copyright 2025 The go-daq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command pixie16-hist runs an MCA histogram acquisition and saves the
// spectra as CSV, optionally as YODA for downstream analysis.
package main // import "github.com/go-daq/pixie16/cmd/pixie16-hist"

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"go-hep.org/x/hep/hbook"
	"go-hep.org/x/hep/hbook/yodacnv"

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
		bins   = flag.Int("bins", crate.MaxHistogramLength, "histogram length")
		dur    = flag.Duration("t", 10*time.Second, "run duration")
		out    = flag.String("o", "histograms.csv", "output CSV file")
		yoda   = flag.String("yoda", "", "optional YODA output file")
	)

	log.SetPrefix("pixie16-hist: ")
	log.SetFlags(0)

	flag.Parse()

	err := xmain(*cfg, *legacy, *sim, *mod, *bins, *dur, *out, *yoda)
	if err != nil {
		log.Printf("%+v", err)
		os.Exit(xcrate.ExitCode(err))
	}
}

func xmain(cfg, legacy string, sim, modNum, bins int, dur time.Duration, out, yoda string) error {
	msg := log.New(os.Stdout, "pixie16-hist: ", 0)
	crt, err := xcrate.New(msg, xcrate.Options{Sim: sim, Config: cfg, Legacy: legacy})
	if err != nil {
		return err
	}
	defer crt.Close()

	mod, err := crt.Module(modNum)
	if err != nil {
		return err
	}

	err = mod.StartHistograms(crate.NewRun)
	if err != nil {
		return err
	}
	msg.Printf("MCA run for %v...", dur)
	time.Sleep(dur)
	err = mod.RunEnd()
	if err != nil {
		return err
	}

	hists := make([][]uint32, mod.NumChannels)
	for ch := range hists {
		hists[ch] = make([]uint32, bins)
		_, err = mod.ReadHistogram(ch, hists[ch])
		if err != nil {
			return err
		}
	}

	f, err := os.Create(out)
	if err != nil {
		return fmt.Errorf("could not create %q: %w", out, err)
	}
	defer f.Close()
	err = daq.WriteHistogramCSV(f, hists)
	if err != nil {
		return err
	}
	err = f.Close()
	if err != nil {
		return fmt.Errorf("could not close %q: %w", out, err)
	}

	if yoda == "" {
		return nil
	}
	return writeYODA(yoda, hists)
}

func writeYODA(fname string, hists [][]uint32) error {
	f, err := os.Create(fname)
	if err != nil {
		return fmt.Errorf("could not create %q: %w", fname, err)
	}
	defer f.Close()

	var hs []yodacnv.Marshaler
	for ch := range hists {
		h := hbook.NewH1D(len(hists[ch]), 0, float64(len(hists[ch])))
		h.Annotation()["name"] = fmt.Sprintf("/mca/chan%02d", ch)
		for bin, n := range hists[ch] {
			h.Fill(float64(bin)+0.5, float64(n))
		}
		hs = append(hs, h)
	}
	err = yodacnv.Write(f, hs...)
	if err != nil {
		return fmt.Errorf("could not write YODA file %q: %w", fname, err)
	}
	return f.Close()
}
