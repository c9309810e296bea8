// Copyright 2025 The go-daq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command pixie16-boot boots a Pixie-16 crate and reports its state.
package main // import "github.com/go-daq/pixie16/cmd/pixie16-boot"

import (
	"flag"
	"log"
	"os"

	"github.com/go-daq/pixie16/internal/xcrate"
)

func main() {
	var (
		cfg     = flag.String("cfg", "", "JSON crate configuration")
		legacy  = flag.String("lset", "", "legacy text crate configuration")
		sim     = flag.Int("sim", 0, "run with n simulated modules")
		pattern = flag.Int("pattern", 0x7f, "boot pattern bitmask")
		trace   = flag.Bool("trace", false, "log every register access")
	)

	log.SetPrefix("pixie16-boot: ")
	log.SetFlags(0)

	flag.Parse()

	err := xmain(*cfg, *legacy, *sim, byte(*pattern), *trace)
	if err != nil {
		log.Printf("%+v", err)
		os.Exit(xcrate.ExitCode(err))
	}
}

func xmain(cfg, legacy string, sim int, pattern byte, trace bool) error {
	msg := log.New(os.Stdout, "pixie16-boot: ", 0)
	crt, err := xcrate.New(msg, xcrate.Options{
		Sim: sim, Config: cfg, Legacy: legacy, Boot: pattern, Trace: trace,
	})
	if err != nil {
		return err
	}
	defer crt.Close()

	return crt.Report(os.Stdout)
}
