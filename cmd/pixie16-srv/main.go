// Copyright 2025 The go-daq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command pixie16-srv starts a TDAQ server steering a Pixie-16 crate.
package main // import "github.com/go-daq/pixie16/cmd/pixie16-srv"

import (
	"context"
	"flag"
	"log"
	"os"

	"github.com/go-daq/tdaq"
	"github.com/go-daq/tdaq/flags"

	"github.com/go-daq/pixie16/daq"
	"github.com/go-daq/pixie16/internal/xcrate"
)

func main() {
	var (
		cfg  = flag.String("cfg", "", "JSON crate configuration")
		sim  = flag.Int("sim", 0, "run with n simulated modules")
		odir = flag.String("o", "/var/run/pixie16", "output directory")
	)
	cmd := flags.New()

	log.SetPrefix("pixie16-srv: ")
	log.SetFlags(0)

	msg := log.New(os.Stdout, "pixie16-srv: ", 0)
	crt, err := xcrate.New(msg, xcrate.Options{Sim: *sim, Config: *cfg})
	if err != nil {
		log.Fatalf("could not build crate: %+v", err)
	}

	dev := daq.NewServer(crt, *odir)

	srv := tdaq.New(cmd, os.Stdout)
	srv.CmdHandle("/config", dev.OnConfig)
	srv.CmdHandle("/init", dev.OnInit)
	srv.CmdHandle("/reset", dev.OnReset)
	srv.CmdHandle("/start", dev.OnStart)
	srv.CmdHandle("/stop", dev.OnStop)
	srv.CmdHandle("/quit", dev.OnQuit)

	srv.RunHandle(dev.Run)

	err = srv.Run(context.Background())
	if err != nil {
		log.Panicf("error: %+v", err)
	}
}
