// Copyright 2025 The go-daq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package daq

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-daq/tdaq"

	"github.com/go-daq/pixie16/crate"
)

// Server exposes a crate as a TDAQ-steered process: the run-control
// commands map onto the crate facade and the list-mode pipeline.
type Server struct {
	crt  *crate.Crate
	odir string

	boot byte
	run  int

	sup   *Supervisor
	files []*os.File
	quit  chan int
}

// NewServer builds a TDAQ server around an initialized crate, writing
// run files to odir.
func NewServer(crt *crate.Crate, odir string) *Server {
	return &Server{
		crt:  crt,
		odir: odir,
		boot: crate.BootAll,
		quit: make(chan int),
	}
}

// OnConfig binds firmware to the modules.
func (srv *Server) OnConfig(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /config command...")
	return srv.crt.SetFirmware()
}

// OnInit boots the crate and creates the buffer pool.
func (srv *Server) OnInit(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /init command...")
	err := srv.crt.Boot(srv.boot)
	if err != nil {
		ctx.Msg.Errorf("could not boot crate: %+v", err)
		return err
	}
	return srv.crt.Pool.Create(4*len(srv.crt.Modules), 8192)
}

// OnReset drops the buffer pool and re-probes the crate.
func (srv *Server) OnReset(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /reset command...")
	err := srv.crt.Pool.Destroy()
	if err != nil {
		return err
	}
	return srv.crt.Probe()
}

// OnStart opens the per-module output files and launches the readout
// workers.
func (srv *Server) OnStart(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	srv.run++
	ctx.Msg.Infof("starting run %d...", srv.run)

	srv.sup = NewSupervisor(nil)
	srv.files = srv.files[:0]
	for _, mod := range srv.crt.Modules {
		fname := filepath.Join(srv.odir,
			fmt.Sprintf("run%04d_mod%02d.lmd", srv.run, mod.Number),
		)
		f, err := os.Create(fname)
		if err != nil {
			return fmt.Errorf("daq: could not create %q: %w", fname, err)
		}
		srv.files = append(srv.files, f)
		srv.sup.Add(NewReadout(mod, srv.crt.Pool, f))
	}

	go func() {
		err := srv.sup.Run(24 * time.Hour)
		if err != nil {
			ctx.Msg.Errorf("run %d failed: %+v", srv.run, err)
		}
	}()
	return nil
}

// OnStop stops the workers and closes the run files.
func (srv *Server) OnStop(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Infof("stopping run %d...", srv.run)
	if srv.sup != nil {
		srv.sup.Stop()
	}
	for _, f := range srv.files {
		err := f.Close()
		if err != nil {
			ctx.Msg.Errorf("could not close %q: %+v", f.Name(), err)
		}
	}
	srv.files = srv.files[:0]
	return nil
}

// OnQuit shuts the crate down.
func (srv *Server) OnQuit(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /quit command...")
	close(srv.quit)
	return srv.crt.Close()
}

// Run is the TDAQ run handler; the readout happens on the worker
// threads, so it only waits for the quit signal.
func (srv *Server) Run(ctx tdaq.Context) error {
	select {
	case <-ctx.Ctx.Done():
		if srv.sup != nil {
			srv.sup.Stop()
		}
		return nil
	case <-srv.quit:
		return nil
	}
}
