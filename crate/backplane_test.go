// Copyright 2025 The go-daq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package crate

import (
	"strings"
	"sync"
	"testing"

	"github.com/go-daq/pixie16/errs"
	"github.com/go-daq/pixie16/param"
)

func TestRoleElection(t *testing.T) {
	bp := NewBackplane(2, nil)
	m0 := &Module{Number: 0}
	m1 := &Module{Number: 1}

	if bp.Run.Leader() != Released {
		t.Fatalf("fresh role not released: leader=%d", bp.Run.Leader())
	}

	// both modules contend; exactly one wins
	var (
		wg   sync.WaitGroup
		wins [2]bool
	)
	wg.Add(2)
	for i, mod := range []*Module{m0, m1} {
		i, mod := i, mod
		go func() {
			defer wg.Done()
			wins[i] = bp.Run.Request(mod)
		}()
	}
	wg.Wait()
	if wins[0] == wins[1] {
		t.Fatalf("invalid election outcome: %v", wins)
	}

	winner, loser := m0, m1
	if wins[1] {
		winner, loser = m1, m0
	}
	if bp.Run.Request(loser) {
		t.Fatalf("held role granted to a second module")
	}
	if !bp.Run.NotLeader(loser) {
		t.Fatalf("loser believes it leads")
	}
	if bp.Run.NotLeader(winner) {
		t.Fatalf("winner believes it does not lead")
	}
	if bp.Run.Release(loser) {
		t.Fatalf("role released by a non-leader")
	}
	if !bp.Run.Release(winner) {
		t.Fatalf("leader could not release its role")
	}

	// the loser may retry after the release
	if !bp.Run.Request(loser) {
		t.Fatalf("released role not grantable")
	}
	if !bp.Run.Release(loser) {
		t.Fatalf("could not release re-granted role")
	}
}

func TestSyncWait(t *testing.T) {
	bp := NewBackplane(2, nil)
	m0 := &Module{Number: 0}
	m1 := &Module{Number: 1}

	err := bp.SyncWaitValid()
	if err != nil {
		t.Fatalf("all-zero consensus rejected: %+v", err)
	}

	err = bp.SyncWait(m0, 1)
	if err != nil {
		t.Fatalf("could not set sync-wait: %+v", err)
	}
	if got, want := bp.SyncWaits(), 1; got != want {
		t.Fatalf("invalid waiter count: got=%d, want=%d", got, want)
	}

	err = bp.SyncWaitValid()
	if err == nil {
		t.Fatalf("mixed consensus accepted")
	}
	if errs.CodeOf(err) != errs.ModuleInvalidOperation {
		t.Fatalf("invalid error code: got=%v", errs.CodeOf(err))
	}
	if !strings.Contains(err.Error(), "sync wait") {
		t.Fatalf("error text misses 'sync wait': %q", err.Error())
	}

	err = bp.SyncWait(m1, 1)
	if err != nil {
		t.Fatalf("could not set sync-wait: %+v", err)
	}
	err = bp.SyncWaitValid()
	if err != nil {
		t.Fatalf("all-one consensus rejected: %+v", err)
	}

	// setting the same intent twice does not double-count
	err = bp.SyncWait(m1, 1)
	if err != nil {
		t.Fatalf("could not re-set sync-wait: %+v", err)
	}
	if got, want := bp.SyncWaits(), 2; got != want {
		t.Fatalf("invalid waiter count: got=%d, want=%d", got, want)
	}

	err = bp.SyncWait(m0, 0)
	if err != nil {
		t.Fatalf("could not clear sync-wait: %+v", err)
	}
	if got, want := bp.SyncWaits(), 1; got != want {
		t.Fatalf("invalid waiter count: got=%d, want=%d", got, want)
	}
}

func TestSyncWaitThroughParam(t *testing.T) {
	crt, err := NewSimCrate(2, 1000)
	if err != nil {
		t.Fatalf("could not build crate: %+v", err)
	}
	defer crt.Close()

	mod0 := crt.Modules[0]
	err = mod0.WriteModuleParam(param.SynchWait, 1)
	if err != nil {
		t.Fatalf("could not write SYNCH_WAIT: %+v", err)
	}

	err = crt.Backplane.SyncWaitValid()
	if errs.CodeOf(err) != errs.ModuleInvalidOperation {
		t.Fatalf("invalid error code: got=%v", errs.CodeOf(err))
	}
	if !strings.Contains(err.Error(), "sync wait") {
		t.Fatalf("error text misses 'sync wait': %q", err.Error())
	}

	err = mod0.WriteModuleParam(param.SynchWait, 2)
	if errs.CodeOf(err) != errs.InvalidValue {
		t.Fatalf("out-of-range SYNCH_WAIT: got=%v", errs.CodeOf(err))
	}

	err = crt.Modules[1].WriteModuleParam(param.SynchWait, 1)
	if err != nil {
		t.Fatalf("could not write SYNCH_WAIT: %+v", err)
	}
	err = crt.Backplane.SyncWaitValid()
	if err != nil {
		t.Fatalf("full consensus rejected: %+v", err)
	}
}
