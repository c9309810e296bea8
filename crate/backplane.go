// Copyright 2025 The go-daq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package crate

import (
	"log"
	"sync"
	"sync/atomic"

	"github.com/go-daq/pixie16/errs"
)

// Released is the leader sentinel of an unheld backplane role.
const Released = -1

// Role is one cooperative backplane role: a single atomic leader slot.
// Contention produces a fail-return, never a block.
type Role struct {
	label  string
	leader int32
	msg    *log.Logger
}

func newRole(label string, msg *log.Logger) Role {
	return Role{label: label, leader: Released, msg: msg}
}

// Request atomically takes the role for mod. It returns true only when
// the role was released.
func (r *Role) Request(mod *Module) bool {
	ok := atomic.CompareAndSwapInt32(&r.leader, Released, int32(mod.Number))
	if ok && r.msg != nil {
		r.msg.Printf("backplane: %s: leader: module=%d", r.label, mod.Number)
	}
	return ok
}

// Release atomically hands the role back. It returns true only when
// mod was the leader.
func (r *Role) Release(mod *Module) bool {
	ok := atomic.CompareAndSwapInt32(&r.leader, int32(mod.Number), Released)
	if ok && r.msg != nil {
		r.msg.Printf("backplane: %s: released: module=%d", r.label, mod.Number)
	}
	return ok
}

// Leader returns the holding module number, or Released.
func (r *Role) Leader() int { return int(atomic.LoadInt32(&r.leader)) }

// NotLeader reports whether the role is held by someone other than mod.
func (r *Role) NotLeader(mod *Module) bool {
	l := r.Leader()
	return l != Released && l != mod.Number
}

// Backplane coordinates the crate-wide PXI backplane state: the three
// cooperative roles and the sync-wait consensus.
type Backplane struct {
	WiredOrTriggers Role
	Run             Role
	Director        Role

	mu      sync.Mutex
	waiters [MaxNumSlots]bool
	waits   int32
	slots   int // modules taking part in the consensus
}

// NewBackplane returns a backplane for a crate of n modules.
func NewBackplane(n int, msg *log.Logger) *Backplane {
	return &Backplane{
		WiredOrTriggers: newRole("wired-or-triggers", msg),
		Run:             newRole("run", msg),
		Director:        newRole("director", msg),
		slots:           n,
	}
}

// SyncWait records mod's SYNCH_WAIT intent. The waiter counter always
// matches the popcount of the waiter set; breaking its range is an
// internal bug.
func (bp *Backplane) SyncWait(mod *Module, synchWait uint32) error {
	active := synchWait == 1
	bp.mu.Lock()
	defer bp.mu.Unlock()
	if active != bp.waiters[mod.Number] {
		if active {
			atomic.AddInt32(&bp.waits, 1)
		} else {
			atomic.AddInt32(&bp.waits, -1)
		}
		bp.waiters[mod.Number] = active
		// The check is not against the crate module count: a module
		// does not know about the other modules, so check against the
		// waiter set size, the maximum slot count of a crate.
		sw := atomic.LoadInt32(&bp.waits)
		if sw < 0 || int(sw) > len(bp.waiters) {
			return errs.New(errs.InternalFailure,
				"module %d: invalid backplane sync_wait value: %d",
				mod.Number, sw,
			)
		}
	}
	return nil
}

// SyncWaits returns the count of modules in the sync-wait state.
func (bp *Backplane) SyncWaits() int { return int(atomic.LoadInt32(&bp.waits)) }

// SyncWaitValid checks the sync-wait consensus: either no module waits
// or all of them do.
func (bp *Backplane) SyncWaitValid() error {
	waits := int(atomic.LoadInt32(&bp.waits))
	if waits != 0 && waits != bp.slots {
		return errs.New(errs.ModuleInvalidOperation,
			"sync wait mode enabled and not all modules in the sync wait state (%d of %d)",
			waits, bp.slots,
		)
	}
	return nil
}
