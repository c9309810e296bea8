// Copyright 2025 The go-daq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package buffer

import (
	"testing"

	"github.com/go-daq/pixie16/errs"
)

func TestPoolExhaustion(t *testing.T) {
	var pool Pool
	err := pool.Create(3, 1024)
	if err != nil {
		t.Fatalf("could not create pool: %+v", err)
	}

	err = pool.Create(3, 1024)
	if errs.CodeOf(err) != errs.BufferPoolNotEmpty {
		t.Fatalf("double create: got=%v, want=%v", errs.CodeOf(err), errs.BufferPoolNotEmpty)
	}

	var hs []*Handle
	for i := 0; i < 3; i++ {
		h, err := pool.Request()
		if err != nil {
			t.Fatalf("request %d failed: %+v", i, err)
		}
		hs = append(hs, h)
	}
	_, err = pool.Request()
	if errs.CodeOf(err) != errs.BufferPoolEmpty {
		t.Fatalf("exhausted pool: got=%v, want=%v", errs.CodeOf(err), errs.BufferPoolEmpty)
	}

	err = pool.Destroy()
	if errs.CodeOf(err) != errs.BufferPoolBusy {
		t.Fatalf("busy destroy: got=%v, want=%v", errs.CodeOf(err), errs.BufferPoolBusy)
	}

	hs[0].Release()
	h, err := pool.Request()
	if err != nil {
		t.Fatalf("request after release failed: %+v", err)
	}
	h.Release()
	hs[1].Release()
	hs[2].Release()

	if got, want := pool.Available(), 3; got != want {
		t.Fatalf("invalid available count: got=%d, want=%d", got, want)
	}

	err = pool.Destroy()
	if err != nil {
		t.Fatalf("could not destroy pool: %+v", err)
	}
	// destroy/create restores the initial state
	err = pool.Create(3, 1024)
	if err != nil {
		t.Fatalf("could not re-create pool: %+v", err)
	}
	if got, want := pool.Available(), 3; got != want {
		t.Fatalf("invalid available count: got=%d, want=%d", got, want)
	}
}

func TestPoolAccounting(t *testing.T) {
	var pool Pool
	err := pool.Create(8, 64)
	if err != nil {
		t.Fatalf("could not create pool: %+v", err)
	}
	var (
		requests int
		releases int
		hs       []*Handle
	)
	for i := 0; i < 6; i++ {
		h, err := pool.Request()
		if err != nil {
			t.Fatalf("request failed: %+v", err)
		}
		requests++
		hs = append(hs, h)
	}
	for i := 0; i < 4; i++ {
		hs[i].Release()
		releases++
	}
	if got, want := requests-releases, 8-pool.Available(); got != want {
		t.Fatalf("pool accounting broken: in-flight=%d, unavailable=%d", got, want)
	}
	hs[4].Release()
	hs[5].Release()
}

func fill(t *testing.T, pool *Pool, words []uint32) *Handle {
	t.Helper()
	h, err := pool.Request()
	if err != nil {
		t.Fatalf("could not request buffer: %+v", err)
	}
	n := h.Buf().Append(words)
	if n != len(words) {
		t.Fatalf("could not fill buffer: %d of %d", n, len(words))
	}
	return h
}

func seq(start, n int) []uint32 {
	out := make([]uint32, n)
	for i := range out {
		out[i] = uint32(start + i)
	}
	return out
}

func TestQueueDrain(t *testing.T) {
	var pool Pool
	err := pool.Create(4, 128)
	if err != nil {
		t.Fatalf("could not create pool: %+v", err)
	}

	var q Queue
	q.Push(fill(t, &pool, seq(0, 100)))
	q.Push(fill(t, &pool, seq(100, 50)))
	q.Push(fill(t, &pool, seq(150, 30)))

	if got, want := q.Size(), 180; got != want {
		t.Fatalf("invalid queue size: got=%d, want=%d", got, want)
	}
	if got, want := q.Count(), 3; got != want {
		t.Fatalf("invalid queue count: got=%d, want=%d", got, want)
	}

	err = q.Copy(make([]uint32, 200))
	if errs.CodeOf(err) != errs.BufferPoolNotEnough {
		t.Fatalf("over-drain: got=%v, want=%v", errs.CodeOf(err), errs.BufferPoolNotEnough)
	}

	dst := make([]uint32, 130)
	err = q.Copy(dst)
	if err != nil {
		t.Fatalf("could not drain queue: %+v", err)
	}
	for i, v := range dst {
		if v != uint32(i) {
			t.Fatalf("invalid drained word %d: got=%d", i, v)
		}
	}

	// the first buffer is gone, the partially drained one keeps its
	// leftover moved to the front; compacting leaves one tail buffer
	// of 50 words
	if got, want := q.Size(), 50; got != want {
		t.Fatalf("invalid queue size after drain: got=%d, want=%d", got, want)
	}
	q.Compact()
	if got, want := q.Count(), 1; got != want {
		t.Fatalf("invalid queue count after compact: got=%d, want=%d", got, want)
	}
	if got, want := pool.Available(), 3; got != want {
		t.Fatalf("drained buffers not released: available=%d, want=%d", got, want)
	}

	dst = make([]uint32, 50)
	err = q.Copy(dst)
	if err != nil {
		t.Fatalf("could not drain tail: %+v", err)
	}
	for i, v := range dst {
		if v != uint32(130+i) {
			t.Fatalf("invalid tail word %d: got=%d, want=%d", i, v, 130+i)
		}
	}
	if got, want := pool.Available(), 4; got != want {
		t.Fatalf("tail buffer not released: available=%d, want=%d", got, want)
	}
}

func TestQueueCompact(t *testing.T) {
	var pool Pool
	err := pool.Create(4, 100)
	if err != nil {
		t.Fatalf("could not create pool: %+v", err)
	}

	var q Queue
	q.Push(fill(t, &pool, seq(0, 60)))
	q.Push(fill(t, &pool, seq(60, 30)))
	q.Push(fill(t, &pool, seq(90, 30)))

	size := q.Size()
	q.Compact()
	if got := q.Size(); got != size {
		t.Fatalf("compact changed the queue size: got=%d, want=%d", got, size)
	}
	if got, want := q.Count(), 2; got != want {
		t.Fatalf("invalid count after compact: got=%d, want=%d", got, want)
	}

	// compact is idempotent
	q.Compact()
	if got := q.Size(); got != size {
		t.Fatalf("re-compact changed the queue size: got=%d, want=%d", got, size)
	}
	if got, want := q.Count(), 2; got != want {
		t.Fatalf("invalid count after re-compact: got=%d, want=%d", got, want)
	}

	dst := make([]uint32, size)
	err = q.Copy(dst)
	if err != nil {
		t.Fatalf("could not drain compacted queue: %+v", err)
	}
	for i, v := range dst {
		if v != uint32(i) {
			t.Fatalf("compact reordered words: %d: got=%d", i, v)
		}
	}

	q.Flush()
	if q.Size() != 0 || q.Count() != 0 {
		t.Fatalf("flush left data behind: size=%d count=%d", q.Size(), q.Count())
	}
	if got, want := pool.Available(), 4; got != want {
		t.Fatalf("flush leaked buffers: available=%d, want=%d", got, want)
	}
}
