// Copyright 2025 The go-daq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package buffer provides the fixed-size reusable event buffers the
// list-mode FIFO pipeline runs on: a pool of pre-reserved word buffers
// with scoped release, and a FIFO queue feeding a writer.
package buffer // import "github.com/go-daq/pixie16/buffer"

import (
	"sync"
	"sync/atomic"

	"github.com/go-daq/pixie16/errs"
)

// Buffer is one pre-reserved event buffer. Its logical length grows up
// to the capacity set at pool creation.
type Buffer struct {
	data []uint32
}

// Size returns the logical word count.
func (b *Buffer) Size() int { return len(b.data) }

// Capacity returns the reserved word count.
func (b *Buffer) Capacity() int { return cap(b.data) }

// Data exposes the logical content.
func (b *Buffer) Data() []uint32 { return b.data }

// Append grows the buffer with p, bounded by the capacity. It returns
// the number of words consumed.
func (b *Buffer) Append(p []uint32) int {
	room := cap(b.data) - len(b.data)
	if room <= 0 {
		return 0
	}
	if len(p) > room {
		p = p[:room]
	}
	b.data = append(b.data, p...)
	return len(p)
}

func (b *Buffer) clear() { b.data = b.data[:0] }

// Handle is a scoped reference to a pool buffer. Releasing it returns
// the buffer to its pool and clears its logical length.
type Handle struct {
	buf  *Buffer
	pool *Pool
}

// Buf returns the referenced buffer.
func (h *Handle) Buf() *Buffer { return h.buf }

// Release returns the buffer to the pool. Release is idempotent.
func (h *Handle) Release() {
	if h.buf == nil {
		return
	}
	buf := h.buf
	h.buf = nil
	h.pool.release(buf)
}

// Pool owns a fixed count of pre-reserved buffers.
type Pool struct {
	mu    sync.Mutex
	free  []*Buffer
	num   int
	size  int
	avail int32
}

// Create pre-allocates n buffers of capacity size words.
func (p *Pool) Create(n, size int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.num != 0 {
		return errs.New(errs.BufferPoolNotEmpty, "buffer: pool is already created")
	}
	p.num = n
	p.size = size
	p.free = make([]*Buffer, 0, n)
	for i := 0; i < n; i++ {
		p.free = append(p.free, &Buffer{data: make([]uint32, 0, size)})
	}
	atomic.StoreInt32(&p.avail, int32(n))
	return nil
}

// Destroy drops all buffers. It fails while any buffer is still out.
func (p *Pool) Destroy() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.num == 0 {
		return nil
	}
	if len(p.free) != p.num {
		return errs.New(errs.BufferPoolBusy,
			"buffer: pool destroy made while busy (%d of %d returned)",
			len(p.free), p.num,
		)
	}
	p.free = nil
	p.num = 0
	p.size = 0
	atomic.StoreInt32(&p.avail, 0)
	return nil
}

// Request pops a buffer from the free list.
func (p *Pool) Request() (*Handle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.free) == 0 {
		return nil, errs.New(errs.BufferPoolEmpty, "buffer: no buffers available")
	}
	buf := p.free[len(p.free)-1]
	p.free = p.free[:len(p.free)-1]
	atomic.AddInt32(&p.avail, -1)
	return &Handle{buf: buf, pool: p}, nil
}

func (p *Pool) release(buf *Buffer) {
	buf.clear()
	p.mu.Lock()
	p.free = append(p.free, buf)
	p.mu.Unlock()
	atomic.AddInt32(&p.avail, 1)
}

// Available returns the count of free buffers.
func (p *Pool) Available() int { return int(atomic.LoadInt32(&p.avail)) }

// Number returns the pool size set at creation.
func (p *Pool) Number() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.num
}
