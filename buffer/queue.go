// Copyright 2025 The go-daq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package buffer

import (
	"sync"

	"github.com/go-daq/pixie16/errs"
)

// Queue is a FIFO of buffer handles feeding a writer. It tracks the
// total word count and the handle count.
type Queue struct {
	mu   sync.Mutex
	bufs []*Handle
	size int
}

// Push appends h to the queue. Empty buffers are released right away.
func (q *Queue) Push(h *Handle) {
	if h.Buf().Size() == 0 {
		h.Release()
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.bufs = append(q.bufs, h)
	q.size += h.Buf().Size()
}

// Pop removes and returns the front handle, or nil on an empty queue.
func (q *Queue) Pop() *Handle {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.bufs) == 0 {
		return nil
	}
	h := q.bufs[0]
	q.bufs = q.bufs[1:]
	q.size -= h.Buf().Size()
	return h
}

// Copy drains the next len(dst) words into dst, across handle
// boundaries. Exhausted buffers are released; a partially drained tail
// buffer keeps its leftover words moved to its front.
func (q *Queue) Copy(dst []uint32) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	count := len(dst)
	if count > q.size {
		return errs.New(errs.BufferPoolNotEnough,
			"buffer: not enough data in queue (want %d, have %d)", count, q.size,
		)
	}
	drop := 0
	for count > 0 {
		h := q.bufs[drop]
		buf := h.Buf()
		n := buf.Size()
		if count >= n {
			copy(dst, buf.Data())
			dst = dst[n:]
			count -= n
			q.size -= n
			h.Release()
			drop++
			continue
		}
		copy(dst, buf.Data()[:count])
		left := copy(buf.data, buf.data[count:])
		buf.data = buf.data[:left]
		q.size -= count
		count = 0
	}
	q.bufs = q.bufs[drop:]
	return nil
}

// Compact coalesces tail data into earlier partially-full buffers,
// releasing the buffers it empties. Compact is idempotent and never
// changes the queue word count.
func (q *Queue) Compact() {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.bufs[:0]
	i := 0
	for i < len(q.bufs) {
		h := q.bufs[i]
		to := h.Buf()
		j := i + 1
		for to.Capacity()-to.Size() > 0 && j < len(q.bufs) {
			from := q.bufs[j].Buf()
			n := to.Append(from.Data())
			if n == from.Size() {
				q.bufs[j].Release()
				j++
				continue
			}
			left := copy(from.data, from.data[n:])
			from.data = from.data[:left]
			break
		}
		out = append(out, h)
		i = j
	}
	q.bufs = out
}

// Flush drops all buffers, releasing their handles.
func (q *Queue) Flush() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, h := range q.bufs {
		h.Release()
	}
	q.bufs = nil
	q.size = 0
}

// Size returns the total word count held by the queue.
func (q *Queue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}

// Count returns the handle count.
func (q *Queue) Count() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.bufs)
}
