// Copyright 2025 The go-daq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package hwio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"

	"golang.org/x/sys/unix"
)

var (
	errClosed = errors.New("hwio: closed")
)

// handle is a memory-mapped register window.
type handle struct {
	data []byte
}

func mmapRegion(f *os.File, off int64, size int) (*handle, error) {
	data, err := unix.Mmap(
		int(f.Fd()), off, size,
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_SHARED,
	)
	if err != nil {
		return nil, fmt.Errorf("hwio: could not mmap %q (off=0x%x, size=0x%x): %w",
			f.Name(), off, size, err,
		)
	}
	h := &handle{data: data}
	runtime.SetFinalizer(h, (*handle).Close)
	return h, nil
}

// Close unmaps the window.
func (h *handle) Close() error {
	if h == nil {
		return os.ErrInvalid
	}
	if h.data == nil {
		return nil
	}
	data := h.data
	h.data = nil
	runtime.SetFinalizer(h, nil)
	return unix.Munmap(data)
}

// Len returns the length of the underlying memory-mapped window.
func (h *handle) Len() int { return len(h.data) }

func (h *handle) u32(off uint32) (uint32, error) {
	if h.data == nil {
		return 0, errClosed
	}
	if int(off)+4 > len(h.data) {
		return 0, fmt.Errorf("hwio: read at 0x%x past window (len=0x%x): %w",
			off, len(h.data), io.ErrUnexpectedEOF,
		)
	}
	return binary.LittleEndian.Uint32(h.data[off : off+4]), nil
}

func (h *handle) setU32(off uint32, v uint32) error {
	if h.data == nil {
		return errClosed
	}
	if int(off)+4 > len(h.data) {
		return fmt.Errorf("hwio: write at 0x%x past window (len=0x%x): %w",
			off, len(h.data), io.ErrShortWrite,
		)
	}
	binary.LittleEndian.PutUint32(h.data[off:off+4], v)
	return nil
}
