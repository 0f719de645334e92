// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package mmap provides access to memory-mapped device windows.
package mmap // import "github.com/go-lpc/zlogan/internal/mmap"

import (
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

var (
	errClosed = errors.New("mmap: closed")
)

// Handle is a window of memory-mapped I/O space.
//
// Handle exposes two kinds of accessors:
//   - ReadU32/WriteU32 perform single 32-bit accesses with the ordering
//     guarantees of sync/atomic, so that register writes reach the bus
//     in program order, interleaved with the reads that follow them.
//   - ReadAt/WriteAt copy byte ranges and are meant for bulk data
//     (e.g. a DMA buffer) whose content is stable while accessed.
type Handle struct {
	mem  []byte // whole page-aligned mapping, nil for HandleFrom
	data []byte // window exposed to users
}

// HandleFrom wraps an already available byte slice.
func HandleFrom(data []byte) *Handle {
	h := &Handle{data: data}
	runtime.SetFinalizer(h, (*Handle).Close)
	return h
}

// Map maps size bytes of f, starting at the (not necessarily page-aligned)
// physical offset base.
func Map(f *os.File, base int64, size int, prot int) (*Handle, error) {
	if size <= 0 {
		return nil, fmt.Errorf("mmap: invalid window size %d", size)
	}
	var (
		page  = int64(os.Getpagesize())
		delta = base & (page - 1)
		span  = (delta + int64(size) + page - 1) &^ (page - 1)
	)
	mem, err := unix.Mmap(int(f.Fd()), base-delta, int(span), prot, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmap: could not mmap 0x%x (size=%d): %w", base, size, err)
	}
	if len(mem) != int(span) {
		_ = unix.Munmap(mem)
		return nil, fmt.Errorf("mmap: invalid mmap'd data: %d", len(mem))
	}

	h := &Handle{
		mem:  mem,
		data: mem[delta : delta+int64(size)],
	}
	runtime.SetFinalizer(h, (*Handle).Close)
	return h, nil
}

// Close closes the mmap handle.
func (h *Handle) Close() error {
	if h == nil {
		return os.ErrInvalid
	}

	if h.data == nil {
		return nil
	}
	mem := h.mem
	h.data = nil
	h.mem = nil
	runtime.SetFinalizer(h, nil)

	if mem == nil {
		return nil
	}
	return unix.Munmap(mem)
}

// Len returns the length of the underlying memory-mapped window.
func (h *Handle) Len() int {
	return len(h.data)
}

// At returns the byte at index i.
func (h *Handle) At(i int) byte {
	return h.data[i]
}

func (h *Handle) word(off int64) (*uint32, error) {
	if h == nil {
		return nil, os.ErrInvalid
	}
	if h.data == nil {
		return nil, errClosed
	}
	if off < 0 || off%4 != 0 || int64(len(h.data)) < off+4 {
		return nil, fmt.Errorf("mmap: invalid 32-bit offset 0x%x", off)
	}
	return (*uint32)(unsafe.Pointer(&h.data[off])), nil
}

// ReadU32 reads the 32-bit word at offset off.
// The read is ordered after every previous ReadU32/WriteU32.
func (h *Handle) ReadU32(off int64) (uint32, error) {
	p, err := h.word(off)
	if err != nil {
		return 0, err
	}
	return atomic.LoadUint32(p), nil
}

// WriteU32 writes v to the 32-bit word at offset off.
// The write is ordered after every previous ReadU32/WriteU32.
func (h *Handle) WriteU32(off int64, v uint32) error {
	p, err := h.word(off)
	if err != nil {
		return err
	}
	atomic.StoreUint32(p, v)
	return nil
}

// ReadAt implements the io.ReaderAt interface.
func (h *Handle) ReadAt(p []byte, off int64) (int, error) {
	if h == nil {
		return 0, os.ErrInvalid
	}

	if h.data == nil {
		return 0, errClosed
	}
	if off < 0 || int64(len(h.data)) < off {
		return 0, fmt.Errorf("mmap: invalid ReadAt offset %d", off)
	}
	n := copy(p, h.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// WriteAt implements the io.WriterAt interface.
func (h *Handle) WriteAt(p []byte, off int64) (int, error) {
	if h == nil {
		return 0, os.ErrInvalid
	}

	if h.data == nil {
		return 0, errClosed
	}
	if off < 0 || int64(len(h.data)) < off {
		return 0, fmt.Errorf("mmap: invalid WriteAt offset %d", off)
	}
	n := copy(h.data[off:], p)
	if n < len(p) {
		return n, io.ErrShortWrite
	}
	return n, nil
}

var (
	_ io.ReaderAt = (*Handle)(nil)
	_ io.WriterAt = (*Handle)(nil)
	_ io.Closer   = (*Handle)(nil)
)
