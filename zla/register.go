// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zla

import (
	"fmt"
	"io"
)

// RegisterFile gives ordered access to a window of 32-bit registers.
//
// Every access must be ordered with respect to the bus-master devices
// sharing the window: a write must be visible to the device before any
// subsequent read or write of the same RegisterFile is performed.
type RegisterFile interface {
	ReadU32(off int64) (uint32, error)
	WriteU32(off int64, v uint32) error
}

// Buffer is a physically contiguous memory region a DMA engine writes into.
//
// Its content is only valid between the completion of a transfer and the
// start of the next one.
type Buffer interface {
	io.ReaderAt
	Addr() uint64 // physical address of the first byte
	Len() int
}

// errs records the first register access error.
type errs struct {
	err error
}

type reg32 struct {
	r func() uint32
	w func(v uint32)
}

func newReg32(e *errs, rf RegisterFile, offset int64) reg32 {
	return reg32{
		r: func() uint32 {
			if e.err != nil {
				return 0
			}
			v, err := rf.ReadU32(offset)
			if err != nil {
				e.err = fmt.Errorf("zla: could not read register 0x%x: %w", offset, err)
				return 0
			}
			return v
		},
		w: func(v uint32) {
			if e.err != nil {
				return
			}
			err := rf.WriteU32(offset, v)
			if err != nil {
				e.err = fmt.Errorf("zla: could not write register 0x%x: %w", offset, err)
			}
		},
	}
}

func (reg reg32) set(mask uint32) {
	reg.w(reg.r() | mask)
}

func (reg reg32) clear(mask uint32) {
	reg.w(reg.r() &^ mask)
}
