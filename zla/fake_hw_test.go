// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zla

import (
	"fmt"

	"github.com/go-lpc/zlogan/internal/mmap"
	"github.com/go-lpc/zlogan/zla/internal/regs"
)

// op is an entry of the operation log shared by the fake hardware and the
// fake output sink.
type op struct {
	name string
	v    uint64
}

func (o op) String() string { return fmt.Sprintf("%s(0x%x)", o.name, o.v) }

// fakeHW is a behavioural model of a zlogan core and of its DMA engine.
type fakeHW struct {
	ops []op

	id     uint32
	ws     int
	ctrl   [regs.CTRL_SPAN / 4]uint32
	dma    [regs.DMA_CTRL_SPAN / 4]uint32
	shadow uint32
	buf    []byte

	polls int // number of running status polls per burst
	burst int // index of the current burst
	poll  int // number of status polls of the current burst
	run   bool
	halt  bool
	reset int // number of DMACR reads before the reset bit clears

	haltAt   int // burst index at which the engine halts, -1 for never
	xrunAt   int // burst index from which SR reports an overrun, -1 for never
	cancelAt struct {
		burst, poll int
		c           *Cancel
	}
	partial int    // words delivered by the cancelled burst
	latch   uint32 // LEN read back after a cancellation, if not zero

	readErr error
}

func newFakeHW(id Identity, bufsize int) *fakeHW {
	hw := &fakeHW{
		id:     uint32(id.Version) | uint32(id.WordSize)<<8 | uint32(id.NSignals)<<16,
		ws:     int(id.WordSize),
		buf:    make([]byte, bufsize),
		polls:  3,
		burst:  -1,
		haltAt: -1,
		xrunAt: -1,
	}
	hw.cancelAt.burst = -1
	return hw
}

func (hw *fakeHW) log(name string, v uint64) {
	hw.ops = append(hw.ops, op{name, v})
}

func (hw *fakeHW) views() (ctrl, dma RegisterFile) {
	return fakeCtrl{hw}, fakeDMA{hw}
}

func (hw *fakeHW) buffer() Buffer {
	return &fakeBuffer{Handle: mmap.HandleFrom(hw.buf), addr: 0x3f000000}
}

// pattern returns the content of the i-th byte of burst b.
func pattern(b, i int) byte { return byte(37*b + i) }

func (hw *fakeHW) fill(words int) {
	for i := 0; i < words*hw.ws; i++ {
		hw.buf[i] = pattern(hw.burst, i)
	}
}

func (hw *fakeHW) writes() []op {
	var o []op
	for _, v := range hw.ops {
		if len(v.name) > 2 && v.name[:2] == "w:" {
			o = append(o, v)
		}
	}
	return o
}

// index returns the position of the n-th (0-based) op with the given name,
// or -1.
func (hw *fakeHW) index(name string, n int) int {
	for i, o := range hw.ops {
		if o.name != name {
			continue
		}
		if n == 0 {
			return i
		}
		n--
	}
	return -1
}

func (hw *fakeHW) count(name string) int {
	n := 0
	for _, o := range hw.ops {
		if o.name == name {
			n++
		}
	}
	return n
}

type fakeCtrl struct{ hw *fakeHW }

func (f fakeCtrl) ReadU32(off int64) (uint32, error) {
	hw := f.hw
	if hw.readErr != nil {
		return 0, hw.readErr
	}
	switch off {
	case regs.ID:
		return hw.id, nil
	case regs.SR:
		var sr uint32
		if hw.xrunAt >= 0 && hw.burst >= hw.xrunAt {
			sr |= regs.SR_XRUN
		}
		return sr, nil
	case regs.SHADOW_LEN:
		return hw.shadow, nil
	}
	return hw.ctrl[off/4], nil
}

func (f fakeCtrl) WriteU32(off int64, v uint32) error {
	hw := f.hw
	switch off {
	case regs.CR:
		hw.log("w:cr", uint64(v))
		old := hw.ctrl[off/4]
		if old&regs.CR_EN != 0 && v&regs.CR_EN == 0 && hw.run {
			// disabling the core flushes its FIFO and ends the transfer.
			n := hw.partial
			if n > 0 {
				hw.fill(n)
			}
			if hw.latch != 0 {
				hw.ctrl[regs.LEN/4] = hw.latch
			}
			hw.shadow = hw.ctrl[regs.LEN/4] - uint32(n)
			hw.run = false
			hw.log("flush", uint64(hw.burst))
		}
	case regs.LEN:
		hw.log("w:len", uint64(v))
	default:
		hw.log(fmt.Sprintf("w:ctrl@0x%x", off), uint64(v))
	}
	hw.ctrl[off/4] = v
	return nil
}

type fakeDMA struct{ hw *fakeHW }

func (f fakeDMA) ReadU32(off int64) (uint32, error) {
	hw := f.hw
	if hw.readErr != nil {
		return 0, hw.readErr
	}
	switch off {
	case regs.S2MM_DMACR:
		if hw.reset > 0 {
			hw.reset--
			if hw.reset == 0 {
				hw.dma[off/4] &^= regs.DMACR_RESET
			}
		}
	case regs.S2MM_DMASR:
		return hw.status(), nil
	}
	return hw.dma[off/4], nil
}

func (hw *fakeHW) status() uint32 {
	switch {
	case hw.halt:
		return regs.DMASR_HALTED | regs.DMASR_SLV_ERR
	case !hw.run:
		return regs.DMASR_IDLE
	}

	hw.poll++
	if hw.burst == hw.haltAt {
		hw.run = false
		hw.halt = true
		hw.log("halt", uint64(hw.burst))
		return regs.DMASR_HALTED | regs.DMASR_SLV_ERR
	}

	if hw.burst == hw.cancelAt.burst {
		if hw.poll == hw.cancelAt.poll {
			hw.cancelAt.c.Set()
		}
		return 0
	}

	if hw.poll < hw.polls {
		return 0
	}

	n := int(hw.dma[regs.S2MM_LENGTH/4]) / hw.ws
	hw.fill(n)
	hw.run = false
	hw.log("done", uint64(hw.burst))
	return regs.DMASR_IDLE | regs.DMASR_IOC_IRQ
}

func (f fakeDMA) WriteU32(off int64, v uint32) error {
	hw := f.hw
	switch off {
	case regs.S2MM_DMACR:
		hw.log("w:dmacr", uint64(v))
		if v&regs.DMACR_RESET != 0 {
			hw.reset = 2
			hw.halt = false
		}
	case regs.S2MM_DA:
		hw.log("w:da", uint64(v))
	case regs.S2MM_DA_MSB:
		hw.log("w:da-msb", uint64(v))
	case regs.S2MM_LENGTH:
		hw.log("w:length", uint64(v))
		// a halted engine ignores LENGTH.
		if hw.dma[regs.S2MM_DMACR/4]&regs.DMACR_RS != 0 {
			hw.burst++
			hw.poll = 0
			hw.run = true
			hw.log("start", uint64(hw.burst))
		}
	default:
		hw.log(fmt.Sprintf("w:dma@0x%x", off), uint64(v))
	}
	hw.dma[off/4] = v
	return nil
}

type fakeBuffer struct {
	*mmap.Handle
	addr uint64
}

func (buf *fakeBuffer) Addr() uint64 { return buf.addr }

// fakeSink records the output writes in the operation log.
type fakeSink struct {
	hw  *fakeHW
	buf []byte
}

func (w *fakeSink) Write(p []byte) (int, error) {
	w.hw.log("out", uint64(len(p)))
	w.buf = append(w.buf, p...)
	return len(p), nil
}
