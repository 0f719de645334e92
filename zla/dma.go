// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zla

import (
	"fmt"
	"time"

	"github.com/go-lpc/zlogan/zla/internal/regs"
)

// DMAStatus is the status of the S2MM channel of the DMA engine.
type DMAStatus uint8

const (
	DMAIdle DMAStatus = iota
	DMARunning
	DMAHalted
)

func (st DMAStatus) String() string {
	switch st {
	case DMAIdle:
		return "idle"
	case DMARunning:
		return "running"
	case DMAHalted:
		return "halted"
	default:
		return fmt.Sprintf("DMAStatus(%d)", uint8(st))
	}
}

// dmaEngine drives a "write descriptor, poll status" bus-master engine.
type dmaEngine struct {
	errs *errs

	cr  reg32
	sr  reg32
	da  [2]reg32 // destination address, low and high halves
	len reg32
}

func newDMAEngine(e *errs, rf RegisterFile) *dmaEngine {
	return &dmaEngine{
		errs: e,
		cr:   newReg32(e, rf, regs.S2MM_DMACR),
		sr:   newReg32(e, rf, regs.S2MM_DMASR),
		da: [2]reg32{
			newReg32(e, rf, regs.S2MM_DA),
			newReg32(e, rf, regs.S2MM_DA_MSB),
		},
		len: newReg32(e, rf, regs.S2MM_LENGTH),
	}
}

// reset resets the engine and waits for the reset bit to clear.
// An engine that never clears it is a hardware fault: reset only returns
// early on a register access error.
func (dma *dmaEngine) reset(poll time.Duration) error {
	dma.cr.w(regs.DMACR_RESET)
	for dma.cr.r()&regs.DMACR_RESET != 0 && dma.errs.err == nil {
		sleep(poll)
	}
	if dma.errs.err != nil {
		return fmt.Errorf("zla: could not reset DMA engine: %w", dma.errs.err)
	}
	return nil
}

// start programs a transfer of n bytes to the physical address addr and
// lets the engine run. start does not wait for the transfer to complete.
func (dma *dmaEngine) start(addr uint64, n int) {
	// simple mode: RS first, then the address. Writing LENGTH starts the transfer.
	dma.cr.w(regs.DMACR_RS)
	dma.da[0].w(uint32(addr))
	dma.da[1].w(uint32(addr >> 32))
	dma.len.w(uint32(n))
}

func (dma *dmaEngine) status() DMAStatus {
	sr := dma.sr.r()
	switch {
	case sr&regs.DMASR_ERR_ALL != 0, sr&regs.DMASR_HALTED != 0:
		return DMAHalted
	case sr&regs.DMASR_IDLE != 0:
		return DMAIdle
	default:
		return DMARunning
	}
}

func sleep(d time.Duration) {
	if d <= 0 {
		return
	}
	time.Sleep(d)
}
