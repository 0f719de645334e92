// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package regs holds the register map of the zlogan core and of the
// stream-to-memory (S2MM) channel of its DMA engine.
package regs // import "github.com/go-lpc/zlogan/zla/internal/regs"

// zlogan core registers (byte offsets).
const (
	CR                 = 0x00 // control
	SR                 = 0x04 // status
	LEN                = 0x08 // burst length, in words, minus one
	INP                = 0x0c // current input word
	ID                 = 0x10 // version, word size, number of signals
	FIFO_DATA_COUNT    = 0x14
	FIFO_RD_DATA_COUNT = 0x18
	FIFO_WR_DATA_COUNT = 0x1c
	SHADOW_LEN         = 0x20 // last latched LEN

	CTRL_SPAN = 0x24
)

// CR bits.
const (
	CR_RESET       = 1 << 0
	CR_EN          = 1 << 1
	CR_DMA_TRIG    = 1 << 9
	CR_FIFO_RST    = 1 << 30
	CR_DMA_FSM_RST = 1 << 31
)

// SR bits.
const (
	SR_XRUN = 1 << 0

	SHIFT_SR_FSM = 1
	MASK_SR_FSM  = 0x7
)

// zlogan DMA FSM states, as reported by SR.
const (
	S_IDLE = iota
	S_WAIT_TRIG
	S_RUN
	S_DONE
)

// ID fields.
const (
	SHIFT_ID_VERSION  = 0
	SHIFT_ID_WORDSIZE = 8
	SHIFT_ID_NSIGNALS = 16
	MASK_ID_FIELD     = 0xff
)

// S2MM DMA engine registers (byte offsets).
const (
	S2MM_DMACR    = 0x30
	S2MM_DMASR    = 0x34
	S2MM_DA       = 0x48
	S2MM_DA_MSB   = 0x4c
	S2MM_LENGTH   = 0x58
	DMA_CTRL_SPAN = 0x5c
)

// S2MM_DMACR bits.
const (
	DMACR_RS    = 1 << 0
	DMACR_RESET = 1 << 2
)

// S2MM_DMASR bits.
const (
	DMASR_HALTED  = 1 << 0
	DMASR_IDLE    = 1 << 1
	DMASR_INT_ERR = 1 << 4
	DMASR_SLV_ERR = 1 << 5
	DMASR_DEC_ERR = 1 << 6
	DMASR_IOC_IRQ = 1 << 12
	DMASR_ERR_IRQ = 1 << 14
	DMASR_ERR_ALL = DMASR_INT_ERR | DMASR_SLV_ERR | DMASR_DEC_ERR | DMASR_ERR_IRQ
)
