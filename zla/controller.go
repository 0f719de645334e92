// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zla

import (
	"errors"
	"fmt"
	"io"

	"github.com/cenkalti/backoff"
	"github.com/go-lpc/zlogan/zla/internal/regs"
	"github.com/go-lpc/zlogan/zlo"
)

var errNotSettled = errors.New("zla: DMA engine still running")

// Controller drives acquisitions on a zlogan core.
//
// A Controller owns the register windows of the core and of its DMA
// engine, and the physical buffer the engine writes into.
// A Controller runs one acquisition at a time and is not safe for
// concurrent use.
type Controller struct {
	cfg  config
	errs errs

	regs struct {
		cr     reg32
		sr     reg32
		len    reg32
		inp    reg32
		id     reg32
		fifo   [3]reg32 // data, read and write data counts
		shadow reg32
	}
	dma *dmaEngine
	buf Buffer

	cancel *Cancel
	state  State
}

// NewController returns a controller for the core whose registers are
// exposed by ctrl, moving data with the DMA engine exposed by dma into buf.
// The acquisition stops early when cancel is set.
func NewController(ctrl, dma RegisterFile, buf Buffer, cancel *Cancel, opts ...Option) *Controller {
	ctl := &Controller{
		cfg:    newConfig(),
		buf:    buf,
		cancel: cancel,
	}
	for _, opt := range opts {
		opt(&ctl.cfg)
	}

	e := &ctl.errs
	ctl.regs.cr = newReg32(e, ctrl, regs.CR)
	ctl.regs.sr = newReg32(e, ctrl, regs.SR)
	ctl.regs.len = newReg32(e, ctrl, regs.LEN)
	ctl.regs.inp = newReg32(e, ctrl, regs.INP)
	ctl.regs.id = newReg32(e, ctrl, regs.ID)
	ctl.regs.fifo[0] = newReg32(e, ctrl, regs.FIFO_DATA_COUNT)
	ctl.regs.fifo[1] = newReg32(e, ctrl, regs.FIFO_RD_DATA_COUNT)
	ctl.regs.fifo[2] = newReg32(e, ctrl, regs.FIFO_WR_DATA_COUNT)
	ctl.regs.shadow = newReg32(e, ctrl, regs.SHADOW_LEN)
	ctl.dma = newDMAEngine(e, dma)

	return ctl
}

// Identity reads the identity of the core.
func (ctl *Controller) Identity() (Identity, error) {
	id := identityFrom(ctl.regs.id.r())
	if ctl.errs.err != nil {
		return id, fmt.Errorf("zla: could not read device identity: %w", ctl.errs.err)
	}
	return id, nil
}

// MaxBurst returns the maximum burst length, in words, for a core with
// the provided identity, given the DMA engine limits and the size of the
// physical buffer.
func (ctl *Controller) MaxBurst(id Identity) int {
	if id.WordSize == 0 {
		return 0
	}
	var (
		ws    = int(id.WordSize)
		align = ctl.cfg.align
		max   = MaxBurstWords(ctl.cfg.lengthBits, ws, align)
	)
	if align <= 0 {
		align = 1
	}
	if n := (ctl.buf.Len() / ws) &^ (align - 1); n < max {
		max = n
	}
	return max
}

// Acquire captures total words and writes them, preceded by a container
// header, to w.
//
// Acquire returns a nil error when the acquisition completed or was
// cancelled: Result.State tells which. A cancelled acquisition still
// yields a well-formed, shorter, container.
func (ctl *Controller) Acquire(w io.Writer, total int) (Result, error) {
	res := Result{State: Aborted, Burst: -1}

	id, err := ctl.Identity()
	if err != nil {
		return res, err
	}
	res.ID = id

	err = id.validate()
	if err != nil {
		return res, err
	}

	max := ctl.MaxBurst(id)
	if max <= 0 {
		return res, fmt.Errorf(
			"%w (size=%d, word-size=%d, align=%d)",
			ErrBufferTooSmall, ctl.buf.Len(), id.WordSize, ctl.cfg.align,
		)
	}

	plan, err := NewPlan(total, max)
	if err != nil {
		return res, err
	}
	res.Plan = plan

	ctl.transition(Resetting)
	err = ctl.reset()
	if err != nil {
		return res, err
	}

	enc := zlo.NewEncoder(w)
	err = enc.WriteHeader(zlo.Header{
		Version:      id.Version,
		NSignals:     id.NSignals,
		WordSize:     id.WordSize,
		BurstSize:    uint32(plan.burstSize()),
		TransferSize: uint32(plan.Total),
	})
	if err != nil {
		ctl.stop()
		return res, fmt.Errorf("zla: could not write container header: %w", err)
	}

	ctl.transition(Planning)
	ctl.cfg.debugf(
		"plan: total=%d words, max-burst=%d words, bursts=%d",
		plan.Total, plan.MaxBurst, plan.Len(),
	)

	if plan.Len() > 0 {
		// the core latches LEN while waiting for the trigger.
		ctl.arm(plan.Blocks[0])
		if plan.Len() == 1 {
			ctl.disarm()
		}
	}

	ws := int(id.WordSize)
	for i, n := range plan.Blocks {
		if ctl.cancel.IsSet() {
			ctl.cfg.warnf("acquisition cancelled before burst %d/%d", i, plan.Len())
			ctl.stop()
			res.State = ctl.transition(Cancelled)
			return res, nil
		}

		res.Burst = i
		ctl.transition(InFlight)
		ctl.checkOverrun(&res)

		// pre-arm the next burst: LEN must be latched before the
		// current one completes.
		if next := i + 1; next < plan.Len() {
			ctl.arm(plan.Blocks[next])
		} else {
			ctl.disarm()
		}

		ctl.dma.start(ctl.buf.Addr(), n*ws)
		if ctl.errs.err != nil {
			ctl.stop()
			return res, fmt.Errorf("zla: could not start burst %d: %w", i, ctl.errs.err)
		}

		ctl.transition(Draining)
		st, cancelled, err := ctl.drain()
		switch {
		case err != nil:
			ctl.stop()
			return res, fmt.Errorf("zla: could not poll burst %d: %w", i, err)

		case cancelled:
			got := ctl.cancelBurst(n)
			ctl.cfg.warnf(
				"acquisition cancelled during burst %d/%d: %d/%d words delivered",
				i, plan.Len(), got, n,
			)
			err = enc.WriteBlock(ctl.buf, got)
			if err != nil {
				return res, fmt.Errorf("zla: could not write burst %d: %w", i, err)
			}
			res.Delivered += got
			res.State = ctl.transition(Cancelled)
			return res, nil

		case st == DMAHalted:
			ctl.cfg.warnf("DMA engine halted during burst %d/%d", i, plan.Len())
			_ = ctl.DumpRegisters(ctl.cfg.msg.Writer())
			ctl.stop()
			res.State = ctl.transition(Aborted)
			return res, fmt.Errorf("%w (burst=%d/%d)", ErrHalted, i, plan.Len())
		}

		// the buffer is reused by the next burst: drain it first.
		err = enc.WriteBlock(ctl.buf, n)
		if err != nil {
			ctl.stop()
			return res, fmt.Errorf("zla: could not write burst %d: %w", i, err)
		}
		res.Delivered += n
		ctl.cfg.debugf("burst %d/%d: %d words", i+1, plan.Len(), n)
	}

	ctl.disarm()
	ctl.checkOverrun(&res)
	if ctl.errs.err != nil {
		return res, fmt.Errorf("zla: could not complete acquisition: %w", ctl.errs.err)
	}
	res.State = ctl.transition(Completed)
	return res, nil
}

func (ctl *Controller) transition(s State) State {
	ctl.cfg.debugf("state: %v -> %v", ctl.state, s)
	ctl.state = s
	return s
}

// reset resets the core, its FIFO, its DMA FSM and the DMA engine,
// then enables the core.
func (ctl *Controller) reset() error {
	ctl.regs.cr.w(regs.CR_RESET | regs.CR_FIFO_RST | regs.CR_DMA_FSM_RST)
	sleep(ctl.cfg.reset)
	ctl.regs.cr.w(0)
	sleep(ctl.cfg.reset)

	err := ctl.dma.reset(ctl.cfg.poll)
	if err != nil {
		return err
	}

	ctl.regs.cr.w(regs.CR_EN)
	if ctl.errs.err != nil {
		return fmt.Errorf("zla: could not reset device: %w", ctl.errs.err)
	}
	return nil
}

// arm programs the length of the next burst and asserts the trigger.
func (ctl *Controller) arm(n int) {
	ctl.regs.len.w(uint32(n - 1))
	ctl.regs.cr.set(regs.CR_DMA_TRIG)
}

func (ctl *Controller) disarm() {
	ctl.regs.cr.clear(regs.CR_DMA_TRIG)
}

// stop disables the core, flushing its FIFO.
func (ctl *Controller) stop() {
	ctl.regs.cr.clear(regs.CR_DMA_TRIG | regs.CR_EN)
}

func (ctl *Controller) checkOverrun(res *Result) {
	if ctl.regs.sr.r()&regs.SR_XRUN == 0 {
		return
	}
	if !res.Overrun {
		ctl.cfg.warnf("FIFO overrun: samples were lost (burst=%d)", res.Burst)
	}
	res.Overrun = true
}

// drain polls the DMA engine until the current burst completes or halts,
// or until a cancellation is requested.
func (ctl *Controller) drain() (st DMAStatus, cancelled bool, err error) {
	for {
		st = ctl.dma.status()
		if ctl.errs.err != nil {
			return st, false, ctl.errs.err
		}
		switch st {
		case DMAIdle, DMAHalted:
			return st, false, nil
		}
		if ctl.cancel.IsSet() {
			return st, true, nil
		}
		sleep(ctl.cfg.poll)
	}
}

// cancelBurst stops the core in the middle of a burst of n words and
// returns the number of words the DMA engine delivered.
func (ctl *Controller) cancelBurst(n int) int {
	ctl.stop()

	err := backoff.Retry(
		func() error {
			if ctl.dma.status() == DMARunning && ctl.errs.err == nil {
				return errNotSettled
			}
			return nil
		},
		backoff.WithMaxRetries(
			backoff.NewConstantBackOff(ctl.cfg.settle.interval),
			ctl.cfg.settle.retries,
		),
	)
	if err != nil {
		ctl.cfg.warnf("DMA engine did not settle after cancellation: %+v", err)
	}

	var (
		lenv   = int64(ctl.regs.len.r())
		shadow = int64(ctl.regs.shadow.r())
		got    = lenv - shadow
	)
	if ctl.errs.err != nil {
		ctl.cfg.warnf("could not read burst length registers: %+v", ctl.errs.err)
		return 0
	}
	switch {
	case got < 0:
		ctl.cfg.warnf("invalid delivered length (len=%d, shadow=%d)", lenv, shadow)
		got = 0
	case got > int64(n):
		ctl.cfg.warnf("invalid delivered length (len=%d, shadow=%d, burst=%d)", lenv, shadow, n)
		got = int64(n)
	}
	return int(got)
}
