// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zla

import (
	"fmt"
	"io"

	"github.com/go-lpc/zlogan/zla/internal/regs"
)

// DumpRegisters writes a snapshot of the core and DMA engine registers to w.
func (ctl *Controller) DumpRegisters(w io.Writer) error {
	var (
		r   = &ctl.regs
		dma = ctl.dma
		sr  = r.sr.r()
		id  = r.id.r()
	)

	fmt.Fprintf(w, "ctrl.cr=          0x%08x\n", r.cr.r())
	fmt.Fprintf(w, "ctrl.sr=          0x%08x (fsm=%d, xrun=%v)\n",
		sr, (sr>>regs.SHIFT_SR_FSM)&regs.MASK_SR_FSM, sr&regs.SR_XRUN != 0,
	)
	fmt.Fprintf(w, "ctrl.len=         0x%08x\n", r.len.r())
	fmt.Fprintf(w, "ctrl.shadow-len=  0x%08x\n", r.shadow.r())
	fmt.Fprintf(w, "ctrl.inp=         0x%08x\n", r.inp.r())
	fmt.Fprintf(w, "ctrl.id=          0x%08x (%v)\n", id, identityFrom(id))

	fmt.Fprintf(w, "fifo.data-count=  %d\n", r.fifo[0].r())
	fmt.Fprintf(w, "fifo.rd-count=    %d\n", r.fifo[1].r())
	fmt.Fprintf(w, "fifo.wr-count=    %d\n", r.fifo[2].r())

	fmt.Fprintf(w, "dma.s2mm.cr=      0x%08x\n", dma.cr.r())
	fmt.Fprintf(w, "dma.s2mm.sr=      0x%08x (%v)\n", dma.sr.r(), dma.status())
	fmt.Fprintf(w, "dma.s2mm.da=      0x%08x%08x\n", dma.da[1].r(), dma.da[0].r())
	fmt.Fprintf(w, "dma.s2mm.len=     0x%08x\n", dma.len.r())

	return ctl.errs.err
}
