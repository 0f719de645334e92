// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package zla drives the acquisition of the zlogan logic analyzer core
// and of the DMA engine that moves its samples into system memory.
package zla // import "github.com/go-lpc/zlogan/zla"

import (
	"errors"
	"fmt"

	"github.com/go-lpc/zlogan/zla/internal/regs"
)

// IPVersion is the only zlogan core version this package can drive.
const IPVersion = 1

var (
	// ErrVersion is returned when the device reports an unsupported
	// ip_version.
	ErrVersion = errors.New("zla: unsupported device version")

	// ErrBufferTooSmall is returned when the physical buffer can not
	// hold a single aligned burst.
	ErrBufferTooSmall = errors.New("zla: physical buffer too small")

	// ErrHalted is returned when the DMA engine halted during a burst.
	ErrHalted = errors.New("zla: DMA engine halted")

	// ErrTooLong is returned when a transfer or burst length does not
	// fit the 32-bit fields of the container header.
	ErrTooLong = errors.New("zla: length exceeds 32 bits")
)

// Identity describes the read-only identity of a zlogan core.
type Identity struct {
	Version  uint8 // ip_version
	WordSize uint8 // bytes per sample word
	NSignals uint8 // number of channels
}

func identityFrom(id uint32) Identity {
	return Identity{
		Version:  uint8((id >> regs.SHIFT_ID_VERSION) & regs.MASK_ID_FIELD),
		WordSize: uint8((id >> regs.SHIFT_ID_WORDSIZE) & regs.MASK_ID_FIELD),
		NSignals: uint8((id >> regs.SHIFT_ID_NSIGNALS) & regs.MASK_ID_FIELD),
	}
}

func (id Identity) String() string {
	return fmt.Sprintf(
		"version=%d, word-size=%d, signals=%d",
		id.Version, id.WordSize, id.NSignals,
	)
}

func (id Identity) validate() error {
	if id.Version != IPVersion {
		return fmt.Errorf("%w (got=%d, want=%d)", ErrVersion, id.Version, IPVersion)
	}
	if id.WordSize == 0 {
		return fmt.Errorf("zla: invalid device word size %d", id.WordSize)
	}
	if int(id.NSignals) > 8*int(id.WordSize) {
		return fmt.Errorf(
			"zla: invalid number of signals %d for a %d-byte word",
			id.NSignals, id.WordSize,
		)
	}
	return nil
}

// State is the state of an acquisition.
type State uint8

const (
	Resetting State = iota
	Planning
	InFlight
	Draining
	Completed
	Aborted
	Cancelled
)

func (s State) String() string {
	switch s {
	case Resetting:
		return "resetting"
	case Planning:
		return "planning"
	case InFlight:
		return "in-flight"
	case Draining:
		return "draining"
	case Completed:
		return "completed"
	case Aborted:
		return "aborted"
	case Cancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

// Result summarizes an acquisition run.
type Result struct {
	State     State
	ID        Identity
	Plan      Plan
	Burst     int  // index of the last burst that was started, -1 if none
	Delivered int  // number of words written to the output
	Overrun   bool // whether the capture FIFO overflowed during the run
}
