// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package zlo reads and writes zlogan containers.
//
// A container is a small header followed by the raw sample words, as
// moved by the DMA engine, of every burst of an acquisition.
// The sample words are a stream of base-128 variable-length integers,
// each packing the value of all the signals and the time elapsed since
// the previous sample. The first word of every burst is a marker.
package zlo // import "github.com/go-lpc/zlogan/zlo"

import (
	"errors"
	"fmt"
)

const (
	// HeaderLen is the length of the header written by Encoder.
	HeaderLen = 12

	// MaxSignals is the maximum number of signals a container may hold.
	MaxSignals = 57

	hdrLenV0     = 8  // header without transfer size
	maxVarintLen = 10 // longest base-128 encoding of a uint64

	legacyNSignals  = 4
	legacyWordSize  = 4
	legacyBurstSize = 1 << 20
)

var (
	// ErrSignals is returned for containers holding more than MaxSignals signals.
	ErrSignals = errors.New("zlo: too many signals")

	// ErrHeader is returned for truncated or malformed container headers.
	ErrHeader = errors.New("zlo: invalid header")
)

// Header describes the content of a container.
type Header struct {
	Version      uint8  // ip_version of the device
	NSignals     uint8  // number of signals
	WordSize     uint8  // bytes per DMA word
	HdrLen       uint8  // on-disk header length
	BurstSize    uint32 // words per DMA burst
	TransferSize uint32 // requested number of words, zero for old headers
}

// LegacyHeader returns the implicit header of a headerless stream of
// nsignals signals, as produced by the first acquisition tools.
// A negative nsignals selects the historical default.
func LegacyHeader(nsignals int) Header {
	if nsignals < 0 {
		nsignals = legacyNSignals
	}
	return Header{
		NSignals:  uint8(nsignals),
		WordSize:  legacyWordSize,
		BurstSize: legacyBurstSize,
	}
}

func (hdr Header) validate() error {
	if hdr.NSignals > MaxSignals {
		return fmt.Errorf("%w (got=%d, max=%d)", ErrSignals, hdr.NSignals, MaxSignals)
	}
	if hdr.WordSize == 0 {
		return fmt.Errorf("%w: invalid word size %d", ErrHeader, hdr.WordSize)
	}
	return nil
}

func (hdr Header) mask() uint64 {
	return 1<<hdr.NSignals - 1
}
