// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zlo

import (
	"bufio"
	"encoding/binary"
	"errors"
	"io"
	"log"
	"os"

	"golang.org/x/xerrors"
)

// Change is a value change of a single signal.
type Change struct {
	Signal int   // signal index
	Value  uint8 // new bit value
}

// Event holds all the value changes happening at a given time.
type Event struct {
	Time    uint64 // in sampling periods
	Changes []Change
}

// Option configures a Decoder.
type Option func(*Decoder)

// WithLogger sets the logger used to report malformed input.
func WithLogger(msg *log.Logger) Option {
	return func(dec *Decoder) {
		dec.msg = msg
	}
}

// WithLegacy configures the decoder for headerless streams of nsignals
// signals. See LegacyHeader.
func WithLegacy(nsignals int) Option {
	return func(dec *Decoder) {
		dec.legacy = true
		dec.hdr = LegacyHeader(nsignals)
	}
}

// Decoder reads a container and reconstructs the value changes of its
// signals.
type Decoder struct {
	r   *bufio.Reader
	msg *log.Logger
	err error

	legacy bool
	hdr    Header
	read   bool // whether the header was read
	ws     uint64
	burst  uint64
	mask   uint64

	off uint64 // byte offset from the end of the header
	acc uvarint
	t   uint64 // time of the last sample
	w   uint64 // value of the last sample
	n   int    // number of decoded samples
}

// NewDecoder returns a decoder reading from r.
func NewDecoder(r io.Reader, opts ...Option) *Decoder {
	dec := &Decoder{
		r:   bufio.NewReader(r),
		msg: log.New(os.Stderr, "zlo: ", 0),
	}
	for _, opt := range opts {
		opt(dec)
	}
	return dec
}

// Samples returns the number of samples decoded so far.
func (dec *Decoder) Samples() int { return dec.n }

// ReadHeader reads and validates the container header.
// For legacy streams, ReadHeader consumes no input.
func (dec *Decoder) ReadHeader() (Header, error) {
	if dec.read {
		return dec.hdr, dec.err
	}
	dec.read = true

	if !dec.legacy {
		dec.hdr, dec.err = dec.readHeader()
		if dec.err != nil {
			return dec.hdr, dec.err
		}
	}

	dec.err = dec.hdr.validate()
	if dec.err != nil {
		return dec.hdr, dec.err
	}

	if dec.hdr.BurstSize == 0 {
		dec.msg.Printf("warning: burst size is zero, no marker word will be skipped")
	}
	dec.ws = uint64(dec.hdr.WordSize)
	dec.burst = uint64(dec.hdr.BurstSize)
	dec.mask = dec.hdr.mask()
	return dec.hdr, nil
}

func (dec *Decoder) readHeader() (Header, error) {
	var (
		hdr Header
		buf = make([]byte, 4, HeaderLen)
	)
	_, err := io.ReadFull(dec.r, buf)
	if err != nil {
		return hdr, xerrors.Errorf("zlo: could not read header prefix: %w", headerError(err))
	}
	hdr.Version = buf[0]
	hdr.NSignals = buf[1]
	hdr.WordSize = buf[2]
	hdr.HdrLen = buf[3]

	n := int(hdr.HdrLen)
	switch {
	case n == 0:
		n = hdrLenV0
	case n >= hdrLenV0:
		// ok. TransferSize is only present from HeaderLen on.
	default:
		return hdr, xerrors.Errorf("zlo: invalid header length %d: %w", n, ErrHeader)
	}
	hdr.HdrLen = uint8(n)

	buf = buf[:cap(buf)]
	if n < HeaderLen {
		buf = buf[:hdrLenV0]
	}
	_, err = io.ReadFull(dec.r, buf[4:])
	if err != nil {
		return hdr, xerrors.Errorf("zlo: could not read header: %w", headerError(err))
	}
	hdr.BurstSize = binary.LittleEndian.Uint32(buf[4:8])
	if len(buf) == HeaderLen {
		hdr.TransferSize = binary.LittleEndian.Uint32(buf[8:12])
	}

	if extra := int64(n - len(buf)); extra > 0 {
		_, err = io.CopyN(io.Discard, dec.r, extra)
		if err != nil {
			return hdr, xerrors.Errorf("zlo: could not skip %d header bytes: %w", extra, headerError(err))
		}
	}

	return hdr, nil
}

func headerError(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return xerrors.Errorf("%v: %w", io.ErrUnexpectedEOF, ErrHeader)
	}
	return err
}

// Next returns the next set of value changes.
// Next returns io.EOF when the input is exhausted.
func (dec *Decoder) Next() (Event, error) {
	if !dec.read {
		_, err := dec.ReadHeader()
		if err != nil {
			return Event{}, err
		}
	}
	if dec.err != nil {
		return Event{}, dec.err
	}

	for {
		b, err := dec.r.ReadByte()
		if err != nil {
			if errors.Is(err, io.EOF) && dec.acc.n > 0 {
				dec.msg.Printf(
					"warning: truncated input: unterminated sample (%d bytes)",
					dec.acc.n,
				)
				dec.acc = uvarint{}
			}
			if !errors.Is(err, io.EOF) {
				err = xerrors.Errorf("zlo: could not read samples: %w", err)
			}
			dec.err = err
			return Event{}, err
		}

		word := dec.off / dec.ws
		dec.off++
		if dec.burst > 0 && word%dec.burst == 0 {
			// marker word.
			continue
		}

		u, ok := dec.acc.add(b)
		if !ok {
			if dec.acc.n == maxVarintLen+1 {
				dec.msg.Printf(
					"warning: malformed input: sample longer than %d bytes (offset=%d)",
					maxVarintLen, dec.off-1,
				)
			}
			continue
		}

		ev := dec.sample(u)
		if len(ev.Changes) > 0 {
			return ev, nil
		}
	}
}

func (dec *Decoder) sample(u uint64) Event {
	var (
		w  = u & dec.mask
		dt = u >> dec.hdr.NSignals
	)
	dec.t += dt + 1
	if dec.n == 0 {
		dec.w = ^w
	}
	dec.n++

	ev := Event{Time: dec.t}
	diff := (w ^ dec.w) & dec.mask
	for k := 0; diff != 0; k++ {
		if diff&1 != 0 {
			ev.Changes = append(ev.Changes, Change{
				Signal: k,
				Value:  uint8((w >> k) & 1),
			})
		}
		diff >>= 1
	}
	dec.w = w
	return ev
}
