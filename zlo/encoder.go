// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zlo

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Encoder writes a container to an output stream.
type Encoder struct {
	w   io.Writer
	buf []byte
	err error

	wsize int // word size, set by WriteHeader
}

// NewEncoder returns a new Encoder that writes to w.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{
		w:   w,
		buf: make([]byte, HeaderLen),
	}
}

// WriteHeader writes the container header.
// The HdrLen field of hdr is ignored: the header is always written in
// its HeaderLen-byte form.
func (enc *Encoder) WriteHeader(hdr Header) error {
	if enc.err != nil {
		return enc.err
	}
	if hdr.WordSize == 0 {
		return fmt.Errorf("zlo: invalid word size %d", hdr.WordSize)
	}

	buf := enc.buf[:HeaderLen]
	buf[0] = hdr.Version
	buf[1] = hdr.NSignals
	buf[2] = hdr.WordSize
	buf[3] = HeaderLen
	binary.LittleEndian.PutUint32(buf[4:], hdr.BurstSize)
	binary.LittleEndian.PutUint32(buf[8:], hdr.TransferSize)

	_, enc.err = enc.w.Write(buf)
	if enc.err != nil {
		return fmt.Errorf("zlo: could not write header: %w", enc.err)
	}
	enc.wsize = int(hdr.WordSize)
	return nil
}

// WriteBlock writes the first n words held by r, verbatim.
func (enc *Encoder) WriteBlock(r io.ReaderAt, n int) error {
	if enc.err != nil {
		return enc.err
	}
	if enc.wsize == 0 {
		return fmt.Errorf("zlo: block written before header")
	}
	if n <= 0 {
		return nil
	}

	size := int64(n) * int64(enc.wsize)
	nn, err := io.Copy(enc.w, io.NewSectionReader(r, 0, size))
	switch {
	case err != nil:
		enc.err = err
	case nn != size:
		enc.err = io.ErrUnexpectedEOF
	}
	if enc.err != nil {
		return fmt.Errorf("zlo: could not write block of %d words: %w", n, enc.err)
	}
	return nil
}
