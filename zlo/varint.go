// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zlo

import "encoding/binary"

// Sample packs the value w of nsignals signals and the delay dt, in
// sampling periods minus one, since the previous sample.
func Sample(w, dt uint64, nsignals int) uint64 {
	mask := uint64(1)<<nsignals - 1
	return w&mask | dt<<nsignals
}

// SplitSample is the inverse of Sample.
func SplitSample(u uint64, nsignals int) (w, dt uint64) {
	mask := uint64(1)<<nsignals - 1
	return u & mask, u >> nsignals
}

// AppendSample appends the base-128 encoding of a sample to dst.
func AppendSample(dst []byte, w, dt uint64, nsignals int) []byte {
	return binary.AppendUvarint(dst, Sample(w, dt, nsignals))
}

// uvarint accumulates a base-128 integer, one byte at a time.
type uvarint struct {
	v     uint64
	shift uint
	n     int // number of bytes accumulated so far
}

// add accumulates b and reports whether it terminated the integer.
func (u *uvarint) add(b byte) (uint64, bool) {
	if u.shift < 64 {
		u.v |= uint64(b&0x7f) << u.shift
	}
	u.shift += 7
	u.n++
	if b&0x80 != 0 {
		return 0, false
	}
	v := u.v
	*u = uvarint{}
	return v, true
}
