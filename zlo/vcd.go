// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zlo

import (
	"bufio"
	"errors"
	"fmt"
	"io"
)

// VCDWriter renders value changes as a Verilog Change Dump.
type VCDWriter struct {
	w   *bufio.Writer
	err error
}

// NewVCDWriter returns a VCD writer writing to w.
func NewVCDWriter(w io.Writer) *VCDWriter {
	return &VCDWriter{w: bufio.NewWriter(w)}
}

// VCDID returns the identifier of signal k.
func VCDID(k int) byte { return byte('A' + k) }

// WriteHeader declares nsignals single-bit variables.
func (vcd *VCDWriter) WriteHeader(nsignals int) error {
	vcd.printf(
		"$version zlo2vcd $end\n"+
			"$comment %d channels $end\n"+
			"$timescale 10 ns $end\n"+
			"$scope module zlogan $end\n",
		nsignals,
	)
	for k := 0; k < nsignals; k++ {
		vcd.printf("$var wire 1 %c x%02d $end\n", VCDID(k), k)
	}
	vcd.printf("$upscope $end\n$enddefinitions $end\n")
	if vcd.err != nil {
		return fmt.Errorf("zlo: could not write VCD header: %w", vcd.err)
	}
	return nil
}

// WriteEvent writes one line holding all the changes of ev.
func (vcd *VCDWriter) WriteEvent(ev Event) error {
	vcd.printf("#%d", ev.Time)
	for _, c := range ev.Changes {
		vcd.printf(" %d%c", c.Value, VCDID(c.Signal))
	}
	vcd.printf("\n")
	if vcd.err != nil {
		return fmt.Errorf("zlo: could not write VCD event: %w", vcd.err)
	}
	return nil
}

// Flush flushes buffered output.
func (vcd *VCDWriter) Flush() error {
	if vcd.err != nil {
		return vcd.err
	}
	vcd.err = vcd.w.Flush()
	return vcd.err
}

func (vcd *VCDWriter) printf(format string, args ...interface{}) {
	if vcd.err != nil {
		return
	}
	_, vcd.err = fmt.Fprintf(vcd.w, format, args...)
}

// Convert decodes the container read from r and writes it as a VCD to w.
// Convert returns the header of the container and the number of decoded
// samples.
func Convert(w io.Writer, r io.Reader, opts ...Option) (Header, int, error) {
	dec := NewDecoder(r, opts...)
	hdr, err := dec.ReadHeader()
	if err != nil {
		return hdr, 0, err
	}

	vcd := NewVCDWriter(w)
	err = vcd.WriteHeader(int(hdr.NSignals))
	if err != nil {
		return hdr, 0, err
	}

	for {
		ev, err := dec.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return hdr, dec.Samples(), err
		}
		err = vcd.WriteEvent(ev)
		if err != nil {
			return hdr, dec.Samples(), err
		}
	}

	err = vcd.Flush()
	if err != nil {
		return hdr, dec.Samples(), fmt.Errorf("zlo: could not flush VCD: %w", err)
	}
	return hdr, dec.Samples(), nil
}
