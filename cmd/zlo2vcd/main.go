// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command zlo2vcd converts a zlogan container into a VCD waveform trace.
//
// Usage: zlo2vcd [NSIGNALS] < in.zlo > out.vcd
//
// When NSIGNALS is provided, the input is decoded as a legacy headerless
// stream with NSIGNALS signals.
package main // import "github.com/go-lpc/zlogan/cmd/zlo2vcd"

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"

	"github.com/go-lpc/zlogan/zlo"
)

func main() {
	log.SetPrefix("zlo2vcd: ")
	log.SetFlags(0)

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: zlo2vcd [NSIGNALS] < in.zlo > out.vcd\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() > 1 {
		flag.Usage()
		os.Exit(2)
	}

	legacy := -1
	if flag.NArg() == 1 {
		n, err := strconv.Atoi(flag.Arg(0))
		if err != nil || n <= 0 || n > zlo.MaxSignals {
			log.Printf("invalid number of signals %q", flag.Arg(0))
			flag.Usage()
			os.Exit(2)
		}
		legacy = n
	}

	err := process(os.Stdout, os.Stdin, legacy)
	if err != nil {
		log.Fatalf("could not convert: %+v", err)
	}
}

func process(w io.Writer, r io.Reader, legacy int) error {
	opts := []zlo.Option{
		zlo.WithLogger(log.New(os.Stderr, "zlo2vcd: ", 0)),
	}
	if legacy > 0 {
		opts = append(opts, zlo.WithLegacy(legacy))
	}

	hdr, n, err := zlo.Convert(w, r, opts...)
	if err != nil {
		return err
	}

	log.Printf(
		"%d samples decoded (signals=%d, word-size=%d, burst=%d)",
		n, hdr.NSignals, hdr.WordSize, hdr.BurstSize,
	)
	return nil
}
