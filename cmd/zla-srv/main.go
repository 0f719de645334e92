// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command zla-srv starts a TDAQ server driving a zlogan analyzer.
//
// Each run streams a zlogan container on the "/zlo" output and, when the
// "odir" configuration key is set, stores it under that directory.
// The configuration file and the run length are taken from the
// ZLA_CONFIG and ZLA_NBYTES environment variables.
package main // import "github.com/go-lpc/zlogan/cmd/zla-srv"

import (
	"context"
	"log"
	"os"
	"strconv"

	"github.com/go-daq/tdaq"
	"github.com/go-daq/tdaq/flags"
	"github.com/go-lpc/zlogan/zla"
)

func main() {
	cmd := flags.New()

	fname := os.Getenv("ZLA_CONFIG")
	if fname == "" {
		fname = "zla.yml"
	}

	nbytes := int64(-1)
	if v := os.Getenv("ZLA_NBYTES"); v != "" {
		n, err := strconv.ParseInt(v, 0, 64)
		if err != nil {
			log.Fatalf("invalid ZLA_NBYTES value %q: %+v", v, err)
		}
		nbytes = n
	}

	dev := zla.NewServer(
		fname, nbytes,
		zla.WithLogger(log.New(os.Stderr, "zla: ", 0)),
	)

	srv := tdaq.New(cmd, os.Stdout)
	srv.CmdHandle("/config", dev.OnConfig)
	srv.CmdHandle("/init", dev.OnInit)
	srv.CmdHandle("/reset", dev.OnReset)
	srv.CmdHandle("/start", dev.OnStart)
	srv.CmdHandle("/stop", dev.OnStop)
	srv.CmdHandle("/quit", dev.OnQuit)

	srv.OutputHandle("/zlo", dev.Output)

	srv.RunHandle(dev.Run)

	err := srv.Run(context.Background())
	if err != nil {
		log.Panicf("error: %+v", err)
	}
}
