// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command zla-daq drives a zlogan acquisition in stand-alone mode.
//
// Usage: zla-daq [OPTIONS]
//
// Example:
//
//	$> zla-daq -n 4194304 -o run.zlo
//	$> zla-daq -mkconf > zla.yml
//
// Options:
//
//	-cfg string
//	    	path to configuration file (default "zla.yml")
//	-freq duration
//	    	pmon frequency (default 1s)
//	-mkconf
//	    	write default configuration to stdout and exit
//	-n int
//	    	number of bytes to acquire, -1 for one burst of maximal length (default -1)
//	-o string
//	    	output file (default: stdout)
//	-pmon
//	    	enable pmon monitoring
//	-q	disable debug messages
//
// SIGINT and SIGTERM cancel the acquisition, the output file is then
// a shorter, well-formed, container.
package main // import "github.com/go-lpc/zlogan/cmd/zla-daq"

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-lpc/zlogan/runlog"
	"github.com/go-lpc/zlogan/zla"
	"github.com/sbinet/pmon"
)

func main() {
	log.SetPrefix("zla-daq: ")
	log.SetFlags(0)

	var (
		cfgName = flag.String("cfg", "zla.yml", "path to configuration file")
		nbytes  = flag.Int64("n", -1, "number of bytes to acquire, -1 for one burst of maximal length")
		oname   = flag.String("o", "", "output file (default: stdout)")
		quiet   = flag.Bool("q", false, "disable debug messages")
		doMon   = flag.Bool("pmon", false, "enable pmon monitoring")
		freq    = flag.Duration("freq", 1*time.Second, "pmon frequency")
		mkconf  = flag.Bool("mkconf", false, "write default configuration to stdout and exit")
	)

	flag.Parse()

	if *mkconf {
		err := zla.DefaultConfig().WriteYAML(os.Stdout)
		if err != nil {
			log.Fatalf("could not write default configuration: %+v", err)
		}
		return
	}

	// a closed output pipe is reported as a write error.
	signal.Ignore(syscall.SIGPIPE)

	if *doMon {
		stop, err := monitor(*freq)
		if err != nil {
			log.Fatalf("could not start pmon: %+v", err)
		}
		defer stop()
	}

	err := run(*cfgName, *oname, *nbytes, !*quiet)
	if err != nil {
		log.Fatalf("could not run zla-daq: %+v", err)
	}
}

func run(cfgName, oname string, nbytes int64, verbose bool) error {
	cfg, err := zla.LoadConfig(cfgName)
	if err != nil {
		return fmt.Errorf("could not load configuration: %w", err)
	}

	var (
		out  io.Writer = os.Stdout
		name           = "<stdout>"
	)
	if oname != "" {
		f, err := os.Create(oname)
		if err != nil {
			return fmt.Errorf("could not create output file: %w", err)
		}
		defer f.Close()
		out = f
		name = oname
	}

	beg := time.Now()
	res, err := zla.RunStandalone(
		cfg, out, nbytes,
		zla.WithLogger(log.New(os.Stderr, "zla: ", 0)),
		zla.WithVerbose(verbose),
	)
	end := time.Now()

	if cfg.DB != "" {
		rerr := record(cfg.DB, runlog.Run{
			Start:     beg,
			Stop:      end,
			Output:    name,
			Requested: res.Plan.Total,
			Delivered: res.Delivered,
			State:     res.State.String(),
			Overrun:   res.Overrun,
		})
		if rerr != nil {
			log.Printf("could not record run: %+v", rerr)
		}
	}

	if err != nil {
		return fmt.Errorf("could not acquire: %w", err)
	}

	if f, ok := out.(*os.File); ok && oname != "" {
		err = f.Close()
		if err != nil {
			return fmt.Errorf("could not close output file: %w", err)
		}
	}

	log.Printf(
		"run %v: %d/%d words delivered in %v (overrun=%v)",
		res.State, res.Delivered, res.Plan.Total, end.Sub(beg), res.Overrun,
	)
	return nil
}

func record(dsn string, run runlog.Run) error {
	db, err := runlog.Open(dsn)
	if err != nil {
		return err
	}
	defer db.Close()

	return db.Record(context.Background(), run)
}

func monitor(freq time.Duration) (func(), error) {
	p, err := pmon.Monitor(os.Getpid())
	if err != nil {
		return nil, fmt.Errorf("could not start monitoring (pid=%d): %w", os.Getpid(), err)
	}
	f, err := os.Create(fmt.Sprintf("zla-daq-%d-pmon.log", os.Getpid()))
	if err != nil {
		return nil, fmt.Errorf("could not create pmon log file: %w", err)
	}
	p.W = f
	p.Freq = freq

	go func() {
		err := p.Run()
		if err != nil {
			log.Printf("could not run pmon: %+v", err)
		}
	}()

	return func() {
		err := p.Kill()
		if err != nil {
			log.Printf("could not stop pmon: %+v", err)
		}
		_ = f.Close()
	}, nil
}
