// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zla

import (
	"log"
	"os"
	"time"
)

type config struct {
	msg     *log.Logger
	verbose bool

	poll   time.Duration // sleep between two status polls
	settle struct {
		retries  uint64
		interval time.Duration
	}
	reset time.Duration // settle delay of the core reset bits

	lengthBits int // width of the DMA length register
	align      int // address alignment granularity, in words
}

func newConfig() config {
	cfg := config{
		msg:        log.New(os.Stdout, "zla: ", 0),
		verbose:    true,
		poll:       1 * time.Microsecond,
		reset:      1 * time.Microsecond,
		lengthBits: 23,
		align:      16,
	}
	cfg.settle.retries = 1000
	cfg.settle.interval = 10 * time.Microsecond
	return cfg
}

// Option configures an acquisition controller.
type Option func(*config)

// WithLogger sets the logger used by the controller.
func WithLogger(msg *log.Logger) Option {
	return func(cfg *config) {
		cfg.msg = msg
	}
}

// WithVerbose enables or disables debug messages.
// Warnings are always emitted.
func WithVerbose(v bool) Option {
	return func(cfg *config) {
		cfg.verbose = v
	}
}

// WithPollInterval sets the sleep between two status polls.
func WithPollInterval(d time.Duration) Option {
	return func(cfg *config) {
		cfg.poll = d
	}
}

// WithSettle sets the bounded wait for the DMA engine to settle after a
// cancellation.
func WithSettle(retries uint64, interval time.Duration) Option {
	return func(cfg *config) {
		cfg.settle.retries = retries
		cfg.settle.interval = interval
	}
}

// WithResetDelay sets how long the core reset bits are held.
func WithResetDelay(d time.Duration) Option {
	return func(cfg *config) {
		cfg.reset = d
	}
}

// WithLengthBits sets the width, in bits, of the DMA length register.
func WithLengthBits(n int) Option {
	return func(cfg *config) {
		cfg.lengthBits = n
	}
}

// WithAlign sets the address alignment granularity, in words.
func WithAlign(n int) Option {
	return func(cfg *config) {
		cfg.align = n
	}
}

func (cfg *config) debugf(format string, args ...interface{}) {
	if !cfg.verbose {
		return
	}
	cfg.msg.Printf(format, args...)
}

func (cfg *config) warnf(format string, args ...interface{}) {
	cfg.msg.Printf("warning: "+format, args...)
}
