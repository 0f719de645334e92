// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zla

import (
	"os"
	"os/signal"
	"sync/atomic"
)

// Cancel is an asynchronously settable cancellation request.
//
// Cancel is only ever polled by the acquisition, between two status
// polls and at burst boundaries.
type Cancel struct {
	flag atomic.Bool
}

// Set requests the cancellation of the running acquisition.
func (c *Cancel) Set() { c.flag.Store(true) }

// Reset clears a previous cancellation request.
func (c *Cancel) Reset() { c.flag.Store(false) }

// IsSet reports whether a cancellation was requested.
func (c *Cancel) IsSet() bool {
	if c == nil {
		return false
	}
	return c.flag.Load()
}

// NotifyCancel arranges for c to be set when one of the provided signals
// is delivered. The returned function stops the relaying.
func NotifyCancel(c *Cancel, sigs ...os.Signal) (stop func()) {
	ch := make(chan os.Signal, 1)
	done := make(chan struct{})
	signal.Notify(ch, sigs...)
	go func() {
		for {
			select {
			case <-ch:
				c.Set()
			case <-done:
				return
			}
		}
	}()
	return func() {
		signal.Stop(ch)
		close(done)
	}
}
