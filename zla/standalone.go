// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zla

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"syscall"

	"golang.org/x/sync/errgroup"
)

// RunStandalone opens the device described by cfg and acquires nbytes
// bytes of samples into w. A negative nbytes requests a single burst of
// the maximum length the hardware supports.
//
// SIGINT and SIGTERM cancel the acquisition, which then yields a shorter,
// well-formed, container.
func RunStandalone(cfg Config, w io.Writer, nbytes int64, opts ...Option) (Result, error) {
	dev, err := Open(cfg)
	if err != nil {
		return Result{State: Aborted, Burst: -1}, fmt.Errorf("zla: could not open device: %w", err)
	}
	defer dev.Close()

	var cancel Cancel
	stop := NotifyCancel(&cancel, os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctl := dev.Controller(&cancel, opts...)
	return runStandalone(ctl, cfg.Priority, w, nbytes)
}

func runStandalone(ctl *Controller, prio int, w io.Writer, nbytes int64) (Result, error) {
	var (
		grp errgroup.Group
		res = Result{State: Aborted, Burst: -1}
	)
	grp.Go(func() error {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()

		if prio > 0 {
			err := SetRealtime(prio)
			if err != nil {
				ctl.cfg.warnf("could not elevate acquisition thread: %+v", err)
			}
		}

		words, err := ctl.words(nbytes)
		if err != nil {
			return err
		}

		res, err = ctl.Acquire(w, words)
		return err
	})

	err := grp.Wait()
	if err != nil {
		return res, err
	}

	return res, ctl.close()
}

// words converts a length in bytes into a number of device words.
func (ctl *Controller) words(nbytes int64) (int, error) {
	id, err := ctl.Identity()
	if err != nil {
		return 0, err
	}
	if id.WordSize == 0 {
		// Acquire will report the invalid identity.
		return 0, nil
	}
	if nbytes < 0 {
		return ctl.MaxBurst(id), nil
	}
	return int(nbytes / int64(id.WordSize)), nil
}

// close leaves the core disabled.
func (ctl *Controller) close() error {
	ctl.stop()
	if ctl.errs.err != nil {
		return fmt.Errorf("zla: could not disable device: %w", ctl.errs.err)
	}
	return nil
}
