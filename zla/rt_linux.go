// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build linux

package zla

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// SetRealtime moves the calling OS thread to the SCHED_FIFO class with
// the provided priority and locks the process memory.
//
// Callers should have locked the goroutine to its OS thread.
func SetRealtime(prio int) error {
	err := unix.SchedSetAttr(0, &unix.SchedAttr{
		Policy:   unix.SCHED_FIFO,
		Priority: uint32(prio),
	}, 0)
	if err != nil {
		return fmt.Errorf("zla: could not set SCHED_FIFO priority %d: %w", prio, err)
	}

	err = unix.Mlockall(unix.MCL_CURRENT | unix.MCL_FUTURE)
	if err != nil {
		return fmt.Errorf("zla: could not lock process memory: %w", err)
	}
	return nil
}
