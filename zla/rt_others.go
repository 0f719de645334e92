// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build !linux

package zla

import "fmt"

// SetRealtime is only implemented on linux.
func SetRealtime(prio int) error {
	return fmt.Errorf("zla: real-time scheduling not supported")
}
