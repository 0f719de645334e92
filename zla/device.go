// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zla

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-lpc/zlogan/internal/mmap"
	"golang.org/x/sys/unix"
)

// Device holds the process-wide mappings of a zlogan core: its control
// registers, the registers of its DMA engine and the DMA buffer.
type Device struct {
	msg *log.Logger
	cfg Config

	mem struct {
		fd   *os.File
		ctrl *mmap.Handle
		dma  *mmap.Handle
	}
	buf *physBuffer
}

// Open maps the register windows and the DMA buffer described by cfg.
func Open(cfg Config) (*Device, error) {
	mem, err := os.OpenFile(cfg.DevMem, os.O_RDWR|os.O_SYNC, 0666)
	if err != nil {
		return nil, fmt.Errorf("zla: could not open %q: %w", cfg.DevMem, err)
	}
	defer func() {
		if err != nil {
			_ = mem.Close()
		}
	}()

	dev := &Device{
		msg: log.New(os.Stdout, "zla: ", 0),
		cfg: cfg,
	}
	dev.mem.fd = mem

	rw := unix.PROT_READ | unix.PROT_WRITE
	dev.mem.ctrl, err = mmap.Map(mem, int64(cfg.Ctrl.Addr), cfg.Ctrl.Size, rw)
	if err != nil {
		return nil, fmt.Errorf("zla: could not map control registers: %w", err)
	}
	defer func() {
		if err != nil {
			_ = dev.mem.ctrl.Close()
		}
	}()

	dev.mem.dma, err = mmap.Map(mem, int64(cfg.DMA.Addr), cfg.DMA.Size, rw)
	if err != nil {
		return nil, fmt.Errorf("zla: could not map DMA registers: %w", err)
	}
	defer func() {
		if err != nil {
			_ = dev.mem.dma.Close()
		}
	}()

	dev.buf, err = openBuffer(cfg.Buffer.Device, cfg.Buffer.Sysfs)
	if err != nil {
		return nil, fmt.Errorf("zla: could not map DMA buffer: %w", err)
	}

	return dev, nil
}

// Controller returns an acquisition controller for the device.
// The provided options are applied after the ones derived from the
// device configuration.
func (dev *Device) Controller(cancel *Cancel, opts ...Option) *Controller {
	o := append([]Option{WithLogger(dev.msg)}, dev.cfg.options()...)
	o = append(o, opts...)
	return NewController(dev.mem.ctrl, dev.mem.dma, dev.buf, cancel, o...)
}

// Close releases the mappings of the device.
func (dev *Device) Close() error {
	if dev.mem.fd == nil {
		return nil
	}

	var (
		errBuf  = dev.buf.Close()
		errDMA  = dev.mem.dma.Close()
		errCtrl = dev.mem.ctrl.Close()
		errMem  = dev.mem.fd.Close()
	)

	dev.buf = nil
	dev.mem.dma = nil
	dev.mem.ctrl = nil
	dev.mem.fd = nil

	if errBuf != nil {
		return fmt.Errorf("zla: could not close DMA buffer: %w", errBuf)
	}

	if errDMA != nil {
		return fmt.Errorf("zla: could not close mmap DMA registers: %w", errDMA)
	}

	if errCtrl != nil {
		return fmt.Errorf("zla: could not close mmap control registers: %w", errCtrl)
	}

	if errMem != nil {
		return fmt.Errorf("zla: could not close device mem file: %w", errMem)
	}

	return nil
}

// physBuffer is a u-dma-buf allocated, physically contiguous, buffer.
type physBuffer struct {
	*mmap.Handle
	f    *os.File
	addr uint64
}

func openBuffer(dev, sysfs string) (*physBuffer, error) {
	addr, err := readSysfs(filepath.Join(sysfs, "phys_addr"))
	if err != nil {
		return nil, err
	}
	size, err := readSysfs(filepath.Join(sysfs, "size"))
	if err != nil {
		return nil, err
	}

	f, err := os.OpenFile(dev, os.O_RDWR|os.O_SYNC, 0)
	if err != nil {
		return nil, fmt.Errorf("zla: could not open %q: %w", dev, err)
	}

	h, err := mmap.Map(f, 0, int(size), unix.PROT_READ)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("zla: could not map %q: %w", dev, err)
	}

	return &physBuffer{Handle: h, f: f, addr: addr}, nil
}

func (buf *physBuffer) Addr() uint64 { return buf.addr }

func (buf *physBuffer) Close() error {
	if buf == nil {
		return nil
	}
	errMap := buf.Handle.Close()
	errFd := buf.f.Close()
	if errMap != nil {
		return errMap
	}
	return errFd
}

func readSysfs(fname string) (uint64, error) {
	raw, err := os.ReadFile(fname)
	if err != nil {
		return 0, fmt.Errorf("zla: could not read %q: %w", fname, err)
	}
	v, err := strconv.ParseUint(strings.TrimSpace(string(raw)), 0, 64)
	if err != nil {
		return 0, fmt.Errorf("zla: could not parse %q: %w", fname, err)
	}
	return v, nil
}
