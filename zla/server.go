// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zla

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/go-daq/tdaq"
)

// device is an opened zlogan core.
type device interface {
	Controller(cancel *Cancel, opts ...Option) *Controller
	Close() error
}

// Server exposes a zlogan analyzer as a TDAQ process.
//
// Each run acquires a container that is streamed, chunk by chunk, on the
// "/zlo" output and, when Config.ODir is set, stored in that directory.
// A /stop command cancels the running acquisition, which still yields a
// well-formed container. TDAQ does not forward frames produced after
// the stop: the stored container is the complete one.
type Server struct {
	fname  string // configuration file
	nbytes int64  // number of bytes to acquire per run
	opts   []Option

	open func(cfg Config) (device, error)

	cfg    Config
	dev    device
	cancel Cancel

	mu      sync.Mutex
	data    chan []byte   // frames of the current run, closed when it ends
	spent   bool          // whether data was closed by a run
	running chan struct{} // closed when the current run ends
	runs    int
	res     Result
}

// NewServer creates a TDAQ server acquiring nbytes per run with the
// configuration read from fname.
func NewServer(fname string, nbytes int64, opts ...Option) *Server {
	srv := &Server{
		fname:  fname,
		nbytes: nbytes,
		opts:   opts,
		open: func(cfg Config) (device, error) {
			return Open(cfg)
		},
		cfg: DefaultConfig(),
	}
	srv.reset()
	return srv
}

func (srv *Server) configure() error {
	cfg, err := LoadConfig(srv.fname)
	if err != nil {
		return fmt.Errorf("zla: could not load configuration: %w", err)
	}
	srv.cfg = cfg
	return nil
}

func (srv *Server) init() error {
	err := srv.close()
	if err != nil {
		return err
	}

	dev, err := srv.open(srv.cfg)
	if err != nil {
		return fmt.Errorf("zla: could not open device: %w", err)
	}
	srv.dev = dev
	srv.reset()
	return nil
}

// reset prepares the next run. It must not be called while a run is
// active.
func (srv *Server) reset() {
	srv.mu.Lock()
	defer srv.mu.Unlock()

	srv.cancel.Reset()
	srv.data = make(chan []byte, 1024)
	srv.spent = false
	srv.res = Result{State: Aborted, Burst: -1}
}

// wait waits for the current run, if any, to end.
func (srv *Server) wait() {
	srv.mu.Lock()
	done := srv.running
	srv.mu.Unlock()

	if done != nil {
		<-done
	}
}

func (srv *Server) close() error {
	if srv.dev == nil {
		return nil
	}
	err := srv.dev.Close()
	srv.dev = nil
	if err != nil {
		return fmt.Errorf("zla: could not close device: %w", err)
	}
	return nil
}

func (srv *Server) frames() chan []byte {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	return srv.data
}

// run runs one acquisition. Cancelling ctx cancels the acquisition.
// The frames channel of the run is closed when run returns.
func (srv *Server) run(ctx context.Context) (Result, error) {
	srv.mu.Lock()
	if srv.spent {
		srv.data = make(chan []byte, 1024)
	}
	srv.spent = true
	var (
		data = srv.data
		done = make(chan struct{})
	)
	srv.running = done
	srv.runs++
	irun := srv.runs
	srv.mu.Unlock()

	defer close(done)
	defer close(data)

	res, err := srv.acquire(ctx, data, irun)

	srv.mu.Lock()
	srv.res = res
	srv.mu.Unlock()

	return res, err
}

func (srv *Server) acquire(ctx context.Context, data chan<- []byte, irun int) (Result, error) {
	res := Result{State: Aborted, Burst: -1}
	if srv.dev == nil {
		return res, errors.New("zla: device not initialized")
	}

	var (
		fw = &frameWriter{ctx: ctx, ch: data}
		w  = io.Writer(fw)
		f  *os.File
	)
	if srv.cfg.ODir != "" {
		fname := filepath.Join(srv.cfg.ODir, fmt.Sprintf("zla-run-%03d.zlo", irun))
		o, err := os.Create(fname)
		if err != nil {
			return res, fmt.Errorf("zla: could not create run file: %w", err)
		}
		defer o.Close()
		f = o
		w = io.MultiWriter(f, fw)
	}

	done := make(chan struct{})
	quit := make(chan struct{})
	go func() {
		defer close(quit)
		select {
		case <-ctx.Done():
			srv.cancel.Set()
		case <-done:
		}
	}()
	defer func() {
		close(done)
		<-quit
	}()

	ctl := srv.dev.Controller(&srv.cancel, srv.opts...)
	res, err := runStandalone(ctl, srv.cfg.Priority, w, srv.nbytes)
	if fw.dropped > 0 {
		ctl.cfg.warnf("%d frames not streamed after the run was stopped", fw.dropped)
	}
	if err != nil {
		return res, err
	}

	if f != nil {
		err = f.Close()
		if err != nil {
			return res, fmt.Errorf("zla: could not close run file: %w", err)
		}
	}
	return res, nil
}

// next returns the next frame of the current run.
//
// Once ctx is done, next keeps returning the frames the acquisition
// still produces and returns nil when the run has ended.
func (srv *Server) next(ctx context.Context) []byte {
	ch := srv.frames()
	select {
	case p, ok := <-ch:
		if ok {
			return p
		}
		// acquisition over, idle until the run is stopped.
		<-ctx.Done()
		return nil
	case <-ctx.Done():
		return <-ch
	}
}

// frameWriter sends copies of the written chunks on a channel.
// Once ctx is done, chunks that do not fit in the channel are dropped.
type frameWriter struct {
	ctx     context.Context
	ch      chan<- []byte
	dropped int
}

func (w *frameWriter) Write(p []byte) (int, error) {
	buf := append([]byte(nil), p...)
	select {
	case w.ch <- buf:
		return len(p), nil
	default:
	}

	select {
	case w.ch <- buf:
	case <-w.ctx.Done():
		w.dropped++
	}
	return len(p), nil
}

func (srv *Server) OnConfig(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /config command...")
	err := srv.configure()
	if err != nil {
		ctx.Msg.Errorf("could not configure: %+v", err)
		return err
	}
	srv.reset()
	return nil
}

func (srv *Server) OnInit(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /init command...")
	err := srv.init()
	if err != nil {
		ctx.Msg.Errorf("could not initialize: %+v", err)
		return err
	}
	ctx.Msg.Infof("device %s: OK", srv.cfg.DevMem)
	return nil
}

func (srv *Server) OnReset(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /reset command...")
	srv.wait()
	srv.reset()
	return nil
}

// OnStart is called once the run handler was launched: the run state
// was prepared by the previous /init, /reset or /stop.
func (srv *Server) OnStart(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /start command...")
	return nil
}

// OnStop is called once the run handler returned.
func (srv *Server) OnStop(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /stop command...")
	srv.cancel.Set()
	srv.wait()

	srv.mu.Lock()
	res := srv.res
	srv.mu.Unlock()
	ctx.Msg.Infof(
		"run %v: %d/%d words delivered (overrun=%v)",
		res.State, res.Delivered, res.Plan.Total, res.Overrun,
	)

	srv.reset()
	return nil
}

func (srv *Server) OnQuit(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /quit command...")
	srv.cancel.Set()
	srv.wait()
	err := srv.close()
	if err != nil {
		ctx.Msg.Errorf("could not close device: %+v", err)
		return err
	}
	return nil
}

// Output streams the acquired container.
func (srv *Server) Output(ctx tdaq.Context, dst *tdaq.Frame) error {
	dst.Body = srv.next(ctx.Ctx)
	return nil
}

// Run runs one acquisition per TDAQ run.
func (srv *Server) Run(ctx tdaq.Context) error {
	res, err := srv.run(ctx.Ctx)
	if err != nil {
		ctx.Msg.Errorf("could not acquire: %+v", err)
		return err
	}
	ctx.Msg.Debugf(
		"acquisition %v: %d/%d words",
		res.State, res.Delivered, res.Plan.Total,
	)
	return nil
}
