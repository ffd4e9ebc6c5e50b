// Copyright 2026 The vmtest Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package sigplane implements the process-wide signal handling state: a
// handful of atomic flags written only by a single signal-consuming
// goroutine and read by the supervisor and monitor loops. Go has no
// restricted-context signal handler the way C does, so the "handler" here
// is an ordinary goroutine fed by
// os/signal.Notify — it still only ever sets flags and forwards signals,
// never doing unsafe work from a signal context.
package sigplane

import (
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// Plane holds the process-wide signal state. The zero value is not usable;
// construct with New.
type Plane struct {
	killPID       atomic.Int32
	interrupt     atomic.Bool
	fatalSignal   atomic.Bool
	interruptDecay atomic.Int64 // unix nanos after which Interrupt() auto-clears

	sigc chan os.Signal
	done chan struct{}
}

// forwardedFatal is forwarded once to the child group, then causes the
// runner to exit on a second delivery. SIGALRM is listed here too, but handle
// gives it its own case, so it is never forwarded.
var forwardedFatal = []os.Signal{
	unix.SIGHUP, unix.SIGQUIT, unix.SIGILL, unix.SIGABRT, unix.SIGFPE,
	unix.SIGSEGV, unix.SIGPIPE, unix.SIGALRM, unix.SIGTERM, unix.SIGUSR1, unix.SIGUSR2,
}

// New installs signal handling and returns a Plane. Call Stop to undo it.
func New() *Plane {
	p := &Plane{
		sigc: make(chan os.Signal, 16),
		done: make(chan struct{}),
	}
	watched := append([]os.Signal{unix.SIGINT, unix.SIGALRM}, forwardedFatal...)
	signal.Notify(p.sigc, watched...)
	go p.loop()
	return p
}

// Stop stops receiving signals and terminates the consumer goroutine.
func (p *Plane) Stop() {
	signal.Stop(p.sigc)
	close(p.done)
}

func (p *Plane) loop() {
	for {
		select {
		case <-p.done:
			return
		case sig := <-p.sigc:
			p.handle(sig)
		}
	}
}

func (p *Plane) handle(sig os.Signal) {
	switch sig {
	case unix.SIGINT:
		if p.Interrupt() {
			// Second SIGINT within the decay window: fatal.
			p.fatalSignal.Store(true)
		} else {
			p.interrupt.Store(true)
			p.interruptDecay.Store(time.Now().Add(time.Second).UnixNano())
		}
		p.forwardToChild(unix.SIGINT)
	case unix.SIGALRM:
		// Used internally to decay the interrupt flag; nothing else reacts
		// to it at the process level.
	default:
		p.fatalSignal.Store(true)
		if s, ok := sig.(syscall.Signal); ok {
			p.forwardToChild(unix.Signal(s))
		}
		// Restore the default disposition so a second delivery of this
		// signal terminates the runner.
		signal.Reset(sig)
	}
}

func (p *Plane) forwardToChild(sig unix.Signal) {
	pid := p.killPID.Load()
	if pid == 0 {
		return
	}
	unix.Kill(-int(pid), sig)
}

// SetKillPID records the process group id of the currently running child
// so signal forwarding knows where to send signals.
func (p *Plane) SetKillPID(pid int) {
	p.killPID.Store(int32(pid))
}

// KillPID returns the currently recorded child process group id, or 0.
func (p *Plane) KillPID() int {
	return int(p.killPID.Load())
}

// Interrupt reports whether the interrupt flag is currently set, decaying
// it first if its one-second window (armed by alarm(1) in the original,
// here a recorded deadline) has passed.
func (p *Plane) Interrupt() bool {
	if !p.interrupt.Load() {
		return false
	}
	deadline := p.interruptDecay.Load()
	if deadline != 0 && time.Now().UnixNano() >= deadline {
		p.interrupt.Store(false)
		p.interruptDecay.Store(0)
		return false
	}
	return true
}

// ClearInterrupt resets the interrupt flag unconditionally, without waiting
// for its one-second window to pass.
func (p *Plane) ClearInterrupt() {
	p.interrupt.Store(false)
	p.interruptDecay.Store(0)
}

// FatalSignal reports whether a fatal signal has been observed; the
// supervisor's run loop checks this every iteration and breaks if set.
func (p *Plane) FatalSignal() bool {
	return p.fatalSignal.Load()
}

// Escalate forces the fatal-signal flag, used when an INTERRUPTED test
// result arrives while the runner is in batch mode: interrupting one test
// in a batch run is treated as fatal to the whole run rather than just
// that test.
func (p *Plane) Escalate() {
	p.fatalSignal.Store(true)
}
