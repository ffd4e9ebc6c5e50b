// Copyright 2026 The vmtest Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

//go:build linux

package source

import (
	"context"
	"io"
	"os"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"

	"go.vmtest.dev/runner/internal/iomisc"
	"go.vmtest.dev/runner/internal/logger"
	"go.vmtest.dev/runner/internal/sink"
)

// defaultPanicMarkers are the kernel log substrings the panic watch looks
// for.
var defaultPanicMarkers = [][]byte{
	[]byte("Kernel panic"),
	[]byte("BUG: "),
	[]byte("Call Trace:"),
}

// KMsg taps the kernel ring buffer, either via /dev/kmsg (read from its
// current position forward) or, if that's unavailable, the syslog
// read-and-clear syscall. It self-disables on permission errors rather
// than treating them as fatal.
type KMsg struct {
	ctx      context.Context
	testName string
	markers  [][]byte

	file       *os.File
	syslogMode bool
	opened     bool
	disabled   bool

	panicTee *io.PipeWriter
	group    *errgroup.Group
}

// NewKMsg returns a KMsg source. testName is used only to label panic-watch
// log lines.
func NewKMsg(ctx context.Context, testName string) *KMsg {
	return &KMsg{ctx: ctx, testName: testName, markers: defaultPanicMarkers}
}

func (k *KMsg) open() {
	k.opened = true
	f, err := os.OpenFile("/dev/kmsg", os.O_RDONLY|unix.O_NONBLOCK, 0)
	if err != nil {
		if os.IsPermission(err) {
			k.disabled = true
			return
		}
		// Fall back to the syslog syscall, starting from a cleared ring so
		// only new records are reported; if that also fails (e.g. no
		// CAP_SYSLOG), self-disable rather than fail the whole test.
		if _, kerr := unix.Klogctl(unix.SYSLOG_ACTION_CLEAR, nil); kerr != nil {
			k.disabled = true
			return
		}
		k.syslogMode = true
	} else {
		// Position at the end of the existing buffer; only new records
		// should be reported.
		f.Seek(0, io.SeekEnd)
		k.file = f
	}
	k.startPanicWatch()
}

// startPanicWatch runs a MatchingReader against a tee of the kmsg stream in
// a background goroutine, logging (but never failing the test on) a kernel
// panic signature.
func (k *KMsg) startPanicWatch() {
	r, w := io.Pipe()
	k.panicTee = w
	group, ctx := errgroup.WithContext(k.ctx)
	k.group = group
	group.Go(func() error {
		matcher := iomisc.NewMatchingReader(r, k.markers)
		for {
			match, err := iomisc.ReadUntilMatch(ctx, matcher)
			if err != nil {
				return nil
			}
			logger.FromContext(ctx).Warnf("kernel log matched %q during %s", match, k.testName)
			// A MatchingReader only reports its first match; start a fresh
			// one so later panics in the same test are still caught.
			matcher = iomisc.NewMatchingReader(r, k.markers)
		}
	})
}

func (k *KMsg) Sync(s sink.Sink) error {
	if !k.opened && !k.disabled {
		k.open()
	}
	if k.disabled {
		return nil
	}
	buf := make([]byte, drainChunk)
	if k.syslogMode {
		n, err := unix.Klogctl(unix.SYSLOG_ACTION_READ_CLEAR, buf)
		if err == nil && n > 0 {
			s.Push(buf[:n])
			if k.panicTee != nil {
				k.panicTee.Write(buf[:n])
			}
		}
		return nil
	}
	if k.file == nil {
		return nil
	}
	for {
		n, err := k.file.Read(buf)
		if n > 0 {
			s.Push(buf[:n])
			if k.panicTee != nil {
				k.panicTee.Write(buf[:n])
			}
		}
		if err != nil {
			return nil
		}
		if n < len(buf) {
			return nil
		}
	}
}

// Reset reopens /dev/kmsg (or re-clears the syslog buffer) between tests.
func (k *KMsg) Reset() error {
	if k.file != nil {
		k.file.Close()
		k.file = nil
	}
	if k.panicTee != nil {
		k.panicTee.Close()
	}
	if k.group != nil {
		k.group.Wait()
	}
	k.syslogMode = false
	k.opened = false
	if !k.disabled {
		k.open()
	}
	return nil
}

func (k *KMsg) FdSet() int   { return -1 }
func (k *KMsg) Closed() bool { return k.disabled }
