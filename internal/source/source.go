// Copyright 2026 The vmtest Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package source implements the Source hierarchy: pollable or polled
// producers of bytes that the IO hub drains into its sinks.
package source

import (
	"errors"

	"golang.org/x/sys/unix"

	"go.vmtest.dev/runner/internal/sink"
)

// drainChunk is the maximum number of bytes read from a source fd per
// Sync call.
const drainChunk = 128 * 1024

// Source is the common interface for every input producer in the IO hub.
type Source interface {
	// Sync drains whatever is currently available into s.
	Sync(s sink.Sink) error
	// Reset prepares the source to be reused by the next test.
	Reset() error
	// FdSet returns the fd this source wants included in select(), or -1
	// if it should instead be polled unconditionally every tick.
	FdSet() int
	// Closed reports whether a fatal read error has disabled this source.
	Closed() bool
}

// fdSource is the non-blocking raw-fd read implementation behind the
// child-socket Source. FileSource reads through an *os.File instead.
type fdSource struct {
	fd     int
	closed bool
}

func (f *fdSource) drain(s sink.Sink) error {
	if f.closed || f.fd < 0 {
		return nil
	}
	buf := make([]byte, drainChunk)
	for {
		n, err := unix.Read(f.fd, buf)
		if n > 0 {
			s.Push(buf[:n])
		}
		if err == nil {
			if n == 0 {
				return nil
			}
			if n < len(buf) {
				return nil
			}
			continue
		}
		if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK) {
			return nil
		}
		f.closed = true
		return err
	}
}

func (f *fdSource) Closed() bool { return f.closed }

// ChildSource is the Source wrapping the parent's end of a test's
// socketpair; it is always pollable.
type ChildSource struct {
	fdSource
}

// NewChildSource wraps fd, which must already be non-blocking.
func NewChildSource(fd int) *ChildSource {
	return &ChildSource{fdSource{fd: fd}}
}

func (c *ChildSource) Sync(s sink.Sink) error { return c.drain(s) }
func (c *ChildSource) Reset() error           { return nil }
func (c *ChildSource) FdSet() int {
	if c.closed {
		return -1
	}
	return c.fd
}

// Close releases the underlying fd.
func (c *ChildSource) Close() {
	if c.fd >= 0 {
		unix.Close(c.fd)
		c.fd = -1
	}
}
