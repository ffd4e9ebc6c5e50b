// Copyright 2026 The vmtest Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package sink implements the Sink hierarchy: consumers that accept
// pushed bytes and, on demand, flush formatted complete lines.
package sink

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"go.vmtest.dev/runner/internal/format"
	"go.vmtest.dev/runner/internal/osmisc"
	"go.vmtest.dev/runner/internal/timedbuf"
)

// Sink is the common interface for every output consumer in the IO hub.
type Sink interface {
	Push(b []byte)
	// Outline flushes one formatted line, if one is available. force also
	// flushes an in-progress partial line.
	Outline(force bool)
	Sync()
	Close()
}

// Observer is a no-op Sink, installed by the IO hub so it always has at
// least one consumer even before the caller adds its own.
type Observer struct{}

func (Observer) Push([]byte)  {}
func (Observer) Outline(bool) {}
func (Observer) Sync()        {}
func (Observer) Close()       {}

// BufSink accumulates formatted output in memory so it can be replayed
// later (used to show a failed test's output even when the sink wasn't
// wired to stdout during the run).
type BufSink struct {
	mu  sync.Mutex
	buf *timedbuf.TimedBuffer
	fmt *format.Formatter
}

// NewBufSink returns a BufSink that formats lines with f.
func NewBufSink(ctx context.Context, f *format.Formatter) *BufSink {
	return &BufSink{buf: timedbuf.New(ctx), fmt: f}
}

func (b *BufSink) Push(p []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf.Push(p)
}

func (b *BufSink) Outline(bool) {}
func (b *BufSink) Sync()        {}
func (b *BufSink) Close()       {}

// Dump writes every buffered line to out, each prefixed with "| ".
func (b *BufSink) Dump(out io.Writer) {
	b.mu.Lock()
	defer b.mu.Unlock()
	suppress := false
	for {
		line, ok := b.buf.Shift(true)
		if !ok {
			return
		}
		formatted := b.fmt.Format(line, suppress)
		fmt.Fprint(out, "| "+formatted)
		suppress = !strings.HasSuffix(line.Text, "\n")
	}
}

// FdSink writes formatted lines to a writable fd-backed file as they
// complete.
type FdSink struct {
	mu             sync.Mutex
	w              io.Writer
	buf            *timedbuf.TimedBuffer
	fmt            *format.Formatter
	lastWasNewline bool
}

// NewFdSink returns an FdSink writing formatted lines to w.
func NewFdSink(ctx context.Context, w io.Writer, f *format.Formatter) *FdSink {
	return &FdSink{w: w, buf: timedbuf.New(ctx), fmt: f, lastWasNewline: true}
}

func (s *FdSink) Push(p []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf.Push(p)
}

// Outline pops one line (or the partial tail if force) and writes it,
// suppressing the timestamp prefix if it continues a partial line.
func (s *FdSink) Outline(force bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	line, ok := s.buf.Shift(force)
	if !ok {
		return
	}
	suppress := !s.lastWasNewline
	formatted := s.fmt.Format(line, suppress)
	io.WriteString(s.w, formatted)
	s.lastWasNewline = strings.HasSuffix(line.Text, "\n")
}

// Sync flushes every complete line currently buffered; the in-progress
// partial tail is left for a later Outline(true) or Close to force out.
func (s *FdSink) Sync() {
	for s.hasComplete() {
		s.Outline(false)
	}
}

func (s *FdSink) hasComplete() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.buf.Empty(false)
}

// Close force-flushes any trailing partial line.
func (s *FdSink) Close() {
	s.Outline(true)
}

// FileSink is an FdSink that lazily opens its backing file on first Sync,
// and transitions to a killed state (silently dropping further pushes) if
// that open fails.
type FileSink struct {
	mu     sync.Mutex
	path   string
	file   *os.File
	opened bool
	killed bool
	inner  *FdSink
	ctx    context.Context
	fmt    *format.Formatter
}

// NewFileSink returns a FileSink that will create/truncate path on first Sync.
func NewFileSink(ctx context.Context, path string, f *format.Formatter) *FileSink {
	return &FileSink{path: path, ctx: ctx, fmt: f}
}

func (s *FileSink) Push(p []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.killed {
		return
	}
	if s.inner == nil {
		s.inner = NewFdSink(s.ctx, io.Discard, s.fmt)
	}
	s.inner.Push(p)
}

// Sync lazily opens the backing file on first call, then flushes every
// complete line currently buffered.
func (s *FileSink) Sync() {
	s.mu.Lock()
	if s.killed {
		s.mu.Unlock()
		return
	}
	if !s.opened {
		s.opened = true
		f, err := osmisc.CreateFile(s.path)
		if err != nil {
			s.killed = true
			s.mu.Unlock()
			return
		}
		s.file = f
		if s.inner == nil {
			s.inner = NewFdSink(s.ctx, f, s.fmt)
		} else {
			s.inner.w = f
		}
	}
	inner := s.inner
	s.mu.Unlock()
	if inner != nil {
		inner.Sync()
	}
}

func (s *FileSink) Outline(force bool) {
	s.mu.Lock()
	killed := s.killed
	inner := s.inner
	s.mu.Unlock()
	if killed || inner == nil {
		return
	}
	inner.Outline(force)
}

// Close force-flushes any trailing partial line, then fsyncs and closes the
// backing file, if one was opened.
func (s *FileSink) Close() {
	s.mu.Lock()
	inner := s.inner
	file := s.file
	s.mu.Unlock()
	if inner != nil {
		inner.Outline(true)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if file == nil {
		return
	}
	s.file.Sync()
	s.file.Close()
	s.file = nil
}

// Killed reports whether the sink's file failed to open and is now
// silently discarding pushes.
func (s *FileSink) Killed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.killed
}
