// Copyright 2026 The vmtest Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package timedbuf implements a line-oriented, wallclock-stamped byte
// buffer: each completed line is stamped with the time its first byte was
// observed, not the time the line completed.
package timedbuf

import (
	"context"
	"time"

	"go.vmtest.dev/runner/internal/clock"
)

// Line is one line of text together with the wallclock time its first byte
// arrived.
type Line struct {
	First time.Time
	Text  string
}

// TimedBuffer accumulates bytes, splitting them into newline-terminated
// Lines as they complete.
type TimedBuffer struct {
	ctx        context.Context
	queue      []Line
	partial    []byte
	partialAt  time.Time
	inProgress bool
}

// New returns an empty TimedBuffer. ctx supplies the clock used to stamp
// lines (see internal/clock).
func New(ctx context.Context) *TimedBuffer {
	return &TimedBuffer{ctx: ctx}
}

// Push appends bytes to the buffer, moving each newline-terminated line to
// the queue as it completes.
func (t *TimedBuffer) Push(b []byte) {
	for _, c := range b {
		if !t.inProgress {
			t.partialAt = clock.Now(t.ctx)
			t.inProgress = true
		}
		t.partial = append(t.partial, c)
		if c == '\n' {
			t.queue = append(t.queue, Line{First: t.partialAt, Text: string(t.partial)})
			t.partial = nil
			t.inProgress = false
		}
	}
}

// Shift pops the oldest complete line. If force is true and the queue is
// empty, it also returns the in-progress partial line (clearing it).
// ok is false if there is nothing to return.
func (t *TimedBuffer) Shift(force bool) (line Line, ok bool) {
	if len(t.queue) > 0 {
		line = t.queue[0]
		t.queue = t.queue[1:]
		return line, true
	}
	if force && t.inProgress {
		line = Line{First: t.partialAt, Text: string(t.partial)}
		t.partial = nil
		t.inProgress = false
		return line, true
	}
	return Line{}, false
}

// Empty reports whether Shift(force) would return ok == false.
func (t *TimedBuffer) Empty(force bool) bool {
	if len(t.queue) > 0 {
		return false
	}
	if force && t.inProgress {
		return false
	}
	return true
}
