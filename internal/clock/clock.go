// Copyright 2026 The vmtest Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package clock provides a context-injectable source of wall-clock time so
// that components that stamp events with the current time can be driven
// deterministically in tests.
package clock

import (
	"context"
	"sync"
	"time"
)

type clockKeyType struct{}

var clockKey = clockKeyType{}

// Clock is the minimal interface the runner needs from a time source.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Real returns the Clock backed by the actual wall clock.
func Real() Clock { return realClock{} }

// NewContext returns a context that will yield c from Now(ctx).
func NewContext(ctx context.Context, c Clock) context.Context {
	return context.WithValue(ctx, clockKey, c)
}

// Now returns the current time according to whatever Clock is attached to
// ctx, or the real wall clock if none is attached.
func Now(ctx context.Context) time.Time {
	if c, ok := ctx.Value(clockKey).(Clock); ok {
		return c.Now()
	}
	return time.Now()
}

// FakeClock is a Clock whose value only advances when told to, for
// deterministic tests of timeout and heartbeat logic.
type FakeClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewFakeClock returns a FakeClock starting at the given time, or the real
// current time if no time is given.
func NewFakeClock(start ...time.Time) *FakeClock {
	t := time.Now()
	if len(start) > 0 {
		t = start[0]
	}
	return &FakeClock{now: t}
}

func (f *FakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// Advance moves the fake clock forward by d.
func (f *FakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

// Set pins the fake clock to t.
func (f *FakeClock) Set(t time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = t
}
