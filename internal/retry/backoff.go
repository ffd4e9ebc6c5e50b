// Copyright 2026 The vmtest Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package retry implements backoff policies and a retry loop, used by the
// journal to make fsync retryable under transient I/O errors.
package retry

import (
	"math/rand"
	"time"

	"go.vmtest.dev/runner/internal/clock"
)

func defaultRand() float64 { return rand.Float64() }

// Stop is returned by Backoff.Next to signal that no further retries
// should be attempted.
const Stop time.Duration = -1

// Backoff computes the delay before the next retry attempt.
type Backoff interface {
	Next() time.Duration
	Reset()
}

// ZeroBackoff retries immediately, forever.
type ZeroBackoff struct{}

func (ZeroBackoff) Next() time.Duration { return 0 }
func (ZeroBackoff) Reset()              {}

// constantBackoff always waits the same interval.
type constantBackoff struct {
	interval time.Duration
}

// NewConstantBackoff returns a Backoff that always waits interval.
func NewConstantBackoff(interval time.Duration) Backoff {
	return &constantBackoff{interval: interval}
}

func (b *constantBackoff) Next() time.Duration { return b.interval }
func (b *constantBackoff) Reset()              {}

// maxAttemptsBackoff wraps another Backoff, returning Stop once a maximum
// number of attempts has been reached. A maxAttempts of 0 means unlimited.
type maxAttemptsBackoff struct {
	backoff     Backoff
	maxAttempts int
	attempt     int
}

// WithMaxAttempts wraps b so that it stops after maxAttempts calls to Next
// (0 means unlimited).
func WithMaxAttempts(b Backoff, maxAttempts int) Backoff {
	return &maxAttemptsBackoff{backoff: b, maxAttempts: maxAttempts}
}

func (b *maxAttemptsBackoff) Next() time.Duration {
	b.attempt++
	if b.maxAttempts > 0 && b.attempt >= b.maxAttempts {
		return Stop
	}
	return b.backoff.Next()
}

func (b *maxAttemptsBackoff) Reset() {
	b.attempt = 0
	b.backoff.Reset()
}

// maxDurationBackoff wraps another Backoff, returning Stop once maxDuration
// has elapsed since the last Reset.
type maxDurationBackoff struct {
	backOff     Backoff
	maxDuration time.Duration
	clock       clock.Clock
	start       time.Time
}

// NewMaxDurationBackoff wraps b so that it stops once maxDuration has
// elapsed since construction or the last Reset.
func NewMaxDurationBackoff(b Backoff, maxDuration time.Duration) Backoff {
	return &maxDurationBackoff{backOff: b, maxDuration: maxDuration, clock: clock.Real(), start: clock.Real().Now()}
}

func (b *maxDurationBackoff) Next() time.Duration {
	if b.clock.Now().Sub(b.start) >= b.maxDuration {
		return Stop
	}
	return b.backOff.Next()
}

func (b *maxDurationBackoff) Reset() {
	b.start = b.clock.Now()
	b.backOff.Reset()
}

// exponentialBackoff doubles (or scales by multiplier) its interval on
// every call to Next, capped at maxInterval, with +/-50% jitter.
type exponentialBackoff struct {
	initial    time.Duration
	max        time.Duration
	multiplier float64
	current    time.Duration
	rand       func() float64
}

// NewExponentialBackoff returns a Backoff starting at initial, scaling by
// multiplier on each call, capped at maxInterval, with +/-50% jitter.
func NewExponentialBackoff(initial, maxInterval time.Duration, multiplier float64) Backoff {
	b := &exponentialBackoff{initial: initial, max: maxInterval, multiplier: multiplier, rand: defaultRand}
	b.current = initial
	return b
}

func (b *exponentialBackoff) Next() time.Duration {
	if b.current >= b.max {
		return b.max
	}
	interval := b.current
	next := time.Duration(float64(b.current) * b.multiplier)
	if next > b.max {
		next = b.max
	}
	b.current = next
	jittered := time.Duration(float64(interval) * (0.5 + b.rand()))
	if jittered > b.max {
		jittered = b.max
	}
	return jittered
}

func (b *exponentialBackoff) Reset() {
	b.current = b.initial
}

// noRetries is a Backoff that never retries.
type noRetries struct{}

func (noRetries) Next() time.Duration { return Stop }
func (noRetries) Reset()              {}

// NoRetries returns a Backoff that never retries.
func NoRetries() Backoff {
	return noRetries{}
}
