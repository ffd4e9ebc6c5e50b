// Copyright 2026 The vmtest Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package iohub implements the fan-in/fan-out hub that sits between a
// TestCase's Sources and Sinks.
package iohub

import (
	"golang.org/x/sys/unix"

	"go.vmtest.dev/runner/internal/sink"
	"go.vmtest.dev/runner/internal/source"
)

// Hub owns a set of sources and sinks. Every source drains into every sink;
// there is always at least one sink, an Observer, installed by New so the
// hub never has to special-case an empty sink list.
type Hub struct {
	sinks   []sink.Sink
	sources []source.Source
}

// New returns an empty Hub with the default Observer sink installed.
func New() *Hub {
	return &Hub{sinks: []sink.Sink{sink.Observer{}}}
}

// AddSink registers an additional sink.
func (h *Hub) AddSink(s sink.Sink) {
	h.sinks = append(h.sinks, s)
}

// AddSource registers an additional source.
func (h *Hub) AddSource(s source.Source) {
	h.sources = append(h.sources, s)
}

// Push fans bytes out to every sink directly, bypassing the sources. Used
// to feed sentinel output that didn't arrive through a Source.
func (h *Hub) Push(b []byte) {
	for _, s := range h.sinks {
		s.Push(b)
	}
}

// Sync drains every source into every sink, then gives every sink a chance
// to flush whatever complete lines it now holds.
func (h *Hub) Sync() error {
	for _, src := range h.sources {
		if src.Closed() {
			continue
		}
		if err := src.Sync(fanout{h.sinks}); err != nil {
			// Source.Sync already marks itself closed on fatal errors; the
			// hub keeps going so other sources and sinks are unaffected.
			continue
		}
	}
	for _, s := range h.sinks {
		s.Sync()
	}
	return nil
}

// fanout adapts a []sink.Sink to the single-sink interface a Source expects
// to push into.
type fanout struct {
	sinks []sink.Sink
}

func (f fanout) Push(b []byte) {
	for _, s := range f.sinks {
		s.Push(b)
	}
}
func (f fanout) Outline(force bool) {
	for _, s := range f.sinks {
		s.Outline(force)
	}
}
func (f fanout) Sync() {
	for _, s := range f.sinks {
		s.Sync()
	}
}
func (f fanout) Close() {
	for _, s := range f.sinks {
		s.Close()
	}
}

// FdSet unions every source's pollable fd into set and returns the select
// nfds value (max fd + 1), or 0 if no source wants to be polled via select.
func (h *Hub) FdSet(set *unix.FdSet) int {
	maxFd := -1
	if set != nil {
		zeroFdSet(set)
	}
	for _, src := range h.sources {
		if src.Closed() {
			continue
		}
		fd := src.FdSet()
		if fd < 0 {
			continue
		}
		if set != nil {
			fdSet(set, fd)
		}
		if fd > maxFd {
			maxFd = fd
		}
	}
	if maxFd < 0 {
		return 0
	}
	return maxFd + 1
}

// Close deletes and clears every source, calling Reset is not implied;
// callers that want to reuse sources should Reset them before Close.
func (h *Hub) Close() {
	h.sources = nil
}

// Clear deletes and clears every sink except the default Observer.
func (h *Hub) Clear() {
	for _, s := range h.sinks {
		s.Close()
	}
	h.sinks = []sink.Sink{sink.Observer{}}
}

// Steal transfers this hub's sources and sinks to a freshly returned Hub
// and empties the donor, matching the "stealing copy" semantics the parent
// uses to hand its half of a pipe to a TestCase after fork.
func (h *Hub) Steal() *Hub {
	stolen := &Hub{sinks: h.sinks, sources: h.sources}
	h.sinks = []sink.Sink{sink.Observer{}}
	h.sources = nil
	return stolen
}

func zeroFdSet(set *unix.FdSet) {
	for i := range set.Bits {
		set.Bits[i] = 0
	}
}

func fdSet(set *unix.FdSet, fd int) {
	idx := fd / 64
	if idx < 0 || idx >= len(set.Bits) {
		return
	}
	set.Bits[idx] |= 1 << (uint(fd) % 64)
}

// FdIsSet reports whether fd is present in set, for callers that ran
// select themselves.
func FdIsSet(set *unix.FdSet, fd int) bool {
	if fd < 0 {
		return false
	}
	idx := fd / 64
	if idx < 0 || idx >= len(set.Bits) {
		return false
	}
	return set.Bits[idx]&(1<<(uint(fd)%64)) != 0
}
