// Copyright 2026 The vmtest Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package sink

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.vmtest.dev/runner/internal/clock"
	"go.vmtest.dev/runner/internal/format"
)

// epochCtx pins line timestamps to the formatter's start time, so the
// expected "[ 0:00] " prefix does not depend on the real wall clock.
func epochCtx() context.Context {
	return clock.NewContext(context.Background(), clock.NewFakeClock(time.Unix(0, 0)))
}

func TestFdSinkFormatsLines(t *testing.T) {
	var out bytes.Buffer
	f := format.NewFormatter(time.Unix(0, 0))
	s := NewFdSink(epochCtx(), &out, f)

	s.Push([]byte("hello\n"))
	s.Outline(false)

	if out.String() != "[ 0:00] hello\n" {
		t.Fatalf("got %q", out.String())
	}
}

func TestFileSinkLazyOpenAndTruncate(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.txt")
	if err := os.WriteFile(path, []byte("stale"), 0644); err != nil {
		t.Fatal(err)
	}

	f := format.NewFormatter(time.Unix(0, 0))
	s := NewFileSink(epochCtx(), path, f)
	s.Push([]byte("fresh\n"))
	// Sync performs the lazy open + truncate.
	s.Sync()
	s.Outline(false)
	s.Close()

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if b == nil || string(b) == "stale" {
		t.Fatalf("expected truncated+fresh content, got %q", b)
	}
	if got := string(b); got != "[ 0:00] fresh\n" {
		t.Fatalf("got %q", got)
	}
}

func TestFileSinkKilledOnOpenFailure(t *testing.T) {
	// A path inside a nonexistent directory cannot be created.
	path := filepath.Join(t.TempDir(), "nope", "test.txt")
	f := format.NewFormatter(time.Unix(0, 0))
	s := NewFileSink(context.Background(), path, f)

	s.Sync()
	if !s.Killed() {
		t.Fatalf("expected sink to be killed after failed open")
	}
	// Further pushes must be silently dropped, not panic.
	s.Push([]byte("dropped\n"))
	s.Outline(true)
	s.Close()
}

func TestBufSinkDump(t *testing.T) {
	f := format.NewFormatter(time.Unix(0, 0))
	b := NewBufSink(epochCtx(), f)
	b.Push([]byte("line one\n"))

	var out bytes.Buffer
	b.Dump(&out)
	if out.String() != "| [ 0:00] line one\n" {
		t.Fatalf("got %q", out.String())
	}
}
