// Copyright 2026 The vmtest Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package progress

import (
	"bytes"
	"io"
	"testing"
)

func TestInteractiveModeRoutesThroughCR(t *testing.T) {
	var out bytes.Buffer
	p := New(&out, Interactive, 1)
	io.WriteString(p.Stream(0, First), "starting\n")
	io.WriteString(p.Stream(0, Update), "50%")
	io.WriteString(p.Stream(0, Last), "done\n")

	if out.String() != "starting\n\r50%done\n" {
		t.Fatalf("got %q", out.String())
	}
}

func TestBatchModeBacklogsNonZeroSlots(t *testing.T) {
	var out bytes.Buffer
	p := New(&out, Batch, 2)
	io.WriteString(p.Stream(0, Last), "slot0 done\n")
	io.WriteString(p.Stream(1, Last), "slot1 partial")

	if out.String() != "slot0 done\n" {
		t.Fatalf("expected slot 0 to stream live, got %q", out.String())
	}

	io.WriteString(p.Stream(1, Last), " finished\n")
	p.Flush()
	if out.String() != "slot0 done\nslot1 partial finished\n" {
		t.Fatalf("got %q after flush", out.String())
	}
}

func TestBatchFlushRetainsPartialTail(t *testing.T) {
	var out bytes.Buffer
	p := New(&out, Batch, 2)
	io.WriteString(p.Stream(1, First), "line one\npartial tail")
	p.Flush()
	if out.String() != "line one\n" {
		t.Fatalf("got %q", out.String())
	}
	io.WriteString(p.Stream(1, Update), " continues\n")
	p.Flush()
	if out.String() != "line one\npartial tail continues\n" {
		t.Fatalf("got %q", out.String())
	}
}

func TestQuietModeOnlyShowsLast(t *testing.T) {
	var out bytes.Buffer
	p := New(&out, Quiet, 1)
	io.WriteString(p.Stream(0, First), "should not appear")
	io.WriteString(p.Stream(0, Update), "should not appear either")
	io.WriteString(p.Stream(0, Last), "result\n")
	if out.String() != "result\n" {
		t.Fatalf("got %q", out.String())
	}
}
