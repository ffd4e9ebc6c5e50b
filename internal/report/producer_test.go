// Copyright 2026 The vmtest Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package report

import (
	"bytes"
	"testing"
)

func TestProducerSingleTest(t *testing.T) {
	var buf bytes.Buffer
	p := NewProducer(&buf)
	p.Plan(1)
	p.Ok(true, "- this test passed")
	want := "TAP version 13\n1..1\nok 1 - this test passed\n"
	if buf.String() != want {
		t.Fatalf("got %q, want %q", buf.String(), want)
	}
}

func TestProducerTodoAndSkip(t *testing.T) {
	var buf bytes.Buffer
	p := NewProducer(&buf)
	p.Plan(4)
	p.Skip().Ok(true, "implement this test")
	p.Todo().Ok(false, "oh no!")
	p.Skip().Ok(false, "skipped another")
	p.Todo().Skip().Todo().Ok(true, "please don't write code like this")

	want := "TAP version 13\n1..4\n" +
		"ok 1 # SKIP implement this test\n" +
		"not ok 2 # TODO oh no!\n" +
		"not ok 3 # SKIP skipped another\n" +
		"ok 4 # TODO please don't write code like this\n"
	if buf.String() != want {
		t.Fatalf("got %q, want %q", buf.String(), want)
	}
}

func TestProducerOkWithoutDescription(t *testing.T) {
	var buf bytes.Buffer
	p := NewProducer(&buf)
	p.Plan(2)
	p.Ok(true, "- this test passed")
	p.Ok(false, "")
	want := "TAP version 13\n1..2\nok 1 - this test passed\nnot ok 2\n"
	if buf.String() != want {
		t.Fatalf("got %q, want %q", buf.String(), want)
	}
}
