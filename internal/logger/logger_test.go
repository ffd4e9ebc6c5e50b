// Copyright 2026 The vmtest Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package logger

import (
	"bytes"
	"context"
	"os"
	"strings"
	"testing"

	"go.vmtest.dev/runner/internal/color"
)

func TestWithContext(t *testing.T) {
	l := NewLogger(DebugLevel, color.NewColor(color.ColorNever), os.Stdout, os.Stderr, "")
	ctx := context.Background()
	if v, ok := ctx.Value(globalLoggerKeyType{}).(*Logger); ok || v != nil {
		t.Fatalf("default context should not carry a logger")
	}
	ctx = WithLogger(ctx, l)
	if got := FromContext(ctx); got != l {
		t.Fatalf("FromContext did not return the attached logger")
	}
}

func TestLogLevelSet(t *testing.T) {
	var level LogLevel
	if err := level.Set("warn"); err != nil {
		t.Fatal(err)
	}
	if level != WarnLevel {
		t.Fatalf("got %v, want WarnLevel", level)
	}
	if err := level.Set("bogus"); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}

func TestLevelFiltering(t *testing.T) {
	out := new(bytes.Buffer)
	errOut := new(bytes.Buffer)
	l := NewLogger(WarnLevel, color.NewColor(color.ColorNever), out, errOut, "")

	l.Infof("should not appear")
	l.Warnf("should appear")
	l.Errorf("also appears")

	if out.Len() != 0 {
		t.Fatalf("expected Infof to be suppressed, got %q", out.String())
	}
	if !strings.Contains(errOut.String(), "should appear") || !strings.Contains(errOut.String(), "also appears") {
		t.Fatalf("expected warn/error lines, got %q", errOut.String())
	}
}
