// Copyright 2026 The vmtest Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package testcase

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.vmtest.dev/runner/internal/journal"
	"go.vmtest.dev/runner/internal/options"
	"go.vmtest.dev/runner/internal/progress"
	"go.vmtest.dev/runner/internal/sigplane"
)

func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0755); err != nil {
		t.Fatal(err)
	}
	return path
}

func baseOpts(t *testing.T) *options.Options {
	t.Helper()
	dir := t.TempDir()
	return &options.Options{
		TestDir:        dir,
		OutDir:         dir,
		WorkDir:        dir,
		Timeout:        time.Minute,
		FlavourVarName: "TEST_FLAVOUR",
	}
}

// runToCompletion drives a TestCase's Run/Finished loop with tight ticks,
// the way a single-slot, non-interactive supervisor would, and returns the
// recorded journal code.
func runToCompletion(t *testing.T, tc *TestCase, j *journal.Journal, id string) journal.Code {
	t.Helper()
	ctx := context.Background()
	if err := tc.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	deadline := time.Now().Add(30 * time.Second)
	for time.Now().Before(deadline) {
		running, err := tc.Finished(ctx, 50*time.Millisecond)
		if err != nil {
			t.Fatalf("Finished: %v", err)
		}
		if !running {
			break
		}
	}
	if !j.IsDone(id) {
		t.Fatalf("test %s did not finish within the deadline", id)
	}
	for _, c := range []journal.Code{journal.PASSED, journal.FAILED, journal.SKIPPED, journal.TIMEOUT, journal.INTERRUPTED} {
		if j.Count(c) == 1 {
			return c
		}
	}
	t.Fatalf("no terminal code recorded for %s", id)
	return journal.UNKNOWN
}

func newCase(t *testing.T, opts *options.Options, scriptPath string, slot int) (*TestCase, *journal.Journal, string) {
	t.Helper()
	id := Identity{Flavour: "vanilla", Path: filepath.Base(scriptPath)}
	j := journal.New(context.Background(), opts.OutDir)
	p := progress.New(os.Stdout, progress.Quiet, 1)
	plane := &sigplane.Plane{}
	tc := New(id, scriptPath, "", slot, opts, j, p, plane)
	return tc, j, id.Key()
}

func TestPassExitCode(t *testing.T) {
	opts := baseOpts(t)
	script := writeScript(t, opts.TestDir, "a.sh", "exit 0\n")
	tc, j, id := newCase(t, opts, script, 0)
	if code := runToCompletion(t, tc, j, id); code != journal.PASSED {
		t.Fatalf("got %v, want PASSED", code)
	}
}

func TestFailExitCode(t *testing.T) {
	opts := baseOpts(t)
	script := writeScript(t, opts.TestDir, "b.sh", "exit 1\n")
	tc, j, id := newCase(t, opts, script, 0)
	if code := runToCompletion(t, tc, j, id); code != journal.FAILED {
		t.Fatalf("got %v, want FAILED", code)
	}
}

func TestSkipExitCode(t *testing.T) {
	opts := baseOpts(t)
	script := writeScript(t, opts.TestDir, "c.sh", "exit 200\n")
	tc, j, id := newCase(t, opts, script, 0)
	if code := runToCompletion(t, tc, j, id); code != journal.SKIPPED {
		t.Fatalf("got %v, want SKIPPED", code)
	}
}

func TestOutputCapturedToLogFile(t *testing.T) {
	opts := baseOpts(t)
	script := writeScript(t, opts.TestDir, "d.sh", "echo hi\nexit 0\n")
	tc, j, id := newCase(t, opts, script, 0)
	if code := runToCompletion(t, tc, j, id); code != journal.PASSED {
		t.Fatalf("got %v, want PASSED", code)
	}
	logPath := filepath.Join(opts.OutDir, Identity{Flavour: "vanilla", Path: "d.sh"}.LogFileName())
	got, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	if !strings.Contains(string(got), "hi\n") {
		t.Fatalf("log file %q missing captured output, got %q", logPath, got)
	}
}

func TestInactivityTimeout(t *testing.T) {
	opts := baseOpts(t)
	opts.Timeout = time.Second
	script := writeScript(t, opts.TestDir, "hang.sh", "sleep 30\n")
	tc, j, id := newCase(t, opts, script, 0)
	if code := runToCompletion(t, tc, j, id); code != journal.TIMEOUT {
		t.Fatalf("got %v, want TIMEOUT", code)
	}
}

func TestNonexistentInterpreterClassifiesFailed(t *testing.T) {
	opts := baseOpts(t)
	script := writeScript(t, opts.TestDir, "e.sh", "exit 0\n")
	id := Identity{Flavour: "vanilla", Path: "e.sh"}
	j := journal.New(context.Background(), opts.OutDir)
	p := progress.New(os.Stdout, progress.Quiet, 1)
	plane := &sigplane.Plane{}
	tc := New(id, script, "/nonexistent/interpreter", 0, opts, j, p, plane)

	code := runToCompletion(t, tc, j, id.Key())
	if code != journal.FAILED {
		t.Fatalf("got %v, want FAILED for a missing interpreter", code)
	}
}
