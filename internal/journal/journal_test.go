// Copyright 2026 The vmtest Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package journal

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kr/pretty"
)

func TestStartedTransitionsToRetriedOnRestart(t *testing.T) {
	j := New(context.Background(), t.TempDir())
	if code := j.Started("vanilla:a.sh"); code != STARTED {
		t.Fatalf("got %v, want STARTED", code)
	}
	if code := j.Started("vanilla:a.sh"); code != RETRIED {
		t.Fatalf("got %v, want RETRIED on second start", code)
	}
}

func TestDoneReplacesStarted(t *testing.T) {
	j := New(context.Background(), t.TempDir())
	j.Started("vanilla:a.sh")
	j.Done("vanilla:a.sh", PASSED)
	if !j.IsDone("vanilla:a.sh") {
		t.Fatalf("expected entry to be done")
	}
	if j.Count(PASSED) != 1 {
		t.Fatalf("expected 1 passed entry")
	}
}

func TestIsDoneTreatsInterruptedAsResumable(t *testing.T) {
	j := New(context.Background(), t.TempDir())
	j.Started("vanilla:a.sh")
	j.Done("vanilla:a.sh", INTERRUPTED)
	if j.IsDone("vanilla:a.sh") {
		t.Fatalf("expected an interrupted entry to not be done, so --continue retries it")
	}
	if j.Count(INTERRUPTED) != 1 {
		t.Fatalf("expected 1 interrupted entry")
	}
}

func TestSyncWritesJournalAndList(t *testing.T) {
	dir := t.TempDir()
	j := New(context.Background(), dir)
	j.Started("vanilla:a.sh")
	j.Done("vanilla:a.sh", PASSED)
	j.Started("vanilla:b.sh")
	if err := j.Sync(); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	journalBytes, err := os.ReadFile(filepath.Join(dir, "journal"))
	if err != nil {
		t.Fatal(err)
	}
	want := "vanilla:a.sh passed\nvanilla:b.sh started\n"
	if string(journalBytes) != want {
		t.Fatalf("journal = %q, want %q", journalBytes, want)
	}

	listBytes, err := os.ReadFile(filepath.Join(dir, "list"))
	if err != nil {
		t.Fatal(err)
	}
	if string(listBytes) != want {
		t.Fatalf("list = %q, want %q", listBytes, want)
	}
}

func TestResumeReplaysJournalInOrder(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "journal"),
		[]byte("t1 passed\nt2 started\nt2 unknown\n"), 0644); err != nil {
		t.Fatal(err)
	}
	j := New(context.Background(), dir)
	if err := j.Read(); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !j.IsDone("t1") {
		t.Fatalf("expected t1 done")
	}
	if j.IsDone("t2") {
		t.Fatalf("expected t2 (unknown, last entry wins) to not be done")
	}
}

func TestConsecutiveTimeoutsResetsOnOtherResult(t *testing.T) {
	j := New(context.Background(), t.TempDir())
	j.Started("a")
	j.Done("a", TIMEOUT)
	if j.ConsecutiveTimeouts() != 1 {
		t.Fatalf("got %d, want 1", j.ConsecutiveTimeouts())
	}
	j.Started("b")
	j.Done("b", TIMEOUT)
	if j.ConsecutiveTimeouts() != 2 {
		t.Fatalf("got %d, want 2", j.ConsecutiveTimeouts())
	}
	j.Started("c")
	j.Done("c", PASSED)
	if j.ConsecutiveTimeouts() != 0 {
		t.Fatalf("got %d, want 0 after non-timeout result", j.ConsecutiveTimeouts())
	}
}

func TestBannerGroupsTotals(t *testing.T) {
	j := New(context.Background(), t.TempDir())
	for i, c := range []Code{PASSED, PASSED, SKIPPED, FAILED} {
		id := c.Word() + string(rune('a'+i))
		j.Started(id)
		j.Done(id, c)
	}
	var buf bytes.Buffer
	j.Banner(&buf)
	want := "4 tests: 2 passed, 1 skipped, 0 broken, 1 failed\n"
	if buf.String() != want {
		t.Fatalf("got %q, want %q", buf.String(), want)
	}
}

func TestFailureDetailsExcludesSkipped(t *testing.T) {
	j := New(context.Background(), t.TempDir())
	for i, c := range []Code{PASSED, SKIPPED, FAILED, TIMEOUT} {
		id := c.Word() + string(rune('a'+i))
		j.Started(id)
		j.Done(id, c)
	}
	var buf bytes.Buffer
	j.FailureDetails(&buf)
	got := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	want := []string{"failed failedc", "timeout timeoutd"}
	if len(got) != len(want) {
		t.Fatalf("FailureDetails lines mismatch:\n%s", pretty.Sprint(struct{ Got, Want []string }{got, want}))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("FailureDetails lines mismatch:\n%s", pretty.Sprint(struct{ Got, Want []string }{got, want}))
		}
	}
}

func TestDetailsSkipsPassed(t *testing.T) {
	j := New(context.Background(), t.TempDir())
	j.Started("ok")
	j.Done("ok", PASSED)
	j.Started("bad")
	j.Done("bad", FAILED)
	var buf bytes.Buffer
	j.Details(&buf)
	if buf.String() != "failed bad\n" {
		t.Fatalf("got %q", buf.String())
	}
}
