// Copyright 2026 The vmtest Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package journal implements the durable, append+rewrite-on-every-change
// test result store: one `journal` delta log and one fully-rewritten
// `list` companion per output directory.
package journal

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"go.vmtest.dev/runner/internal/osmisc"
	"go.vmtest.dev/runner/internal/retry"
)

// Code is a test result code.
type Code int

const (
	UNKNOWN Code = iota
	STARTED
	RETRIED
	FAILED
	INTERRUPTED
	KNOWNFAIL
	PASSED
	SKIPPED
	TIMEOUT
	WARNED
)

// Word returns the on-disk representation of a Code. RETRIED and
// KNOWNFAIL have no word of their own and round-trip as "unknown" — the
// emitter only has words for the lower-cased enum names that round-trip.
func (c Code) Word() string {
	switch c {
	case STARTED:
		return "started"
	case FAILED:
		return "failed"
	case INTERRUPTED:
		return "interrupted"
	case PASSED:
		return "passed"
	case SKIPPED:
		return "skipped"
	case TIMEOUT:
		return "timeout"
	case WARNED:
		return "warnings"
	default:
		return "unknown"
	}
}

func parseWord(w string) Code {
	switch w {
	case "started":
		return STARTED
	case "failed":
		return FAILED
	case "interrupted":
		return INTERRUPTED
	case "passed":
		return PASSED
	case "skipped":
		return SKIPPED
	case "timeout":
		return TIMEOUT
	case "warnings":
		return WARNED
	default:
		return UNKNOWN
	}
}

// Done reports whether code represents a finished, non-resumable result:
// any code other than STARTED, RETRIED, UNKNOWN, or INTERRUPTED. An
// interrupted test did not run to completion and is not considered done.
func (c Code) Done() bool {
	return c != STARTED && c != RETRIED && c != UNKNOWN && c != INTERRUPTED
}

// Journal is the durable test-result store. It is the supervisor's
// exclusive responsibility; nothing else should mutate it concurrently.
type Journal struct {
	ctx       context.Context
	dir       string
	status    map[string]Code
	order     []string // insertion order, for deterministic list/details output
	timeouts  int
	journalF  *os.File
	pending   map[string]Code // entries changed since the last sync
}

// New returns a Journal writing journal/list files under dir. It does not
// read any existing files; call Read to resume from a prior run.
func New(ctx context.Context, dir string) *Journal {
	return &Journal{
		ctx:     ctx,
		dir:     dir,
		status:  make(map[string]Code),
		pending: make(map[string]Code),
	}
}

func (j *Journal) journalPath() string { return j.dir + "/journal" }
func (j *Journal) listPath() string    { return j.dir + "/list" }

// Started records id as STARTED, or RETRIED if it was already STARTED
// (the resume-after-crash case), and returns the code recorded.
func (j *Journal) Started(id string) Code {
	code := STARTED
	if prev, ok := j.status[id]; ok && prev == STARTED {
		code = RETRIED
	}
	if _, seen := j.status[id]; !seen {
		j.order = append(j.order, id)
	}
	j.status[id] = code
	j.pending[id] = code
	return code
}

// Done records a terminal code for id, replacing whatever preceded it, and
// updates the consecutive-timeout counter used by --fatal-timeouts.
func (j *Journal) Done(id string, code Code) {
	if _, seen := j.status[id]; !seen {
		j.order = append(j.order, id)
	}
	j.status[id] = code
	j.pending[id] = code
	if code == TIMEOUT {
		j.timeouts++
	} else {
		j.timeouts = 0
	}
}

// IsDone reports whether id has a terminal status: present, and not
// STARTED, RETRIED, UNKNOWN, or INTERRUPTED. An interrupted test is retried on the
// next --continue run rather than skipped.
func (j *Journal) IsDone(id string) bool {
	code, ok := j.status[id]
	if !ok {
		return false
	}
	return code.Done()
}

// Count returns the number of entries currently recorded with code.
func (j *Journal) Count(code Code) int {
	n := 0
	for _, c := range j.status {
		if c == code {
			n++
		}
	}
	return n
}

// ConsecutiveTimeouts returns the number of TIMEOUT results recorded back
// to back since the last non-TIMEOUT Done call.
func (j *Journal) ConsecutiveTimeouts() int { return j.timeouts }

// Read replays the journal delta log at the Journal's configured path,
// rebuilding the in-memory status map. Later entries overwrite earlier
// ones for the same id.
func (j *Journal) Read() error {
	return j.ReadPath(j.journalPath())
}

// ReadPath replays an arbitrary journal-format file, for tests and tools
// that want to inspect a journal without owning it.
func (j *Journal) ReadPath(path string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		idx := strings.LastIndex(line, " ")
		if idx < 0 {
			continue
		}
		id, word := line[:idx], line[idx+1:]
		if _, seen := j.status[id]; !seen {
			j.order = append(j.order, id)
		}
		j.status[id] = parseWord(word)
	}
	return scanner.Err()
}

// Sync appends changed entries to the journal file, fsyncs, rewrites the
// list file, and fsyncs again — the discipline a durable result store
// requires after every mutation. It retries the fsync calls against
// EINTR.
func (j *Journal) Sync() error {
	if len(j.pending) == 0 {
		return nil
	}
	if j.journalF == nil {
		f, err := osmisc.OpenAppend(j.journalPath())
		if err != nil {
			return err
		}
		j.journalF = f
	}
	var b strings.Builder
	// Deterministic order for the pending batch: insertion order of
	// j.order restricted to ids present in pending.
	for _, id := range j.order {
		code, ok := j.pending[id]
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "%s %s\n", id, code.Word())
	}
	if _, err := j.journalF.WriteString(b.String()); err != nil {
		return err
	}
	if err := fsyncRetry(j.ctx, j.journalF); err != nil {
		return err
	}
	j.pending = make(map[string]Code)

	if err := j.rewriteList(); err != nil {
		return err
	}
	return nil
}

func (j *Journal) rewriteList() error {
	f, err := osmisc.CreateFile(j.listPath())
	if err != nil {
		return err
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	for _, id := range j.order {
		fmt.Fprintf(w, "%s %s\n", id, j.status[id].Word())
	}
	if err := w.Flush(); err != nil {
		return err
	}
	return fsyncRetry(j.ctx, f)
}

func fsyncRetry(ctx context.Context, f *os.File) error {
	return retry.Retry(ctx, retry.WithMaxAttempts(&retry.ZeroBackoff{}, 3), func() error {
		return f.Sync()
	}, nil)
}

// Banner writes the totals line grouped as passed/skipped/(timeout+warned)/
// failed.
func (j *Journal) Banner(w io.Writer) {
	total := len(j.status)
	passed := j.Count(PASSED)
	skipped := j.Count(SKIPPED)
	broken := j.Count(TIMEOUT) + j.Count(WARNED)
	failed := j.Count(FAILED) + j.Count(INTERRUPTED) + j.Count(KNOWNFAIL)
	fmt.Fprintf(w, "%d tests: %d passed, %d skipped, %d broken, %d failed\n",
		total, passed, skipped, broken, failed)
}

// Details writes one line per entry whose code is not PASSED, in
// insertion order.
func (j *Journal) Details(w io.Writer) {
	for _, id := range j.order {
		code := j.status[id]
		if code == PASSED {
			continue
		}
		fmt.Fprintf(w, "%s %s\n", code.Word(), id)
	}
}

// FailureDetails writes one line per entry that reached a result worth
// reporting at the end of a run -- everything except STARTED/RETRIED (not
// yet finished), UNKNOWN, PASSED, and SKIPPED -- in insertion order. This
// intentionally includes INTERRUPTED even though Code.Done excludes it:
// an interrupted test is still worth surfacing here, it just isn't
// skipped on the next --continue run.
func (j *Journal) FailureDetails(w io.Writer) {
	for _, id := range j.order {
		code := j.status[id]
		switch code {
		case STARTED, RETRIED, UNKNOWN, PASSED, SKIPPED:
			continue
		}
		fmt.Fprintf(w, "%s %s\n", code.Word(), id)
	}
}

// Status returns the currently recorded code for id, if any.
func (j *Journal) Status(id string) (Code, bool) {
	code, ok := j.status[id]
	return code, ok
}

// Unlink removes the backing journal file, used when the supervisor is
// starting a fresh (non --continue) run. A missing file is not an error.
func (j *Journal) Unlink() error {
	err := os.Remove(j.journalPath())
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// AllDone reports whether every recorded entry has a terminal status.
func (j *Journal) AllDone() bool {
	for _, c := range j.status {
		if c == STARTED || c == RETRIED {
			return false
		}
	}
	return true
}

// Failed reports whether the run should be considered failed: any entry
// other than PASSED/SKIPPED/STARTED is present. Used to compute the final
// exit code alongside the die/fatal-signal flags.
func (j *Journal) Failed() bool {
	for _, c := range j.status {
		switch c {
		case PASSED, SKIPPED, STARTED:
		default:
			return true
		}
	}
	return false
}

