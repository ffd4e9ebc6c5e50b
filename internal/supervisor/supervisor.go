// Copyright 2026 The vmtest Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package supervisor implements the runner's top-level control loop:
// discovery and ordering of the test queue, the cooperative slot scheduler,
// the global timers, and the end-of-run banner/exit code.
package supervisor

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"go.vmtest.dev/runner/internal/discover"
	"go.vmtest.dev/runner/internal/journal"
	"go.vmtest.dev/runner/internal/logger"
	"go.vmtest.dev/runner/internal/options"
	"go.vmtest.dev/runner/internal/progress"
	"go.vmtest.dev/runner/internal/report"
	"go.vmtest.dev/runner/internal/sigplane"
	"go.vmtest.dev/runner/internal/testcase"
)

var stemSplit = regexp.MustCompile(`[-_ .]+`)

// caseSpec is everything Setup learns about one (flavour, file) pair before
// a slot -- and therefore a concrete *testcase.TestCase -- is assigned.
type caseSpec struct {
	id          testcase.Identity
	filename    string
	interpreter string
	key         sortKey
}

// sortKey is the per-file ordering vector, split into its three parts
// rather than one flat slice: hints is always the same length across every
// case (one element per --sort-hint regex, compared element-wise), while
// stem is the variable-length, filename-stem breakdown that must be
// compared with a shorter-is-a-prefix rule -- folding the filename into
// that same list would sort "test-special.sh" before "test.sh", since
// "test.sh" the literal string does not compare the way the filename's
// role as a pure tiebreaker requires.
type sortKey struct {
	hints    []string
	stem     []string
	filename string
}

// Supervisor owns the test queue, the journal, the progress printer, and
// the signal plane for one run of the suite.
type Supervisor struct {
	opts   *options.Options
	out    io.Writer
	prog   *progress.Progress
	plane  *sigplane.Plane
	jrnl   *journal.Journal
	report *report.Producer

	queue []caseSpec
	slots []*testcase.TestCase

	suiteStart time.Time
	die        bool
}

// New constructs a Supervisor. out is where the banner and backlog flushes
// go (normally os.Stdout); a TAP report goes to the Producer given to
// SetReport.
func New(opts *options.Options, out io.Writer, plane *sigplane.Plane) *Supervisor {
	mode := progress.Quiet
	switch {
	case opts.Interactive:
		mode = progress.Interactive
	case opts.Batch:
		mode = progress.Batch
	}
	return &Supervisor{
		opts:  opts,
		out:   out,
		prog:  progress.New(out, mode, opts.Jobs),
		plane: plane,
		jrnl:  journal.New(context.Background(), opts.OutDir),
		slots: make([]*testcase.TestCase, opts.Jobs),
	}
}

// Setup builds the ordered test queue and resumes or resets the journal.
func (s *Supervisor) Setup() error {
	files, err := discover.Walk(s.opts.TestDir)
	if err != nil {
		return fmt.Errorf("listing %s: %w", s.opts.TestDir, err)
	}

	for _, flavour := range s.opts.Flavours {
		if len(s.opts.FlavourFilter) > 0 && !anyMatch(s.opts.FlavourFilter, flavour) {
			continue
		}
		for _, rel := range files {
			if excludedDir(rel) {
				continue
			}
			interpreter, runnable := s.classifyExt(rel)
			if !runnable {
				continue
			}
			if !passesFilters(s.opts, rel) {
				continue
			}
			id := testcase.Identity{Flavour: flavour, Path: rel}
			s.queue = append(s.queue, caseSpec{
				id:          id,
				filename:    filepath.Join(s.opts.TestDir, rel),
				interpreter: interpreter,
				key:         buildSortKey(s.opts.SortHints, rel),
			})
		}
	}

	sort.SliceStable(s.queue, func(i, j int) bool {
		return lessKey(s.queue[i].key, s.queue[j].key)
	})

	if s.opts.Continue {
		if err := s.jrnl.Read(); err != nil {
			return fmt.Errorf("reading journal: %w", err)
		}
	} else if err := s.jrnl.Unlink(); err != nil {
		return fmt.Errorf("resetting journal: %w", err)
	}

	return nil
}

// classifyExt reports the interpreter script (absolute path, or "" for
// bash) a file should run under, and whether it is runnable at all.
func (s *Supervisor) classifyExt(rel string) (interpreter string, runnable bool) {
	ext := strings.TrimPrefix(filepath.Ext(rel), ".")
	if ext == "sh" {
		return "", true
	}
	for _, in := range s.opts.Interpreters {
		if in.Ext == ext {
			return filepath.Join(s.opts.TestDir, in.Script), true
		}
	}
	return "", false
}

// excludedDir reports whether rel has a "lib" or "data" path component,
// other than as its own filename.
func excludedDir(rel string) bool {
	dir := filepath.Dir(rel)
	if dir == "." {
		return false
	}
	for _, part := range strings.Split(dir, string(filepath.Separator)) {
		if part == "lib" || part == "data" {
			return true
		}
	}
	return false
}

// passesFilters applies the --only/--skip regex filters. --only is an
// include filter: with no patterns everything passes, otherwise an entry
// must match at least one. --skip is the complementary exclude filter: an
// entry that matches any skip pattern is dropped.
func passesFilters(opts *options.Options, rel string) bool {
	if len(opts.Only) > 0 && !anyMatch(opts.Only, rel) {
		return false
	}
	if anyMatch(opts.Skip, rel) {
		return false
	}
	return true
}

func anyMatch(patterns []*regexp.Regexp, s string) bool {
	for _, p := range patterns {
		if p.MatchString(s) {
			return true
		}
	}
	return false
}

// buildSortKey builds the ordering vector: one element per --sort-hint
// regex (its first capture group, else the whole match, else empty), then
// the filename stem split on [-_ .], then the filename as a final
// tiebreaker.
func buildSortKey(hints []*regexp.Regexp, rel string) sortKey {
	var k sortKey
	for _, h := range hints {
		m := h.FindStringSubmatch(rel)
		switch {
		case m == nil:
			k.hints = append(k.hints, "")
		case len(m) > 1 && m[1] != "":
			k.hints = append(k.hints, m[1])
		default:
			k.hints = append(k.hints, m[0])
		}
	}
	base := filepath.Base(rel)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	k.stem = stemSplit.Split(stem, -1)
	k.filename = base
	return k
}

// lessKey reports whether a sorts before b, per buildSortKey's three-part
// vector: hints compared element-wise (fixed length), then stem compared
// with a shorter-is-a-prefix rule, then filename as the final tiebreaker.
func lessKey(a, b sortKey) bool {
	for i := 0; i < len(a.hints) && i < len(b.hints); i++ {
		if a.hints[i] != b.hints[i] {
			return a.hints[i] < b.hints[i]
		}
	}
	for i := 0; i < len(a.stem) && i < len(b.stem); i++ {
		if a.stem[i] != b.stem[i] {
			return a.stem[i] < b.stem[i]
		}
	}
	if len(a.stem) != len(b.stem) {
		return len(a.stem) < len(b.stem)
	}
	return a.filename < b.filename
}

// Run drives the queue to completion and returns the process exit code.
func (s *Supervisor) Run(ctx context.Context) int {
	s.suiteStart = time.Now()

	for i := range s.queue {
		c := &s.queue[i]
		if s.opts.Continue && s.jrnl.IsDone(c.id.Key()) {
			continue
		}

		slot, stop := s.waitForFreeSlot(ctx)
		if stop {
			s.die = true
			break
		}

		tc := testcase.New(c.id, c.filename, c.interpreter, slot, s.opts, s.jrnl, s.prog, s.plane)
		if err := tc.Run(ctx); err != nil {
			logger.FromContext(ctx).Errorf("starting %s: %v", c.id.Key(), err)
			continue
		}
		s.slots[slot] = tc

		if s.checkGlobalTimers(ctx) {
			s.die = true
			break
		}
	}

	s.drainAll(ctx)

	s.prog.Flush()
	s.jrnl.Banner(s.out)
	s.jrnl.FailureDetails(s.out)
	if s.report != nil {
		s.emitReport()
	}

	if s.die || s.plane.FatalSignal() || s.jrnl.Failed() {
		return 1
	}
	return 0
}

// SetReport attaches a TAP13 producer; Run will emit a plan and one result
// line per queued case after the banner.
func (s *Supervisor) SetReport(p *report.Producer) {
	s.report = p
}

func (s *Supervisor) emitReport() {
	s.report.Plan(len(s.queue))
	for _, c := range s.queue {
		code, ok := s.jrnl.Status(c.id.Key())
		if !ok {
			s.report.Skip().Ok(false, c.id.Key()+": not run")
			continue
		}
		switch code {
		case journal.PASSED:
			s.report.Ok(true, c.id.Key())
		case journal.SKIPPED:
			s.report.Skip().Ok(true, c.id.Key())
		default:
			s.report.Ok(false, c.id.Key()+": "+code.Word())
		}
	}
}

// waitForFreeSlot gives each occupied slot one non-blocking Finished tick
// -- 500ms for the first slot checked in a sweep, 0ms for the rest, so the
// loop rotates fairly across slots -- until one is free or the run should
// stop.
func (s *Supervisor) waitForFreeSlot(ctx context.Context) (slot int, stop bool) {
	for {
		first := true
		for i, tc := range s.slots {
			if tc == nil {
				continue
			}
			wait := time.Duration(0)
			if first {
				wait = 500 * time.Millisecond
				first = false
			}
			running, err := tc.Finished(ctx, wait)
			if err != nil {
				logger.FromContext(ctx).Errorf("monitoring %s: %v", tc.ID(), err)
			}
			if !running {
				s.slots[i] = nil
				s.onFinished(ctx, tc)
			}
		}
		if s.checkGlobalTimers(ctx) {
			return -1, true
		}
		for i, tc := range s.slots {
			if tc == nil {
				return i, false
			}
		}
	}
}

// onFinished applies the --fatal-timeouts rule: two consecutive TIMEOUT
// results re-mark the offending test STARTED (so --continue retries it
// instead of treating it as done) and put the runner to sleep before it
// dies.
func (s *Supervisor) onFinished(ctx context.Context, tc *testcase.TestCase) {
	if !s.opts.FatalTimeouts || tc.Result() != journal.TIMEOUT {
		return
	}
	if s.jrnl.ConsecutiveTimeouts() < 2 {
		return
	}
	s.jrnl.Started(tc.ID())
	if err := s.jrnl.Sync(); err != nil {
		logger.FromContext(ctx).Errorf("journal sync: %v", err)
	}
	logger.FromContext(ctx).Errorf("two consecutive timeouts, halting after a cooldown sleep")
	time.Sleep(3600 * time.Second)
	s.die = true
}

// checkGlobalTimers folds in the total-timeout budget and fatal-signal
// flag, returning true if the run should stop.
func (s *Supervisor) checkGlobalTimers(ctx context.Context) bool {
	if s.die {
		return true
	}
	if time.Since(s.suiteStart) > s.opts.TotalTimeout {
		logger.FromContext(ctx).Errorf("total timeout of %s exceeded", s.opts.TotalTimeout)
		s.die = true
	}
	return s.die || s.plane.FatalSignal()
}

// drainAll finishes every still-running slot after the queue is exhausted
// or the run is dying, ignoring further fatal-timeout/total-timeout
// escalation -- the queue is already closed.
func (s *Supervisor) drainAll(ctx context.Context) {
	for {
		anyRunning := false
		for i, tc := range s.slots {
			if tc == nil {
				continue
			}
			running, err := tc.Finished(ctx, 100*time.Millisecond)
			if err != nil {
				logger.FromContext(ctx).Errorf("draining %s: %v", tc.ID(), err)
			}
			if !running {
				s.slots[i] = nil
				continue
			}
			anyRunning = true
		}
		if !anyRunning {
			return
		}
	}
}

