// Copyright 2026 The vmtest Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package testcase implements one test invocation: fork the child over a
// socketpair, wire its IO hub, run the monitor loop, and translate its exit
// into a Journal result. Process control is built on
// golang.org/x/sys/unix (Socketpair, Wait4 WNOHANG, Select,
// Kill) rather than a literal fork()/exec(), since Go has no safe way to
// expose raw fork to user code. os/exec.Cmd.Start does the fork+exec, but
// reaping bypasses cmd.Wait in favor of direct Wait4 so the monitor loop can
// poll WNOHANG on its own schedule.
package testcase

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"go.vmtest.dev/runner/internal/clock"
	"go.vmtest.dev/runner/internal/format"
	"go.vmtest.dev/runner/internal/iohub"
	"go.vmtest.dev/runner/internal/journal"
	"go.vmtest.dev/runner/internal/logger"
	"go.vmtest.dev/runner/internal/options"
	"go.vmtest.dev/runner/internal/progress"
	"go.vmtest.dev/runner/internal/sigplane"
	"go.vmtest.dev/runner/internal/sink"
	"go.vmtest.dev/runner/internal/source"
)

// Identity is a test's (flavour, path) pair.
type Identity struct {
	Flavour string
	Path    string
}

// Key is the "flavour:path" form used for display and journaling.
func (id Identity) Key() string {
	return id.Flavour + ":" + id.Path
}

// LogFileName is the per-test log file name, with '/' in the path mapped
// to '_'.
func (id Identity) LogFileName() string {
	return id.Flavour + ":" + strings.ReplaceAll(id.Path, "/", "_") + ".txt"
}

// heartbeatInterval and inactivityGrace are the fixed durations the
// monitor loop uses to detect a silent or wedged child.
const (
	heartbeatInterval = 20 * time.Second
	inactivityGrace   = 5 * time.Second
	pulseInterval     = time.Second
)

// TestCase is one test invocation, constructed with metadata only until
// Run is called.
type TestCase struct {
	id          Identity
	filename    string
	interpreter string // absolute path to an interpreter script, or "" for bash
	slot        int

	opts    *options.Options
	journal *journal.Journal
	prog    *progress.Progress
	plane   *sigplane.Plane

	hub         *iohub.Hub
	bufSink     *sink.BufSink
	fileSink    *sink.FileSink
	childSource *source.ChildSource

	cmd  *exec.Cmd
	pgid int

	start         time.Time
	end           time.Time
	silentStart   time.Time
	lastPulse     time.Time
	lastHeartbeat time.Time

	wstatus    unix.WaitStatus
	rusage     unix.Rusage
	reaped     bool
	timeout    bool
	execFailed bool
	lastCode   journal.Code
}

// New constructs a TestCase. filename is the absolute path to the script;
// interpreter, if non-empty, is the absolute path to the interpreter script
// that should be exec'd with filename as its argument instead of bash.
func New(id Identity, filename, interpreter string, slot int, opts *options.Options, j *journal.Journal, p *progress.Progress, plane *sigplane.Plane) *TestCase {
	return &TestCase{
		id:          id,
		filename:    filename,
		interpreter: interpreter,
		slot:        slot,
		opts:        opts,
		journal:     j,
		prog:        p,
		plane:       plane,
	}
}

// Pretty is the human-readable name used in progress lines.
func (tc *TestCase) Pretty() string { return tc.id.Key() }

// ID is the journal/log-file identifier.
func (tc *TestCase) ID() string { return tc.id.Key() }

// Tag renders a result code the way the non-batch "Last" progress line
// prefixes it.
func (tc *TestCase) Tag(code journal.Code) string {
	return strings.ToUpper(code.Word())
}

// Result returns the code classify()/finish() recorded, valid only after
// Finished has returned running == false.
func (tc *TestCase) Result() journal.Code {
	return tc.lastCode
}

func (tc *TestCase) argv() []string {
	if tc.interpreter != "" {
		return []string{tc.interpreter, tc.filename}
	}
	return []string{"bash", "-noprofile", "-norc", tc.filename}
}

func (tc *TestCase) env() []string {
	env := append(os.Environ(),
		fmt.Sprintf("TEST_SLOT=%d", tc.slot),
		fmt.Sprintf("%s=%s", tc.opts.FlavourVarName, tc.id.Flavour),
	)
	return env
}

// Run creates the socketpair, forks+execs the child via os/exec, wires the
// IO hub and sinks, and marks the test STARTED. A returned error is a
// configuration-shaped failure for this one test (e.g. the interpreter
// binary doesn't exist); a failure to fork the runner process itself is
// fatal to the whole supervisor and exits the process directly with status
// 201.
func (tc *TestCase) Run(ctx context.Context) error {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		return fmt.Errorf("socketpair: %w", err)
	}
	parentFd, childFd := fds[0], fds[1]
	if err := unix.SetNonblock(parentFd, true); err != nil {
		unix.Close(parentFd)
		unix.Close(childFd)
		return fmt.Errorf("set nonblock: %w", err)
	}

	name := tc.argv()[0]
	args := tc.argv()[1:]
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = tc.opts.WorkDir
	cmd.Env = tc.env()
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	childFile := os.NewFile(uintptr(childFd), "testcase-child-socket")
	defer childFile.Close()

	if tc.opts.Interactive {
		cmd.Stdin = os.Stdin
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
	} else {
		devnull, err := os.Open(os.DevNull)
		if err != nil {
			unix.Close(parentFd)
			return fmt.Errorf("open %s: %w", os.DevNull, err)
		}
		defer devnull.Close()
		cmd.Stdin = devnull
		cmd.Stdout = childFile
		cmd.Stderr = childFile
	}

	var startErr error
	if err := cmd.Start(); err != nil {
		if !isExecFailure(err) {
			// os/exec resolves the binary and forks synchronously inside
			// Start; a failure that isn't plausibly "the interpreter/bash
			// binary itself doesn't exist" is a fatal fork failure (e.g.
			// the kernel refused to fork at all).
			unix.Close(parentFd)
			logger.FromContext(ctx).Errorf("fork/exec failed for %s: %v", tc.id.Key(), err)
			os.Exit(201)
			return nil // unreachable: os.Exit does not return
		}
		// Go's Start() reports a missing/unexecutable interpreter
		// synchronously, before any process exists to reap — there is no
		// literal "child exits 202" here. This is treated as that exit
		// code's equivalent: FAILED, without going fatal.
		unix.Close(parentFd)
		tc.execFailed = true
		startErr = err
	} else {
		tc.cmd = cmd
		tc.pgid = cmd.Process.Pid
		tc.plane.SetKillPID(tc.pgid)
		tc.childSource = source.NewChildSource(parentFd)
	}

	tc.hub = iohub.New()
	if tc.childSource != nil {
		tc.hub.AddSource(tc.childSource)
	}

	now := clock.Now(ctx)
	tc.start = now
	tc.silentStart = now
	tc.lastPulse = now
	tc.lastHeartbeat = now

	f := format.NewFormatter(tc.start)
	switch {
	case tc.opts.Verbose, tc.opts.Interactive:
		tc.hub.AddSink(sink.NewFdSink(ctx, os.Stdout, f))
	case tc.opts.Batch:
		// no replay sink in batch mode; the per-slot progress line is the
		// only live signal.
	default:
		tc.bufSink = sink.NewBufSink(ctx, f)
		tc.hub.AddSink(tc.bufSink)
	}

	logPath := tc.opts.OutDir + "/" + tc.id.LogFileName()
	tc.fileSink = sink.NewFileSink(ctx, logPath, f)
	tc.hub.AddSink(tc.fileSink)

	for _, path := range tc.opts.Watch {
		tc.hub.AddSource(source.NewFileSource(path))
	}
	if tc.opts.KMsg {
		tc.hub.AddSource(source.NewKMsg(ctx, tc.id.Key()))
	}

	if tc.execFailed {
		tc.hub.Push([]byte(fmt.Sprintf("exec failed: %v\n", startErr)))
	}

	tc.journal.Started(tc.id.Key())
	if err := tc.journal.Sync(); err != nil {
		logger.FromContext(ctx).Errorf("journal sync: %v", err)
	}
	return nil
}

// Monitor runs one tick of the monitor loop. It returns true if
// the test is still running, false once it has exited (or been timed out)
// and is ready for Finished to classify it.
func (tc *TestCase) Monitor(ctx context.Context, waitMsec time.Duration) (bool, error) {
	if tc.execFailed {
		tc.reaped = true
		tc.hub.Sync()
		return false, nil
	}

	now := clock.Now(ctx)

	// 1. Heartbeat.
	if tc.opts.Heartbeat != "" && now.Sub(tc.lastHeartbeat) >= heartbeatInterval {
		if f, err := os.OpenFile(tc.opts.Heartbeat, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644); err == nil {
			f.WriteString(".")
			f.Sync()
			f.Close()
		}
		tc.lastHeartbeat = now
	}

	// 2. Non-blocking reap.
	wpid, err := unix.Wait4(tc.pgid, &tc.wstatus, unix.WNOHANG, &tc.rusage)
	if err != nil && !errors.Is(err, unix.ECHILD) {
		return false, fmt.Errorf("wait4: %w", err)
	}
	if wpid == tc.pgid {
		tc.reaped = true
		tc.hub.Sync()
		return false, nil
	}

	// 3. Inactivity watchdog (non-interactive only).
	if !tc.opts.Interactive && now.Sub(tc.silentStart) > tc.opts.Timeout {
		tc.killForTimeout(ctx)
		return false, nil
	}

	// 4. Progress pulse.
	if !tc.opts.Verbose && !tc.opts.Interactive && !tc.opts.Batch && now.Sub(tc.lastPulse) >= pulseInterval {
		elapsed := now.Sub(tc.start)
		fmt.Fprintf(tc.prog.Stream(tc.slot, progress.Update), "### running: %s %s\n", tc.Pretty(), tc.TimeFmt(elapsed))
		tc.lastPulse = now
	}

	// 5. select on the hub's fds.
	var fdset unix.FdSet
	nfds := tc.hub.FdSet(&fdset)
	if nfds > 0 {
		tv := unix.NsecToTimeval(waitMsec.Nanoseconds())
		n, err := unix.Select(nfds, &fdset, nil, nil, &tv)
		if err != nil && !errors.Is(err, unix.EINTR) {
			return false, fmt.Errorf("select: %w", err)
		}
		if n > 0 {
			tc.silentStart = now
		}
	} else if waitMsec > 0 {
		time.Sleep(waitMsec)
	}

	// 6. Sync and continue running.
	tc.hub.Sync()
	return true, nil
}

func (tc *TestCase) killForTimeout(ctx context.Context) {
	unix.Kill(-tc.pgid, unix.SIGINT)
	time.Sleep(inactivityGrace)
	if unix.Kill(tc.pgid, 0) == nil {
		triggerSysrq()
		unix.Kill(-tc.pgid, unix.SIGKILL)
		unix.Wait4(tc.pgid, &tc.wstatus, 0, &tc.rusage)
	}
	tc.timeout = true
	tc.reaped = true
	tc.hub.Sync()
}

// triggerSysrq makes a best-effort attempt to force a sysrq 't' task dump
// before the final SIGKILL; failures (no /proc/sysrq-trigger, no
// permission) are silently ignored — this is a best-effort diagnostic
// dump, not a requirement.
func triggerSysrq() {
	f, err := os.OpenFile("/proc/sysrq-trigger", os.O_WRONLY, 0)
	if err != nil {
		return
	}
	defer f.Close()
	f.WriteString("t")
}

// Finished calls Monitor; if the test is still running it returns true.
// Otherwise it classifies the exit and records the result, returning false.
func (tc *TestCase) Finished(ctx context.Context, waitMsec time.Duration) (bool, error) {
	running, err := tc.Monitor(ctx, waitMsec)
	if err != nil {
		return false, err
	}
	if running {
		return true, nil
	}
	tc.finish(ctx, tc.classify())
	return false, nil
}

func (tc *TestCase) classify() journal.Code {
	if tc.execFailed {
		return journal.FAILED
	}
	if tc.timeout {
		return journal.TIMEOUT
	}
	switch {
	case tc.wstatus.Exited():
		switch tc.wstatus.ExitStatus() {
		case 0:
			return journal.PASSED
		case 200:
			return journal.SKIPPED
		default:
			return journal.FAILED
		}
	case tc.wstatus.Signaled():
		if tc.wstatus.Signal() == unix.SIGINT && tc.plane.Interrupt() {
			return journal.INTERRUPTED
		}
		return journal.FAILED
	default:
		return journal.FAILED
	}
}

func (tc *TestCase) finish(ctx context.Context, code journal.Code) {
	tc.end = clock.Now(ctx)
	tc.lastCode = code
	if code == journal.INTERRUPTED && tc.opts.Batch {
		tc.plane.Escalate()
	}

	tc.hub.Close()
	if tc.bufSink != nil && (code == journal.FAILED || code == journal.TIMEOUT) {
		tc.bufSink.Dump(os.Stdout)
	}

	tc.journal.Done(tc.id.Key(), code)
	if err := tc.journal.Sync(); err != nil {
		logger.FromContext(ctx).Errorf("journal sync: %v", err)
	}

	last := tc.prog.Stream(tc.slot, progress.Last)
	if tc.opts.Batch {
		label := tc.Pretty()
		width := 64
		dots := 1
		if pad := width - len(label) - 2; pad > dots {
			dots = pad
		}
		line := fmt.Sprintf("%s %s %s", label, strings.Repeat(".", dots), strings.ToUpper(code.Word()))
		if code == journal.PASSED {
			line += " " + tc.RusageLine()
		}
		fmt.Fprintln(last, line)
	} else {
		fmt.Fprintf(last, "%s %s\n", tc.Tag(code), tc.Pretty())
	}

	tc.hub.Clear()
	if tc.fileSink != nil {
		tc.fileSink.Close()
	}
	if tc.childSource != nil {
		tc.childSource.Close()
	}
	tc.plane.SetKillPID(0)
}

// TimeFmt renders d as "mm:ss".
func (tc *TestCase) TimeFmt(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d.Seconds())
	return fmt.Sprintf("%2d:%02d", total/60, total%60)
}

// RusageLine renders the wall/user/sys/RSS/IOPS summary appended to a
// PASSED batch-mode result line.
func (tc *TestCase) RusageLine() string {
	end := tc.end
	if end.IsZero() {
		end = time.Now()
	}
	wall := end.Sub(tc.start)
	user := timevalToDuration(tc.rusage.Utime)
	sys := timevalToDuration(tc.rusage.Stime)
	rssMB := tc.rusage.Maxrss / 1024
	inK := float64(tc.rusage.Inblock) / 1000.0
	outK := float64(tc.rusage.Oublock) / 1000.0
	return fmt.Sprintf("%s wall %s user %s sys   %dM RSS | IOPS: %.1f K in %.1f K out",
		tc.TimeFmt(wall), tc.TimeFmt(user), tc.TimeFmt(sys), rssMB, inK, outK)
}

// isExecFailure reports whether err from cmd.Start looks like "the
// interpreter/shell binary does not exist or cannot be executed" rather
// than a fork-level resource failure — the closest Go equivalent to the
// original's exit-202 "exec failed inside the child" case.
func isExecFailure(err error) bool {
	var execErr *exec.Error
	if errors.As(err, &execErr) {
		return true
	}
	return errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) || errors.Is(err, unix.ENOEXEC)
}

func timevalToDuration(tv unix.Timeval) time.Duration {
	return time.Duration(tv.Sec)*time.Second + time.Duration(tv.Usec)*time.Microsecond
}
