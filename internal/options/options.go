// Copyright 2026 The vmtest Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package options parses the runner's command line and environment, the
// thin shim kept separate from the supervisor's core control loop.
package options

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"go.vmtest.dev/runner/internal/osmisc"
)

// Interpreter maps a file extension to the script that should run files
// with that extension, e.g. "py:run_python.sh".
type Interpreter struct {
	Ext    string
	Script string
}

// Options is the fully parsed, validated configuration the supervisor
// runs with.
type Options struct {
	TestDir        string
	OutDir         string
	WorkDir        string
	Continue       bool
	Only           []*regexp.Regexp
	Skip           []*regexp.Regexp
	Flavours       []string
	FlavourFilter  []*regexp.Regexp
	Watch          []string
	Interpreters   []Interpreter
	SortHints      []*regexp.Regexp
	Timeout        time.Duration
	TotalTimeout   time.Duration
	Jobs           int
	Batch          bool
	Verbose        bool
	Interactive    bool
	KMsg           bool
	Heartbeat      string
	FatalTimeouts  bool
	FlavourVarName string
	TAPFile        string
}

const defaultFlavourVarName = "TEST_FLAVOUR"

// Parse parses argv (excluding the program name) and the process
// environment into an Options, applying the documented defaults.
// A non-nil error is a configuration error: the caller should print it to
// stderr and exit non-zero without running any test.
func Parse(argv []string, environ func(string) string) (*Options, error) {
	fs := pflag.NewFlagSet("runner", pflag.ContinueOnError)
	fs.ParseErrorsWhitelist.UnknownFlags = true

	testdir := fs.String("testdir", "", "root of the test tree (required)")
	outdir := fs.String("outdir", "", "where journal/list/heartbeat/logs live")
	workdir := fs.String("workdir", "", "child chdir target (default = testdir)")
	cont := fs.Bool("continue", false, "load journal; skip tests already done")
	only := fs.StringSlice("only", nil, "csv of regexes: include filter")
	skip := fs.StringSlice("skip", nil, "csv of regexes: exclude filter")
	flavours := fs.StringSlice("flavours", []string{"vanilla"}, "csv of flavours to run")
	watch := fs.StringSlice("watch", nil, "csv of extra watched file paths")
	interpreters := fs.StringArray("interpreter", nil, "ext:script mapping, repeatable")
	sortHints := fs.StringArray("sort-hint", nil, "regex primary ordering key, repeatable")
	timeout := fs.Int("timeout", 60, "per-test inactivity timeout, seconds")
	totalTimeout := fs.Int("total-timeout", 10800, "total wall-clock budget, seconds")
	jobs := fs.Int("jobs", 1, "parallel slots")
	batch := fs.Bool("batch", false, "batch UI mode")
	verbose := fs.Bool("verbose", false, "verbose UI mode")
	interactive := fs.Bool("interactive", false, "interactive UI mode")
	kmsg := fs.Bool("kmsg", false, "enable kernel-log source")
	heartbeat := fs.String("heartbeat", "", "append '.' every 20s while a test runs")
	fatalTimeouts := fs.Bool("fatal-timeouts", false, "stop after two consecutive timeouts")
	flavourVar := fs.String("flavour-var", defaultFlavourVarName, "env var name tests read for their flavour")
	tapFile := fs.String("tap-file", "", "write a TAP13 report to this path")

	if err := fs.Parse(argv); err != nil {
		return nil, err
	}

	if *testdir == "" {
		return nil, fmt.Errorf("--testdir is required")
	}
	if !osmisc.FileExists(*testdir) {
		return nil, fmt.Errorf("--testdir %q does not exist", *testdir)
	}

	opts := &Options{
		TestDir:        *testdir,
		OutDir:         *outdir,
		WorkDir:        *workdir,
		Continue:       *cont,
		Flavours:       *flavours,
		Watch:          *watch,
		Timeout:        time.Duration(*timeout) * time.Second,
		TotalTimeout:   time.Duration(*totalTimeout) * time.Second,
		Jobs:           *jobs,
		Batch:          *batch,
		Verbose:        *verbose,
		Interactive:    *interactive,
		KMsg:           *kmsg,
		Heartbeat:      *heartbeat,
		FatalTimeouts:  *fatalTimeouts,
		FlavourVarName: *flavourVar,
		TAPFile:        *tapFile,
	}
	if opts.WorkDir == "" {
		opts.WorkDir = opts.TestDir
	}

	for _, spec := range *interpreters {
		i, err := parseInterpreter(spec)
		if err != nil {
			return nil, err
		}
		opts.Interpreters = append(opts.Interpreters, i)
	}

	onlyRegexes := append([]string{}, *only...)
	skipRegexes := append([]string{}, *skip...)
	var flavourRegexes []string
	if v := environ("T"); isSet(v) {
		onlyRegexes = append(onlyRegexes, splitCSV(v)...)
	}
	if v := environ("S"); isSet(v) {
		skipRegexes = append(skipRegexes, splitCSV(v)...)
	}
	if v := environ("F"); isSet(v) {
		flavourRegexes = splitCSV(v)
	}

	var err error
	if opts.Only, err = compileAll(onlyRegexes); err != nil {
		return nil, err
	}
	if opts.FlavourFilter, err = compileAll(flavourRegexes); err != nil {
		return nil, err
	}
	if opts.Skip, err = compileAll(skipRegexes); err != nil {
		return nil, err
	}
	if opts.SortHints, err = compileAll(*sortHints); err != nil {
		return nil, err
	}

	if v := environ("BATCH"); isSet(v) {
		opts.Batch = true
	}
	if v := environ("VERBOSE"); isSet(v) {
		opts.Verbose = true
	}
	if v := environ("INTERACTIVE"); isSet(v) {
		opts.Interactive = true
	}
	if v := environ("JOBS"); isSet(v) {
		if n, err := strconv.Atoi(v); err == nil {
			opts.Jobs = n
		}
	}
	if opts.Jobs > 1 {
		opts.Batch = true
	}
	if opts.Jobs < 1 {
		opts.Jobs = 1
	}

	return opts, nil
}

// ParseArgs is a convenience wrapper over Parse using os.Args[1:] and
// os.Getenv.
func ParseArgs() (*Options, error) {
	return Parse(os.Args[1:], os.Getenv)
}

func parseInterpreter(spec string) (Interpreter, error) {
	ext, script, ok := strings.Cut(spec, ":")
	if !ok || ext == "" || script == "" {
		return Interpreter{}, fmt.Errorf("malformed --interpreter %q, want ext:script", spec)
	}
	return Interpreter{Ext: ext, Script: script}, nil
}

func compileAll(patterns []string) ([]*regexp.Regexp, error) {
	var out []*regexp.Regexp
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid regex %q: %w", p, err)
		}
		out = append(out, re)
	}
	return out, nil
}

func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// isSet reports whether an environment variable counts as set: present,
// and neither empty nor "0".
func isSet(v string) bool {
	return v != "" && v != "0"
}
