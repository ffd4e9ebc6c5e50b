// Copyright 2026 The vmtest Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Command runner is the supervising test runner's entrypoint: parse
// options, build a Supervisor, run it to completion, and translate its
// result into a process exit code.
package main

import (
	"context"
	"fmt"
	"os"

	"go.vmtest.dev/runner/internal/color"
	"go.vmtest.dev/runner/internal/logger"
	"go.vmtest.dev/runner/internal/options"
	"go.vmtest.dev/runner/internal/report"
	"go.vmtest.dev/runner/internal/sigplane"
	"go.vmtest.dev/runner/internal/supervisor"
)

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Getenv))
}

// run is kept separate from main so tests can drive it with a fake argv
// and environ rather than the real process-wide ones.
func run(ctx context.Context, argv []string, environ func(string) string) int {
	opts, err := options.Parse(argv, environ)
	if err != nil {
		fmt.Fprintln(os.Stderr, "runner:", err)
		return 2
	}

	log := logger.NewLogger(logger.InfoLevel, color.NewColor(color.ColorAuto), os.Stdout, os.Stderr, "")
	ctx = logger.WithLogger(ctx, log)

	plane := sigplane.New()
	defer plane.Stop()

	sup := supervisor.New(opts, os.Stdout, plane)
	if opts.TAPFile != "" {
		f, err := os.Create(opts.TAPFile)
		if err != nil {
			log.Errorf("opening TAP output %q: %v", opts.TAPFile, err)
		} else {
			defer f.Close()
			sup.SetReport(report.NewProducer(f))
		}
	}

	if err := sup.Setup(); err != nil {
		log.Errorf("setup: %v", err)
		return 2
	}

	return sup.Run(ctx)
}
