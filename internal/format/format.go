// Copyright 2026 The vmtest Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package format implements the Formatter/Substitutor: it turns a
// TimedBuffer line into "[mm:ss] text", relative to a test's start time,
// and performs in-band @KEY=value substitutions.
package format

import (
	"fmt"
	"strings"
	"time"

	"go.vmtest.dev/runner/internal/timedbuf"
)

// Substitutor tracks @KEY=value directives and expands @KEY@ references in
// later lines.
type Substitutor struct {
	values map[string]string
}

// NewSubstitutor returns an empty Substitutor.
func NewSubstitutor() *Substitutor {
	return &Substitutor{values: make(map[string]string)}
}

// directive matches a recognized "@NAME=value" prefix and returns the key
// used for expansion ("@NAME@") and the value, or ok=false if line isn't one.
func directive(line string) (key, value string, ok bool) {
	for _, name := range []string{"TESTDIR", "PREFIX"} {
		prefix := "@" + name + "="
		if strings.HasPrefix(line, prefix) {
			value = strings.TrimSuffix(strings.TrimPrefix(line, prefix), "\n")
			return "@" + name + "@", value, true
		}
	}
	return "", "", false
}

// Apply consumes a directive line (updating the substitution map and
// returning consumed=true) or expands known keys in a non-directive line.
func (s *Substitutor) Apply(line string) (result string, consumed bool) {
	if key, value, ok := directive(line); ok {
		s.values[key] = value
		return "", true
	}
	for {
		replaced := line
		for k, v := range s.values {
			replaced = strings.ReplaceAll(replaced, k, v)
		}
		if replaced == line {
			return line, false
		}
		line = replaced
	}
}

// Formatter prepends "[mm:ss] " (elapsed time since a test's start) to each
// line and substitutes sentinel values via an embedded Substitutor.
type Formatter struct {
	start time.Time
	sub   *Substitutor
}

// NewFormatter returns a Formatter measuring elapsed time against start.
func NewFormatter(start time.Time) *Formatter {
	return &Formatter{start: start, sub: NewSubstitutor()}
}

// Format renders one TimedBuffer line. When suppress is true (the line is a
// continuation of an already-prefixed partial line), the "[mm:ss] " prefix
// is omitted, except that any '\r' inside the line restarts the prefix so
// that progress bars redraw correctly under a terminal.
func (f *Formatter) Format(line timedbuf.Line, suppress bool) string {
	text, consumed := f.sub.Apply(line.Text)
	if consumed {
		return ""
	}

	prefix := f.prefix(line.First)
	if !strings.Contains(text, "\r") {
		if suppress {
			return text
		}
		return prefix + text
	}

	var b strings.Builder
	first := true
	for _, part := range strings.Split(text, "\r") {
		if !first {
			b.WriteByte('\r')
			b.WriteString(prefix)
		} else if !suppress {
			b.WriteString(prefix)
		}
		b.WriteString(part)
		first = false
	}
	return b.String()
}

func (f *Formatter) prefix(t time.Time) string {
	d := t.Sub(f.start)
	if d < 0 {
		d = 0
	}
	total := int(d.Seconds())
	return fmt.Sprintf("[%2d:%02d] ", total/60, total%60)
}
