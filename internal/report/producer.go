// Copyright 2026 The vmtest Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package report implements a TAP13 producer, a supplementary
// machine-parseable report format layered onto the journal's plain-text
// list file.
package report

import (
	"fmt"
	"io"
)

type directive int

const (
	none directive = iota
	todo
	skip
)

// Producer writes a TAP13 stream to an underlying writer. Plan must be
// called exactly once, before any Ok/Skip calls, per TAP13's wire format.
type Producer struct {
	w       io.Writer
	count   int
	pending directive
}

// NewProducer returns a Producer writing the "TAP version 13" header to w
// immediately.
func NewProducer(w io.Writer) *Producer {
	p := &Producer{w: w}
	fmt.Fprintln(w, "TAP version 13")
	return p
}

// Plan writes the test count line, e.g. "1..4".
func (p *Producer) Plan(count int) {
	fmt.Fprintf(p.w, "1..%d\n", count)
}

// Todo marks the next Ok call as a TODO directive; returns p for chaining.
func (p *Producer) Todo() *Producer {
	p.pending = todo
	return p
}

// Skip marks the next Ok call as a SKIP directive; returns p for chaining.
func (p *Producer) Skip() *Producer {
	p.pending = skip
	return p
}

// Ok writes one result line and advances the test counter. description is
// printed verbatim after the line's "ok N"/"not ok N" when no directive is
// pending, or as the directive's explanation when one is.
func (p *Producer) Ok(ok bool, description string) {
	p.count++
	status := "ok"
	if !ok {
		status = "not ok"
	}
	switch p.pending {
	case todo:
		fmt.Fprintf(p.w, "%s %d # TODO %s\n", status, p.count, description)
	case skip:
		fmt.Fprintf(p.w, "%s %d # SKIP %s\n", status, p.count, description)
	default:
		if description == "" {
			fmt.Fprintf(p.w, "%s %d\n", status, p.count)
		} else {
			fmt.Fprintf(p.w, "%s %d %s\n", status, p.count, description)
		}
	}
	p.pending = none
}
