// Copyright 2026 The vmtest Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package progress implements the terminal/batch progress printer:
// per-slot backlog buffers so parallel test output never interleaves
// mid-line on stdout.
package progress

import (
	"io"
	"strings"
)

// Phase identifies which of the three points in a slot's line lifecycle a
// Stream call is for.
type Phase int

const (
	// First begins a new line for the slot.
	First Phase = iota
	// Update overwrites the slot's current line.
	Update
	// Last writes the final result line for the slot.
	Last
)

// Mode selects how Progress routes output, mirroring the three UI modes
// a run can be in: interactive, batch, or quiet.
type Mode int

const (
	// Interactive is a real tty, not running in batch mode: live,
	// carriage-return-redrawn single-line progress.
	Interactive Mode = iota
	// Batch is forced by --batch or --jobs > 1: slot 0 streams live,
	// other slots accumulate in their backlog.
	Batch
	// Quiet is neither a tty nor batch: only Last lines are ever shown.
	Quiet
)

// Progress is the single printer shared by every concurrent slot.
type Progress struct {
	mode    Mode
	out     io.Writer
	null    io.Writer
	backlog []strings.Builder // one per slot
}

// New returns a Progress that prints to out in mode, sized for the given
// number of slots.
func New(out io.Writer, mode Mode, slots int) *Progress {
	return &Progress{
		mode:    mode,
		out:     out,
		null:    io.Discard,
		backlog: make([]strings.Builder, slots),
	}
}

// Stream returns the writer a caller should use for the given slot and
// phase.
func (p *Progress) Stream(slot int, phase Phase) io.Writer {
	switch p.mode {
	case Interactive:
		if phase == Update {
			return crWriter{p.out}
		}
		return p.out
	case Batch:
		if slot == 0 {
			return p.out
		}
		return &p.backlog[slot]
	default: // Quiet
		if phase == Last {
			if slot == 0 {
				return p.out
			}
			return &p.backlog[slot]
		}
		return p.null
	}
}

// Flush promotes every complete line (ending in \n) from every slot's
// backlog to stdout, retaining each slot's trailing partial line.
func (p *Progress) Flush() {
	for i := range p.backlog {
		text := p.backlog[i].String()
		if text == "" {
			continue
		}
		idx := strings.LastIndexByte(text, '\n')
		if idx < 0 {
			continue
		}
		complete, rest := text[:idx+1], text[idx+1:]
		io.WriteString(p.out, complete)
		p.backlog[i].Reset()
		p.backlog[i].WriteString(rest)
	}
}

// crWriter prepends a carriage return to every write, used by Interactive
// mode's Update phase to redraw the current line in place.
type crWriter struct {
	w io.Writer
}

func (c crWriter) Write(p []byte) (int, error) {
	if _, err := io.WriteString(c.w, "\r"); err != nil {
		return 0, err
	}
	return c.w.Write(p)
}
