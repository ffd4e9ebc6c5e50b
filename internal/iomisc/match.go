// Copyright 2026 The vmtest Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package iomisc provides small io.Reader adapters: a reader that watches a
// byte stream for one of a set of marker sequences, and a helper to keep an
// io.ReaderAt from being used as one.
package iomisc

import (
	"bytes"
	"context"
	"io"
)

// MatchingReader wraps a Reader and remembers whether any of a set of byte
// sequences has appeared anywhere in the stream read so far, even if a
// sequence straddles more than one Read call. Once a match is found, further
// reads return io.EOF.
type MatchingReader struct {
	r         io.Reader
	sequences [][]byte
	match     []byte
	tail      []byte
	maxLen    int
}

// NewMatchingReader returns a MatchingReader watching r for any of sequences.
func NewMatchingReader(r io.Reader, sequences [][]byte) *MatchingReader {
	maxLen := 0
	for _, s := range sequences {
		if len(s) > maxLen {
			maxLen = len(s)
		}
	}
	return &MatchingReader{r: r, sequences: sequences, maxLen: maxLen}
}

// Match returns the sequence that has matched, or nil if none has yet.
func (m *MatchingReader) Match() []byte {
	return m.match
}

// Read implements io.Reader. Once a match has occurred, Read returns
// io.EOF without consuming further input.
func (m *MatchingReader) Read(p []byte) (int, error) {
	if m.match != nil {
		return 0, io.EOF
	}
	n, err := m.r.Read(p)
	if n > 0 {
		window := append(m.tail, p[:n]...)
		for _, seq := range m.sequences {
			if idx := bytes.Index(window, seq); idx >= 0 {
				m.match = seq
				break
			}
		}
		if m.match == nil && m.maxLen > 1 {
			keep := m.maxLen - 1
			if keep > len(window) {
				keep = len(window)
			}
			m.tail = append([]byte(nil), window[len(window)-keep:]...)
		}
	}
	if m.match != nil {
		// Surface the match immediately; callers treat io.EOF as "done."
		if err == nil {
			err = io.EOF
		}
	}
	return n, err
}

// ReadUntilMatch drains m until a sequence matches, ctx is canceled, or a
// read error (other than the EOF produced by a match) occurs.
func ReadUntilMatch(ctx context.Context, m *MatchingReader) ([]byte, error) {
	buf := make([]byte, 4096)
	for {
		if m.Match() != nil {
			return m.Match(), nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		_, err := m.Read(buf)
		if m.Match() != nil {
			return m.Match(), nil
		}
		if err != nil {
			return nil, err
		}
	}
}

// readerOnly hides any io.ReaderAt implemented by the embedded reader, so
// that callers of ReaderAtToReader are forced to read sequentially instead
// of accidentally invoking ReadAt (which would re-read from an offset
// rather than advancing, the wrong behavior for tailing a growing file).
type readerOnly struct {
	io.Reader
}

// ReaderAtToReader strips any io.ReaderAt a Reader may implement.
func ReaderAtToReader(r io.Reader) io.Reader {
	return readerOnly{r}
}
