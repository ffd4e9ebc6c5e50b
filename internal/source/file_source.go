// Copyright 2026 The vmtest Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package source

import (
	"io"
	"os"

	"golang.org/x/sys/unix"

	"go.vmtest.dev/runner/internal/iomisc"
	"go.vmtest.dev/runner/internal/sink"
)

// FileSource watches a file for appended data: it opens lazily on first
// Sync, seeks to end so only new data is read, and reports FdSet() == -1
// so the monitor loop polls it every tick instead of including it in
// select().
type FileSource struct {
	path   string
	file   *os.File
	reader io.Reader
	opened bool
	closed bool
}

// NewFileSource returns a FileSource watching path.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

func (w *FileSource) open() error {
	f, err := os.OpenFile(w.path, os.O_RDONLY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return err
	}
	if _, err := f.Seek(0, io.SeekEnd); err != nil {
		f.Close()
		return err
	}
	w.file = f
	// Guard against accidental ReadAt use: FileSource must only ever read
	// forward from its current offset.
	w.reader = iomisc.ReaderAtToReader(f)
	return nil
}

func (w *FileSource) Sync(s sink.Sink) error {
	if w.closed {
		return nil
	}
	if !w.opened {
		if err := w.open(); err != nil {
			// The watched file may not exist yet; that's benign, try again
			// next tick.
			return nil
		}
		w.opened = true
	}
	buf := make([]byte, drainChunk)
	for {
		n, err := w.reader.Read(buf)
		if n > 0 {
			s.Push(buf[:n])
		}
		if err == io.EOF || n == 0 {
			return nil
		}
		if err != nil {
			w.closed = true
			return err
		}
		if n < len(buf) {
			return nil
		}
	}
}

func (w *FileSource) Reset() error {
	if w.file != nil {
		w.file.Close()
		w.file = nil
	}
	w.opened = false
	w.closed = false
	return nil
}

func (w *FileSource) FdSet() int   { return -1 }
func (w *FileSource) Closed() bool { return w.closed }
