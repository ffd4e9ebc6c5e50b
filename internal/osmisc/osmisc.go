// Copyright 2026 The vmtest Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package osmisc provides small filesystem helpers used by the sink and
// journal packages to honor their file-open and file-existence
// conventions.
package osmisc

import (
	"os"
	"syscall"
)

// FileExists reports whether path exists (following symlinks).
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// CreateFile opens path for writing, creating it if necessary and
// truncating it if it already exists, matching the CREAT|TRUNC|CLOEXEC,
// 0644 discipline FileSink requires.
func CreateFile(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY|syscall.O_CLOEXEC, 0644)
}

// OpenAppend opens path for appending, creating it if necessary, matching
// the journal's append-only delta log discipline.
func OpenAppend(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY|syscall.O_CLOEXEC, 0644)
}

// Touch creates path if it does not already exist, leaving it empty.
func Touch(path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|syscall.O_CLOEXEC, 0644)
	if err != nil {
		return err
	}
	return f.Close()
}
