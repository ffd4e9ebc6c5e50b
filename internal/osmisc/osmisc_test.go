// Copyright 2026 The vmtest Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package osmisc

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFileExists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f")

	if FileExists(path) {
		t.Fatalf("expected nonexistent file to report false")
	}
	if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	if !FileExists(path) {
		t.Fatalf("expected existing file to report true")
	}
}

func TestCreateFileTruncates(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f")

	if err := os.WriteFile(path, []byte("stale content"), 0644); err != nil {
		t.Fatal(err)
	}

	f, err := CreateFile(path)
	if err != nil {
		t.Fatal(err)
	}
	f.Close()

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(b) != 0 {
		t.Fatalf("expected truncated file, got %q", b)
	}
}

func TestTouch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "heartbeat")

	if err := Touch(path); err != nil {
		t.Fatal(err)
	}
	if !FileExists(path) {
		t.Fatalf("expected Touch to create file")
	}

	// Touching an existing file must not truncate it.
	if err := os.WriteFile(path, []byte("."), 0644); err != nil {
		t.Fatal(err)
	}
	if err := Touch(path); err != nil {
		t.Fatal(err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != "." {
		t.Fatalf("Touch truncated existing content: %q", b)
	}
}
