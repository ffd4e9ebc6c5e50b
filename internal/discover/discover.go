// Copyright 2026 The vmtest Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package discover implements the recursive directory listing used to
// build the supervisor's test queue.
package discover

import (
	"os"
	"path/filepath"
	"sort"
)

// Walk returns every regular file under root, depth-first, with entries in
// each directory visited in lexical order, as paths relative to root. It
// does not itself apply any flavour/extension/lib-data filtering — that is
// the supervisor's job.
func Walk(root string) ([]string, error) {
	var out []string
	if err := walk(root, "", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func walk(root, rel string, out *[]string) error {
	dir := filepath.Join(root, rel)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
	for _, e := range entries {
		childRel := filepath.Join(rel, e.Name())
		if e.IsDir() {
			if err := walk(root, childRel, out); err != nil {
				return err
			}
			continue
		}
		*out = append(*out, childRel)
	}
	return nil
}
