// Copyright 2026 The vmtest Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package color

import (
	"fmt"
	"testing"
)

func TestColorsEnabled(t *testing.T) {
	c := NewColor(ColorAlways)
	if !c.Enabled() {
		t.Fatalf("expected ColorAlways to enable color")
	}

	colorFns := []Colorfn{c.Black, c.Red, c.Green, c.Yellow, c.Magenta, c.Cyan, c.White, c.DefaultColor}
	colorCodes := []ColorCode{BlackFg, RedFg, GreenFg, YellowFg, MagentaFg, CyanFg, WhiteFg, DefaultFg}

	for i, code := range colorCodes {
		fn := colorFns[i]
		plain := fmt.Sprintf("test string: %d", i)
		got := fn("test string: %d", i)
		want := plain
		if code != DefaultFg {
			want = fmt.Sprintf("%v%vm%v%v", escape, int(code), plain, clear)
		}
		if got != want {
			t.Fatalf("color %d: got %q, want %q", code, got, want)
		}
	}
}

func TestColorsDisabled(t *testing.T) {
	c := NewColor(ColorNever)
	if c.Enabled() {
		t.Fatalf("expected ColorNever to disable color")
	}
	for i, fn := range []Colorfn{c.Black, c.Red, c.Green} {
		plain := fmt.Sprintf("plain %d", i)
		if got := fn("plain %d", i); got != plain {
			t.Fatalf("got %q, want %q", got, plain)
		}
	}
}
