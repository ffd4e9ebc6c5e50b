// Copyright 2026 The vmtest Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package color provides ANSI foreground-color formatting that can be
// disabled wholesale, for use by the logger and progress printer.
package color

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// EnableColor controls whether a Color actually emits escape codes.
type EnableColor int

const (
	ColorAuto EnableColor = iota
	ColorAlways
	ColorNever
)

// ColorCode is an ANSI SGR foreground color code.
type ColorCode int

const (
	BlackFg ColorCode = iota + 30
	RedFg
	GreenFg
	YellowFg
	BlueFg
	MagentaFg
	CyanFg
	WhiteFg
	DefaultFg = 0
)

const (
	escape = "\x1b["
	clear  = "\x1b[0m"
)

// Colorfn formats like fmt.Sprintf but wraps the result in a color escape.
type Colorfn func(format string, a ...interface{}) string

// Color applies or suppresses ANSI color depending on its mode.
type Color struct {
	enabled bool
}

// NewColor decides whether color is enabled: Always/Never are explicit,
// Auto enables color only when stdout is a terminal.
func NewColor(mode EnableColor) *Color {
	switch mode {
	case ColorAlways:
		return &Color{enabled: true}
	case ColorNever:
		return &Color{enabled: false}
	default:
		return &Color{enabled: isTerminal(os.Stdout.Fd())}
	}
}

func isTerminal(fd uintptr) bool {
	_, err := unix.IoctlGetTermios(int(fd), unix.TCGETS)
	return err == nil
}

// WithColor formats a string and, if color is enabled, wraps it in the
// escape sequence for code.
func (c *Color) WithColor(code ColorCode, format string, a ...interface{}) string {
	s := fmt.Sprintf(format, a...)
	if !c.enabled || code == DefaultFg {
		return s
	}
	return fmt.Sprintf("%v%vm%v%v", escape, int(code), s, clear)
}

func (c *Color) Black(format string, a ...interface{}) string   { return c.WithColor(BlackFg, format, a...) }
func (c *Color) Red(format string, a ...interface{}) string     { return c.WithColor(RedFg, format, a...) }
func (c *Color) Green(format string, a ...interface{}) string   { return c.WithColor(GreenFg, format, a...) }
func (c *Color) Yellow(format string, a ...interface{}) string  { return c.WithColor(YellowFg, format, a...) }
func (c *Color) Blue(format string, a ...interface{}) string    { return c.WithColor(BlueFg, format, a...) }
func (c *Color) Magenta(format string, a ...interface{}) string { return c.WithColor(MagentaFg, format, a...) }
func (c *Color) Cyan(format string, a ...interface{}) string    { return c.WithColor(CyanFg, format, a...) }
func (c *Color) White(format string, a ...interface{}) string   { return c.WithColor(WhiteFg, format, a...) }
func (c *Color) DefaultColor(format string, a ...interface{}) string {
	return c.WithColor(DefaultFg, format, a...)
}

// Enabled reports whether this Color instance will emit escape codes.
func (c *Color) Enabled() bool { return c.enabled }
