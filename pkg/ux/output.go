// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package ux styles the sanjesh CLI's terminal output.
//
// A Printer writes either styled text for people or stable, prefixed
// lines for scripts (ModeMachine). Colors are dropped automatically when
// the writer is not a terminal.
package ux

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

// Palette
var (
	ColorPrimary = lipgloss.Color("#1D9EA3")
	ColorSuccess = lipgloss.Color("#2CD7C7")
	ColorWarning = lipgloss.Color("#F4D03F")
	ColorError   = lipgloss.Color("#E74C3C")
	ColorMuted   = lipgloss.Color("#2C4A54")
)

// Icon is a status marker printed before a message.
type Icon string

const (
	IconSuccess Icon = "✓"
	IconWarning Icon = "⚠"
	IconError   Icon = "✗"
	IconBullet  Icon = "•"
)

// Mode controls how rich the output is.
type Mode string

const (
	// ModeFull uses colors, icons and boxes.
	ModeFull Mode = "full"

	// ModeMinimal uses icons without boxes.
	ModeMinimal Mode = "minimal"

	// ModeMachine prints plain prefixed lines (OK:, WARN:, ...) for
	// scripts. Titles and boxes are flattened.
	ModeMachine Mode = "machine"
)

// ParseMode converts a flag value. "auto" and "" resolve with DetectMode.
func ParseMode(s string, w io.Writer) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return DetectMode(w), nil
	case "full", "f":
		return ModeFull, nil
	case "minimal", "min", "m":
		return ModeMinimal, nil
	case "machine", "quiet", "q":
		return ModeMachine, nil
	default:
		return ModeFull, fmt.Errorf("unknown output mode %q (want auto, full, minimal or machine)", s)
	}
}

// DetectMode returns ModeFull for terminals and ModeMachine otherwise.
func DetectMode(w io.Writer) Mode {
	if f, ok := w.(*os.File); ok {
		fd := f.Fd()
		if isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd) {
			return ModeFull
		}
	}
	return ModeMachine
}

type styles struct {
	title   lipgloss.Style
	muted   lipgloss.Style
	success lipgloss.Style
	warning lipgloss.Style
	error   lipgloss.Style
	bold    lipgloss.Style
	box     lipgloss.Style
}

func newStyles(r *lipgloss.Renderer) styles {
	return styles{
		title:   r.NewStyle().Bold(true).Foreground(ColorPrimary),
		muted:   r.NewStyle().Foreground(ColorMuted),
		success: r.NewStyle().Foreground(ColorSuccess),
		warning: r.NewStyle().Foreground(ColorWarning),
		error:   r.NewStyle().Foreground(ColorError),
		bold:    r.NewStyle().Bold(true),
		box: r.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorPrimary).
			Padding(0, 1),
	}
}

// Printer writes styled output to one writer.
//
// # Thread Safety
//
// Not safe for concurrent use; commands print from one goroutine.
type Printer struct {
	w      io.Writer
	mode   Mode
	styles styles
}

// NewPrinter returns a Printer for w. The color profile is detected
// from w, so a bytes.Buffer gets plain text even in ModeFull.
func NewPrinter(w io.Writer, mode Mode) *Printer {
	return &Printer{
		w:      w,
		mode:   mode,
		styles: newStyles(lipgloss.NewRenderer(w)),
	}
}

// Mode returns the printer's mode.
func (p *Printer) Mode() Mode {
	return p.mode
}

func (p *Printer) status(icon Icon, style lipgloss.Style, prefix, format string, args ...any) {
	text := fmt.Sprintf(format, args...)
	switch p.mode {
	case ModeMachine:
		fmt.Fprintf(p.w, "%s: %s\n", prefix, text)
	case ModeMinimal:
		fmt.Fprintf(p.w, "%s %s\n", style.Render(string(icon)), text)
	default:
		fmt.Fprintf(p.w, "%s %s\n", style.Render(string(icon)), style.Render(text))
	}
}

// Success prints a completed action.
func (p *Printer) Success(format string, args ...any) {
	p.status(IconSuccess, p.styles.success, "OK", format, args...)
}

// Warning prints something the operator should look at.
func (p *Printer) Warning(format string, args ...any) {
	p.status(IconWarning, p.styles.warning, "WARN", format, args...)
}

// Error prints a failure that did not abort the command.
func (p *Printer) Error(format string, args ...any) {
	p.status(IconError, p.styles.error, "ERROR", format, args...)
}

// Title prints a heading. Machine mode skips it.
func (p *Printer) Title(text string) {
	if p.mode == ModeMachine {
		return
	}
	fmt.Fprintln(p.w, p.styles.title.Render(text))
}

// Field is one labelled value in a Fields block.
type Field struct {
	Label string
	Value string
}

// Fields prints labelled values, boxed in ModeFull. Machine mode prints
// one label=value line per field.
func (p *Printer) Fields(title string, fields []Field) {
	if p.mode == ModeMachine {
		for _, f := range fields {
			fmt.Fprintf(p.w, "%s=%s\n", f.Label, f.Value)
		}
		return
	}

	width := 0
	for _, f := range fields {
		width = max(width, lipgloss.Width(f.Label))
	}
	lines := make([]string, 0, len(fields)+1)
	if title != "" {
		lines = append(lines, p.styles.title.Render(title))
	}
	for _, f := range fields {
		label := f.Label + strings.Repeat(" ", width-lipgloss.Width(f.Label))
		lines = append(lines, p.styles.muted.Render(label)+"  "+f.Value)
	}
	body := strings.Join(lines, "\n")

	if p.mode == ModeMinimal {
		fmt.Fprintln(p.w, body)
		return
	}
	fmt.Fprintln(p.w, p.styles.box.Render(body))
}

// Tally is one row of a Summary.
type Tally struct {
	Label   string
	Created int
	Skipped int
}

// Summary prints created/skipped counts per row, followed by a total.
func (p *Printer) Summary(rows []Tally) {
	var created, skipped int
	for _, r := range rows {
		created += r.Created
		skipped += r.Skipped
	}

	if p.mode == ModeMachine {
		for _, r := range rows {
			fmt.Fprintf(p.w, "SUMMARY: %s created=%d skipped=%d\n", r.Label, r.Created, r.Skipped)
		}
		fmt.Fprintf(p.w, "SUMMARY: total created=%d skipped=%d\n", created, skipped)
		return
	}

	width := 0
	for _, r := range rows {
		width = max(width, lipgloss.Width(r.Label))
	}
	for _, r := range rows {
		label := r.Label + strings.Repeat(" ", width-lipgloss.Width(r.Label))
		fmt.Fprintf(p.w, "%s %s  %s %s  %s %s\n",
			p.styles.muted.Render(string(IconBullet)), p.styles.bold.Render(label),
			p.styles.success.Render(fmt.Sprintf("%3d", r.Created)), p.styles.muted.Render("created"),
			p.styles.warning.Render(fmt.Sprintf("%3d", r.Skipped)), p.styles.muted.Render("skipped"),
		)
	}
	fmt.Fprintf(p.w, "\n%s %s  %s %s\n",
		p.styles.success.Render(fmt.Sprintf("%d", created)), p.styles.muted.Render("created"),
		p.styles.warning.Render(fmt.Sprintf("%d", skipped)), p.styles.muted.Render("skipped"),
	)
}
