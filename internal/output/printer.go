// Package output renders harness progress and summaries on the console,
// with color on interactive terminals.
package output

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

// ColorScheme defines the colors used for different kinds of output lines.
type ColorScheme struct {
	Step    *color.Color
	Detail  *color.Color
	Success *color.Color
	Warn    *color.Color
	Error   *color.Color
}

// DefaultColorScheme returns the default color scheme.
func DefaultColorScheme() *ColorScheme {
	return &ColorScheme{
		Step:    color.New(color.FgCyan),
		Detail:  color.New(color.FgWhite),
		Success: color.New(color.FgGreen, color.Bold),
		Warn:    color.New(color.FgYellow, color.Bold),
		Error:   color.New(color.FgRed, color.Bold),
	}
}

// NoColorScheme returns a color scheme with all colors disabled.
func NoColorScheme() *ColorScheme {
	scheme := DefaultColorScheme()
	scheme.Step.DisableColor()
	scheme.Detail.DisableColor()
	scheme.Success.DisableColor()
	scheme.Warn.DisableColor()
	scheme.Error.DisableColor()
	return scheme
}

// Printer writes progress lines to a stream. Colors are dropped
// automatically when the stream is not a terminal or noColor is set.
type Printer struct {
	w      io.Writer
	scheme *ColorScheme
}

// NewPrinter creates a printer for w.
func NewPrinter(w io.Writer, noColor bool) *Printer {
	scheme := DefaultColorScheme()
	if noColor || !isTerminal(w) {
		scheme = NoColorScheme()
	}
	return &Printer{w: w, scheme: scheme}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Stepf prints a progress line for a setup or teardown step.
func (p *Printer) Stepf(format string, args ...interface{}) {
	fmt.Fprintln(p.w, p.scheme.Step.Sprintf(format, args...))
}

// Successf prints a completion line.
func (p *Printer) Successf(format string, args ...interface{}) {
	fmt.Fprintln(p.w, p.scheme.Success.Sprintf(format, args...))
}

// Warnf prints a warning line.
func (p *Printer) Warnf(format string, args ...interface{}) {
	fmt.Fprintln(p.w, p.scheme.Warn.Sprintf("warning: "+format, args...))
}

// Errorf prints an error line.
func (p *Printer) Errorf(format string, args ...interface{}) {
	fmt.Fprintln(p.w, p.scheme.Error.Sprintf("error: "+format, args...))
}
