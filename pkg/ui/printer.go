// Package ui formats command line output: colored status lines, tables
// and download progress.
package ui

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
)

// Logo is printed above interactive command output
const Logo = `
  ╻┏━╸┏━┓╺┳╸┏━┓┏━┓╻┏━╸┏━┓
  ┃┃╺┓┗━┓ ┃ ┃ ┃┣┳┛┃┣╸ ┗━┓
  ╹┗━┛┗━┛ ╹ ┗━┛╹┗╸╹┗━╸┗━┛
`

// ColorMode represents color output mode
type ColorMode int

const (
	// ColorAuto enables colors unless NO_COLOR is set or TERM is dumb
	ColorAuto ColorMode = iota
	// ColorAlways forces colors on
	ColorAlways
	// ColorNever forces colors off
	ColorNever
)

// ParseColorMode parses a string into a ColorMode
func ParseColorMode(s string) (ColorMode, error) {
	switch s {
	case "auto", "":
		return ColorAuto, nil
	case "always":
		return ColorAlways, nil
	case "never":
		return ColorNever, nil
	default:
		return ColorAuto, fmt.Errorf("invalid color mode %q: must be auto, always, or never", s)
	}
}

// ResolveColors determines whether to use colors based on mode and environment
func ResolveColors(mode ColorMode) bool {
	switch mode {
	case ColorAlways:
		return true
	case ColorNever:
		return false
	default:
		if _, ok := os.LookupEnv("NO_COLOR"); ok {
			return false
		}
		return os.Getenv("TERM") != "dumb"
	}
}

// Printer handles formatted output to the terminal
type Printer struct {
	out       io.Writer
	err       io.Writer
	useColors bool
	quiet     bool
}

// NewPrinter creates a printer on stdout and stderr
func NewPrinter(mode ColorMode, quiet bool) *Printer {
	return NewPrinterWithWriters(os.Stdout, os.Stderr, ResolveColors(mode), quiet)
}

// NewPrinterWithWriters creates a printer on custom writers
func NewPrinterWithWriters(out, errOut io.Writer, useColors, quiet bool) *Printer {
	return &Printer{out: out, err: errOut, useColors: useColors, quiet: quiet}
}

// Out returns the standard output writer
func (p *Printer) Out() io.Writer {
	return p.out
}

// IsQuiet returns whether the printer is in quiet mode
func (p *Printer) IsQuiet() bool {
	return p.quiet
}

func (p *Printer) colored(w io.Writer, attrs []color.Attribute, prefix, plain, format string, args ...interface{}) {
	if p.useColors {
		c := color.New(attrs...)
		c.EnableColor()
		c.Fprintf(w, prefix+format+"\n", args...)
		return
	}
	fmt.Fprintf(w, plain+format+"\n", args...)
}

// Info prints an informational message
func (p *Printer) Info(format string, args ...interface{}) {
	if p.quiet {
		return
	}
	p.colored(p.out, []color.Attribute{color.FgCyan}, "", "", format, args...)
}

// Success prints a success message
func (p *Printer) Success(format string, args ...interface{}) {
	if p.quiet {
		return
	}
	p.colored(p.out, []color.Attribute{color.FgGreen}, "✓ ", "[OK] ", format, args...)
}

// Warning prints a warning message
func (p *Printer) Warning(format string, args ...interface{}) {
	if p.quiet {
		return
	}
	p.colored(p.err, []color.Attribute{color.FgYellow}, "⚠ ", "[WARN] ", format, args...)
}

// Error prints an error message. Errors are printed even in quiet mode.
func (p *Printer) Error(format string, args ...interface{}) {
	p.colored(p.err, []color.Attribute{color.FgRed}, "✗ ", "[ERROR] ", format, args...)
}

// Print prints a plain message
func (p *Printer) Print(format string, args ...interface{}) {
	if p.quiet {
		return
	}
	fmt.Fprintf(p.out, format+"\n", args...)
}

// KeyValue prints a labelled value
func (p *Printer) KeyValue(label, value string) {
	if p.quiet {
		return
	}
	fmt.Fprintf(p.out, "%s: %s\n", p.paint(label, color.FgCyan), p.paint(value, color.FgYellow))
}

// Header prints a section header
func (p *Printer) Header(title string) {
	if p.quiet {
		return
	}
	if p.useColors {
		fmt.Fprintf(p.out, "\n%s\n%s\n", p.paint(title, color.FgWhite, color.Bold), strings.Repeat("─", len([]rune(title))))
		return
	}
	fmt.Fprintf(p.out, "\n%s\n%s\n", title, strings.Repeat("-", len([]rune(title))))
}

// Logo prints the application logo
func (p *Printer) Logo() {
	if p.quiet {
		return
	}
	fmt.Fprint(p.out, p.paint(Logo, color.FgMagenta))
}

// Bold returns text in bold
func (p *Printer) Bold(text string) string {
	return p.paint(text, color.Bold)
}

// Dim returns dimmed text
func (p *Printer) Dim(text string) string {
	return p.paint(text, color.Faint)
}

func (p *Printer) paint(text string, attrs ...color.Attribute) string {
	if !p.useColors {
		return text
	}
	c := color.New(attrs...)
	c.EnableColor()
	return c.Sprint(text)
}
