package ui

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
)

// Progress renders a one-line progress bar while stories of one account
// download
type Progress struct {
	mu         sync.Mutex
	printer    *Printer
	handle     string
	total      int
	downloaded int
	skipped    int
	failed     int
	bytes      int64
	startTime  time.Time
	now        func() time.Time
}

// NewProgress creates a progress display for total stories of handle
func NewProgress(p *Printer, handle string, total int) *Progress {
	return &Progress{
		printer:   p,
		handle:    handle,
		total:     total,
		startTime: time.Now(),
		now:       time.Now,
	}
}

// Complete records a finished download
func (p *Progress) Complete(size int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.downloaded++
	p.bytes += int64(size)
	p.render()
}

// Skip records a story already on disk
func (p *Progress) Skip() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.skipped++
	p.render()
}

// Fail records a failed download
func (p *Progress) Fail() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failed++
	p.render()
}

// Counts returns downloaded, skipped and failed totals
func (p *Progress) Counts() (downloaded, skipped, failed int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.downloaded, p.skipped, p.failed
}

func (p *Progress) done() int {
	return p.downloaded + p.skipped + p.failed
}

// Line returns the current progress line without printing it
func (p *Progress) Line() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.line()
}

func (p *Progress) line() string {
	const barWidth = 20
	filled := 0
	if p.total > 0 {
		filled = p.done() * barWidth / p.total
	}
	if filled > barWidth {
		filled = barWidth
	}
	bar := strings.Repeat("━", filled) + strings.Repeat("─", barWidth-filled)

	line := fmt.Sprintf("@%s [%s] %d/%d • %s", p.handle, bar, p.done(), p.total, FormatBytes(p.bytes))
	if p.skipped > 0 {
		line += fmt.Sprintf(" • %d skipped", p.skipped)
	}
	if p.failed > 0 {
		line += " • " + p.printer.paint(fmt.Sprintf("%d failed", p.failed), color.FgRed)
	}
	return line
}

func (p *Progress) render() {
	if p.printer.IsQuiet() {
		return
	}
	fmt.Fprintf(p.printer.Out(), "\r%s\r%s", strings.Repeat(" ", 100), p.line())
}

// Finish prints the summary line
func (p *Progress) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.printer.IsQuiet() {
		return
	}
	elapsed := p.now().Sub(p.startTime)
	fmt.Fprintln(p.printer.Out())
	p.printer.Success("Downloaded %d of %d stories from @%s (%s in %s)",
		p.downloaded, p.total, p.handle, FormatBytes(p.bytes), FormatDuration(elapsed))
}

// FormatBytes renders a byte count with a binary unit
func FormatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

// FormatDuration renders d compactly
func FormatDuration(d time.Duration) string {
	switch {
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%.1fs", d.Seconds())
	default:
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
}
