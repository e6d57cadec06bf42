package main

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/modelbay/transfer"
)

var (
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	pendingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	detailStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

func printSuccess(text string) {
	fmt.Println(successStyle.Render("✓ " + text))
}

func printError(text string) {
	fmt.Println(errorStyle.Render("✗ " + text))
}

// consoleSink renders a single-line progress display. Updates are throttled
// to keep terminal writes cheap; the engine may emit thousands of events per
// second on a fast link.
type consoleSink struct {
	label string

	mu         sync.Mutex
	lastRender time.Time
}

func newConsoleSink(label string) *consoleSink {
	return &consoleSink{label: label}
}

func (s *consoleSink) Progress(ev transfer.ProgressEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	terminal := ev.Phase == transfer.PhaseDone || ev.Phase == transfer.PhaseFailed
	if !terminal && time.Since(s.lastRender) < 100*time.Millisecond {
		return
	}
	s.lastRender = time.Now()

	var line string
	switch ev.Phase {
	case transfer.PhaseDone:
		line = successStyle.Render(fmt.Sprintf("%s done (%s)", s.label, transfer.FormatBytes(uint64(ev.BytesDone))))
	case transfer.PhaseFailed:
		line = errorStyle.Render(fmt.Sprintf("%s failed", s.label))
	default:
		done := transfer.FormatBytes(uint64(ev.BytesDone))
		rate := detailStyle.Render(fmt.Sprintf("%s/s", transfer.FormatBytes(uint64(ev.Rate))))
		if ev.BytesTotal > 0 {
			pct := float64(ev.BytesDone) / float64(ev.BytesTotal) * 100
			line = pendingStyle.Render(fmt.Sprintf("%s %5.1f%% %s / %s ", s.label, pct, done, transfer.FormatBytes(uint64(ev.BytesTotal)))) + rate
		} else {
			line = pendingStyle.Render(fmt.Sprintf("%s %s ", s.label, done)) + rate
		}
	}
	fmt.Fprintf(os.Stderr, "\r\033[K%s", line)
	if terminal {
		fmt.Fprintln(os.Stderr)
	}
}
