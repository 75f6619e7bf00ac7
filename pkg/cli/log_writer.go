package cli

import (
	"strings"

	"github.com/ringlet-ai/ringlet/pkg/buffer"
)

// LogWriter implements io.Writer and captures log output for terminal
// status display. It keeps the most recent lines in a ring and
// notifies via a channel when new lines arrive.
type LogWriter struct {
	ring *buffer.Ring[string]
	ch   chan string
}

// NewLogWriter creates a new log writer keeping the given max lines.
func NewLogWriter(maxLines int) *LogWriter {
	return &LogWriter{
		ring: buffer.NewRing[string](maxLines),
		ch:   make(chan string, 100),
	}
}

// Write implements io.Writer.
// Handles multi-line input by splitting on newlines.
func (w *LogWriter) Write(p []byte) (n int, err error) {
	text := strings.TrimRight(string(p), "\n")
	lines := strings.Split(text, "\n")

	for _, line := range lines {
		w.ring.Add(line)

		// Non-blocking send to channel
		select {
		case w.ch <- line:
		default:
		}
	}
	return len(p), nil
}

// Lines returns the buffered lines, oldest first.
func (w *LogWriter) Lines() []string {
	return w.ring.Snapshot()
}

// Channel returns the notification channel for new lines.
func (w *LogWriter) Channel() <-chan string {
	return w.ch
}
