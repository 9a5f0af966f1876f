// Package server provides the console logger used across the relay: slog
// with a compact colored handler so levels stand out when tailing a
// terminal.
package server

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gookit/color"
)

var levelColors = map[slog.Level]color.Color{
	slog.LevelDebug: color.FgBlue,
	slog.LevelInfo:  color.FgGreen,
	slog.LevelWarn:  color.FgYellow,
	slog.LevelError: color.FgRed,
}

// consoleHandler renders records as "[ts] LEVEL - msg key=value ...", with
// the level colored by severity.
type consoleHandler struct {
	level slog.Level
	mu    *sync.Mutex
	out   io.Writer
	attrs []slog.Attr
}

// NewLogger builds the relay's logger writing to out at the named level.
// Unrecognized level names fall back to info.
func NewLogger(level string, out io.Writer) *slog.Logger {
	return slog.New(&consoleHandler{
		level: parseLevel(level),
		mu:    &sync.Mutex{},
		out:   out,
	})
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (h *consoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *consoleHandler) Handle(_ context.Context, record slog.Record) error {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s - %s",
		record.Time.Format(time.DateTime),
		levelColor(record.Level).Render(fmt.Sprintf("%-5s", record.Level.String())),
		record.Message)

	for _, attr := range h.attrs {
		fmt.Fprintf(&b, " %s=%v", attr.Key, attr.Value)
	}
	record.Attrs(func(attr slog.Attr) bool {
		fmt.Fprintf(&b, " %s=%v", attr.Key, attr.Value)
		return true
	})
	b.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.out, b.String())
	return err
}

func (h *consoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.attrs = append(append([]slog.Attr(nil), h.attrs...), attrs...)
	return &clone
}

// WithGroup is accepted but flattened; the relay's log keys are already
// unambiguous without grouping.
func (h *consoleHandler) WithGroup(string) slog.Handler {
	return h
}

func levelColor(level slog.Level) color.Color {
	if c, ok := levelColors[level]; ok {
		return c
	}
	return color.FgDefault
}
