// Package logging provides a slog handler that writes tracker log lines.
//
// Format: [2025-12-30 09:32:51] [INFO] [category] message key=value ...
//
// The category comes from a "category" attribute and defaults to "global".
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/runoshun/tracker/internal/domain"
)

// CategoryKey is the attribute key that selects the log line category.
const CategoryKey = "category"

// ParseLevel parses a log level string into slog.Level.
func ParseLevel(levelStr string) slog.Level {
	switch strings.ToLower(levelStr) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Handler implements slog.Handler with the tracker line format.
// Fields are ordered to minimize memory padding.
type Handler struct {
	now      func() time.Time
	out      *output
	category string
	prefix   string // group prefix for attribute keys
	attrs    []slog.Attr
	level    slog.Level
}

// output is shared by a handler and everything derived from it.
type output struct {
	w  io.Writer
	c  io.Closer
	mu sync.Mutex
}

// NewHandler creates a handler writing to w.
func NewHandler(w io.Writer, level slog.Level) *Handler {
	return &Handler{
		now:      time.Now,
		out:      &output{w: w},
		category: "global",
		level:    level,
	}
}

// New returns a logger writing to w.
func New(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(NewHandler(w, level))
}

// Open returns a logger appending to the tracker log file under dir, plus
// stderr when echo is true. Close the returned closer on shutdown.
func Open(dir string, level slog.Level, echo bool) (*slog.Logger, io.Closer, error) {
	path := domain.LogPath(dir)
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, nil, fmt.Errorf("create logs directory: %w", err)
	}
	// Log files are append-only and need read access by group members
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640) //nolint:gosec // Log file readable by owner and group
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}

	var w io.Writer = f
	if echo {
		w = io.MultiWriter(f, os.Stderr)
	}
	h := NewHandler(w, level)
	h.out.c = f
	return slog.New(h), h.out, nil
}

// Close closes the underlying file, if any.
func (o *output) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.c == nil {
		return nil
	}
	err := o.c.Close()
	o.c = nil
	return err
}

// Enabled implements slog.Handler.
func (h *Handler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

// Handle implements slog.Handler.
func (h *Handler) Handle(_ context.Context, r slog.Record) error {
	category := h.category
	var b strings.Builder

	write := func(a slog.Attr, prefix string) {
		if a.Key == CategoryKey && prefix == "" {
			category = a.Value.String()
			return
		}
		appendAttr(&b, prefix, a)
	}
	for _, a := range h.attrs {
		write(a, "")
	}
	r.Attrs(func(a slog.Attr) bool {
		write(a, h.prefix)
		return true
	})

	t := r.Time
	if t.IsZero() {
		t = h.now()
	}
	line := formatLog(t, r.Level, category, r.Message) + b.String() + "\n"

	h.out.mu.Lock()
	defer h.out.mu.Unlock()
	_, err := io.WriteString(h.out.w, line)
	return err
}

// WithAttrs implements slog.Handler.
func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	c := *h
	c.attrs = slices.Clone(h.attrs)
	for _, a := range attrs {
		if a.Key == CategoryKey && h.prefix == "" {
			c.category = a.Value.String()
			continue
		}
		a.Key = h.prefix + a.Key
		c.attrs = append(c.attrs, a)
	}
	return &c
}

// WithGroup implements slog.Handler.
func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	c := *h
	c.prefix = h.prefix + name + "."
	return &c
}

// formatLog formats a log entry in the specified format.
// Format: [2025-12-30 09:32:51] [INFO] [category] message
func formatLog(t time.Time, level slog.Level, category, msg string) string {
	return fmt.Sprintf("[%s] [%s] [%s] %s",
		t.Format("2006-01-02 15:04:05"),
		levelToString(level),
		category,
		msg,
	)
}

func appendAttr(b *strings.Builder, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	if a.Value.Kind() == slog.KindGroup {
		for _, g := range a.Value.Group() {
			appendAttr(b, prefix+a.Key+".", g)
		}
		return
	}
	val := a.Value.String()
	if strings.ContainsAny(val, " \t\n\"=") {
		val = fmt.Sprintf("%q", val)
	}
	b.WriteByte(' ')
	b.WriteString(prefix)
	b.WriteString(a.Key)
	b.WriteByte('=')
	b.WriteString(val)
}

func levelToString(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "ERROR"
	case level >= slog.LevelWarn:
		return "WARN"
	case level >= slog.LevelInfo:
		return "INFO"
	default:
		return "DEBUG"
	}
}
