// Package logging provides the gateway's structured log handler: a thin
// slog.Handler that timestamps, tags the level, and writes to an optional
// file as well as stderr, with a debug flag fixed when the logger is built.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// Handler is a slog.Handler writing one line per record to out (if set)
// and, when debug is set or the record is at warn level or above, to
// stderr too.
type Handler struct {
	out   io.Writer
	h     slog.Handler
	mu    *sync.Mutex
	debug bool
}

func (h *Handler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.h.Enabled(ctx, level)
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &Handler{out: h.out, h: h.h.WithAttrs(attrs), mu: h.mu, debug: h.debug}
}

func (h *Handler) WithGroup(name string) slog.Handler {
	return &Handler{out: h.out, h: h.h.WithGroup(name), mu: h.mu, debug: h.debug}
}

func (h *Handler) Handle(ctx context.Context, r slog.Record) error {
	level := r.Level.String() + ":"
	ts := r.Time.Format("2006-01-02 15:04:05.000")

	parts := []string{ts, level, r.Message}
	r.Attrs(func(a slog.Attr) bool {
		parts = append(parts, a.String())
		return true
	})
	line := []byte(strings.Join(parts, " ") + "\n")

	h.mu.Lock()
	defer h.mu.Unlock()

	var err error
	if h.out != nil {
		_, err = h.out.Write(line)
	}
	if h.debug || r.Level >= slog.LevelWarn {
		_, _ = os.Stderr.Write(line)
	}
	return err
}

// New builds a *slog.Logger around Handler. out may be nil to log only to
// stderr above warn level plus, when debug is true, every record.
func New(out io.Writer, level slog.Level, debug bool) *slog.Logger {
	h := &Handler{
		out:   out,
		h:     slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: level}),
		mu:    &sync.Mutex{},
		debug: debug,
	}
	return slog.New(h)
}
