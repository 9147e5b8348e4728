// Package logging provides the structured logger shared across the
// terminal core: a slog handler, single-line and timestamped, safe for
// concurrent use behind a mutex, adapted from the logging wrapper style
// found elsewhere in the retrieved pack (no repo in the corpus reaches for
// a third-party structured logger directly, so this stays on log/slog).
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/cwilbanks/tnterm/internal/breaker"
)

// handler is a minimal single-line slog.Handler: timestamp, level, message,
// then attrs space-joined.
type handler struct {
	out   io.Writer
	mu    *sync.Mutex
	level slog.Level
	attrs []slog.Attr
}

// New constructs a *slog.Logger writing to out at the given minimum level.
func New(out io.Writer, level slog.Level) *slog.Logger {
	return slog.New(&handler{out: out, mu: &sync.Mutex{}, level: level})
}

func (h *handler) Enabled(_ context.Context, level slog.Level) bool { return level >= h.level }

func (h *handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	return &handler{out: h.out, mu: h.mu, level: h.level, attrs: merged}
}

func (h *handler) WithGroup(name string) slog.Handler { return h }

func (h *handler) Handle(_ context.Context, r slog.Record) error {
	parts := []string{r.Time.Format("2006/01/02 15:04:05"), r.Level.String() + ":", r.Message}
	for _, a := range h.attrs {
		parts = append(parts, a.Key+"="+a.Value.String())
	}
	r.Attrs(func(a slog.Attr) bool {
		parts = append(parts, a.Key+"="+a.Value.String())
		return true
	})
	line := strings.Join(parts, " ") + "\n"

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.out, line)
	return err
}

// Sampled wraps a logger so that its warnings log at most once per token
// from sampler, whatever the message, collapsing bursts of a repetitive
// non-fatal protocol error (spec §7) into an occasional line. Each logged
// line is preceded by a count of the warnings suppressed since the last one.
type Sampled struct {
	log     *slog.Logger
	sampler *breaker.Sampler
	mu      sync.Mutex
	dropped int
}

// NewSampled wraps log with a token-bucket sampler.
func NewSampled(log *slog.Logger, sampler *breaker.Sampler) *Sampled {
	return &Sampled{log: log, sampler: sampler}
}

// Warnf logs at WARN level if the sampler allows it, otherwise counts the
// suppressed occurrence silently.
func (s *Sampled) Warnf(format string, args ...any) {
	if s.sampler.Allow() {
		s.mu.Lock()
		dropped := s.dropped
		s.dropped = 0
		s.mu.Unlock()
		if dropped > 0 {
			s.log.Warn("suppressed repeated warnings", "count", dropped)
		}
		s.log.Warn(sprintf(format, args...))
		return
	}
	s.mu.Lock()
	s.dropped++
	s.mu.Unlock()
}

func sprintf(format string, args ...any) string {
	if len(args) == 0 {
		return format
	}
	return fmt.Sprintf(format, args...)
}

// DisplayAdapter satisfies internal/display.Logger so a *slog.Logger can be
// handed straight to display.New.
type DisplayAdapter struct{ Log *slog.Logger }

// Warn implements display.Logger.
func (d DisplayAdapter) Warn(format string, args ...any) {
	d.Log.Warn(fmt.Sprintf(format, args...))
}
