package logging

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/cwilbanks/tnterm/internal/breaker"
)

func TestHandlerWritesSingleLine(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, slog.LevelInfo)
	log.Info("negotiation complete", "option", "TTYPE")

	out := buf.String()
	if !strings.Contains(out, "negotiation complete") {
		t.Fatalf("expected message in output, got %q", out)
	}
	if !strings.Contains(out, "option=TTYPE") {
		t.Fatalf("expected attr in output, got %q", out)
	}
	if strings.Count(out, "\n") != 1 {
		t.Fatalf("expected exactly one line, got %q", out)
	}
}

func TestHandlerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, slog.LevelWarn)
	log.Info("should not appear")
	if buf.Len() != 0 {
		t.Fatalf("expected no output below configured level, got %q", buf.String())
	}
	log.Warn("should appear")
	if buf.Len() == 0 {
		t.Fatal("expected output at configured level")
	}
}

func TestDisplayAdapterFormats(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, slog.LevelInfo)
	adapter := DisplayAdapter{Log: log}
	adapter.Warn("clamped address %d to %d", 100, 0)

	if !strings.Contains(buf.String(), "clamped address 100 to 0") {
		t.Fatalf("expected formatted message, got %q", buf.String())
	}
}

func TestSampledSuppressesBurst(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, slog.LevelInfo)
	clock := time.Now()
	sampler := breaker.NewSampler(1, 0, func() time.Time { return clock })
	s := NewSampled(log, sampler)

	s.Warnf("dsnr burst")
	s.Warnf("dsnr burst")
	s.Warnf("dsnr burst")

	if strings.Count(buf.String(), "dsnr burst") != 1 {
		t.Fatalf("expected exactly one logged occurrence, got %q", buf.String())
	}
}
