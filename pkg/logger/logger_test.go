package logger

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestLoggerErrorIncludesContextFields(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "test", Level: ParseLevel("debug"), Output: buf})

	ctx := context.Background()
	ctx = log.WithRequestID(ctx, "req-123")
	ctx = log.WithOrderID(ctx, "RENTAL-1")

	log.Error(ctx, "boom", errors.New("boom"))

	out := buf.String()
	if !strings.Contains(out, `"request_id":"req-123"`) {
		t.Fatalf("expected request_id to be preserved; entry=%s", out)
	}
	if !strings.Contains(out, `"order_id":"RENTAL-1"`) {
		t.Fatalf("expected order_id to be preserved; entry=%s", out)
	}
	if !strings.Contains(out, `"stack"`) {
		t.Fatalf("expected stack trace on error; entry=%s", out)
	}
}

func TestLoggerWarnStackToggle(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "test", Level: ParseLevel("debug"), Output: buf, WarnStack: true})
	log.Warn(context.Background(), "warny")
	if !strings.Contains(buf.String(), `"stack"`) {
		t.Fatalf("expected stack when warn stack enabled")
	}

	buf.Reset()
	quiet := New(Options{ServiceName: "test", Level: ParseLevel("debug"), Output: buf})
	quiet.Warn(context.Background(), "warny")
	if strings.Contains(buf.String(), `"stack"`) {
		t.Fatalf("expected no stack when warn stack disabled")
	}
}

func TestLoggerLevelFiltersDebug(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "test", Level: zerolog.InfoLevel, Output: buf})
	log.Debug(context.Background(), "hidden")
	if buf.Len() != 0 {
		t.Fatalf("expected debug entry to be filtered, got %s", buf.String())
	}
}

func TestParseLevelDefaults(t *testing.T) {
	if lvl := ParseLevel(""); lvl != zerolog.InfoLevel {
		t.Fatalf("expected default info level, got %v", lvl)
	}
	if lvl := ParseLevel("invalid"); lvl != zerolog.InfoLevel {
		t.Fatalf("invalid level should fallback to info, got %v", lvl)
	}
	if lvl := ParseLevel(" WARN "); lvl != zerolog.WarnLevel {
		t.Fatalf("expected warn level, got %v", lvl)
	}
}

func TestLoggerScopedFieldsDoNotLeakToParent(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "test", Output: buf, Format: FormatJSON})

	parent := log.WithUserID(context.Background(), "user-1")
	child := log.WithFields(parent, map[string]any{"rental_id": "r-9", "movie_id": "m-3"})

	log.Info(child, "rental created")
	if out := buf.String(); !strings.Contains(out, `"user_id":"user-1"`) || !strings.Contains(out, `"rental_id":"r-9"`) {
		t.Fatalf("child entry missing fields: %s", out)
	}

	buf.Reset()
	log.Info(parent, "parent entry")
	if strings.Contains(buf.String(), "rental_id") {
		t.Fatalf("child field leaked into parent: %s", buf.String())
	}
}

func TestLoggerConsoleFormat(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "test", Output: buf, Format: FormatConsole})
	log.Info(log.WithRentalID(context.Background(), "r-1"), "hello")
	if strings.HasPrefix(buf.String(), "{") {
		t.Fatalf("console format should not emit JSON: %s", buf.String())
	}
	if !strings.Contains(buf.String(), "r-1") {
		t.Fatalf("console entry missing field: %s", buf.String())
	}
}
