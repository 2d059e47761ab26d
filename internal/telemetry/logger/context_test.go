package logger

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func TestWithLogger_FromContext(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: "info", Format: "json", Output: &buf})

	ctx := WithLogger(context.Background(), l)

	got := FromContext(ctx)
	if got != l {
		t.Error("FromContext should return the logger stored with WithLogger")
	}

	got.Info("through context")
	if !strings.Contains(buf.String(), "through context") {
		t.Error("context logger did not write to its buffer")
	}
}

func TestFromContext_Default(t *testing.T) {
	got := FromContext(context.Background())
	if got == nil {
		t.Fatal("FromContext on empty context should return the default logger")
	}
}

func TestWithRequestID(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req-123")

	if got := RequestIDFromContext(ctx); got != "req-123" {
		t.Errorf("RequestIDFromContext = %q, want req-123", got)
	}
}

func TestRequestIDFromContext_Empty(t *testing.T) {
	if got := RequestIDFromContext(context.Background()); got != "" {
		t.Errorf("RequestIDFromContext on empty context = %q, want empty", got)
	}
}

func TestL_WithRequestID(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: "info", Format: "json", Output: &buf})

	ctx := WithLogger(context.Background(), l)
	ctx = WithRequestID(ctx, "req-456")

	L(ctx).Info("handling request")

	out := buf.String()
	if !strings.Contains(out, "req-456") {
		t.Errorf("request_id missing from output: %s", out)
	}
}

func TestL_NoIDs(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: "info", Format: "json", Output: &buf})

	ctx := WithLogger(context.Background(), l)
	L(ctx).Info("plain entry")

	out := buf.String()
	if strings.Contains(out, "request_id") {
		t.Errorf("request_id should be absent: %s", out)
	}
}

func TestContextKeyCollision(t *testing.T) {
	// A string key with the same literal value must not collide with
	// the typed context key.
	ctx := context.WithValue(context.Background(), "rxdb.request_id", "imposter") //nolint:staticcheck
	ctx = WithRequestID(ctx, "genuine")

	if got := RequestIDFromContext(ctx); got != "genuine" {
		t.Errorf("RequestIDFromContext = %q, want genuine", got)
	}
}
