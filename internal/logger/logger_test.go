package logger

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/atriumlabs/atrium/internal/config"
)

func TestNew(t *testing.T) {
	cfg := config.Logging{Level: "debug", Service: "test-svc"}
	l, closer := New(cfg)
	defer closer.Close()
	if l == nil {
		t.Fatal("expected non-nil logger")
	}
}

func TestNewAsync(t *testing.T) {
	cfg := config.Logging{Level: "debug", Service: "test-svc", Async: true}
	l, closer := New(cfg)
	if l == nil {
		t.Fatal("expected non-nil logger")
	}
	closer.Close()
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"debug", "DEBUG"},
		{"info", "INFO"},
		{"warn", "WARN"},
		{"warning", "WARN"},
		{"error", "ERROR"},
		{"unknown", "INFO"},
		{"", "INFO"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := parseLevel(tt.input).String()
			if got != tt.want {
				t.Errorf("parseLevel(%q) = %s, want %s", tt.input, got, tt.want)
			}
		})
	}
}

func TestRequestIDContext(t *testing.T) {
	ctx := context.Background()

	// Empty context returns empty string
	if got := RequestID(ctx); got != "" {
		t.Errorf("expected empty request ID, got %q", got)
	}

	// Set and retrieve
	ctx = WithRequestID(ctx, "req-123")
	if got := RequestID(ctx); got != "req-123" {
		t.Errorf("expected req-123, got %q", got)
	}
}

func TestTenantIDContext(t *testing.T) {
	ctx := context.Background()

	if got := TenantID(ctx); got != "" {
		t.Errorf("expected empty tenant ID, got %q", got)
	}

	ctx = WithTenantID(ctx, "9b1c2d3e")
	if got := TenantID(ctx); got != "9b1c2d3e" {
		t.Errorf("expected 9b1c2d3e, got %q", got)
	}
}

func TestContextHandler_StampsAttributes(t *testing.T) {
	inner := &captureHandler{}
	h := NewContextHandler(inner)

	ctx := WithRequestID(context.Background(), "req-42")
	ctx = WithTenantID(ctx, "tenant-a")

	rec := slog.NewRecord(time.Now(), slog.LevelInfo, "hello", 0)
	if err := h.Handle(ctx, rec); err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}

	if got := inner.count(); got != 1 {
		t.Fatalf("expected 1 record, got %d", got)
	}

	attrs := map[string]string{}
	inner.records[0].Attrs(func(a slog.Attr) bool {
		attrs[a.Key] = a.Value.String()
		return true
	})

	if attrs["request_id"] != "req-42" {
		t.Errorf("expected request_id req-42, got %q", attrs["request_id"])
	}
	if attrs["tenant_id"] != "tenant-a" {
		t.Errorf("expected tenant_id tenant-a, got %q", attrs["tenant_id"])
	}
}

func TestContextHandler_BareContext(t *testing.T) {
	inner := &captureHandler{}
	h := NewContextHandler(inner)

	rec := slog.NewRecord(time.Now(), slog.LevelInfo, "plain", 0)
	if err := h.Handle(context.Background(), rec); err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}

	inner.records[0].Attrs(func(a slog.Attr) bool {
		if a.Key == "request_id" || a.Key == "tenant_id" {
			t.Errorf("unexpected attribute %q on bare context", a.Key)
		}
		return true
	})
}
