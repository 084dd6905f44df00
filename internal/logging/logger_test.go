package logging

import (
	"context"
	"log/slog"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"garbage", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		if got := ParseLevel(tt.input); got != tt.expected {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.expected)
		}
	}
}

func TestTenantContext(t *testing.T) {
	ctx := context.Background()

	if got := TenantFromContext(ctx); got != "" {
		t.Errorf("TenantFromContext(empty) = %q, want empty", got)
	}

	ctx = ContextWithTenant(ctx, "acme")
	if got := TenantFromContext(ctx); got != "acme" {
		t.Errorf("TenantFromContext() = %q, want %q", got, "acme")
	}
}

func TestNew_Formats(t *testing.T) {
	for _, format := range []string{"json", "text", ""} {
		l := New(slog.LevelInfo, format)
		if l == nil || l.Logger == nil {
			t.Fatalf("New(info, %q) returned nil logger", format)
		}
	}
}
