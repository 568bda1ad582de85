package logging

import (
	"context"
	"log/slog"
	"testing"
)

func TestNewLevels(t *testing.T) {
	tests := []struct {
		level        string
		debugEnabled bool
		infoEnabled  bool
	}{
		{"debug", true, true},
		{"info", false, true},
		{"warn", false, false},
		{"error", false, false},
		{"", false, true}, // unknown defaults to info
	}
	for _, tt := range tests {
		logger := New(tt.level, "text")
		if logger == nil {
			t.Fatalf("New(%q) returned nil", tt.level)
		}
		ctx := context.Background()
		if got := logger.Enabled(ctx, slog.LevelDebug); got != tt.debugEnabled {
			t.Errorf("level %q: debug enabled = %v, want %v", tt.level, got, tt.debugEnabled)
		}
		if got := logger.Enabled(ctx, slog.LevelInfo); got != tt.infoEnabled {
			t.Errorf("level %q: info enabled = %v, want %v", tt.level, got, tt.infoEnabled)
		}
	}
}

func TestNewJSONFormat(t *testing.T) {
	if logger := New("info", "json"); logger == nil {
		t.Fatal("Expected non-nil logger for JSON format")
	}
}

func TestRequestIDRoundtrip(t *testing.T) {
	ctx := context.Background()

	if id := RequestID(ctx); id != "" {
		t.Errorf("Expected empty request ID, got %q", id)
	}

	ctx = WithRequestID(ctx, "req_abc")
	if id := RequestID(ctx); id != "req_abc" {
		t.Errorf("Expected req_abc, got %q", id)
	}

	ctx = WithRequestID(ctx, "req_def")
	if id := RequestID(ctx); id != "req_def" {
		t.Errorf("Expected overwrite to req_def, got %q", id)
	}
}

func TestFromContextDefaultsWhenUnset(t *testing.T) {
	if logger := FromContext(context.Background()); logger == nil {
		t.Fatal("Expected default logger")
	}
}

func TestFromContextReturnsStored(t *testing.T) {
	custom := New("debug", "json")
	ctx := WithLogger(context.Background(), custom)

	if got := FromContext(ctx); got != custom {
		t.Error("Expected custom logger from context")
	}
}

func TestLAnnotatesRequestID(t *testing.T) {
	ctx := WithLogger(context.Background(), New("info", "text"))

	if logger := L(ctx); logger == nil {
		t.Fatal("Expected non-nil logger without request ID")
	}

	ctx = WithRequestID(ctx, "req_xyz")
	if logger := L(ctx); logger == nil {
		t.Fatal("Expected non-nil logger with request ID")
	}
}
