package errors

import (
	"errors"
	"log/slog"
	"os"
	"strings"
	"testing"
)

func TestSentinelErrors(t *testing.T) {
	// Verify sentinel errors exist and have expected messages
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{"ErrNotFound", ErrNotFound, "resource not found"},
		{"ErrInvalidInput", ErrInvalidInput, "invalid input"},
		{"ErrBackendUnavailable", ErrBackendUnavailable, "backend unavailable"},
		{"ErrInternal", ErrInternal, "internal error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Error() != tt.expected {
				t.Errorf("%s.Error() = %q, want %q", tt.name, tt.err.Error(), tt.expected)
			}
		})
	}
}

func TestLogErrorAndReturn(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	t.Run("returns nil for nil error", func(t *testing.T) {
		result := LogErrorAndReturn(logger, nil, "test message")
		if result != nil {
			t.Errorf("LogErrorAndReturn(nil) = %v, want nil", result)
		}
	})

	t.Run("returns the same error", func(t *testing.T) {
		err := errors.New("test error")
		result := LogErrorAndReturn(logger, err, "test message", "key", "value")
		if result != err {
			t.Errorf("LogErrorAndReturn returned different error")
		}
	})
}

func TestWrapErrorf(t *testing.T) {
	t.Run("returns nil for nil error", func(t *testing.T) {
		result := WrapErrorf(nil, "context %s", "value")
		if result != nil {
			t.Errorf("WrapErrorf(nil) = %v, want nil", result)
		}
	})

	t.Run("wraps error with context", func(t *testing.T) {
		original := errors.New("original error")
		wrapped := WrapErrorf(original, "context %s", "value")

		if !strings.Contains(wrapped.Error(), "context value") {
			t.Errorf("wrapped error should contain context: %v", wrapped)
		}
		if !errors.Is(wrapped, original) {
			t.Error("wrapped error should unwrap to original")
		}
	})
}

func TestClassifiers(t *testing.T) {
	t.Run("IsNotFound", func(t *testing.T) {
		if !IsNotFound(NotFoundf("light %s", "abc")) {
			t.Error("IsNotFound(NotFoundf(...)) = false, want true")
		}
		if IsNotFound(errors.New("other")) {
			t.Error("IsNotFound(other) = true, want false")
		}
	})

	t.Run("IsInvalidInput", func(t *testing.T) {
		if !IsInvalidInput(InvalidInputf("bad value %d", 7)) {
			t.Error("IsInvalidInput(InvalidInputf(...)) = false, want true")
		}
	})

	t.Run("IsBackendUnavailable", func(t *testing.T) {
		if !IsBackendUnavailable(BackendUnavailablef("dispatch: %w", errors.New("conn refused"))) {
			t.Error("IsBackendUnavailable(BackendUnavailablef(...)) = false, want true")
		}
	})
}
