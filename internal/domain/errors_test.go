package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorCodeOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorCode
	}{
		{"nil", nil, CodeUnknown},
		{"sentinel direct", ErrMissingInput, CodeMissingInput},
		{"wrapped sentinel", fmt.Errorf("ctx: %w", ErrUpstream), CodeUpstream},
		{"domain error", NewDomainError("Op", ErrToolNotFound, "sumar"), CodeToolNotFound},
		{"deeply wrapped", fmt.Errorf("a: %w", fmt.Errorf("b: %w", ErrRateLimit)), CodeRateLimit},
		{"unknown", errors.New("something else"), CodeUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ErrorCodeOf(tt.err); got != tt.want {
				t.Errorf("ErrorCodeOf(%v) = %q, want %q", tt.err, got, tt.want)
			}
		})
	}
}

func TestDomainErrorUnwrap(t *testing.T) {
	err := NewDomainError("Registry.Get", ErrToolNotFound, "missing_tool")
	if !errors.Is(err, ErrToolNotFound) {
		t.Fatal("expected errors.Is to match the sentinel")
	}
	if got := err.Error(); got != "Registry.Get: missing_tool: tool not found" {
		t.Errorf("unexpected message: %q", got)
	}
}

func TestWrapOpNil(t *testing.T) {
	if WrapOp("op", nil) != nil {
		t.Fatal("WrapOp(nil) must be nil")
	}
	wrapped := WrapOp("first call", ErrUpstream)
	if !errors.Is(wrapped, ErrUpstream) {
		t.Fatal("wrapped error lost its sentinel")
	}
}
