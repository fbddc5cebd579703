// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestActionableError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *ActionableError
		want string
	}{
		{
			name: "operation only",
			err:  &ActionableError{Operation: "start kernel"},
			want: "failed to start kernel",
		},
		{
			name: "operation and resource",
			err:  &ActionableError{Operation: "load notebook", Resource: "analysis.ipynb"},
			want: "failed to load notebook: analysis.ipynb",
		},
		{
			name: "operation, resource and cause",
			err: &ActionableError{
				Operation: "load notebook",
				Resource:  "missing.ipynb",
				Cause:     errors.New("no such file"),
			},
			want: "failed to load notebook: missing.ipynb: no such file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestActionableError_Unwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := WrapWithOperation(cause, "connect to kernel")

	if !errors.Is(err, cause) {
		t.Error("errors.Is should find the wrapped cause")
	}
}

func TestWrapWithOperation_NilError(t *testing.T) {
	if WrapWithOperation(nil, "anything") != nil {
		t.Error("wrapping nil should return nil")
	}
}

func TestActionableError_FormatSuggestions(t *testing.T) {
	err := NewErrorContext().
		WithOperation("start kernel").
		WithSuggestion("Check that ipykernel is installed").
		WithSuggestion("Run 'python3 -m pip install ipykernel'").
		Build()

	out := err.Format(false)
	if !strings.Contains(out, "failed to start kernel") {
		t.Errorf("Format() missing main message: %q", out)
	}
	if !strings.Contains(out, "• Check that ipykernel is installed") {
		t.Errorf("Format() missing first suggestion: %q", out)
	}
	if !strings.Contains(out, "• Run 'python3 -m pip install ipykernel'") {
		t.Errorf("Format() missing second suggestion: %q", out)
	}
}

func TestActionableError_FormatVerboseChain(t *testing.T) {
	inner := errors.New("dial tcp: connection refused")
	mid := fmt.Errorf("shell channel: %w", inner)
	err := NewErrorContext().
		WithOperation("connect to kernel").
		Wrap(mid).
		Build()

	out := err.Format(true)
	if !strings.Contains(out, "Error chain:") {
		t.Errorf("verbose Format() should include error chain, got %q", out)
	}
	if !strings.Contains(out, "2. dial tcp: connection refused") {
		t.Errorf("verbose Format() should number chain entries, got %q", out)
	}

	if strings.Contains(err.Format(false), "Error chain:") {
		t.Error("non-verbose Format() should not include error chain")
	}
}

func TestErrorContext_BuildRequiresOperation(t *testing.T) {
	if NewErrorContext().WithResource("x").Build() != nil {
		t.Error("Build() without operation should return nil")
	}
	if NewErrorContext().Build() != nil {
		t.Error("BuildError() without operation should return nil")
	}
}
