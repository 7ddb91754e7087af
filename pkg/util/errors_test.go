package util

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestPreconditionError(t *testing.T) {
	err := NewPreconditionError("add_interface", "lab 9f1c", "lab must not be running", "state STARTED")

	msg := err.Error()
	for _, want := range []string{"add_interface", "lab 9f1c", "lab must not be running", "(state STARTED)"} {
		if !strings.Contains(msg, want) {
			t.Errorf("Error() = %q, missing %q", msg, want)
		}
	}
	if !errors.Is(err, ErrPreconditionFailed) {
		t.Error("PreconditionError should unwrap to ErrPreconditionFailed")
	}

	bare := NewPreconditionError("push_config", "node r1", "node must be stopped", "")
	if strings.HasSuffix(bare.Error(), ")") {
		t.Errorf("no details should mean no parenthesised suffix: %q", bare.Error())
	}
}

func TestValidationError(t *testing.T) {
	single := NewValidationError("lab_id is required")
	if single.Error() != "validation failed: lab_id is required" {
		t.Errorf("single Error() = %q", single.Error())
	}

	multi := NewValidationError("lab_id is required", "slot must be >= 0")
	if !strings.Contains(multi.Error(), "\n  - slot must be >= 0") {
		t.Errorf("multi Error() = %q", multi.Error())
	}
	if !errors.Is(multi, ErrValidationFailed) {
		t.Error("ValidationError should unwrap to ErrValidationFailed")
	}
}

func TestValidationBuilder(t *testing.T) {
	t.Run("no errors", func(t *testing.T) {
		v := &ValidationBuilder{}
		v.Add(true, "never")
		if v.HasErrors() {
			t.Error("HasErrors() = true with all conditions true")
		}
		if err := v.Build(); err != nil {
			t.Errorf("Build() = %v, want nil", err)
		}
	})

	t.Run("accumulates in order", func(t *testing.T) {
		err := (&ValidationBuilder{}).
			Add(false, "first").
			Add(true, "skipped").
			AddErrorf("third %d", 3).
			Build()

		var ve *ValidationError
		if !errors.As(err, &ve) {
			t.Fatalf("Build() = %T, want *ValidationError", err)
		}
		if len(ve.Errors) != 2 || ve.Errors[0] != "first" || ve.Errors[1] != "third 3" {
			t.Errorf("Errors = %v", ve.Errors)
		}
	})
}

func TestInUseError(t *testing.T) {
	err := NewInUseError("interface i-1", "link l-7")
	if err.Error() != "interface i-1 is in use by: link l-7" {
		t.Errorf("Error() = %q", err.Error())
	}
	wrapped := fmt.Errorf("add_link: %w", err)
	if !errors.Is(wrapped, ErrInUse) {
		t.Error("wrapped InUseError should match ErrInUse")
	}
}

func TestDependencyError(t *testing.T) {
	err := NewDependencyError("link R1-R2", "interface", "i-404")
	if err.Error() != "link R1-R2 requires interface 'i-404' to exist" {
		t.Errorf("Error() = %q", err.Error())
	}
	if !errors.Is(err, ErrDependencyMissing) {
		t.Error("DependencyError should unwrap to ErrDependencyMissing")
	}
}

func TestSentinelErrorsDistinct(t *testing.T) {
	sentinels := []error{
		ErrNotFound,
		ErrInvalidConfig,
		ErrPreconditionFailed,
		ErrValidationFailed,
		ErrInUse,
		ErrDependencyMissing,
	}
	for i, a := range sentinels {
		for j, b := range sentinels {
			if i != j && errors.Is(a, b) {
				t.Errorf("sentinels should be distinct: %v == %v", a, b)
			}
		}
	}
}
