package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestRecover_WithPanic(t *testing.T) {
	testFunc := func() (err error) {
		defer Recover(&err, "RandomForest.Fit")
		panic("index out of range")
	}

	err := testFunc()
	if err == nil {
		t.Fatal("Expected error from recovered panic, got nil")
	}

	var panicErr *PanicError
	if !errors.As(err, &panicErr) {
		t.Fatalf("Expected PanicError, got %T", err)
	}
	if panicErr.Operation != "RandomForest.Fit" {
		t.Errorf("Operation = %q, want %q", panicErr.Operation, "RandomForest.Fit")
	}
	if panicErr.StackTrace == "" {
		t.Error("Expected non-empty stack trace")
	}
	if got, want := panicErr.Error(), "panic in RandomForest.Fit: index out of range"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if !strings.Contains(panicErr.String(), "Stack trace:") {
		t.Error("String() should include the stack trace")
	}
}

func TestRecover_WithoutPanic(t *testing.T) {
	testFunc := func() (err error) {
		defer Recover(&err, "SVC.Fit")
		return nil
	}
	if err := testFunc(); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
}

func TestRecover_WithExistingError(t *testing.T) {
	originalErr := fmt.Errorf("original error")

	testFunc := func() (err error) {
		defer Recover(&err, "Trainer.Fit")
		err = originalErr
		panic("panic after error")
	}

	err := testFunc()
	if err == nil {
		t.Fatal("Expected error, got nil")
	}
	msg := err.Error()
	if !strings.Contains(msg, "panic in Trainer.Fit") || !strings.Contains(msg, "original error") {
		t.Errorf("unexpected message: %s", msg)
	}
	if !errors.Is(err, originalErr) {
		t.Error("original error should stay in the chain")
	}
}

func TestSafeExecute(t *testing.T) {
	fnErr := fmt.Errorf("function error")

	tests := []struct {
		name      string
		fn        func() error
		wantErr   error
		wantPanic bool
	}{
		{name: "success", fn: func() error { return nil }},
		{name: "function error", fn: func() error { return fnErr }, wantErr: fnErr},
		{name: "panic", fn: func() error { panic("boom") }, wantPanic: true},
		{name: "int panic", fn: func() error { panic(42) }, wantPanic: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := SafeExecute("op", tt.fn)
			if tt.wantPanic {
				var panicErr *PanicError
				if !errors.As(err, &panicErr) {
					t.Fatalf("Expected PanicError, got %T (%v)", err, err)
				}
				return
			}
			if err != tt.wantErr {
				t.Fatalf("SafeExecute() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func BenchmarkSafeExecute_NoPanic(b *testing.B) {
	for i := 0; i < b.N; i++ {
		_ = SafeExecute("BenchmarkOp", func() error { return nil })
	}
}
