package testutil

import (
	"errors"
	"fmt"
	"testing"
	"time"

	apperrors "famfin/internal/errors"
)

// AssertAppError checks that err is an *AppError carrying expectedCode.
func AssertAppError(t *testing.T, err error, expectedCode string) {
	t.Helper()

	if err == nil {
		t.Fatalf("expected error %s, got nil", expectedCode)
	}

	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected *AppError %s, got %T: %v", expectedCode, err, err)
	}

	if appErr.Code != expectedCode {
		t.Errorf("expected error %s, got %s (%d: %s)", expectedCode, appErr.Code, appErr.StatusCode, appErr.Message)
	}
}

// AssertNoError fails the test if err is not nil.
func AssertNoError(t *testing.T, err error) {
	t.Helper()

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertCents compares two amounts in cents and reports a mismatch in currency units.
func AssertCents(t *testing.T, what string, got, want int64) {
	t.Helper()

	if got != want {
		t.Errorf("%s = %s, want %s", what, FormatCents(got), FormatCents(want))
	}
}

// AssertSameDay fails the test when got and want fall on different UTC dates.
func AssertSameDay(t *testing.T, what string, got, want time.Time) {
	t.Helper()

	g, w := got.UTC().Format(time.DateOnly), want.UTC().Format(time.DateOnly)
	if g != w {
		t.Errorf("%s = %s, want %s", what, g, w)
	}
}

// FormatCents renders an amount in cents as a signed decimal, e.g. -12.05.
func FormatCents(cents int64) string {
	sign := ""
	if cents < 0 {
		sign, cents = "-", -cents
	}
	return fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
}
