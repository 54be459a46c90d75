// Package testutil provides shared test utilities and fixtures.
package testutil

import (
	"math"
	"testing"
)

// AssertNoError fails the test if err is not nil.
func AssertNoError(t testing.TB, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t testing.TB, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// AssertWithin fails the test unless got is within tol of want. NaN never
// matches.
func AssertWithin(t testing.TB, name string, got, want, tol float64) {
	t.Helper()
	if math.IsNaN(got) || math.Abs(got-want) > tol {
		t.Errorf("%s = %g, want %g ± %g", name, got, want, tol)
	}
}

// AssertRelative fails the test unless got is within rel*|want| of want.
func AssertRelative(t testing.TB, name string, got, want, rel float64) {
	t.Helper()
	AssertWithin(t, name, got, want, rel*math.Abs(want))
}
