// Package comperr implements assertions for checking error values.
package comperr

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// AssertCause checks that the root cause of actual, as reported by
// errors.Cause, is the expected sentinel error.
//
// A nil expected error asserts that actual is nil.
func AssertCause(t testing.TB, expected, actual error, msgAndArgs ...interface{}) bool {
	t.Helper()
	if expected == nil {
		return assert.NoError(t, actual, msgAndArgs...)
	}
	if !assert.Error(t, actual, msgAndArgs...) {
		return false
	}
	return assert.Equal(t, expected, errors.Cause(actual), msgAndArgs...)
}

// RequireCause is like AssertCause, but stops the test on failure.
func RequireCause(t testing.TB, expected, actual error, msgAndArgs ...interface{}) {
	t.Helper()
	if !AssertCause(t, expected, actual, msgAndArgs...) {
		t.FailNow()
	}
}

// AssertEqualErr compares the strings of the errors.
//
// This is a helper function to work around the assert packages inability to deal
// with comparison to nil errors easily.
func AssertEqualErr(t testing.TB, expected, actual error, msgAndArgs ...interface{}) {
	t.Helper()
	if expected == nil {
		assert.NoError(t, actual, msgAndArgs...)
	} else {
		assert.EqualError(t, actual, expected.Error(), msgAndArgs...)
	}
}

// RequireEqualErr compares the strings of the errors.
func RequireEqualErr(t testing.TB, expected, actual error, msgAndArgs ...interface{}) {
	t.Helper()
	if expected == nil {
		require.NoError(t, actual, msgAndArgs...)
	} else {
		require.EqualError(t, actual, expected.Error(), msgAndArgs...)
	}
}
