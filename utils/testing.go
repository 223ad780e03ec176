package utils

import (
	"errors"
	"runtime"
	"testing"
)

func getParentInfo() (string, int) {
	parent, _, _, _ := runtime.Caller(2)
	info := runtime.FuncForPC(parent)
	file, line := info.FileLine(parent)
	return file, line
}

// Test helper
func Assert(t *testing.T, predicate bool, msg string) {
	t.Helper()
	if !predicate {
		file, line := getParentInfo()
		t.Errorf(msg+" in %s:%d", file, line)
	}
}

func AssertEqual[T comparable](t *testing.T, a T, b T) {
	t.Helper()
	if a != b {
		file, line := getParentInfo()
		t.Errorf("Expected %v == %v (%T) in %s:%d", a, b, a, file, line)
	}
}

// Assert that error is nil
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		file, line := getParentInfo()
		t.Errorf("Expected no error, got '%v' in %s:%d", err, file, line)
	}
}

// Assert that an error is not nil
func AssertError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		file, line := getParentInfo()
		t.Errorf("Expected error, got '%v' in %s:%d", err, file, line)
	}
}

// Assert that err matches target somewhere in its chain.
func AssertErrorIs(t *testing.T, err error, target error) {
	t.Helper()
	if !errors.Is(err, target) {
		file, line := getParentInfo()
		t.Errorf("Expected error matching '%v', got '%v' in %s:%d", target, err, file, line)
	}
}

// AssertErrorAs finds the first error of type T in the chain of err. The
// test stops if there is none, so fields of the result are safe to read.
func AssertErrorAs[T error](t testing.TB, err error) T {
	t.Helper()
	var target T
	if !errors.As(err, &target) {
		file, line := getParentInfo()
		t.Fatalf("Expected error of type %T, got '%v' in %s:%d", target, err, file, line)
	}
	return target
}

func CompareArrays[T comparable](a []T, b []T) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func AssertEqualArrays[T comparable](t *testing.T, a []T, b []T) {
	t.Helper()
	if !CompareArrays(a, b) {
		file, line := getParentInfo()
		t.Errorf("Expected %v == %v (%T) in %s:%d", a, b, a, file, line)
	}
}
