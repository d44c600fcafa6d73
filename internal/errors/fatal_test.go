package errors_test

import (
	"testing"

	"github.com/enbox/enbox/internal/errors"
)

func TestFatal(t *testing.T) {
	for _, v := range []struct {
		err      error
		expected bool
	}{
		{errors.Fatal("broken"), true},
		{errors.Fatalf("broken %d", 42), true},
		{errors.New("error"), false},
		{errors.Bug(errors.New("sentinel"), "count underflow"), false},
	} {
		if errors.IsFatal(v.err) != v.expected {
			t.Fatalf("IsFatal for %q, expected: %v, got: %v", v.err, v.expected, errors.IsFatal(v.err))
		}
	}
}

func TestFatalErrorWrapping(t *testing.T) {
	underlying := errors.New("underlying error")
	fatal := errors.Fatalf("fatal error: %v", underlying)

	if fatal.Error() != "Fatal: fatal error: underlying error" {
		t.Errorf("unexpected error message: %v", fatal.Error())
	}

	if !errors.Is(fatal, underlying) {
		t.Error("fatal error should wrap the underlying error")
	}

	if !errors.IsFatal(fatal) {
		t.Error("error should be marked as fatal")
	}
}

func TestBug(t *testing.T) {
	sentinel := errors.New("invariant violated")
	err := errors.Wrap(errors.Bugf(sentinel, "release of %v with count 0", "abcd"), "Release")

	if !errors.IsBug(err) {
		t.Fatal("error should be marked as bug")
	}
	if !errors.Is(err, sentinel) {
		t.Fatal("bug should wrap its sentinel")
	}
	if errors.IsBug(sentinel) {
		t.Fatal("plain sentinel must not be a bug")
	}
}
