package test

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/enbox/enbox/internal/errors"

	mrand "math/rand"
)

// Assert fails the test if the condition is false.
func Assert(tb testing.TB, condition bool, msg string, v ...interface{}) {
	tb.Helper()
	if !condition {
		tb.Fatalf("\033[31m"+msg+"\033[39m\n", v...)
	}
}

// OK fails the test if an err is not nil.
func OK(tb testing.TB, err error) {
	tb.Helper()
	if err != nil {
		tb.Fatalf("\033[31munexpected error: %+v\033[39m\n", err)
	}
}

// OKs fails the test if any error from errs is not nil.
func OKs(tb testing.TB, errs []error) {
	tb.Helper()
	errFound := false
	for _, err := range errs {
		if err != nil {
			errFound = true
			tb.Logf("\033[31munexpected error: %+v\033[39m\n", err)
		}
	}
	if errFound {
		tb.FailNow()
	}
}

// ErrorIs fails the test if err does not match target through errors.Is.
func ErrorIs(tb testing.TB, err, target error) {
	tb.Helper()
	if !errors.Is(err, target) {
		_, file, line, _ := runtime.Caller(1)
		tb.Fatalf("\033[31m%s:%d: expected error %q, got %+v\033[39m\n", filepath.Base(file), line, target, err)
	}
}

// Equals fails the test if exp is not equal to act. An optional message can
// be passed as the first extra argument, followed by format arguments.
func Equals(tb testing.TB, exp, act interface{}, msgs ...string) {
	tb.Helper()
	if !reflect.DeepEqual(exp, act) {
		var msgString string
		length := len(msgs)
		if length == 1 {
			msgString = msgs[0]
		} else if length > 1 {
			args := make([]interface{}, length-1)
			for i, msg := range msgs[1:] {
				args[i] = msg
			}
			msgString = fmt.Sprintf(msgs[0], args...)
		}
		tb.Fatalf("\033[31m\n\n\t"+msgString+"\n\n\texp: %#v\n\n\tgot: %#v\033[39m\n\n", exp, act)
	}
}

// Diff fails the test with a go-cmp diff if want and got differ.
func Diff(tb testing.TB, want, got interface{}, opts ...cmp.Option) {
	tb.Helper()
	if d := cmp.Diff(want, got, opts...); d != "" {
		tb.Fatalf("mismatch (-want +got):\n%s", d)
	}
}

// Random returns size bytes of pseudo-random data derived from the seed.
func Random(seed, count int) []byte {
	p := make([]byte, count)

	rnd := mrand.New(mrand.NewSource(int64(seed)))

	for i := 0; i < len(p); i += 8 {
		val := rnd.Int63()
		for j := 0; j < 8 && i+j < len(p); j++ {
			p[i+j] = byte(val >> (8 * j))
		}
	}

	return p
}

// Repeat returns n copies of chunk concatenated.
func Repeat(chunk []byte, n int) []byte {
	return bytes.Repeat(chunk, n)
}

// WriteFile creates the file name below dir with data and returns its path.
func WriteFile(tb testing.TB, dir, name string, data []byte) string {
	tb.Helper()
	filename := filepath.Join(dir, name)
	OK(tb, os.MkdirAll(filepath.Dir(filename), 0700))
	OK(tb, os.WriteFile(filename, data, 0600))
	return filename
}

// ReadFile returns the content of filename.
func ReadFile(tb testing.TB, filename string) []byte {
	tb.Helper()
	data, err := os.ReadFile(filename)
	OK(tb, err)
	return data
}

func isFile(fi os.FileInfo) bool {
	return fi.Mode()&(os.ModeType|os.ModeCharDevice) == 0
}

// ResetReadOnly recursively resets the read-only flag for dir. Block files
// are stored read-only, so tests that modify or delete them need this.
func ResetReadOnly(tb testing.TB, dir string) {
	tb.Helper()
	err := filepath.Walk(dir, func(path string, fi os.FileInfo, err error) error {
		if fi == nil {
			return err
		}

		if fi.IsDir() {
			return os.Chmod(path, 0777)
		}

		if isFile(fi) {
			return os.Chmod(path, 0666)
		}

		return nil
	})
	if errors.Is(err, os.ErrNotExist) {
		err = nil
	}
	OK(tb, err)
}

// RemoveAll recursively resets the read-only flag of all files and dirs and
// afterwards uses os.RemoveAll() to remove the path.
func RemoveAll(tb testing.TB, path string) {
	tb.Helper()
	ResetReadOnly(tb, path)
	err := os.RemoveAll(path)
	if errors.Is(err, os.ErrNotExist) {
		err = nil
	}
	OK(tb, err)
}

// TempDir returns a temporary directory that is removed by t.Cleanup,
// except if TestCleanupTempDirs is set to false.
func TempDir(tb testing.TB) string {
	tb.Helper()
	tempdir, err := os.MkdirTemp(TestTempDir, "enbox-test-")
	if err != nil {
		tb.Fatal(err)
	}

	tb.Cleanup(func() {
		if !TestCleanupTempDirs {
			tb.Logf("leaving temporary directory %v used for test", tempdir)
			return
		}

		RemoveAll(tb, tempdir)
	})
	return tempdir
}
