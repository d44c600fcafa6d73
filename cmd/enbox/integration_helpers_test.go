package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/enbox/enbox/internal/repository"
	rtest "github.com/enbox/enbox/internal/test"
)

type testEnvironment struct {
	base, repo, testdata string
	gopts                GlobalOptions
	stdout, stderr       *bytes.Buffer
}

// withTestEnvironment creates a test environment with an empty repository
// directory and a directory for test files.
func withTestEnvironment(t testing.TB) *testEnvironment {
	repository.TestUseLowSecurityKDFParameters(t)

	tempdir := rtest.TempDir(t)
	env := &testEnvironment{
		base:     tempdir,
		repo:     filepath.Join(tempdir, "repo"),
		testdata: filepath.Join(tempdir, "testdata"),
		stdout:   bytes.NewBuffer(nil),
		stderr:   bytes.NewBuffer(nil),
	}

	rtest.OK(t, os.MkdirAll(env.testdata, 0700))

	env.gopts = GlobalOptions{
		Repo:        env.repo,
		Email:       "test@example.com",
		LockTimeout: 100 * time.Millisecond,
		stdin:       bytes.NewReader(nil),
		stdout:      env.stdout,
		stderr:      env.stderr,
		verbosity:   1,
		noSync:      true,
	}

	// always overwrite global options
	globalOptions = env.gopts
	return env
}

// reset clears the captured output.
func (env *testEnvironment) reset() {
	env.stdout.Reset()
	env.stderr.Reset()
}

func testRunInit(t testing.TB, gopts GlobalOptions) {
	t.Helper()
	rtest.OK(t, runInit(context.TODO(), gopts, nil))
	t.Logf("repository initialized at %v", gopts.Repo)
}

func testRunImport(t testing.TB, gopts GlobalOptions, name string, files ...string) {
	t.Helper()
	rtest.OK(t, runImport(context.TODO(), ImportOptions{Name: name}, gopts, files))
}

func testRunExport(t testing.TB, gopts GlobalOptions, name, dest string) {
	t.Helper()
	rtest.OK(t, runExport(context.TODO(), gopts, []string{name, dest}))
}

func testRunCheck(t testing.TB, gopts GlobalOptions) {
	t.Helper()
	rtest.OK(t, runCheck(context.TODO(), gopts))
}

func (env *testEnvironment) writeFile(t testing.TB, name string, data []byte) string {
	t.Helper()
	return rtest.WriteFile(t, env.testdata, name, data)
}
