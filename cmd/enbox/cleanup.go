package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/enbox/enbox/internal/debug"
	"github.com/enbox/enbox/internal/errors"
)

var cleanupHandlers struct {
	sync.Mutex
	list []func() error
}

func createGlobalContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())

	ch := make(chan os.Signal, 1)
	go cleanupHandler(ch, cancel)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)

	return ctx
}

// cleanupHandler handles the SIGINT and SIGTERM signals.
func cleanupHandler(c <-chan os.Signal, cancel context.CancelFunc) {
	s := <-c
	debug.Log("signal %v received, cleaning up", s)
	_, _ = os.Stderr.WriteString("\nsignal " + s.String() + " received, cleaning up\n")

	if val, _ := os.LookupEnv("ENBOX_DEBUG_STACKTRACE_SIGINT"); val != "" {
		_, _ = os.Stderr.WriteString("\n--- STACKTRACE START ---\n\n")
		_, _ = os.Stderr.WriteString(debug.DumpStacktrace())
		_, _ = os.Stderr.WriteString("\n--- STACKTRACE END ---\n")
	}

	cancel()
}

// AddCleanupHandler adds the function f to the list of cleanup handlers so
// that it is executed when the command finishes.
func AddCleanupHandler(f func() error) {
	cleanupHandlers.Lock()
	defer cleanupHandlers.Unlock()

	cleanupHandlers.list = append(cleanupHandlers.list, f)
}

// RunCleanupHandlers runs all registered cleanup handlers in reverse order.
func RunCleanupHandlers() error {
	cleanupHandlers.Lock()
	defer cleanupHandlers.Unlock()

	var errs []error
	for i := len(cleanupHandlers.list) - 1; i >= 0; i-- {
		if err := cleanupHandlers.list[i](); err != nil {
			errs = append(errs, err)
		}
	}
	cleanupHandlers.list = nil
	return errors.Join(errs...)
}

// Exit terminates the process with the given exit code.
func Exit(code int) {
	debug.Log("exiting with status code %d", code)
	os.Exit(code)
}
