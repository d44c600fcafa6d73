// Package retry wraps a backend so that failed record operations are retried
// with an exponential backoff.
package retry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/enbox/enbox/internal/backend"
	"github.com/enbox/enbox/internal/debug"
)

// maxRetries bounds the attempts of a single operation.
const maxRetries = 10

// Records that could not be loaded are not tried again for this long.
var failedLoadExpiry = time.Hour

// fastRetries shortens the backoff in tests.
var fastRetries = false

// Backend retries the operations of the wrapped backend. Permanent errors,
// missing records and context errors are returned at once.
type Backend struct {
	backend.Backend
	MaxElapsedTime time.Duration
	Report         func(msg string, err error, d time.Duration)
	Success        func(msg string, retries int)

	failedLoads sync.Map
}

var _ backend.Backend = &Backend{}

// New wraps be. report is called before each retry and, if the operation was
// retried, once more with a negative duration when it finally fails. success
// is called with the number of retries when an operation succeeds after
// failing.
func New(be backend.Backend, maxElapsedTime time.Duration, report func(string, error, time.Duration), success func(string, int)) *Backend {
	return &Backend{
		Backend:        be,
		MaxElapsedTime: maxElapsedTime,
		Report:         report,
		Success:        success,
	}
}

// atLeastOnce makes sure an operation is retried once even if the first
// attempt used up MaxElapsedTime.
type atLeastOnce struct {
	*backoff.ExponentialBackOff
	tries int
}

func (b *atLeastOnce) NextBackOff() time.Duration {
	delay := b.ExponentialBackOff.NextBackOff()
	b.tries++
	if b.tries == 1 && delay == backoff.Stop {
		return b.InitialInterval
	}
	return delay
}

func (b *atLeastOnce) Reset() {
	b.tries = 0
	b.ExponentialBackOff.Reset()
}

func (be *Backend) isPermanent(err error) bool {
	var perr *backoff.PermanentError
	return errors.As(err, &perr) || be.Backend.IsPermanentError(err)
}

func (be *Backend) retry(ctx context.Context, msg string, f func() error) error {
	// a canceled operation must not touch the repository
	if err := ctx.Err(); err != nil {
		return err
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = be.MaxElapsedTime
	if fastRetries {
		bo.InitialInterval = time.Millisecond
		bo.MaxElapsedTime = min(bo.MaxElapsedTime, 200*time.Millisecond)
	}
	b := backoff.WithContext(backoff.WithMaxRetries(&atLeastOnce{ExponentialBackOff: bo}, maxRetries), ctx)

	retries := 0
	operation := func() error {
		err := f()
		switch {
		case err == nil:
			if retries > 0 && be.Success != nil {
				be.Success(msg, retries)
			}
			return nil
		case be.isPermanent(err):
			return backoff.Permanent(err)
		}
		retries++
		return err
	}
	notify := func(err error, d time.Duration) {
		if be.Report != nil {
			be.Report(msg, err, d)
		}
	}

	err := backoff.RetryNotify(operation, b, notify)
	if err != nil && retries > 0 && ctx.Err() == nil {
		notify(err, -1)
	}
	return err
}

// Save stores the record, rewinding rd before each attempt.
func (be *Backend) Save(ctx context.Context, h backend.Handle, rd backend.RewindReader) error {
	return be.retry(ctx, fmt.Sprintf("Save(%v)", h), func() error {
		if err := rd.Rewind(); err != nil {
			return err
		}
		err := be.Backend.Save(ctx, h, rd)
		if err != nil {
			debug.Log("Save(%v) failed: %v", h, err)
		}
		return err
	})
}

// Load runs fn with a reader for the record at h. A record that kept failing
// with retryable errors is refused for failedLoadExpiry without asking the
// backend again.
func (be *Backend) Load(ctx context.Context, h backend.Handle, fn func(rd io.Reader) error) error {
	if v, ok := be.failedLoads.Load(h); ok {
		if time.Since(v.(time.Time)) <= failedLoadExpiry {
			return fmt.Errorf("record %v failed to load recently", h)
		}
		be.failedLoads.Delete(h)
	}

	err := be.retry(ctx, fmt.Sprintf("Load(%v)", h), func() error {
		return be.Backend.Load(ctx, h, fn)
	})
	if err != nil && ctx.Err() == nil && !be.isPermanent(err) {
		be.failedLoads.LoadOrStore(h, time.Now())
	}
	return err
}

// Remove deletes the record at h.
func (be *Backend) Remove(ctx context.Context, h backend.Handle) error {
	return be.retry(ctx, fmt.Sprintf("Remove(%v)", h), func() error {
		return be.Backend.Remove(ctx, h)
	})
}

// List calls fn for every record of type t. A listing that fails is
// restarted, records already passed to fn are skipped. An error returned by
// fn ends the listing without a retry.
func (be *Backend) List(ctx context.Context, t backend.FileType, fn func(backend.FileInfo) error) error {
	listCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	seen := make(map[string]struct{})
	var fnErr error

	err := be.retry(listCtx, fmt.Sprintf("List(%v)", t), func() error {
		return be.Backend.List(listCtx, t, func(fi backend.FileInfo) error {
			if _, ok := seen[fi.Name]; ok {
				return nil
			}
			seen[fi.Name] = struct{}{}

			fnErr = fn(fi)
			if fnErr != nil {
				cancel()
			}
			return fnErr
		})
	})

	if fnErr != nil {
		return fnErr
	}
	return err
}
