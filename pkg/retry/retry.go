// Package retry reruns a failing function with doubling backoff.
package retry

import (
	"context"
	"time"
)

// Do calls f up to attempts times, sleeping delay, 2*delay, 4*delay...
// between tries. Returns the last error, or ctx's error when cancelled
// mid-backoff.
func Do(ctx context.Context, attempts int, delay time.Duration, f func() error) error {
	var err error

	for attempt := 0; attempt < attempts; attempt++ {
		if err = f(); err == nil {
			return nil
		}

		if attempt == attempts-1 {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay << attempt):
		}
	}

	return err
}
