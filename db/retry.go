package db

import (
	"strings"
	"time"

	"github.com/modelry/modelry/errors"
)

const (
	maxBusyRetries   = 5
	busyRetryBackoff = 100 * time.Millisecond
)

// IsBusy reports whether an error indicates SQLite lock contention
// (SQLITE_BUSY / SQLITE_LOCKED). The driver does not expose a typed error
// for this, so string matching is the only option.
func IsBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked") ||
		strings.Contains(msg, "sqlite_busy")
}

// WithRetry runs fn, retrying with linear backoff while the failure is lock
// contention. Exhausted retries surface as ErrStoreTransient so callers can
// distinguish contention from real failures.
func WithRetry(fn func() error) error {
	var err error
	for attempt := 0; attempt < maxBusyRetries; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		if !IsBusy(err) {
			return err
		}
		time.Sleep(busyRetryBackoff * time.Duration(attempt+1))
	}
	return errors.Wrapf(errors.ErrStoreTransient, "retries exhausted: %v", err)
}
